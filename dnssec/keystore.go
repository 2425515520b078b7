package dnssec

import (
	"context"
	"sync"

	"github.com/hlandau/dnsval/dnsmsg"
)

// memoQuerier wraps a Querier with a cache scoped to the lifetime of a
// single object, not a TTL: the same zone's DNSKEY or DS set is very
// often consulted twice within one chain-of-trust walk (the delegation
// signer check re-derives the same parent keys the rrset verification
// step just fetched), but nothing here is kept once the walk that
// created it returns. There is deliberately no cross-call cache; each
// top-level validation gets a fresh memoQuerier.
type memoQuerier struct {
	inner Querier

	mu    sync.Mutex
	cache map[memoKey]*memoEntry
}

type memoKey struct {
	name   string
	rrtype uint16
}

type memoEntry struct {
	once sync.Once
	msg  *dnsmsg.Message
	err  error
}

// newMemoQuerier returns a Querier that deduplicates identical (name,
// type) lookups against inner for as long as it is kept alive.
func newMemoQuerier(inner Querier) *memoQuerier {
	return &memoQuerier{inner: inner, cache: make(map[memoKey]*memoEntry)}
}

func (m *memoQuerier) Query(ctx context.Context, name string, rrtype uint16) (*dnsmsg.Message, error) {
	key := memoKey{name: dnsmsg.Fqdn(name), rrtype: rrtype}

	m.mu.Lock()
	entry, ok := m.cache[key]
	if !ok {
		entry = &memoEntry{}
		m.cache[key] = entry
	}
	m.mu.Unlock()

	entry.once.Do(func() {
		entry.msg, entry.err = m.inner.Query(ctx, name, rrtype)
	})
	return entry.msg, entry.err
}
