package dnsval

import (
	"context"

	"github.com/hlandau/dnsval/dnsmsg"
	"github.com/hlandau/dnsval/dnssec"
)

// transportQuerier adapts a Transport to dnssec.Querier, the small
// interface the validator uses to fetch DNSKEY/DS records while walking
// the chain of trust. Every call builds its own query message with a
// fresh ID via the owning Client.
type transportQuerier struct {
	client *Client
}

var _ dnssec.Querier = &transportQuerier{}

func (q *transportQuerier) Query(ctx context.Context, name string, rrtype uint16) (*dnsmsg.Message, error) {
	msg := q.client.newQuery(name, dnsmsg.ClassINET, rrtype, true)
	a, err := q.client.transport.Exchange(ctx, msg)
	if err != nil {
		return nil, err
	}
	if rc := a.Rcode(); rc != uint16(dnsmsg.RcodeSuccess) {
		return a, ErrorResponse{Code: rc}
	}
	return a, nil
}

// NewValidatorWithDefaultAnchor returns a dnssec.Validator anchored at the
// compiled-in IANA root KSK, querying over t. This is the common case for
// a caller that just wants validated lookups against the public DNS root.
func NewValidatorWithDefaultAnchor(t Transport) (*dnssec.Validator, error) {
	anchors := dnssec.NewTrustAnchorStore()
	if err := anchors.LoadDefaultRootAnchor(); err != nil {
		return nil, err
	}
	c := &Client{transport: t, nextID: uint32(randomID())}
	return dnssec.NewValidator(anchors, &transportQuerier{client: c}), nil
}
