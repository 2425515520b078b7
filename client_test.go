package dnsval

import (
	"context"
	"testing"

	"github.com/hlandau/dnsval/dnsmsg"
	"github.com/stretchr/testify/require"
)

// fakeTransport answers every Exchange call with a canned response built
// from the query it received, without touching the network.
type fakeTransport struct {
	answer func(q *dnsmsg.Message) *dnsmsg.Message
	err    error
}

func (f *fakeTransport) Exchange(_ context.Context, q *dnsmsg.Message) (*dnsmsg.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.answer(q), nil
}

func (f *fakeTransport) String() string { return "fake" }

func echoAnswer(rrtype uint16, records ...dnsmsg.Record) func(q *dnsmsg.Message) *dnsmsg.Message {
	return func(q *dnsmsg.Message) *dnsmsg.Message {
		return &dnsmsg.Message{
			Header:   dnsmsg.Header{ID: q.Header.ID, Response: true, Rcode: dnsmsg.RcodeSuccess},
			Question: q.Question,
			Answer:   records,
		}
	}
}

func TestClientQueryReturnsAnswer(t *testing.T) {
	records := []dnsmsg.Record{
		{Name: "example.com.", Type: dnsmsg.TypeA, Class: dnsmsg.ClassINET, TTL: 300, Data: &dnsmsg.A{IP: []byte{93, 184, 216, 34}}},
	}
	t2 := &fakeTransport{answer: echoAnswer(dnsmsg.TypeA, records...)}
	c := NewClient(t2, nil)

	msg, err := c.Query(context.Background(), "example.com.", dnsmsg.ClassINET, dnsmsg.TypeA)
	require.NoError(t, err)
	require.Len(t, msg.Answer, 1)
}

func TestClientQueryPropagatesServerFailure(t *testing.T) {
	t2 := &fakeTransport{answer: func(q *dnsmsg.Message) *dnsmsg.Message {
		return &dnsmsg.Message{Header: dnsmsg.Header{ID: q.Header.ID, Response: true, Rcode: dnsmsg.RcodeServerFailure}, Question: q.Question}
	}}
	c := NewClient(t2, nil)

	_, err := c.Query(context.Background(), "example.com.", dnsmsg.ClassINET, dnsmsg.TypeA)
	require.Error(t, err)
	var rcodeErr ErrorResponse
	require.ErrorAs(t, err, &rcodeErr)
}

func TestClientSecureQueryRequiresValidator(t *testing.T) {
	t2 := &fakeTransport{answer: echoAnswer(dnsmsg.TypeA)}
	c := NewClient(t2, nil)

	_, err := c.SecureQuery(context.Background(), "example.com.", dnsmsg.ClassINET, dnsmsg.TypeA)
	require.Error(t, err)
}

func TestNextMessageIDIsMonotonicPerClient(t *testing.T) {
	c := NewClient(&fakeTransport{}, nil)
	first := c.nextMessageID()
	second := c.nextMessageID()
	require.Equal(t, first+1, second)
}

func TestGroupRRsetsSplitsByNameAndType(t *testing.T) {
	records := []dnsmsg.Record{
		{Name: "example.com.", Type: dnsmsg.TypeA, Data: &dnsmsg.A{IP: []byte{1, 2, 3, 4}}},
		{Name: "example.com.", Type: dnsmsg.TypeA, Data: &dnsmsg.A{IP: []byte{5, 6, 7, 8}}},
		{Name: "EXAMPLE.COM.", Type: dnsmsg.TypeAAAA, Data: &dnsmsg.AAAA{}},
		{Name: "example.com.", Type: dnsmsg.TypeRRSIG, Data: &dnsmsg.RRSIG{}},
	}

	grouped := groupRRsets(records)
	require.Len(t, grouped, 2)
	require.Len(t, grouped[rrsetKey{name: "example.com.", rrtype: dnsmsg.TypeA}], 2)
	require.Len(t, grouped[rrsetKey{name: "example.com.", rrtype: dnsmsg.TypeAAAA}], 1)
}

func TestSplitRRSIGsForFiltersByTypeCoveredAndName(t *testing.T) {
	matching := &dnsmsg.RRSIG{TypeCovered: dnsmsg.TypeA}
	other := &dnsmsg.RRSIG{TypeCovered: dnsmsg.TypeAAAA}
	records := []dnsmsg.Record{
		{Name: "example.com.", Type: dnsmsg.TypeRRSIG, Data: matching},
		{Name: "example.com.", Type: dnsmsg.TypeRRSIG, Data: other},
		{Name: "other.com.", Type: dnsmsg.TypeRRSIG, Data: matching},
	}

	sigs := splitRRSIGsFor(records, "example.com.", dnsmsg.TypeA)
	require.Len(t, sigs, 1)
	require.Same(t, matching, sigs[0])
}
