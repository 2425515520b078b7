package dnssec

import (
	"net"
	"testing"

	"github.com/hlandau/dnsval/dnsmsg"
	"github.com/stretchr/testify/require"
)

func TestCanonicalRRsetOrdersByRdata(t *testing.T) {
	rrset := []dnsmsg.Record{
		{Name: "example.com.", Type: dnsmsg.TypeA, Class: dnsmsg.ClassINET, TTL: 300, Data: &dnsmsg.A{IP: net.ParseIP("9.9.9.9")}},
		{Name: "example.com.", Type: dnsmsg.TypeA, Class: dnsmsg.ClassINET, TTL: 300, Data: &dnsmsg.A{IP: net.ParseIP("1.1.1.1")}},
		{Name: "example.com.", Type: dnsmsg.TypeA, Class: dnsmsg.ClassINET, TTL: 300, Data: &dnsmsg.A{IP: net.ParseIP("5.5.5.5")}},
	}
	sorted, err := CanonicalRRset(rrset)
	require.NoError(t, err)
	require.Len(t, sorted, 3)
	a0 := sorted[0].Data.(*dnsmsg.A)
	a1 := sorted[1].Data.(*dnsmsg.A)
	a2 := sorted[2].Data.(*dnsmsg.A)
	require.True(t, net.ParseIP("1.1.1.1").Equal(a0.IP))
	require.True(t, net.ParseIP("5.5.5.5").Equal(a1.IP))
	require.True(t, net.ParseIP("9.9.9.9").Equal(a2.IP))
}

func TestBuildSignedDataIsDeterministic(t *testing.T) {
	rrsig := &dnsmsg.RRSIG{
		TypeCovered: dnsmsg.TypeA,
		Algorithm:   uint8(AlgorithmED25519),
		Labels:      2,
		OriginalTTL: 300,
		Expiration:  2000000000,
		Inception:   1000000000,
		KeyTag:      1234,
		SignerName:  "example.com.",
	}
	rrset := []dnsmsg.Record{
		{Name: "www.example.com.", Type: dnsmsg.TypeA, Class: dnsmsg.ClassINET, TTL: 300, Data: &dnsmsg.A{IP: net.ParseIP("93.184.216.34")}},
	}
	a, err := BuildSignedData(rrsig, rrset)
	require.NoError(t, err)
	b, err := BuildSignedData(rrsig, rrset)
	require.NoError(t, err)
	require.Equal(t, a, b)
}
