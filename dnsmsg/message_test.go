package dnsmsg

import (
	"bytes"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMessageRoundTrip(t *testing.T) {
	msg := &Message{
		Header: Header{
			ID:               0x1234,
			RecursionDesired: true,
			Opcode:           OpcodeQuery,
		},
		Question: []Question{
			{Name: "www.example.com.", Type: TypeA, Class: ClassINET},
		},
		Answer: []Record{
			{Name: "www.example.com.", Type: TypeA, Class: ClassINET, TTL: 300, Data: &A{IP: net.ParseIP("93.184.216.34")}},
		},
		Edns: &EDNS{UDPSize: 4096, DNSSECOK: true},
	}

	wire, err := EncodeMessage(msg)
	require.NoError(t, err)

	decoded, err := DecodeMessage(wire)
	require.NoError(t, err)

	require.Equal(t, msg.Header.ID, decoded.Header.ID)
	require.True(t, decoded.Header.RecursionDesired)
	require.Len(t, decoded.Question, 1)
	require.Equal(t, "www.example.com.", decoded.Question[0].Name)
	require.Len(t, decoded.Answer, 1)
	require.NotNil(t, decoded.Edns)
	require.True(t, decoded.Edns.DNSSECOK)
	require.Equal(t, uint16(4096), decoded.Edns.UDPSize)

	a, ok := decoded.Answer[0].Data.(*A)
	require.True(t, ok)
	require.True(t, net.ParseIP("93.184.216.34").Equal(a.IP))

	wire2, err := EncodeMessage(decoded)
	require.NoError(t, err)
	decoded2, err := DecodeMessage(wire2)
	require.NoError(t, err)
	require.Equal(t, decoded.Question, decoded2.Question)
}

func TestMessageCompressionDecodesSameAsUncompressed(t *testing.T) {
	msg := &Message{
		Header:   Header{ID: 7, RecursionDesired: true},
		Question: []Question{{Name: "a.example.com.", Type: TypeA, Class: ClassINET}},
		Answer: []Record{
			{Name: "a.example.com.", Type: TypeNS, Class: ClassINET, TTL: 60, Data: &NS{Target: "ns1.example.com."}},
			{Name: "a.example.com.", Type: TypeNS, Class: ClassINET, TTL: 60, Data: &NS{Target: "ns2.example.com."}},
		},
	}
	wire, err := EncodeMessage(msg)
	require.NoError(t, err)

	// A second NS record sharing the "example.com." suffix should have
	// compressed it into a pointer, making the wire form shorter than the
	// naive sum of both names spelled out in full.
	require.Less(t, len(wire), 12+2*16+2*25+2*25)

	decoded, err := DecodeMessage(wire)
	require.NoError(t, err)
	require.Len(t, decoded.Answer, 2)
	ns1 := decoded.Answer[0].Data.(*NS)
	ns2 := decoded.Answer[1].Data.(*NS)
	require.Equal(t, "ns1.example.com.", ns1.Target)
	require.Equal(t, "ns2.example.com.", ns2.Target)
}

func TestPointerLoopRejected(t *testing.T) {
	// Header claims one answer record; the name at the start of the
	// answer section points at itself, which must be detected rather than
	// looping forever.
	data := make([]byte, headerSize)
	data[7] = 1 // ANCOUNT = 1
	loopOffset := len(data)
	data = append(data, 0xC0, byte(loopOffset)) // pointer to itself
	data = append(data, 0, 1, 0, 1, 0, 0, 0, 0, 0, 0)

	_, err := DecodeMessage(data)
	require.Error(t, err)
}

func TestCanonicalNameLowercasesAndHasNoCompression(t *testing.T) {
	upper := CanonicalName("WWW.Example.COM.")
	lower := CanonicalName("www.example.com.")
	require.True(t, bytes.Equal(upper, lower))

	// No byte in a canonical name encoding may be a compression pointer tag.
	for i := 0; i < len(lower); {
		l := int(lower[i])
		require.Less(t, l, 0xC0)
		i += 1 + l
	}
}

func TestCanonicalNameRoot(t *testing.T) {
	require.Equal(t, []byte{0}, CanonicalName("."))
}
