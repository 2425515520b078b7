package dnssec

import (
	"context"
	"crypto/ed25519"
	"net"
	"testing"
	"time"

	"github.com/hlandau/dnsval/dnsmsg"
	"github.com/stretchr/testify/require"
)

// testZone is a single self-contained signed zone used to drive the
// recursive validator end to end without any network access: a root zone
// whose KSK is the configured trust anchor, signing a single delegated
// name directly (skipping the "com." layer, which exercises identical
// code to a deeper chain).
type testZone struct {
	name     string
	ksk, zsk *dnsmsg.DNSKEY
	kskPriv  ed25519.PrivateKey
	zskPriv  ed25519.PrivateKey
}

func newTestZone(t *testing.T, name string) *testZone {
	t.Helper()
	kpub, kpriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	zpub, zpriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	return &testZone{
		name:    name,
		ksk:     &dnsmsg.DNSKEY{Flags: dnsmsg.DNSKEYFlagZoneKey | dnsmsg.DNSKEYFlagSecureEntryPoint, Protocol: 3, Algorithm: uint8(AlgorithmED25519), PublicKey: kpub},
		zsk:     &dnsmsg.DNSKEY{Flags: dnsmsg.DNSKEYFlagZoneKey, Protocol: 3, Algorithm: uint8(AlgorithmED25519), PublicKey: zpub},
		kskPriv: kpriv,
		zskPriv: zpriv,
	}
}

func sign(t *testing.T, priv ed25519.PrivateKey, key *dnsmsg.DNSKEY, signerName string, rrset []dnsmsg.Record, typeCovered uint16) *dnsmsg.RRSIG {
	t.Helper()
	rrsig := &dnsmsg.RRSIG{
		TypeCovered: typeCovered,
		Algorithm:   uint8(AlgorithmED25519),
		Labels:      1,
		OriginalTTL: 3600,
		Expiration:  uint32(time.Now().Add(24 * time.Hour).Unix()),
		Inception:   uint32(time.Now().Add(-24 * time.Hour).Unix()),
		KeyTag:      KeyTag(key),
		SignerName:  signerName,
	}
	data, err := BuildSignedData(rrsig, rrset)
	require.NoError(t, err)
	rrsig.Signature = ed25519.Sign(priv, data)
	return rrsig
}

func dnskeyRecords(z *testZone) []dnsmsg.Record {
	return []dnsmsg.Record{
		{Name: z.name, Type: dnsmsg.TypeDNSKEY, Class: dnsmsg.ClassINET, TTL: 3600, Data: z.ksk},
		{Name: z.name, Type: dnsmsg.TypeDNSKEY, Class: dnsmsg.ClassINET, TTL: 3600, Data: z.zsk},
	}
}

// fakeQuerier answers DNSKEY/DS/A queries out of a small fixed table built
// by the test, modeling exactly the messages a live resolver would return.
type fakeQuerier struct {
	answers map[memoKey]*dnsmsg.Message
}

func (f *fakeQuerier) Query(_ context.Context, name string, rrtype uint16) (*dnsmsg.Message, error) {
	key := memoKey{name: dnsmsg.Fqdn(name), rrtype: rrtype}
	msg, ok := f.answers[key]
	if !ok {
		return &dnsmsg.Message{}, nil
	}
	return msg, nil
}

func TestValidatorVerifiesTwoZoneChain(t *testing.T) {
	root := newTestZone(t, ".")
	child := newTestZone(t, "example.com.")

	rootDNSKEYs := dnskeyRecords(root)
	rootSig := sign(t, root.kskPriv, root.ksk, ".", rootDNSKEYs, dnsmsg.TypeDNSKEY)

	ds, err := ComputeDS("example.com.", child.ksk, DigestSHA256)
	require.NoError(t, err)
	dsRecords := []dnsmsg.Record{{Name: "example.com.", Type: dnsmsg.TypeDS, Class: dnsmsg.ClassINET, TTL: 3600, Data: ds}}
	dsSig := sign(t, root.zskPriv, root.zsk, ".", dsRecords, dnsmsg.TypeDS)

	childDNSKEYs := dnskeyRecords(child)
	childSig := sign(t, child.kskPriv, child.ksk, "example.com.", childDNSKEYs, dnsmsg.TypeDNSKEY)

	aRecords := []dnsmsg.Record{{Name: "www.example.com.", Type: dnsmsg.TypeA, Class: dnsmsg.ClassINET, TTL: 300, Data: &dnsmsg.A{IP: net.ParseIP("93.184.216.34")}}}
	aSig := sign(t, child.zskPriv, child.zsk, "example.com.", aRecords, dnsmsg.TypeA)

	toRecord := func(sig *dnsmsg.RRSIG, name string) dnsmsg.Record {
		return dnsmsg.Record{Name: name, Type: dnsmsg.TypeRRSIG, Class: dnsmsg.ClassINET, Data: sig}
	}

	fq := &fakeQuerier{answers: map[memoKey]*dnsmsg.Message{
		{name: ".", rrtype: dnsmsg.TypeDNSKEY}: {
			Answer: append(append([]dnsmsg.Record{}, rootDNSKEYs...), toRecord(rootSig, ".")),
		},
		{name: "example.com.", rrtype: dnsmsg.TypeDS}: {
			Answer: append(append([]dnsmsg.Record{}, dsRecords...), toRecord(dsSig, "example.com.")),
		},
		{name: "example.com.", rrtype: dnsmsg.TypeDNSKEY}: {
			Answer: append(append([]dnsmsg.Record{}, childDNSKEYs...), toRecord(childSig, "example.com.")),
		},
	}}

	anchors := NewTrustAnchorStore()
	rootDS, err := ComputeDS(".", root.ksk, DigestSHA256)
	require.NoError(t, err)
	require.NoError(t, anchors.SetAnchor(".", rootDS.KeyTag, AlgorithmED25519, DigestSHA256, hexEncode(rootDS.Digest)))

	v := NewValidator(anchors, fq)
	_, err = v.VerifyRRset(context.Background(), "www.example.com.", dnsmsg.TypeA, aRecords, []*dnsmsg.RRSIG{aSig})
	require.NoError(t, err)
}

func TestValidatorNoRRSIGFails(t *testing.T) {
	v := NewValidator(NewTrustAnchorStore(), &fakeQuerier{answers: map[memoKey]*dnsmsg.Message{}})
	_, err := v.VerifyRRset(context.Background(), "insecure.example.", dnsmsg.TypeA, nil, nil)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrNoRRSIG)
}

func TestValidatorNoDSBreaksChain(t *testing.T) {
	root := newTestZone(t, ".")
	child := newTestZone(t, "example.com.")

	rootDNSKEYs := dnskeyRecords(root)
	rootSig := sign(t, root.kskPriv, root.ksk, ".", rootDNSKEYs, dnsmsg.TypeDNSKEY)

	childDNSKEYs := dnskeyRecords(child)
	childSig := sign(t, child.kskPriv, child.ksk, "example.com.", childDNSKEYs, dnsmsg.TypeDNSKEY)

	aRecords := []dnsmsg.Record{{Name: "www.example.com.", Type: dnsmsg.TypeA, Class: dnsmsg.ClassINET, TTL: 300, Data: &dnsmsg.A{IP: net.ParseIP("93.184.216.34")}}}
	aSig := sign(t, child.zskPriv, child.zsk, "example.com.", aRecords, dnsmsg.TypeA)

	toRecord := func(sig *dnsmsg.RRSIG, name string) dnsmsg.Record {
		return dnsmsg.Record{Name: name, Type: dnsmsg.TypeRRSIG, Class: dnsmsg.ClassINET, Data: sig}
	}

	// No DS record is ever returned for example.com: the chain must break.
	fq := &fakeQuerier{answers: map[memoKey]*dnsmsg.Message{
		{name: ".", rrtype: dnsmsg.TypeDNSKEY}: {
			Answer: append(append([]dnsmsg.Record{}, rootDNSKEYs...), toRecord(rootSig, ".")),
		},
		{name: "example.com.", rrtype: dnsmsg.TypeDNSKEY}: {
			Answer: append(append([]dnsmsg.Record{}, childDNSKEYs...), toRecord(childSig, "example.com.")),
		},
	}}

	anchors := NewTrustAnchorStore()
	rootDS, err := ComputeDS(".", root.ksk, DigestSHA256)
	require.NoError(t, err)
	require.NoError(t, anchors.SetAnchor(".", rootDS.KeyTag, AlgorithmED25519, DigestSHA256, hexEncode(rootDS.Digest)))

	v := NewValidator(anchors, fq)
	_, err = v.VerifyRRset(context.Background(), "www.example.com.", dnsmsg.TypeA, aRecords, []*dnsmsg.RRSIG{aSig})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrNoDS)
}

// TestValidatorAcceptsSelfSignatureByZoneKeyWithoutSEP exercises a zone
// whose DNSKEY rrset is self-signed by a key carrying only the zone_key
// flag, not secure_entry_point: spec.md's candidate loop ("skip if zone_key
// flag clear") governs the self-signed/DNSKEY-type case the same as any
// other rrset, with no separate SEP/KSK requirement, so this must still
// validate.
func TestValidatorAcceptsSelfSignatureByZoneKeyWithoutSEP(t *testing.T) {
	root := newTestZone(t, ".")
	rootDNSKEYs := dnskeyRecords(root)
	rootSig := sign(t, root.kskPriv, root.ksk, ".", rootDNSKEYs, dnsmsg.TypeDNSKEY)

	cpub, cpriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	// A single key for "example.com.", flagged zone_key only (no SEP),
	// self-signing its own DNSKEY rrset and the records below it.
	childKey := &dnsmsg.DNSKEY{Flags: dnsmsg.DNSKEYFlagZoneKey, Protocol: 3, Algorithm: uint8(AlgorithmED25519), PublicKey: cpub}
	childDNSKEYs := []dnsmsg.Record{{Name: "example.com.", Type: dnsmsg.TypeDNSKEY, Class: dnsmsg.ClassINET, TTL: 3600, Data: childKey}}
	childSig := sign(t, cpriv, childKey, "example.com.", childDNSKEYs, dnsmsg.TypeDNSKEY)

	ds, err := ComputeDS("example.com.", childKey, DigestSHA256)
	require.NoError(t, err)
	dsRecords := []dnsmsg.Record{{Name: "example.com.", Type: dnsmsg.TypeDS, Class: dnsmsg.ClassINET, TTL: 3600, Data: ds}}
	dsSig := sign(t, root.zskPriv, root.zsk, ".", dsRecords, dnsmsg.TypeDS)

	aRecords := []dnsmsg.Record{{Name: "www.example.com.", Type: dnsmsg.TypeA, Class: dnsmsg.ClassINET, TTL: 300, Data: &dnsmsg.A{IP: net.ParseIP("93.184.216.34")}}}
	aSig := sign(t, cpriv, childKey, "example.com.", aRecords, dnsmsg.TypeA)

	toRecord := func(sig *dnsmsg.RRSIG, name string) dnsmsg.Record {
		return dnsmsg.Record{Name: name, Type: dnsmsg.TypeRRSIG, Class: dnsmsg.ClassINET, Data: sig}
	}

	fq := &fakeQuerier{answers: map[memoKey]*dnsmsg.Message{
		{name: ".", rrtype: dnsmsg.TypeDNSKEY}: {
			Answer: append(append([]dnsmsg.Record{}, rootDNSKEYs...), toRecord(rootSig, ".")),
		},
		{name: "example.com.", rrtype: dnsmsg.TypeDS}: {
			Answer: append(append([]dnsmsg.Record{}, dsRecords...), toRecord(dsSig, "example.com.")),
		},
		{name: "example.com.", rrtype: dnsmsg.TypeDNSKEY}: {
			Answer: append(append([]dnsmsg.Record{}, childDNSKEYs...), toRecord(childSig, "example.com.")),
		},
	}}

	anchors := NewTrustAnchorStore()
	rootDS, err := ComputeDS(".", root.ksk, DigestSHA256)
	require.NoError(t, err)
	require.NoError(t, anchors.SetAnchor(".", rootDS.KeyTag, AlgorithmED25519, DigestSHA256, hexEncode(rootDS.Digest)))

	v := NewValidator(anchors, fq)
	_, err = v.VerifyRRset(context.Background(), "www.example.com.", dnsmsg.TypeA, aRecords, []*dnsmsg.RRSIG{aSig})
	require.NoError(t, err)
}

func hexEncode(b []byte) string {
	const hexDigits = "0123456789ABCDEF"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexDigits[c>>4]
		out[i*2+1] = hexDigits[c&0xF]
	}
	return string(out)
}
