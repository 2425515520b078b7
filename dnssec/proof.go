package dnssec

import "github.com/hlandau/dnsval/dnsmsg"

// Proof is the ordered sequence of records a successful validation rests
// on: the verified rrset itself, followed by the RRSIG and DNSKEY/DS
// records consulted at each zone walked while climbing the chain of
// trust, ending with the DNSKEY that was matched directly against a
// configured trust anchor.
type Proof []dnsmsg.Record

// rrsigRecord wraps sig as a Record owned by name, the way it appeared in
// the answer it was drawn from, so it can be appended to a Proof
// alongside the rrset it covers.
func rrsigRecord(name string, sig *dnsmsg.RRSIG) dnsmsg.Record {
	return dnsmsg.Record{
		Name:  name,
		Type:  dnsmsg.TypeRRSIG,
		Class: dnsmsg.ClassINET,
		TTL:   sig.OriginalTTL,
		Data:  sig,
	}
}

// dnskeyRecord wraps key as a Record owned by zone, the way it appeared in
// the DNSKEY rrset it was drawn from.
func dnskeyRecord(zone string, key *dnsmsg.DNSKEY) dnsmsg.Record {
	return dnsmsg.Record{Name: zone, Type: dnsmsg.TypeDNSKEY, Class: dnsmsg.ClassINET, Data: key}
}
