package dnssec

import (
	"bytes"
	"sort"

	"github.com/hlandau/dnsval/dnsmsg"
)

// CanonicalRRset sorts an rrset into RFC 4034 section 6.3 canonical order:
// ascending by the canonical wire encoding of each record's RDATA. Ties
// (duplicate RDATA) keep their relative order.
func CanonicalRRset(rrset []dnsmsg.Record) ([]dnsmsg.Record, error) {
	sorted := make([]dnsmsg.Record, len(rrset))
	copy(sorted, rrset)

	encoded := make([][]byte, len(sorted))
	for i, rr := range sorted {
		buf, err := canonicalRdata(rr.Data)
		if err != nil {
			return nil, err
		}
		encoded[i] = buf
	}

	idx := make([]int, len(sorted))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return bytes.Compare(encoded[idx[i]], encoded[idx[j]]) < 0
	})

	out := make([]dnsmsg.Record, len(sorted))
	for i, j := range idx {
		out[i] = sorted[j]
	}
	return out, nil
}

func canonicalRdata(d dnsmsg.Rdata) ([]byte, error) {
	return dnsmsg.EncodeRdata(d, true)
}

// BuildSignedData constructs the octet stream an RRSIG signs, per RFC 4034
// section 3.1.8.1: the RRSIG RDATA minus the signature itself, followed by
// every record in the rrset, each written in canonical form with its TTL
// replaced by the RRSIG's original TTL.
func BuildSignedData(rrsig *dnsmsg.RRSIG, rrset []dnsmsg.Record) ([]byte, error) {
	var buf bytes.Buffer

	sigField := &dnsmsg.RRSIG{
		TypeCovered: rrsig.TypeCovered,
		Algorithm:   rrsig.Algorithm,
		Labels:      rrsig.Labels,
		OriginalTTL: rrsig.OriginalTTL,
		Expiration:  rrsig.Expiration,
		Inception:   rrsig.Inception,
		KeyTag:      rrsig.KeyTag,
		SignerName:  rrsig.SignerName,
	}
	rdata, err := dnsmsg.EncodeRdata(sigField, true)
	if err != nil {
		return nil, err
	}
	buf.Write(rdata)

	sorted, err := CanonicalRRset(rrset)
	if err != nil {
		return nil, err
	}
	for _, rr := range sorted {
		// RFC 4035 section 5.3.2: a wildcard-synthesized answer must be
		// hashed under the wildcard owner the zone actually signed
		// ("*.example.com."), not the query name it was expanded to.
		rr.Name = dnsmsg.WildcardExpandedOwner(rr.Name, int(rrsig.Labels))
		rec, err := dnsmsg.CanonicalRecordBytes(rr, rrsig.OriginalTTL)
		if err != nil {
			return nil, err
		}
		buf.Write(rec)
	}

	return buf.Bytes(), nil
}
