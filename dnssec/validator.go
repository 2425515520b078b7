package dnssec

import (
	"context"
	"time"

	"github.com/heimdalr/dag"
	"github.com/hlandau/dnsval/dnsmsg"
)

// Querier issues a single DNS query and returns the decoded response. The
// validator never retries or follows referrals itself; that belongs to
// the transport/query-engine layer. A Querier is expected to set the DO
// bit and request a large enough UDP payload to carry RRSIGs.
type Querier interface {
	Query(ctx context.Context, name string, rrtype uint16) (*dnsmsg.Message, error)
}

// MaxChainDepth bounds how many zones a single validation may walk
// through before giving up, independent of the cycle detector: a
// pathological but acyclic chain (a deep but legitimate-looking nest of
// delegations) must not be allowed to run forever either.
const MaxChainDepth = 32

// Validator walks the chain of trust from a signed rrset up to a
// configured trust anchor, verifying one RRSIG and one delegation at a
// time (RFC 4035 section 5).
type Validator struct {
	Anchors *TrustAnchorStore
	Querier Querier
	// Now, if set, overrides time.Now for signature validity checks.
	Now func() time.Time
}

// NewValidator returns a Validator that queries through q and trusts the
// anchors configured in anchors.
func NewValidator(anchors *TrustAnchorStore, q Querier) *Validator {
	return &Validator{Anchors: anchors, Querier: q}
}

func (v *Validator) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

// VerifyRRset verifies that rrset (owned by name, of type rrtype) is
// authentic: rrsigs must contain at least one signature over it, and the
// chain of trust from the signing DNSKEY up to a trust anchor must hold.
// On success it returns the Proof the validation rests on; on any break
// in the chain it returns the zone at which the break occurred wrapped
// in a ChainError.
func (v *Validator) VerifyRRset(ctx context.Context, name string, rrtype uint16, rrset []dnsmsg.Record, rrsigs []*dnsmsg.RRSIG) (Proof, error) {
	if len(rrsigs) == 0 {
		return nil, &ChainError{Zone: name, Err: ErrNoRRSIG}
	}

	scoped := &Validator{Anchors: v.Anchors, Querier: newMemoQuerier(v.Querier), Now: v.Now}
	d := dag.NewDAG()
	return scoped.verifyRRsetChain(ctx, d, name, rrtype, rrset, rrsigs, 0)
}

func (v *Validator) verifyRRsetChain(ctx context.Context, d *dag.DAG, name string, rrtype uint16, rrset []dnsmsg.Record, rrsigs []*dnsmsg.RRSIG, depth int) (Proof, error) {
	if depth > MaxChainDepth {
		return nil, &ChainError{Zone: name, Err: ErrChainTooDeep}
	}

	var lastErr error
	for _, rrsig := range rrsigs {
		if rrsig.TypeCovered != rrtype {
			continue
		}
		if !dnsmsg.IsAncestor(rrsig.SignerName, name) {
			continue
		}

		zsks, ksks, keyProof, err := v.authenticatedKeys(ctx, d, rrsig.SignerName, depth)
		if err != nil {
			lastErr = err
			continue
		}

		candidates := append(append([]*dnsmsg.DNSKEY(nil), zsks...), ksks...)
		for _, key := range FindMatchingKeys(rrsig, candidates) {
			if key.Revoked() || !key.ZoneKey() {
				continue
			}
			if err := VerifyRRSIGAt(rrsig, key, rrset, v.now()); err == nil {
				proof := append(append(Proof{}, rrset...), rrsigRecord(name, rrsig))
				proof = append(proof, keyProof...)
				return proof, nil
			}
		}
		lastErr = &ChainError{Zone: rrsig.SignerName, Err: ErrInvalidSignature}
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, &ChainError{Zone: name, Err: ErrNoRRSIG}
}

// authenticatedKeys fetches and authenticates the DNSKEY set published at
// zone, returning the zone-signing and key-signing keys separately.
// Authentication is itself a chain-of-trust walk: the DNSKEY rrset must
// be self-signed by one of its own zone keys (KSK or ZSK), and that key
// must in turn be vouched for either by a configured trust anchor or by a
// DS record published in the parent zone.
func (v *Validator) authenticatedKeys(ctx context.Context, d *dag.DAG, zone string, depth int) (zsks, ksks []*dnsmsg.DNSKEY, proof Proof, err error) {
	if addErr := addChainEdge(d, dnsmsg.Parent(zone), zone); addErr != nil {
		return nil, nil, nil, &ChainError{Zone: zone, Err: ErrChainTooDeep}
	}

	msg, err := v.Querier.Query(ctx, zone, dnsmsg.TypeDNSKEY)
	if err != nil {
		return nil, nil, nil, &ChainError{Zone: zone, Err: err}
	}
	dnskeys, rrsigs := splitRRSIGs(msg.Answer, zone, dnsmsg.TypeDNSKEY)
	if len(rrsigs) == 0 {
		return nil, nil, nil, &ChainError{Zone: zone, Err: ErrNoRRSIG}
	}

	for _, rr := range dnskeys {
		if k, ok := rr.Data.(*dnsmsg.DNSKEY); ok {
			if IsKSK(k) {
				ksks = append(ksks, k)
			} else if k.ZoneKey() {
				zsks = append(zsks, k)
			}
		}
	}
	if len(zsks) == 0 && len(ksks) == 0 {
		return nil, nil, nil, &ChainError{Zone: zone, Err: ErrNoDS}
	}

	dnskeyRecords := recordsFor(zone, dnsmsg.TypeDNSKEY, dnsmsg.ClassINET, msg.Answer)

	// The self-signature check is the same candidate search as an
	// ordinary rrset verification (spec.md's candidate loop applies
	// uniformly to every RRSIG, including this DNSKEY-covers-itself
	// case): any zone_key-flagged DNSKEY may be the one that signed the
	// set, not only ones also carrying the secure-entry-point flag. The
	// SEP/KSK split is only an optimization for the short-circuit base
	// case, not a requirement here.
	candidates := append(append([]*dnsmsg.DNSKEY(nil), zsks...), ksks...)
	var authenticatedKey *dnsmsg.DNSKEY
	for _, rrsig := range rrsigs {
		if rrsig.TypeCovered != dnsmsg.TypeDNSKEY {
			continue
		}
		for _, key := range FindMatchingKeys(rrsig, candidates) {
			if key.Revoked() {
				continue
			}
			if err := VerifyRRSIGAt(rrsig, key, dnskeyRecords, v.now()); err == nil {
				authenticatedKey = key
				break
			}
		}
		if authenticatedKey != nil {
			break
		}
	}
	if authenticatedKey == nil {
		return nil, nil, nil, &ChainError{Zone: zone, Err: ErrInvalidSignature}
	}

	// A configured anchor may cover the root, or (an operator validating
	// a private internal zone without delegation from the public root)
	// a non-root zone directly. Either way it terminates the walk: the
	// authenticated key itself is the last record in the proof.
	if v.Anchors.VerifyAgainstAnchor(zone, authenticatedKey) {
		return zsks, ksks, Proof{dnskeyRecord(zone, authenticatedKey)}, nil
	}
	if dnsmsg.IsRoot(zone) {
		return nil, nil, nil, &ChainError{Zone: zone, Err: ErrUnknownAnchor}
	}

	dsMsg, err := v.Querier.Query(ctx, zone, dnsmsg.TypeDS)
	if err != nil {
		return nil, nil, nil, &ChainError{Zone: zone, Err: err}
	}
	dsRecords, dsRRSIGs := splitRRSIGs(dsMsg.Answer, zone, dnsmsg.TypeDS)
	if len(dsRRSIGs) == 0 {
		return nil, nil, nil, &ChainError{Zone: zone, Err: ErrNoDS}
	}

	dsProof, err := v.verifyRRsetChain(ctx, d, zone, dnsmsg.TypeDS, recordsFor(zone, dnsmsg.TypeDS, dnsmsg.ClassINET, dsMsg.Answer), dsRRSIGs, depth+1)
	if err != nil {
		return nil, nil, nil, err
	}

	// The DS record must vouch for the specific key that signed the
	// DNSKEY rrset, per spec.md's verify_dnskey: "compare... to
	// DS.digest", not for some unrelated KSK that merely happens to be
	// published in the same zone. Deliberately not ValidateDelegation
	// (ds.go): that checks the DS against any KSK in the set, which is
	// exactly the confusion this loop exists to avoid.
	var matched bool
	for _, rr := range dsRecords {
		ds, ok := rr.Data.(*dnsmsg.DS)
		if !ok {
			continue
		}
		if VerifyDS(ds, zone, authenticatedKey) {
			matched = true
			break
		}
	}
	if !matched {
		return nil, nil, nil, &ChainError{Zone: zone, Err: ErrNoDS}
	}

	proof = append(Proof{dnskeyRecord(zone, authenticatedKey)}, dsProof...)
	return zsks, ksks, proof, nil
}

// zoneVertex implements dag.IDInterface so a zone's vertex ID in the
// chain-of-trust DAG is the zone name itself, not an auto-generated UUID.
type zoneVertex string

func (z zoneVertex) ID() string { return string(z) }

func addChainEdge(d *dag.DAG, parent, child string) error {
	if parent == child {
		return nil
	}
	if _, err := d.AddVertex(zoneVertex(parent)); err != nil {
		if _, dup := err.(dag.IDDuplicateError); !dup {
			return err
		}
	}
	if _, err := d.AddVertex(zoneVertex(child)); err != nil {
		if _, dup := err.(dag.IDDuplicateError); !dup {
			return err
		}
	}
	if err := d.AddEdge(parent, child); err != nil {
		if _, dup := err.(dag.EdgeDuplicateError); dup {
			return nil
		}
		return err
	}
	return nil
}

// splitRRSIGs separates the RRSIGs covering (name, rrtype) from the other
// records of that type within a single answer section.
func splitRRSIGs(answer []dnsmsg.Record, name string, rrtype uint16) ([]dnsmsg.Record, []*dnsmsg.RRSIG) {
	var records []dnsmsg.Record
	var sigs []*dnsmsg.RRSIG
	for _, rr := range answer {
		if !dnsmsg.EqualNames(rr.Name, name) {
			continue
		}
		if rr.Type == dnsmsg.TypeRRSIG {
			if sig, ok := rr.Data.(*dnsmsg.RRSIG); ok && sig.TypeCovered == rrtype {
				sigs = append(sigs, sig)
			}
			continue
		}
		if rr.Type == rrtype {
			records = append(records, rr)
		}
	}
	return records, sigs
}

func recordsFor(name string, rrtype, class uint16, answer []dnsmsg.Record) []dnsmsg.Record {
	var out []dnsmsg.Record
	for _, rr := range answer {
		if rr.Type == rrtype && rr.Class == class && dnsmsg.EqualNames(rr.Name, name) {
			out = append(out, rr)
		}
	}
	return out
}
