package dnssec

import (
	"encoding/hex"
	"errors"
	"sync"

	"github.com/hlandau/dnsval/dnsmsg"
)

var ErrUnknownAnchor = errors.New("dnssec: no trust anchor configured for this zone")

// TrustAnchorStore holds the DS records a validator is configured to
// trust without further proof, keyed by owner zone. In practice this
// holds a single entry for the root zone, but nothing here assumes that:
// a private deployment validating an internal zone directly can anchor
// at that zone instead of (or in addition to) the root.
type TrustAnchorStore struct {
	mu    sync.RWMutex
	byZone map[string][]*dnsmsg.DS
}

// NewTrustAnchorStore returns an empty store. Use SetAnchor or
// LoadDefaultRootAnchor to populate it before validating anything.
func NewTrustAnchorStore() *TrustAnchorStore {
	return &TrustAnchorStore{byZone: make(map[string][]*dnsmsg.DS)}
}

// SetAnchor installs a DS record as a trust anchor for owner, replacing
// any anchor with the same key tag already configured for that zone.
func (s *TrustAnchorStore) SetAnchor(owner string, keyTag uint16, algorithm Algorithm, digestType DigestType, digestHex string) error {
	digest, err := hex.DecodeString(digestHex)
	if err != nil {
		return err
	}
	ds := &dnsmsg.DS{
		KeyTag:     keyTag,
		Algorithm:  uint8(algorithm),
		DigestType: uint8(digestType),
		Digest:     digest,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	owner = dnsmsg.Fqdn(owner)
	existing := s.byZone[owner]
	for i, e := range existing {
		if e.KeyTag == ds.KeyTag {
			existing[i] = ds
			return nil
		}
	}
	s.byZone[owner] = append(existing, ds)
	return nil
}

// Anchors returns the trust anchors configured for owner, or nil if none
// are configured.
func (s *TrustAnchorStore) Anchors(owner string) []*dnsmsg.DS {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byZone[dnsmsg.Fqdn(owner)]
}

// VerifyAgainstAnchor reports whether key is authenticated directly by a
// configured trust anchor for owner (as opposed to by a DS record fetched
// from a parent zone during recursion).
func (s *TrustAnchorStore) VerifyAgainstAnchor(owner string, key *dnsmsg.DNSKEY) bool {
	for _, ds := range s.Anchors(owner) {
		if VerifyDS(ds, owner, key) {
			return true
		}
	}
	return false
}

// defaultRootAnchor is IANA's 2017 root zone KSK (tag 20326, RSASHA256),
// the long-lived anchor nearly every validator ships as a fallback
// default. Operators that need to roll the anchor call SetAnchor with the
// replacement before the 2017 key is retired.
const (
	defaultRootAnchorOwner      = "."
	defaultRootAnchorKeyTag     = 20326
	defaultRootAnchorAlgorithm  = AlgorithmRSASHA256
	defaultRootAnchorDigestType = DigestSHA256
	defaultRootAnchorDigestHex  = "E06D44B80B8F1D39A95C0B0D7C65D08458E880409BBC683457104237C7F8EC8D"
)

// LoadDefaultRootAnchor installs the built-in IANA root KSK trust anchor.
// Callers validating against a root other than the real DNS root (e.g. in
// a test harness) should use SetAnchor instead.
func (s *TrustAnchorStore) LoadDefaultRootAnchor() error {
	return s.SetAnchor(defaultRootAnchorOwner, defaultRootAnchorKeyTag, defaultRootAnchorAlgorithm, defaultRootAnchorDigestType, defaultRootAnchorDigestHex)
}
