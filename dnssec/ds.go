package dnssec

import (
	"bytes"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"errors"

	"github.com/hlandau/dnsval/dnsmsg"
)

var ErrUnsupportedDigestType = errors.New("dnssec: unsupported digest type")

// ComputeDS builds the DS record a parent zone would publish to vouch for
// key, owned by owner.
func ComputeDS(owner string, key *dnsmsg.DNSKEY, digestType DigestType) (*dnsmsg.DS, error) {
	digest, err := computeDSDigest(owner, key, digestType)
	if err != nil {
		return nil, err
	}
	return &dnsmsg.DS{
		KeyTag:     KeyTag(key),
		Algorithm:  key.Algorithm,
		DigestType: uint8(digestType),
		Digest:     digest,
	}, nil
}

// computeDSDigest computes digest_algorithm(canonical(owner) || DNSKEY
// RDATA), per RFC 4034 section 5.1.4.
func computeDSDigest(owner string, key *dnsmsg.DNSKEY, digestType DigestType) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(dnsmsg.CanonicalName(owner))
	binary.Write(&buf, binary.BigEndian, key.Flags)
	buf.WriteByte(key.Protocol)
	buf.WriteByte(key.Algorithm)
	buf.Write(key.PublicKey)
	data := buf.Bytes()

	switch digestType {
	case DigestSHA1:
		h := sha1.Sum(data)
		return h[:], nil
	case DigestSHA256:
		h := sha256.Sum256(data)
		return h[:], nil
	case DigestSHA384:
		h := sha512.Sum384(data)
		return h[:], nil
	default:
		return nil, ErrUnsupportedDigestType
	}
}

// VerifyDS reports whether ds correctly authenticates key, the DNSKEY
// owned by owner.
func VerifyDS(ds *dnsmsg.DS, owner string, key *dnsmsg.DNSKEY) bool {
	if ds.KeyTag != KeyTag(key) {
		return false
	}
	if Algorithm(ds.Algorithm) != Algorithm(key.Algorithm) {
		return false
	}
	digest, err := computeDSDigest(owner, key, DigestType(ds.DigestType))
	if err != nil {
		return false
	}
	return bytes.Equal(ds.Digest, digest)
}

// ValidateDelegation returns a DNSKEY from keys that is both a KSK and
// authenticated by some record in dsRecords, establishing that owner's
// zone is a legitimate continuation of the parent's chain of trust. The DS
// records are tried in order, and for the first one that authenticates any
// KSK, the first such key in keys is returned.
func ValidateDelegation(dsRecords []*dnsmsg.DS, owner string, keys []*dnsmsg.DNSKEY) (*dnsmsg.DNSKEY, error) {
	for _, ds := range dsRecords {
		for _, key := range keys {
			if IsKSK(key) && VerifyDS(ds, owner, key) {
				return key, nil
			}
		}
	}
	return nil, ErrNoDS
}
