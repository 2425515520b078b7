// Package dnssec implements DNSSEC cryptographic primitives and the
// recursive chain-of-trust validator: key tag computation, DS digest
// computation and verification, RRSIG signature verification, and the
// walk from a signed answer up to a configured trust anchor.
package dnssec

import (
	"encoding/binary"

	"github.com/hlandau/dnsval/dnsmsg"
)

// Algorithm identifies a DNSSEC signing algorithm (RFC 8624 and the IANA
// "DNSSEC Algorithm Numbers" registry). Only the algorithms a modern
// resolver is expected to verify are named here, plus RSAMD5, which is
// named only for its key tag special case and is never verified; anything
// else is rejected with ErrUnsupportedAlgorithm rather than silently
// accepted.
type Algorithm uint8

const (
	AlgorithmRSAMD5     Algorithm = 1
	AlgorithmRSASHA1    Algorithm = 5
	AlgorithmRSASHA256  Algorithm = 8
	AlgorithmRSASHA512  Algorithm = 10
	AlgorithmECDSAP256  Algorithm = 13
	AlgorithmECDSAP384  Algorithm = 14
	AlgorithmED25519    Algorithm = 15
)

// DigestType identifies a DS record's digest algorithm (RFC 4034 section
// 5.1.4, extended by RFC 4509 and RFC 6605).
type DigestType uint8

const (
	DigestSHA1   DigestType = 1
	DigestSHA256 DigestType = 2
	DigestSHA384 DigestType = 4
)

// KeyTag computes the key tag for a DNSKEY record per RFC 4034 Appendix
// B.1. The tag is a cheap hint used to narrow down which DNSKEY an RRSIG
// was produced with before attempting full verification.
func KeyTag(key *dnsmsg.DNSKEY) uint16 {
	if Algorithm(key.Algorithm) == AlgorithmRSAMD5 {
		return keyTagRSAMD5(key)
	}

	wire := make([]byte, 4+len(key.PublicKey))
	binary.BigEndian.PutUint16(wire[0:2], key.Flags)
	wire[2] = key.Protocol
	wire[3] = key.Algorithm
	copy(wire[4:], key.PublicKey)

	var ac uint32
	for i := 0; i < len(wire); i++ {
		if i&1 == 0 {
			ac += uint32(wire[i]) << 8
		} else {
			ac += uint32(wire[i])
		}
	}
	ac += ac >> 16
	return uint16(ac & 0xFFFF)
}

// keyTagRSAMD5 is the RFC 4034 Appendix B.1 special case for algorithm 1:
// the tag is the last two octets of the public key, not the accumulator
// computed for every other algorithm.
func keyTagRSAMD5(key *dnsmsg.DNSKEY) uint16 {
	if len(key.PublicKey) < 2 {
		return 0
	}
	return binary.BigEndian.Uint16(key.PublicKey[len(key.PublicKey)-2:])
}

// IsKSK reports whether key is usable as a key-signing key: it must be a
// zone key and carry the secure entry point bit (RFC 4034 section 2.1.1).
// ValidateDelegation only accepts delegations through KSKs; the Validator's
// chain walk does not require the secure entry point bit.
func IsKSK(key *dnsmsg.DNSKEY) bool {
	return key.ZoneKey() && key.SEP()
}
