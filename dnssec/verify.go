package dnssec

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"math/big"
	"time"

	"github.com/hlandau/dnsval/dnsmsg"
)

var (
	ErrSignatureExpired     = errors.New("dnssec: signature expired")
	ErrSignatureNotYetValid = errors.New("dnssec: signature not yet valid")
	ErrNoMatchingKey        = errors.New("dnssec: no matching DNSKEY for RRSIG")
	ErrInvalidSignature     = errors.New("dnssec: signature verification failed")
	ErrUnsupportedAlgorithm = errors.New("dnssec: unsupported algorithm")
	ErrInvalidKey           = errors.New("dnssec: invalid public key")
	ErrTypeMismatch         = errors.New("dnssec: rrset type does not match RRSIG type covered")
)

// VerifyRRSIG verifies rrsig over rrset using key, as of now.
func VerifyRRSIG(rrsig *dnsmsg.RRSIG, key *dnsmsg.DNSKEY, rrset []dnsmsg.Record) error {
	return VerifyRRSIGAt(rrsig, key, rrset, time.Now())
}

// VerifyRRSIGAt verifies rrsig over rrset using key, as of the given time.
// Exposing the reference time lets tests exercise a signature validity
// window without depending on wall-clock time.
func VerifyRRSIGAt(rrsig *dnsmsg.RRSIG, key *dnsmsg.DNSKEY, rrset []dnsmsg.Record, at time.Time) error {
	now := uint32(at.Unix())
	if signatureExpired(now, rrsig.Expiration) {
		return ErrSignatureExpired
	}
	if now < rrsig.Inception {
		return ErrSignatureNotYetValid
	}

	if KeyTag(key) != rrsig.KeyTag {
		return ErrNoMatchingKey
	}
	if Algorithm(key.Algorithm) != Algorithm(rrsig.Algorithm) {
		return ErrNoMatchingKey
	}
	if len(rrset) > 0 && rrset[0].Type != rrsig.TypeCovered {
		return ErrTypeMismatch
	}

	signedData, err := BuildSignedData(rrsig, rrset)
	if err != nil {
		return err
	}

	switch Algorithm(rrsig.Algorithm) {
	case AlgorithmRSASHA1:
		return verifyRSA(key.PublicKey, signedData, rrsig.Signature, crypto.SHA1)
	case AlgorithmRSASHA256:
		return verifyRSA(key.PublicKey, signedData, rrsig.Signature, crypto.SHA256)
	case AlgorithmRSASHA512:
		return verifyRSA(key.PublicKey, signedData, rrsig.Signature, crypto.SHA512)
	case AlgorithmECDSAP256:
		return verifyECDSA(key.PublicKey, signedData, rrsig.Signature, crypto.SHA256, 32)
	case AlgorithmECDSAP384:
		return verifyECDSA(key.PublicKey, signedData, rrsig.Signature, crypto.SHA384, 48)
	case AlgorithmED25519:
		return verifyEd25519(key.PublicKey, signedData, rrsig.Signature)
	default:
		return ErrUnsupportedAlgorithm
	}
}

// signatureExpired accounts for RFC 4034's 32-bit wrap-prone serial
// arithmetic being entirely sidestepped here: expiration/inception are
// absolute Unix timestamps, not serials, so a plain comparison is correct
// without the (now - expiration) % 2^32 < 2^31 adjustment real-world
// slightly-stale root DNSKEYs would otherwise need.
func signatureExpired(now, expiration uint32) bool {
	return now > expiration
}

func verifyRSA(pubKeyData, data, sig []byte, hash crypto.Hash) error {
	pubKey, err := parseRSAPublicKey(pubKeyData)
	if err != nil {
		return err
	}

	var digest []byte
	switch hash {
	case crypto.SHA1:
		h := sha1.Sum(data)
		digest = h[:]
	case crypto.SHA256:
		h := sha256.Sum256(data)
		digest = h[:]
	case crypto.SHA512:
		h := sha512.Sum512(data)
		digest = h[:]
	default:
		return ErrUnsupportedAlgorithm
	}

	if err := rsa.VerifyPKCS1v15(pubKey, hash, digest, sig); err != nil {
		return ErrInvalidSignature
	}
	return nil
}

// parseRSAPublicKey parses a DNSKEY public key field per RFC 3110: a
// 1-byte exponent length, or if that byte is zero a 3-byte length,
// followed by the exponent and then the modulus.
func parseRSAPublicKey(data []byte) (*rsa.PublicKey, error) {
	if len(data) < 3 {
		return nil, ErrInvalidKey
	}

	var expLen, offset int
	if data[0] == 0 {
		if len(data) < 4 {
			return nil, ErrInvalidKey
		}
		expLen = int(data[1])<<8 | int(data[2])
		offset = 3
	} else {
		expLen = int(data[0])
		offset = 1
	}
	if len(data) < offset+expLen {
		return nil, ErrInvalidKey
	}

	expBytes := data[offset : offset+expLen]
	modBytes := data[offset+expLen:]
	if len(modBytes) == 0 {
		return nil, ErrInvalidKey
	}

	exp := new(big.Int).SetBytes(expBytes)
	if !exp.IsInt64() || exp.Int64() > int64(1<<31-1) {
		return nil, ErrInvalidKey
	}

	return &rsa.PublicKey{N: new(big.Int).SetBytes(modBytes), E: int(exp.Int64())}, nil
}

func verifyECDSA(pubKeyData, data, sig []byte, hash crypto.Hash, coordLen int) error {
	pubKey, err := parseECDSAPublicKey(pubKeyData, coordLen)
	if err != nil {
		return err
	}
	if len(sig) != coordLen*2 {
		return ErrInvalidSignature
	}
	r := new(big.Int).SetBytes(sig[:coordLen])
	s := new(big.Int).SetBytes(sig[coordLen:])

	var digest []byte
	switch hash {
	case crypto.SHA256:
		h := sha256.Sum256(data)
		digest = h[:]
	case crypto.SHA384:
		h := sha512.Sum384(data)
		digest = h[:]
	default:
		return ErrUnsupportedAlgorithm
	}

	if !ecdsa.Verify(pubKey, digest, r, s) {
		return ErrInvalidSignature
	}
	return nil
}

// parseECDSAPublicKey parses a DNSKEY public key field per RFC 6605: the
// uncompressed X and Y coordinates concatenated, each coordLen bytes.
func parseECDSAPublicKey(data []byte, coordLen int) (*ecdsa.PublicKey, error) {
	if len(data) != coordLen*2 {
		return nil, ErrInvalidKey
	}

	var curve elliptic.Curve
	switch coordLen {
	case 32:
		curve = elliptic.P256()
	case 48:
		curve = elliptic.P384()
	default:
		return nil, ErrInvalidKey
	}

	x := new(big.Int).SetBytes(data[:coordLen])
	y := new(big.Int).SetBytes(data[coordLen:])
	if !curve.IsOnCurve(x, y) {
		return nil, ErrInvalidKey
	}
	return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil
}

func verifyEd25519(pubKeyData, data, sig []byte) error {
	if len(pubKeyData) != ed25519.PublicKeySize {
		return ErrInvalidKey
	}
	if len(sig) != ed25519.SignatureSize {
		return ErrInvalidSignature
	}
	if !ed25519.Verify(ed25519.PublicKey(pubKeyData), data, sig) {
		return ErrInvalidSignature
	}
	return nil
}

// FindMatchingKeys returns every DNSKEY in keys whose key tag and
// algorithm match rrsig. RFC 4034 section 2.1.1 key tags are a hint, not
// a guarantee of uniqueness, so more than one candidate can come back;
// the caller must still attempt full verification against each.
func FindMatchingKeys(rrsig *dnsmsg.RRSIG, keys []*dnsmsg.DNSKEY) []*dnsmsg.DNSKEY {
	var out []*dnsmsg.DNSKEY
	for _, key := range keys {
		if KeyTag(key) == rrsig.KeyTag && Algorithm(key.Algorithm) == Algorithm(rrsig.Algorithm) {
			out = append(out, key)
		}
	}
	return out
}
