package dnsmsg

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
)

// Resource record type codes. Only the subset this package needs to
// interpret structurally is enumerated; anything else decodes as Opaque.
const (
	TypeA     uint16 = 1
	TypeNS    uint16 = 2
	TypeCNAME uint16 = 5
	TypeSOA   uint16 = 6
	TypePTR   uint16 = 12
	TypeMX    uint16 = 15
	TypeTXT   uint16 = 16
	TypeAAAA  uint16 = 28
	TypeOPT   uint16 = 41
	TypeDS    uint16 = 43
	TypeRRSIG uint16 = 46
	TypeNSEC  uint16 = 47
	TypeDNSKEY uint16 = 48
	TypeNSEC3 uint16 = 50
)

// Class codes.
const (
	ClassINET uint16 = 1
	ClassANY  uint16 = 255
)

var ErrUnexpectedRdata = errors.New("dnsmsg: rdata does not match expected type")

// Rdata is a tagged variant over resource record data. Concrete types
// implement it; unrecognized wire types decode to Opaque so that no
// record is ever dropped silently.
type Rdata interface {
	// Type returns the RR type code this rdata belongs to.
	Type() uint16
	// pack appends the wire-format RDATA (not including the owner name,
	// type, class, TTL or RDLENGTH) to buf.
	pack(buf []byte, compress map[string]int, canonical bool) ([]byte, error)
}

// A is an IPv4 address record.
type A struct{ IP net.IP }

func (r *A) Type() uint16 { return TypeA }
func (r *A) pack(buf []byte, _ map[string]int, _ bool) ([]byte, error) {
	ip4 := r.IP.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("dnsmsg: A record requires an IPv4 address, got %v", r.IP)
	}
	return append(buf, ip4...), nil
}

// AAAA is an IPv6 address record.
type AAAA struct{ IP net.IP }

func (r *AAAA) Type() uint16 { return TypeAAAA }
func (r *AAAA) pack(buf []byte, _ map[string]int, _ bool) ([]byte, error) {
	ip6 := r.IP.To16()
	if ip6 == nil {
		return nil, fmt.Errorf("dnsmsg: AAAA record requires an IPv6 address, got %v", r.IP)
	}
	return append(buf, ip6...), nil
}

// NS is a name server delegation record.
type NS struct{ Target string }

func (r *NS) Type() uint16 { return TypeNS }
func (r *NS) pack(buf []byte, compress map[string]int, canonical bool) ([]byte, error) {
	return encodeName(buf, r.Target, compress, canonical)
}

// CNAME is a canonical name alias record.
type CNAME struct{ Target string }

func (r *CNAME) Type() uint16 { return TypeCNAME }
func (r *CNAME) pack(buf []byte, compress map[string]int, canonical bool) ([]byte, error) {
	return encodeName(buf, r.Target, compress, canonical)
}

// PTR is a pointer record, used for reverse lookups and service discovery.
type PTR struct{ Target string }

func (r *PTR) Type() uint16 { return TypePTR }
func (r *PTR) pack(buf []byte, compress map[string]int, canonical bool) ([]byte, error) {
	return encodeName(buf, r.Target, compress, canonical)
}

// TXT is a free-form text record, stored as a sequence of character strings.
type TXT struct{ Strings []string }

func (r *TXT) Type() uint16 { return TypeTXT }
func (r *TXT) pack(buf []byte, _ map[string]int, _ bool) ([]byte, error) {
	for _, s := range r.Strings {
		for len(s) > 255 {
			buf = append(buf, 255)
			buf = append(buf, s[:255]...)
			s = s[255:]
		}
		buf = append(buf, byte(len(s)))
		buf = append(buf, s...)
	}
	return buf, nil
}

// DNSKEY carries a zone's public signing key material (RFC 4034 section 2).
type DNSKEY struct {
	Flags     uint16
	Protocol  uint8
	Algorithm uint8
	PublicKey []byte
}

// Flag bits within DNSKEY.Flags.
const (
	DNSKEYFlagSecureEntryPoint uint16 = 1 << 0
	DNSKEYFlagRevoke           uint16 = 1 << 7
	DNSKEYFlagZoneKey          uint16 = 1 << 8
)

func (k *DNSKEY) ZoneKey() bool  { return k.Flags&DNSKEYFlagZoneKey != 0 }
func (k *DNSKEY) SEP() bool      { return k.Flags&DNSKEYFlagSecureEntryPoint != 0 }
func (k *DNSKEY) Revoked() bool  { return k.Flags&DNSKEYFlagRevoke != 0 }

func (r *DNSKEY) Type() uint16 { return TypeDNSKEY }
func (r *DNSKEY) pack(buf []byte, _ map[string]int, _ bool) ([]byte, error) {
	buf = binary.BigEndian.AppendUint16(buf, r.Flags)
	buf = append(buf, r.Protocol, r.Algorithm)
	return append(buf, r.PublicKey...), nil
}

// DS (Delegation Signer) links a parent zone's trust to a child zone's
// DNSKEY by digest (RFC 4034 section 5).
type DS struct {
	KeyTag     uint16
	Algorithm  uint8
	DigestType uint8
	Digest     []byte
}

func (r *DS) Type() uint16 { return TypeDS }
func (r *DS) pack(buf []byte, _ map[string]int, _ bool) ([]byte, error) {
	buf = binary.BigEndian.AppendUint16(buf, r.KeyTag)
	buf = append(buf, r.Algorithm, r.DigestType)
	return append(buf, r.Digest...), nil
}

// RRSIG is a signature over an rrset (RFC 4034 section 3), the "SIG"
// variant referred to throughout the validator.
type RRSIG struct {
	TypeCovered uint16
	Algorithm   uint8
	Labels      uint8
	OriginalTTL uint32
	Expiration  uint32
	Inception   uint32
	KeyTag      uint16
	SignerName  string
	Signature   []byte
}

func (r *RRSIG) Type() uint16 { return TypeRRSIG }
func (r *RRSIG) pack(buf []byte, _ map[string]int, canonical bool) ([]byte, error) {
	buf = binary.BigEndian.AppendUint16(buf, r.TypeCovered)
	buf = append(buf, r.Algorithm, r.Labels)
	buf = binary.BigEndian.AppendUint32(buf, r.OriginalTTL)
	buf = binary.BigEndian.AppendUint32(buf, r.Expiration)
	buf = binary.BigEndian.AppendUint32(buf, r.Inception)
	buf = binary.BigEndian.AppendUint16(buf, r.KeyTag)
	var err error
	buf, err = encodeName(buf, r.SignerName, nil, canonical)
	if err != nil {
		return nil, err
	}
	return append(buf, r.Signature...), nil
}

// Opaque is the fallback rdata for any record type this package does not
// interpret structurally. The raw RDATA bytes are preserved so that an
// opaque rrset can still be hashed for signature verification, per the
// "unknown rdata type" edge case: canonical form must still be derivable
// from the bytes as received on the wire (no name decompression is
// attempted inside opaque rdata, which matches RFC 4034 section 6.2 --
// only a closed set of legacy types require it, and this client does not
// claim to validate those).
type Opaque struct {
	RRType uint16
	Raw    []byte
}

func (r *Opaque) Type() uint16 { return r.RRType }
func (r *Opaque) pack(buf []byte, _ map[string]int, _ bool) ([]byte, error) {
	return append(buf, r.Raw...), nil
}

// EncodeRdata returns the wire-format RDATA for d on its own, with no
// owner name, type, class, TTL or RDLENGTH prefix. canonical selects RFC
// 4034 section 6.2 canonical form (lowercased names, no compression) for
// any embedded domain names.
func EncodeRdata(d Rdata, canonical bool) ([]byte, error) {
	return d.pack(nil, nil, canonical)
}

// decodeNameRdata decodes a single compressed domain name occupying the
// entire RDATA of a name-bearing record (NS, CNAME, PTR), rejecting a name
// whose wire encoding runs past the record's declared RDLENGTH the same
// way decodeRdata's RRSIG case already does.
func decodeNameRdata(data []byte, offset, end int, what string) (string, error) {
	name, nameEnd, err := decodeName(data, offset)
	if err != nil {
		return "", err
	}
	if nameEnd > end {
		return "", fmt.Errorf("dnsmsg: %s target overruns rdata", what)
	}
	return name, nil
}

// decodeRdata dispatches on rrtype to parse the RDATA found at
// data[offset:offset+rdlength].
func decodeRdata(rrtype uint16, data []byte, offset, rdlength int) (Rdata, error) {
	end := offset + rdlength
	if end > len(data) {
		return nil, ErrShortBuffer
	}
	body := data[offset:end]

	switch rrtype {
	case TypeA:
		if len(body) != 4 {
			return nil, fmt.Errorf("dnsmsg: short A rdata: %d bytes", len(body))
		}
		ip := make(net.IP, 4)
		copy(ip, body)
		return &A{IP: ip}, nil

	case TypeAAAA:
		if len(body) != 16 {
			return nil, fmt.Errorf("dnsmsg: short AAAA rdata: %d bytes", len(body))
		}
		ip := make(net.IP, 16)
		copy(ip, body)
		return &AAAA{IP: ip}, nil

	case TypeNS:
		name, err := decodeNameRdata(data, offset, end, "NS")
		if err != nil {
			return nil, err
		}
		return &NS{Target: name}, nil

	case TypeCNAME:
		name, err := decodeNameRdata(data, offset, end, "CNAME")
		if err != nil {
			return nil, err
		}
		return &CNAME{Target: name}, nil

	case TypePTR:
		name, err := decodeNameRdata(data, offset, end, "PTR")
		if err != nil {
			return nil, err
		}
		return &PTR{Target: name}, nil

	case TypeTXT:
		var strs []string
		for i := 0; i < len(body); {
			n := int(body[i])
			i++
			if i+n > len(body) {
				return nil, errors.New("dnsmsg: truncated TXT character-string")
			}
			strs = append(strs, string(body[i:i+n]))
			i += n
		}
		return &TXT{Strings: strs}, nil

	case TypeDNSKEY:
		if len(body) < 4 {
			return nil, errors.New("dnsmsg: truncated DNSKEY rdata")
		}
		pk := make([]byte, len(body)-4)
		copy(pk, body[4:])
		return &DNSKEY{
			Flags:     binary.BigEndian.Uint16(body[0:2]),
			Protocol:  body[2],
			Algorithm: body[3],
			PublicKey: pk,
		}, nil

	case TypeDS:
		if len(body) < 4 {
			return nil, errors.New("dnsmsg: truncated DS rdata")
		}
		digest := make([]byte, len(body)-4)
		copy(digest, body[4:])
		return &DS{
			KeyTag:     binary.BigEndian.Uint16(body[0:2]),
			Algorithm:  body[2],
			DigestType: body[3],
			Digest:     digest,
		}, nil

	case TypeRRSIG:
		if len(body) < 18 {
			return nil, errors.New("dnsmsg: truncated RRSIG rdata")
		}
		signerName, nameEnd, err := decodeName(data, offset+18)
		if err != nil {
			return nil, err
		}
		sigStart := nameEnd - offset
		if sigStart < 0 || sigStart > len(body) {
			return nil, errors.New("dnsmsg: RRSIG signer name overruns rdata")
		}
		sig := make([]byte, len(body)-sigStart)
		copy(sig, body[sigStart:])
		return &RRSIG{
			TypeCovered: binary.BigEndian.Uint16(body[0:2]),
			Algorithm:   body[2],
			Labels:      body[3],
			OriginalTTL: binary.BigEndian.Uint32(body[4:8]),
			Expiration:  binary.BigEndian.Uint32(body[8:12]),
			Inception:   binary.BigEndian.Uint32(body[12:16]),
			KeyTag:      binary.BigEndian.Uint16(body[16:18]),
			SignerName:  signerName,
			Signature:   sig,
		}, nil

	default:
		raw := make([]byte, len(body))
		copy(raw, body)
		return &Opaque{RRType: rrtype, Raw: raw}, nil
	}
}
