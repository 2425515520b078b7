package dnsmsg

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Opcodes (RFC 1035 section 4.1.1).
const OpcodeQuery uint8 = 0

// Response codes (RFC 1035 section 4.1.1, extended by RFC 2671/6891 for
// the upper 8 bits carried in the OPT record).
const (
	RcodeSuccess        uint8 = 0
	RcodeFormatError    uint8 = 1
	RcodeServerFailure  uint8 = 2
	RcodeNameError      uint8 = 3 // NXDOMAIN
	RcodeNotImplemented uint8 = 4
	RcodeRefused        uint8 = 5
)

// Header is the 12-byte fixed DNS message header.
type Header struct {
	ID                 uint16
	Response           bool
	Opcode             uint8
	Authoritative      bool
	Truncated          bool
	RecursionDesired   bool
	RecursionAvailable bool
	AuthenticData      bool // AD bit, RFC 4035 section 3.2.3
	CheckingDisabled   bool // CD bit, RFC 4035 section 3.2.2
	Rcode              uint8 // low 4 bits; OPT extends this to 12 bits
}

// Question is a single entry in the question section.
type Question struct {
	Name  string
	Type  uint16
	Class uint16
}

// Record is a single resource record, as found in the answer, authority or
// additional sections.
type Record struct {
	Name  string
	Type  uint16
	Class uint16
	TTL   uint32
	Data  Rdata
}

// EDNS carries the pseudo-OPT-record options negotiated per RFC 6891.
type EDNS struct {
	UDPSize    uint16
	DNSSECOK   bool // DO bit
	ExtRcode   uint8
	Version    uint8
}

// Message is a fully decoded DNS message.
type Message struct {
	Header     Header
	Question   []Question
	Answer     []Record
	Authority  []Record
	Additional []Record
	Edns       *EDNS // nil if no OPT record was present
}

// Rcode returns the full response code, combining the header's low 4 bits
// with the extended high bits carried in the OPT record, if present.
func (m *Message) Rcode() uint16 {
	rc := uint16(m.Header.Rcode)
	if m.Edns != nil {
		rc |= uint16(m.Edns.ExtRcode) << 4
	}
	return rc
}

var (
	ErrTooManyRecords = errors.New("dnsmsg: record count exceeds what the message can hold")
)

const headerSize = 12

// EncodeMessage serializes m to wire format. Name compression is applied
// across the question/answer/authority/additional sections as permitted by
// RFC 1035 section 4.1.4.
func EncodeMessage(m *Message) ([]byte, error) {
	buf := make([]byte, headerSize)

	binary.BigEndian.PutUint16(buf[0:2], m.Header.ID)
	var flags uint16
	if m.Header.Response {
		flags |= 1 << 15
	}
	flags |= uint16(m.Header.Opcode&0xF) << 11
	if m.Header.Authoritative {
		flags |= 1 << 10
	}
	if m.Header.Truncated {
		flags |= 1 << 9
	}
	if m.Header.RecursionDesired {
		flags |= 1 << 8
	}
	if m.Header.RecursionAvailable {
		flags |= 1 << 7
	}
	if m.Header.AuthenticData {
		flags |= 1 << 5
	}
	if m.Header.CheckingDisabled {
		flags |= 1 << 4
	}
	flags |= uint16(m.Header.Rcode & 0xF)
	binary.BigEndian.PutUint16(buf[2:4], flags)

	additional := m.Additional
	if m.Edns != nil {
		additional = append(append([]Record(nil), additional...), ednsRecord(m.Edns))
	}

	if len(m.Question) > 0xFFFF || len(m.Answer) > 0xFFFF || len(m.Authority) > 0xFFFF || len(additional) > 0xFFFF {
		return nil, ErrTooManyRecords
	}
	binary.BigEndian.PutUint16(buf[4:6], uint16(len(m.Question)))
	binary.BigEndian.PutUint16(buf[6:8], uint16(len(m.Answer)))
	binary.BigEndian.PutUint16(buf[8:10], uint16(len(m.Authority)))
	binary.BigEndian.PutUint16(buf[10:12], uint16(len(additional)))

	compress := make(map[string]int)
	var err error

	for _, q := range m.Question {
		buf, err = encodeName(buf, q.Name, compress, false)
		if err != nil {
			return nil, err
		}
		buf = binary.BigEndian.AppendUint16(buf, q.Type)
		buf = binary.BigEndian.AppendUint16(buf, q.Class)
	}

	for _, section := range [][]Record{m.Answer, m.Authority, additional} {
		for _, rr := range section {
			buf, err = encodeRecord(buf, rr, compress)
			if err != nil {
				return nil, err
			}
		}
	}

	return buf, nil
}

func encodeRecord(buf []byte, rr Record, compress map[string]int) ([]byte, error) {
	var err error
	buf, err = encodeName(buf, rr.Name, compress, false)
	if err != nil {
		return nil, err
	}
	buf = binary.BigEndian.AppendUint16(buf, rr.Type)
	buf = binary.BigEndian.AppendUint16(buf, rr.Class)
	buf = binary.BigEndian.AppendUint32(buf, rr.TTL)

	lenPos := len(buf)
	buf = binary.BigEndian.AppendUint16(buf, 0) // placeholder RDLENGTH

	rdStart := len(buf)
	if rr.Data != nil {
		buf, err = rr.Data.pack(buf, compress, false)
		if err != nil {
			return nil, err
		}
	}
	rdlen := len(buf) - rdStart
	if rdlen > 0xFFFF {
		return nil, fmt.Errorf("dnsmsg: rdata for %s exceeds 65535 bytes", rr.Name)
	}
	binary.BigEndian.PutUint16(buf[lenPos:lenPos+2], uint16(rdlen))
	return buf, nil
}

func ednsRecord(e *EDNS) Record {
	var ttl uint32
	ttl |= uint32(e.ExtRcode) << 24
	ttl |= uint32(e.Version) << 16
	if e.DNSSECOK {
		ttl |= 1 << 15
	}
	return Record{
		Name:  ".",
		Type:  TypeOPT,
		Class: e.UDPSize,
		TTL:   ttl,
		Data:  &Opaque{RRType: TypeOPT},
	}
}

// DecodeMessage parses a wire-format DNS message.
func DecodeMessage(data []byte) (*Message, error) {
	if len(data) < headerSize {
		return nil, ErrShortBuffer
	}
	m := &Message{}
	m.Header.ID = binary.BigEndian.Uint16(data[0:2])
	flags := binary.BigEndian.Uint16(data[2:4])
	m.Header.Response = flags&(1<<15) != 0
	m.Header.Opcode = uint8(flags>>11) & 0xF
	m.Header.Authoritative = flags&(1<<10) != 0
	m.Header.Truncated = flags&(1<<9) != 0
	m.Header.RecursionDesired = flags&(1<<8) != 0
	m.Header.RecursionAvailable = flags&(1<<7) != 0
	m.Header.AuthenticData = flags&(1<<5) != 0
	m.Header.CheckingDisabled = flags&(1<<4) != 0
	m.Header.Rcode = uint8(flags & 0xF)

	qdcount := int(binary.BigEndian.Uint16(data[4:6]))
	ancount := int(binary.BigEndian.Uint16(data[6:8]))
	nscount := int(binary.BigEndian.Uint16(data[8:10]))
	arcount := int(binary.BigEndian.Uint16(data[10:12]))

	pos := headerSize
	var err error

	m.Question = make([]Question, 0, qdcount)
	for i := 0; i < qdcount; i++ {
		var q Question
		q.Name, pos, err = decodeName(data, pos)
		if err != nil {
			return nil, &ParseError{Section: "question", Err: err}
		}
		if pos+4 > len(data) {
			return nil, &ParseError{Section: "question", Err: ErrShortBuffer}
		}
		q.Type = binary.BigEndian.Uint16(data[pos : pos+2])
		q.Class = binary.BigEndian.Uint16(data[pos+2 : pos+4])
		pos += 4
		m.Question = append(m.Question, q)
	}

	decodeSection := func(section string, count int) ([]Record, error) {
		out := make([]Record, 0, count)
		for i := 0; i < count; i++ {
			rr, next, err := decodeRecord(data, pos)
			if err != nil {
				return nil, &ParseError{Section: section, Err: err}
			}
			pos = next
			out = append(out, rr)
		}
		return out, nil
	}

	if m.Answer, err = decodeSection("answer", ancount); err != nil {
		return nil, err
	}
	if m.Authority, err = decodeSection("authority", nscount); err != nil {
		return nil, err
	}
	additional, err := decodeSection("additional", arcount)
	if err != nil {
		return nil, err
	}

	m.Additional = make([]Record, 0, len(additional))
	for _, rr := range additional {
		if rr.Type == TypeOPT {
			udpSize := rr.Class
			extRcode := uint8(rr.TTL >> 24)
			version := uint8(rr.TTL >> 16)
			do := rr.TTL&(1<<15) != 0
			m.Edns = &EDNS{UDPSize: udpSize, DNSSECOK: do, ExtRcode: extRcode, Version: version}
			continue
		}
		m.Additional = append(m.Additional, rr)
	}

	return m, nil
}

func decodeRecord(data []byte, pos int) (Record, int, error) {
	var rr Record
	var err error
	rr.Name, pos, err = decodeName(data, pos)
	if err != nil {
		return Record{}, 0, err
	}
	if pos+10 > len(data) {
		return Record{}, 0, ErrShortBuffer
	}
	rr.Type = binary.BigEndian.Uint16(data[pos : pos+2])
	rr.Class = binary.BigEndian.Uint16(data[pos+2 : pos+4])
	rr.TTL = binary.BigEndian.Uint32(data[pos+4 : pos+8])
	rdlen := int(binary.BigEndian.Uint16(data[pos+8 : pos+10]))
	pos += 10

	rr.Data, err = decodeRdata(rr.Type, data, pos, rdlen)
	if err != nil {
		return Record{}, 0, err
	}
	pos += rdlen

	return rr, pos, nil
}

// CanonicalRecordBytes returns the canonical wire encoding of rr as used in
// RRSIG signature input (RFC 4034 section 6.2): a lowercased owner name with
// no compression, type, class, the rrset's original TTL (substituted by the
// caller via ttl), and canonically encoded RDATA.
func CanonicalRecordBytes(rr Record, ttl uint32) ([]byte, error) {
	buf := CanonicalName(rr.Name)
	buf = binary.BigEndian.AppendUint16(buf, rr.Type)
	buf = binary.BigEndian.AppendUint16(buf, rr.Class)
	buf = binary.BigEndian.AppendUint32(buf, ttl)

	lenPos := len(buf)
	buf = binary.BigEndian.AppendUint16(buf, 0)
	rdStart := len(buf)
	var err error
	if rr.Data != nil {
		buf, err = rr.Data.pack(buf, nil, true)
		if err != nil {
			return nil, err
		}
	}
	rdlen := len(buf) - rdStart
	if rdlen > 0xFFFF {
		return nil, fmt.Errorf("dnsmsg: rdata for %s exceeds 65535 bytes", rr.Name)
	}
	binary.BigEndian.PutUint16(buf[lenPos:lenPos+2], uint16(rdlen))
	return buf, nil
}
