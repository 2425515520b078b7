package dnsval

import (
	"fmt"

	"github.com/hlandau/dnsval/dnsmsg"
)

// QueryTimeoutError is returned when a query times out waiting for a
// transport to respond.
type QueryTimeoutError struct {
	Name string
	Type uint16
}

func (e QueryTimeoutError) Error() string {
	return fmt.Sprintf("query for '%s' (type %d) timed out", e.Name, e.Type)
}

// ErrIncorrectMessageID is returned when a transport's response carries a
// message ID that doesn't match the request, per RFC 7858 §3.3's
// anti-spoofing check. A mismatched question yields ErrQuestionMismatch.
type ErrIncorrectMessageID struct {
	Got, Expected uint16
}

func (e ErrIncorrectMessageID) Error() string {
	return fmt.Sprintf("response ID %d does not match query ID %d", e.Got, e.Expected)
}

// ErrorResponse wraps a non-success RCODE returned by a server.
type ErrorResponse struct {
	Code uint16
}

func (e ErrorResponse) Error() string {
	return fmt.Sprintf("server returned rcode %d", e.Code)
}

// ErrQuestionMismatch is returned when a response's question section does
// not match the query that was sent.
var ErrQuestionMismatch = fmt.Errorf("response question section does not match query")

func checkQuestionMatch(q, a *dnsmsg.Message) error {
	if a.Header.ID != q.Header.ID {
		return ErrIncorrectMessageID{Got: a.Header.ID, Expected: q.Header.ID}
	}
	if len(q.Question) != 1 || len(a.Question) != 1 {
		return ErrQuestionMismatch
	}
	qq, aq := q.Question[0], a.Question[0]
	if !dnsmsg.EqualNames(aq.Name, qq.Name) || aq.Type != qq.Type || aq.Class != qq.Class {
		return ErrQuestionMismatch
	}
	return nil
}

// questionName returns the name of a message's first (and, for every
// query this package builds, only) question, or "" for a message with
// none.
func questionName(m *dnsmsg.Message) string {
	if len(m.Question) == 0 {
		return ""
	}
	return m.Question[0].Name
}

// questionType returns the type of a message's first question, or 0 for a
// message with none.
func questionType(m *dnsmsg.Message) uint16 {
	if len(m.Question) == 0 {
		return 0
	}
	return m.Question[0].Type
}
