package dnsval

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/hlandau/dnsval/dnsmsg"
)

// UDPTransportOptions configures a UDPTransport.
type UDPTransportOptions struct {
	// QueryTimeout overrides the default timeout waiting for a response.
	QueryTimeout time.Duration

	// LocalAddr is the local address to bind outgoing queries to. Nil
	// lets the OS choose.
	LocalAddr *net.UDPAddr
}

// UDPTransport is a plain DNS resolver over UDP. One datagram per query;
// the caller is expected to retry over TCP on a truncated response since
// this transport does not do that itself (unlike the teacher's pipeline,
// which shares framing code with TCP — UDP here is deliberately the
// simplest possible transport, matching spec.md's "thin, swappable
// transport" framing).
type UDPTransport struct {
	id      string
	addr    string
	opt     UDPTransportOptions
	metrics *transportMetrics
}

var _ Transport = &UDPTransport{}

// NewUDPTransport returns a new UDP transport dialing addr for every query.
func NewUDPTransport(id, addr string, opt UDPTransportOptions) *UDPTransport {
	return &UDPTransport{id: id, addr: addr, opt: opt, metrics: newTransportMetrics(id)}
}

// Exchange sends q and returns the decoded response.
func (t *UDPTransport) Exchange(ctx context.Context, q *dnsmsg.Message) (*dnsmsg.Message, error) {
	b, err := dnsmsg.EncodeMessage(q)
	if err != nil {
		return nil, err
	}

	timeout := t.opt.QueryTimeout
	if timeout == 0 {
		timeout = defaultQueryTimeout
	}
	if dl, ok := ctx.Deadline(); ok {
		if remaining := time.Until(dl); remaining < timeout {
			timeout = remaining
		}
	}

	raddr, err := net.ResolveUDPAddr("udp", t.addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp", t.opt.LocalAddr, raddr)
	if err != nil {
		t.metrics.err.Add("dial", 1)
		return nil, err
	}
	defer conn.Close()

	Log.WithField("resolver", t.addr).WithField("qname", questionName(q)).Debug("querying upstream resolver")

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	if _, err := conn.Write(b); err != nil {
		t.metrics.err.Add("send", 1)
		return nil, err
	}
	t.metrics.query.Add(1)

	buf := make([]byte, 65535)
	n, err := conn.Read(buf)
	if err != nil {
		t.metrics.err.Add("read", 1)
		return nil, err
	}
	a, err := dnsmsg.DecodeMessage(buf[:n])
	if err != nil {
		t.metrics.err.Add("decode", 1)
		return nil, err
	}
	if err := checkQuestionMatch(q, a); err != nil {
		return nil, err
	}
	t.metrics.response.Add(rcodeLabel(a), 1)
	return a, nil
}

func (t *UDPTransport) String() string {
	return fmt.Sprintf("UDP(%s)", t.addr)
}
