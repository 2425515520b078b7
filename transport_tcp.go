package dnsval

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/hlandau/dnsval/dnsmsg"
)

// TCPTransportOptions configures a TCPTransport.
type TCPTransportOptions struct {
	QueryTimeout time.Duration
	LocalAddr    *net.TCPAddr
}

// TCPTransport is a plain DNS resolver over TCP, pipelining multiple
// in-flight queries over one connection. Adapted from the teacher's
// DNSClient/Pipeline pair (dnsclient.go, pipeline.go).
type TCPTransport struct {
	id   string
	addr string
	pipe *streamPipeline
}

var _ Transport = &TCPTransport{}

// NewTCPTransport returns a new TCP transport dialing addr lazily on first query.
func NewTCPTransport(id, addr string, opt TCPTransportOptions) *TCPTransport {
	timeout := opt.QueryTimeout
	if timeout == 0 {
		timeout = defaultQueryTimeout
	}
	d := &tcpDialer{addr: addr, laddr: opt.LocalAddr, timeout: timeout}
	return &TCPTransport{
		id:   id,
		addr: addr,
		pipe: newStreamPipeline(id, d, opt.QueryTimeout),
	}
}

// Exchange sends q and returns the decoded response.
func (t *TCPTransport) Exchange(ctx context.Context, q *dnsmsg.Message) (*dnsmsg.Message, error) {
	return t.pipe.exchange(ctx, q)
}

func (t *TCPTransport) String() string {
	return fmt.Sprintf("TCP(%s)", t.addr)
}

type tcpDialer struct {
	addr    string
	laddr   *net.TCPAddr
	timeout time.Duration
}

// Dial bounds the TCP handshake itself to timeout: a net.Dialer with no
// Timeout set falls back to the OS connect timeout (minutes on a silent
// packet drop), which would otherwise stall streamPipeline.run()'s single
// worker goroutine far longer than any caller's QueryTimeout.
func (d *tcpDialer) Dial() (net.Conn, error) {
	dialer := net.Dialer{Timeout: d.timeout, LocalAddr: d.laddr}
	return dialer.Dial("tcp", d.addr)
}
