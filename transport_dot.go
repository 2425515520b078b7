package dnsval

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/hlandau/dnsval/dnsmsg"
)

// DoTTransportOptions configures a DoTTransport.
type DoTTransportOptions struct {
	// TLSConfig, if set, is used as-is. Otherwise TLSOptions (if set)
	// builds one; with neither set, a minimal TLS 1.2+ default is used.
	TLSConfig    *tls.Config
	TLSOptions   *ClientTLSOptions
	QueryTimeout time.Duration
}

// DoTTransport is a DNS-over-TLS resolver (RFC 7858), pipelining multiple
// in-flight queries over one TLS connection. Adapted from the teacher's
// dotclient.go.
type DoTTransport struct {
	id   string
	addr string
	pipe *streamPipeline
}

var _ Transport = &DoTTransport{}

// NewDoTTransport returns a new DNS-over-TLS transport.
func NewDoTTransport(id, addr string, opt DoTTransportOptions) (*DoTTransport, error) {
	cfg, err := resolveTLSConfig(opt.TLSConfig, opt.TLSOptions)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	timeout := opt.QueryTimeout
	if timeout == 0 {
		timeout = defaultQueryTimeout
	}
	d := &tlsDialer{addr: addr, tlsConfig: cfg, timeout: timeout}
	return &DoTTransport{
		id:   id,
		addr: addr,
		pipe: newStreamPipeline(id, d, opt.QueryTimeout),
	}, nil
}

// Exchange sends q and returns the decoded response.
func (d *DoTTransport) Exchange(ctx context.Context, q *dnsmsg.Message) (*dnsmsg.Message, error) {
	return d.pipe.exchange(ctx, q)
}

func (d *DoTTransport) String() string {
	return fmt.Sprintf("DoT(%s)", d.addr)
}

type tlsDialer struct {
	addr      string
	tlsConfig *tls.Config
	timeout   time.Duration
}

// Dial bounds the TCP connect plus TLS handshake to timeout, the same
// reasoning as tcpDialer.Dial: without it a silently-dropped SYN stalls
// the pipeline's worker goroutine for the OS connect timeout instead of
// surfacing promptly as a dial error.
func (d *tlsDialer) Dial() (net.Conn, error) {
	return tls.DialWithDialer(&net.Dialer{Timeout: d.timeout}, "tcp", d.addr, d.tlsConfig)
}
