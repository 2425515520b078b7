package dnsval

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"github.com/hlandau/dnsval/dnsmsg"
	"github.com/pkg/errors"
	"github.com/quic-go/quic-go"
)

// DoQTransportOptions configures a DoQTransport.
type DoQTransportOptions struct {
	// TLSConfig, if set, is used as-is. Otherwise TLSOptions (if set)
	// builds one.
	TLSConfig  *tls.Config
	TLSOptions *ClientTLSOptions

	QueryTimeout time.Duration
}

// DoQTransport is a DNS-over-QUIC resolver (RFC 9250). Every query opens a
// fresh bidirectional QUIC stream on a shared, lazily (re)dialed
// connection. Adapted from the teacher's doqclient.go.
type DoQTransport struct {
	id       string
	endpoint string
	opt      DoQTransportOptions

	mu   sync.Mutex
	conn quic.Connection

	metrics *transportMetrics
}

var _ Transport = &DoQTransport{}

// NewDoQTransport returns a new DNS-over-QUIC transport.
func NewDoQTransport(id, endpoint string, opt DoQTransportOptions) (*DoQTransport, error) {
	if err := validEndpoint(endpoint); err != nil {
		return nil, err
	}
	cfg, err := resolveTLSConfig(opt.TLSConfig, opt.TLSOptions)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = &tls.Config{}
	} else {
		cfg = cfg.Clone()
	}
	cfg.NextProtos = []string{"doq"}
	if opt.QueryTimeout == 0 {
		opt.QueryTimeout = defaultQueryTimeout
	}
	return &DoQTransport{
		id:       id,
		endpoint: endpoint,
		opt:      DoQTransportOptions{TLSConfig: cfg, QueryTimeout: opt.QueryTimeout},
		metrics:  newTransportMetrics(id),
	}, nil
}

func (d *DoQTransport) connection(ctx context.Context) (quic.Connection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != nil {
		select {
		case <-d.conn.Context().Done():
			d.conn = nil
		default:
			return d.conn, nil
		}
	}
	conn, err := quic.DialAddr(ctx, d.endpoint, d.opt.TLSConfig, &quic.Config{HandshakeIdleTimeout: d.opt.QueryTimeout})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to dial doq endpoint %s", d.endpoint)
	}
	d.conn = conn
	return conn, nil
}

// Exchange sends q on a fresh QUIC stream and returns the decoded response.
// Per RFC 9250 §4.2.1, the DNS message ID on the wire must be zero; the
// caller's original ID is restored on the returned message.
func (d *DoQTransport) Exchange(ctx context.Context, q *dnsmsg.Message) (*dnsmsg.Message, error) {
	deadline := time.Now().Add(d.opt.QueryTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}

	wire := *q
	wire.Header.ID = 0
	wireBytes, err := dnsmsg.EncodeMessage(&wire)
	if err != nil {
		d.metrics.err.Add("encode", 1)
		return nil, err
	}

	conn, err := d.connection(ctx)
	if err != nil {
		d.metrics.err.Add("dial", 1)
		return nil, err
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		d.metrics.err.Add("stream", 1)
		return nil, err
	}
	defer stream.Close()
	d.metrics.query.Add(1)

	_ = stream.SetWriteDeadline(deadline)
	if err := writeStreamFrame(stream, wireBytes); err != nil {
		d.metrics.err.Add("write", 1)
		return nil, err
	}
	if err := stream.Close(); err != nil {
		d.metrics.err.Add("close", 1)
		return nil, err
	}

	_ = stream.SetReadDeadline(deadline)
	a, err := readStreamMessage(stream)
	if err != nil {
		d.metrics.err.Add("read", 1)
		return nil, err
	}
	a.Header.ID = q.Header.ID
	if err := checkQuestionMatch(q, a); err != nil {
		return nil, err
	}
	d.metrics.response.Add(rcodeLabel(a), 1)
	return a, nil
}

func (d *DoQTransport) String() string {
	return fmt.Sprintf("DoQ(%s)", d.endpoint)
}
