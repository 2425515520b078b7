package dnsval

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/hlandau/dnsval/dnsmsg"
	"github.com/pion/dtls/v2"
)

// DTLSTransportOptions configures a DTLSTransport.
type DTLSTransportOptions struct {
	// DTLSConfig, if set, is used in place of CAFile/ClientCrtFile/
	// ClientKeyFile/ServerName, which are then ignored. Its
	// ConnectContextMaker is set to a QueryTimeout-bounded one if nil.
	DTLSConfig *dtls.Config

	// CAFile, ClientCrtFile, ClientKeyFile and ServerName build a
	// dtls.Config via DTLSClientConfig when DTLSConfig is nil.
	CAFile        string
	ClientCrtFile string
	ClientKeyFile string
	ServerName    string

	QueryTimeout time.Duration

	// LocalAddr is the local address to bind outgoing queries to. Nil
	// lets the OS choose.
	LocalAddr *net.UDPAddr
}

// DTLSTransport is a DNS-over-DTLS resolver (RFC 8094). Adapted from the
// teacher's dtlsclient.go; reuses streamPipeline's length-prefixed framing
// over the DTLS record layer the same way the teacher reuses its TCP-style
// dns.Conn framing over a dtlsConn.
type DTLSTransport struct {
	id   string
	addr string
	pipe *streamPipeline
}

var _ Transport = &DTLSTransport{}

// NewDTLSTransport returns a new DNS-over-DTLS transport.
func NewDTLSTransport(id, addr string, opt DTLSTransportOptions) (*DTLSTransport, error) {
	if err := validEndpoint(addr); err != nil {
		return nil, err
	}
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	cfg := opt.DTLSConfig
	if cfg == nil {
		var err error
		cfg, err = DTLSClientConfig(opt.CAFile, opt.ClientCrtFile, opt.ClientKeyFile)
		if err != nil {
			return nil, fmt.Errorf("building DTLS config: %w", err)
		}
		cfg.ServerName = opt.ServerName
	}
	if cfg.ConnectContextMaker == nil {
		timeout := opt.QueryTimeout
		if timeout == 0 {
			timeout = defaultQueryTimeout
		}
		cfg.ConnectContextMaker = func() (context.Context, func()) {
			return context.WithTimeout(context.Background(), timeout)
		}
	}
	d := &dtlsDialer{raddr: raddr, laddr: opt.LocalAddr, dtlsConfig: cfg}
	return &DTLSTransport{
		id:   id,
		addr: addr,
		pipe: newStreamPipeline(id, d, opt.QueryTimeout),
	}, nil
}

// Exchange sends q and returns the decoded response.
func (d *DTLSTransport) Exchange(ctx context.Context, q *dnsmsg.Message) (*dnsmsg.Message, error) {
	return d.pipe.exchange(ctx, q)
}

func (d *DTLSTransport) String() string {
	return fmt.Sprintf("DTLS(%s)", d.addr)
}

type dtlsDialer struct {
	raddr      *net.UDPAddr
	laddr      *net.UDPAddr
	dtlsConfig *dtls.Config
}

func (d *dtlsDialer) Dial() (net.Conn, error) {
	pConn, err := net.DialUDP("udp", d.laddr, d.raddr)
	if err != nil {
		return nil, err
	}
	return dtls.Client(pConn, d.dtlsConfig)
}
