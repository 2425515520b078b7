package dnsval

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hlandau/dnsval/dnsmsg"
	"github.com/jtacoma/uritemplates"
	"github.com/quic-go/quic-go/http3"
	"golang.org/x/net/http2"
)

// DoHTransportOptions configures a DoHTransport.
type DoHTransportOptions struct {
	// Method is "GET" or "POST" per RFC 8484. Empty defaults to "POST".
	Method string

	// Transport selects the underlying HTTP version: "tcp" for h2 over
	// TCP/TLS (the default) or "h3" for HTTP/3 over QUIC.
	Transport string

	// TLSConfig, if set, is used as-is. Otherwise TLSOptions (if set)
	// builds one.
	TLSConfig  *tls.Config
	TLSOptions *ClientTLSOptions

	QueryTimeout time.Duration
}

// DoHTransport is a DNS-over-HTTPS resolver (RFC 8484). Adapted from the
// teacher's dohclient.go.
type DoHTransport struct {
	id       string
	endpoint string
	template *uritemplates.UriTemplate
	client   *http.Client
	opt      DoHTransportOptions
	metrics  *transportMetrics
}

var _ Transport = &DoHTransport{}

// NewDoHTransport returns a new DNS-over-HTTPS transport. endpoint is the
// server's URI template, e.g. "https://dns.example.com/dns-query{?dns}".
func NewDoHTransport(id, endpoint string, opt DoHTransportOptions) (*DoHTransport, error) {
	template, err := uritemplates.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	rt, err := dohRoundTripper(endpoint, opt)
	if err != nil {
		return nil, err
	}
	if opt.Method == "" {
		opt.Method = "POST"
	}
	if opt.Method != "POST" && opt.Method != "GET" {
		return nil, fmt.Errorf("unsupported method %q", opt.Method)
	}
	if opt.QueryTimeout == 0 {
		opt.QueryTimeout = defaultQueryTimeout
	}
	return &DoHTransport{
		id:       id,
		endpoint: endpoint,
		template: template,
		client:   &http.Client{Transport: rt},
		opt:      opt,
		metrics:  newTransportMetrics(id),
	}, nil
}

func dohRoundTripper(endpoint string, opt DoHTransportOptions) (http.RoundTripper, error) {
	cfg, err := resolveTLSConfig(opt.TLSConfig, opt.TLSOptions)
	if err != nil {
		return nil, err
	}
	opt.TLSConfig = cfg
	switch opt.Transport {
	case "tcp", "":
		tr := &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			TLSClientConfig:       opt.TLSConfig,
			DisableCompression:    true,
			ResponseHeaderTimeout: 10 * time.Second,
			IdleConnTimeout:       30 * time.Second,
		}
		if tr.TLSClientConfig != nil {
			if err := http2.ConfigureTransport(tr); err != nil {
				return nil, err
			}
		}
		return tr, nil
	case "h3":
		return &http3.RoundTripper{TLSClientConfig: opt.TLSConfig}, nil
	default:
		return nil, fmt.Errorf("unknown doh transport %q", opt.Transport)
	}
}

// Exchange sends q as a DoH request and returns the decoded response.
func (d *DoHTransport) Exchange(ctx context.Context, q *dnsmsg.Message) (*dnsmsg.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, d.opt.QueryTimeout)
	defer cancel()

	msg, err := dnsmsg.EncodeMessage(q)
	if err != nil {
		d.metrics.err.Add("encode", 1)
		return nil, err
	}
	d.metrics.query.Add(1)

	req, err := d.buildRequest(ctx, msg)
	if err != nil {
		return nil, err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		d.metrics.err.Add(req.Method, 1)
		return nil, err
	}
	defer resp.Body.Close()

	a, err := d.responseFromHTTP(resp)
	if err != nil {
		return nil, err
	}
	if err := checkQuestionMatch(q, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (d *DoHTransport) buildRequest(ctx context.Context, msg []byte) (*http.Request, error) {
	if d.opt.Method == "GET" {
		b64 := base64.RawURLEncoding.EncodeToString(msg)
		u, err := d.template.Expand(map[string]interface{}{"dns": b64})
		if err != nil {
			d.metrics.err.Add("template", 1)
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Add("accept", "application/dns-message")
		return req, nil
	}

	u, err := d.template.Expand(map[string]interface{}{})
	if err != nil {
		d.metrics.err.Add("template", 1)
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(msg))
	if err != nil {
		return nil, err
	}
	req.Header.Add("accept", "application/dns-message")
	req.Header.Add("content-type", "application/dns-message")
	return req, nil
}

func (d *DoHTransport) responseFromHTTP(resp *http.Response) (*dnsmsg.Message, error) {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		d.metrics.err.Add(fmt.Sprintf("http%d", resp.StatusCode), 1)
		return nil, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}
	rb, err := io.ReadAll(resp.Body)
	if err != nil {
		d.metrics.err.Add("read", 1)
		return nil, err
	}
	a, err := dnsmsg.DecodeMessage(rb)
	if err != nil {
		d.metrics.err.Add("decode", 1)
		return nil, err
	}
	d.metrics.response.Add(rcodeLabel(a), 1)
	return a, nil
}

func (d *DoHTransport) String() string {
	return fmt.Sprintf("DoH(%s)", d.endpoint)
}
