package dnsval

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// ClientTLSOptions configures the TLS client used by the DoT, DoH and DoQ
// transports.
type ClientTLSOptions struct {
	// CAFile overrides the system's CA store. Empty uses the system store.
	CAFile string

	// ClientCrtFile/ClientKeyFile configure mutual TLS, only needed when
	// the server requires a client certificate.
	ClientCrtFile string
	ClientKeyFile string

	// ServerName overrides the name used for certificate verification,
	// useful when dialing a bootstrap IP directly.
	ServerName string
}

// Config builds a *tls.Config from the options.
func (opt ClientTLSOptions) Config() (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: opt.ServerName,
	}

	if opt.ClientCrtFile != "" && opt.ClientKeyFile != "" {
		certificate, err := tls.LoadX509KeyPair(opt.ClientCrtFile, opt.ClientKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate from %s: %w", opt.ClientCrtFile, err)
		}
		tlsConfig.Certificates = []tls.Certificate{certificate}
	}

	if opt.CAFile != "" {
		certPool := x509.NewCertPool()
		b, err := os.ReadFile(opt.CAFile)
		if err != nil {
			return nil, err
		}
		if ok := certPool.AppendCertsFromPEM(b); !ok {
			return nil, fmt.Errorf("no CA certificates found in %s", opt.CAFile)
		}
		tlsConfig.RootCAs = certPool
	}
	return tlsConfig, nil
}

// resolveTLSConfig is the TLSConfig/TLSOptions fallback shared by the DoT,
// DoH and DoQ transport constructors: use cfg as-is if set, otherwise build
// one from opt, otherwise return nil and let the caller supply its own
// default.
func resolveTLSConfig(cfg *tls.Config, opt *ClientTLSOptions) (*tls.Config, error) {
	if cfg != nil {
		return cfg, nil
	}
	if opt == nil {
		return nil, nil
	}
	built, err := opt.Config()
	if err != nil {
		return nil, fmt.Errorf("building TLS config: %w", err)
	}
	return built, nil
}
