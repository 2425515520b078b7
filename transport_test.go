package dnsval

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransportConstructorsImplementTransport(t *testing.T) {
	var transports []Transport
	transports = append(transports, NewUDPTransport("udp", "127.0.0.1:53", UDPTransportOptions{}))
	transports = append(transports, NewTCPTransport("tcp", "127.0.0.1:53", TCPTransportOptions{}))
	dot, err := NewDoTTransport("dot", "127.0.0.1:853", DoTTransportOptions{})
	require.NoError(t, err)
	transports = append(transports, dot)

	doh, err := NewDoHTransport("doh", "https://example.com/dns-query{?dns}", DoHTransportOptions{})
	require.NoError(t, err)
	transports = append(transports, doh)

	dtlsTransport, err := NewDTLSTransport("dtls", "127.0.0.1:853", DTLSTransportOptions{})
	require.NoError(t, err)
	transports = append(transports, dtlsTransport)

	for _, tr := range transports {
		require.NotEmpty(t, tr.String())
	}
}

func TestNewDoTTransportBuildsTLSConfigFromOptions(t *testing.T) {
	dot, err := NewDoTTransport("dot", "127.0.0.1:853", DoTTransportOptions{
		TLSOptions: &ClientTLSOptions{ServerName: "dns.example."},
	})
	require.NoError(t, err)
	require.NotEmpty(t, dot.String())
}

func TestNewDoTTransportRejectsBadTLSOptions(t *testing.T) {
	_, err := NewDoTTransport("dot", "127.0.0.1:853", DoTTransportOptions{
		TLSOptions: &ClientTLSOptions{CAFile: "/nonexistent/ca.pem"},
	})
	require.Error(t, err)
}

func TestNewDTLSTransportBuildsConfigFromFiles(t *testing.T) {
	_, err := NewDTLSTransport("dtls", "127.0.0.1:853", DTLSTransportOptions{
		CAFile: "/nonexistent/ca.pem",
	})
	require.Error(t, err)
}

func TestNewDoHTransportRejectsBadMethod(t *testing.T) {
	_, err := NewDoHTransport("doh", "https://example.com/dns-query{?dns}", DoHTransportOptions{Method: "PUT"})
	require.Error(t, err)
}

func TestNewDoHTransportRejectsBadTemplate(t *testing.T) {
	_, err := NewDoHTransport("doh", "https://example.com/dns-query{", DoHTransportOptions{})
	require.Error(t, err)
}
