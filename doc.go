/*
Package dnsval implements DNS name resolution with optional DNSSEC
chain-of-trust validation, over a pluggable transport.

Transports

A Transport sends one encoded DNS message and returns the decoded
response. Concrete transports in this package cover plain UDP/TCP,
DNS-over-TLS, DNS-over-HTTPS, DNS-over-QUIC and DNS-over-DTLS. All of
them except UDP, which opens a fresh socket for every query, implement
connection reuse and, where the protocol allows it, pipelining of
multiple in-flight queries over one connection.

Client

Client ties a Transport to the query engine. Query performs a plain
lookup; SecureQuery additionally walks the DNSSEC chain of trust from a
configured trust anchor down to the answer, returning an error if any
link in the chain fails to validate.

This example performs a validated lookup over DNS-over-TLS:

	t, err := dnsval.NewDoTTransport("dot", "1.1.1.1:853", dnsval.DoTTransportOptions{})
	v, err := dnsval.NewValidatorWithDefaultAnchor(t)
	c := dnsval.NewClient(t, v)
	msg, err := c.SecureQuery(ctx, "example.com.", dnsmsg.ClassINET, dnsmsg.TypeA)

dnssec

The dnssec subpackage implements the cryptographic core (RRSIG
verification, key tag and DS digest computation, trust anchor storage
and the recursive chain-of-trust walk) independently of any transport,
so it can be embedded in code that already has its own way of fetching
records.
*/
package dnsval
