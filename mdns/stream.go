// Package mdns implements a multicast DNS receive stream (RFC 6762).
//
// Grounded on original_source/proto/src/multicast/mdns_client_stream.rs and
// its companion mdns_stream.rs (referenced but not present in the pack):
// MdnsClientStream.new/new_ipv4/new_ipv6 take a query-type mode, an optional
// packet TTL and optional per-family interface selectors, and the resulting
// stream yields raw octets with the source address discarded. That file
// carries a literal "// TODO: for mDNS queries could come from anywhere.
// It's not clear that there is anything we can validate in this case" at the
// point it drops the source address — that is not a gap to fill in, it is
// the documented design: mDNS frames are accepted from whoever sent them.
package mdns

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// QueryType mirrors the original's MdnsQueryType: whether this stream is
// used to send a single query and collect replies, or to sit on the group
// indefinitely observing traffic.
type QueryType int

const (
	// QueryOneshot sends one query and is typically closed after the
	// first handful of responses.
	QueryOneshot QueryType = iota
	// QueryContinuous stays joined to the group, observing announcements
	// and queries from other participants.
	QueryContinuous
)

func (t QueryType) String() string {
	switch t {
	case QueryOneshot:
		return "oneshot"
	case QueryContinuous:
		return "continuous"
	default:
		return "unknown"
	}
}

// Well-known mDNS multicast group addresses, RFC 6762 §3.
var (
	GroupIPv4 = &net.UDPAddr{IP: net.IPv4(224, 0, 0, 251), Port: 5353}
	GroupIPv6 = &net.UDPAddr{IP: net.ParseIP("ff02::fb"), Port: 5353}
)

// Stream is a joined mDNS multicast group. It does not validate the source
// address of received frames; see the package doc.
type Stream struct {
	conn      *net.UDPConn
	pc4       *ipv4.PacketConn
	pc6       *ipv6.PacketConn
	group     *net.UDPAddr
	queryType QueryType
}

// NewIPv4 joins the well-known IPv4 mDNS group (224.0.0.251:5353).
// packetTTL, if non-nil, sets the outgoing multicast TTL. iface, if
// non-nil, restricts group membership and outgoing traffic to it.
func NewIPv4(queryType QueryType, packetTTL *int, iface *net.Interface) (*Stream, error) {
	return New(GroupIPv4, queryType, packetTTL, iface, nil)
}

// NewIPv6 joins the well-known IPv6 mDNS group ([ff02::fb]:5353). ifaceScope
// selects the interface whose scope the group is joined on, analogous to
// the original's ipv6_if scope-id parameter.
func NewIPv6(queryType QueryType, packetTTL *int, ifaceScope *net.Interface) (*Stream, error) {
	return New(GroupIPv6, queryType, packetTTL, nil, ifaceScope)
}

// New joins addr, which must be one of GroupIPv4 or GroupIPv6 (or an
// equivalent address of the matching family), using ifaceV4 or ifaceV6
// depending on which family addr belongs to.
//
// The socket is opened with net.ListenMulticastUDP rather than
// net.ListenUDP+JoinGroup: it is the only stdlib entry point that sets
// SO_REUSEADDR (and, on platforms that support it, SO_REUSEPORT) on the
// multicast socket before binding, which is what lets a second Stream in
// this process, or a system mDNS responder already on the host, share
// 224.0.0.251:5353 / [ff02::fb]:5353 the way RFC 6762 assumes every
// participant can.
func New(addr *net.UDPAddr, queryType QueryType, packetTTL *int, ifaceV4, ifaceV6 *net.Interface) (*Stream, error) {
	ifi := ifaceV6
	if addr.IP.To4() != nil {
		ifi = ifaceV4
	}
	conn, err := net.ListenMulticastUDP("udp", ifi, addr)
	if err != nil {
		return nil, fmt.Errorf("mdns: listen: %w", err)
	}

	s := &Stream{conn: conn, group: addr, queryType: queryType}

	if v4 := addr.IP.To4(); v4 != nil {
		pc := ipv4.NewPacketConn(conn)
		if packetTTL != nil {
			if err := pc.SetMulticastTTL(*packetTTL); err != nil {
				conn.Close()
				return nil, fmt.Errorf("mdns: set ttl: %w", err)
			}
		}
		if ifaceV4 != nil {
			if err := pc.SetMulticastInterface(ifaceV4); err != nil {
				conn.Close()
				return nil, fmt.Errorf("mdns: set interface: %w", err)
			}
		}
		pc.SetMulticastLoopback(true)
		s.pc4 = pc
	} else {
		pc := ipv6.NewPacketConn(conn)
		if packetTTL != nil {
			if err := pc.SetMulticastHopLimit(*packetTTL); err != nil {
				conn.Close()
				return nil, fmt.Errorf("mdns: set hop limit: %w", err)
			}
		}
		if ifaceV6 != nil {
			if err := pc.SetMulticastInterface(ifaceV6); err != nil {
				conn.Close()
				return nil, fmt.Errorf("mdns: set interface: %w", err)
			}
		}
		pc.SetMulticastLoopback(true)
		s.pc6 = pc
	}

	return s, nil
}

// Recv blocks until one datagram arrives and returns its payload. The
// sender's address is read and deliberately discarded: mDNS frames
// legitimately arrive from arbitrary link-local peers, so there is nothing
// meaningful to validate it against. ctx's deadline, if any, bounds the
// wait; ctx cancellation otherwise has no effect on an in-flight read.
func (s *Stream) Recv(ctx context.Context) ([]byte, error) {
	if dl, ok := ctx.Deadline(); ok {
		if err := s.conn.SetReadDeadline(dl); err != nil {
			return nil, err
		}
	} else {
		s.conn.SetReadDeadline(time.Time{})
	}

	buf := make([]byte, 65535)
	n, _, err := s.conn.ReadFromUDP(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// Send writes msg to the joined multicast group.
func (s *Stream) Send(msg []byte) error {
	_, err := s.conn.WriteToUDP(msg, s.group)
	return err
}

// QueryType reports the mode this stream was constructed with.
func (s *Stream) QueryType() QueryType {
	return s.queryType
}

// Close leaves the multicast group and closes the underlying socket.
func (s *Stream) Close() error {
	return s.conn.Close()
}
