package mdns

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewIPv4JoinsGroup(t *testing.T) {
	s, err := NewIPv4(QueryOneshot, nil, nil)
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, QueryOneshot, s.QueryType())
	require.Equal(t, GroupIPv4.IP.String(), s.group.IP.String())
}

func TestNewIPv6JoinsGroup(t *testing.T) {
	s, err := NewIPv6(QueryContinuous, nil, nil)
	if err != nil {
		t.Skipf("ipv6 multicast unavailable in this environment: %v", err)
	}
	defer s.Close()

	require.Equal(t, QueryContinuous, s.QueryType())
}

func TestRecvHonorsContextDeadline(t *testing.T) {
	s, err := NewIPv4(QueryOneshot, nil, nil)
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = s.Recv(ctx)
	require.Error(t, err)
}

func TestSendLoopback(t *testing.T) {
	sender, err := NewIPv4(QueryOneshot, nil, nil)
	require.NoError(t, err)
	defer sender.Close()

	receiver, err := NewIPv4(QueryContinuous, nil, nil)
	require.NoError(t, err)
	defer receiver.Close()

	query := []byte("_services._dns-sd._udp.local.")
	require.NoError(t, sender.Send(query))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	buf, err := receiver.Recv(ctx)
	if err != nil {
		t.Skipf("multicast loopback unavailable in this environment: %v", err)
	}
	require.NotEmpty(t, buf)
}
