package connio

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testTCPAddr(t *testing.T, port int) *net.TCPAddr {
	t.Helper()
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}
}

func TestAcceptRegistryRejectsWildcardPort(t *testing.T) {
	r := NewAcceptRegistry(nil, nil)
	conn := newTestConnection(t)
	_, _, err := r.Register(conn, testTCPAddr(t, 0))
	require.ErrorIs(t, err, ErrWildcardPort)
}

func TestAcceptRegistryCoalescesSameAddress(t *testing.T) {
	r := NewAcceptRegistry(nil, nil)
	addr := testTCPAddr(t, 19321)
	connA := newTestConnection(t)
	connB := newTestConnection(t)

	fd1, first1, err := r.Register(connA, addr)
	require.NoError(t, err)
	require.True(t, first1)

	fd2, first2, err := r.Register(connB, addr)
	require.NoError(t, err)
	require.False(t, first2)
	require.Equal(t, fd1, fd2)

	require.Equal(t, []net.Addr{addr}, r.Addresses())

	entry, ok := r.entryByFD(fd1)
	require.True(t, ok)
	require.Len(t, entry.pending, 2)

	r.RemovePending(connA)
	require.Len(t, entry.pending, 1)
	r.RemovePending(connB)
	require.Empty(t, r.Addresses())
}

func TestAcceptRegistryAllowWithoutLimiterAlwaysTrue(t *testing.T) {
	r := NewAcceptRegistry(nil, nil)
	require.True(t, r.allow(testTCPAddr(t, 19322)))
}

func TestAcceptRegistryAllowWithLimiterEnforcesRate(t *testing.T) {
	r := NewAcceptRegistry(nil, map[time.Duration]int{time.Minute: 1})
	addr := testTCPAddr(t, 19323)
	require.True(t, r.allow(addr))
	require.False(t, r.allow(addr))
}
