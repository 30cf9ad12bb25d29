package router

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubTunnel struct {
	called bool
	host   string
	port   string
}

func (s *stubTunnel) DialContext(ctx context.Context, host, port string) (net.Conn, error) {
	s.called = true
	s.host, s.port = host, port
	return nil, errors.New("stub tunnel: no real dial")
}

func mustCIDR(t *testing.T, s string) *net.IPNet {
	t.Helper()
	_, n, err := net.ParseCIDR(s)
	require.NoError(t, err)
	return n
}

func TestClassifyPrivateAddressIsDirect(t *testing.T) {
	r := New(nil, NewResolver(), &stubTunnel{})
	d, err := r.Classify(context.Background(), "192.168.1.10")
	require.NoError(t, err)
	require.Equal(t, Direct, d)
}

func TestClassifyLoopbackIsDirect(t *testing.T) {
	r := New(nil, NewResolver(), &stubTunnel{})
	d, err := r.Classify(context.Background(), "127.0.0.1")
	require.NoError(t, err)
	require.Equal(t, Direct, d)
}

func TestClassifyInTableIsDirect(t *testing.T) {
	table := []*net.IPNet{mustCIDR(t, "203.0.113.0/24")}
	r := New(table, NewResolver(), &stubTunnel{})
	d, err := r.Classify(context.Background(), "203.0.113.42")
	require.NoError(t, err)
	require.Equal(t, Direct, d)
}

func TestClassifyOutsideTableIsTunneled(t *testing.T) {
	table := []*net.IPNet{mustCIDR(t, "203.0.113.0/24")}
	r := New(table, NewResolver(), &stubTunnel{})
	d, err := r.Classify(context.Background(), "198.51.100.7")
	require.NoError(t, err)
	require.Equal(t, Tunneled, d)
}

func TestClassifyUnresolvableHostIsTryDirectElseTunneled(t *testing.T) {
	r := New(nil, NewResolver("127.0.0.1:1"), &stubTunnel{})
	d, err := r.Classify(context.Background(), "this-host-will-not-resolve.invalid")
	require.NoError(t, err)
	require.Equal(t, TryDirectElseTunneled, d)
}

func TestConnectTunneledDispatchesToTunnel(t *testing.T) {
	table := []*net.IPNet{mustCIDR(t, "203.0.113.0/24")}
	tun := &stubTunnel{}
	r := New(table, NewResolver(), tun)

	_, err := r.Connect(context.Background(), "198.51.100.7", "443")
	require.Error(t, err)
	require.True(t, tun.called)
	require.Equal(t, "198.51.100.7", tun.host)
	require.Equal(t, "443", tun.port)
}

func TestSetTableSwapsClassification(t *testing.T) {
	r := New(nil, NewResolver(), &stubTunnel{})
	d, err := r.Classify(context.Background(), "203.0.113.42")
	require.NoError(t, err)
	require.Equal(t, Tunneled, d)

	r.SetTable([]*net.IPNet{mustCIDR(t, "203.0.113.0/24")})
	d, err = r.Classify(context.Background(), "203.0.113.42")
	require.NoError(t, err)
	require.Equal(t, Direct, d)
}
