package router

import (
	"context"
	"fmt"
	"net"
	"sync"

	"golang.org/x/net/proxy"
)

// Decision is the outcome of classifying a destination host.
type Decision int

const (
	// Direct dials the destination straight from this host.
	Direct Decision = iota
	// Tunneled routes the connection through the remote relay.
	Tunneled
	// TryDirectElseTunneled attempts a direct connection first, falling
	// back to the tunnel if it fails — used when the host couldn't be
	// resolved locally, so its reachability is unknown.
	TryDirectElseTunneled
)

func (d Decision) String() string {
	switch d {
	case Direct:
		return "direct"
	case Tunneled:
		return "tunneled"
	case TryDirectElseTunneled:
		return "try-direct-else-tunneled"
	default:
		return "unknown"
	}
}

// TunnelDialer dials a destination through the obfuscated tunnel. The
// client type implements this.
type TunnelDialer interface {
	DialContext(ctx context.Context, host, port string) (net.Conn, error)
}

// Router classifies destination hosts as directly reachable or
// tunnel-only using a CIDR table of CN-allocated ranges, and connects
// accordingly. It implements golang.org/x/net/proxy.Dialer so it can
// stand in for any proxy-aware client.
type Router struct {
	mu       sync.RWMutex
	table    []*net.IPNet
	resolver *Resolver
	tunnel   TunnelDialer
	direct   net.Dialer
}

// New builds a Router that classifies against table and falls back to
// tunnel for anything not locally reachable.
func New(table []*net.IPNet, resolver *Resolver, tunnel TunnelDialer) *Router {
	return &Router{table: table, resolver: resolver, tunnel: tunnel}
}

// SetTable swaps in a freshly loaded CIDR table, e.g. after a periodic
// registry refresh.
func (r *Router) SetTable(table []*net.IPNet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.table = table
}

// Classify decides how host should be reached. Private, loopback, and
// link-local addresses are always Direct. A literal or resolved address
// inside the CIDR table is Direct. A host that fails to resolve is
// TryDirectElseTunneled, matching the ambiguity the original tool treats
// as "maybe reachable, worth trying before paying the tunnel's latency
// cost". Everything else is Tunneled.
func (r *Router) Classify(ctx context.Context, host string) (Decision, error) {
	ip := net.ParseIP(host)
	if ip == nil {
		resolved, err := r.resolver.LookupA(ctx, host)
		if err != nil {
			return TryDirectElseTunneled, nil
		}
		ip = resolved
	}

	if isLocalNetwork(ip) {
		return Direct, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, cidr := range r.table {
		if cidr.Contains(ip) {
			return Direct, nil
		}
	}
	return Tunneled, nil
}

func isLocalNetwork(ip net.IP) bool {
	return ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast()
}

// Connect classifies host and dials it via the winning path, retrying
// through the tunnel when a TryDirectElseTunneled direct attempt fails.
func (r *Router) Connect(ctx context.Context, host, port string) (net.Conn, error) {
	decision, err := r.Classify(ctx, host)
	if err != nil {
		return nil, err
	}

	switch decision {
	case Direct:
		return r.direct.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
	case TryDirectElseTunneled:
		conn, err := r.direct.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
		if err == nil {
			return conn, nil
		}
		return r.tunnel.DialContext(ctx, host, port)
	case Tunneled:
		return r.tunnel.DialContext(ctx, host, port)
	default:
		return nil, fmt.Errorf("router: unhandled decision %v", decision)
	}
}

// Dial implements golang.org/x/net/proxy.Dialer.
func (r *Router) Dial(network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	return r.Connect(context.Background(), host, port)
}

var _ proxy.Dialer = (*Router)(nil)
