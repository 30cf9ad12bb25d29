package router

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

// DefaultNameservers matches the original tool's hardcoded resolver
// configuration.
var DefaultNameservers = []string{"8.8.8.8:53", "8.8.4.4:53"}

// DefaultResolveTimeout bounds a single upstream query.
const DefaultResolveTimeout = 5 * time.Second

// Resolver performs single-A-record lookups against a fixed set of
// upstream nameservers, tried in order until one answers.
type Resolver struct {
	Nameservers []string
	Timeout     time.Duration
	client      *dns.Client
}

// NewResolver builds a Resolver against nameservers (host:port). A nil or
// empty slice falls back to DefaultNameservers.
func NewResolver(nameservers ...string) *Resolver {
	if len(nameservers) == 0 {
		nameservers = DefaultNameservers
	}
	return &Resolver{
		Nameservers: nameservers,
		Timeout:     DefaultResolveTimeout,
		client:      &dns.Client{Timeout: DefaultResolveTimeout},
	}
}

// LookupA resolves host's first A record, trying each configured
// nameserver in turn until one responds. A response without an A record
// is an error; the remaining nameservers are not tried.
func (r *Resolver) LookupA(ctx context.Context, host string) (net.IP, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), dns.TypeA)
	msg.RecursionDesired = true

	var lastErr error
	for _, ns := range r.Nameservers {
		resp, _, err := r.client.ExchangeContext(ctx, msg, ns)
		if err != nil {
			lastErr = err
			continue
		}
		for _, rr := range resp.Answer {
			if a, ok := rr.(*dns.A); ok {
				return a.A, nil
			}
		}
		return nil, fmt.Errorf("router: no A record for %q", host)
	}
	return nil, fmt.Errorf("router: resolve %q: %w", host, lastErr)
}
