package address

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/miekg/dns"
)

// DNSResolver constructs a resolver that asks a DNS server which address
// the query came from, e.g. myip.opendns.com at resolver1.opendns.com:53.
func DNSResolver(timeout time.Duration, server, name string) Resolver {
	return &dnsResolver{
		client: &dns.Client{Net: "udp", Timeout: timeout},
		server: server,
		name:   dns.Fqdn(name),
	}
}

type dnsResolver struct {
	client *dns.Client
	server string
	name   string
}

func (r *dnsResolver) Resolve(ctx context.Context) (netip.Addr, error) {
	m := new(dns.Msg)
	m.SetQuestion(r.name, dns.TypeA)
	m.RecursionDesired = false

	in, _, err := r.client.ExchangeContext(ctx, m, r.server)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("query %s at %s: %w", r.name, r.server, err)
	}
	if in.Rcode != dns.RcodeSuccess {
		return netip.Addr{}, fmt.Errorf("query %s at %s: %s", r.name, r.server, dns.RcodeToString[in.Rcode])
	}
	for _, rr := range in.Answer {
		a, ok := rr.(*dns.A)
		if !ok {
			continue
		}
		if addr, ok := netip.AddrFromSlice(a.A); ok && addr.Unmap().Is4() {
			return addr.Unmap(), nil
		}
	}
	return netip.Addr{}, fmt.Errorf("query %s at %s: %w", r.name, r.server, ErrNoAddress)
}
