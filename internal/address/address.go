// Package address discovers the addresses a host should publish in DNS.
//
// Two kinds are tracked: the public address as seen from outside (through an
// echo service or a DNS resolver) and the local address of the host's
// outward-facing interface. Resolvers never cache and never retry.
package address

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
)

// Kind selects which address a record mirrors.
type Kind int

const (
	Public Kind = iota
	Local
)

func (k Kind) String() string {
	switch k {
	case Public:
		return "public"
	case Local:
		return "local"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ErrNoAddress is returned when a lookup completed but yielded nothing usable.
var ErrNoAddress = errors.New("no usable address")

// Resolver looks up one address. A nil error always comes with a valid
// IPv4 address.
type Resolver interface {
	Resolve(ctx context.Context) (netip.Addr, error)
}

// Static constructs a resolver that always returns addr.
func Static(addr string) (Resolver, error) {
	a, err := netip.ParseAddr(addr)
	if err != nil {
		return nil, fmt.Errorf("unable to parse IP: %w", err)
	}
	if !a.Is4() {
		return nil, fmt.Errorf("%s is not an IPv4 address", a)
	}
	return staticResolver(a), nil
}

type staticResolver netip.Addr

func (s staticResolver) Resolve(context.Context) (netip.Addr, error) {
	return netip.Addr(s), nil
}

// publishable rejects addresses that never belong in an A record.
func publishable(a netip.Addr) bool {
	a = a.Unmap()
	return a.Is4() &&
		!a.IsLoopback() &&
		!a.IsLinkLocalUnicast() &&
		!a.IsUnspecified() &&
		!a.IsMulticast()
}
