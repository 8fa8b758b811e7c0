package address

import (
	"context"
	"fmt"
	"net"
	"net/netip"
)

// probeTarget is only used to select a route; connecting a UDP socket sends
// no packets.
const probeTarget = "198.51.100.1:53"

// LocalResolver constructs a resolver for the host's address on its
// immediate network segment.
//
// With an interface name the first publishable IPv4 address of that
// interface is returned. Without one, the source address the kernel would
// use for outbound traffic is returned.
func LocalResolver(iface string) Resolver {
	if iface == "" {
		return routeResolver{target: probeTarget}
	}
	return interfaceResolver{iface: iface}
}

type interfaceResolver struct {
	iface string
}

func (r interfaceResolver) Resolve(ctx context.Context) (netip.Addr, error) {
	iface, err := net.InterfaceByName(r.iface)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("error getting interface %s by name: %w", r.iface, err)
	}
	if iface.Flags&net.FlagUp == 0 {
		return netip.Addr{}, fmt.Errorf("interface %s is down: %w", r.iface, ErrNoAddress)
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return netip.Addr{}, fmt.Errorf("error looking up addresses for interface %s: %w", r.iface, err)
	}
	return firstPublishable(r.iface, addrs)
}

func firstPublishable(iface string, addrs []net.Addr) (netip.Addr, error) {
	for _, a := range addrs {
		// addr: ip+net:192.168.86.253/24
		prefix, err := netip.ParsePrefix(a.String())
		if err != nil {
			continue
		}
		if ip := prefix.Addr().Unmap(); publishable(ip) {
			return ip, nil
		}
	}
	return netip.Addr{}, fmt.Errorf("interface %s: %w", iface, ErrNoAddress)
}

type routeResolver struct {
	target string
}

func (r routeResolver) Resolve(ctx context.Context) (netip.Addr, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp4", r.target)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("error selecting outbound route: %w", err)
	}
	defer conn.Close()

	udp, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return netip.Addr{}, fmt.Errorf("unexpected local address type %T", conn.LocalAddr())
	}
	ip, ok := netip.AddrFromSlice(udp.IP)
	if !ok {
		return netip.Addr{}, fmt.Errorf("error parsing local address %s", udp.IP)
	}
	ip = ip.Unmap()
	if !publishable(ip) {
		return netip.Addr{}, fmt.Errorf("outbound address %s: %w", ip, ErrNoAddress)
	}
	return ip, nil
}
