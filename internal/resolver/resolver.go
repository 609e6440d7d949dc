// Package resolver turns a host string and port into the single socket
// address a command session talks to.
//
// Resolution happens once per call and is never retried here: a failed
// lookup is terminal for the call. Literal addresses skip the lookup
// entirely.
package resolver

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/joshuafuller/espif/internal/errors"
)

// Family selects the address family used for a call.
type Family string

const (
	// FamilyIPv4 resolves to plain IPv4 addresses.
	FamilyIPv4 Family = "ipv4"

	// FamilyIPv6 resolves to IPv6 addresses, mapping IPv4 results to their
	// IPv4-in-IPv6 form (::ffff:a.b.c.d).
	FamilyIPv6 Family = "ipv6"
)

// Valid reports whether f names a supported family.
func (f Family) Valid() bool {
	return f == FamilyIPv4 || f == FamilyIPv6
}

// Lookup is the name resolution backend. *net.Resolver satisfies it.
type Lookup interface {
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
}

// Resolver resolves hosts for one address family.
type Resolver struct {
	lookup  Lookup
	family  Family
	timeout time.Duration
}

// New returns a Resolver using lookup (net.DefaultResolver when nil).
//
// timeout bounds each lookup; zero means no bound beyond the system
// resolver's own.
func New(lookup Lookup, family Family, timeout time.Duration) *Resolver {
	if lookup == nil {
		lookup = net.DefaultResolver
	}
	return &Resolver{
		lookup:  lookup,
		family:  family,
		timeout: timeout,
	}
}

// Resolve returns exactly one address for host on port.
//
// Returns:
//   - netip.AddrPort: the first usable address of the configured family
//   - error: *errors.ResolutionError when the lookup fails or yields nothing usable
func (r *Resolver) Resolve(host string, port int) (netip.AddrPort, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		mapped, ok := r.fit(addr)
		if !ok {
			return netip.AddrPort{}, &errors.ResolutionError{
				Host: host,
				Err:  fmt.Errorf("address %s is not usable as %s", addr, r.family),
			}
		}
		return netip.AddrPortFrom(mapped, uint16(port)), nil
	}

	ctx := context.Background()
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	ips, err := r.lookup.LookupIP(ctx, r.network(), host)
	if err != nil {
		return netip.AddrPort{}, &errors.ResolutionError{Host: host, Err: err}
	}

	for _, ip := range ips {
		addr, ok := netip.AddrFromSlice(ip)
		if !ok {
			continue
		}
		if mapped, ok := r.fit(addr); ok {
			return netip.AddrPortFrom(mapped, uint16(port)), nil
		}
	}

	return netip.AddrPort{}, &errors.ResolutionError{
		Host: host,
		Err:  fmt.Errorf("no %s address found", r.family),
	}
}

// network returns the LookupIP network for the family. IPv6 asks for both
// families so IPv4-only hosts can be reached through mapped addresses.
func (r *Resolver) network() string {
	if r.family == FamilyIPv6 {
		return "ip"
	}
	return "ip4"
}

// fit converts addr to the configured family.
func (r *Resolver) fit(addr netip.Addr) (netip.Addr, bool) {
	switch r.family {
	case FamilyIPv6:
		if addr.Is4() {
			return netip.AddrFrom16(addr.As16()), true
		}
		return addr, addr.Is6()
	default:
		addr = addr.Unmap()
		return addr, addr.Is4()
	}
}
