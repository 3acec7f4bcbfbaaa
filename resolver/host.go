package resolver

import (
	"context"
	"net"
	"net/netip"
)

// Addr is an entry of the host address table
type Addr struct {
	IP      netip.Addr
	Ifindex int
}

// Link is an entry of the host link table
type Link struct {
	Index        int
	Name         string
	HardwareAddr net.HardwareAddr
}

// Neighbor is an entry of the host neighbor cache
type Neighbor struct {
	IP           netip.Addr
	HardwareAddr net.HardwareAddr
	State        int
}

// Host gives access to the address, link and neighbor tables of the machine
type Host interface {
	// AddrList returns every IPv6 address configured on the host
	AddrList() ([]Addr, error)
	// LinkByIndex returns the link with the given interface index
	LinkByIndex(index int) (Link, error)
	// LinkByName returns the link with the given interface name
	LinkByName(name string) (Link, error)
	// Neighbors returns the IPv6 neighbor cache of the interface
	Neighbors(ifindex int) ([]Neighbor, error)
	// Solicit makes the host start neighbor discovery for ip on link
	Solicit(ctx context.Context, link Link, ip netip.Addr) error
}

// interfaceLister is implemented by hosts able to list candidate interfaces
// for error messages
type interfaceLister interface {
	Interfaces() ([]string, error)
}
