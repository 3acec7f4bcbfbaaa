package resolver

import (
	"context"
	"fmt"
	"github.com/insomniacslk/dhcp/interfaces"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
	"net"
	"net/netip"
	"syscall"
)

// _discardPort is the destination of the datagram used to trigger neighbor discovery
const _discardPort = 9

// NetlinkHost implements Host on top of rtnetlink
type NetlinkHost struct{}

var _ Host = NetlinkHost{}

func (NetlinkHost) AddrList() ([]Addr, error) {
	addrs, err := netlink.AddrList(nil, netlink.FAMILY_V6)
	if err != nil {
		return nil, fmt.Errorf("failed to list addresses: %w", err)
	}
	result := make([]Addr, 0, len(addrs))
	for _, a := range addrs {
		ip, ok := netip.AddrFromSlice(a.IP)
		if !ok {
			continue
		}
		result = append(result, Addr{IP: ip, Ifindex: a.LinkIndex})
	}
	return result, nil
}

func (NetlinkHost) LinkByIndex(index int) (Link, error) {
	link, err := netlink.LinkByIndex(index)
	if err != nil {
		return Link{}, err
	}
	return fromNetlink(link), nil
}

func (NetlinkHost) LinkByName(name string) (Link, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return Link{}, err
	}
	return fromNetlink(link), nil
}

func fromNetlink(link netlink.Link) Link {
	attrs := link.Attrs()
	return Link{
		Index:        attrs.Index,
		Name:         attrs.Name,
		HardwareAddr: attrs.HardwareAddr,
	}
}

func (NetlinkHost) Neighbors(ifindex int) ([]Neighbor, error) {
	neighs, err := netlink.NeighList(ifindex, netlink.FAMILY_V6)
	if err != nil {
		return nil, fmt.Errorf("failed to list neighbours of ifindex %d: %w", ifindex, err)
	}
	result := make([]Neighbor, 0, len(neighs))
	for _, n := range neighs {
		ip, ok := netip.AddrFromSlice(n.IP)
		if !ok {
			continue
		}
		result = append(result, Neighbor{IP: ip, HardwareAddr: n.HardwareAddr, State: n.State})
	}
	return result, nil
}

// Solicit sends a single UDP datagram to the discard port of ip through link.
// The kernel has to resolve the next hop before transmitting it, which
// populates the neighbor cache.
func (NetlinkHost) Solicit(ctx context.Context, link Link, ip netip.Addr) error {
	dialer := net.Dialer{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BINDTOIFINDEX, link.Index)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}
	if ip.Is6() && ip.IsLinkLocalUnicast() && ip.Zone() == "" {
		ip = ip.WithZone(link.Name)
	}

	conn, err := dialer.DialContext(ctx, "udp6", netip.AddrPortFrom(ip, _discardPort).String())
	if err != nil {
		return fmt.Errorf("failed to open solicitation socket on %s: %w", link.Name, err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte{0}); err != nil {
		return fmt.Errorf("failed to send solicitation datagram to %v: %w", ip, err)
	}
	return nil
}

// Interfaces lists the names of the non-loopback interfaces of the host
func (NetlinkHost) Interfaces() ([]string, error) {
	ifaces, err := interfaces.GetNonLoopbackInterfaces()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ifaces))
	for _, iface := range ifaces {
		names = append(names, iface.Name)
	}
	return names, nil
}
