package tunnel

import (
	"fmt"
	"github.com/asavie/xdp"
	"github.com/cilium/ebpf"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// attachment is a program attached to the XDP hook of an interface
type attachment struct {
	ifindex int
	generic bool
	prog    *xdp.Program
}

// attachProgram attaches prog to the interface, replacing any program
// already there. Generic mode runs the program after the driver built the
// socket buffer, it works on every interface at a lower rate.
func attachProgram(prog *ebpf.Program, ifindex int, generic bool) (*attachment, error) {
	a := &attachment{
		ifindex: ifindex,
		generic: generic,
		prog:    &xdp.Program{Program: prog},
	}
	if !generic {
		if err := a.prog.Attach(ifindex); err != nil {
			return nil, err
		}
		return a, nil
	}

	link, err := netlink.LinkByIndex(ifindex)
	if err != nil {
		return nil, fmt.Errorf("can't find interface %d, %w", ifindex, err)
	}
	if err := netlink.LinkSetXdpFdWithFlags(link, prog.FD(), unix.XDP_FLAGS_SKB_MODE); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *attachment) detach() error {
	if !a.generic {
		return a.prog.Detach(a.ifindex)
	}
	link, err := netlink.LinkByIndex(a.ifindex)
	if err != nil {
		return err
	}
	return netlink.LinkSetXdpFdWithFlags(link, -1, unix.XDP_FLAGS_SKB_MODE)
}
