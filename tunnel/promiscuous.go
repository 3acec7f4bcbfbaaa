package tunnel

import (
	"fmt"
	"golang.org/x/sys/unix"
)

// promiscuousMode keeps an interface in promiscuous mode for as long as its
// packet socket membership is open, so the mode is reverted on Close or when
// the process exits.
type promiscuousMode struct {
	fd int
}

// setPromiscuousMode put the interface in promiscuous mode, allowing the
// encapsulation program to receive Ethernet frames whose destination is any
// station of the segment and not only the interface itself.
func setPromiscuousMode(ifindex int) (*promiscuousMode, error) {
	// Protocol 0 binds no traffic, the socket only carries the membership
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("couldn't open packet socket: %w", err)
	}

	err = unix.SetsockoptPacketMreq(fd, unix.SOL_PACKET, unix.PACKET_ADD_MEMBERSHIP, &unix.PacketMreq{
		Ifindex: int32(ifindex),
		Type:    unix.PACKET_MR_PROMISC,
	})
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("couldn't add promisc membership: %w", err)
	}
	return &promiscuousMode{fd: fd}, nil
}

func (p *promiscuousMode) Close() error {
	return unix.Close(p.fd)
}
