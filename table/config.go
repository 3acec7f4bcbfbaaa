package table

import (
	"errors"
	"fmt"
	"github.com/rs/zerolog"
	"net/netip"
)

var ErrInvalidConfig = errors.New("invalid tunnel configuration")

// Config is a fully resolved tunnel endpoint, ready to be committed
type Config struct {
	// LocalMAC is the hardware address of the underlay interface
	LocalMAC MAC
	// PeerMAC is the hardware address of the peer, reachable on the underlay
	PeerMAC MAC
	// LocalIP and PeerIP are the tunnel endpoint addresses
	LocalIP, PeerIP netip.Addr
	// WAN is the underlay interface, LAN the tunneled segment interface
	WAN, LAN Target
	// WANName and LANName are informational
	WANName, LANName string
}

// Validate checks that every field needed by the data plane is usable.
func (c *Config) Validate() error {
	var zero MAC
	switch {
	case c.LocalMAC == zero:
		return fmt.Errorf("%w: local hardware address is zero", ErrInvalidConfig)
	case c.PeerMAC == zero:
		return fmt.Errorf("%w: peer hardware address is zero", ErrInvalidConfig)
	case !c.LocalIP.Is6() || c.LocalIP.Is4In6():
		return fmt.Errorf("%w: local address %v is not IPv6", ErrInvalidConfig, c.LocalIP)
	case !c.PeerIP.Is6() || c.PeerIP.Is4In6():
		return fmt.Errorf("%w: peer address %v is not IPv6", ErrInvalidConfig, c.PeerIP)
	case c.WAN.Ifindex <= 0:
		return fmt.Errorf("%w: invalid WAN ifindex %d", ErrInvalidConfig, c.WAN.Ifindex)
	case c.LAN.Ifindex <= 0:
		return fmt.Errorf("%w: invalid LAN ifindex %d", ErrInvalidConfig, c.LAN.Ifindex)
	case c.WAN.Ifindex == c.LAN.Ifindex:
		return fmt.Errorf("%w: WAN and LAN share ifindex %d", ErrInvalidConfig, c.WAN.Ifindex)
	}
	return nil
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler
func (c Config) MarshalZerologObject(e *zerolog.Event) {
	e.Str("localMAC", macString(c.LocalMAC)).
		Str("peerMAC", macString(c.PeerMAC)).
		Stringer("localIP", c.LocalIP).
		Stringer("peerIP", c.PeerIP).
		Str("wan", c.WANName).
		Int("wanIfindex", c.WAN.Ifindex).
		Str("lan", c.LANName).
		Int("lanIfindex", c.LAN.Ifindex)
}

func macString(m MAC) string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", m[0], m[1], m[2], m[3], m[4], m[5])
}

// Writer is a destination for a committed Config: the in-process Tables or
// the kernel maps of the XDP programs.
type Writer interface {
	PutMAC(p Port, v MAC) error
	PutIP(p Port, v IP) error
	PutTarget(p Port, v Target) error
	DeleteMAC(p Port) error
	DeleteIP(p Port) error
	DeleteTarget(p Port) error
}

// Commit writes cfg into w. Redirect targets go first and the MAC pair last,
// since the encapsulator treats missing MAC entries as "not configured yet".
// If a write fails, everything written by this call is removed again and the
// write error is returned joined with any removal error.
func Commit(w Writer, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	var undo []func() error
	steps := []struct {
		name string
		put  func() error
		del  func() error
	}{
		{"redirect WAN", func() error { return w.PutTarget(WAN, cfg.WAN) }, func() error { return w.DeleteTarget(WAN) }},
		{"redirect LAN", func() error { return w.PutTarget(LAN, cfg.LAN) }, func() error { return w.DeleteTarget(LAN) }},
		{"ip WAN", func() error { return w.PutIP(WAN, cfg.LocalIP.As16()) }, func() error { return w.DeleteIP(WAN) }},
		{"ip LAN", func() error { return w.PutIP(LAN, cfg.PeerIP.As16()) }, func() error { return w.DeleteIP(LAN) }},
		{"mac LAN", func() error { return w.PutMAC(LAN, cfg.PeerMAC) }, func() error { return w.DeleteMAC(LAN) }},
		{"mac WAN", func() error { return w.PutMAC(WAN, cfg.LocalMAC) }, func() error { return w.DeleteMAC(WAN) }},
	}

	for _, s := range steps {
		if err := s.put(); err != nil {
			errList := []error{fmt.Errorf("failed to commit %s: %w", s.name, err)}
			for i := len(undo) - 1; i >= 0; i-- {
				errList = append(errList, undo[i]())
			}
			return errors.Join(errList...)
		}
		undo = append(undo, s.del)
	}
	return nil
}
