// Package datapath creates the inner Ethernet device of the tunnel when the
// operator asks for a TAP device instead of an existing interface.
package datapath

import (
	"fmt"
	"github.com/rs/zerolog"
	"github.com/songgao/water"
	"github.com/vishvananda/netlink"
)

// TAPInterface is a persistent TAP device used as the LAN side of the tunnel,
// meant to be opened by a VM or container runtime (e.g. QEMU -netdev tap).
// Frames that runtime writes are received by the kernel on the TAP, where
// the encapsulation program runs, and decapsulated frames redirected to the
// TAP are delivered to the runtime.
type TAPInterface struct {
	logger *zerolog.Logger
	name   string
	link   netlink.Link
}

// NewTAPIf creates a persistent TAP interface called name and brings it up.
// mtu is applied when positive. The device outlives the file descriptor used
// to create it until Close deletes it.
func NewTAPIf(logger *zerolog.Logger, name string, mtu int) (*TAPInterface, error) {
	cfg := water.Config{
		DeviceType: water.TAP,
		PlatformSpecificParams: water.PlatformSpecificParams{
			Name:    name,
			Persist: true,
		},
	}

	// Create TAP interface
	ifce, err := water.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create TAP interface %v, %w", name, err)
	}
	name = ifce.Name()
	// The runtime attaching to the device opens its own queue
	if err := ifce.Close(); err != nil {
		return nil, fmt.Errorf("failed to release TAP interface %v, %w", name, err)
	}

	link, err := netlink.LinkByName(name)
	if err != nil {
		return nil, fmt.Errorf("failed to find TAP interface %v, %w", name, err)
	}

	tif := &TAPInterface{name: name, link: link}
	l := logger.With().Str("Name", "datapath").Str("Interface", name).Logger()
	tif.logger = &l

	if mtu > 0 {
		if err := netlink.LinkSetMTU(link, mtu); err != nil {
			_ = tif.Close()
			return nil, fmt.Errorf("failed to set MTU %d on %v, %w", mtu, name, err)
		}
	}

	// Enable network link
	if err := netlink.LinkSetUp(link); err != nil {
		_ = tif.Close()
		return nil, fmt.Errorf("failed to bring the TAP interface %v up, %w", name, err)
	}

	tif.logger.Info().Int("ifindex", link.Attrs().Index).Msg("TAP interface up")
	return tif, nil
}

// Name returns the kernel name of the TAP interface
func (tif *TAPInterface) Name() string {
	return tif.name
}

// Index returns the interface index of the TAP interface
func (tif *TAPInterface) Index() int {
	return tif.link.Attrs().Index
}

// Close deletes the TAP interface
func (tif *TAPInterface) Close() error {
	tif.logger.Debug().Msg("deleting TAP interface")
	if err := netlink.LinkDel(tif.link); err != nil {
		return fmt.Errorf("failed to delete TAP interface %v, %w", tif.name, err)
	}
	return nil
}
