package tunnel

import (
	"github.com/safchain/ethtool"
)

// logInterface logs the driver and the number of combined queues of an
// interface, native XDP support depends on both.
func (t *Tunnel) logInterface(role, name string) {
	ethHandle, err := ethtool.NewEthtool()
	if err != nil {
		t.logger.Debug().Err(err).Msg("ethtool unavailable")
		return
	}
	defer ethHandle.Close()

	ev := t.logger.Info().Str("role", role).Str("interface", name)
	if driver, err := ethHandle.DriverName(name); err == nil {
		ev = ev.Str("driver", driver)
	}
	// Retrieve channels
	if chans, err := ethHandle.GetChannels(name); err == nil {
		ev = ev.Uint32("combinedQueues", chans.CombinedCount)
	}
	ev.Msg("interface selected")
}
