package dataplane

import (
	"github.com/gandalfast/etherzdp/etherip"
	"github.com/gandalfast/etherzdp/table"
	"github.com/gandalfast/etherzdp/xdpbuf"
	"github.com/rs/zerolog"
	"net/netip"
)

// Decapsulator strips the outer headers from EtherIP frames received on the
// WAN interface and redirects the inner frame to the LAN interface.
type Decapsulator struct {
	logger *zerolog.Logger
	tables *table.Tables
	strict bool
	stats  Stats
}

// DecapsulatorOption customizes a Decapsulator upon creation
type DecapsulatorOption func(d *Decapsulator)

// WithStrictValidation makes the Decapsulator also require an outer IPv6
// header with next header EtherIP and outer addresses matching the IP table:
// source must be the peer, destination the local endpoint.
func WithStrictValidation() DecapsulatorOption {
	return func(d *Decapsulator) {
		d.strict = true
	}
}

// NewDecapsulator creates a Decapsulator reading its configuration from tables.
// A nil logger disables tracing.
func NewDecapsulator(logger *zerolog.Logger, tables *table.Tables, options ...DecapsulatorOption) *Decapsulator {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("program", "decap").Logger()
	d := &Decapsulator{logger: &l, tables: tables}
	for _, o := range options {
		o(d)
	}
	return d
}

// Stats returns the verdict counters of this Decapsulator
func (d *Decapsulator) Stats() *Stats {
	return &d.stats
}

// Process runs the transform on buf.
func (d *Decapsulator) Process(buf *xdpbuf.Buffer) Verdict {
	v := d.process(buf)
	d.stats.add(v.Action)
	if ev := d.logger.Trace(); ev.Enabled() {
		ev.Stringer("verdict", v.Action).
			Int("ifindex", v.Target.Ifindex).
			Int("len", buf.Len()).
			Send()
	}
	return v
}

func (d *Decapsulator) process(buf *xdpbuf.Buffer) Verdict {
	hdr, ok := buf.View(etherip.HeaderOffset, etherip.HeaderLen)
	if !ok {
		return verdict(Aborted)
	}
	if !etherip.IsHeader(hdr) {
		return verdict(Pass)
	}

	if d.strict {
		outer, ok := buf.View(0, etherip.OuterHeaderLen)
		if !ok {
			return verdict(Aborted)
		}
		if !d.fromPeer(outer) {
			return verdict(Pass)
		}
	}

	if err := buf.AdjustHead(etherip.OuterHeaderLen); err != nil {
		return verdict(Pass)
	}

	target, ok := d.tables.Redirect.Get(table.LAN)
	if !ok {
		return verdict(Drop)
	}
	return Verdict{Action: Redirect, Target: target}
}

// fromPeer reports whether outer carries EtherIP over IPv6 from the peer to
// the local tunnel address
func (d *Decapsulator) fromPeer(outer []byte) bool {
	o, err := etherip.ParseOuter(outer)
	if err != nil {
		return false
	}
	local, ok := d.tables.IP.Get(table.WAN)
	if !ok {
		return false
	}
	peer, ok := d.tables.IP.Get(table.LAN)
	if !ok {
		return false
	}
	return o.SrcIP == netip.AddrFrom16(peer) && o.DstIP == netip.AddrFrom16(local)
}
