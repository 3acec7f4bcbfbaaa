package dataplane

import (
	"github.com/gandalfast/etherzdp/etherip"
	"github.com/gandalfast/etherzdp/table"
	"github.com/gandalfast/etherzdp/xdpbuf"
	"github.com/rs/zerolog"
)

// Encapsulator wraps frames received on the LAN interface into
// Ethernet + IPv6 + EtherIP and redirects them to the WAN interface.
type Encapsulator struct {
	logger *zerolog.Logger
	tables *table.Tables
	stats  Stats
}

// NewEncapsulator creates an Encapsulator reading its configuration from tables.
// A nil logger disables tracing.
func NewEncapsulator(logger *zerolog.Logger, tables *table.Tables) *Encapsulator {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("program", "encap").Logger()
	return &Encapsulator{logger: &l, tables: tables}
}

// Stats returns the verdict counters of this Encapsulator
func (e *Encapsulator) Stats() *Stats {
	return &e.stats
}

// Process runs the transform on buf. Pass is only returned while the buffer
// still holds the original frame.
func (e *Encapsulator) Process(buf *xdpbuf.Buffer) Verdict {
	v := e.process(buf)
	e.stats.add(v.Action)
	if ev := e.logger.Trace(); ev.Enabled() {
		ev.Stringer("verdict", v.Action).
			Int("ifindex", v.Target.Ifindex).
			Str("frame", etherip.Describe(buf.Bytes())).
			Send()
	}
	return v
}

func (e *Encapsulator) process(buf *xdpbuf.Buffer) Verdict {
	// Every lookup happens before the head moves, so a frame given back with
	// Pass is the frame that came in.
	srcMAC, ok := e.tables.MAC.Get(table.WAN)
	if !ok {
		return verdict(Pass)
	}
	dstMAC, ok := e.tables.MAC.Get(table.LAN)
	if !ok {
		return verdict(Pass)
	}
	srcIP, ok := e.tables.IP.Get(table.WAN)
	if !ok {
		return verdict(Pass)
	}
	dstIP, ok := e.tables.IP.Get(table.LAN)
	if !ok {
		return verdict(Pass)
	}
	payloadLen := buf.Len() + etherip.HeaderLen
	if payloadLen > 0xffff {
		// Jumbograms would need a hop-by-hop option
		return verdict(Pass)
	}

	if err := buf.AdjustHead(-etherip.OuterHeaderLen); err != nil {
		return verdict(Pass)
	}

	eth, ok := buf.View(0, etherip.EthernetHeaderLen)
	if !ok {
		return verdict(Aborted)
	}
	etherip.PutEthernet(eth, dstMAC, srcMAC)

	ip, ok := buf.View(etherip.EthernetHeaderLen, etherip.IPv6HeaderLen)
	if !ok {
		return verdict(Aborted)
	}
	etherip.PutIPv6(ip, uint16(payloadLen), srcIP, dstIP)

	hdr, ok := buf.View(etherip.HeaderOffset, etherip.HeaderLen)
	if !ok {
		return verdict(Aborted)
	}
	etherip.PutHeader(hdr)

	target, ok := e.tables.Redirect.Get(table.WAN)
	if !ok {
		return verdict(Drop)
	}
	return Verdict{Action: Redirect, Target: target}
}
