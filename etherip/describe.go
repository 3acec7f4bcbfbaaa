package etherip

import (
	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"strings"
)

// Describe returns a one line summary of the layers found in an Ethernet frame,
// e.g. "Ethernet/IPv6/EtherIP/Ethernet/IPv4/ICMPv4". It is meant for trace logs.
func Describe(frame []byte) string {
	pkt := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.NoCopy)

	var sb strings.Builder
	for i, l := range pkt.Layers() {
		if i > 0 {
			sb.WriteByte('/')
		}
		sb.WriteString(l.LayerType().String())
	}
	if errLayer := pkt.ErrorLayer(); errLayer != nil {
		sb.WriteString(" (")
		sb.WriteString(errLayer.Error().Error())
		sb.WriteByte(')')
	}
	return sb.String()
}
