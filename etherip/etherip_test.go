package etherip

import (
	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"net"
	"net/netip"
	"testing"
)

var (
	testSrcMAC = [6]byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66}
	testDstMAC = [6]byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}
	testSrcIP  = netip.MustParseAddr("2001:db8::1").As16()
	testDstIP  = netip.MustParseAddr("2001:db8::2").As16()
)

func innerFrame(t *testing.T) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4(192, 0, 2, 1),
		DstIP:    net.IPv4(192, 0, 2, 2),
	}
	udp := &layers.UDP{SrcPort: 4000, DstPort: 9}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload("hello")))
	return buf.Bytes()
}

func encapsulate(inner []byte) []byte {
	frame := make([]byte, OuterHeaderLen+len(inner))
	PutEthernet(frame[:EthernetHeaderLen], testDstMAC, testSrcMAC)
	PutIPv6(frame[EthernetHeaderLen:HeaderOffset], uint16(HeaderLen+len(inner)), testSrcIP, testDstIP)
	PutHeader(frame[HeaderOffset:OuterHeaderLen])
	copy(frame[OuterHeaderLen:], inner)
	return frame
}

func TestHeaderLayout(t *testing.T) {
	require.Equal(t, 56, OuterHeaderLen)
	require.Equal(t, 54, HeaderOffset)

	b := make([]byte, HeaderLen)
	PutHeader(b)
	assert.Equal(t, []byte{0x30, 0x00}, b)
	assert.True(t, IsHeader(b))
	assert.False(t, IsHeader([]byte{0x40, 0x00}))
	assert.False(t, IsHeader(nil))
}

func TestEncapsulatedFrameDecodesWithGopacket(t *testing.T) {
	inner := innerFrame(t)
	frame := encapsulate(inner)

	pkt := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.Default)
	require.Nil(t, pkt.ErrorLayer())

	eth, ok := pkt.Layer(layers.LayerTypeEthernet).(*layers.Ethernet)
	require.True(t, ok)
	assert.Equal(t, layers.EthernetTypeIPv6, eth.EthernetType)
	assert.Equal(t, net.HardwareAddr(testSrcMAC[:]), eth.SrcMAC)
	assert.Equal(t, net.HardwareAddr(testDstMAC[:]), eth.DstMAC)

	ip6, ok := pkt.Layer(layers.LayerTypeIPv6).(*layers.IPv6)
	require.True(t, ok)
	assert.Equal(t, uint8(6), ip6.Version)
	assert.Equal(t, layers.IPProtocolEtherIP, ip6.NextHeader)
	assert.Equal(t, uint8(255), ip6.HopLimit)
	assert.Equal(t, uint16(len(inner)+HeaderLen), ip6.Length)
	assert.True(t, ip6.SrcIP.Equal(net.ParseIP("2001:db8::1")))
	assert.True(t, ip6.DstIP.Equal(net.ParseIP("2001:db8::2")))

	eip, ok := pkt.Layer(layers.LayerTypeEtherIP).(*layers.EtherIP)
	require.True(t, ok)
	assert.Equal(t, uint8(3), eip.Version)
	assert.Equal(t, inner, eip.LayerPayload())

	assert.Equal(t, "Ethernet/IPv6/EtherIP/Ethernet/IPv4/UDP/Payload", Describe(frame))
}

func TestParseOuter(t *testing.T) {
	inner := innerFrame(t)
	frame := encapsulate(inner)

	o, err := ParseOuter(frame)
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddr("2001:db8::1"), o.SrcIP)
	assert.Equal(t, netip.MustParseAddr("2001:db8::2"), o.DstIP)
	assert.Equal(t, uint8(ProtocolNumber), o.NextHeader)
	assert.Equal(t, uint16(len(inner)+HeaderLen), o.PayloadLen)
	assert.Equal(t, inner, o.Inner)
}

func TestParseOuterErrors(t *testing.T) {
	frame := encapsulate(innerFrame(t))

	_, err := ParseOuter(frame[:OuterHeaderLen-1])
	var short ShortFrameError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, OuterHeaderLen-1, short.Length)

	notIPv6 := append([]byte(nil), frame...)
	notIPv6[12], notIPv6[13] = 0x08, 0x00
	_, err = ParseOuter(notIPv6)
	require.ErrorIs(t, err, ErrNotIPv6)

	notEtherIP := append([]byte(nil), frame...)
	notEtherIP[EthernetHeaderLen+6] = 17
	_, err = ParseOuter(notEtherIP)
	require.ErrorIs(t, err, ErrNotEtherIP)

	badVersion := append([]byte(nil), frame...)
	badVersion[HeaderOffset] = 0x20
	_, err = ParseOuter(badVersion)
	require.ErrorIs(t, err, ErrBadVersion)
}
