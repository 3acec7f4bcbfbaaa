// Package etherip implements the EtherIP (RFC 3378) over IPv6 wire format used
// by the tunnel: outer Ethernet + IPv6 + EtherIP headers followed by the
// original Ethernet frame.
package etherip

import (
	"encoding/binary"
	"net"
	"net/netip"
)

const (
	// EthernetHeaderLen is the size of an untagged Ethernet header
	EthernetHeaderLen = 14
	// IPv6HeaderLen is the size of an IPv6 header without extension headers
	IPv6HeaderLen = 40
	// HeaderLen is the size of the EtherIP header
	HeaderLen = 2
	// OuterHeaderLen is the number of bytes added in front of a tunneled frame
	OuterHeaderLen = EthernetHeaderLen + IPv6HeaderLen + HeaderLen

	// HeaderOffset is the offset of the EtherIP header inside an outer frame
	HeaderOffset = EthernetHeaderLen + IPv6HeaderLen

	// EtherTypeIPv6 is the EtherType carried by the outer Ethernet header
	EtherTypeIPv6 = 0x86dd
	// ProtocolNumber is the IPv6 next header value for EtherIP
	ProtocolNumber = 97
	// Version is the first byte of the EtherIP header: version 3 in the high nibble
	Version = 3 << 4
	// HopLimit is the hop limit of every encapsulated packet
	HopLimit = 255
)

// PutEthernet writes an Ethernet header carrying IPv6 into b.
// b must be at least EthernetHeaderLen bytes long.
func PutEthernet(b []byte, dst, src [6]byte) {
	_ = b[EthernetHeaderLen-1]
	copy(b[0:6], dst[:])
	copy(b[6:12], src[:])
	binary.BigEndian.PutUint16(b[12:14], EtherTypeIPv6)
}

// PutIPv6 writes an IPv6 header with next header EtherIP into b.
// Traffic class and flow label are zero. b must be at least IPv6HeaderLen bytes long.
func PutIPv6(b []byte, payloadLen uint16, src, dst [16]byte) {
	_ = b[IPv6HeaderLen-1]
	binary.BigEndian.PutUint32(b[0:4], 6<<28)
	binary.BigEndian.PutUint16(b[4:6], payloadLen)
	b[6] = ProtocolNumber
	b[7] = HopLimit
	copy(b[8:24], src[:])
	copy(b[24:40], dst[:])
}

// PutHeader writes the EtherIP header into b.
func PutHeader(b []byte) {
	_ = b[HeaderLen-1]
	b[0] = Version
	b[1] = 0x00
}

// IsHeader reports whether b starts with an EtherIP header of the supported version.
// Only the version byte is inspected, the reserved byte is ignored.
func IsHeader(b []byte) bool {
	return len(b) >= 1 && b[0] == Version
}

// Outer is the decoded outer part of a tunneled frame
type Outer struct {
	DstMAC, SrcMAC net.HardwareAddr
	EtherType      uint16
	PayloadLen     uint16
	NextHeader     uint8
	HopLimit       uint8
	SrcIP, DstIP   netip.Addr
	Version        uint8
	// Inner is the encapsulated Ethernet frame, it aliases the parsed slice
	Inner []byte
}

// ParseOuter decodes the outer headers of frame.
func ParseOuter(frame []byte) (Outer, error) {
	var o Outer
	if len(frame) < OuterHeaderLen {
		return o, ShortFrameError{Length: len(frame)}
	}

	o.DstMAC = net.HardwareAddr(frame[0:6])
	o.SrcMAC = net.HardwareAddr(frame[6:12])
	o.EtherType = binary.BigEndian.Uint16(frame[12:14])
	if o.EtherType != EtherTypeIPv6 {
		return o, ErrNotIPv6
	}

	ip := frame[EthernetHeaderLen:HeaderOffset]
	if ip[0]>>4 != 6 {
		return o, ErrNotIPv6
	}
	o.PayloadLen = binary.BigEndian.Uint16(ip[4:6])
	o.NextHeader = ip[6]
	o.HopLimit = ip[7]
	o.SrcIP = netip.AddrFrom16([16]byte(ip[8:24]))
	o.DstIP = netip.AddrFrom16([16]byte(ip[24:40]))
	if o.NextHeader != ProtocolNumber {
		return o, ErrNotEtherIP
	}

	o.Version = frame[HeaderOffset]
	if o.Version != Version {
		return o, ErrBadVersion
	}
	o.Inner = frame[OuterHeaderLen:]
	return o, nil
}
