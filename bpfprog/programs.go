package bpfprog

import (
	"github.com/cilium/ebpf/asm"
	"github.com/gandalfast/etherzdp/etherip"
	"github.com/gandalfast/etherzdp/table"
)

// enum xdp_action
const (
	xdpAborted = 0
	xdpDrop    = 1
	xdpPass    = 2
)

// struct xdp_md
const (
	xdpMDData    = 0
	xdpMDDataEnd = 4
)

// stack layout, relative to the frame pointer
const (
	stackKey    = -4
	stackSpill0 = -16
	stackSpill1 = -24
	stackSpill2 = -32
	stackSpill3 = -40
)

// outer header field offsets
const (
	offEthDst       = 0
	offEthSrc       = 6
	offEthType      = 12
	offIPVersion    = etherip.EthernetHeaderLen
	offIPPayloadLen = etherip.EthernetHeaderLen + 4
	offIPNextHeader = etherip.EthernetHeaderLen + 6
	offIPHopLimit   = etherip.EthernetHeaderLen + 7
	offIPSrc        = etherip.EthernetHeaderLen + 8
	offIPDst        = etherip.EthernetHeaderLen + 24
	offEtherIP      = etherip.HeaderOffset
)

const (
	labelPass    = "pass"
	labelAborted = "aborted"
)

// lookup emits a map lookup of key in mapName and spills the value pointer to
// the stack at spill. A missing entry jumps to miss.
func lookup(mapName string, key table.Port, spill int16, miss string) asm.Instructions {
	return asm.Instructions{
		asm.StoreImm(asm.RFP, stackKey, int64(key), asm.Word),
		asm.LoadMapPtr(asm.R1, 0).WithReference(mapName),
		asm.Mov.Reg(asm.R2, asm.RFP),
		asm.Add.Imm(asm.R2, stackKey),
		asm.FnMapLookupElem.Call(),
		asm.JEq.Imm(asm.R0, 0, miss),
		asm.StoreMem(asm.RFP, spill, asm.R0, asm.DWord),
	}
}

// boundsCheck loads data and data_end of the context in R6 into R2 and R3 and
// jumps to aborted unless n bytes are available from data.
func boundsCheck(n int32) asm.Instructions {
	return asm.Instructions{
		asm.LoadMem(asm.R2, asm.R6, xdpMDData, asm.Word),
		asm.LoadMem(asm.R3, asm.R6, xdpMDDataEnd, asm.Word),
		asm.Mov.Reg(asm.R4, asm.R2),
		asm.Add.Imm(asm.R4, n),
		asm.JGT.Reg(asm.R4, asm.R3, labelAborted),
	}
}

// copyBytes copies n bytes from src+srcOff to dst+dstOff one byte at a time,
// which keeps every access aligned. R1 is clobbered.
func copyBytes(dst asm.Register, dstOff int16, src asm.Register, srcOff int16, n int) asm.Instructions {
	insns := make(asm.Instructions, 0, 2*n)
	for i := int16(0); i < int16(n); i++ {
		insns = append(insns,
			asm.LoadMem(asm.R1, src, srcOff+i, asm.Byte),
			asm.StoreMem(dst, dstOff+i, asm.R1, asm.Byte),
		)
	}
	return insns
}

// equalBytes compares n bytes of the packet at R2+pktOff with the map value in
// val, jumping to mismatch on the first difference. R4 and R5 are clobbered.
func equalBytes(pktOff int16, val asm.Register, n int, mismatch string) asm.Instructions {
	insns := make(asm.Instructions, 0, 3*n)
	for i := int16(0); i < int16(n); i++ {
		insns = append(insns,
			asm.LoadMem(asm.R4, asm.R2, pktOff+i, asm.Byte),
			asm.LoadMem(asm.R5, val, i, asm.Byte),
			asm.JNE.Reg(asm.R4, asm.R5, mismatch),
		)
	}
	return insns
}

// redirect tail-calls bpf_redirect_map on the dev map, falling back to XDP_DROP
// when port has no entry.
func redirect(port table.Port) asm.Instructions {
	return asm.Instructions{
		asm.LoadMapPtr(asm.R1, 0).WithReference(DevMapName),
		asm.Mov.Imm(asm.R2, int32(port)),
		asm.Mov.Imm(asm.R3, xdpDrop),
		asm.FnRedirectMap.Call(),
		asm.Return(),
	}
}

func exits() asm.Instructions {
	return asm.Instructions{
		asm.Mov.Imm(asm.R0, xdpPass).WithSymbol(labelPass),
		asm.Return(),
		asm.Mov.Imm(asm.R0, xdpAborted).WithSymbol(labelAborted),
		asm.Return(),
	}
}

// EncapInstructions returns the LAN side program. It looks up all four
// addresses before growing the head by the outer header length, so XDP_PASS
// always hands back the frame as received.
func EncapInstructions() asm.Instructions {
	insns := asm.Instructions{
		asm.Mov.Reg(asm.R6, asm.R1).WithSymbol(EncapProgramName),
	}
	insns = append(insns, lookup(MACMapName, table.WAN, stackSpill0, labelPass)...)
	insns = append(insns, lookup(MACMapName, table.LAN, stackSpill1, labelPass)...)
	insns = append(insns, lookup(IPMapName, table.WAN, stackSpill2, labelPass)...)
	insns = append(insns, lookup(IPMapName, table.LAN, stackSpill3, labelPass)...)
	insns = append(insns,
		asm.Mov.Reg(asm.R1, asm.R6),
		asm.Mov.Imm(asm.R2, -etherip.OuterHeaderLen),
		asm.FnXdpAdjustHead.Call(),
		asm.JNE.Imm(asm.R0, 0, labelPass),
	)

	// Ethernet
	insns = append(insns, boundsCheck(etherip.OuterHeaderLen)...)
	insns = append(insns, asm.LoadMem(asm.R7, asm.RFP, stackSpill1, asm.DWord))
	insns = append(insns, copyBytes(asm.R2, offEthDst, asm.R7, 0, 6)...)
	insns = append(insns, asm.LoadMem(asm.R7, asm.RFP, stackSpill0, asm.DWord))
	insns = append(insns, copyBytes(asm.R2, offEthSrc, asm.R7, 0, 6)...)
	insns = append(insns,
		asm.StoreImm(asm.R2, offEthType, etherip.EtherTypeIPv6>>8, asm.Byte),
		asm.StoreImm(asm.R2, offEthType+1, etherip.EtherTypeIPv6&0xff, asm.Byte),
	)

	// IPv6
	insns = append(insns,
		asm.StoreImm(asm.R2, offIPVersion, 6<<4, asm.Byte),
		asm.StoreImm(asm.R2, offIPVersion+1, 0, asm.Byte),
		asm.StoreImm(asm.R2, offIPVersion+2, 0, asm.Byte),
		asm.StoreImm(asm.R2, offIPVersion+3, 0, asm.Byte),
		asm.Mov.Reg(asm.R5, asm.R3),
		asm.Sub.Reg(asm.R5, asm.R2),
		asm.Sub.Imm(asm.R5, etherip.EthernetHeaderLen+etherip.IPv6HeaderLen),
		asm.HostTo(asm.BE, asm.R5, asm.Half),
		asm.StoreMem(asm.R2, offIPPayloadLen, asm.R5, asm.Half),
		asm.StoreImm(asm.R2, offIPNextHeader, etherip.ProtocolNumber, asm.Byte),
		asm.StoreImm(asm.R2, offIPHopLimit, etherip.HopLimit, asm.Byte),
		asm.LoadMem(asm.R7, asm.RFP, stackSpill2, asm.DWord),
	)
	insns = append(insns, copyBytes(asm.R2, offIPSrc, asm.R7, 0, 16)...)
	insns = append(insns, asm.LoadMem(asm.R7, asm.RFP, stackSpill3, asm.DWord))
	insns = append(insns, copyBytes(asm.R2, offIPDst, asm.R7, 0, 16)...)

	// EtherIP
	insns = append(insns,
		asm.StoreImm(asm.R2, offEtherIP, etherip.Version, asm.Byte),
		asm.StoreImm(asm.R2, offEtherIP+1, 0, asm.Byte),
	)

	insns = append(insns, redirect(table.WAN)...)
	return append(insns, exits()...)
}

// DecapInstructions returns the WAN side program. The EtherIP version byte is
// the only acceptance test unless strict is set, in which case the outer frame
// must be IPv6 with next header EtherIP, the source the peer and the
// destination the local tunnel address.
func DecapInstructions(strict bool) asm.Instructions {
	insns := asm.Instructions{
		asm.Mov.Reg(asm.R6, asm.R1).WithSymbol(DecapProgramName),
	}
	insns = append(insns, boundsCheck(etherip.OuterHeaderLen)...)
	insns = append(insns,
		asm.LoadMem(asm.R4, asm.R2, offEtherIP, asm.Byte),
		asm.JNE.Imm(asm.R4, etherip.Version, labelPass),
	)

	if strict {
		insns = append(insns, lookup(IPMapName, table.WAN, stackSpill0, labelPass)...)
		insns = append(insns, lookup(IPMapName, table.LAN, stackSpill1, labelPass)...)
		// Helper calls clobbered the packet pointers
		insns = append(insns, boundsCheck(etherip.OuterHeaderLen)...)
		insns = append(insns,
			asm.LoadMem(asm.R4, asm.R2, offEthType, asm.Byte),
			asm.JNE.Imm(asm.R4, etherip.EtherTypeIPv6>>8, labelPass),
			asm.LoadMem(asm.R4, asm.R2, offEthType+1, asm.Byte),
			asm.JNE.Imm(asm.R4, etherip.EtherTypeIPv6&0xff, labelPass),
			asm.LoadMem(asm.R4, asm.R2, offIPVersion, asm.Byte),
			asm.RSh.Imm(asm.R4, 4),
			asm.JNE.Imm(asm.R4, 6, labelPass),
			asm.LoadMem(asm.R4, asm.R2, offIPNextHeader, asm.Byte),
			asm.JNE.Imm(asm.R4, etherip.ProtocolNumber, labelPass),
			asm.LoadMem(asm.R7, asm.RFP, stackSpill1, asm.DWord),
			asm.LoadMem(asm.R8, asm.RFP, stackSpill0, asm.DWord),
		)
		insns = append(insns, equalBytes(offIPSrc, asm.R7, 16, labelPass)...)
		insns = append(insns, equalBytes(offIPDst, asm.R8, 16, labelPass)...)
	}

	insns = append(insns,
		asm.Mov.Reg(asm.R1, asm.R6),
		asm.Mov.Imm(asm.R2, etherip.OuterHeaderLen),
		asm.FnXdpAdjustHead.Call(),
		asm.JNE.Imm(asm.R0, 0, labelPass),
	)
	insns = append(insns, redirect(table.LAN)...)
	return append(insns, exits()...)
}
