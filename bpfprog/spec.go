// Package bpfprog builds the kernel side of the tunnel: the EtherIP
// encapsulation and decapsulation XDP programs, emitted with cilium/ebpf/asm,
// and the three maps they read their configuration from.
package bpfprog

import (
	"github.com/cilium/ebpf"
	"github.com/gandalfast/etherzdp/table"
)

const (
	// EncapProgramName is attached to the LAN interface
	EncapProgramName = "etherip_encap"
	// DecapProgramName is attached to the WAN interface
	DecapProgramName = "etherip_decap"

	MACMapName = "mac_address"
	IPMapName  = "ip_address"
	DevMapName = "dev_map"

	// License of the generated programs
	License = "Dual MIT/GPL"
)

// Options changes how the programs are generated
type Options struct {
	// StrictDecap makes the decap program check the outer next header and addresses
	StrictDecap bool
}

// NewCollectionSpec returns the maps and programs of the tunnel, ready for
// ebpf.NewCollection.
func NewCollectionSpec(opts Options) *ebpf.CollectionSpec {
	return &ebpf.CollectionSpec{
		Maps: map[string]*ebpf.MapSpec{
			MACMapName: {
				Name:       MACMapName,
				Type:       ebpf.Hash,
				KeySize:    4,
				ValueSize:  6,
				MaxEntries: table.MaxEntries,
			},
			IPMapName: {
				Name:       IPMapName,
				Type:       ebpf.Hash,
				KeySize:    4,
				ValueSize:  16,
				MaxEntries: table.MaxEntries,
			},
			DevMapName: {
				Name:       DevMapName,
				Type:       ebpf.DevMap,
				KeySize:    4,
				ValueSize:  4,
				MaxEntries: table.MaxEntries,
			},
		},
		Programs: map[string]*ebpf.ProgramSpec{
			EncapProgramName: {
				Name:         EncapProgramName,
				Type:         ebpf.XDP,
				License:      License,
				Instructions: EncapInstructions(),
			},
			DecapProgramName: {
				Name:         DecapProgramName,
				Type:         ebpf.XDP,
				License:      License,
				Instructions: DecapInstructions(opts.StrictDecap),
			},
		},
	}
}
