package bpfprog

import (
	"errors"
	"fmt"
	"github.com/cilium/ebpf"
	"github.com/gandalfast/etherzdp/table"
)

// Objects are the loaded programs and maps of the tunnel
type Objects struct {
	Encap *ebpf.Program
	Decap *ebpf.Program
	Maps  *Maps

	col *ebpf.Collection
}

// Load creates the maps and loads both programs into the kernel.
func Load(opts Options) (*Objects, error) {
	return loadCollection(NewCollectionSpec(opts))
}

func loadCollection(spec *ebpf.CollectionSpec) (*Objects, error) {
	col, err := ebpf.NewCollection(spec)
	if err != nil {
		var verr *ebpf.VerifierError
		if errors.As(err, &verr) {
			return nil, fmt.Errorf("programs rejected by the verifier: %+v", verr)
		}
		return nil, fmt.Errorf("failed to load collection: %w", err)
	}

	objs := &Objects{col: col, Maps: new(Maps)}
	var ok bool
	if objs.Encap, ok = col.Programs[EncapProgramName]; !ok {
		col.Close()
		return nil, fmt.Errorf("can't find a program named %v", EncapProgramName)
	}
	if objs.Decap, ok = col.Programs[DecapProgramName]; !ok {
		col.Close()
		return nil, fmt.Errorf("can't find a program named %v", DecapProgramName)
	}
	if objs.Maps.MAC, ok = col.Maps[MACMapName]; !ok {
		col.Close()
		return nil, fmt.Errorf("can't find a map named %v", MACMapName)
	}
	if objs.Maps.IP, ok = col.Maps[IPMapName]; !ok {
		col.Close()
		return nil, fmt.Errorf("can't find a map named %v", IPMapName)
	}
	if objs.Maps.Dev, ok = col.Maps[DevMapName]; !ok {
		col.Close()
		return nil, fmt.Errorf("can't find a map named %v", DevMapName)
	}
	return objs, nil
}

// Close releases programs and maps. Attached programs stay attached until
// detached explicitly.
func (o *Objects) Close() error {
	if o.col != nil {
		o.col.Close()
	}
	return nil
}

// Maps are the kernel copies of the configuration tables
type Maps struct {
	MAC *ebpf.Map
	IP  *ebpf.Map
	Dev *ebpf.Map
}

var _ table.Writer = (*Maps)(nil)

func (m *Maps) PutMAC(p table.Port, v table.MAC) error {
	return m.MAC.Put(uint32(p), v)
}

func (m *Maps) PutIP(p table.Port, v table.IP) error {
	return m.IP.Put(uint32(p), v)
}

// PutTarget stores the ifindex of v. Devmaps have no queue selector, the
// queue is picked by the driver.
func (m *Maps) PutTarget(p table.Port, v table.Target) error {
	return m.Dev.Put(uint32(p), uint32(v.Ifindex))
}

func (m *Maps) DeleteMAC(p table.Port) error {
	return ignoreMissing(m.MAC.Delete(uint32(p)))
}

func (m *Maps) DeleteIP(p table.Port) error {
	return ignoreMissing(m.IP.Delete(uint32(p)))
}

func (m *Maps) DeleteTarget(p table.Port) error {
	return ignoreMissing(m.Dev.Delete(uint32(p)))
}

func ignoreMissing(err error) error {
	if errors.Is(err, ebpf.ErrKeyNotExist) {
		return nil
	}
	return err
}
