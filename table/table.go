package table

import (
	"errors"
	"fmt"
	"sync/atomic"
)

var ErrPortOutOfRange = errors.New("port out of table range")

// Table is a fixed capacity map from Port to V with a single writer and any
// number of concurrent readers. Entries are only ever replaced as a whole.
type Table[V any] struct {
	slots [MaxEntries]atomic.Pointer[V]
}

// Get returns a copy of the entry for p.
func (t *Table[V]) Get(p Port) (v V, ok bool) {
	if p >= MaxEntries {
		return v, false
	}
	ptr := t.slots[p].Load()
	if ptr == nil {
		return v, false
	}
	return *ptr, true
}

// Put replaces the entry for p.
func (t *Table[V]) Put(p Port, v V) error {
	if p >= MaxEntries {
		return fmt.Errorf("put %v: %w", p, ErrPortOutOfRange)
	}
	t.slots[p].Store(&v)
	return nil
}

// Delete removes the entry for p, if any.
func (t *Table[V]) Delete(p Port) error {
	if p >= MaxEntries {
		return fmt.Errorf("delete %v: %w", p, ErrPortOutOfRange)
	}
	t.slots[p].Store(nil)
	return nil
}

// Len returns the number of populated entries.
func (t *Table[V]) Len() int {
	n := 0
	for i := range t.slots {
		if t.slots[i].Load() != nil {
			n++
		}
	}
	return n
}

// MAC is an EUI-48 hardware address
type MAC [6]byte

// IP is an IPv6 address in network byte order
type IP [16]byte

// Target is a redirect destination
type Target struct {
	Ifindex int
	// Queue selects a transmit queue, zero lets the driver pick
	Queue uint32
}

// Tables is the in-process configuration store read by the dataplane package
type Tables struct {
	MAC      Table[MAC]
	IP       Table[IP]
	Redirect Table[Target]
}

func (t *Tables) PutMAC(p Port, v MAC) error       { return t.MAC.Put(p, v) }
func (t *Tables) PutIP(p Port, v IP) error         { return t.IP.Put(p, v) }
func (t *Tables) PutTarget(p Port, v Target) error { return t.Redirect.Put(p, v) }
func (t *Tables) DeleteMAC(p Port) error           { return t.MAC.Delete(p) }
func (t *Tables) DeleteIP(p Port) error            { return t.IP.Delete(p) }
func (t *Tables) DeleteTarget(p Port) error        { return t.Redirect.Delete(p) }
