// Package xdpbuf models the packet buffer handed to an XDP program: a frame
// placed behind some headroom whose head can be moved, and whose bytes can only
// be reached through bounds-checked views.
package xdpbuf

import (
	"errors"
	"fmt"
)

const (
	// DefaultHeadroom matches XDP_PACKET_HEADROOM
	DefaultHeadroom = 256
	// MinFrameLen is the smallest data window AdjustHead may leave behind
	MinFrameLen = 14
)

var (
	ErrNoHeadroom = errors.New("not enough headroom")
	ErrTooShort   = errors.New("frame would become shorter than an ethernet header")
)

// Buffer is a single frame owned by one program invocation.
// It is not safe for concurrent use.
type Buffer struct {
	mem        []byte
	data       int
	dataEnd    int
	generation uint64
}

// New copies frame into a new Buffer preceded by headroom bytes.
func New(frame []byte, headroom int) *Buffer {
	if headroom < 0 {
		headroom = 0
	}
	mem := make([]byte, headroom+len(frame))
	copy(mem[headroom:], frame)
	return &Buffer{
		mem:     mem,
		data:    headroom,
		dataEnd: len(mem),
	}
}

// Len returns the size of the current data window.
func (b *Buffer) Len() int {
	return b.dataEnd - b.data
}

// Headroom returns the number of bytes the head can still grow by.
func (b *Buffer) Headroom() int {
	return b.data
}

// Generation is bumped on every successful AdjustHead.
// Views obtained with an older generation must not be used anymore.
func (b *Buffer) Generation() uint64 {
	return b.generation
}

// AdjustHead moves the start of the data window by delta bytes, the same way
// bpf_xdp_adjust_head does: a negative delta prepends room, a positive delta
// drops leading bytes. On error the buffer is left untouched.
func (b *Buffer) AdjustHead(delta int) error {
	newData := b.data + delta
	if newData < 0 {
		return fmt.Errorf("grow head by %d: %w", -delta, ErrNoHeadroom)
	}
	if b.dataEnd-newData < MinFrameLen {
		return fmt.Errorf("shrink head by %d: %w", delta, ErrTooShort)
	}
	if delta < 0 {
		// Stale headroom bytes are not exposed.
		clear(b.mem[newData:b.data])
	}
	b.data = newData
	b.generation++
	return nil
}

// View returns a writable window of size bytes starting at off, relative to
// the current head. It reports false when the window is not fully inside the
// data window, in which case nothing may be read or written.
func (b *Buffer) View(off, size int) ([]byte, bool) {
	if off < 0 || size < 0 {
		return nil, false
	}
	start := b.data + off
	end := start + size
	if end > b.dataEnd || end < start {
		return nil, false
	}
	return b.mem[start:end:end], true
}

// Bytes returns a copy of the current data window.
func (b *Buffer) Bytes() []byte {
	out := make([]byte, b.Len())
	copy(out, b.mem[b.data:b.dataEnd])
	return out
}
