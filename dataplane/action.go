// Package dataplane implements the per-packet EtherIP transforms over an
// xdpbuf.Buffer. Every buffer access goes through a bounds-checked view; a
// failed check turns into an Aborted verdict instead of a fault.
package dataplane

import (
	"fmt"
	"github.com/gandalfast/etherzdp/table"
	"sync/atomic"
)

// Action is the outcome of one program invocation, numbered like enum xdp_action
type Action uint32

const (
	Aborted  Action = 0
	Drop     Action = 1
	Pass     Action = 2
	Tx       Action = 3
	Redirect Action = 4
)

func (a Action) String() string {
	switch a {
	case Aborted:
		return "ABORTED"
	case Drop:
		return "DROP"
	case Pass:
		return "PASS"
	case Tx:
		return "TX"
	case Redirect:
		return "REDIRECT"
	default:
		return fmt.Sprintf("Action(%d)", uint32(a))
	}
}

// Verdict is an Action plus, for Redirect, the interface to transmit on
type Verdict struct {
	Action Action
	Target table.Target
}

func verdict(a Action) Verdict {
	return Verdict{Action: a}
}

// Stats counts verdicts per action of the in-process transforms. The kernel
// programs keep no counters, so a running tunnel has nothing to report here.
type Stats struct {
	counters [Redirect + 1]atomic.Uint64
}

func (s *Stats) add(a Action) {
	if a <= Redirect {
		s.counters[a].Add(1)
	}
}

// Snapshot returns the current counters keyed by action
func (s *Stats) Snapshot() map[Action]uint64 {
	out := make(map[Action]uint64, len(s.counters))
	for i := range s.counters {
		out[Action(i)] = s.counters[i].Load()
	}
	return out
}
