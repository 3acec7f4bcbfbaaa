// Package table holds the configuration shared between the control plane and
// the data plane: hardware addresses, tunnel endpoint addresses and redirect
// targets, each indexed by logical port.
package table

import "fmt"

// Port is the logical role used as key in every table
type Port uint32

const (
	// WAN is the underlay side: own addresses and the underlay interface
	WAN Port = 0
	// LAN is the tunneled segment side: peer addresses and the inner interface
	LAN Port = 1
)

// MaxEntries is the capacity of every table
const MaxEntries = 4

func (p Port) String() string {
	switch p {
	case WAN:
		return "WAN"
	case LAN:
		return "LAN"
	default:
		return fmt.Sprintf("Port(%d)", uint32(p))
	}
}
