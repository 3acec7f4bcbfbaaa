package resolver

import "errors"

var (
	ErrInvalidRequest       = errors.New("invalid resolution request")
	ErrLocalAddressNotFound = errors.New("local address not configured on any interface")
	ErrLinkNotFound         = errors.New("link not found")
	ErrNeighborNotFound     = errors.New("peer not found in neighbor cache")
	ErrLANInterfaceNotFound = errors.New("LAN interface not found")
)
