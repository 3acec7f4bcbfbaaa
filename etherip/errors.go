package etherip

import (
	"errors"
	"fmt"
)

var (
	ErrNotIPv6    = errors.New("outer header is not IPv6")
	ErrNotEtherIP = errors.New("outer next header is not EtherIP")
	ErrBadVersion = errors.New("unsupported EtherIP version")
)

type ShortFrameError struct {
	Length int
}

func (e ShortFrameError) Error() string {
	return fmt.Sprintf("frame too short for outer headers: %d < %d", e.Length, OuterHeaderLen)
}
