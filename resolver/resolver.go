// Package resolver derives the tunnel configuration from the local and peer
// tunnel addresses and the LAN interface name, using the host's address, link
// and neighbor tables.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"github.com/cenkalti/backoff/v5"
	"github.com/gandalfast/etherzdp/table"
	"github.com/rs/zerolog"
	"github.com/vishvananda/netlink"
	"net"
	"net/netip"
	"strings"
	"time"
)

// _defaultTimeout bounds a whole resolution
const _defaultTimeout = 5 * time.Second

// Request is the operator supplied input of a resolution
type Request struct {
	// Local is the tunnel address of this endpoint, configured on the underlay interface
	Local netip.Addr
	// Peer is the tunnel address of the remote endpoint
	Peer netip.Addr
	// LANInterface carries the Ethernet segment to tunnel
	LANInterface string
}

// Validate checks the request before any host table is queried.
func (r Request) Validate() error {
	for name, a := range map[string]netip.Addr{"local": r.Local, "peer": r.Peer} {
		if !a.Is6() || a.Is4In6() {
			return fmt.Errorf("%w: %s address %v is not IPv6", ErrInvalidRequest, name, a)
		}
		if a.IsUnspecified() || a.IsMulticast() {
			return fmt.Errorf("%w: %s address %v is not unicast", ErrInvalidRequest, name, a)
		}
	}
	if r.Local.WithZone("") == r.Peer.WithZone("") {
		return fmt.Errorf("%w: local and peer addresses are both %v", ErrInvalidRequest, r.Local)
	}
	if r.LANInterface == "" {
		return fmt.Errorf("%w: LAN interface name can't be empty", ErrInvalidRequest)
	}
	return nil
}

// Resolver runs the resolution against a Host
type Resolver struct {
	logger  *zerolog.Logger
	host    Host
	timeout time.Duration
	solicit bool
	newBack func() backoff.BackOff
}

// Option customizes a Resolver upon creation
type Option func(r *Resolver)

// WithTimeout bounds every Resolve call, zero disables the bound
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		r.timeout = d
	}
}

// WithoutSolicitation makes a neighbor cache miss fatal instead of triggering
// neighbor discovery and waiting for it
func WithoutSolicitation() Option {
	return func(r *Resolver) {
		r.solicit = false
	}
}

// WithBackOff sets the policy used to poll the neighbor cache after a solicitation
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(r *Resolver) {
		r.newBack = newBackOff
	}
}

// New creates a Resolver. A nil logger disables logging.
func New(logger *zerolog.Logger, host Host, options ...Option) *Resolver {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "resolver").Logger()
	r := &Resolver{
		logger:  &l,
		host:    host,
		timeout: _defaultTimeout,
		solicit: true,
		newBack: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 50 * time.Millisecond
			b.MaxInterval = time.Second
			return b
		},
	}
	for _, o := range options {
		o(r)
	}
	return r
}

// Resolve derives the full tunnel configuration. It either returns a
// configuration that passes table.Config.Validate or an error, it never
// returns something partially resolved.
func (r *Resolver) Resolve(ctx context.Context, req Request) (table.Config, error) {
	if err := req.Validate(); err != nil {
		return table.Config{}, err
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	wanIndex, err := r.localInterface(req.Local)
	if err != nil {
		return table.Config{}, err
	}

	wan, err := r.host.LinkByIndex(wanIndex)
	if err != nil {
		return table.Config{}, fmt.Errorf("%w: ifindex %d owning %v: %w", ErrLinkNotFound, wanIndex, req.Local, err)
	}
	if len(wan.HardwareAddr) != 6 {
		return table.Config{}, fmt.Errorf("%w: %s has no Ethernet address (%q)", ErrLinkNotFound, wan.Name, wan.HardwareAddr)
	}
	r.logger.Debug().Str("wan", wan.Name).Int("ifindex", wan.Index).Stringer("mac", wan.HardwareAddr).Msg("found underlay interface")

	peerMAC, err := r.peerHardwareAddr(ctx, wan, req.Peer)
	if err != nil {
		return table.Config{}, err
	}
	r.logger.Debug().Stringer("peer", req.Peer).Stringer("mac", peerMAC).Msg("resolved peer")

	lan, err := r.host.LinkByName(req.LANInterface)
	if err != nil {
		return table.Config{}, fmt.Errorf("%w: %s: %w", ErrLANInterfaceNotFound, req.LANInterface, err)
	}
	if lan.Index == wan.Index {
		return table.Config{}, fmt.Errorf("%w: LAN interface %s is also the underlay interface", ErrInvalidRequest, lan.Name)
	}

	cfg := table.Config{
		LocalMAC: table.MAC(wan.HardwareAddr),
		PeerMAC:  table.MAC(peerMAC),
		LocalIP:  req.Local.WithZone(""),
		PeerIP:   req.Peer.WithZone(""),
		WAN:      table.Target{Ifindex: wan.Index},
		LAN:      table.Target{Ifindex: lan.Index},
		WANName:  wan.Name,
		LANName:  lan.Name,
	}
	if err := cfg.Validate(); err != nil {
		return table.Config{}, err
	}
	return cfg, nil
}

// ResolveAndCommit resolves req and commits the result into w. Nothing is
// written to w unless resolution fully succeeded.
func (r *Resolver) ResolveAndCommit(ctx context.Context, req Request, w table.Writer) (table.Config, error) {
	cfg, err := r.Resolve(ctx, req)
	if err != nil {
		return table.Config{}, err
	}
	if err := table.Commit(w, cfg); err != nil {
		return table.Config{}, err
	}
	r.logger.Info().EmbedObject(cfg).Msg("tunnel configuration committed")
	return cfg, nil
}

func (r *Resolver) localInterface(local netip.Addr) (int, error) {
	addrs, err := r.host.AddrList()
	if err != nil {
		return 0, err
	}
	local = local.WithZone("")
	for _, a := range addrs {
		if a.IP.WithZone("") == local {
			return a.Ifindex, nil
		}
	}

	err = fmt.Errorf("%w: %v", ErrLocalAddressNotFound, local)
	if lister, ok := r.host.(interfaceLister); ok {
		if names, lerr := lister.Interfaces(); lerr == nil && len(names) > 0 {
			err = fmt.Errorf("%w (candidates: %s)", err, strings.Join(names, ", "))
		}
	}
	return 0, err
}

// usableState reports whether a neighbor entry in state holds a hardware
// address the data plane can use
func usableState(state int) bool {
	const usable = netlink.NUD_REACHABLE | netlink.NUD_STALE | netlink.NUD_DELAY |
		netlink.NUD_PROBE | netlink.NUD_PERMANENT | netlink.NUD_NOARP
	return state&usable != 0
}

func (r *Resolver) lookupNeighbor(ifindex int, peer netip.Addr) (net.HardwareAddr, error) {
	neighs, err := r.host.Neighbors(ifindex)
	if err != nil {
		return nil, err
	}
	peer = peer.WithZone("")
	for _, n := range neighs {
		if n.IP.WithZone("") != peer || !usableState(n.State) || len(n.HardwareAddr) != 6 {
			continue
		}
		return n.HardwareAddr, nil
	}
	return nil, ErrNeighborNotFound
}

func (r *Resolver) peerHardwareAddr(ctx context.Context, wan Link, peer netip.Addr) (net.HardwareAddr, error) {
	mac, err := r.lookupNeighbor(wan.Index, peer)
	if err == nil {
		return mac, nil
	}
	if !errors.Is(err, ErrNeighborNotFound) || !r.solicit {
		return nil, fmt.Errorf("failed to resolve %v on %s: %w", peer, wan.Name, err)
	}

	r.logger.Debug().Stringer("peer", peer).Str("wan", wan.Name).Msg("peer not in neighbor cache, soliciting")
	if err := r.host.Solicit(ctx, wan, peer); err != nil {
		return nil, fmt.Errorf("failed to resolve %v on %s: %w: %w", peer, wan.Name, ErrNeighborNotFound, err)
	}

	operation := func() (net.HardwareAddr, error) {
		mac, err := r.lookupNeighbor(wan.Index, peer)
		if err != nil && !errors.Is(err, ErrNeighborNotFound) {
			return nil, backoff.Permanent(err)
		}
		return mac, err
	}
	opts := []backoff.RetryOption{backoff.WithBackOff(r.newBack())}
	if deadline, ok := ctx.Deadline(); ok {
		opts = append(opts, backoff.WithMaxElapsedTime(time.Until(deadline)))
	}

	mac, err = backoff.Retry(ctx, operation, opts...)
	if err != nil {
		if !errors.Is(err, ErrNeighborNotFound) {
			err = fmt.Errorf("%w: %w", ErrNeighborNotFound, err)
		}
		return nil, fmt.Errorf("failed to resolve %v on %s: %w", peer, wan.Name, err)
	}
	return mac, nil
}
