// Package tunnel wires resolution, kernel programs and interfaces together
// into a running EtherIP endpoint.
package tunnel

import (
	"context"
	"errors"
	"fmt"
	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/rlimit"
	"github.com/gandalfast/etherzdp/bpfprog"
	"github.com/gandalfast/etherzdp/config"
	"github.com/gandalfast/etherzdp/datapath"
	"github.com/gandalfast/etherzdp/resolver"
	"github.com/gandalfast/etherzdp/table"
	"github.com/rs/zerolog"
	"sync"
	"sync/atomic"
)

var (
	ErrClosed         = errors.New("tunnel is closed")
	ErrAlreadyStarted = errors.New("tunnel already started")
)

// Tunnel is one EtherIP endpoint: the decapsulation program runs on the
// underlay (WAN) interface, the encapsulation program on the tunneled
// segment (LAN) interface.
type Tunnel struct {
	logger  *zerolog.Logger
	setup   *config.Setup
	host    resolver.Host
	load    func(bpfprog.Options) (*bpfprog.Objects, error)
	closed  atomic.Bool
	started atomic.Bool

	mtx      sync.Mutex
	cfg      table.Config
	tap      *datapath.TAPInterface
	objs     *bpfprog.Objects
	promisc  *promiscuousMode
	attached []*attachment
}

// Option could be used in New to customize Tunnel upon creation
type Option func(t *Tunnel)

// WithHost replaces the netlink backed host tables used for resolution
func WithHost(h resolver.Host) Option {
	return func(t *Tunnel) {
		t.host = h
	}
}

// New creates a Tunnel from a validated setup, nothing is touched on the
// host until Start.
func New(setup *config.Setup, options ...Option) (*Tunnel, error) {
	if setup == nil {
		return nil, errors.New("setup can't be nil")
	}
	if setup.Logger == nil || !setup.Local.IsValid() || !setup.Peer.IsValid() {
		return nil, errors.New("setup must be validated before creating the tunnel")
	}

	l := setup.Logger.With().Str("Name", "tunnel").Logger()
	t := &Tunnel{
		logger: &l,
		setup:  setup,
		host:   resolver.NetlinkHost{},
		load:   bpfprog.Load,
	}
	for _, o := range options {
		o(t)
	}
	return t, nil
}

// Start loads the programs, resolves the tunnel configuration, commits it
// into the program maps and attaches the programs. On failure everything
// done so far is undone.
func (t *Tunnel) Start(ctx context.Context) (err error) {
	if t.closed.Load() {
		return ErrClosed
	}
	if !t.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	t.mtx.Lock()
	defer t.mtx.Unlock()
	defer func() {
		if err != nil {
			_ = t.teardown()
			t.started.Store(false)
		}
	}()

	if err := rlimit.RemoveMemlock(); err != nil {
		t.logger.Debug().Err(err).Msg("remove limit on locked memory failed")
	}

	lanName := t.setup.InterfaceName
	if t.setup.TAP {
		if t.tap, err = datapath.NewTAPIf(t.logger, lanName, 0); err != nil {
			return err
		}
		lanName = t.tap.Name()
	}

	if t.objs, err = t.load(bpfprog.Options{StrictDecap: t.setup.Strict}); err != nil {
		return err
	}

	resOpts := []resolver.Option{resolver.WithTimeout(t.setup.ResolveTimeout)}
	if t.setup.NoSolicit {
		resOpts = append(resOpts, resolver.WithoutSolicitation())
	}
	req := resolver.Request{
		Local:        t.setup.Local,
		Peer:         t.setup.Peer,
		LANInterface: lanName,
	}
	// Nothing reaches the maps unless resolution fully succeeded
	cfg, err := resolver.New(t.logger, t.host, resOpts...).ResolveAndCommit(ctx, req, t.objs.Maps)
	if err != nil {
		return fmt.Errorf("failed to configure tunnel, %w", err)
	}

	t.logInterface("wan", cfg.WANName)
	t.logInterface("lan", cfg.LANName)

	// Frames for any station of the segment must reach the program
	if t.promisc, err = setPromiscuousMode(cfg.LAN.Ifindex); err != nil {
		return fmt.Errorf("failed to set %v to promisc mode, %w", cfg.LANName, err)
	}

	if err := t.attach(t.objs.Decap, cfg.WAN.Ifindex, cfg.WANName); err != nil {
		return err
	}
	if err := t.attach(t.objs.Encap, cfg.LAN.Ifindex, cfg.LANName); err != nil {
		return err
	}

	t.cfg = cfg
	t.logger.Info().Str("wan", cfg.WANName).Str("lan", cfg.LANName).Bool("strict", t.setup.Strict).Msg("tunnel up")
	return nil
}

func (t *Tunnel) attach(prog *ebpf.Program, ifindex int, name string) error {
	a, err := attachProgram(prog, ifindex, t.setup.GenericXDP)
	if err != nil {
		if !t.setup.GenericXDP {
			return fmt.Errorf("failed to attach program to %v, try generic XDP mode: %w", name, err)
		}
		return fmt.Errorf("failed to attach program to %v, %w", name, err)
	}
	t.attached = append(t.attached, a)
	t.logger.Debug().Str("interface", name).Int("ifindex", ifindex).Bool("generic", t.setup.GenericXDP).Msg("program attached")
	return nil
}

// Config returns the committed configuration, zero before a successful Start
func (t *Tunnel) Config() table.Config {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	return t.cfg
}

// Close detaches the programs and releases every resource. It can be called
// more than once and before Start.
func (t *Tunnel) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	t.mtx.Lock()
	defer t.mtx.Unlock()
	t.logger.Debug().Msg("tunnel stopping")
	return t.teardown()
}

// teardown must be called with mtx held
func (t *Tunnel) teardown() error {
	var errs []error
	for i := len(t.attached) - 1; i >= 0; i-- {
		if err := t.attached[i].detach(); err != nil {
			errs = append(errs, fmt.Errorf("failed to detach program from ifindex %d, %w", t.attached[i].ifindex, err))
		}
	}
	t.attached = nil

	if t.promisc != nil {
		errs = append(errs, t.promisc.Close())
		t.promisc = nil
	}
	if t.objs != nil {
		errs = append(errs, t.objs.Close())
		t.objs = nil
	}
	if t.tap != nil {
		errs = append(errs, t.tap.Close())
		t.tap = nil
	}
	t.cfg = table.Config{}
	return errors.Join(errs...)
}
