package tunnel

import (
	"context"
	"errors"
	"github.com/gandalfast/etherzdp/bpfprog"
	"github.com/gandalfast/etherzdp/config"
	"github.com/gandalfast/etherzdp/resolver"
	"github.com/gandalfast/etherzdp/table"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"net/netip"
	"testing"
)

// emptyHost has no addresses, every resolution fails before the kernel is touched
type emptyHost struct {
	addrCalls int
}

func (h *emptyHost) AddrList() ([]resolver.Addr, error) {
	h.addrCalls++
	return nil, nil
}

func (h *emptyHost) LinkByIndex(int) (resolver.Link, error) {
	return resolver.Link{}, errors.New("no links")
}

func (h *emptyHost) LinkByName(string) (resolver.Link, error) {
	return resolver.Link{}, errors.New("no links")
}

func (h *emptyHost) Neighbors(int) ([]resolver.Neighbor, error) {
	return nil, nil
}

func (h *emptyHost) Solicit(context.Context, resolver.Link, netip.Addr) error {
	return nil
}

func validSetup(t *testing.T) *config.Setup {
	t.Helper()
	nop := zerolog.Nop()
	setup := config.DefaultSetup()
	setup.Logger = &nop
	setup.SourceAddr = "2001:db8::1"
	setup.DestinationAddr = "2001:db8::2"
	setup.InterfaceName = "lan0"
	require.NoError(t, setup.Validate())
	return setup
}

func TestNewRequiresValidatedSetup(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)

	setup := config.DefaultSetup()
	setup.SourceAddr = "2001:db8::1"
	_, err = New(setup)
	require.Error(t, err)

	tun, err := New(validSetup(t))
	require.NoError(t, err)
	assert.IsType(t, resolver.NetlinkHost{}, tun.host)
}

// countingLoader hands out programs without kernel objects; their maps panic
// if anything is written to them
type countingLoader struct {
	loads int
	opts  []bpfprog.Options
}

func (l *countingLoader) load(opts bpfprog.Options) (*bpfprog.Objects, error) {
	l.loads++
	l.opts = append(l.opts, opts)
	return &bpfprog.Objects{Maps: new(bpfprog.Maps)}, nil
}

func TestStartResolutionFailure(t *testing.T) {
	host := &emptyHost{}
	setup := validSetup(t)
	setup.Strict = true
	tun, err := New(setup, WithHost(host))
	require.NoError(t, err)
	loader := &countingLoader{}
	tun.load = loader.load

	err = tun.Start(context.Background())
	require.ErrorIs(t, err, resolver.ErrLocalAddressNotFound)
	assert.Equal(t, 1, host.addrCalls)
	assert.Equal(t, 1, loader.loads)
	assert.Equal(t, []bpfprog.Options{{StrictDecap: true}}, loader.opts)
	assert.Equal(t, table.Config{}, tun.Config())
	assert.Nil(t, tun.objs)
	assert.Empty(t, tun.attached)

	// A failed start can be retried
	err = tun.Start(context.Background())
	require.ErrorIs(t, err, resolver.ErrLocalAddressNotFound)
	assert.Equal(t, 2, host.addrCalls)
	assert.Equal(t, 2, loader.loads)

	require.NoError(t, tun.Close())
}

func TestStartLoadFailure(t *testing.T) {
	host := &emptyHost{}
	tun, err := New(validSetup(t), WithHost(host))
	require.NoError(t, err)
	loadErr := errors.New("verifier said no")
	tun.load = func(bpfprog.Options) (*bpfprog.Objects, error) {
		return nil, loadErr
	}

	require.ErrorIs(t, tun.Start(context.Background()), loadErr)
	assert.Zero(t, host.addrCalls, "nothing is resolved without programs")
	require.NoError(t, tun.Close())
}

func TestCloseIdempotent(t *testing.T) {
	tun, err := New(validSetup(t), WithHost(&emptyHost{}))
	require.NoError(t, err)

	require.NoError(t, tun.Close())
	require.NoError(t, tun.Close())

	err = tun.Start(context.Background())
	require.ErrorIs(t, err, ErrClosed)
}
