// Package config holds the operator facing configuration of the tunnel:
// defaults, validation, loading from file/env/flags and logger construction.
package config

import (
	"errors"
	"fmt"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"net/netip"
	"strings"
	"time"
)

// _envPrefix prefixes every environment variable, e.g. ETHERZDP_SRC_ADDR
const _envPrefix = "ETHERZDP"

// Setup holds the configuration of one tunnel endpoint
type Setup struct {
	Logger   *zerolog.Logger `mapstructure:"-"`
	LogLevel LoggingLvl      `mapstructure:"-"`

	// LogLevelName is one of error, info, debug, trace
	LogLevelName string `mapstructure:"log-level"`
	// LogFile enables rotated file logging instead of the console
	LogFile string `mapstructure:"log-file"`

	// SourceAddr is the local tunnel address, it must be configured on the underlay interface
	SourceAddr string `mapstructure:"src-addr"`
	// DestinationAddr is the peer tunnel address
	DestinationAddr string `mapstructure:"dst-addr"`
	// InterfaceName is the inner device whose frames are tunneled
	InterfaceName string `mapstructure:"iface"`
	// TAP creates InterfaceName as a TAP device instead of using an existing one
	TAP bool `mapstructure:"tap"`

	// ResolveTimeout bounds peer resolution at startup
	ResolveTimeout time.Duration `mapstructure:"resolve-timeout"`
	// NoSolicit makes a neighbor cache miss fatal instead of triggering discovery
	NoSolicit bool `mapstructure:"no-solicit"`
	// Strict makes decapsulation check the outer next header and addresses
	Strict bool `mapstructure:"strict"`
	// GenericXDP attaches the programs in generic (SKB) mode, for drivers
	// without native XDP support
	GenericXDP bool `mapstructure:"xdp-generic"`

	// Local and Peer are parsed by Validate
	Local netip.Addr `mapstructure:"-"`
	Peer  netip.Addr `mapstructure:"-"`
}

// DefaultSetup returns a Setup with following defaults:
// - inner device eth0
// - info logging on the console
// - 5 seconds resolution timeout with neighbor solicitation
// - version byte only decapsulation
func DefaultSetup() *Setup {
	return &Setup{
		LogLevel:       LogLvlInfo,
		LogLevelName:   "info",
		InterfaceName:  "eth0",
		ResolveTimeout: 5 * time.Second,
	}
}

// Validate parses addresses and log level, and creates the default logger
// when none was set.
func (setup *Setup) Validate() error {
	if setup.LogLevelName != "" {
		lvl, err := ParseLoggingLvl(setup.LogLevelName)
		if err != nil {
			return err
		}
		setup.LogLevel = lvl
	}

	if setup.Logger == nil {
		logger, err := NewLogger(setup.LogLevel, setup.LogFile)
		if err != nil {
			return err
		}
		setup.Logger = logger
	}

	if setup.InterfaceName == "" {
		return errors.New("interface name can't be empty")
	} else if setup.SourceAddr == "" {
		return errors.New("source address can't be empty")
	} else if setup.DestinationAddr == "" {
		return errors.New("destination address can't be empty")
	} else if setup.ResolveTimeout < 0 {
		return errors.New("resolve timeout can't be negative")
	}

	var err error
	if setup.Local, err = parseIPv6(setup.SourceAddr); err != nil {
		return fmt.Errorf("invalid source address: %w", err)
	}
	if setup.Peer, err = parseIPv6(setup.DestinationAddr); err != nil {
		return fmt.Errorf("invalid destination address: %w", err)
	}
	return nil
}

func parseIPv6(s string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, err
	}
	if !addr.Is6() || addr.Is4In6() {
		return netip.Addr{}, fmt.Errorf("%v is not an IPv6 address", addr)
	}
	return addr, nil
}

// Load builds a Setup from defaults, an optional config file, ETHERZDP_*
// environment variables and flags, in increasing order of precedence.
// Flags are looked up by the mapstructure names of Setup.
func Load(path string, flags *pflag.FlagSet) (*Setup, error) {
	v := viper.New()

	def := DefaultSetup()
	v.SetDefault("log-level", def.LogLevelName)
	v.SetDefault("iface", def.InterfaceName)
	v.SetDefault("resolve-timeout", def.ResolveTimeout)
	v.SetDefault("tap", false)
	v.SetDefault("no-solicit", false)
	v.SetDefault("strict", false)
	v.SetDefault("xdp-generic", false)
	v.SetDefault("log-file", "")
	v.SetDefault("src-addr", "")
	v.SetDefault("dst-addr", "")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(_envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	setup := DefaultSetup()
	if err := v.Unmarshal(setup); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return setup, nil
}
