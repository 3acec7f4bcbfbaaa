package config

import (
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validSetup() *Setup {
	nop := zerolog.Nop()
	s := DefaultSetup()
	s.Logger = &nop
	s.SourceAddr = "2001:db8::1"
	s.DestinationAddr = "2001:db8::2"
	s.InterfaceName = "eth1"
	return s
}

func TestValidate(t *testing.T) {
	s := validSetup()
	require.NoError(t, s.Validate())
	assert.Equal(t, "2001:db8::1", s.Local.String())
	assert.Equal(t, "2001:db8::2", s.Peer.String())
	assert.Equal(t, LogLvlInfo, s.LogLevel)
}

func TestValidateErrors(t *testing.T) {
	cases := map[string]func(*Setup){
		"no iface":        func(s *Setup) { s.InterfaceName = "" },
		"no source":       func(s *Setup) { s.SourceAddr = "" },
		"no destination":  func(s *Setup) { s.DestinationAddr = "" },
		"ipv4 source":     func(s *Setup) { s.SourceAddr = "192.0.2.1" },
		"bad destination": func(s *Setup) { s.DestinationAddr = "2001:db8::zz" },
		"mapped source":   func(s *Setup) { s.SourceAddr = "::ffff:192.0.2.1" },
		"bad level":       func(s *Setup) { s.LogLevelName = "verbose" },
		"negative":        func(s *Setup) { s.ResolveTimeout = -time.Second },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			s := validSetup()
			mutate(s)
			require.Error(t, s.Validate())
		})
	}
}

func TestParseLoggingLvl(t *testing.T) {
	for name, want := range map[string]LoggingLvl{
		"error": LogLvlErr,
		"INFO":  LogLvlInfo,
		"debug": LogLvlDebug,
		"trace": LogLvlTrace,
	} {
		got, err := ParseLoggingLvl(name)
		require.NoError(t, err)
		assert.Equal(t, want, got, name)
	}
	_, err := ParseLoggingLvl("loud")
	require.Error(t, err)
}

func TestNewLoggerLevel(t *testing.T) {
	logger, err := NewLogger(LogLvlDebug, "")
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, logger.GetLevel())

	logger, err = NewLogger(LogLvlTrace, filepath.Join(t.TempDir(), "etherzdp.log"))
	require.NoError(t, err)
	assert.Equal(t, zerolog.TraceLevel, logger.GetLevel())
}

func TestLoadDefaults(t *testing.T) {
	s, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "eth0", s.InterfaceName)
	assert.Equal(t, "info", s.LogLevelName)
	assert.Equal(t, 5*time.Second, s.ResolveTimeout)
	assert.False(t, s.TAP)
}

func TestLoadPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etherzdp.yaml")
	content := []byte(`src-addr: "2001:db8::1"
dst-addr: "2001:db8::2"
iface: eth1
resolve-timeout: 2s
strict: true
xdp-generic: true
log-level: debug
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	t.Setenv("ETHERZDP_IFACE", "eth2")
	t.Setenv("ETHERZDP_NO_SOLICIT", "true")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("dst-addr", "", "")
	flags.String("log-level", "info", "")
	require.NoError(t, flags.Parse([]string{"--dst-addr", "2001:db8::3"}))

	s, err := Load(path, flags)
	require.NoError(t, err)

	assert.Equal(t, "2001:db8::1", s.SourceAddr)
	assert.Equal(t, "2001:db8::3", s.DestinationAddr, "flag wins over file")
	assert.Equal(t, "eth2", s.InterfaceName, "env wins over file")
	assert.Equal(t, "debug", s.LogLevelName, "unset flag does not override file")
	assert.Equal(t, 2*time.Second, s.ResolveTimeout)
	assert.True(t, s.Strict)
	assert.True(t, s.NoSolicit)
	assert.True(t, s.GenericXDP)

	require.NoError(t, s.Validate())
	assert.Equal(t, LogLvlDebug, s.LogLevel)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.Error(t, err)
}
