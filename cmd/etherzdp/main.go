package main

import (
	"context"
	"errors"
	"fmt"
	"github.com/gandalfast/etherzdp/config"
	"github.com/gandalfast/etherzdp/tunnel"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"os"
	"os/signal"
	"syscall"
)

var cmd Cmd

// Cmd is the command line arguments not covered by config.Setup.
type Cmd struct {
	// ConfigPath is the path to the optional configuration file.
	ConfigPath string
}

var rootCmd = &cobra.Command{
	Use:   "etherzdp",
	Short: "EtherIP over IPv6 tunnel running in XDP",
	Long: `etherzdp bridges the Ethernet segment of an interface to a remote peer by
encapsulating its frames in EtherIP over IPv6. The underlay interface and
every hardware address are derived from the host tables.`,
	Args: cobra.NoArgs,
	Run: func(rawCmd *cobra.Command, _ []string) {
		if err := run(rawCmd, cmd); err != nil {
			var interrupted Interrupted
			if errors.As(err, &interrupted) {
				return
			}

			fmt.Printf("ERROR: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	def := config.DefaultSetup()

	flags := rootCmd.Flags()
	flags.StringVarP(&cmd.ConfigPath, "config", "c", "", "Path to the configuration file")
	flags.StringP("src-addr", "s", "", "Local tunnel IPv6 address, configured on the underlay interface")
	flags.StringP("dst-addr", "d", "", "Peer tunnel IPv6 address")
	flags.StringP("iface", "i", def.InterfaceName, "Interface whose Ethernet segment is tunneled")
	flags.Bool("tap", false, "Create the tunneled interface as a persistent TAP device")
	flags.String("log-level", def.LogLevelName, "Log level: error, info, debug, trace")
	flags.String("log-file", "", "Write rotated logs to this file instead of the console")
	flags.Duration("resolve-timeout", def.ResolveTimeout, "Bound on peer resolution at startup")
	flags.Bool("no-solicit", false, "Fail when the peer is not in the neighbor cache instead of soliciting it")
	flags.Bool("strict", false, "Check outer next header and addresses before decapsulating")
	flags.Bool("xdp-generic", false, "Attach programs in generic (SKB) mode")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
}

func run(rawCmd *cobra.Command, cmd Cmd) error {
	setup, err := config.Load(cmd.ConfigPath, rawCmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := setup.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	log := setup.Logger

	tun, err := tunnel.New(setup)
	if err != nil {
		return fmt.Errorf("failed to initialize tunnel: %w", err)
	}
	defer func() {
		if err := tun.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close tunnel")
		}
	}()

	wg, ctx := errgroup.WithContext(context.Background())
	wg.Go(func() error {
		if err := tun.Start(ctx); err != nil {
			return err
		}
		log.Info().Msg("waiting for SIGINT or SIGTERM")
		<-ctx.Done()
		return nil
	})
	wg.Go(func() error {
		err := WaitInterrupted(ctx)
		var interrupted Interrupted
		if errors.As(err, &interrupted) {
			log.Info().Stringer("signal", interrupted.Signal).Msg("caught signal")
		}
		return err
	})

	return wg.Wait()
}

type Interrupted struct {
	os.Signal
}

func (m Interrupted) Error() string {
	return m.String()
}

// WaitInterrupted blocks until either SIGINT or SIGTERM signal is received or
// the provided context is canceled.
func WaitInterrupted(ctx context.Context) error {
	ch := make(chan os.Signal, 1)

	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(ch)
	select {
	case v := <-ch:
		return Interrupted{Signal: v}
	case <-ctx.Done():
		return ctx.Err()
	}
}
