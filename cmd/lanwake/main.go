// Lanwake discovers devices on the local /24 network and wakes saved
// machines with Wake-on-LAN magic packets.
//
// Usage:
//
//	lanwake [command] [flags]
//
// See 'lanwake --help' for available commands.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"lanwake/internal/app"
	"lanwake/internal/config"
	"lanwake/internal/logging"
	"lanwake/internal/scan"
	"lanwake/internal/store"
	"lanwake/internal/version"
	"lanwake/internal/wol"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return execute(ctx, args, os.Stdout, os.Stderr)
}

func execute(ctx context.Context, args []string, out, errOut io.Writer) error {
	root := newRootCmd(out, errOut)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// cli carries the state shared by every subcommand.
type cli struct {
	out    io.Writer
	errOut io.Writer

	cfgFile  string
	logLevel string
	dataDir  string

	cfg *config.Config
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	c := &cli{out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "lanwake",
		Short: "LAN device discovery and Wake-on-LAN",
		Long: `lanwake scans the local /24 network with an ICMP sweep and mDNS service
discovery, names what it finds, and wakes saved devices with magic packets.`,
		Version:       version.Full(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logging.Sync()
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "config file (default is $HOME/.lanwake/config.yaml)")
	flags.StringVar(&c.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&c.dataDir, "data-dir", "", "directory holding the database and config")

	root.AddCommand(
		c.newScanCmd(),
		c.newWatchCmd(),
		c.newWakeCmd(),
		c.newDevicesCmd(),
		c.newGroupsCmd(),
		c.newServeCmd(),
		c.newConfigCmd(),
		newVersionCmd(),
	)
	return root
}

func (c *cli) load() error {
	cfg, err := config.Load(c.cfgFile)
	if err != nil {
		return err
	}
	if c.dataDir != "" {
		cfg.DataDir = c.dataDir
		cfg.DBPath = filepath.Join(cfg.DataDir, "lanwake.db")
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}
	if err := logging.Initialize(cfg.LogLevel); err != nil {
		return err
	}
	c.cfg = cfg
	return nil
}

func (c *cli) openStore() (*store.Store, error) {
	if err := c.cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	st, err := store.Open(c.cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := st.InsertGroupIfAbsent(c.cfg.DefaultGroup); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

func (c *cli) newManager() (*scan.Manager, error) {
	return scan.NewManager(c.cfg.Engine(), scan.WithLogger(logging.Named("scan")))
}

// newApp wires the engine, the store and the transmitter. The caller
// closes the returned store.
func (c *cli) newApp() (*app.App, *store.Store, error) {
	manager, err := c.newManager()
	if err != nil {
		return nil, nil, err
	}
	st, err := c.openStore()
	if err != nil {
		return nil, nil, err
	}
	a := app.New(manager, st, wol.NewTransmitter(logging.Named("wol")),
		app.WithLogger(logging.Named("app")),
		app.WithSelectedGroup(c.cfg.DefaultGroup),
	)
	return a, st, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "lanwake %s (commit: %s)\n", version.Version, version.Commit)
		},
	}
}
