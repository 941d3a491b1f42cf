package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"lanwake/internal/api"
	"lanwake/internal/logging"
	"lanwake/internal/ui"
)

func (c *cli) newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve the JSON API with a server-sent event stream of scan snapshots.

Examples:
  lanwake serve
  lanwake serve --addr 0.0.0.0:8787`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, st, err := c.newApp()
			if err != nil {
				return err
			}
			defer st.Close()

			if addr == "" {
				addr = c.cfg.APIAddr
			}
			fmt.Fprintf(c.errOut, "lanwake API available at http://%s\n", addr)
			fmt.Fprintln(c.errOut, "Press Ctrl+C to stop")

			srv := api.New(cmd.Context(), a, logging.Named("api"))
			return srv.Run(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}

func (c *cli) newWatchCmd() *cobra.Command {
	var noStart bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch a scan live in the terminal",
		Long: `Open a terminal view of the device list that updates while scans run.

Keys: s scan, x stop, c clear, q quit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, st, err := c.newApp()
			if err != nil {
				return err
			}
			defer st.Close()
			return ui.RunWatch(cmd.Context(), a, !noStart)
		},
	}
	cmd.Flags().BoolVar(&noStart, "no-start", false, "open the view without starting a scan")
	return cmd
}
