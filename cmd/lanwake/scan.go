package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"lanwake/internal/app"
	"lanwake/internal/logging"
	"lanwake/internal/scan"
	"lanwake/internal/ui"
	"lanwake/internal/wol"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

func validFormat(format string) error {
	switch format {
	case formatTable, formatJSON, formatYAML:
		return nil
	}
	return fmt.Errorf("unknown format %q (want table, json or yaml)", format)
}

func (c *cli) newScanCmd() *cobra.Command {
	var (
		format string
		export string
		save   bool
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan the local network once and print what was found",
		Long: `Run one discovery scan: an ICMP sweep of the local /24 plus mDNS browsing
for common service types. The scan ends after the discovery window.

Examples:
  lanwake scan
  lanwake scan --format json
  lanwake scan --export scan.json --save`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validFormat(format); err != nil {
				return err
			}

			manager, err := c.newManager()
			if err != nil {
				return err
			}

			updates, unsubscribe := manager.Subscribe()
			defer unsubscribe()
			if ui.IsTerminal(os.Stderr) {
				go reportProgress(c.errOut, updates)
			}

			if err := manager.Start(cmd.Context()); err != nil {
				return err
			}
			manager.Wait()
			if ui.IsTerminal(os.Stderr) {
				fmt.Fprint(c.errOut, "\r\033[K")
			}

			snap := manager.Snapshot()
			if export != "" {
				if err := writeExport(export, snap); err != nil {
					return err
				}
			}
			if save {
				if err := c.saveDiscovered(manager, snap.Devices); err != nil {
					return err
				}
			}
			return writeDevices(c.out, format, snap.Devices)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", formatTable, "output format (table, json, yaml)")
	cmd.Flags().StringVar(&export, "export", "", "also write a JSON export of the scan to this file")
	cmd.Flags().BoolVar(&save, "save", false, "save discovered devices that have a MAC address")
	return cmd
}

func reportProgress(w io.Writer, updates <-chan scan.Snapshot) {
	for snap := range updates {
		fmt.Fprintf(w, "\r\033[Kscanning %d/%d, %d devices", snap.State.Progress, snap.State.Total, len(snap.Devices))
	}
}

func writeExport(path string, snap scan.Snapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export: %w", err)
	}
	if err := scan.SaveExport(f, snap); err != nil {
		f.Close()
		return fmt.Errorf("failed to write export: %w", err)
	}
	return f.Close()
}

func (c *cli) saveDiscovered(manager *scan.Manager, devices []scan.NetworkDevice) error {
	st, err := c.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	a := app.New(manager, st, wol.NewTransmitter(logging.Named("wol")), app.WithSelectedGroup(c.cfg.DefaultGroup))
	saved := saveWithMAC(a, devices)
	fmt.Fprintf(c.errOut, "saved %d of %d devices\n", saved, len(devices))
	return nil
}

// saveWithMAC stores every device that carries a MAC and returns how many
// were saved.
func saveWithMAC(a *app.App, devices []scan.NetworkDevice) int {
	saved := 0
	for _, d := range devices {
		if d.MACAddress == "" {
			continue
		}
		if _, err := a.SaveDiscovered(d, ""); err != nil {
			logging.Warn("skipping device", zap.String("ip", d.IP), zap.Error(err))
			continue
		}
		saved++
	}
	return saved
}

func writeDevices(w io.Writer, format string, devices []scan.NetworkDevice) error {
	if devices == nil {
		devices = []scan.NetworkDevice{}
	}
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(devices)
	case formatYAML:
		return encodeYAML(w, devices)
	}

	if len(devices) == 0 {
		_, err := fmt.Fprintln(w, "no devices found")
		return err
	}
	_, err := fmt.Fprintln(w, ui.DeviceTable(devices, tableWidth()))
	return err
}

func encodeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// tableWidth fits tables to the terminal and leaves piped output unbounded.
func tableWidth() int {
	if ui.IsTerminal(os.Stdout) {
		return ui.TerminalWidth()
	}
	return 0
}
