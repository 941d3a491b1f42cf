package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"lanwake/internal/scan"
	"lanwake/internal/store"
	"lanwake/internal/ui"
)

func (c *cli) newDevicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "devices",
		Aliases: []string{"saved"},
		Short:   "Manage saved wake targets",
	}
	cmd.AddCommand(
		c.newDevicesListCmd(),
		c.newDevicesAddCmd(),
		c.newDevicesRemoveCmd(),
		c.newDevicesImportCmd(),
	)
	return cmd
}

func (c *cli) newDevicesListCmd() *cobra.Command {
	var (
		group  string
		format string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validFormat(format); err != nil {
				return err
			}
			st, err := c.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			var devices []store.Device
			if group == "" {
				devices, err = st.ListDevices()
			} else {
				devices, err = st.ListDevicesInGroup(group)
			}
			if err != nil {
				return err
			}
			if devices == nil {
				devices = []store.Device{}
			}

			switch format {
			case formatJSON:
				enc := json.NewEncoder(c.out)
				enc.SetIndent("", "  ")
				return enc.Encode(devices)
			case formatYAML:
				return encodeYAML(c.out, devices)
			}
			if len(devices) == 0 {
				fmt.Fprintln(c.out, "no saved devices")
				return nil
			}
			fmt.Fprintln(c.out, ui.SavedTable(devices, tableWidth()))
			return nil
		},
	}
	cmd.Flags().StringVarP(&group, "group", "g", "", "only list devices in this group")
	cmd.Flags().StringVarP(&format, "format", "f", formatTable, "output format (table, json, yaml)")
	return cmd
}

func (c *cli) newDevicesAddCmd() *cobra.Command {
	var d store.Device
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Save a device",
		Long: `Save a device, or replace one when --id is given.

Examples:
  lanwake devices add --name NAS --mac AA:BB:CC:DD:EE:FF --ip 192.168.1.10
  lanwake devices add --id 3 --name "Gaming PC" --mac 00-11-22-33-44-55 --ip 192.168.1.20 --group Office`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, st, err := c.newApp()
			if err != nil {
				return err
			}
			defer st.Close()

			if d.Port == 0 {
				d.Port = c.cfg.WOL.DefaultPort
			}
			if err := a.AddDevice(&d); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "saved %s (id %d) in %s\n", d.Name, d.ID, d.GroupName)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.Int64Var(&d.ID, "id", 0, "replace the saved device with this id")
	flags.StringVar(&d.Name, "name", "", "display name (defaults to the IP)")
	flags.StringVar(&d.MACAddress, "mac", "", "MAC address")
	flags.StringVar(&d.IPAddress, "ip", "", "IPv4 address")
	flags.IntVar(&d.Port, "port", 0, "WOL UDP port (default from config)")
	flags.StringVarP(&d.GroupName, "group", "g", "", "group (defaults to the configured default group)")
	flags.IntVar(&d.Color, "color", 0, "ARGB color used by graphical clients")
	cmd.MarkFlagRequired("mac")
	cmd.MarkFlagRequired("ip")
	return cmd
}

func (c *cli) newDevicesRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"remove", "delete"},
		Short:   "Remove a saved device",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid device id %q", args[0])
			}
			st, err := c.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.DeleteDevice(id); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "removed device %d\n", id)
			return nil
		},
	}
}

func (c *cli) newDevicesImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <export.json>",
		Short: "Save the devices with MAC addresses from a scan export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			_, devices, err := scan.LoadExport(f)
			if err != nil {
				return fmt.Errorf("failed to read export: %w", err)
			}

			a, st, err := c.newApp()
			if err != nil {
				return err
			}
			defer st.Close()

			saved := saveWithMAC(a, devices)
			fmt.Fprintf(c.out, "imported %d of %d devices\n", saved, len(devices))
			return nil
		},
	}
}
