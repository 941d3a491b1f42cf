package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"lanwake/internal/app"
	"lanwake/internal/store"
	"lanwake/internal/ui"
	"lanwake/internal/wol"
)

var errWakeFailed = errors.New("wake failed")

func (c *cli) newWakeCmd() *cobra.Command {
	var (
		group string
		ip    string
		port  int
	)

	cmd := &cobra.Command{
		Use:   "wake [id|name|mac]",
		Short: "Send a Wake-on-LAN packet",
		Long: `Wake a saved device by id or name, an ad-hoc MAC address, or every device
in a group.

Examples:
  lanwake wake 3
  lanwake wake "Gaming PC"
  lanwake wake AA:BB:CC:DD:EE:FF --ip 192.168.1.20
  lanwake wake --group Office`,
		Args: func(cmd *cobra.Command, args []string) error {
			if group != "" {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			a, st, err := c.newApp()
			if err != nil {
				return err
			}
			defer st.Close()

			if group != "" {
				return c.wakeGroup(cmd, a, group)
			}

			if port == 0 {
				port = c.cfg.WOL.DefaultPort
			}
			d, err := resolveTarget(a, args[0], ip, port)
			if err != nil {
				return err
			}
			ok, msg := a.Wake(cmd.Context(), d)
			fmt.Fprintln(c.out, ui.Result(ok, msg))
			if !ok {
				return errWakeFailed
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&group, "group", "g", "", "wake every saved device in this group")
	cmd.Flags().StringVar(&ip, "ip", "", "IP address used to pick the broadcast address for an ad-hoc MAC")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "UDP port for an ad-hoc MAC (default from config)")
	return cmd
}

func (c *cli) wakeGroup(cmd *cobra.Command, a *app.App, group string) error {
	results, err := a.WakeGroup(cmd.Context(), group)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return fmt.Errorf("group %q has no saved devices", group)
	}
	failed := 0
	for _, r := range results {
		fmt.Fprintln(c.out, ui.Result(r.OK, r.Message))
		if !r.OK {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d devices", errWakeFailed, failed, len(results))
	}
	return nil
}

// resolveTarget matches target against saved device ids and names, then
// falls back to treating it as a MAC address.
func resolveTarget(a *app.App, target, ip string, port int) (store.Device, error) {
	devices, err := a.SavedDevices()
	if err != nil {
		return store.Device{}, err
	}
	if id, err := strconv.ParseInt(target, 10, 64); err == nil {
		for _, d := range devices {
			if d.ID == id {
				return d, nil
			}
		}
	}
	for _, d := range devices {
		if strings.EqualFold(d.Name, target) {
			return d, nil
		}
	}
	if wol.ValidMAC(target) {
		return store.Device{Name: target, MACAddress: target, IPAddress: ip, Port: port}, nil
	}
	return store.Device{}, fmt.Errorf("no saved device or MAC address matches %q", target)
}
