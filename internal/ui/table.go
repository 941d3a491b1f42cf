package ui

import (
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"lanwake/internal/scan"
	"lanwake/internal/store"
)

func newTable(width int, headers ...string) *table.Table {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(PrimaryColor)).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return HeaderCellStyle
			}
			return CellStyle
		})
	if width > 0 {
		t = t.Width(width)
	}
	return t
}

// DeviceTable renders discovered devices. A width of 0 lets the table size
// itself to its content.
func DeviceTable(devices []scan.NetworkDevice, width int) string {
	t := newTable(width, "NAME", "IP", "PORT", "SERVICE", "MAC", "VENDOR")
	for _, d := range devices {
		t = t.Row(
			d.Name,
			d.IP,
			strconv.Itoa(int(d.Port)),
			d.ServiceType,
			orDash(d.MACAddress),
			orDash(d.Vendor),
		)
	}
	return t.String()
}

// SavedTable renders saved wake targets.
func SavedTable(devices []store.Device, width int) string {
	t := newTable(width, "ID", "NAME", "MAC", "IP", "PORT", "GROUP")
	for _, d := range devices {
		t = t.Row(
			strconv.FormatInt(d.ID, 10),
			d.Name,
			d.MACAddress,
			d.IPAddress,
			strconv.Itoa(d.Port),
			d.GroupName,
		)
	}
	return t.String()
}

// GroupTable renders groups, marking the selected one.
func GroupTable(groups []store.Group, selected string, width int) string {
	t := newTable(width, "", "NAME")
	for _, g := range groups {
		mark := ""
		if g.Name == selected {
			mark = "*"
		}
		t = t.Row(mark, g.Name)
	}
	return t.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
