package scan

import (
	"encoding/json"
	"errors"
	"io"
	"time"
)

const exportVersion = 1

// ErrUnsupportedExport is returned by LoadExport for unknown versions.
var ErrUnsupportedExport = errors.New("unsupported export version")

// Export is the serialisable form of a finished or running scan.
type Export struct {
	GeneratedAt time.Time    `json:"generated_at"`
	Subnet      string       `json:"subnet,omitempty"`
	Progress    uint         `json:"progress"`
	Total       uint         `json:"total"`
	Devices     []ExportItem `json:"devices"`
}

// ExportItem captures a single device for export.
type ExportItem struct {
	Name             string    `json:"name"`
	IP               string    `json:"ip"`
	Port             uint16    `json:"port"`
	ServiceType      string    `json:"service_type"`
	MACAddress       string    `json:"mac_address,omitempty"`
	BroadcastAddress string    `json:"broadcast_address"`
	Vendor           string    `json:"vendor,omitempty"`
	DiscoveredAt     time.Time `json:"discovered_at"`
}

// SaveExport writes the snapshot to w as versioned, indented JSON.
func SaveExport(w io.Writer, snap Snapshot) error {
	export := Export{
		GeneratedAt: time.Now().UTC(),
		Subnet:      snap.Subnet,
		Progress:    snap.State.Progress,
		Total:       snap.State.Total,
		Devices:     make([]ExportItem, 0, len(snap.Devices)),
	}
	for _, d := range snap.Devices {
		export.Devices = append(export.Devices, ExportItem{
			Name:             d.Name,
			IP:               d.IP,
			Port:             d.Port,
			ServiceType:      d.ServiceType,
			MACAddress:       d.MACAddress,
			BroadcastAddress: d.BroadcastAddress,
			Vendor:           d.Vendor,
			DiscoveredAt:     d.DiscoveredAt,
		})
	}

	payload := struct {
		Version int    `json:"version"`
		Export  Export `json:"export"`
	}{
		Version: exportVersion,
		Export:  export,
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(payload)
}

// LoadExport reads an export written by SaveExport and returns its devices.
func LoadExport(r io.Reader) (Export, []NetworkDevice, error) {
	var payload struct {
		Version int    `json:"version"`
		Export  Export `json:"export"`
	}
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return Export{}, nil, err
	}
	if payload.Version != exportVersion {
		return Export{}, nil, ErrUnsupportedExport
	}

	devices := make([]NetworkDevice, 0, len(payload.Export.Devices))
	for _, item := range payload.Export.Devices {
		devices = append(devices, NetworkDevice{
			Name:             item.Name,
			IP:               item.IP,
			Port:             item.Port,
			ServiceType:      item.ServiceType,
			MACAddress:       item.MACAddress,
			BroadcastAddress: item.BroadcastAddress,
			Vendor:           item.Vendor,
			DiscoveredAt:     item.DiscoveredAt,
		})
	}
	return payload.Export, devices, nil
}
