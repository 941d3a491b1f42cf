package scan

import (
	"errors"
	"fmt"
	"time"
)

const (
	// PingServiceType marks records found by the ICMP sweep.
	PingServiceType = "ping_discovered"
	// DefaultWOLPort is the port attached to every discovered device.
	DefaultWOLPort = 9
	// HostTotal is the number of host addresses probed in a /24.
	HostTotal = 254
)

// ErrScanInProgress is returned by Start while a scan is running.
var ErrScanInProgress = errors.New("scan already in progress")

// NetworkDevice is a host observed during a scan.
type NetworkDevice struct {
	Name             string    `json:"name" yaml:"name"`
	IP               string    `json:"ip" yaml:"ip"`
	Port             uint16    `json:"port" yaml:"port"`
	ServiceType      string    `json:"serviceType" yaml:"serviceType"`
	MACAddress       string    `json:"macAddress,omitempty" yaml:"macAddress,omitempty"`
	BroadcastAddress string    `json:"broadcastAddress" yaml:"broadcastAddress"`
	Vendor           string    `json:"vendor,omitempty" yaml:"vendor,omitempty"`
	DiscoveredAt     time.Time `json:"discoveredAt" yaml:"discoveredAt"`
}

// Key is the identity used to deduplicate devices.
func (d NetworkDevice) Key() string {
	return fmt.Sprintf("%s|%s|%d|%s", d.IP, d.Name, d.Port, d.ServiceType)
}

// ScanState is the externally visible scan status.
type ScanState struct {
	IsScanning bool `json:"isScanning"`
	Progress   uint `json:"progress"`
	Total      uint `json:"total"`
}

// Snapshot is a point-in-time copy of the manager state.
type Snapshot struct {
	Session string          `json:"session,omitempty"`
	Subnet  string          `json:"subnet,omitempty"`
	State   ScanState       `json:"state"`
	Devices []NetworkDevice `json:"devices"`
	Updated time.Time       `json:"updated"`
}

// Config describes the timing and fan-out of a scan run.
type Config struct {
	Chains          int
	PingTimeout     time.Duration
	Window          time.Duration
	Grace           time.Duration
	PriorityStagger time.Duration
	Stagger         time.Duration
	ListenerPause   time.Duration
	DNSTimeout      time.Duration
	NameTimeout     time.Duration
	// SyntheticNames enables "Device <octet>" style names when no
	// resolver produces one.
	SyntheticNames bool
	// ActiveARP sends an ARP request when the neighbor table has no entry.
	ActiveARP bool

	ServiceTypes     []string
	PriorityServices []string
}

// DefaultConfig returns the standard scan timings.
func DefaultConfig() Config {
	return Config{
		Chains:           25,
		PingTimeout:      200 * time.Millisecond,
		Window:           3 * time.Second,
		Grace:            time.Second,
		PriorityStagger:  100 * time.Millisecond,
		Stagger:          80 * time.Millisecond,
		ListenerPause:    500 * time.Millisecond,
		DNSTimeout:       800 * time.Millisecond,
		NameTimeout:      1500 * time.Millisecond,
		SyntheticNames:   true,
		ActiveARP:        true,
		ServiceTypes:     append([]string(nil), ServiceTypes...),
		PriorityServices: append([]string(nil), PriorityServiceTypes...),
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.Chains <= 0 {
		return errors.New("chains must be greater than 0")
	}
	if c.Chains > HostTotal {
		return fmt.Errorf("chains cannot exceed %d", HostTotal)
	}
	if c.PingTimeout <= 0 {
		return errors.New("ping timeout must be positive")
	}
	if c.Window <= 0 {
		return errors.New("window must be positive")
	}
	for name, d := range map[string]time.Duration{
		"grace":            c.Grace,
		"priority stagger": c.PriorityStagger,
		"stagger":          c.Stagger,
		"listener pause":   c.ListenerPause,
		"dns timeout":      c.DNSTimeout,
		"name timeout":     c.NameTimeout,
	} {
		if d < 0 {
			return fmt.Errorf("%s cannot be negative", name)
		}
	}
	return nil
}
