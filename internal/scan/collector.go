package scan

import (
	"sync"
)

// Collector is the shared result set written by the prober and the
// discovery adapter. Writes carry the session id so work belonging to a
// stopped or superseded scan is dropped.
type Collector struct {
	mu       sync.Mutex
	session  string
	devices  []NetworkDevice
	keys     map[string]struct{}
	progress uint
	total    uint
	onChange func()
}

func newCollector(total uint) *Collector {
	return &Collector{
		keys:  make(map[string]struct{}),
		total: total,
	}
}

// Reset clears devices and progress and binds the collector to a session.
func (c *Collector) Reset(session string) {
	c.mu.Lock()
	c.session = session
	c.devices = nil
	c.keys = make(map[string]struct{})
	c.progress = 0
	c.mu.Unlock()
	c.changed()
}

// Detach unbinds the current session and zeroes progress. Devices are kept.
func (c *Collector) Detach() {
	c.mu.Lock()
	c.session = ""
	c.progress = 0
	c.mu.Unlock()
	c.changed()
}

// Add appends the device unless one with the same identity key exists.
func (c *Collector) Add(session string, d NetworkDevice) bool {
	return c.insert(session, d, nil)
}

// AddIfIPAbsent appends the device unless any device already has its IP.
func (c *Collector) AddIfIPAbsent(session string, d NetworkDevice) bool {
	return c.insert(session, d, func(existing NetworkDevice) bool {
		return existing.IP == d.IP
	})
}

// AddIfNameAbsent appends the device unless one with the same IP and name
// exists.
func (c *Collector) AddIfNameAbsent(session string, d NetworkDevice) bool {
	return c.insert(session, d, func(existing NetworkDevice) bool {
		return existing.IP == d.IP && existing.Name == d.Name
	})
}

func (c *Collector) insert(session string, d NetworkDevice, conflicts func(NetworkDevice) bool) bool {
	c.mu.Lock()
	if session == "" || session != c.session {
		c.mu.Unlock()
		return false
	}
	key := d.Key()
	if _, ok := c.keys[key]; ok {
		c.mu.Unlock()
		return false
	}
	if conflicts != nil {
		for _, existing := range c.devices {
			if conflicts(existing) {
				c.mu.Unlock()
				return false
			}
		}
	}
	c.keys[key] = struct{}{}
	c.devices = append(c.devices, d)
	c.mu.Unlock()
	c.changed()
	return true
}

// RemoveService drops every device with the given name and service type.
func (c *Collector) RemoveService(name, serviceType string) int {
	c.mu.Lock()
	kept := c.devices[:0]
	removed := 0
	for _, d := range c.devices {
		if d.Name == name && d.ServiceType == serviceType {
			delete(c.keys, d.Key())
			removed++
			continue
		}
		kept = append(kept, d)
	}
	c.devices = kept
	c.mu.Unlock()
	if removed > 0 {
		c.changed()
	}
	return removed
}

// Clear empties the device list without touching progress.
func (c *Collector) Clear() {
	c.mu.Lock()
	c.devices = nil
	c.keys = make(map[string]struct{})
	c.mu.Unlock()
	c.changed()
}

// Advance records one probed address for the session. Progress never
// exceeds the total.
func (c *Collector) Advance(session string) uint {
	c.mu.Lock()
	if session != c.session || session == "" {
		p := c.progress
		c.mu.Unlock()
		return p
	}
	if c.progress < c.total {
		c.progress++
	}
	p := c.progress
	c.mu.Unlock()
	c.changed()
	return p
}

// Progress returns the probed count and the total.
func (c *Collector) Progress() (uint, uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progress, c.total
}

// Devices returns a copy of the current device list in discovery order.
func (c *Collector) Devices() []NetworkDevice {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]NetworkDevice, len(c.devices))
	copy(out, c.devices)
	return out
}

// Len returns the number of committed devices.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.devices)
}

func (c *Collector) hasIP(ip string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range c.devices {
		if d.IP == ip {
			return true
		}
	}
	return false
}

func (c *Collector) changed() {
	if c.onChange != nil {
		c.onChange()
	}
}
