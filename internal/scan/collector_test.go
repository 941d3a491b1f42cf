package scan

import (
	"sync"
	"testing"
)

func TestCollectorAddDeduplicatesByKey(t *testing.T) {
	c := newCollector(HostTotal)
	c.Reset("s1")

	d := NetworkDevice{Name: "nas", IP: "192.168.1.10", Port: 9, ServiceType: "_smb._tcp."}
	if !c.Add("s1", d) {
		t.Fatalf("expected first add to succeed")
	}
	if c.Add("s1", d) {
		t.Fatalf("expected duplicate add to be rejected")
	}

	other := d
	other.ServiceType = "_http._tcp."
	if !c.Add("s1", other) {
		t.Fatalf("expected different service type to be accepted")
	}

	if got := c.Len(); got != 2 {
		t.Fatalf("expected 2 devices, got %d", got)
	}
}

func TestCollectorAddIfIPAbsent(t *testing.T) {
	c := newCollector(HostTotal)
	c.Reset("s1")

	c.Add("s1", NetworkDevice{Name: "printer", IP: "192.168.1.20", Port: 9, ServiceType: "_ipp._tcp."})
	if c.AddIfIPAbsent("s1", NetworkDevice{Name: "192.168.1.20", IP: "192.168.1.20", Port: 9, ServiceType: PingServiceType}) {
		t.Fatalf("expected ping record to be skipped for a known IP")
	}
	if !c.AddIfIPAbsent("s1", NetworkDevice{Name: "192.168.1.21", IP: "192.168.1.21", Port: 9, ServiceType: PingServiceType}) {
		t.Fatalf("expected ping record for a new IP to be added")
	}
}

func TestCollectorIgnoresStaleSession(t *testing.T) {
	c := newCollector(HostTotal)
	c.Reset("new")

	if c.Add("old", NetworkDevice{IP: "10.0.0.1"}) {
		t.Fatalf("expected add from stale session to be ignored")
	}
	if p := c.Advance("old"); p != 0 {
		t.Fatalf("expected stale advance to leave progress at 0, got %d", p)
	}

	c.Detach()
	if c.Add("new", NetworkDevice{IP: "10.0.0.1"}) {
		t.Fatalf("expected add after detach to be ignored")
	}
}

func TestCollectorProgressCapped(t *testing.T) {
	c := newCollector(HostTotal)
	c.Reset("s1")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 30; j++ {
				c.Advance("s1")
			}
		}()
	}
	wg.Wait()

	progress, total := c.Progress()
	if progress != HostTotal || total != HostTotal {
		t.Fatalf("expected progress capped at %d, got %d/%d", HostTotal, progress, total)
	}
}

func TestCollectorProgressMonotonic(t *testing.T) {
	c := newCollector(HostTotal)
	c.Reset("s1")

	var last uint
	for i := 0; i < 300; i++ {
		p := c.Advance("s1")
		if p < last {
			t.Fatalf("progress regressed from %d to %d", last, p)
		}
		last = p
	}
}

func TestCollectorRemoveService(t *testing.T) {
	c := newCollector(HostTotal)
	c.Reset("s1")

	c.Add("s1", NetworkDevice{Name: "tv", IP: "192.168.1.30", ServiceType: "_airplay._tcp."})
	c.Add("s1", NetworkDevice{Name: "tv", IP: "192.168.1.31", ServiceType: "_airplay._tcp."})
	c.Add("s1", NetworkDevice{Name: "tv", IP: "192.168.1.30", ServiceType: "_raop._tcp."})

	if removed := c.RemoveService("tv", "_airplay._tcp."); removed != 2 {
		t.Fatalf("expected 2 removals, got %d", removed)
	}
	if c.Len() != 1 {
		t.Fatalf("expected 1 device left, got %d", c.Len())
	}

	// A removed key can be committed again.
	if !c.Add("s1", NetworkDevice{Name: "tv", IP: "192.168.1.30", ServiceType: "_airplay._tcp."}) {
		t.Fatalf("expected re-add after removal to succeed")
	}
}

func TestCollectorDevicesReturnsCopy(t *testing.T) {
	c := newCollector(HostTotal)
	c.Reset("s1")
	c.Add("s1", NetworkDevice{Name: "a", IP: "192.168.1.2"})

	devices := c.Devices()
	devices[0].Name = "mutated"

	if c.Devices()[0].Name != "a" {
		t.Fatalf("expected snapshot copy to be independent of internal state")
	}
}
