package scan

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

type fakeInspector struct {
	neighbors map[string]Neighbor
	names     map[string]string
	nameCalls atomic.Int32
}

func (f *fakeInspector) LookupNeighbor(_ context.Context, ip string) (Neighbor, bool) {
	n, ok := f.neighbors[ip]
	return n, ok
}

func (f *fakeInspector) LookupNameService(_ context.Context, ip string) (string, bool) {
	f.nameCalls.Add(1)
	name, ok := f.names[ip]
	return name, ok
}

func noDNS(context.Context, string) ([]string, error) { return nil, errors.New("no ptr") }
func noCNAME(context.Context, string) (string, error) { return "", errors.New("no cname") }

func TestResolveHostnameCascade(t *testing.T) {
	inspector := &fakeInspector{
		neighbors: map[string]Neighbor{
			"192.168.1.40": {IP: "192.168.1.40", MAC: "B8:27:EB:11:22:33", Interface: "wlan0"},
			"192.168.1.41": {IP: "192.168.1.41", MAC: "12:34:56:78:9A:BC", Interface: "eth0"},
			"192.168.1.42": {IP: "192.168.1.42", MAC: "00:00:00:00:00:00", Interface: "br-lan"},
		},
		names: map[string]string{"192.168.1.30": "DESKTOP-42"},
	}

	lookupAddr := func(_ context.Context, ip string) ([]string, error) {
		switch ip {
		case "192.168.1.10":
			return []string{"nas.lan."}, nil
		case "192.168.1.11":
			return []string{"printer.lan."}, nil
		case "192.168.1.12":
			return []string{"192.168.1.12."}, nil
		}
		return nil, errors.New("no ptr")
	}
	lookupCNAME := func(_ context.Context, host string) (string, error) {
		if host == "printer.lan." {
			return "hp-laserjet.lan.", nil
		}
		return "", errors.New("no cname")
	}

	r := NewIdentity(inspector, WithResolver(lookupAddr, lookupCNAME))

	tests := []struct {
		ip   string
		want string
	}{
		{"192.168.1.10", "nas.lan"},
		{"192.168.1.11", "hp-laserjet.lan"},
		{"192.168.1.12", "Device 12"},
		{"192.168.1.30", "DESKTOP-42"},
		{"192.168.1.40", "Raspberry Pi WiFi"},
		{"192.168.1.41", "Ethernet on 41"},
		{"192.168.1.42", "Device on 42"},
		{"192.168.1.99", "Device 99"},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			got, ok := r.ResolveHostname(context.Background(), tt.ip)
			if !ok || got != tt.want {
				t.Fatalf("ResolveHostname(%s) = %q, %v; want %q", tt.ip, got, ok, tt.want)
			}
		})
	}
}

func TestResolveHostnameCachesMisses(t *testing.T) {
	inspector := &fakeInspector{}
	r := NewIdentity(inspector, WithResolver(noDNS, noCNAME), WithSyntheticNames(false))

	for i := 0; i < 3; i++ {
		if name, ok := r.ResolveHostname(context.Background(), "10.0.0.5"); ok {
			t.Fatalf("expected no name, got %q", name)
		}
	}
	if calls := inspector.nameCalls.Load(); calls != 1 {
		t.Fatalf("expected a single name service lookup, got %d", calls)
	}

	r.ForgetHostnames()
	r.ResolveHostname(context.Background(), "10.0.0.5")
	if calls := inspector.nameCalls.Load(); calls != 2 {
		t.Fatalf("expected cache reset to trigger another lookup, got %d", calls)
	}
}

func TestResolveHostnameCancelledNotCached(t *testing.T) {
	inspector := &fakeInspector{}
	r := NewIdentity(inspector, WithResolver(noDNS, noCNAME), WithSyntheticNames(false))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.ResolveHostname(ctx, "10.0.0.6")
	r.ResolveHostname(context.Background(), "10.0.0.6")

	if calls := inspector.nameCalls.Load(); calls != 2 {
		t.Fatalf("expected cancelled lookup to be retried, got %d calls", calls)
	}
}

func TestResolveMAC(t *testing.T) {
	inspector := &fakeInspector{neighbors: map[string]Neighbor{
		"10.0.0.2": {MAC: "aa-bb-cc-dd-ee-ff"},
		"10.0.0.3": {MAC: "00:00:00:00:00:00"},
		"10.0.0.4": {MAC: "(incomplete)"},
		"10.0.0.5": {MAC: "AA:BB:CC:DD:EE"},
	}}
	r := NewIdentity(inspector)

	tests := []struct {
		ip     string
		want   string
		wantOK bool
	}{
		{"10.0.0.2", "AA:BB:CC:DD:EE:FF", true},
		{"10.0.0.3", "", false},
		{"10.0.0.4", "", false},
		{"10.0.0.5", "", false},
		{"10.0.0.9", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			got, ok := r.ResolveMAC(context.Background(), tt.ip)
			if ok != tt.wantOK || got != tt.want {
				t.Fatalf("ResolveMAC(%s) = %q, %v; want %q, %v", tt.ip, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestLinkKind(t *testing.T) {
	tests := map[string]string{
		"wlan0":   "WiFi",
		"wlp3s0":  "WiFi",
		"WiFi-2":  "WiFi",
		"eth0":    "Ethernet",
		"enp0s31": "Ethernet",
		"br-lan":  "Device",
		"":        "Device",
	}
	for iface, want := range tests {
		if got := linkKind(iface); got != want {
			t.Fatalf("linkKind(%q) = %q, want %q", iface, got, want)
		}
	}
}
