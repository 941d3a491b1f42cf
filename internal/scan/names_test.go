package scan

import "testing"

func TestCleanServiceName(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		serviceType string
		want        string
	}{
		{"googlecast hash", "LivingRoom-a1b2c3d4", "_googlecast._tcp.", "LivingRoom"},
		{"googlecast uppercase kept", "LivingRoom-A1B2C3D4", "_googlecast._tcp.", "LivingRoom-A1B2C3D4"},
		{"googlecast hash only on cast", "LivingRoom-a1b2c3d4", "_http._tcp.", "LivingRoom-a1b2c3d4"},
		{"local suffix", "nas.local", "_smb._tcp.", "nas"},
		{"local suffix with dot", "nas.local.", "_smb._tcp.", "nas"},
		{"airplay decode", "Living%20Room%20TV", "_airplay._tcp.", "Living Room TV"},
		{"raop decode", "AA11BB22CC33%40Kitchen", "_raop._tcp.", "AA11BB22CC33@Kitchen"},
		{"airplay bad escape", "Bad%zzName", "_airplay._tcp.", "Bad%zzName"},
		{"no percent untouched", "Kitchen+Speaker", "_airplay._tcp.", "Kitchen+Speaker"},
		{"http percent untouched", "a%20b", "_http._tcp.", "a%20b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanServiceName(tt.input, tt.serviceType); got != tt.want {
				t.Fatalf("cleanServiceName(%q, %q) = %q, want %q", tt.input, tt.serviceType, got, tt.want)
			}
		})
	}
}

func TestFriendlyName(t *testing.T) {
	tests := []struct {
		name   string
		attrs  map[string][]byte
		host   string
		want   string
		wantOK bool
	}{
		{"first key wins", map[string][]byte{"fn": []byte("Office"), "n": []byte("Desk")}, "10.0.0.2", "Desk", true},
		{"skips blank", map[string][]byte{"n": []byte("  "), "model": []byte("MacBookPro")}, "10.0.0.2", "MacBookPro", true},
		{"skips host literal", map[string][]byte{"n": []byte("10.0.0.2"), "md": []byte("Chromecast")}, "10.0.0.2", "Chromecast", true},
		{"skips invalid utf8", map[string][]byte{"n": {0xff, 0xfe}, "dn": []byte("Printer")}, "10.0.0.2", "Printer", true},
		{"nothing usable", map[string][]byte{"txtvers": []byte("1")}, "10.0.0.2", "", false},
		{"nil attrs", nil, "10.0.0.2", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := friendlyName(tt.attrs, tt.host)
			if ok != tt.wantOK || got != tt.want {
				t.Fatalf("friendlyName() = %q, %v; want %q, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestParseTXT(t *testing.T) {
	attrs := parseTXT([]string{"fn=Living Room", "md=Chromecast", "flag", "fn=ignored", "=novalue"})
	if string(attrs["fn"]) != "Living Room" {
		t.Fatalf("expected first fn value kept, got %q", attrs["fn"])
	}
	if _, ok := attrs["flag"]; !ok {
		t.Fatalf("expected bare key to be present")
	}
	if len(attrs) != 3 {
		t.Fatalf("expected 3 attributes, got %d: %v", len(attrs), attrs)
	}
}

func TestMacVendor(t *testing.T) {
	if v, ok := MacVendor("b8:27:eb"); !ok || v != "Raspberry Pi" {
		t.Fatalf("expected Raspberry Pi, got %q, %v", v, ok)
	}
	if v, ok := MacVendor("00-50-56"); !ok || v != "VMware" {
		t.Fatalf("expected VMware, got %q, %v", v, ok)
	}
	if _, ok := MacVendor("12:34:56"); ok {
		t.Fatalf("expected unknown prefix to be absent")
	}
	if len(macVendors) != 26 {
		t.Fatalf("expected 26 vendor prefixes, got %d", len(macVendors))
	}
}
