package scan

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
)

const receiverPlist = `<?xml version="1.0" encoding="UTF-8"?>
<plist version="1.0">
<dict>
    <key>deviceid</key>
    <string>AA:BB:CC:DD:EE:FF</string>
    <key>model</key>
    <string>AppleTV6,2</string>
    <key>name</key>
    <string> Living Room </string>
    <key>features</key>
    <integer>123456</integer>
</dict>
</plist>`

func TestDecodeAirPlayInfo(t *testing.T) {
	info, err := decodeAirPlayInfo([]byte(receiverPlist))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := airPlayInfo{Name: "Living Room", Model: "AppleTV6,2", DeviceID: "AA:BB:CC:DD:EE:FF"}
	if info != want {
		t.Fatalf("got %+v, want %+v", info, want)
	}

	for _, bad := range []string{"", "not a plist"} {
		if _, err := decodeAirPlayInfo([]byte(bad)); err == nil {
			t.Errorf("expected error decoding %q", bad)
		}
	}
}

func serveReceiver(t *testing.T, path string) (string, int) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != path {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/x-apple-plist+xml")
		_, _ = w.Write([]byte(receiverPlist))
	}))
	t.Cleanup(server.Close)

	host, portStr, err := net.SplitHostPort(server.Listener.Addr().String())
	if err != nil {
		t.Fatalf("split addr: %v", err)
	}
	port, _ := strconv.Atoi(portStr)
	return host, port
}

func TestFetchAirPlayName(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{name: "info endpoint", path: "/info"},
		{name: "server-info fallback", path: "/server-info"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, port := serveReceiver(t, tt.path)
			if got := fetchAirPlayName(context.Background(), host, port); got != "Living Room" {
				t.Fatalf("expected Living Room, got %q", got)
			}
		})
	}

	if got := fetchAirPlayName(context.Background(), "", 7000); got != "" {
		t.Fatalf("expected empty name for empty host, got %q", got)
	}
}
