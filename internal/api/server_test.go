package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"lanwake/internal/app"
	"lanwake/internal/scan"
	"lanwake/internal/store"
)

type stubScanner struct {
	mu       sync.Mutex
	scanning bool
	devices  []scan.NetworkDevice
	updates  chan scan.Snapshot
}

func (s *stubScanner) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scanning {
		return scan.ErrScanInProgress
	}
	s.scanning = true
	return nil
}

func (s *stubScanner) Stop() {
	s.mu.Lock()
	s.scanning = false
	s.mu.Unlock()
}

func (s *stubScanner) ClearResults() {
	s.mu.Lock()
	s.devices = nil
	s.mu.Unlock()
}

func (s *stubScanner) State() scan.ScanState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return scan.ScanState{IsScanning: s.scanning, Total: scan.HostTotal}
}

func (s *stubScanner) Devices() []scan.NetworkDevice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]scan.NetworkDevice{}, s.devices...)
}

func (s *stubScanner) Snapshot() scan.Snapshot {
	return scan.Snapshot{Subnet: "192.168.1", State: s.State(), Devices: s.Devices()}
}

func (s *stubScanner) Subscribe() (<-chan scan.Snapshot, func()) {
	s.updates <- s.Snapshot()
	return s.updates, func() {}
}

func (s *stubScanner) LocalSubnet(context.Context) (string, bool) { return "192.168.1", true }

type stubSender struct {
	mu   sync.Mutex
	macs []string
}

func (s *stubSender) Send(_ context.Context, mac, _ string, _ int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.macs = append(s.macs, mac)
	return true
}

func newTestServer(t *testing.T) (*Server, *stubScanner, *stubSender) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "lanwake.db"))
	if err != nil {
		t.Fatalf("store.Open returned error: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	scanner := &stubScanner{updates: make(chan scan.Snapshot, 4)}
	sender := &stubSender{}
	a := app.New(scanner, st, sender, app.WithLogger(zap.NewNop()))
	return New(context.Background(), a, zap.NewNop()), scanner, sender
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestScanLifecycleEndpoints(t *testing.T) {
	s, scanner, _ := newTestServer(t)
	h := s.Handler()

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodPost, "/scan/start", http.StatusAccepted},
		{http.MethodPost, "/scan/start", http.StatusConflict},
		{http.MethodPost, "/scan/stop", http.StatusNoContent},
		{http.MethodPost, "/scan/stop", http.StatusNoContent},
		{http.MethodPost, "/scan/clear", http.StatusNoContent},
		{http.MethodGet, "/scan/start", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		rec := do(t, h, tt.method, tt.path, "")
		if rec.Code != tt.want {
			t.Fatalf("%s %s: expected %d, got %d", tt.method, tt.path, tt.want, rec.Code)
		}
	}
	if scanner.State().IsScanning {
		t.Fatal("expected scan to be stopped")
	}
}

func TestStateAndDevices(t *testing.T) {
	s, scanner, _ := newTestServer(t)
	scanner.devices = []scan.NetworkDevice{{Name: "192.168.1.50", IP: "192.168.1.50", Port: 9, ServiceType: scan.PingServiceType}}
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/state", "")
	var state scan.ScanState
	if err := json.NewDecoder(rec.Body).Decode(&state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.Total != scan.HostTotal {
		t.Fatalf("expected total %d, got %d", scan.HostTotal, state.Total)
	}

	rec = do(t, h, http.MethodGet, "/devices", "")
	var devices []scan.NetworkDevice
	if err := json.NewDecoder(rec.Body).Decode(&devices); err != nil {
		t.Fatalf("decode devices: %v", err)
	}
	if len(devices) != 1 || devices[0].ServiceType != scan.PingServiceType {
		t.Fatalf("unexpected devices %+v", devices)
	}
}

func TestExport(t *testing.T) {
	s, scanner, _ := newTestServer(t)
	h := s.Handler()

	if rec := do(t, h, http.MethodGet, "/export", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without data, got %d", rec.Code)
	}

	scanner.devices = []scan.NetworkDevice{{Name: "nas", IP: "192.168.1.10", Port: 9, ServiceType: "_smb._tcp."}}
	rec := do(t, h, http.MethodGet, "/export", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	_, devices, err := scan.LoadExport(rec.Body)
	if err != nil {
		t.Fatalf("LoadExport returned error: %v", err)
	}
	if len(devices) != 1 || devices[0].Name != "nas" {
		t.Fatalf("unexpected exported devices %+v", devices)
	}
}

func TestSavedDevices(t *testing.T) {
	s, _, sender := newTestServer(t)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/saved", `{"name":"Desk","macAddress":"00:11:22:33:44:55","ipAddress":"192.168.1.20"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var saved store.Device
	if err := json.NewDecoder(rec.Body).Decode(&saved); err != nil {
		t.Fatalf("decode saved device: %v", err)
	}
	if saved.ID == 0 || saved.Port != 9 || saved.GroupName != store.DefaultGroup {
		t.Fatalf("unexpected saved device %+v", saved)
	}

	if rec := do(t, h, http.MethodPost, "/saved", `{"name":"Bad","macAddress":"nope","ipAddress":"192.168.1.21"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid MAC, got %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/saved", "")
	var list []store.Device
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected one saved device, got %+v", list)
	}

	path := "/saved/" + jsonID(saved.ID)
	rec = do(t, h, http.MethodPost, path+"/wake", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from wake, got %d", rec.Code)
	}
	var res app.WakeResult
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode wake result: %v", err)
	}
	if !res.OK || res.Message != "WOL packet sent for Desk!" {
		t.Fatalf("unexpected wake result %+v", res)
	}
	if len(sender.macs) != 1 || sender.macs[0] != "00:11:22:33:44:55" {
		t.Fatalf("unexpected sends %+v", sender.macs)
	}

	if rec := do(t, h, http.MethodDelete, path, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 from delete, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodDelete, path, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 from second delete, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/saved/abc/wake", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad id, got %d", rec.Code)
	}
}

func TestGroups(t *testing.T) {
	s, _, _ := newTestServer(t)
	h := s.Handler()

	if rec := do(t, h, http.MethodPost, "/groups", `{"name":"Office"}`); rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/groups", `{"name":"  "}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank group, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/groups/select", `{"name":"Missing"}`); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 selecting missing group, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/groups/select", `{"name":"Office"}`); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	rec := do(t, h, http.MethodGet, "/groups", "")
	var body struct {
		Selected string        `json:"selected"`
		Groups   []store.Group `json:"groups"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode groups: %v", err)
	}
	if body.Selected != "Office" || len(body.Groups) != 2 {
		t.Fatalf("unexpected groups response %+v", body)
	}
}

func TestEventsStream(t *testing.T) {
	s, scanner, _ := newTestServer(t)
	scanner.devices = []scan.NetworkDevice{{Name: "tv", IP: "192.168.1.30", Port: 8009, ServiceType: "_googlecast._tcp."}}

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /events: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			t.Fatalf("read event: %v", err)
		}
		data, ok := bytes.CutPrefix(bytes.TrimSpace(line), []byte("data: "))
		if !ok {
			continue
		}
		var snap scan.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			t.Fatalf("decode snapshot: %v", err)
		}
		if len(snap.Devices) != 1 || snap.Devices[0].Name != "tv" {
			t.Fatalf("unexpected snapshot %+v", snap)
		}
		return
	}
}

func jsonID(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
