package ui

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"lanwake/internal/scan"
	"lanwake/internal/store"
)

func TestDeviceTable(t *testing.T) {
	devices := []scan.NetworkDevice{
		{Name: "LivingRoom", IP: "192.168.1.30", Port: 8009, ServiceType: "_googlecast._tcp."},
		{Name: "192.168.1.50", IP: "192.168.1.50", Port: 9, ServiceType: scan.PingServiceType, MACAddress: "b8:27:eb:00:00:01", Vendor: "Raspberry Pi"},
	}
	out := DeviceTable(devices, 0)

	for _, want := range []string{"NAME", "LivingRoom", "8009", "_googlecast._tcp.", "ping_discovered", "b8:27:eb:00:00:01", "Raspberry Pi"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

func TestSavedAndGroupTables(t *testing.T) {
	saved := SavedTable([]store.Device{{ID: 7, Name: "NAS", MACAddress: "AA:BB:CC:DD:EE:FF", IPAddress: "192.168.1.10", Port: 9, GroupName: "Bookmarked"}}, 0)
	for _, want := range []string{"7", "NAS", "AA:BB:CC:DD:EE:FF", "Bookmarked"} {
		if !strings.Contains(saved, want) {
			t.Errorf("saved table missing %q:\n%s", want, saved)
		}
	}

	groups := GroupTable([]store.Group{{ID: 1, Name: "Bookmarked"}, {ID: 2, Name: "Office"}}, "Office", 0)
	if !strings.Contains(groups, "*") || !strings.Contains(groups, "Office") {
		t.Errorf("group table should mark the selection:\n%s", groups)
	}
}

func TestResult(t *testing.T) {
	tests := []struct {
		ok     bool
		marker string
	}{
		{ok: true, marker: SuccessMarker},
		{ok: false, marker: FailureMarker},
	}
	for _, tt := range tests {
		got := Result(tt.ok, "WOL packet sent for NAS!")
		if !strings.Contains(got, tt.marker) || !strings.Contains(got, "WOL packet sent for NAS!") {
			t.Errorf("Result(%v) = %q", tt.ok, got)
		}
	}
}

type fakeController struct {
	updates chan scan.Snapshot
	started int
	stopped int
	cleared int
	unsubs  int
}

func newFakeController() *fakeController {
	return &fakeController{updates: make(chan scan.Snapshot, 4)}
}

func (f *fakeController) StartScan(context.Context) error { f.started++; return nil }
func (f *fakeController) StopScan()                       { f.stopped++ }
func (f *fakeController) ClearResults()                   { f.cleared++ }
func (f *fakeController) Subscribe() (<-chan scan.Snapshot, func()) {
	return f.updates, func() { f.unsubs++ }
}

func keyPress(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func TestWatchModelKeys(t *testing.T) {
	ctrl := newFakeController()
	m := NewWatchModel(context.Background(), ctrl, false)

	_, cmd := m.Update(keyPress('s'))
	if cmd == nil {
		t.Fatal("expected a start command")
	}
	if msg := cmd(); msg != nil {
		t.Fatalf("expected start to succeed, got %v", msg)
	}
	if ctrl.started != 1 {
		t.Fatalf("expected one start, got %d", ctrl.started)
	}

	m.Update(keyPress('x'))
	m.Update(keyPress('c'))
	if ctrl.stopped != 1 || ctrl.cleared != 1 {
		t.Fatalf("unexpected controller calls %+v", ctrl)
	}

	_, cmd = m.Update(keyPress('q'))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("expected tea.QuitMsg")
	}
	if ctrl.unsubs != 1 {
		t.Fatalf("expected unsubscribe on quit, got %d", ctrl.unsubs)
	}
}

func TestWatchModelRendersSnapshots(t *testing.T) {
	ctrl := newFakeController()
	m := NewWatchModel(context.Background(), ctrl, false)

	if !strings.Contains(m.View(), "no devices yet") {
		t.Fatalf("expected empty view, got:\n%s", m.View())
	}

	ctrl.updates <- scan.Snapshot{
		Subnet: "192.168.1",
		State:  scan.ScanState{IsScanning: true, Progress: 127, Total: 254},
		Devices: []scan.NetworkDevice{
			{Name: "printer", IP: "192.168.1.40", Port: 631, ServiceType: "_ipp._tcp."},
		},
	}
	msg := waitForSnapshot(ctrl.updates)()
	_, next := m.Update(msg)
	if next == nil {
		t.Fatal("expected the model to keep listening")
	}

	view := m.View()
	for _, want := range []string{"192.168.1.0/24", "scanning 127/254", "printer", "1 devices"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}

	close(ctrl.updates)
	if _, ok := waitForSnapshot(ctrl.updates)().(streamClosedMsg); !ok {
		t.Fatal("expected streamClosedMsg after close")
	}
}

func TestWatchModelReportsBusyScan(t *testing.T) {
	m := NewWatchModel(context.Background(), newFakeController(), false)
	m.Update(scanErrMsg{err: scan.ErrScanInProgress})
	if !strings.Contains(m.View(), "already running") {
		t.Fatalf("expected busy status, got:\n%s", m.View())
	}
}
