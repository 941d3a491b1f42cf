// Package app ties the scan engine, the saved device store and the wake
// sender together behind the operations a user interface needs.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"lanwake/internal/logging"
	"lanwake/internal/scan"
	"lanwake/internal/store"
	"lanwake/internal/wol"
)

// ErrInvalidIP is returned when a saved device carries a malformed IPv4
// address.
var ErrInvalidIP = errors.New("invalid IPv4 address")

// Scanner is the part of scan.Manager the app drives.
type Scanner interface {
	Start(ctx context.Context) error
	Stop()
	ClearResults()
	State() scan.ScanState
	Devices() []scan.NetworkDevice
	Snapshot() scan.Snapshot
	Subscribe() (<-chan scan.Snapshot, func())
	LocalSubnet(ctx context.Context) (string, bool)
}

// Store persists saved devices and groups.
type Store interface {
	ListDevices() ([]store.Device, error)
	ListDevicesInGroup(group string) ([]store.Device, error)
	GetDevice(id int64) (store.Device, error)
	UpsertDevice(d *store.Device) error
	DeleteDevice(id int64) error
	ListGroups() ([]store.Group, error)
	InsertGroupIfAbsent(name string) error
	GroupByName(name string) (store.Group, error)
}

// Sender delivers a magic packet.
type Sender interface {
	Send(ctx context.Context, mac, broadcast string, port int) bool
}

// WakeResult is the outcome of waking a single saved device.
type WakeResult struct {
	Device  store.Device `json:"device"`
	OK      bool         `json:"ok"`
	Message string       `json:"message"`
}

// App is the facade used by the CLI and the HTTP API.
type App struct {
	scanner Scanner
	store   Store
	sender  Sender
	log     *zap.Logger

	mu       sync.Mutex
	selected string
	wakes    sync.WaitGroup
}

// Option customises an App.
type Option func(*App)

// WithLogger overrides the component logger.
func WithLogger(log *zap.Logger) Option { return func(a *App) { a.log = log } }

// WithSelectedGroup sets the group selected at startup.
func WithSelectedGroup(name string) Option {
	return func(a *App) {
		if strings.TrimSpace(name) != "" {
			a.selected = strings.TrimSpace(name)
		}
	}
}

// New constructs an App.
func New(scanner Scanner, st Store, sender Sender, opts ...Option) *App {
	a := &App{
		scanner:  scanner,
		store:    st,
		sender:   sender,
		selected: store.DefaultGroup,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.log == nil {
		a.log = logging.Named("app")
	}
	return a
}

// State returns the scan status.
func (a *App) State() scan.ScanState { return a.scanner.State() }

// Devices returns the devices discovered by the current or last scan.
func (a *App) Devices() []scan.NetworkDevice { return a.scanner.Devices() }

// Snapshot returns the full scan state.
func (a *App) Snapshot() scan.Snapshot { return a.scanner.Snapshot() }

// Subscribe streams scan snapshots until the returned function is called.
func (a *App) Subscribe() (<-chan scan.Snapshot, func()) { return a.scanner.Subscribe() }

// StartScan begins a discovery scan. ctx bounds the whole scan, not just
// the call.
func (a *App) StartScan(ctx context.Context) error {
	if err := a.scanner.Start(ctx); err != nil {
		return err
	}
	a.log.Debug("scan requested")
	return nil
}

// StopScan ends the running scan, if any.
func (a *App) StopScan() { a.scanner.Stop() }

// ClearResults empties the discovered device list.
func (a *App) ClearResults() { a.scanner.ClearResults() }

// Wake sends a magic packet for d and reports a user facing message.
func (a *App) Wake(ctx context.Context, d store.Device) (bool, string) {
	if strings.TrimSpace(d.MACAddress) == "" {
		return false, fmt.Sprintf("MAC address is missing for %s.", d.Name)
	}

	subnet, _ := a.scanner.LocalSubnet(ctx)
	broadcast := wol.SelectBroadcast(d.IPAddress, subnet)
	a.log.Debug("waking device",
		zap.String("name", d.Name),
		zap.String("mac", d.MACAddress),
		zap.String("broadcast", broadcast),
		zap.Int("port", d.Port),
	)

	if a.sender.Send(ctx, d.MACAddress, broadcast, d.Port) {
		return true, fmt.Sprintf("WOL packet sent for %s!", d.Name)
	}
	return false, fmt.Sprintf("Failed to send WOL for %s.", d.Name)
}

// WakeAsync runs Wake on its own goroutine and hands the outcome to done.
func (a *App) WakeAsync(ctx context.Context, d store.Device, done func(bool, string)) {
	a.wakes.Add(1)
	go func() {
		defer a.wakes.Done()
		ok, msg := a.Wake(ctx, d)
		if done != nil {
			done(ok, msg)
		}
	}()
}

// WaitWakes blocks until every WakeAsync call has delivered its result.
func (a *App) WaitWakes() { a.wakes.Wait() }

// WakeGroup wakes every saved device in group. Results keep the store
// order.
func (a *App) WakeGroup(ctx context.Context, group string) ([]WakeResult, error) {
	devices, err := a.store.ListDevicesInGroup(group)
	if err != nil {
		return nil, err
	}

	results := make([]WakeResult, len(devices))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, d := range devices {
		g.Go(func() error {
			ok, msg := a.Wake(gctx, d)
			results[i] = WakeResult{Device: d, OK: ok, Message: msg}
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

// WakeByID wakes the saved device with the given id.
func (a *App) WakeByID(ctx context.Context, id int64) (WakeResult, error) {
	d, err := a.store.GetDevice(id)
	if err != nil {
		return WakeResult{}, err
	}
	ok, msg := a.Wake(ctx, d)
	return WakeResult{Device: d, OK: ok, Message: msg}, nil
}

// SelectGroup makes name the current group. The group must exist.
func (a *App) SelectGroup(name string) error {
	name = strings.TrimSpace(name)
	if _, err := a.store.GroupByName(name); err != nil {
		return err
	}
	a.mu.Lock()
	a.selected = name
	a.mu.Unlock()
	return nil
}

// SelectedGroup returns the current group name.
func (a *App) SelectedGroup() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.selected
}

// SelectedDevices returns the saved devices in the current group.
func (a *App) SelectedDevices() ([]store.Device, error) {
	return a.store.ListDevicesInGroup(a.SelectedGroup())
}

// DevicesInGroup returns the saved devices in group.
func (a *App) DevicesInGroup(group string) ([]store.Device, error) {
	return a.store.ListDevicesInGroup(group)
}

// SavedDevices returns every saved device.
func (a *App) SavedDevices() ([]store.Device, error) { return a.store.ListDevices() }

// Groups returns every group ordered by name.
func (a *App) Groups() ([]store.Group, error) { return a.store.ListGroups() }

// AddGroup creates a group if it does not exist yet.
func (a *App) AddGroup(name string) error { return a.store.InsertGroupIfAbsent(name) }

// DeleteDevice removes a saved device.
func (a *App) DeleteDevice(id int64) error { return a.store.DeleteDevice(id) }

// AddDevice validates and saves d, creating its group when needed. A d
// with a non-zero ID replaces the existing row.
func (a *App) AddDevice(d *store.Device) error {
	d.Name = strings.TrimSpace(d.Name)
	d.MACAddress = strings.TrimSpace(d.MACAddress)
	d.IPAddress = strings.TrimSpace(d.IPAddress)

	if !wol.ValidMAC(d.MACAddress) {
		return fmt.Errorf("%w: %q", wol.ErrInvalidMAC, d.MACAddress)
	}
	if !scan.IsValidIPv4(d.IPAddress) {
		return fmt.Errorf("%w: %q", ErrInvalidIP, d.IPAddress)
	}
	if d.Name == "" {
		d.Name = d.IPAddress
	}
	if strings.TrimSpace(d.GroupName) == "" {
		d.GroupName = a.SelectedGroup()
	}
	if err := a.store.InsertGroupIfAbsent(d.GroupName); err != nil {
		return err
	}
	return a.store.UpsertDevice(d)
}

// SaveDiscovered stores a scan result in the current group. An empty name
// keeps the discovered one. Only ping records carry a wake port; records
// from service advertisements are saved with DefaultPort.
func (a *App) SaveDiscovered(d scan.NetworkDevice, name string) (store.Device, error) {
	if strings.TrimSpace(name) == "" {
		name = d.Name
	}
	// Advertised service ports (8009, 22, ...) are not wake ports.
	port := wol.DefaultPort
	if d.ServiceType == scan.PingServiceType && d.Port != 0 {
		port = int(d.Port)
	}
	saved := store.Device{
		Name:       name,
		MACAddress: d.MACAddress,
		IPAddress:  d.IP,
		Port:       port,
	}
	if err := a.AddDevice(&saved); err != nil {
		return store.Device{}, err
	}
	a.log.Info("saved discovered device", zap.String("name", saved.Name), zap.String("ip", saved.IPAddress))
	return saved, nil
}
