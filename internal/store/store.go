// Package store provides SQLite persistence for saved devices and groups.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultGroup is the group every saved device lands in unless told otherwise.
const DefaultGroup = "Bookmarked"

// DefaultPort is the WOL port stored for devices that do not name one.
const DefaultPort = 9

// ErrNotFound is returned when a device or group does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidGroup is returned when a group name is blank.
var ErrInvalidGroup = errors.New("group name must not be empty")

// Device is a saved wake target.
type Device struct {
	ID         int64  `json:"id" yaml:"id"`
	Name       string `json:"name" yaml:"name"`
	MACAddress string `json:"macAddress" yaml:"mac_address"`
	IPAddress  string `json:"ipAddress" yaml:"ip_address"`
	Port       int    `json:"port" yaml:"port"`
	GroupName  string `json:"groupName" yaml:"group_name"`
	Color      int    `json:"color" yaml:"color"`
}

// Group names a collection of saved devices.
type Group struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Store wraps the SQLite database connection.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open creates or opens the database at path and makes sure the default
// group exists.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	if err := s.InsertGroupIfAbsent(DefaultGroup); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) createTables() error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS devices (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			mac_address TEXT NOT NULL,
			ip_address TEXT NOT NULL,
			port INTEGER NOT NULL DEFAULT 9,
			group_name TEXT NOT NULL DEFAULT 'Bookmarked',
			color INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_devices_group_name ON devices(group_name)`,

		`CREATE TABLE IF NOT EXISTS device_groups (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE
		)`,
	}

	for _, table := range tables {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to execute: %s: %w", table, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

const deviceColumns = `id, name, mac_address, ip_address, port, group_name, color`

// ListDevices returns every saved device in insertion order.
func (s *Store) ListDevices() ([]Device, error) {
	rows, err := s.db.Query(`SELECT ` + deviceColumns + ` FROM devices ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	return scanDevices(rows)
}

// ListDevicesInGroup returns the saved devices belonging to group.
func (s *Store) ListDevicesInGroup(group string) ([]Device, error) {
	rows, err := s.db.Query(`SELECT `+deviceColumns+` FROM devices WHERE group_name = ? ORDER BY id`, group)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices in group %q: %w", group, err)
	}
	return scanDevices(rows)
}

// GetDevice returns the saved device with the given id.
func (s *Store) GetDevice(id int64) (Device, error) {
	var d Device
	err := s.db.QueryRow(`SELECT `+deviceColumns+` FROM devices WHERE id = ?`, id).Scan(
		&d.ID, &d.Name, &d.MACAddress, &d.IPAddress, &d.Port, &d.GroupName, &d.Color)
	if errors.Is(err, sql.ErrNoRows) {
		return Device{}, fmt.Errorf("device %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Device{}, fmt.Errorf("failed to get device %d: %w", id, err)
	}
	return d, nil
}

// UpsertDevice inserts d, replacing any row with the same id. A zero id
// allocates a new row and d.ID is updated with it.
func (s *Store) UpsertDevice(d *Device) error {
	if d.Port == 0 {
		d.Port = DefaultPort
	}
	if strings.TrimSpace(d.GroupName) == "" {
		d.GroupName = DefaultGroup
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var id any
	if d.ID > 0 {
		id = d.ID
	}
	result, err := s.db.Exec(`INSERT OR REPLACE INTO devices (`+deviceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, d.Name, d.MACAddress, d.IPAddress, d.Port, d.GroupName, d.Color)
	if err != nil {
		return fmt.Errorf("failed to upsert device: %w", err)
	}
	if d.ID == 0 {
		newID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert ID: %w", err)
		}
		d.ID = newID
	}
	return nil
}

// DeleteDevice removes the saved device with the given id.
func (s *Store) DeleteDevice(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`DELETE FROM devices WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete device %d: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete device %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("device %d: %w", id, ErrNotFound)
	}
	return nil
}

// ListGroups returns every group ordered by name.
func (s *Store) ListGroups() ([]Group, error) {
	rows, err := s.db.Query(`SELECT id, name FROM device_groups ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	defer rows.Close()

	var groups []Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// InsertGroupIfAbsent creates the named group. Existing names are ignored.
func (s *Store) InsertGroupIfAbsent(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidGroup
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`INSERT OR IGNORE INTO device_groups (name) VALUES (?)`, name); err != nil {
		return fmt.Errorf("failed to insert group %q: %w", name, err)
	}
	return nil
}

// GroupByName returns the group with the given name.
func (s *Store) GroupByName(name string) (Group, error) {
	var g Group
	err := s.db.QueryRow(`SELECT id, name FROM device_groups WHERE name = ? LIMIT 1`, name).Scan(&g.ID, &g.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return Group{}, fmt.Errorf("group %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return Group{}, fmt.Errorf("failed to get group %q: %w", name, err)
	}
	return g, nil
}

func scanDevices(rows *sql.Rows) ([]Device, error) {
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		var d Device
		if err := rows.Scan(&d.ID, &d.Name, &d.MACAddress, &d.IPAddress, &d.Port, &d.GroupName, &d.Color); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}
