// Package config loads lanwake settings from defaults, an optional
// config.yaml and LANWAKE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"lanwake/internal/scan"
)

// EnvPrefix is prepended to every environment override, e.g.
// LANWAKE_SCAN_WINDOW=5s.
const EnvPrefix = "LANWAKE"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all application configuration.
type Config struct {
	DataDir      string `mapstructure:"data_dir"`
	LogLevel     string `mapstructure:"log_level"`
	DBPath       string `mapstructure:"db_path"`
	APIAddr      string `mapstructure:"api_addr"`
	DefaultGroup string `mapstructure:"default_group"`

	Scan ScanSettings `mapstructure:"scan"`
	WOL  WOLSettings  `mapstructure:"wol"`
}

// ScanSettings tunes the discovery engine.
type ScanSettings struct {
	Chains          int           `mapstructure:"chains"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
	Window          time.Duration `mapstructure:"window"`
	Grace           time.Duration `mapstructure:"grace"`
	PriorityStagger time.Duration `mapstructure:"priority_stagger"`
	Stagger         time.Duration `mapstructure:"stagger"`
	ListenerPause   time.Duration `mapstructure:"listener_pause"`
	DNSTimeout      time.Duration `mapstructure:"dns_timeout"`
	NameTimeout     time.Duration `mapstructure:"name_timeout"`
	SyntheticNames  bool          `mapstructure:"synthetic_names"`
	ActiveARP       bool          `mapstructure:"active_arp"`
}

// WOLSettings controls magic packet delivery.
type WOLSettings struct {
	DefaultPort int `mapstructure:"default_port"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".lanwake")
	engine := scan.DefaultConfig()

	return &Config{
		DataDir:      dataDir,
		LogLevel:     "",
		DBPath:       filepath.Join(dataDir, "lanwake.db"),
		APIAddr:      "127.0.0.1:8787",
		DefaultGroup: "Bookmarked",
		Scan: ScanSettings{
			Chains:          engine.Chains,
			PingTimeout:     engine.PingTimeout,
			Window:          engine.Window,
			Grace:           engine.Grace,
			PriorityStagger: engine.PriorityStagger,
			Stagger:         engine.Stagger,
			ListenerPause:   engine.ListenerPause,
			DNSTimeout:      engine.DNSTimeout,
			NameTimeout:     engine.NameTimeout,
			SyntheticNames:  engine.SyntheticNames,
			ActiveARP:       engine.ActiveARP,
		},
		WOL: WOLSettings{DefaultPort: 9},
	}
}

// Load reads configuration. An explicit path must exist; otherwise
// config.yaml is searched for in the default data dir and the working
// directory and silently skipped when absent.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(cfg.DataDir)
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// db_path follows data_dir unless set explicitly.
	if cfg.DBPath == DefaultConfig().DBPath {
		cfg.DBPath = filepath.Join(cfg.DataDir, "lanwake.db")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("db_path", cfg.DBPath)
	v.SetDefault("api_addr", cfg.APIAddr)
	v.SetDefault("default_group", cfg.DefaultGroup)
	v.SetDefault("scan.chains", cfg.Scan.Chains)
	v.SetDefault("scan.ping_timeout", cfg.Scan.PingTimeout)
	v.SetDefault("scan.window", cfg.Scan.Window)
	v.SetDefault("scan.grace", cfg.Scan.Grace)
	v.SetDefault("scan.priority_stagger", cfg.Scan.PriorityStagger)
	v.SetDefault("scan.stagger", cfg.Scan.Stagger)
	v.SetDefault("scan.listener_pause", cfg.Scan.ListenerPause)
	v.SetDefault("scan.dns_timeout", cfg.Scan.DNSTimeout)
	v.SetDefault("scan.name_timeout", cfg.Scan.NameTimeout)
	v.SetDefault("scan.synthetic_names", cfg.Scan.SyntheticNames)
	v.SetDefault("scan.active_arp", cfg.Scan.ActiveARP)
	v.SetDefault("wol.default_port", cfg.WOL.DefaultPort)
}

// Validate checks ranges that would break the engine or the transmitter.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DefaultGroup) == "" {
		return fmt.Errorf("%w: default_group must not be blank", ErrInvalid)
	}
	if c.WOL.DefaultPort < 0 || c.WOL.DefaultPort > 65535 {
		return fmt.Errorf("%w: wol.default_port %d out of range", ErrInvalid, c.WOL.DefaultPort)
	}
	if err := c.Engine().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Engine converts the scan settings into the discovery engine config.
func (c *Config) Engine() scan.Config {
	engine := scan.DefaultConfig()
	engine.Chains = c.Scan.Chains
	engine.PingTimeout = c.Scan.PingTimeout
	engine.Window = c.Scan.Window
	engine.Grace = c.Scan.Grace
	engine.PriorityStagger = c.Scan.PriorityStagger
	engine.Stagger = c.Scan.Stagger
	engine.ListenerPause = c.Scan.ListenerPause
	engine.DNSTimeout = c.Scan.DNSTimeout
	engine.NameTimeout = c.Scan.NameTimeout
	engine.SyntheticNames = c.Scan.SyntheticNames
	engine.ActiveARP = c.Scan.ActiveARP
	return engine
}

// Save writes the configuration as YAML, creating the parent directory.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c.document())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// document renders durations as strings so the file round-trips through viper.
func (c *Config) document() map[string]any {
	return map[string]any{
		"data_dir":      c.DataDir,
		"log_level":     c.LogLevel,
		"db_path":       c.DBPath,
		"api_addr":      c.APIAddr,
		"default_group": c.DefaultGroup,
		"scan": map[string]any{
			"chains":           c.Scan.Chains,
			"ping_timeout":     c.Scan.PingTimeout.String(),
			"window":           c.Scan.Window.String(),
			"grace":            c.Scan.Grace.String(),
			"priority_stagger": c.Scan.PriorityStagger.String(),
			"stagger":          c.Scan.Stagger.String(),
			"listener_pause":   c.Scan.ListenerPause.String(),
			"dns_timeout":      c.Scan.DNSTimeout.String(),
			"name_timeout":     c.Scan.NameTimeout.String(),
			"synthetic_names":  c.Scan.SyntheticNames,
			"active_arp":       c.Scan.ActiveARP,
		},
		"wol": map[string]any{
			"default_port": c.WOL.DefaultPort,
		},
	}
}

// EnsureDataDir creates the data directory if needed.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0o700)
}

// DefaultPath is where `lanwake config init` writes when no path is given.
func (c *Config) DefaultPath() string {
	return filepath.Join(c.DataDir, "config.yaml")
}
