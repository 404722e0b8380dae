package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// BootstrapFileName is the file LoadBootstrapConfig reads from the config dir.
const BootstrapFileName = "groundstation_config.yaml"

// Bridge modes.
const (
	BridgeModeLocal  = "local"
	BridgeModeZeroMQ = "zeromq"
)

// BootstrapConfig holds the initial configuration loaded from groundstation_config.yaml
type BootstrapConfig struct {
	Logging LoggingConfig         `yaml:"logging"`
	Server  BootstrapServerConfig `yaml:"server"`
	ROS     ROSConfig             `yaml:"ros"`
	HM30    HM30Config            `yaml:"hm30"`
	Serial  SerialConfig          `yaml:"serial"`
	Bridge  BridgeConfig          `yaml:"bridge"`
	Map     MapConfig             `yaml:"map"`
	Data    DataConfig            `yaml:"data"`
}

// LoggingConfig holds logging settings from bootstrap
type LoggingConfig struct {
	Level      string `yaml:"level"`
	LogPath    string `yaml:"log_path,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// BootstrapServerConfig holds HTTP server settings
type BootstrapServerConfig struct {
	HTTPPort int `yaml:"http_port"`
}

// ROSConfig holds rosbridge session settings
type ROSConfig struct {
	DefaultURL         string `yaml:"default_url"`
	NodePollIntervalMs int    `yaml:"node_poll_interval_ms"`
	DialTimeoutMs      int    `yaml:"dial_timeout_ms"`
}

// HM30Config holds the radio-link defaults and polling cadence
type HM30Config struct {
	RemoteIP              string  `yaml:"remote_ip"`
	RemotePort            int     `yaml:"remote_port"`
	LocalPort             int     `yaml:"local_port"`
	AutoRefreshIntervalMs int     `yaml:"auto_refresh_interval_ms"`
	ReceiveTimeoutSec     float64 `yaml:"receive_timeout_sec"`
	ConnectTimeoutSec     float64 `yaml:"connect_timeout_sec"`
}

// SerialConfig holds serial device polling settings
type SerialConfig struct {
	PollIntervalMs int `yaml:"poll_interval_ms"`
}

// BridgeConfig selects where bridge calls are served from
type BridgeConfig struct {
	Mode             string `yaml:"mode"`
	RequestAddress   string `yaml:"request_address"`
	PublishAddress   string `yaml:"publish_address,omitempty"`
	RequestTimeoutMs int    `yaml:"request_timeout_ms"`
}

// MapConfig holds tile source settings for the map view
type MapConfig struct {
	TilesAvailable bool    `yaml:"tiles_available"`
	OnlineTileURL  string  `yaml:"online_tile_url"`
	Attribution    string  `yaml:"attribution"`
	InitialZoom    float64 `yaml:"initial_zoom"`
	FlyToZoom      float64 `yaml:"fly_to_zoom"`
}

// DataConfig holds data directory settings from bootstrap
type DataConfig struct {
	Directory        string `yaml:"directory"`
	SettingsFilename string `yaml:"settings_file"`
}

// LoadBootstrapConfig loads the bootstrap configuration from groundstation_config.yaml
func LoadBootstrapConfig(configDir string) (*BootstrapConfig, error) {
	bootstrapConfigPath := filepath.Join(configDir, BootstrapFileName)

	data, err := os.ReadFile(bootstrapConfigPath)
	if err != nil {
		return nil, fmt.Errorf("error reading bootstrap config file '%s': %w", bootstrapConfigPath, err)
	}

	bootstrapCfg := DefaultBootstrapConfig()
	if err := yaml.Unmarshal(data, bootstrapCfg); err != nil {
		return nil, fmt.Errorf("error parsing bootstrap config file '%s': %w", bootstrapConfigPath, err)
	}

	if err := bootstrapCfg.Validate(); err != nil {
		return nil, err
	}
	return bootstrapCfg, nil
}

// DefaultBootstrapConfig returns the values used for anything the file omits.
func DefaultBootstrapConfig() *BootstrapConfig {
	return &BootstrapConfig{
		Logging: LoggingConfig{Level: "info", MaxSizeMB: 10, MaxBackups: 3, MaxAgeDays: 28},
		Server:  BootstrapServerConfig{HTTPPort: 8080},
		ROS: ROSConfig{
			DefaultURL:         "ws://localhost:9090",
			NodePollIntervalMs: 5000,
			DialTimeoutMs:      5000,
		},
		HM30: HM30Config{
			RemoteIP:              "192.168.144.12",
			RemotePort:            19856,
			AutoRefreshIntervalMs: 2000,
			ReceiveTimeoutSec:     1.0,
			ConnectTimeoutSec:     5.0,
		},
		Serial: SerialConfig{PollIntervalMs: 5000},
		Bridge: BridgeConfig{
			Mode:             BridgeModeLocal,
			RequestAddress:   "tcp://127.0.0.1:5560",
			RequestTimeoutMs: 3000,
		},
		Map: MapConfig{
			TilesAvailable: true,
			OnlineTileURL:  "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png",
			Attribution:    "© OpenStreetMap contributors",
			InitialZoom:    15,
			FlyToZoom:      17,
		},
		Data: DataConfig{Directory: "data", SettingsFilename: "settings.yaml"},
	}
}

// Validate checks required fields and value ranges.
func (c *BootstrapConfig) Validate() error {
	if c.Data.Directory == "" {
		return fmt.Errorf("missing required field in bootstrap config: data.directory")
	}
	if c.Data.SettingsFilename == "" {
		return fmt.Errorf("missing required field in bootstrap config: data.settings_file")
	}
	switch c.Bridge.Mode {
	case BridgeModeLocal:
	case BridgeModeZeroMQ:
		if c.Bridge.RequestAddress == "" {
			return fmt.Errorf("missing required field in bootstrap config: bridge.request_address")
		}
	default:
		return fmt.Errorf("invalid bridge.mode '%s' in bootstrap config (want %s or %s)", c.Bridge.Mode, BridgeModeLocal, BridgeModeZeroMQ)
	}
	if c.HM30.RemotePort < 1 || c.HM30.RemotePort > 65535 {
		return fmt.Errorf("invalid hm30.remote_port %d in bootstrap config", c.HM30.RemotePort)
	}
	if c.HM30.LocalPort < 0 || c.HM30.LocalPort > 65535 {
		return fmt.Errorf("invalid hm30.local_port %d in bootstrap config", c.HM30.LocalPort)
	}
	return nil
}

// SettingsPath returns the full path of the persisted settings file.
func (c *BootstrapConfig) SettingsPath() string {
	return filepath.Join(c.Data.Directory, c.Data.SettingsFilename)
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// NodePollInterval is how often /rosapi/nodes is called while connected.
func (c ROSConfig) NodePollInterval() time.Duration { return millis(c.NodePollIntervalMs) }

// DialTimeout bounds the websocket handshake.
func (c ROSConfig) DialTimeout() time.Duration { return millis(c.DialTimeoutMs) }

// AutoRefreshInterval is the receive polling period.
func (c HM30Config) AutoRefreshInterval() time.Duration { return millis(c.AutoRefreshIntervalMs) }

// ReceiveTimeout is the per-poll wait passed to the bridge.
func (c HM30Config) ReceiveTimeout() time.Duration { return seconds(c.ReceiveTimeoutSec) }

// ConnectTimeout bounds the UDP connect test.
func (c HM30Config) ConnectTimeout() time.Duration { return seconds(c.ConnectTimeoutSec) }

// PollInterval is the device list refresh period while the panel is open.
func (c SerialConfig) PollInterval() time.Duration { return millis(c.PollIntervalMs) }

// RequestTimeout bounds one bridge round trip over ZeroMQ.
func (c BridgeConfig) RequestTimeout() time.Duration { return millis(c.RequestTimeoutMs) }
