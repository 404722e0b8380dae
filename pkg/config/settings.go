package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Settings is the operator-editable state that survives restarts.
type Settings struct {
	RosURL string `yaml:"ros_url" json:"ros_url"`
}

// DefaultSettings returns settings seeded from the bootstrap defaults.
func DefaultSettings(b *BootstrapConfig) Settings {
	return Settings{RosURL: b.ROS.DefaultURL}
}

// Validate rejects settings the ROS session could not dial.
func (s Settings) Validate() error {
	if s.RosURL == "" {
		return fmt.Errorf("validation failed: ros_url is required")
	}
	u, err := url.Parse(s.RosURL)
	if err != nil {
		return fmt.Errorf("validation failed: invalid ros_url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("validation failed: ros_url scheme must be ws or wss, got '%s'", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("validation failed: ros_url has no host")
	}
	return nil
}

// LoadSettings reads settings from path. A missing file yields defaults.
func LoadSettings(path string, defaults Settings) (Settings, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return defaults, nil
	}
	if err != nil {
		return defaults, fmt.Errorf("error reading settings file '%s': %w", path, err)
	}

	settings := defaults
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return defaults, fmt.Errorf("error parsing settings file '%s': %w", path, err)
	}
	if settings.RosURL == "" {
		settings.RosURL = defaults.RosURL
	}
	return settings, nil
}

// SaveSettings writes settings to path through a temp file and rename.
func SaveSettings(path string, s Settings) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("error encoding settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating settings directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("error writing settings file '%s': %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("error replacing settings file '%s': %w", path, err)
	}
	return nil
}
