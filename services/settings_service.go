package services

import (
	"errors"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/open-teleop/groundstation/pkg/config"
	customlog "github.com/open-teleop/groundstation/pkg/log"
	"github.com/open-teleop/groundstation/pkg/state"
)

// ValidationError marks a rejected settings update.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string           { return e.Err.Error() }
func (e *ValidationError) Unwrap() error           { return e.Err }
func (e *ValidationError) IsValidationError() bool { return true }

// IsValidationError reports whether err is a rejected update.
func IsValidationError(err error) bool {
	var v interface{ IsValidationError() bool }
	return errors.As(err, &v) && v.IsValidationError()
}

// SettingsService manages the operator settings file.
type SettingsService interface {
	LoadSettings() error
	GetSettings() config.Settings
	GetSettingsYAML() ([]byte, error)
	UpdateSettings(s config.Settings) error
	UpdateSettingsYAML(data []byte) error
}

// settingsService implements SettingsService. It writes the ROS URL atom
// whenever the persisted URL changes.
type settingsService struct {
	path     string
	defaults config.Settings
	store    *state.Store
	logger   customlog.Logger

	mu      sync.RWMutex
	current config.Settings
}

// NewSettingsService creates the service and performs the initial load.
// A failed load is logged and the defaults stay in effect.
func NewSettingsService(path string, defaults config.Settings, store *state.Store, logger customlog.Logger) (SettingsService, error) {
	if path == "" {
		return nil, fmt.Errorf("settings path cannot be empty")
	}

	s := &settingsService{
		path:     path,
		defaults: defaults,
		store:    store,
		logger:   logger.WithField("component", "settings"),
		current:  defaults,
	}

	if err := s.LoadSettings(); err != nil {
		s.logger.Warnf("Initial load of settings '%s' failed: %v. Using defaults.", path, err)
		return s, nil
	}

	s.logger.Infof("SettingsService initialized for path: %s", path)
	return s, nil
}

// LoadSettings reads the settings file and publishes the ROS URL.
func (s *settingsService) LoadSettings() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Infof("Loading settings from: %s", s.path)
	loaded, err := config.LoadSettings(s.path, s.defaults)
	if err != nil {
		return err
	}
	if err := loaded.Validate(); err != nil {
		return fmt.Errorf("settings file '%s': %w", s.path, err)
	}

	s.current = loaded
	s.store.RosURL.Set(loaded.RosURL)
	s.logger.Infof("Loaded settings: ros_url=%s", loaded.RosURL)
	return nil
}

// GetSettings returns the settings in effect.
func (s *settingsService) GetSettings() config.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// GetSettingsYAML returns the settings in effect encoded as YAML.
func (s *settingsService) GetSettingsYAML() ([]byte, error) {
	data, err := yaml.Marshal(s.GetSettings())
	if err != nil {
		return nil, fmt.Errorf("error encoding settings: %w", err)
	}
	return data, nil
}

// UpdateSettings validates, persists and applies new settings.
func (s *settingsService) UpdateSettings(next config.Settings) error {
	if err := next.Validate(); err != nil {
		s.logger.Errorf("Rejected settings update: %v", err)
		return &ValidationError{Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if next == s.current {
		s.logger.Infof("Settings unchanged, nothing to persist")
		return nil
	}

	s.logger.Infof("Persisting settings to: %s", s.path)
	if err := config.SaveSettings(s.path, next); err != nil {
		s.logger.Errorf("Error writing settings file '%s': %v", s.path, err)
		return err
	}

	old := s.current.RosURL
	s.current = next
	s.store.RosURL.Set(next.RosURL)
	s.logger.Infof("Settings updated: ros_url %s -> %s", old, next.RosURL)
	return nil
}

// UpdateSettingsYAML parses data and applies it through UpdateSettings.
// Fields absent from data keep their current values.
func (s *settingsService) UpdateSettingsYAML(data []byte) error {
	next := s.GetSettings()
	if err := yaml.Unmarshal(data, &next); err != nil {
		return &ValidationError{Err: fmt.Errorf("invalid YAML format: %w", err)}
	}
	return s.UpdateSettings(next)
}
