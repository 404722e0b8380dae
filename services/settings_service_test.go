package services

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/open-teleop/groundstation/pkg/config"
	customlog "github.com/open-teleop/groundstation/pkg/log"
	"github.com/open-teleop/groundstation/pkg/state"
)

func newTestService(t *testing.T, contents string) (SettingsService, *state.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if contents != "" {
		if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
			t.Fatalf("Failed to write settings: %v", err)
		}
	}
	logger := customlog.NewWriterLogger("error", io.Discard)
	store := state.NewStore("ws://localhost:9090", state.HM30Config{}, logger)
	t.Cleanup(store.Close)

	svc, err := NewSettingsService(path, config.Settings{RosURL: "ws://localhost:9090"}, store, logger)
	if err != nil {
		t.Fatalf("NewSettingsService failed: %v", err)
	}
	return svc, store, path
}

func TestLoadAppliesPersistedURL(t *testing.T) {
	svc, store, _ := newTestService(t, "ros_url: ws://rover.local:9090\n")

	if got := svc.GetSettings().RosURL; got != "ws://rover.local:9090" {
		t.Errorf("Expected persisted url, got %s", got)
	}
	if got := store.RosURL.Get(); got != "ws://rover.local:9090" {
		t.Errorf("Expected store url updated, got %s", got)
	}
}

func TestLoadInvalidFileKeepsDefaults(t *testing.T) {
	svc, store, _ := newTestService(t, "ros_url: http://rover.local\n")

	if got := svc.GetSettings().RosURL; got != "ws://localhost:9090" {
		t.Errorf("Expected defaults kept, got %s", got)
	}
	if got := store.RosURL.Get(); got != "ws://localhost:9090" {
		t.Errorf("Expected store url untouched, got %s", got)
	}
}

func TestUpdatePersistsAndPublishes(t *testing.T) {
	svc, store, path := newTestService(t, "")

	if err := svc.UpdateSettings(config.Settings{RosURL: "wss://robot:9443"}); err != nil {
		t.Fatalf("UpdateSettings failed: %v", err)
	}
	if store.RosURL.Get() != "wss://robot:9443" {
		t.Errorf("Expected store url updated")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Settings file not written: %v", err)
	}
	if !strings.Contains(string(data), "wss://robot:9443") {
		t.Errorf("Expected url persisted, got %s", data)
	}

	raw, err := svc.GetSettingsYAML()
	if err != nil || !strings.Contains(string(raw), "ros_url: wss://robot:9443") {
		t.Errorf("Unexpected YAML export %q (%v)", raw, err)
	}
}

func TestUpdateRejectsInvalidSettings(t *testing.T) {
	svc, store, path := newTestService(t, "")

	for _, body := range []string{"ros_url: ftp://nope\n", "ros_url: [unterminated\n", "ros_url: ''\n"} {
		err := svc.UpdateSettingsYAML([]byte(body))
		if !IsValidationError(err) {
			t.Errorf("%q: expected validation error, got %v", body, err)
		}
	}
	if store.RosURL.Get() != "ws://localhost:9090" {
		t.Errorf("Expected store url unchanged")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("Expected no settings file written")
	}
}
