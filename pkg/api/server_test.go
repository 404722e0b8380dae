package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/open-teleop/groundstation/domain/devices"
	"github.com/open-teleop/groundstation/domain/hm30"
	"github.com/open-teleop/groundstation/domain/mapview"
	"github.com/open-teleop/groundstation/pkg/bridge"
	"github.com/open-teleop/groundstation/pkg/config"
	customlog "github.com/open-teleop/groundstation/pkg/log"
	"github.com/open-teleop/groundstation/pkg/rosbridge"
	"github.com/open-teleop/groundstation/pkg/state"
	"github.com/open-teleop/groundstation/services"
)

type fakeROS struct {
	store     *state.Store
	registry  *rosbridge.TopicRegistry
	lastURL   string
	pathClear bool
}

func (f *fakeROS) Connect(url string) error {
	f.lastURL = url
	return nil
}
func (f *fakeROS) Disconnect()                        { f.store.RosConnected.Set(false) }
func (f *fakeROS) ClearPath()                         { f.pathClear = true }
func (f *fakeROS) Registry() *rosbridge.TopicRegistry { return f.registry }

type fakeBridge struct{}

func (fakeBridge) ListSerialDevices(ctx context.Context) (*bridge.DevicesResponse, error) {
	return &bridge.DevicesResponse{Success: true, Devices: []state.SerialDevice{{Port: "/dev/ttyUSB0"}}, Count: 1}, nil
}
func (fakeBridge) ConnectHM30(ctx context.Context, req bridge.ConnectRequest) (*bridge.ConnectResponse, error) {
	return &bridge.ConnectResponse{Success: true, LocalPort: 51000}, nil
}
func (fakeBridge) DisconnectHM30(ctx context.Context) (*bridge.DisconnectResponse, error) {
	return &bridge.DisconnectResponse{Success: true}, nil
}
func (fakeBridge) SendHM30Data(ctx context.Context, data string, encoding state.Format) (*bridge.SendResponse, error) {
	payload, err := bridge.DecodePayload(data, encoding)
	if err != nil {
		return &bridge.SendResponse{Success: false, Error: err.Error()}, nil
	}
	return &bridge.SendResponse{Success: true, BytesSent: len(payload)}, nil
}
func (fakeBridge) ReceiveHM30Data(ctx context.Context, timeoutSec float64) (*bridge.ReceiveResponse, error) {
	return &bridge.ReceiveResponse{Timeout: true}, nil
}
func (fakeBridge) HM30Status(ctx context.Context) (*bridge.StatusResponse, error) {
	return &bridge.StatusResponse{Success: true, Status: state.StateDisconnected}, nil
}

type testEnv struct {
	app   *fiber.App
	store *state.Store
	ros   *fakeROS
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := customlog.NewWriterLogger("error", io.Discard)
	store := state.NewStore("ws://localhost:9090", state.HM30Config{RemoteIP: "192.168.144.12", RemotePort: 19856}, logger)

	ros := &fakeROS{store: store, registry: rosbridge.NewTopicRegistry(logger)}
	session := hm30.NewSession(store, fakeBridge{}, hm30.Options{}, logger)
	lister := devices.NewLister(store, fakeBridge{}, 0, logger)
	view := mapview.New(store, mapview.Options{}, logger)
	settings, err := services.NewSettingsService(filepath.Join(t.TempDir(), "settings.yaml"),
		config.Settings{RosURL: "ws://localhost:9090"}, store, logger)
	if err != nil {
		t.Fatalf("NewSettingsService failed: %v", err)
	}
	t.Cleanup(func() {
		session.Close()
		lister.Close()
		view.Unmount()
		store.Close()
	})

	app := NewApp("test", false)
	RegisterRoutes(app, Deps{
		Store:    store,
		ROS:      ros,
		HM30:     session,
		Traffic:  hm30.NewTraffic(),
		Devices:  lister,
		Map:      view,
		Settings: settings,
		Logger:   logger,
	})
	view.Mount()
	return &testEnv{app: app, store: store, ros: ros}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	resp, err := e.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	var out map[string]interface{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return resp, out
}

func TestHealthAndSnapshot(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/health", "")
	if resp.StatusCode != http.StatusOK || body["status"] != "healthy" {
		t.Errorf("Unexpected health response %d %v", resp.StatusCode, body)
	}

	resp, body = env.do(t, http.MethodGet, "/api/state", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	ros, _ := body["ros"].(map[string]interface{})
	if ros["url"] != "ws://localhost:9090" {
		t.Errorf("Expected ros url in snapshot, got %v", ros)
	}
}

func TestHM30ConnectAndSend(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/hm30/connect", `{"remote_ip":"192.168.144.12","remote_port":"19856"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d (%v)", resp.StatusCode, body)
	}
	if body["local_port"] != float64(51000) || body["connected"] != true {
		t.Errorf("Unexpected status %v", body)
	}

	resp, body = env.do(t, http.MethodPost, "/api/hm30/send", `{"data":"48 65 6c 6c 6f","format":"hex"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d (%v)", resp.StatusCode, body)
	}
	if body["bytes_transferred"] != float64(5) {
		t.Errorf("Expected 5 bytes, got %v", body)
	}

	resp, _ = env.do(t, http.MethodPost, "/api/hm30/receive", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("Expected 204 on receive timeout, got %d", resp.StatusCode)
	}

	_, body = env.do(t, http.MethodGet, "/api/hm30/messages", "")
	if msgs, _ := body["messages"].([]interface{}); len(msgs) != 1 {
		t.Errorf("Expected one transcript entry, got %v", body["messages"])
	}

	resp, _ = env.do(t, http.MethodDelete, "/api/hm30/messages", "")
	if resp.StatusCode != http.StatusNoContent || len(env.store.HM30Messages.Get()) != 0 {
		t.Errorf("Expected transcript cleared")
	}
}

func TestHM30ValidationIsBadRequest(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/hm30/connect", `{"remote_ip":"192.168.144.12","remote_port":"70000"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", resp.StatusCode)
	}
	if body["error"] != hm30.MsgInvalidPort {
		t.Errorf("Expected %q, got %v", hm30.MsgInvalidPort, body["error"])
	}
}

func TestHM30ConnectAcceptsNumericPorts(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/hm30/connect", `{"remote_ip":"192.168.144.12","remote_port":19856,"local_port":51000}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d (%v)", resp.StatusCode, body)
	}
	if body["connected"] != true {
		t.Errorf("Expected connected status, got %v", body)
	}
}

func TestHM30ConnectRejectsNumericPortOutOfRange(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/hm30/connect", `{"remote_ip":"192.168.144.12","remote_port":70000}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", resp.StatusCode)
	}
	if body["error"] != hm30.MsgInvalidPort {
		t.Errorf("Expected %q, got %v", hm30.MsgInvalidPort, body["error"])
	}
	if env.store.HM30Error.Get() != hm30.MsgInvalidPort {
		t.Errorf("Expected error surfaced in store, got %q", env.store.HM30Error.Get())
	}
}

func TestPortTextDecoding(t *testing.T) {
	cases := map[string]PortText{
		`"19856"`: "19856",
		`19856`:   "19856",
		`-1`:      "-1",
		`null`:    "",
	}
	for in, want := range cases {
		var p PortText
		if err := json.Unmarshal([]byte(in), &p); err != nil {
			t.Errorf("%s: unexpected error %v", in, err)
			continue
		}
		if p != want {
			t.Errorf("%s: expected %q, got %q", in, want, p)
		}
	}
	var p PortText
	if err := json.Unmarshal([]byte(`true`), &p); err == nil {
		t.Errorf("Expected error for boolean port")
	}
}

func TestROSRoutes(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, http.MethodPost, "/api/ros/connect", `{"url":"ws://rover:9090"}`)
	if resp.StatusCode != http.StatusAccepted || env.ros.lastURL != "ws://rover:9090" {
		t.Errorf("Expected connect accepted with url, got %d %q", resp.StatusCode, env.ros.lastURL)
	}

	resp, _ = env.do(t, http.MethodDelete, "/api/ros/path", "")
	if resp.StatusCode != http.StatusNoContent || !env.ros.pathClear {
		t.Errorf("Expected path cleared")
	}

	resp, _ = env.do(t, http.MethodPost, "/api/ros/nodes/refresh", "")
	if resp.StatusCode != http.StatusNotImplemented {
		t.Errorf("Expected 501 without a node lister, got %d", resp.StatusCode)
	}
}

func TestDevicesAndMap(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/devices/refresh", "")
	if resp.StatusCode != http.StatusOK || body["count"] != float64(1) {
		t.Errorf("Unexpected refresh response %d %v", resp.StatusCode, body)
	}

	resp, body = env.do(t, http.MethodPost, "/api/map/fly-to", "")
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected 409 without a position, got %d (%v)", resp.StatusCode, body)
	}

	resp, body = env.do(t, http.MethodGet, "/api/map/style", "")
	if resp.StatusCode != http.StatusOK || body["version"] != float64(8) {
		t.Errorf("Unexpected style response %d %v", resp.StatusCode, body)
	}
}

func TestDevicesWithoutBridgeIsUnavailable(t *testing.T) {
	logger := customlog.NewWriterLogger("error", io.Discard)
	store := state.NewStore("ws://localhost:9090", state.HM30Config{}, logger)
	defer store.Close()

	app := NewApp("test", false)
	RegisterRoutes(app, Deps{
		Store:   store,
		Devices: devices.NewLister(store, nil, 0, logger),
		Logger:  logger,
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/devices/refresh", nil), -1)
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", resp.StatusCode)
	}
	if store.DeviceError.Get() != bridge.ErrUnavailable.Error() {
		t.Errorf("Expected device error set, got %q", store.DeviceError.Get())
	}
}

func TestSettingsRoutes(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/settings", strings.NewReader("ros_url: ws://rover.local:9090\n"))
	req.Header.Set(fiber.HeaderContentType, "application/x-yaml")
	resp, err := env.app.Test(req, -1)
	if err != nil {
		t.Fatalf("PUT failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if env.store.RosURL.Get() != "ws://rover.local:9090" {
		t.Errorf("Expected store url updated, got %s", env.store.RosURL.Get())
	}

	resp, body := env.do(t, http.MethodPut, "/api/v1/settings", `{"ros_url":"http://nope"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid url, got %d (%v)", resp.StatusCode, body)
	}

	_, body = env.do(t, http.MethodGet, "/api/v1/settings", "")
	if body["ros_url"] != "ws://rover.local:9090" {
		t.Errorf("Unexpected settings %v", body)
	}
}

func TestStateStreamRequiresUpgrade(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, http.MethodGet, "/ws/state", "")
	if resp.StatusCode != fiber.StatusUpgradeRequired {
		t.Errorf("Expected 426, got %d", resp.StatusCode)
	}
}

func TestStreamResyncsLaggingClient(t *testing.T) {
	logger := customlog.NewWriterLogger("error", io.Discard)
	store := state.NewStore("ws://localhost:9090", state.HM30Config{}, logger)
	defer store.Close()
	sub := store.Subscribe()
	defer store.Unsubscribe(sub)

	store.HM30Error.Set("first")
	msg := <-sub
	out, ok := nextStreamMessage(store, sub, msg)
	if !ok || out.Type != "change" || out.Topic != state.TopicHM30Error {
		t.Fatalf("Expected a change frame, got %+v", out)
	}

	for i := 0; i < 300; i++ {
		store.HM30Error.Set("later")
	}
	deadline := time.Now().Add(time.Second)
	for len(sub) < cap(sub) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	out, ok = nextStreamMessage(store, sub, <-sub)
	if !ok || out.Type != "snapshot" {
		t.Fatalf("Expected a snapshot resync, got %+v", out)
	}
	snap, _ := out.Data.(state.Snapshot)
	if snap.HM30.Error != "later" {
		t.Errorf("Expected snapshot with latest value, got %q", snap.HM30.Error)
	}
	if len(sub) != 0 {
		t.Errorf("Expected queued changes drained, %d left", len(sub))
	}
}
