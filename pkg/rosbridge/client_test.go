package rosbridge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	customlog "github.com/open-teleop/groundstation/pkg/log"
)

// fakeRosbridge is a minimal rosbridge server: it records client operations,
// answers /rosapi/nodes and lets tests push publish messages.
type fakeRosbridge struct {
	srv      *httptest.Server
	received chan map[string]interface{}

	mu   sync.Mutex
	conn *websocket.Conn
}

func newFakeRosbridge(t *testing.T) *fakeRosbridge {
	t.Helper()
	f := &fakeRosbridge{received: make(chan map[string]interface{}, 64)}
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		f.mu.Lock()
		f.conn = conn
		f.mu.Unlock()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var op map[string]interface{}
			if err := json.Unmarshal(data, &op); err != nil {
				continue
			}
			f.received <- op
			if op["op"] == "call_service" {
				f.answer(op)
			}
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeRosbridge) url() string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http")
}

func (f *fakeRosbridge) answer(op map[string]interface{}) {
	resp := map[string]interface{}{"op": "service_response", "id": op["id"], "service": op["service"]}
	switch op["service"] {
	case "/rosapi/nodes":
		resp["values"] = map[string]interface{}{"nodes": []string{"/rosbridge_websocket", "/gps_driver"}}
		resp["result"] = true
	default:
		resp["values"] = "service does not exist"
		resp["result"] = false
	}
	f.send(resp)
}

func (f *fakeRosbridge) send(v interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn != nil {
		_ = f.conn.WriteJSON(v)
	}
}

func (f *fakeRosbridge) dropClient() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn != nil {
		f.conn.Close()
	}
}

func (f *fakeRosbridge) expectOp(t *testing.T, op string) map[string]interface{} {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-f.received:
			if got["op"] == op {
				return got
			}
		case <-deadline:
			t.Fatalf("Timed out waiting for %s op", op)
		}
	}
}

func testLogger() customlog.Logger { return customlog.NewWriterLogger("error", io.Discard) }

func waitEvent(t *testing.T, ch <-chan error, name string) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatalf("Timed out waiting for %s event", name)
	}
	return nil
}

func connectedClient(t *testing.T, f *fakeRosbridge) *Client {
	t.Helper()
	c := NewClient(f.url(), testLogger())
	connected := make(chan error, 1)
	c.On(EventConnection, func(err error) { connected <- err })
	c.Connect(context.Background())
	waitEvent(t, connected, "connection")
	t.Cleanup(func() { c.Close() })
	return c
}

func TestConnectSendsQueuedSubscriptions(t *testing.T) {
	f := newFakeRosbridge(t)
	c := NewClient(f.url(), testLogger())
	defer c.Close()

	if err := c.Subscribe("/gps/fix", "sensor_msgs/NavSatFix", func(json.RawMessage) {}); err != nil {
		t.Fatalf("Subscribe before connect failed: %v", err)
	}
	connected := make(chan error, 1)
	c.On(EventConnection, func(err error) { connected <- err })
	c.Connect(context.Background())
	waitEvent(t, connected, "connection")

	op := f.expectOp(t, "subscribe")
	if op["topic"] != "/gps/fix" || op["type"] != "sensor_msgs/NavSatFix" {
		t.Errorf("Unexpected subscribe op: %v", op)
	}
	if !c.IsConnected() {
		t.Errorf("Expected client to report connected")
	}
}

func TestPublishedMessagesReachHandler(t *testing.T) {
	f := newFakeRosbridge(t)
	c := connectedClient(t, f)

	got := make(chan json.RawMessage, 1)
	if err := c.Subscribe("/rotation_vector", "geometry_msgs/Vector3", func(msg json.RawMessage) { got <- msg }); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	f.expectOp(t, "subscribe")

	f.send(map[string]interface{}{"op": "publish", "topic": "/rotation_vector", "msg": map[string]float64{"x": 1, "y": 2, "z": 3}})

	select {
	case msg := <-got:
		var v struct{ X, Y, Z float64 }
		if err := json.Unmarshal(msg, &v); err != nil {
			t.Fatalf("Failed to decode message: %v", err)
		}
		if v.Z != 3 {
			t.Errorf("Expected z=3, got %v", v.Z)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Timed out waiting for published message")
	}
}

func TestCallService(t *testing.T) {
	f := newFakeRosbridge(t)
	c := connectedClient(t, f)

	var result struct {
		Nodes []string `json:"nodes"`
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.CallService(ctx, "/rosapi/nodes", "rosapi/Nodes", nil, &result); err != nil {
		t.Fatalf("CallService failed: %v", err)
	}
	if len(result.Nodes) != 2 || result.Nodes[1] != "/gps_driver" {
		t.Errorf("Unexpected nodes: %v", result.Nodes)
	}

	if err := c.CallService(ctx, "/missing", "", nil, nil); err == nil {
		t.Errorf("Expected error for failed service call")
	}
}

func TestServerDropEmitsClose(t *testing.T) {
	f := newFakeRosbridge(t)
	c := NewClient(f.url(), testLogger())
	connected := make(chan error, 1)
	closed := make(chan error, 1)
	c.On(EventConnection, func(err error) { connected <- err })
	c.On(EventClose, func(err error) { closed <- err })
	c.Connect(context.Background())
	waitEvent(t, connected, "connection")

	f.dropClient()
	waitEvent(t, closed, "close")

	if c.IsConnected() {
		t.Errorf("Expected client disconnected after server drop")
	}
	if err := c.Subscribe("/gps/fix", "sensor_msgs/NavSatFix", func(json.RawMessage) {}); !errors.Is(err, ErrClientClosed) {
		t.Errorf("Expected ErrClientClosed on dead client, got %v", err)
	}
}

func TestDialFailureEmitsErrorThenClose(t *testing.T) {
	f := newFakeRosbridge(t)
	url := f.url()
	f.srv.Close()

	c := NewClient(url, testLogger(), WithDialTimeout(time.Second))
	errs := make(chan error, 1)
	closed := make(chan error, 1)
	c.On(EventError, func(err error) { errs <- err })
	c.On(EventClose, func(err error) { closed <- err })
	c.Connect(context.Background())

	if err := waitEvent(t, errs, "error"); err == nil {
		t.Errorf("Expected dial error")
	}
	waitEvent(t, closed, "close")
}

func TestCloseIsIdempotentAndFailsCalls(t *testing.T) {
	f := newFakeRosbridge(t)
	c := connectedClient(t, f)

	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Second close failed: %v", err)
	}
	if err := c.CallService(context.Background(), "/rosapi/nodes", "rosapi/Nodes", nil, nil); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected after close, got %v", err)
	}
	select {
	case <-c.Done():
	default:
		t.Errorf("Expected Done to be closed")
	}
}

func TestTopicRegistryStats(t *testing.T) {
	r := NewTopicRegistry(testLogger())
	r.Register("/gps/fix", "sensor_msgs/NavSatFix")
	r.Register("/global_plan", "custom_interfaces/TargetArray")

	now := time.Now()
	r.UpdateTopicStats("/gps/fix", now)
	r.UpdateTopicStats("/gps/fix", now)

	info, ok := r.GetTopicInfo("/gps/fix")
	if !ok || info.StatCount != 2 || !info.LastReceived.Equal(now) {
		t.Errorf("Unexpected gps stats: %+v", info)
	}

	stats := r.GetTopicStats()
	if len(stats) != 2 || stats[0].Topic != "/global_plan" {
		t.Errorf("Expected sorted stats for two topics, got %+v", stats)
	}

	r.ResetStats()
	if info, _ := r.GetTopicInfo("/gps/fix"); info.StatCount != 0 {
		t.Errorf("Expected stats reset, got %d", info.StatCount)
	}
}
