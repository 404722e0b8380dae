package devices

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/open-teleop/groundstation/pkg/bridge"
	customlog "github.com/open-teleop/groundstation/pkg/log"
	"github.com/open-teleop/groundstation/pkg/state"
)

type fakeBridge struct {
	bridge.Bridge

	mu    sync.Mutex
	res   *bridge.DevicesResponse
	err   error
	calls int
}

func (f *fakeBridge) ListSerialDevices(ctx context.Context) (*bridge.DevicesResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.res, f.err
}

func (f *fakeBridge) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testLogger() customlog.Logger { return customlog.NewWriterLogger("error", io.Discard) }

func newTestLister(t *testing.T, b bridge.Bridge, interval time.Duration) (*Lister, *state.Store) {
	t.Helper()
	store := state.NewStore("ws://localhost:9090", state.HM30Config{}, testLogger())
	l := NewLister(store, b, interval, testLogger())
	t.Cleanup(func() {
		l.Close()
		store.Close()
	})
	return l, store
}

var sampleDevices = []state.SerialDevice{
	{Port: "/dev/ttyACM0", Name: "ttyACM0", Description: "Pixhawk", VID: "0x26ac", PID: "0x0011"},
	{Port: "/dev/ttyUSB0", Name: "ttyUSB0", Description: "CP2102", VID: "0x10c4", PID: "0xea60"},
}

func TestRefreshReplacesList(t *testing.T) {
	b := &fakeBridge{res: &bridge.DevicesResponse{Success: true, Devices: sampleDevices, Count: 2}}
	l, store := newTestLister(t, b, time.Second)
	store.DeviceError.Set("old error")

	list, err := l.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if len(list) != 2 || len(store.Devices.Get()) != 2 {
		t.Errorf("Expected two devices, got %d", len(store.Devices.Get()))
	}
	if store.DeviceError.Get() != "" {
		t.Errorf("Expected error cleared")
	}
	if snap := store.Snapshot(); snap.Devices.Count != 2 {
		t.Errorf("Expected count 2, got %d", snap.Devices.Count)
	}
}

func TestRefreshFailuresEmptyTheList(t *testing.T) {
	cases := []struct {
		name string
		b    bridge.Bridge
		want string
	}{
		{"no bridge", nil, bridge.ErrUnavailable.Error()},
		{"bridge failure", &fakeBridge{res: &bridge.DevicesResponse{Success: false}}, MsgFetchFailed},
		{"bridge message", &fakeBridge{res: &bridge.DevicesResponse{Success: false, Error: "permission denied"}}, "permission denied"},
		{"transport error", &fakeBridge{err: errors.New("socket closed")}, "socket closed"},
	}
	for _, tc := range cases {
		l, store := newTestLister(t, tc.b, time.Second)
		store.Devices.Set(sampleDevices)

		if _, err := l.Refresh(context.Background()); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
		if len(store.Devices.Get()) != 0 {
			t.Errorf("%s: expected empty list", tc.name)
		}
		if store.DeviceError.Get() != tc.want {
			t.Errorf("%s: expected %q, got %q", tc.name, tc.want, store.DeviceError.Get())
		}
	}
}

func TestOpenPollsUntilClosed(t *testing.T) {
	b := &fakeBridge{res: &bridge.DevicesResponse{Success: true, Devices: sampleDevices}}
	l, store := newTestLister(t, b, 10*time.Millisecond)

	l.Open()
	l.Open()
	if !l.IsOpen() {
		t.Fatalf("Expected open")
	}

	deadline := time.Now().Add(2 * time.Second)
	for b.callCount() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if b.callCount() < 3 {
		t.Fatalf("Expected repeated polls, got %d", b.callCount())
	}
	if len(store.Devices.Get()) != 2 {
		t.Errorf("Expected devices stored")
	}

	l.Close()
	after := b.callCount()
	time.Sleep(40 * time.Millisecond)
	if b.callCount() != after {
		t.Errorf("Expected no polls after Close")
	}
	if l.IsOpen() {
		t.Errorf("Expected closed")
	}
}
