package zeromq

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/open-teleop/groundstation/pkg/bridge"
	"github.com/open-teleop/groundstation/pkg/linkframe"
	"github.com/open-teleop/groundstation/pkg/state"
)

func startService(t *testing.T, b bridge.Bridge) *ZeroMQService {
	t.Helper()
	svc, err := NewZeroMQService(ServiceOptions{
		RequestAddress: "tcp://127.0.0.1:*",
		PublishAddress: "tcp://127.0.0.1:*",
	}, testLogger())
	if err != nil {
		t.Fatalf("NewZeroMQService failed: %v", err)
	}
	RegisterBridgeHandlers(svc, NewBridgeHandler(b, time.Second, testLogger()))
	if err := svc.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(svc.Stop)
	return svc
}

func newTestClient(t *testing.T, address string) *Client {
	t.Helper()
	c, err := NewClient(address, 2*time.Second, testLogger())
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClientRoundTrip(t *testing.T) {
	b := &fakeBridge{}
	svc := startService(t, b)
	c := newTestClient(t, svc.RequestEndpoint())
	ctx := context.Background()

	res, err := c.ConnectHM30(ctx, bridge.ConnectRequest{RemoteIP: "192.168.144.12", RemotePort: 19856})
	if err != nil {
		t.Fatalf("ConnectHM30 failed: %v", err)
	}
	if !res.Success || res.LocalPort != 51000 {
		t.Errorf("Unexpected connect response %+v", res)
	}

	sent, err := c.SendHM30Data(ctx, "48656c6c6f", state.FormatHex)
	if err != nil || !sent.Success {
		t.Fatalf("SendHM30Data failed: %v %+v", err, sent)
	}
	b.mu.Lock()
	encoding := b.lastSend.Encoding
	b.mu.Unlock()
	if encoding != state.FormatHex {
		t.Errorf("Expected hex encoding forwarded, got %s", encoding)
	}

	recv, err := c.ReceiveHM30Data(ctx, 0.5)
	if err != nil || !recv.Timeout {
		t.Errorf("Expected timeout reply, got %+v (%v)", recv, err)
	}

	devices, err := c.ListSerialDevices(ctx)
	if err != nil || devices.Count != 1 {
		t.Errorf("Unexpected devices %+v (%v)", devices, err)
	}
}

func TestClientMapsUnknownTypeToUnavailable(t *testing.T) {
	svc, err := NewZeroMQService(ServiceOptions{RequestAddress: "tcp://127.0.0.1:*"}, testLogger())
	if err != nil {
		t.Fatalf("NewZeroMQService failed: %v", err)
	}
	svc.Start()
	t.Cleanup(svc.Stop)

	c := newTestClient(t, svc.RequestEndpoint())
	if _, err := c.HM30Status(context.Background()); !errors.Is(err, bridge.ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable, got %v", err)
	}
	if err := svc.PublishMessage(TopicLinkFrame, []byte("x")); !errors.Is(err, ErrServiceClosed) {
		t.Errorf("Expected ErrServiceClosed without publisher, got %v", err)
	}
}

func TestClientRecoversAfterTimeout(t *testing.T) {
	c, err := NewClient("tcp://127.0.0.1:1", 100*time.Millisecond, testLogger())
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer c.Close()

	if _, err := c.HM30Status(context.Background()); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
	if c.socket != nil {
		t.Errorf("Expected socket discarded after failure")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.HM30Status(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected canceled, got %v", err)
	}
}

func TestFramesReachListener(t *testing.T) {
	svc := startService(t, &fakeBridge{})
	pub := NewFramePublisher(svc, testLogger())

	got := make(chan linkframe.Frame, 16)
	l, err := NewFrameListener(func(f linkframe.Frame) {
		select {
		case got <- f:
		default:
		}
	}, testLogger())
	if err != nil {
		t.Fatalf("NewFrameListener failed: %v", err)
	}
	if err := l.Start(svc.PublishEndpoint()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer l.Stop()

	frame := linkframe.Frame{
		ID:               "f-1",
		Timestamp:        time.Now(),
		Direction:        state.AirToGround,
		Format:           state.FormatText,
		Payload:          []byte("pong"),
		BytesTransferred: 4,
		SourceIP:         "192.168.144.12",
		SourcePort:       19856,
	}

	// PUB drops messages until the subscription propagates.
	deadline := time.After(3 * time.Second)
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case f := <-got:
			if f.ID != "f-1" || string(f.Payload) != "pong" || f.SourcePort != 19856 {
				t.Errorf("Unexpected frame %+v", f)
			}
			return
		case <-tick.C:
			pub.Observe(frame)
		case <-deadline:
			t.Fatalf("No frame received")
		}
	}
}
