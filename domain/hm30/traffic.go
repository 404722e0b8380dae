package hm30

import (
	"sync"
	"time"

	"github.com/open-teleop/groundstation/pkg/linkframe"
	"github.com/open-teleop/groundstation/pkg/state"
)

// TrafficStats summarizes datagrams seen on the link.
type TrafficStats struct {
	FramesSent     int       `json:"frames_sent"`
	FramesReceived int       `json:"frames_received"`
	BytesSent      int       `json:"bytes_sent"`
	BytesReceived  int       `json:"bytes_received"`
	LastFrameAt    time.Time `json:"last_frame_at"`
	LastSourceIP   string    `json:"last_source_ip,omitempty"`
	LastSourcePort int       `json:"last_source_port,omitempty"`
}

// Traffic counts link frames observed by the bridge.
type Traffic struct {
	mu    sync.Mutex
	stats TrafficStats
}

// NewTraffic creates an empty counter.
func NewTraffic() *Traffic {
	return &Traffic{}
}

// Record adds f to the counters.
func (t *Traffic) Record(f linkframe.Frame) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch f.Direction {
	case state.GroundToAir:
		t.stats.FramesSent++
		t.stats.BytesSent += f.BytesTransferred
	case state.AirToGround:
		t.stats.FramesReceived++
		t.stats.BytesReceived += f.BytesTransferred
		if f.SourceIP != "" {
			t.stats.LastSourceIP = f.SourceIP
			t.stats.LastSourcePort = f.SourcePort
		}
	}
	if f.Timestamp.After(t.stats.LastFrameAt) {
		t.stats.LastFrameAt = f.Timestamp
	}
}

// Stats returns a copy of the counters.
func (t *Traffic) Stats() TrafficStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// Reset zeroes the counters.
func (t *Traffic) Reset() {
	t.mu.Lock()
	t.stats = TrafficStats{}
	t.mu.Unlock()
}
