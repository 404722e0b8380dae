package hm30

import (
	"testing"
	"time"

	"github.com/open-teleop/groundstation/pkg/linkframe"
	"github.com/open-teleop/groundstation/pkg/state"
)

func TestTrafficCountsByDirection(t *testing.T) {
	tr := NewTraffic()
	t0 := time.Now()

	tr.Record(linkframe.Frame{Direction: state.GroundToAir, BytesTransferred: 5, Timestamp: t0})
	tr.Record(linkframe.Frame{Direction: state.AirToGround, BytesTransferred: 4, Timestamp: t0.Add(time.Second), SourceIP: "192.168.144.12", SourcePort: 19856})
	tr.Record(linkframe.Frame{Direction: state.GroundToAir, BytesTransferred: 3, Timestamp: t0.Add(-time.Second)})

	st := tr.Stats()
	if st.FramesSent != 2 || st.BytesSent != 8 {
		t.Errorf("Unexpected sent counters %+v", st)
	}
	if st.FramesReceived != 1 || st.BytesReceived != 4 || st.LastSourcePort != 19856 {
		t.Errorf("Unexpected received counters %+v", st)
	}
	if !st.LastFrameAt.Equal(t0.Add(time.Second)) {
		t.Errorf("Expected latest timestamp kept, got %v", st.LastFrameAt)
	}

	tr.Reset()
	if tr.Stats() != (TrafficStats{}) {
		t.Errorf("Expected zeroed stats after reset")
	}
}
