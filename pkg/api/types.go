package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/open-teleop/groundstation/domain/hm30"
	"github.com/open-teleop/groundstation/domain/mapview"
	"github.com/open-teleop/groundstation/pkg/rosbridge"
	"github.com/open-teleop/groundstation/pkg/state"
)

// --- Request bodies ---

// RosConnectRequest optionally overrides the stored ROS URL.
type RosConnectRequest struct {
	URL string `json:"url"`
}

// HM30ConnectRequest carries the operator's raw input; ports are validated
// by the session.
type HM30ConnectRequest struct {
	RemoteIP   string   `json:"remote_ip"`
	RemotePort PortText `json:"remote_port"`
	LocalPort  PortText `json:"local_port"`
}

// PortText is a port as typed by the operator. It decodes from a JSON
// string or number and keeps the raw text for the session to validate.
type PortText string

// UnmarshalJSON accepts "19856", 19856 and null.
func (p *PortText) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	switch {
	case raw == "null":
		*p = ""
		return nil
	case strings.HasPrefix(raw, `"`):
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = PortText(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("port must be a number or a string: %w", err)
	}
	*p = PortText(n.String())
	return nil
}

// HM30SendRequest is one payload to send.
type HM30SendRequest struct {
	Data   string       `json:"data"`
	Format state.Format `json:"format"`
}

// AutoRefreshRequest toggles receive polling.
type AutoRefreshRequest struct {
	Enabled bool `json:"enabled"`
}

// --- Controllers the handlers drive ---

// ROSController is the ROS session surface used by the API.
type ROSController interface {
	Connect(url string) error
	Disconnect()
	ClearPath()
	Registry() *rosbridge.TopicRegistry
}

// NodeRefresher fetches the ROS node list on demand.
type NodeRefresher interface {
	Refresh(ctx context.Context) []string
}

// HM30Controller is the HM30 session surface used by the API.
type HM30Controller interface {
	Connect(ctx context.Context, remoteIP, remotePort, localPort string) error
	Disconnect(ctx context.Context) error
	SendData(ctx context.Context, payload string, format state.Format) (*state.Message, error)
	ReceiveData(ctx context.Context) (*state.Message, error)
	SyncStatus(ctx context.Context) error
	SetAutoRefresh(enabled bool)
	ClearHistory()
}

// TrafficReporter exposes link frame counters.
type TrafficReporter interface {
	Stats() hm30.TrafficStats
}

// DeviceController is the serial device lister surface used by the API.
type DeviceController interface {
	Refresh(ctx context.Context) ([]state.SerialDevice, error)
	Open()
	Close()
	IsOpen() bool
}

// MapController is the map view surface used by the API.
type MapController interface {
	Style() (*mapview.Style, error)
	FlyTo() (state.Viewport, error)
}
