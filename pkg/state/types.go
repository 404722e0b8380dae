package state

import "time"

// ConnectionState is the lifecycle of a link owned by a session manager.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateError        ConnectionState = "error"
)

// LinkStatus is the HM30 connection status as last reported by the bridge.
type LinkStatus struct {
	State      ConnectionState `json:"status"`
	Connected  bool            `json:"connected"`
	RemoteIP   string          `json:"remote_ip,omitempty"`
	RemotePort int             `json:"remote_port,omitempty"`
	LocalPort  int             `json:"local_port,omitempty"`
	Error      string          `json:"error_message,omitempty"`
}

// HM30Config is the endpoint the operator last connected to.
type HM30Config struct {
	RemoteIP   string `json:"remote_ip"`
	RemotePort int    `json:"remote_port"`
	LocalPort  int    `json:"local_port,omitempty"`
}

// GPS mirrors the fields of sensor_msgs/NavSatFix the dashboard uses.
type GPS struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
}

// Vector3 defines a standard 3D vector.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// RoverStatus is the free-form custom_interfaces/RoverStatus record.
type RoverStatus map[string]any

// Target is one waypoint of the global plan.
type Target struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// PathPoint is one entry of the traveled path.
type PathPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Direction of a transcript entry relative to the ground station.
type Direction string

const (
	GroundToAir Direction = "ground-to-air"
	AirToGround Direction = "air-to-ground"
)

// Format is how a payload was entered or decoded.
type Format string

const (
	FormatText Format = "text"
	FormatHex  Format = "hex"
)

// Valid reports whether f is a known payload format.
func (f Format) Valid() bool {
	return f == FormatText || f == FormatHex
}

// Message is one HM30 transcript entry.
type Message struct {
	ID               string    `json:"id"`
	Timestamp        time.Time `json:"timestamp"`
	Direction        Direction `json:"direction"`
	Data             string    `json:"data"`
	RawData          string    `json:"raw_data,omitempty"`
	BytesTransferred int       `json:"bytes_transferred"`
	Format           Format    `json:"format"`
}

// SerialDevice describes one enumerated serial port.
type SerialDevice struct {
	Port         string `json:"port"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	Manufacturer string `json:"manufacturer"`
	Product      string `json:"product,omitempty"`
	VID          string `json:"vid"`
	PID          string `json:"pid"`
	SerialNumber string `json:"serial_number"`
	Location     string `json:"location,omitempty"`
	HWID         string `json:"hwid,omitempty"`
}

// MarkerStyle distinguishes a heading arrow from an undirected dot.
type MarkerStyle string

const (
	MarkerDot   MarkerStyle = "dot"
	MarkerArrow MarkerStyle = "arrow"
)

// Marker is the single rover marker drawn on the map.
type Marker struct {
	Latitude  float64     `json:"lat"`
	Longitude float64     `json:"lon"`
	Style     MarkerStyle `json:"style"`
	Rotation  float64     `json:"rotation"`
}

// Viewport is the map camera.
type Viewport struct {
	Center PathPoint `json:"center"`
	Zoom   float64   `json:"zoom"`
}
