// Package bridge defines the desktop bridge the session managers call into:
// serial enumeration and the HM30 UDP link. Implementations live in this
// package (Local) and in pkg/zeromq (remote client).
package bridge

import (
	"context"
	"errors"

	"github.com/open-teleop/groundstation/pkg/state"
)

// ErrUnavailable is returned when the bridge, or the requested function,
// is not present. Callers surface it as a normal failure.
var ErrUnavailable = errors.New("not running in the expected host environment")

// Bridge is the set of calls the dashboard makes to the host process.
// Every response carries Success plus either a payload or Error.
type Bridge interface {
	ListSerialDevices(ctx context.Context) (*DevicesResponse, error)
	ConnectHM30(ctx context.Context, req ConnectRequest) (*ConnectResponse, error)
	DisconnectHM30(ctx context.Context) (*DisconnectResponse, error)
	SendHM30Data(ctx context.Context, data string, encoding state.Format) (*SendResponse, error)
	ReceiveHM30Data(ctx context.Context, timeoutSec float64) (*ReceiveResponse, error)
	HM30Status(ctx context.Context) (*StatusResponse, error)
}

// DevicesResponse is the result of ListSerialDevices.
type DevicesResponse struct {
	Success bool                 `json:"success"`
	Devices []state.SerialDevice `json:"devices"`
	Count   int                  `json:"count"`
	Error   string               `json:"error,omitempty"`
}

// ConnectRequest opens the UDP proxy. LocalPort 0 lets the OS pick.
type ConnectRequest struct {
	RemoteIP   string `json:"remote_ip"`
	RemotePort int    `json:"remote_port"`
	LocalPort  int    `json:"local_port,omitempty"`
}

// ConnectResponse is the result of ConnectHM30.
type ConnectResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	LocalPort int    `json:"local_port,omitempty"`
	Error     string `json:"error,omitempty"`
}

// DisconnectResponse is the result of DisconnectHM30.
type DisconnectResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// SendResponse is the result of SendHM30Data.
type SendResponse struct {
	Success   bool   `json:"success"`
	BytesSent int    `json:"bytes_sent,omitempty"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ReceiveResponse is the result of ReceiveHM30Data.
// Timeout is set when nothing arrived within the requested wait.
type ReceiveResponse struct {
	Success       bool   `json:"success"`
	Data          string `json:"data,omitempty"`
	RawData       string `json:"raw_data,omitempty"`
	BytesReceived int    `json:"bytes_received,omitempty"`
	SourceIP      string `json:"source_ip,omitempty"`
	SourcePort    int    `json:"source_port,omitempty"`
	Timeout       bool   `json:"timeout,omitempty"`
	Error         string `json:"error,omitempty"`
}

// StatusResponse is the result of HM30Status.
type StatusResponse struct {
	Success      bool                  `json:"success"`
	Status       state.ConnectionState `json:"status"`
	Connected    bool                  `json:"connected"`
	RemoteIP     string                `json:"remote_ip,omitempty"`
	RemotePort   int                   `json:"remote_port,omitempty"`
	LocalPort    int                   `json:"local_port,omitempty"`
	ErrorMessage string                `json:"error_message,omitempty"`
	Error        string                `json:"error,omitempty"`
}

// LinkStatus converts the response into the store representation.
func (r *StatusResponse) LinkStatus() state.LinkStatus {
	st := r.Status
	if st == "" {
		st = state.StateDisconnected
		if r.Connected {
			st = state.StateConnected
		}
	}
	return state.LinkStatus{
		State:      st,
		Connected:  r.Connected,
		RemoteIP:   r.RemoteIP,
		RemotePort: r.RemotePort,
		LocalPort:  r.LocalPort,
		Error:      r.ErrorMessage,
	}
}
