package bridge

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/open-teleop/groundstation/pkg/linkframe"
	customlog "github.com/open-teleop/groundstation/pkg/log"
	"github.com/open-teleop/groundstation/pkg/state"
	"github.com/open-teleop/groundstation/pkg/udplink"
)

// Link is the UDP proxy the local bridge drives.
type Link interface {
	Connect(ctx context.Context, remoteIP string, remotePort, localPort int) (int, error)
	Disconnect() error
	Send(data []byte) (int, error)
	Receive(timeout time.Duration) (*udplink.Packet, error)
	Status() udplink.Status
}

// DeviceEnumerator lists serial devices.
type DeviceEnumerator interface {
	List() ([]state.SerialDevice, error)
}

// FrameObserver is told about every datagram the bridge sends or receives.
type FrameObserver func(linkframe.Frame)

// Local serves bridge calls in-process.
type Local struct {
	link     Link
	devices  DeviceEnumerator
	observer FrameObserver
	logger   customlog.Logger
}

var _ Bridge = (*Local)(nil)

// NewLocal wires a local bridge. devices may be nil, in which case
// ListSerialDevices reports ErrUnavailable.
func NewLocal(link Link, devices DeviceEnumerator, logger customlog.Logger) *Local {
	return &Local{
		link:    link,
		devices: devices,
		logger:  logger.WithField("component", "bridge"),
	}
}

// SetFrameObserver installs an observer for link traffic.
func (b *Local) SetFrameObserver(obs FrameObserver) {
	b.observer = obs
}

func (b *Local) ListSerialDevices(ctx context.Context) (*DevicesResponse, error) {
	if b.devices == nil {
		return nil, ErrUnavailable
	}
	devices, err := b.devices.List()
	if err != nil {
		b.logger.Warnf("Serial enumeration failed: %v", err)
		return &DevicesResponse{Success: false, Devices: []state.SerialDevice{}, Error: err.Error()}, nil
	}
	return &DevicesResponse{Success: true, Devices: devices, Count: len(devices)}, nil
}

func (b *Local) ConnectHM30(ctx context.Context, req ConnectRequest) (*ConnectResponse, error) {
	port, err := b.link.Connect(ctx, req.RemoteIP, req.RemotePort, req.LocalPort)
	if err != nil {
		return &ConnectResponse{Success: false, Error: err.Error()}, nil
	}
	return &ConnectResponse{
		Success:   true,
		Message:   fmt.Sprintf("Connected to %s:%d", req.RemoteIP, req.RemotePort),
		LocalPort: port,
	}, nil
}

func (b *Local) DisconnectHM30(ctx context.Context) (*DisconnectResponse, error) {
	if err := b.link.Disconnect(); err != nil {
		return &DisconnectResponse{Success: false, Error: err.Error()}, nil
	}
	return &DisconnectResponse{Success: true, Message: "Disconnected successfully"}, nil
}

func (b *Local) SendHM30Data(ctx context.Context, data string, encoding state.Format) (*SendResponse, error) {
	payload, err := DecodePayload(data, encoding)
	if err != nil {
		return &SendResponse{Success: false, Error: err.Error()}, nil
	}
	n, err := b.link.Send(payload)
	if err != nil {
		return &SendResponse{Success: false, Error: err.Error()}, nil
	}
	b.observe(linkframe.Frame{
		Direction:        state.GroundToAir,
		Format:           encoding,
		Payload:          payload,
		BytesTransferred: n,
	})
	return &SendResponse{Success: true, BytesSent: n, Message: fmt.Sprintf("Sent %d bytes to air unit", n)}, nil
}

func (b *Local) ReceiveHM30Data(ctx context.Context, timeoutSec float64) (*ReceiveResponse, error) {
	timeout := time.Duration(timeoutSec * float64(time.Second))
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	pkt, err := b.link.Receive(timeout)
	if errors.Is(err, udplink.ErrReceiveTimeout) {
		return &ReceiveResponse{Success: false, Timeout: true, Error: err.Error()}, nil
	}
	if err != nil {
		return &ReceiveResponse{Success: false, Error: err.Error()}, nil
	}

	b.observe(linkframe.Frame{
		Direction:        state.AirToGround,
		Format:           state.FormatText,
		Payload:          pkt.Data,
		BytesTransferred: len(pkt.Data),
		SourceIP:         pkt.SourceIP,
		SourcePort:       pkt.SourcePort,
	})
	return &ReceiveResponse{
		Success:       true,
		Data:          decodeText(pkt.Data),
		RawData:       hex.EncodeToString(pkt.Data),
		BytesReceived: len(pkt.Data),
		SourceIP:      pkt.SourceIP,
		SourcePort:    pkt.SourcePort,
	}, nil
}

func (b *Local) HM30Status(ctx context.Context) (*StatusResponse, error) {
	st := b.link.Status()
	return &StatusResponse{
		Success:      true,
		Status:       st.State,
		Connected:    st.Connected(),
		RemoteIP:     st.RemoteIP,
		RemotePort:   st.RemotePort,
		LocalPort:    st.LocalPort,
		ErrorMessage: st.Error,
	}, nil
}

func (b *Local) observe(f linkframe.Frame) {
	if b.observer == nil {
		return
	}
	f.ID = uuid.NewString()
	f.Timestamp = time.Now()
	b.observer(f)
}

// DecodePayload turns operator input into bytes. Hex input may contain
// whitespace between octets.
func DecodePayload(data string, encoding state.Format) ([]byte, error) {
	switch encoding {
	case state.FormatHex:
		clean := strings.Join(strings.Fields(data), "")
		clean = strings.TrimPrefix(strings.TrimPrefix(clean, "0x"), "0X")
		payload, err := hex.DecodeString(clean)
		if err != nil {
			return nil, fmt.Errorf("invalid hex data: %w", err)
		}
		return payload, nil
	case state.FormatText, "":
		return []byte(data), nil
	default:
		return nil, fmt.Errorf("unsupported encoding '%s'", encoding)
	}
}

// decodeText renders received bytes as UTF-8, replacing invalid sequences.
func decodeText(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), "�")
}
