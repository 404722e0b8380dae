// Package udplink owns the single UDP socket used to talk to the HM30 air unit.
package udplink

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	customlog "github.com/open-teleop/groundstation/pkg/log"
	"github.com/open-teleop/groundstation/pkg/state"
)

// ConnectTestPayload is sent to the air unit right after the socket is bound.
const ConnectTestPayload = "HM30_CONNECT_TEST"

// ReceiveBufferSize is the largest datagram Receive returns.
const ReceiveBufferSize = 4096

var (
	ErrNotConnected   = errors.New("not connected to HM30")
	ErrInvalidState   = errors.New("invalid connection state")
	ErrReceiveTimeout = errors.New("no data received (timeout)")
)

// Status is the link state as reported to callers.
type Status struct {
	State      state.ConnectionState
	RemoteIP   string
	RemotePort int
	LocalPort  int
	Error      string
}

// Connected reports whether the link can send.
func (s Status) Connected() bool {
	return s.State == state.StateConnected
}

// Packet is one datagram received from the air unit.
type Packet struct {
	Data       []byte
	SourceIP   string
	SourcePort int
}

// Link is a UDP proxy bound to a local port and aimed at one remote endpoint.
// At most one socket is open at a time.
type Link struct {
	logger         customlog.Logger
	connectTimeout time.Duration

	mu     sync.Mutex
	conn   *net.UDPConn
	remote *net.UDPAddr
	status Status
}

// New creates a disconnected link.
func New(connectTimeout time.Duration, logger customlog.Logger) *Link {
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}
	return &Link{
		logger:         logger.WithField("component", "udplink"),
		connectTimeout: connectTimeout,
		status:         Status{State: state.StateDisconnected},
	}
}

// Connect closes any existing socket, binds localPort (0 picks a free port)
// and sends the connect test datagram to the remote endpoint. It returns the bound port.
func (l *Link) Connect(ctx context.Context, remoteIP string, remotePort, localPort int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closeLocked()
	l.status = Status{State: state.StateConnecting, RemoteIP: remoteIP, RemotePort: remotePort}

	remote, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(remoteIP, strconv.Itoa(remotePort)))
	if err != nil {
		return 0, l.failLocked(fmt.Errorf("invalid address: %w", err))
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: localPort})
	if err != nil {
		return 0, l.failLocked(fmt.Errorf("connection failed: %w", err))
	}

	deadline := time.Now().Add(l.connectTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetWriteDeadline(deadline)
	if _, err := conn.WriteToUDP([]byte(ConnectTestPayload), remote); err != nil {
		conn.Close()
		if isTimeout(err) {
			return 0, l.failLocked(errors.New("connection timeout"))
		}
		return 0, l.failLocked(fmt.Errorf("connection failed: %w", err))
	}
	_ = conn.SetWriteDeadline(time.Time{})

	bound := conn.LocalAddr().(*net.UDPAddr).Port
	l.conn = conn
	l.remote = remote
	l.status = Status{
		State:      state.StateConnected,
		RemoteIP:   remoteIP,
		RemotePort: remotePort,
		LocalPort:  bound,
	}
	l.logger.Infof("HM30 link up: local port %d -> %s", bound, remote)
	return bound, nil
}

// Disconnect closes the socket. It is safe to call when not connected.
func (l *Link) Disconnect() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closeLocked()
	l.status = Status{State: state.StateDisconnected}
	return nil
}

// Send writes one datagram to the remote endpoint.
func (l *Link) Send(data []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.status.State != state.StateConnected {
		return 0, ErrNotConnected
	}
	if l.conn == nil || l.remote == nil {
		return 0, ErrInvalidState
	}

	_ = l.conn.SetWriteDeadline(time.Now().Add(l.connectTimeout))
	n, err := l.conn.WriteToUDP(data, l.remote)
	if err != nil {
		if isTimeout(err) {
			err = errors.New("send timeout")
		} else {
			err = fmt.Errorf("send error: %w", err)
		}
		l.status.State = state.StateError
		l.status.Error = err.Error()
		l.logger.Warnf("HM30 send failed: %v", err)
		return 0, err
	}
	l.logger.Debugf("Sent %d bytes to air unit", n)
	return n, nil
}

// Receive waits up to timeout for one datagram.
// ErrReceiveTimeout is returned when nothing arrives in time.
func (l *Link) Receive(timeout time.Duration) (*Packet, error) {
	l.mu.Lock()
	conn := l.conn
	connected := l.status.State == state.StateConnected
	l.mu.Unlock()

	if !connected || conn == nil {
		return nil, ErrNotConnected
	}

	buf := make([]byte, ReceiveBufferSize)
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	n, src, err := conn.ReadFromUDP(buf)
	if err != nil {
		if isTimeout(err) {
			return nil, ErrReceiveTimeout
		}
		// Disconnect or a reconnect closed the socket under the read.
		if errors.Is(err, net.ErrClosed) || !l.owns(conn) {
			return nil, ErrNotConnected
		}
		return nil, fmt.Errorf("receive error: %w", err)
	}
	return &Packet{Data: buf[:n], SourceIP: src.IP.String(), SourcePort: src.Port}, nil
}

// Status returns a copy of the current status.
func (l *Link) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

func (l *Link) owns(conn *net.UDPConn) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn == conn
}

func (l *Link) closeLocked() {
	if l.conn == nil {
		return
	}
	if err := l.conn.Close(); err != nil {
		l.logger.Warnf("closing HM30 socket: %v", err)
	}
	l.conn = nil
	l.remote = nil
}

func (l *Link) failLocked(err error) error {
	l.status = Status{
		State:      state.StateError,
		RemoteIP:   l.status.RemoteIP,
		RemotePort: l.status.RemotePort,
		Error:      err.Error(),
	}
	l.logger.Errorf("HM30 connect failed: %v", err)
	return err
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
