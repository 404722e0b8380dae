package zeromq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"syscall"
	"time"

	"github.com/pebbe/zmq4"

	"github.com/open-teleop/groundstation/pkg/bridge"
	customlog "github.com/open-teleop/groundstation/pkg/log"
	"github.com/open-teleop/groundstation/pkg/state"
)

// RemoteError is an ERROR reply from the bridge service.
type RemoteError struct {
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("bridge error %d: %s", e.Code, e.Message)
}

// Client calls a remote bridge over a REQ socket. Calls are serialized;
// after any failed exchange the socket is rebuilt so the REQ state machine
// starts clean.
type Client struct {
	address string
	timeout time.Duration
	logger  customlog.Logger

	mu     sync.Mutex
	ctx    *zmq4.Context
	socket *zmq4.Socket
}

var _ bridge.Bridge = (*Client)(nil)

// NewClient creates a client for address. The socket connects lazily.
func NewClient(address string, timeout time.Duration, logger customlog.Logger) (*Client, error) {
	if address == "" {
		return nil, fmt.Errorf("bridge request address cannot be empty")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, err := zmq4.NewContext()
	if err != nil {
		return nil, fmt.Errorf("failed to create ZMQ context: %w", err)
	}
	return &Client{
		address: address,
		timeout: timeout,
		logger:  logger.WithField("component", "bridge-client"),
		ctx:     ctx,
	}, nil
}

// Close releases the socket and context.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx == nil {
		return nil
	}
	c.resetLocked()
	err := c.ctx.Term()
	c.ctx = nil
	return err
}

func (c *Client) ListSerialDevices(ctx context.Context) (*bridge.DevicesResponse, error) {
	var res bridge.DevicesResponse
	if err := c.call(ctx, MsgTypeListSerialDevices, nil, &res, 0); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) ConnectHM30(ctx context.Context, req bridge.ConnectRequest) (*bridge.ConnectResponse, error) {
	var res bridge.ConnectResponse
	if err := c.call(ctx, MsgTypeHM30Connect, req, &res, 0); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) DisconnectHM30(ctx context.Context) (*bridge.DisconnectResponse, error) {
	var res bridge.DisconnectResponse
	if err := c.call(ctx, MsgTypeHM30Disconnect, nil, &res, 0); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) SendHM30Data(ctx context.Context, data string, encoding state.Format) (*bridge.SendResponse, error) {
	var res bridge.SendResponse
	if err := c.call(ctx, MsgTypeHM30Send, SendRequest{Data: data, Encoding: encoding}, &res, 0); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) ReceiveHM30Data(ctx context.Context, timeoutSec float64) (*bridge.ReceiveResponse, error) {
	var res bridge.ReceiveResponse
	wait := time.Duration(timeoutSec * float64(time.Second))
	if err := c.call(ctx, MsgTypeHM30Receive, ReceiveRequest{Timeout: timeoutSec}, &res, wait); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) HM30Status(ctx context.Context) (*bridge.StatusResponse, error) {
	var res bridge.StatusResponse
	if err := c.call(ctx, MsgTypeHM30Status, nil, &res, 0); err != nil {
		return nil, err
	}
	return &res, nil
}

// call performs one request/reply exchange. extra extends the reply wait
// for requests that block on the far side.
func (c *Client) call(ctx context.Context, msgType string, payload, out interface{}, extra time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	request, err := json.Marshal(newEnvelope(msgType, payload))
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", msgType, err)
	}

	timeout := c.timeout + extra
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < timeout {
			timeout = d
		}
	}
	if timeout <= 0 {
		return context.DeadlineExceeded
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	raw, err := c.exchangeLocked(request, timeout)
	if err != nil {
		c.logger.Warnf("%s exchange with %s failed: %v", msgType, c.address, err)
		c.resetLocked()
		return err
	}

	var reply inboundMessage
	if err := json.Unmarshal(raw, &reply); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	switch reply.Type {
	case ResponseType(msgType):
	case MsgTypeError:
		var e ErrorResponse
		_ = json.Unmarshal(reply.Data, &e)
		if e.Code == CodeUnavailable {
			return fmt.Errorf("%w: %s", bridge.ErrUnavailable, e.Message)
		}
		return &RemoteError{Code: e.Code, Message: e.Message}
	default:
		return fmt.Errorf("%w: unexpected reply type %s to %s", ErrInvalidMessage, reply.Type, msgType)
	}

	if err := json.Unmarshal(reply.Data, out); err != nil {
		return fmt.Errorf("%w: bad %s payload: %v", ErrInvalidMessage, reply.Type, err)
	}
	return nil
}

func (c *Client) exchangeLocked(request []byte, timeout time.Duration) ([]byte, error) {
	if c.ctx == nil {
		return nil, ErrServiceClosed
	}
	if c.socket == nil {
		socket, err := c.ctx.NewSocket(zmq4.REQ)
		if err != nil {
			return nil, fmt.Errorf("failed to create REQ socket: %w", err)
		}
		if err := socket.SetLinger(0); err != nil {
			socket.Close()
			return nil, fmt.Errorf("failed to set linger option: %w", err)
		}
		if err := socket.Connect(c.address); err != nil {
			socket.Close()
			return nil, fmt.Errorf("failed to connect to %s: %w", c.address, err)
		}
		c.socket = socket
	}

	if err := c.socket.SetSndtimeo(timeout); err != nil {
		return nil, fmt.Errorf("failed to set send timeout: %w", err)
	}
	if err := c.socket.SetRcvtimeo(timeout); err != nil {
		return nil, fmt.Errorf("failed to set receive timeout: %w", err)
	}
	if _, err := c.socket.SendBytes(request, 0); err != nil {
		return nil, fmt.Errorf("send failed: %w", timeoutErr(err))
	}
	raw, err := c.socket.RecvBytes(0)
	if err != nil {
		return nil, fmt.Errorf("receive failed: %w", timeoutErr(err))
	}
	return raw, nil
}

func (c *Client) resetLocked() {
	if c.socket != nil {
		c.socket.Close()
		c.socket = nil
	}
}

// eagain is what libzmq reports when a socket timeout expires.
const eagain = syscall.EAGAIN

// timeoutErr maps EAGAIN from a timed-out socket call to DeadlineExceeded.
func timeoutErr(err error) error {
	if zmq4.AsErrno(err) == zmq4.Errno(eagain) {
		return context.DeadlineExceeded
	}
	return err
}
