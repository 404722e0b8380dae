// Package rosbridge is a websocket client for the rosbridge v2 JSON protocol.
//
// Connect is asynchronous: callers register handlers with On and learn the
// outcome through EventConnection, EventError and EventClose. A closed
// client is never reused.
package rosbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	customlog "github.com/open-teleop/groundstation/pkg/log"
)

const (
	writeWait          = 5 * time.Second
	defaultDialTimeout = 5 * time.Second
)

var (
	ErrNotConnected = errors.New("rosbridge client is not connected")
	ErrClientClosed = errors.New("rosbridge client closed")
)

// Event names a client lifecycle notification.
type Event string

const (
	EventConnection Event = "connection"
	EventError      Event = "error"
	EventClose      Event = "close"
)

// EventHandler receives lifecycle events. err is nil for EventConnection.
type EventHandler func(err error)

// MessageHandler receives the raw "msg" field of a publish operation.
type MessageHandler func(msg json.RawMessage)

type topicSub struct {
	msgType  string
	handlers []MessageHandler
}

type serviceResult struct {
	values json.RawMessage
	ok     bool
}

// Client owns one rosbridge websocket connection.
type Client struct {
	url    string
	dialer *websocket.Dialer
	logger customlog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	closed    bool
	handlers  map[Event][]EventHandler
	topics    map[string]*topicSub
	pending   map[string]chan serviceResult

	writeMu   sync.Mutex
	seq       atomic.Uint64
	closeOnce sync.Once
	done      chan struct{}
}

// Option configures a Client.
type Option func(*Client)

// WithDialTimeout bounds the websocket handshake.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.dialer.HandshakeTimeout = d
		}
	}
}

// NewClient creates a client for url. Nothing is dialed until Connect.
func NewClient(url string, logger customlog.Logger, opts ...Option) *Client {
	c := &Client{
		url: url,
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: defaultDialTimeout,
		},
		logger:   logger.WithField("rosbridge", url),
		handlers: make(map[Event][]EventHandler),
		topics:   make(map[string]*topicSub),
		pending:  make(map[string]chan serviceResult),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the endpoint this client dials.
func (c *Client) URL() string { return c.url }

// On registers fn for ev. Handlers run on the client's goroutines.
func (c *Client) On(ev Event, fn EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[ev] = append(c.handlers[ev], fn)
}

// IsConnected reports whether the websocket is open.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Connect dials in the background. The result is reported via events.
func (c *Client) Connect(ctx context.Context) {
	go c.dial(ctx)
}

func (c *Client) dial(ctx context.Context) {
	c.logger.Infof("Connecting to rosbridge")
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		c.logger.Warnf("rosbridge dial failed: %v", err)
		c.emit(EventError, fmt.Errorf("dial %s: %w", c.url, err))
		c.finish()
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.connected = true
	subs := make([]subscribeMsg, 0, len(c.topics))
	for topic, sub := range c.topics {
		subs = append(subs, subscribeMsg{Op: opSubscribe, Topic: topic, Type: sub.msgType})
	}
	c.mu.Unlock()

	for _, sub := range subs {
		if err := c.write(sub); err != nil {
			c.logger.Warnf("Failed to subscribe to %s: %v", sub.Topic, err)
		}
	}

	c.logger.Infof("Connected to rosbridge")
	c.emit(EventConnection, nil)
	c.readLoop(conn)
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closedByUs := c.closed
			c.mu.Unlock()
			if !closedByUs && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warnf("rosbridge connection lost: %v", err)
				c.emit(EventError, err)
			}
			c.finish()
			return
		}
		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	var in inboundMsg
	if err := json.Unmarshal(data, &in); err != nil {
		c.logger.Warnf("Ignoring malformed rosbridge message: %v", err)
		return
	}

	switch in.Op {
	case opPublish:
		c.mu.Lock()
		var handlers []MessageHandler
		if sub, ok := c.topics[in.Topic]; ok {
			handlers = append(handlers, sub.handlers...)
		}
		c.mu.Unlock()
		for _, h := range handlers {
			h(in.Msg)
		}
	case opServiceResponse:
		c.mu.Lock()
		ch, ok := c.pending[in.ID]
		delete(c.pending, in.ID)
		c.mu.Unlock()
		if !ok {
			c.logger.Debugf("Dropping service response with unknown id %s", in.ID)
			return
		}
		ch <- serviceResult{values: in.Values, ok: in.Result == nil || *in.Result}
	case opStatus:
		c.logger.Infof("rosbridge status (%s): %s", in.Level, string(data))
	default:
		c.logger.Debugf("Ignoring rosbridge op %q", in.Op)
	}
}

// Subscribe registers handler for topic. The subscribe operation is sent
// now if connected, otherwise once the connection opens.
func (c *Client) Subscribe(topic, msgType string, handler MessageHandler) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	sub, exists := c.topics[topic]
	if !exists {
		sub = &topicSub{msgType: msgType}
		c.topics[topic] = sub
	}
	sub.handlers = append(sub.handlers, handler)
	connected := c.connected
	c.mu.Unlock()

	if exists || !connected {
		return nil
	}
	return c.write(subscribeMsg{Op: opSubscribe, Topic: topic, Type: msgType})
}

// Unsubscribe drops every handler for topic.
func (c *Client) Unsubscribe(topic string) error {
	c.mu.Lock()
	_, exists := c.topics[topic]
	delete(c.topics, topic)
	connected := c.connected
	c.mu.Unlock()

	if !exists || !connected {
		return nil
	}
	return c.write(unsubscribeMsg{Op: opUnsubscribe, Topic: topic})
}

// Publish sends msg on topic.
func (c *Client) Publish(topic string, msg interface{}) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return c.write(publishMsg{Op: opPublish, Topic: topic, Msg: msg})
}

// CallService invokes service and decodes the response values into out
// (which may be nil). It waits until a response arrives, ctx ends or the
// connection closes.
func (c *Client) CallService(ctx context.Context, service, serviceType string, args, out interface{}) error {
	if args == nil {
		args = map[string]interface{}{}
	}
	id := fmt.Sprintf("call_service:%s:%d", service, c.seq.Add(1))
	ch := make(chan serviceResult, 1)

	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.write(callServiceMsg{Op: opCallService, ID: id, Service: service, Type: serviceType, Args: args}); err != nil {
		c.dropPending(id)
		return err
	}

	select {
	case res := <-ch:
		if !res.ok {
			return fmt.Errorf("service %s failed: %s", service, string(res.values))
		}
		if out == nil || len(res.values) == 0 {
			return nil
		}
		if err := json.Unmarshal(res.values, out); err != nil {
			return fmt.Errorf("decode %s response: %w", service, err)
		}
		return nil
	case <-ctx.Done():
		c.dropPending(id)
		return ctx.Err()
	case <-c.done:
		return ErrClientClosed
	}
}

// Close shuts the connection. It is safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		c.finish()
		return nil
	}

	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	c.writeMu.Unlock()
	err := conn.Close()
	c.finish()
	return err
}

// Done is closed once the client has shut down.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) write(v interface{}) error {
	c.mu.Lock()
	conn := c.conn
	connected := c.connected
	c.mu.Unlock()
	if conn == nil || !connected {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(v); err != nil {
		return fmt.Errorf("rosbridge write: %w", err)
	}
	return nil
}

func (c *Client) dropPending(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// finish runs once: it marks the client disconnected, releases waiters
// and emits EventClose.
func (c *Client) finish() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.connected = false
		c.closed = true
		c.pending = make(map[string]chan serviceResult)
		c.mu.Unlock()
		close(c.done)
		c.logger.Infof("rosbridge connection closed")
		c.emit(EventClose, nil)
	})
}

func (c *Client) emit(ev Event, err error) {
	c.mu.Lock()
	handlers := append([]EventHandler(nil), c.handlers[ev]...)
	c.mu.Unlock()
	for _, h := range handlers {
		h(err)
	}
}
