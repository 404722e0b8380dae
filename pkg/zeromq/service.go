// Package zeromq carries bridge calls between processes: a REP service that
// dispatches JSON envelopes to handlers, a REQ client implementing
// bridge.Bridge, and a PUB/SUB stream of link frames.
package zeromq

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pebbe/zmq4"

	"github.com/open-teleop/groundstation/pkg/bridge"
	customlog "github.com/open-teleop/groundstation/pkg/log"
)

// Common errors
var (
	ErrServiceClosed      = errors.New("zeromq service is closed")
	ErrInvalidMessage     = errors.New("invalid message format")
	ErrUnknownMessageType = errors.New("unknown message type")
)

// Message types
const (
	MsgTypeListSerialDevices = "LIST_SERIAL_DEVICES"
	MsgTypeHM30Connect       = "HM30_CONNECT"
	MsgTypeHM30Disconnect    = "HM30_DISCONNECT"
	MsgTypeHM30Send          = "HM30_SEND"
	MsgTypeHM30Receive       = "HM30_RECEIVE"
	MsgTypeHM30Status        = "HM30_STATUS"
	MsgTypeError             = "ERROR"

	responseSuffix = "_RESPONSE"
)

// Error codes carried in ErrorResponse.
const (
	CodeBadRequest  = 400
	CodeUnavailable = 404
	CodeInternal    = 500
)

// ZeroMQMessage is the envelope for every request and reply.
type ZeroMQMessage struct {
	Type      string      `json:"type"`
	Timestamp float64     `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// inboundMessage is ZeroMQMessage with the payload left undecoded.
type inboundMessage struct {
	Type      string          `json:"type"`
	Timestamp float64         `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ErrorResponse represents an error response message
type ErrorResponse struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// ResponseType names the reply to a request of type msgType.
func ResponseType(msgType string) string { return msgType + responseSuffix }

func newEnvelope(msgType string, data interface{}) ZeroMQMessage {
	return ZeroMQMessage{
		Type:      msgType,
		Timestamp: float64(time.Now().UnixNano()) / float64(time.Second),
		Data:      data,
	}
}

// MessageHandler defines the interface for handlers that process specific message types
type MessageHandler interface {
	HandleMessage(data []byte) ([]byte, error)
}

// HandlerFunc is a function type that implements MessageHandler
type HandlerFunc func(data []byte) ([]byte, error)

// HandleMessage calls the function
func (f HandlerFunc) HandleMessage(data []byte) ([]byte, error) {
	return f(data)
}

// MessageDispatcher routes messages to the appropriate handlers
type MessageDispatcher struct {
	handlers map[string]MessageHandler
	logger   customlog.Logger
	mu       sync.RWMutex
}

// NewMessageDispatcher creates a new message dispatcher
func NewMessageDispatcher(logger customlog.Logger) *MessageDispatcher {
	return &MessageDispatcher{
		handlers: make(map[string]MessageHandler),
		logger:   logger,
	}
}

// RegisterHandler adds a handler for a specific message type
func (d *MessageDispatcher) RegisterHandler(messageType string, handler MessageHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.handlers[messageType] = handler
	d.logger.Debugf("Registered handler for message type: %s", messageType)
}

// Dispatch routes a request to its handler.
func (d *MessageDispatcher) Dispatch(data []byte) ([]byte, error) {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
		return nil, fmt.Errorf("%w: expected JSON envelope with a type", ErrInvalidMessage)
	}

	d.mu.RLock()
	handler, exists := d.handlers[msg.Type]
	d.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMessageType, msg.Type)
	}

	d.logger.Debugf("Dispatching message of type: %s", msg.Type)
	return handler.HandleMessage(data)
}

// errorReply builds the ERROR envelope for err.
func errorReply(err error) []byte {
	code := CodeInternal
	switch {
	case errors.Is(err, ErrUnknownMessageType), errors.Is(err, bridge.ErrUnavailable):
		code = CodeUnavailable
	case errors.Is(err, ErrInvalidMessage):
		code = CodeBadRequest
	}
	data, _ := json.Marshal(newEnvelope(MsgTypeError, ErrorResponse{Message: err.Error(), Code: code}))
	return data
}

// MessageReceiver answers requests on a REP socket.
type MessageReceiver struct {
	socket     *zmq4.Socket
	endpoint   string
	dispatcher *MessageDispatcher
	poller     *zmq4.Poller
	logger     customlog.Logger
	running    atomic.Bool
	wg         *sync.WaitGroup
}

func newMessageReceiver(ctx *zmq4.Context, address string, dispatcher *MessageDispatcher, logger customlog.Logger, wg *sync.WaitGroup) (*MessageReceiver, error) {
	// Create REP socket for receiving requests
	socket, err := ctx.NewSocket(zmq4.REP)
	if err != nil {
		return nil, fmt.Errorf("failed to create REP socket: %w", err)
	}
	// Configure socket options
	if err := socket.SetLinger(0); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to set linger option: %w", err)
	}
	// Bounded send so a vanished peer cannot wedge the loop.
	if err := socket.SetSndtimeo(time.Second); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to set send timeout: %w", err)
	}

	// Bind to the configured address
	if err := socket.Bind(address); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to bind to %s: %w", address, err)
	}
	endpoint, err := socket.GetLastEndpoint()
	if err != nil {
		endpoint = address
	}

	// Create poller for non-blocking receives
	poller := zmq4.NewPoller()
	poller.Add(socket, zmq4.POLLIN)

	logger.Infof("MessageReceiver initialized on %s", endpoint)
	return &MessageReceiver{
		socket:     socket,
		endpoint:   endpoint,
		dispatcher: dispatcher,
		poller:     poller,
		logger:     logger,
		wg:         wg,
	}, nil
}

// Start begins the receive loop. The loop owns the socket and closes it on exit.
func (r *MessageReceiver) Start() {
	if !r.running.CompareAndSwap(false, true) {
		return
	}
	r.wg.Add(1)
	go r.loop()
}

func (r *MessageReceiver) loop() {
	defer r.wg.Done()
	defer r.socket.Close()
	r.logger.Infof("MessageReceiver started")

	for r.running.Load() {
		// Poll for messages with timeout to allow for clean shutdown
		sockets, err := r.poller.Poll(250 * time.Millisecond)
		if err != nil {
			if r.running.Load() {
				r.logger.Errorf("Error polling socket: %v", err)
			}
			continue
		}
		if len(sockets) == 0 {
			// No messages, continue polling
			continue
		}

		// Receive message
		msg, err := r.socket.RecvBytes(0)
		if err != nil {
			r.logger.Errorf("Error receiving message: %v", err)
			continue
		}
		r.logger.Debugf("Received message (%d bytes)", len(msg))

		// Process message through dispatcher
		response, err := r.dispatcher.Dispatch(msg)
		if err != nil {
			r.logger.Warnf("Error dispatching message: %v", err)
			// Create and send error response
			response = errorReply(err)
		}

		// Send response
		if _, err := r.socket.SendBytes(response, 0); err != nil {
			r.logger.Errorf("Error sending response: %v", err)
		}
	}
	r.logger.Infof("MessageReceiver stopped")
}

// Stop ends the receive loop; the caller waits on the shared WaitGroup.
func (r *MessageReceiver) Stop() {
	r.running.Store(false)
}

// MessageSender publishes topic-framed messages on a PUB socket.
type MessageSender struct {
	socket   *zmq4.Socket
	endpoint string
	logger   customlog.Logger
	running  bool
	mu       sync.Mutex
}

func newMessageSender(ctx *zmq4.Context, address string, logger customlog.Logger) (*MessageSender, error) {
	// Create PUB socket for publishing messages
	socket, err := ctx.NewSocket(zmq4.PUB)
	if err != nil {
		return nil, fmt.Errorf("failed to create PUB socket: %w", err)
	}
	if err := socket.SetLinger(0); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to set linger option: %w", err)
	}

	// Bind to the configured address
	if err := socket.Bind(address); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to bind to %s: %w", address, err)
	}
	endpoint, err := socket.GetLastEndpoint()
	if err != nil {
		endpoint = address
	}

	logger.Infof("MessageSender initialized on %s", endpoint)
	return &MessageSender{
		socket:   socket,
		endpoint: endpoint,
		logger:   logger,
		running:  true,
	}, nil
}

// PublishMessage sends a message with the given topic
func (s *MessageSender) PublishMessage(topic string, message []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return ErrServiceClosed
	}

	// Send two messages in sequence (topic first, then message)
	if _, err := s.socket.Send(topic, zmq4.SNDMORE); err != nil {
		return fmt.Errorf("failed to send topic: %w", err)
	}
	if _, err := s.socket.SendBytes(message, 0); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Close cleans up resources
func (s *MessageSender) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.running = false
	if s.socket != nil {
		s.socket.Close()
		s.socket = nil
	}
}

// ServiceOptions selects the bound endpoints. PublishAddress may be empty
// to run without a frame stream.
type ServiceOptions struct {
	RequestAddress string
	PublishAddress string
}

// ZeroMQService serves bridge requests and publishes link frames.
type ZeroMQService struct {
	ctx        *zmq4.Context
	receiver   *MessageReceiver
	sender     *MessageSender
	dispatcher *MessageDispatcher
	logger     customlog.Logger
	running    bool
	wg         sync.WaitGroup
}

// NewZeroMQService binds the service sockets.
func NewZeroMQService(opts ServiceOptions, logger customlog.Logger) (*ZeroMQService, error) {
	logger = logger.WithField("component", "zeromq")
	ctx, err := zmq4.NewContext()
	if err != nil {
		return nil, fmt.Errorf("failed to create ZMQ context: %w", err)
	}

	s := &ZeroMQService{
		ctx:        ctx,
		dispatcher: NewMessageDispatcher(logger),
		logger:     logger,
	}

	s.receiver, err = newMessageReceiver(ctx, opts.RequestAddress, s.dispatcher, logger, &s.wg)
	if err != nil {
		ctx.Term()
		return nil, err
	}

	if opts.PublishAddress != "" {
		s.sender, err = newMessageSender(ctx, opts.PublishAddress, logger)
		if err != nil {
			s.receiver.socket.Close()
			ctx.Term()
			return nil, err
		}
	}
	return s, nil
}

// RequestEndpoint is the resolved REP endpoint, useful with wildcard ports.
func (s *ZeroMQService) RequestEndpoint() string { return s.receiver.endpoint }

// PublishEndpoint is the resolved PUB endpoint, or "" without a publisher.
func (s *ZeroMQService) PublishEndpoint() string {
	if s.sender == nil {
		return ""
	}
	return s.sender.endpoint
}

// RegisterHandler adds a handler for a specific message type
func (s *ZeroMQService) RegisterHandler(messageType string, handler MessageHandler) {
	s.dispatcher.RegisterHandler(messageType, handler)
}

// RegisterHandlerFunc adds a handler function for a specific message type
func (s *ZeroMQService) RegisterHandlerFunc(messageType string, handler func([]byte) ([]byte, error)) {
	s.dispatcher.RegisterHandler(messageType, HandlerFunc(handler))
}

// Start begins serving requests.
func (s *ZeroMQService) Start() error {
	if s.running {
		return nil
	}
	s.running = true
	s.logger.Infof("Starting ZeroMQ service")
	s.receiver.Start()
	return nil
}

// Stop halts the receive loop, closes the sockets and terminates the context.
func (s *ZeroMQService) Stop() {
	if s.ctx == nil {
		return
	}
	s.logger.Infof("Stopping ZeroMQ service")
	s.running = false

	if s.receiver.running.Load() {
		s.receiver.Stop()
		s.wg.Wait()
	} else {
		s.receiver.socket.Close()
	}
	if s.sender != nil {
		s.sender.Close()
	}

	s.ctx.Term()
	s.ctx = nil
	s.logger.Infof("ZeroMQ service stopped")
}

// PublishMessage sends a message with the given topic
func (s *ZeroMQService) PublishMessage(topic string, message []byte) error {
	if s.sender == nil {
		return ErrServiceClosed
	}
	return s.sender.PublishMessage(topic, message)
}
