// Package hm30 manages the HM30 radio-link session: connection lifecycle
// through the bridge, the send/receive transcript and receive auto-refresh.
package hm30

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/open-teleop/groundstation/pkg/bridge"
	customlog "github.com/open-teleop/groundstation/pkg/log"
	"github.com/open-teleop/groundstation/pkg/state"
)

// Operator-facing messages.
const (
	MsgInvalidPort      = "Invalid port number (1-65535)"
	MsgInvalidLocalPort = "Invalid local port number (1-65535)"
	MsgEmptyPayload     = "Please enter data to send"
	MsgInvalidFormat    = "Invalid data format (text or hex)"
	MsgConnectFailed    = "Connection failed"
	MsgDisconnectFailed = "Disconnect failed"
	MsgSendFailed       = "Failed to send data"
	MsgReceiveFailed    = "Failed to receive data"
)

// ValidationError is returned when input is rejected before any bridge call.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// OperationError carries a failure reported by the bridge or its transport.
type OperationError struct {
	Op      string
	Message string
}

func (e *OperationError) Error() string { return e.Message }

// Options tunes polling.
type Options struct {
	AutoRefreshInterval time.Duration
	ReceiveTimeout      time.Duration
}

// Session is the single writer of the HM30 atoms.
type Session struct {
	store  *state.Store
	bridge bridge.Bridge
	opts   Options
	logger customlog.Logger

	mu            sync.Mutex
	epoch         uint64
	refreshCancel context.CancelFunc
	closed        bool
	wg            sync.WaitGroup
}

// NewSession creates a session. b may be nil when no bridge is present.
func NewSession(store *state.Store, b bridge.Bridge, opts Options, logger customlog.Logger) *Session {
	if opts.AutoRefreshInterval <= 0 {
		opts.AutoRefreshInterval = 2 * time.Second
	}
	if opts.ReceiveTimeout <= 0 {
		opts.ReceiveTimeout = time.Second
	}
	return &Session{
		store:  store,
		bridge: b,
		opts:   opts,
		logger: logger.WithField("component", "hm30"),
	}
}

// Connect validates the operator's input and opens the link.
// localPort may be empty to let the bridge pick one.
func (s *Session) Connect(ctx context.Context, remoteIP, remotePort, localPort string) error {
	if st := s.store.HM30Status.Get(); st.Connected || st.State == state.StateConnecting {
		s.logger.Infof("HM30 already %s, ignoring connect", st.State)
		return nil
	}
	if s.bridge == nil {
		return s.fail("connect", bridge.ErrUnavailable.Error())
	}

	port, ok := parsePort(remotePort)
	if !ok {
		return s.reject(MsgInvalidPort)
	}
	local := 0
	if strings.TrimSpace(localPort) != "" {
		if local, ok = parsePort(localPort); !ok {
			return s.reject(MsgInvalidLocalPort)
		}
	}
	remoteIP = strings.TrimSpace(remoteIP)

	s.store.HM30Error.Set("")
	s.setStatus(state.LinkStatus{State: state.StateConnecting, RemoteIP: remoteIP, RemotePort: port})

	res, err := s.bridge.ConnectHM30(ctx, bridge.ConnectRequest{RemoteIP: remoteIP, RemotePort: port, LocalPort: local})
	if err != nil {
		s.setStatus(state.LinkStatus{State: state.StateError, Error: err.Error()})
		return s.fail("connect", err.Error())
	}
	if !res.Success {
		msg := orDefault(res.Error, MsgConnectFailed)
		s.setStatus(state.LinkStatus{State: state.StateError, Error: msg})
		return s.fail("connect", msg)
	}

	s.store.HM30Config.Set(state.HM30Config{RemoteIP: remoteIP, RemotePort: port, LocalPort: res.LocalPort})
	s.setStatus(state.LinkStatus{
		State:      state.StateConnected,
		Connected:  true,
		RemoteIP:   remoteIP,
		RemotePort: port,
		LocalPort:  res.LocalPort,
	})
	s.store.HM30Error.Set("")
	s.logger.Infof("HM30 connected to %s:%d (local port %d)", remoteIP, port, res.LocalPort)
	return nil
}

// Disconnect closes the link. On bridge failure the status is left as is.
func (s *Session) Disconnect(ctx context.Context) error {
	if s.bridge == nil {
		return s.fail("disconnect", bridge.ErrUnavailable.Error())
	}
	s.store.HM30Error.Set("")
	// Results of calls still in flight belong to the link being closed.
	s.invalidate()

	res, err := s.bridge.DisconnectHM30(ctx)
	if err != nil {
		return s.fail("disconnect", err.Error())
	}
	if !res.Success {
		return s.fail("disconnect", orDefault(res.Error, MsgDisconnectFailed))
	}

	s.setStatus(state.LinkStatus{State: state.StateDisconnected})
	s.logger.Infof("HM30 disconnected")
	return nil
}

// SendData sends payload to the air unit and records it in the transcript.
func (s *Session) SendData(ctx context.Context, payload string, format state.Format) (*state.Message, error) {
	if strings.TrimSpace(payload) == "" {
		return nil, s.reject(MsgEmptyPayload)
	}
	if format == "" {
		format = state.FormatText
	}
	if !format.Valid() {
		return nil, s.reject(MsgInvalidFormat)
	}
	if s.bridge == nil {
		return nil, s.fail("send", bridge.ErrUnavailable.Error())
	}
	s.store.HM30Error.Set("")

	epoch := s.currentEpoch()
	res, err := s.bridge.SendHM30Data(ctx, payload, format)
	if s.currentEpoch() != epoch {
		s.logger.Debugf("Dropping send result: link changed while sending")
		return nil, nil
	}
	if err != nil {
		return nil, s.fail("send", err.Error())
	}
	if !res.Success {
		return nil, s.fail("send", orDefault(res.Error, MsgSendFailed))
	}

	msg := state.Message{
		ID:               uuid.NewString(),
		Timestamp:        time.Now(),
		Direction:        state.GroundToAir,
		Data:             payload,
		BytesTransferred: res.BytesSent,
		Format:           format,
	}
	s.appendMessage(msg)
	return &msg, nil
}

// ReceiveData polls the bridge once. A timeout yields (nil, nil).
func (s *Session) ReceiveData(ctx context.Context) (*state.Message, error) {
	if s.bridge == nil {
		return nil, s.fail("receive", bridge.ErrUnavailable.Error())
	}

	epoch := s.currentEpoch()
	res, err := s.bridge.ReceiveHM30Data(ctx, s.opts.ReceiveTimeout.Seconds())
	if s.currentEpoch() != epoch {
		s.logger.Debugf("Dropping receive result: link changed while waiting")
		return nil, nil
	}
	if err != nil {
		return nil, s.fail("receive", err.Error())
	}
	if res.Success && res.Data != "" {
		msg := state.Message{
			ID:               uuid.NewString(),
			Timestamp:        time.Now(),
			Direction:        state.AirToGround,
			Data:             res.Data,
			RawData:          res.RawData,
			BytesTransferred: res.BytesReceived,
			Format:           state.FormatText,
		}
		s.store.HM30Error.Set("")
		s.appendMessage(msg)
		return &msg, nil
	}
	if res.Timeout {
		return nil, nil
	}
	return nil, s.fail("receive", orDefault(res.Error, MsgReceiveFailed))
}

// SyncStatus overwrites the local status with the bridge's view.
func (s *Session) SyncStatus(ctx context.Context) error {
	if s.bridge == nil {
		return bridge.ErrUnavailable
	}
	res, err := s.bridge.HM30Status(ctx)
	if err != nil {
		s.logger.Errorf("Failed to fetch HM30 status: %v", err)
		return err
	}
	if res.Status == "" && res.Error != "" {
		s.logger.Errorf("Failed to fetch HM30 status: %s", res.Error)
		return &OperationError{Op: "status", Message: res.Error}
	}
	s.setStatus(res.LinkStatus())
	return nil
}

// SetAutoRefresh turns periodic receive polling on or off. Polling only
// runs while the link is also connected.
func (s *Session) SetAutoRefresh(enabled bool) {
	s.store.HM30AutoRefresh.Set(enabled)
	s.reconcileAutoRefresh()
}

// ClearHistory empties the transcript.
func (s *Session) ClearHistory() {
	s.store.HM30Messages.Set([]state.Message{})
	s.store.HM30LastMessage.Set(nil)
}

// Close stops auto-refresh and waits for it to exit.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	cancel := s.refreshCancel
	s.refreshCancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *Session) autoRefreshActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshCancel != nil
}

func (s *Session) reconcileAutoRefresh() {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := !s.closed && s.store.HM30AutoRefresh.Get() && s.store.HM30Status.Get().Connected
	switch {
	case want && s.refreshCancel == nil:
		ctx, cancel := context.WithCancel(context.Background())
		s.refreshCancel = cancel
		s.wg.Add(1)
		go s.autoRefresh(ctx)
		s.logger.Debugf("HM30 auto-refresh started (every %v)", s.opts.AutoRefreshInterval)
	case !want && s.refreshCancel != nil:
		s.refreshCancel()
		s.refreshCancel = nil
		s.logger.Debugf("HM30 auto-refresh stopped")
	}
}

func (s *Session) autoRefresh(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.opts.AutoRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.ReceiveData(ctx); err != nil && ctx.Err() == nil {
				s.logger.Debugf("Auto-refresh receive: %v", err)
			}
		}
	}
}

func (s *Session) setStatus(st state.LinkStatus) {
	s.invalidate()
	s.store.HM30Status.Set(st)
	s.reconcileAutoRefresh()
}

// invalidate makes results of in-flight bridge calls stale.
func (s *Session) invalidate() {
	s.mu.Lock()
	s.epoch++
	s.mu.Unlock()
}

func (s *Session) currentEpoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

func (s *Session) appendMessage(msg state.Message) {
	s.store.HM30Messages.Update(func(prev []state.Message) []state.Message {
		next := make([]state.Message, len(prev), len(prev)+1)
		copy(next, prev)
		return append(next, msg)
	})
	s.store.HM30LastMessage.Set(&msg)
}

func (s *Session) reject(msg string) error {
	s.store.HM30Error.Set(msg)
	return &ValidationError{Message: msg}
}

func (s *Session) fail(op, msg string) error {
	s.store.HM30Error.Set(msg)
	s.logger.Warnf("HM30 %s failed: %s", op, msg)
	return &OperationError{Op: op, Message: msg}
}

func parsePort(raw string) (int, bool) {
	port, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || port < 1 || port > 65535 {
		return 0, false
	}
	return port, true
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
