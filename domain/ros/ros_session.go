// Package ros manages the rosbridge session: connection lifecycle, topic
// subscriptions feeding the state store, and the rosapi node list.
package ros

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	customlog "github.com/open-teleop/groundstation/pkg/log"
	"github.com/open-teleop/groundstation/pkg/rosbridge"
	"github.com/open-teleop/groundstation/pkg/state"
)

// Client is the part of *rosbridge.Client the session uses.
type Client interface {
	On(ev rosbridge.Event, fn rosbridge.EventHandler)
	Connect(ctx context.Context)
	Subscribe(topic, msgType string, handler rosbridge.MessageHandler) error
	CallService(ctx context.Context, service, serviceType string, args, out interface{}) error
	Close() error
}

// ClientFactory builds a client for url.
type ClientFactory func(url string) Client

// NewClientFactory returns a factory producing real rosbridge clients.
func NewClientFactory(dialTimeout time.Duration, logger customlog.Logger) ClientFactory {
	return func(url string) Client {
		return rosbridge.NewClient(url, logger, rosbridge.WithDialTimeout(dialTimeout))
	}
}

// Session owns at most one live rosbridge client and writes the ROS atoms.
type Session struct {
	store     *state.Store
	newClient ClientFactory
	registry  *rosbridge.TopicRegistry
	logger    customlog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	client Client
}

// NewSession creates a disconnected session.
func NewSession(store *state.Store, factory ClientFactory, logger customlog.Logger) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		store:     store,
		newClient: factory,
		registry:  rosbridge.NewTopicRegistry(logger),
		logger:    logger.WithField("component", "ros"),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, topic := range SubscribedTopics() {
		s.registry.Register(topic.Name, topic.MessageType)
	}
	return s
}

// Registry exposes per-topic receive statistics.
func (s *Session) Registry() *rosbridge.TopicRegistry { return s.registry }

// Connect starts a connection to url, or to the stored ROS URL when url is
// empty. It is a no-op while a connected client exists. Any other prior
// client is torn down first. The outcome arrives asynchronously through
// the connected flag.
func (s *Session) Connect(url string) error {
	if url == "" {
		url = s.store.RosURL.Get()
	}

	s.mu.Lock()
	if s.client != nil && s.store.RosConnected.Get() {
		s.mu.Unlock()
		s.logger.Infof("Already connected to ROS")
		return nil
	}
	old := s.client
	c := s.newClient(url)
	s.client = c
	s.mu.Unlock()

	if old != nil {
		s.logger.Infof("Tearing down previous rosbridge client")
		_ = old.Close()
	}

	c.On(rosbridge.EventConnection, func(error) { s.onConnection(c) })
	c.On(rosbridge.EventError, func(err error) { s.onDown(c, "error", err) })
	c.On(rosbridge.EventClose, func(err error) { s.onDown(c, "close", err) })

	s.logger.Infof("Connecting to ROS at %s", url)
	c.Connect(s.ctx)
	return nil
}

// Disconnect closes the current client if any. It is idempotent.
func (s *Session) Disconnect() {
	s.mu.Lock()
	c := s.client
	s.client = nil
	s.store.RosConnected.Set(false)
	s.mu.Unlock()

	if c != nil {
		_ = c.Close()
		s.logger.Infof("Disconnected from ROS")
	}
}

// Close disconnects and stops any pending dial.
func (s *Session) Close() {
	s.Disconnect()
	s.cancel()
}

// CallService forwards a service call to the current client.
func (s *Session) CallService(ctx context.Context, service, serviceType string, args, out interface{}) error {
	s.mu.Lock()
	c := s.client
	s.mu.Unlock()
	if c == nil {
		return rosbridge.ErrNotConnected
	}
	return c.CallService(ctx, service, serviceType, args, out)
}

// ClearPath empties the traveled path.
func (s *Session) ClearPath() {
	s.store.PathHistory.Set([]state.PathPoint{})
}

func (s *Session) isCurrent(c Client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client == c
}

func (s *Session) onConnection(c Client) {
	s.mu.Lock()
	if s.client != c {
		s.mu.Unlock()
		return
	}
	s.store.RosConnected.Set(true)
	s.mu.Unlock()

	s.logger.Infof("Connected to rosbridge WebSocket")
	s.subscribe(c, TopicGPS, s.handleGPS)
	s.subscribe(c, TopicRotationVector, s.handleRotationVector)
	s.subscribe(c, TopicRoverStatus, s.handleRoverStatus)
	s.subscribe(c, TopicGlobalPlan, s.handleGlobalPlan)
}

func (s *Session) onDown(c Client, kind string, err error) {
	s.mu.Lock()
	if s.client != c {
		s.mu.Unlock()
		return
	}
	s.store.RosConnected.Set(false)
	s.mu.Unlock()

	if err != nil {
		s.logger.Errorf("rosbridge %s: %v", kind, err)
	} else {
		s.logger.Infof("Connection to rosbridge WebSocket closed")
	}
}

func (s *Session) subscribe(c Client, topic TopicSpec, handle func(json.RawMessage)) {
	err := c.Subscribe(topic.Name, topic.MessageType, func(msg json.RawMessage) {
		if !s.isCurrent(c) {
			return
		}
		s.registry.UpdateTopicStats(topic.Name, time.Now())
		handle(msg)
	})
	if err != nil {
		s.logger.Warnf("Subscribe to %s failed: %v", topic.Name, err)
	}
}

type navSatFix struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
}

func (s *Session) handleGPS(raw json.RawMessage) {
	var fix navSatFix
	if err := json.Unmarshal(raw, &fix); err != nil {
		s.logger.Warnf("Bad %s message: %v", TopicGPS.Name, err)
		return
	}
	s.store.GPS.Set(&state.GPS{Latitude: fix.Latitude, Longitude: fix.Longitude, Altitude: fix.Altitude})

	point := state.PathPoint{Latitude: fix.Latitude, Longitude: fix.Longitude}
	s.store.PathHistory.Update(func(prev []state.PathPoint) []state.PathPoint {
		return appendPathPoint(prev, point)
	})
}

// appendPathPoint returns path extended by point unless point repeats the
// last entry, in which case path is returned as is.
func appendPathPoint(path []state.PathPoint, point state.PathPoint) []state.PathPoint {
	if len(path) > 0 && samePoint(path[len(path)-1], point) {
		return path
	}
	next := make([]state.PathPoint, len(path), len(path)+1)
	copy(next, path)
	return append(next, point)
}

// samePoint compares coordinates by their printed form.
func samePoint(a, b state.PathPoint) bool {
	return formatCoord(a.Latitude) == formatCoord(b.Latitude) &&
		formatCoord(a.Longitude) == formatCoord(b.Longitude)
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (s *Session) handleRotationVector(raw json.RawMessage) {
	var v state.Vector3
	if err := json.Unmarshal(raw, &v); err != nil {
		s.logger.Warnf("Bad %s message: %v", TopicRotationVector.Name, err)
		return
	}
	s.store.RotationVector.Set(&v)
}

func (s *Session) handleRoverStatus(raw json.RawMessage) {
	var st state.RoverStatus
	if err := json.Unmarshal(raw, &st); err != nil {
		s.logger.Warnf("Bad %s message: %v", TopicRoverStatus.Name, err)
		return
	}
	s.store.RoverStatus.Set(st)
}

type targetArray struct {
	Targets []state.Target `json:"targets"`
}

func (s *Session) handleGlobalPlan(raw json.RawMessage) {
	var plan targetArray
	if err := json.Unmarshal(raw, &plan); err != nil {
		s.logger.Warnf("Bad %s message: %v", TopicGlobalPlan.Name, err)
		return
	}
	if plan.Targets == nil {
		plan.Targets = []state.Target{}
	}
	s.store.Targets.Set(plan.Targets)
}
