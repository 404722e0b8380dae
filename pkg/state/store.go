package state

import (
	customlog "github.com/open-teleop/groundstation/pkg/log"
)

// Topics on which atom changes are published.
const (
	TopicRosConnected    = "ros.connected"
	TopicRosURL          = "ros.url"
	TopicGPS             = "ros.gps"
	TopicRotationVector  = "ros.rotation_vector"
	TopicRoverStatus     = "ros.rover_status"
	TopicTargets         = "ros.targets"
	TopicPathHistory     = "ros.path_history"
	TopicRosNodes        = "ros.nodes"
	TopicHM30Config      = "hm30.config"
	TopicHM30Status      = "hm30.status"
	TopicHM30Messages    = "hm30.messages"
	TopicHM30LastMessage = "hm30.last_message"
	TopicHM30AutoRefresh = "hm30.auto_refresh"
	TopicHM30Error       = "hm30.error"
	TopicDevices         = "devices.list"
	TopicDeviceError     = "devices.error"
	TopicMapMarker       = "map.marker"
	TopicMapViewport     = "map.viewport"
)

// Store is the shared application state.
// Comments name the component that owns writes to each group of atoms.
type Store struct {
	bus *Bus

	// ROS session manager; RosURL is written by the settings service.
	RosConnected   *Atom[bool]
	RosURL         *Atom[string]
	GPS            *Atom[*GPS]
	RotationVector *Atom[*Vector3]
	RoverStatus    *Atom[RoverStatus]
	Targets        *Atom[[]Target]
	PathHistory    *Atom[[]PathPoint]
	RosNodes       *Atom[[]string]

	// HM30 session manager.
	HM30Config      *Atom[HM30Config]
	HM30Status      *Atom[LinkStatus]
	HM30Messages    *Atom[[]Message]
	HM30LastMessage *Atom[*Message]
	HM30AutoRefresh *Atom[bool]
	HM30Error       *Atom[string]

	// Serial device lister.
	Devices     *Atom[[]SerialDevice]
	DeviceError *Atom[string]

	// Map view.
	MapMarker   *Atom[*Marker]
	MapViewport *Atom[Viewport]
}

// NewStore creates a store with every atom at its initial value.
func NewStore(rosURL string, hm30 HM30Config, logger customlog.Logger) *Store {
	bus := NewBus(128, logger)
	return &Store{
		bus:             bus,
		RosConnected:    newAtom(bus, TopicRosConnected, false),
		RosURL:          newAtom(bus, TopicRosURL, rosURL),
		GPS:             newAtom[*GPS](bus, TopicGPS, nil),
		RotationVector:  newAtom[*Vector3](bus, TopicRotationVector, nil),
		RoverStatus:     newAtom[RoverStatus](bus, TopicRoverStatus, nil),
		Targets:         newAtom(bus, TopicTargets, []Target{}),
		PathHistory:     newAtom(bus, TopicPathHistory, []PathPoint{}),
		RosNodes:        newAtom(bus, TopicRosNodes, []string{}),
		HM30Config:      newAtom(bus, TopicHM30Config, hm30),
		HM30Status:      newAtom(bus, TopicHM30Status, LinkStatus{State: StateDisconnected}),
		HM30Messages:    newAtom(bus, TopicHM30Messages, []Message{}),
		HM30LastMessage: newAtom[*Message](bus, TopicHM30LastMessage, nil),
		HM30AutoRefresh: newAtom(bus, TopicHM30AutoRefresh, false),
		HM30Error:       newAtom(bus, TopicHM30Error, ""),
		Devices:         newAtom(bus, TopicDevices, []SerialDevice{}),
		DeviceError:     newAtom(bus, TopicDeviceError, ""),
		MapMarker:       newAtom[*Marker](bus, TopicMapMarker, nil),
		MapViewport:     newAtom(bus, TopicMapViewport, Viewport{}),
	}
}

// Subscribe returns a subscription for the given topics, or all topics if none are given.
func (s *Store) Subscribe(topics ...string) Subscription {
	if len(topics) == 0 {
		topics = AllTopics()
	}
	return s.bus.Subscribe(topics...)
}

// Unsubscribe releases a subscription returned by Subscribe.
func (s *Store) Unsubscribe(sub Subscription) {
	s.bus.Unsubscribe(sub)
}

// Close shuts down change delivery.
func (s *Store) Close() {
	s.bus.Close()
}

// AllTopics lists every topic the store publishes on.
func AllTopics() []string {
	return []string{
		TopicRosConnected, TopicRosURL, TopicGPS, TopicRotationVector,
		TopicRoverStatus, TopicTargets, TopicPathHistory, TopicRosNodes,
		TopicHM30Config, TopicHM30Status, TopicHM30Messages, TopicHM30LastMessage,
		TopicHM30AutoRefresh, TopicHM30Error, TopicDevices, TopicDeviceError,
		TopicMapMarker, TopicMapViewport,
	}
}

// Snapshot is a point-in-time copy of every atom.
type Snapshot struct {
	ROS struct {
		Connected      bool        `json:"connected"`
		URL            string      `json:"url"`
		GPS            *GPS        `json:"gps"`
		RotationVector *Vector3    `json:"rotation_vector"`
		RoverStatus    RoverStatus `json:"rover_status"`
		Targets        []Target    `json:"targets"`
		PathHistory    []PathPoint `json:"path_history"`
		Nodes          []string    `json:"nodes"`
	} `json:"ros"`
	HM30 struct {
		Config      HM30Config `json:"config"`
		Status      LinkStatus `json:"status"`
		Messages    []Message  `json:"messages"`
		LastMessage *Message   `json:"last_message"`
		AutoRefresh bool       `json:"auto_refresh"`
		Error       string     `json:"error"`
	} `json:"hm30"`
	Devices struct {
		List  []SerialDevice `json:"list"`
		Count int            `json:"count"`
		Error string         `json:"error"`
	} `json:"devices"`
	Map struct {
		Marker   *Marker  `json:"marker"`
		Viewport Viewport `json:"viewport"`
	} `json:"map"`
}

// Snapshot reads every atom.
func (s *Store) Snapshot() Snapshot {
	var snap Snapshot
	snap.ROS.Connected = s.RosConnected.Get()
	snap.ROS.URL = s.RosURL.Get()
	snap.ROS.GPS = s.GPS.Get()
	snap.ROS.RotationVector = s.RotationVector.Get()
	snap.ROS.RoverStatus = s.RoverStatus.Get()
	snap.ROS.Targets = s.Targets.Get()
	snap.ROS.PathHistory = s.PathHistory.Get()
	snap.ROS.Nodes = s.RosNodes.Get()

	snap.HM30.Config = s.HM30Config.Get()
	snap.HM30.Status = s.HM30Status.Get()
	snap.HM30.Messages = s.HM30Messages.Get()
	snap.HM30.LastMessage = s.HM30LastMessage.Get()
	snap.HM30.AutoRefresh = s.HM30AutoRefresh.Get()
	snap.HM30.Error = s.HM30Error.Get()

	snap.Devices.List = s.Devices.Get()
	snap.Devices.Count = len(snap.Devices.List)
	snap.Devices.Error = s.DeviceError.Get()

	snap.Map.Marker = s.MapMarker.Get()
	snap.Map.Viewport = s.MapViewport.Get()
	return snap
}
