package rosbridge

import (
	"sort"
	"sync"
	"time"

	customlog "github.com/open-teleop/groundstation/pkg/log"
)

// TopicInfo holds metadata and receive statistics for a subscribed topic
type TopicInfo struct {
	Topic        string    `json:"topic"`
	MessageType  string    `json:"type"`
	StatCount    int64     `json:"count"`
	LastReceived time.Time `json:"last_received"`
}

// TopicRegistry maintains information about subscribed topics
type TopicRegistry struct {
	logger customlog.Logger
	topics map[string]*TopicInfo
	mu     sync.RWMutex
}

// NewTopicRegistry creates a new topic registry
func NewTopicRegistry(logger customlog.Logger) *TopicRegistry {
	return &TopicRegistry{
		logger: logger,
		topics: make(map[string]*TopicInfo),
	}
}

// Register adds a topic, keeping stats if it is already known.
func (r *TopicRegistry) Register(topic, msgType string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if info, ok := r.topics[topic]; ok {
		info.MessageType = msgType
		return
	}
	r.topics[topic] = &TopicInfo{Topic: topic, MessageType: msgType}
	r.logger.Debugf("Registered topic %s (%s)", topic, msgType)
}

// GetTopicInfo gets a copy of the information for a topic
func (r *TopicRegistry) GetTopicInfo(topic string) (TopicInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, exists := r.topics[topic]
	if !exists {
		return TopicInfo{}, false
	}
	return *info, true
}

// UpdateTopicStats counts one message received on topic at ts
func (r *TopicRegistry) UpdateTopicStats(topic string, ts time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, exists := r.topics[topic]
	if !exists {
		info = &TopicInfo{Topic: topic}
		r.topics[topic] = info
	}
	info.StatCount++
	info.LastReceived = ts
}

// ResetStats zeroes the counters, keeping registrations.
func (r *TopicRegistry) ResetStats() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, info := range r.topics {
		info.StatCount = 0
		info.LastReceived = time.Time{}
	}
}

// GetTopicStats returns every topic sorted by name
func (r *TopicRegistry) GetTopicStats() []TopicInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make([]TopicInfo, 0, len(r.topics))
	for _, info := range r.topics {
		stats = append(stats, *info)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Topic < stats[j].Topic })
	return stats
}
