package state

import (
	"reflect"

	"github.com/cskr/pubsub"

	customlog "github.com/open-teleop/groundstation/pkg/log"
)

// Change is delivered to subscribers whenever an atom is written.
type Change struct {
	Topic string `json:"topic"`
	Value any    `json:"value"`
}

// Subscription receives Change values for the subscribed topics.
// Delivery is best effort: a change is dropped for a subscriber whose buffer
// is full, so subscribers treat a change as a hint and reread the atom.
type Subscription chan interface{}

// Saturated reports whether the buffer was full when the last change was
// taken from it, meaning later changes may have been dropped.
func (s Subscription) Saturated() bool {
	return len(s) >= cap(s)-1
}

// Bus fans atom changes out to subscribers.
type Bus struct {
	ps     *pubsub.PubSub
	logger customlog.Logger
}

// NewBus creates a bus whose subscriber channels buffer capacity changes.
func NewBus(capacity int, logger customlog.Logger) *Bus {
	return &Bus{
		ps:     pubsub.New(capacity),
		logger: logger,
	}
}

// Publish sends a change on topic. It never waits on a slow subscriber.
func (b *Bus) Publish(topic string, value any) {
	b.logger.Debugf("publish topic=%s payload_type=%s", topic, payloadType(value))
	b.ps.TryPub(Change{Topic: topic, Value: value}, topic)
}

// Subscribe returns a channel receiving changes for the given topics.
func (b *Bus) Subscribe(topics ...string) Subscription {
	ch := b.ps.Sub(topics...)
	b.logger.Debugf("subscribe topics=%v", topics)
	return ch
}

// Unsubscribe removes sub from every topic and drains it until the bus closes it.
func (b *Bus) Unsubscribe(sub Subscription) {
	go b.ps.Unsub(sub)
	for range sub {
	}
	b.logger.Debugf("unsubscribe mode=all")
}

// Close shuts the bus down, closing every subscription.
func (b *Bus) Close() {
	b.ps.Shutdown()
}

func payloadType(v any) string {
	if v == nil {
		return "<nil>"
	}
	return reflect.TypeOf(v).String()
}
