package ros

import (
	"context"
	"sync"
	"time"

	customlog "github.com/open-teleop/groundstation/pkg/log"
	"github.com/open-teleop/groundstation/pkg/state"
)

// ServiceCaller performs rosbridge service calls.
type ServiceCaller interface {
	CallService(ctx context.Context, service, serviceType string, args, out interface{}) error
}

// NodeLister polls /rosapi/nodes while the session is connected.
type NodeLister struct {
	store    *state.Store
	caller   ServiceCaller
	interval time.Duration
	logger   customlog.Logger

	mu       sync.Mutex
	stopPoll context.CancelFunc
	wg       sync.WaitGroup
}

// NewNodeLister creates a lister; call Run to start following the connection.
func NewNodeLister(store *state.Store, caller ServiceCaller, interval time.Duration, logger customlog.Logger) *NodeLister {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &NodeLister{
		store:    store,
		caller:   caller,
		interval: interval,
		logger:   logger.WithField("component", "ros-nodes"),
	}
}

// Run follows the connected flag until ctx ends: polling starts on connect
// and stops, clearing the list, on disconnect.
func (l *NodeLister) Run(ctx context.Context) {
	sub := l.store.Subscribe(state.TopicRosConnected)
	defer l.store.Unsubscribe(sub)
	defer l.stop()

	l.apply(ctx, l.store.RosConnected.Get())
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-sub:
			if !ok {
				return
			}
			// Changes may be dropped; the atom holds the latest value.
			l.apply(ctx, l.store.RosConnected.Get())
		}
	}
}

func (l *NodeLister) apply(ctx context.Context, connected bool) {
	if !connected {
		l.stop()
		l.store.RosNodes.Set([]string{})
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopPoll != nil {
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	l.stopPoll = cancel
	l.wg.Add(1)
	go l.poll(pollCtx)
}

func (l *NodeLister) stop() {
	l.mu.Lock()
	cancel := l.stopPoll
	l.stopPoll = nil
	l.mu.Unlock()
	if cancel != nil {
		cancel()
		l.wg.Wait()
	}
}

func (l *NodeLister) poll(ctx context.Context) {
	defer l.wg.Done()
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.fetch(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.fetch(ctx)
		}
	}
}

// Refresh fetches the node list once and returns it.
func (l *NodeLister) Refresh(ctx context.Context) []string {
	if !l.store.RosConnected.Get() {
		l.store.RosNodes.Set([]string{})
		return []string{}
	}
	return l.fetch(ctx)
}

type nodesResponse struct {
	Nodes []string `json:"nodes"`
}

func (l *NodeLister) fetch(ctx context.Context) []string {
	callCtx, cancel := context.WithTimeout(ctx, l.interval)
	defer cancel()

	var res nodesResponse
	if err := l.caller.CallService(callCtx, NodesService, NodesServiceType, nil, &res); err != nil {
		if ctx.Err() != nil {
			return l.store.RosNodes.Get()
		}
		l.logger.Errorf("Failed to get ROS nodes: %v", err)
		res.Nodes = nil
	}
	if res.Nodes == nil {
		res.Nodes = []string{}
	}
	l.store.RosNodes.Set(res.Nodes)
	return res.Nodes
}
