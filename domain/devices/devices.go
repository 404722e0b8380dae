// Package devices keeps the serial device list current while the device
// panel is open.
package devices

import (
	"context"
	"sync"
	"time"

	"github.com/open-teleop/groundstation/pkg/bridge"
	customlog "github.com/open-teleop/groundstation/pkg/log"
	"github.com/open-teleop/groundstation/pkg/state"
)

// MsgFetchFailed is reported when the bridge fails without a message.
const MsgFetchFailed = "Failed to fetch serial devices"

// Lister is the single writer of the device atoms.
type Lister struct {
	store    *state.Store
	bridge   bridge.Bridge
	interval time.Duration
	logger   customlog.Logger

	mu       sync.Mutex
	stopPoll context.CancelFunc
	wg       sync.WaitGroup
}

// NewLister creates a lister. b may be nil when no bridge is present.
func NewLister(store *state.Store, b bridge.Bridge, interval time.Duration, logger customlog.Logger) *Lister {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Lister{
		store:    store,
		bridge:   b,
		interval: interval,
		logger:   logger.WithField("component", "devices"),
	}
}

// Refresh fetches the device list once and replaces the stored list.
func (l *Lister) Refresh(ctx context.Context) ([]state.SerialDevice, error) {
	if l.bridge == nil {
		return nil, l.fail(bridge.ErrUnavailable.Error())
	}

	res, err := l.bridge.ListSerialDevices(ctx)
	if err != nil {
		return nil, l.fail(err.Error())
	}
	if !res.Success {
		msg := res.Error
		if msg == "" {
			msg = MsgFetchFailed
		}
		return nil, l.fail(msg)
	}

	list := res.Devices
	if list == nil {
		list = []state.SerialDevice{}
	}
	l.store.Devices.Set(list)
	l.store.DeviceError.Set("")
	return list, nil
}

// Open starts polling: one fetch now, then one per interval until Close.
// Calling Open while already open does nothing.
func (l *Lister) Open() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopPoll != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.stopPoll = cancel
	l.wg.Add(1)
	go l.poll(ctx)
	l.logger.Debugf("Serial device polling started (every %v)", l.interval)
}

// Close stops polling and waits for the loop to exit.
func (l *Lister) Close() {
	l.mu.Lock()
	cancel := l.stopPoll
	l.stopPoll = nil
	l.mu.Unlock()
	if cancel != nil {
		cancel()
		l.wg.Wait()
		l.logger.Debugf("Serial device polling stopped")
	}
}

// IsOpen reports whether polling is active.
func (l *Lister) IsOpen() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopPoll != nil
}

func (l *Lister) poll(ctx context.Context) {
	defer l.wg.Done()
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.refreshOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.refreshOnce(ctx)
		}
	}
}

func (l *Lister) refreshOnce(ctx context.Context) {
	callCtx, cancel := context.WithTimeout(ctx, l.interval)
	defer cancel()
	if _, err := l.Refresh(callCtx); err != nil && ctx.Err() == nil {
		l.logger.Debugf("Device poll: %v", err)
	}
}

func (l *Lister) fail(msg string) error {
	l.store.Devices.Set([]state.SerialDevice{})
	l.store.DeviceError.Set(msg)
	l.logger.Warnf("Serial device listing failed: %s", msg)
	return &FetchError{Message: msg}
}

// FetchError is returned when the list could not be obtained.
type FetchError struct {
	Message string
}

func (e *FetchError) Error() string { return e.Message }
