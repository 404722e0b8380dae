package zeromq

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	zmq "github.com/pebbe/zmq4"

	"github.com/open-teleop/groundstation/pkg/linkframe"
	customlog "github.com/open-teleop/groundstation/pkg/log"
)

// FrameSink receives decoded link frames.
type FrameSink func(linkframe.Frame)

// FrameListener subscribes to the bridge's link frame stream.
type FrameListener struct {
	socket  *zmq.Socket
	sink    FrameSink
	logger  customlog.Logger
	running atomic.Bool
	wg      sync.WaitGroup
}

// NewFrameListener creates a SUB socket filtered to TopicLinkFrame.
func NewFrameListener(sink FrameSink, logger customlog.Logger) (*FrameListener, error) {
	socket, err := zmq.NewSocket(zmq.SUB)
	if err != nil {
		return nil, err
	}
	if err := socket.SetSubscribe(TopicLinkFrame); err != nil {
		socket.Close()
		return nil, err
	}
	if err := socket.SetLinger(0); err != nil {
		socket.Close()
		return nil, err
	}
	if err := socket.SetRcvtimeo(250 * time.Millisecond); err != nil {
		socket.Close()
		return nil, err
	}

	return &FrameListener{
		socket: socket,
		sink:   sink,
		logger: logger.WithField("component", "frame-listener"),
	}, nil
}

// Start connects to address and begins receiving.
func (l *FrameListener) Start(address string) error {
	if err := l.socket.Connect(address); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", address, err)
	}

	l.running.Store(true)
	l.wg.Add(1)
	go l.receiveLoop()

	l.logger.Infof("Frame listener connected to %s", address)
	return nil
}

// Stop ends the loop and closes the socket.
func (l *FrameListener) Stop() {
	if l.running.Swap(false) {
		l.wg.Wait()
		return
	}
	l.socket.Close()
}

func (l *FrameListener) receiveLoop() {
	defer l.wg.Done()
	defer l.socket.Close()

	for l.running.Load() {
		parts, err := l.socket.RecvMessageBytes(0)
		if err != nil {
			if zmq.AsErrno(err) != zmq.Errno(eagain) {
				l.logger.Errorf("Error receiving frame: %v", err)
				time.Sleep(100 * time.Millisecond)
			}
			continue
		}
		if len(parts) != 2 {
			l.logger.Warnf("Dropping frame message with %d parts", len(parts))
			continue
		}

		frame, err := linkframe.Decode(parts[1])
		if err != nil {
			l.logger.Warnf("Dropping undecodable frame: %v", err)
			continue
		}
		l.logger.Debugf("Frame %s %s %d bytes", frame.ID, frame.Direction, frame.BytesTransferred)
		l.sink(frame)
	}
}
