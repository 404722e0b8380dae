package api

import (
	"errors"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	customlog "github.com/open-teleop/groundstation/pkg/log"
	"github.com/open-teleop/groundstation/pkg/state"
)

const streamWriteTimeout = 5 * time.Second

// StreamMessage is one frame on the state stream: a full snapshot first,
// then one change per atom write.
type StreamMessage struct {
	Type  string      `json:"type"`
	Topic string      `json:"topic,omitempty"`
	Data  interface{} `json:"data"`
}

// RegisterStateStream mounts the /ws/state websocket.
func RegisterStateStream(app *fiber.App, store *state.Store, logger customlog.Logger) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/state", websocket.New(func(conn *websocket.Conn) {
		StateStreamHandler(conn, store, logger)
	}))
}

// StateStreamHandler streams the store to one websocket client until it
// disconnects.
func StateStreamHandler(conn *websocket.Conn, store *state.Store, logger customlog.Logger) {
	logger.Infof("State WebSocket connected: %s", conn.RemoteAddr())
	defer logger.Infof("State WebSocket disconnected: %s", conn.RemoteAddr())

	// Subscribe before the snapshot so no write falls between the two.
	sub := store.Subscribe()
	defer store.Unsubscribe(sub)

	if err := writeStream(conn, StreamMessage{Type: "snapshot", Data: store.Snapshot()}); err != nil {
		logger.Warnf("State WS snapshot write failed: %v", err)
		return
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				logClose(logger, err)
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case msg, ok := <-sub:
			if !ok {
				return
			}
			out, ok := nextStreamMessage(store, sub, msg)
			if !ok {
				continue
			}
			if out.Type == "snapshot" {
				logger.Debugf("State WS client lagging, resending snapshot")
			}
			if err := writeStream(conn, out); err != nil {
				logger.Warnf("State WS write failed: %v", err)
				return
			}
		}
	}
}

// nextStreamMessage turns one received change into a frame. When the
// subscription was saturated some changes may have been dropped, so the
// queued changes are discarded and a fresh snapshot replaces them.
func nextStreamMessage(store *state.Store, sub state.Subscription, msg interface{}) (StreamMessage, bool) {
	change, ok := msg.(state.Change)
	if !ok {
		return StreamMessage{}, false
	}
	if !sub.Saturated() {
		return StreamMessage{Type: "change", Topic: change.Topic, Data: change.Value}, true
	}

	// Drain
	for drained := false; !drained; {
		select {
		case _, open := <-sub:
			drained = !open
		default:
			drained = true
		}
	}
	return StreamMessage{Type: "snapshot", Data: store.Snapshot()}, true
}

func writeStream(conn *websocket.Conn, msg StreamMessage) error {
	if err := conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}

func logClose(logger customlog.Logger, err error) {
	switch {
	case websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure):
		logger.Errorf("State WS read error: %v", err)
	case errors.Is(err, websocket.ErrCloseSent), errors.Is(err, syscall.EPIPE), errors.Is(err, syscall.ECONNRESET):
		logger.Infof("State WS connection closed normally.")
	default:
		logger.Debugf("State WS connection closed: %v", err)
	}
}
