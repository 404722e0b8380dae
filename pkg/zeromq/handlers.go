package zeromq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/open-teleop/groundstation/pkg/bridge"
	customlog "github.com/open-teleop/groundstation/pkg/log"
	"github.com/open-teleop/groundstation/pkg/state"
)

// SendRequest is the payload of HM30_SEND.
type SendRequest struct {
	Data     string       `json:"data"`
	Encoding state.Format `json:"encoding"`
}

// ReceiveRequest is the payload of HM30_RECEIVE.
type ReceiveRequest struct {
	Timeout float64 `json:"timeout"`
}

// BridgeHandler answers bridge requests by calling a local bridge.
type BridgeHandler struct {
	bridge  bridge.Bridge
	timeout time.Duration
	logger  customlog.Logger
}

// NewBridgeHandler creates a handler; timeout bounds each bridge call.
func NewBridgeHandler(b bridge.Bridge, timeout time.Duration, logger customlog.Logger) *BridgeHandler {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &BridgeHandler{bridge: b, timeout: timeout, logger: logger}
}

// RegisterBridgeHandlers registers one handler per bridge request type.
func RegisterBridgeHandlers(service *ZeroMQService, h *BridgeHandler) {
	service.RegisterHandlerFunc(MsgTypeListSerialDevices, h.handleListSerialDevices)
	service.RegisterHandlerFunc(MsgTypeHM30Connect, h.handleConnect)
	service.RegisterHandlerFunc(MsgTypeHM30Disconnect, h.handleDisconnect)
	service.RegisterHandlerFunc(MsgTypeHM30Send, h.handleSend)
	service.RegisterHandlerFunc(MsgTypeHM30Receive, h.handleReceive)
	service.RegisterHandlerFunc(MsgTypeHM30Status, h.handleStatus)
	h.logger.Infof("Registered bridge request handlers")
}

func (h *BridgeHandler) handleListSerialDevices(data []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	res, err := h.bridge.ListSerialDevices(ctx)
	return reply(MsgTypeListSerialDevices, res, err)
}

func (h *BridgeHandler) handleConnect(data []byte) ([]byte, error) {
	var req bridge.ConnectRequest
	if err := decodeRequest(data, MsgTypeHM30Connect, &req); err != nil {
		return nil, err
	}
	h.logger.Infof("HM30 connect request for %s:%d", req.RemoteIP, req.RemotePort)

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	res, err := h.bridge.ConnectHM30(ctx, req)
	return reply(MsgTypeHM30Connect, res, err)
}

func (h *BridgeHandler) handleDisconnect(data []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	res, err := h.bridge.DisconnectHM30(ctx)
	return reply(MsgTypeHM30Disconnect, res, err)
}

func (h *BridgeHandler) handleSend(data []byte) ([]byte, error) {
	var req SendRequest
	if err := decodeRequest(data, MsgTypeHM30Send, &req); err != nil {
		return nil, err
	}
	if req.Encoding == "" {
		req.Encoding = state.FormatText
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	res, err := h.bridge.SendHM30Data(ctx, req.Data, req.Encoding)
	return reply(MsgTypeHM30Send, res, err)
}

func (h *BridgeHandler) handleReceive(data []byte) ([]byte, error) {
	req := ReceiveRequest{Timeout: 1.0}
	if err := decodeRequest(data, MsgTypeHM30Receive, &req); err != nil {
		return nil, err
	}

	wait := time.Duration(req.Timeout * float64(time.Second))
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout+wait)
	defer cancel()
	res, err := h.bridge.ReceiveHM30Data(ctx, req.Timeout)
	return reply(MsgTypeHM30Receive, res, err)
}

func (h *BridgeHandler) handleStatus(data []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	res, err := h.bridge.HM30Status(ctx)
	return reply(MsgTypeHM30Status, res, err)
}

// decodeRequest unpacks the envelope payload into out. An absent payload
// leaves out untouched.
func decodeRequest(data []byte, msgType string, out interface{}) error {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if msg.Type != msgType {
		return fmt.Errorf("%w: unexpected message type %s", ErrInvalidMessage, msg.Type)
	}
	if len(msg.Data) == 0 || string(msg.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(msg.Data, out); err != nil {
		return fmt.Errorf("%w: bad %s payload: %v", ErrInvalidMessage, msgType, err)
	}
	return nil
}

func reply(msgType string, res interface{}, err error) ([]byte, error) {
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(newEnvelope(ResponseType(msgType), res))
	if err != nil {
		return nil, fmt.Errorf("failed to serialize response: %w", err)
	}
	return data, nil
}
