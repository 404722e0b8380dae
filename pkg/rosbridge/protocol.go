package rosbridge

import "encoding/json"

// Rosbridge v2 operations.
const (
	opSubscribe       = "subscribe"
	opUnsubscribe     = "unsubscribe"
	opPublish         = "publish"
	opCallService     = "call_service"
	opServiceResponse = "service_response"
	opStatus          = "status"
)

type subscribeMsg struct {
	Op    string `json:"op"`
	ID    string `json:"id,omitempty"`
	Topic string `json:"topic"`
	Type  string `json:"type,omitempty"`
}

type unsubscribeMsg struct {
	Op    string `json:"op"`
	Topic string `json:"topic"`
}

type publishMsg struct {
	Op    string      `json:"op"`
	Topic string      `json:"topic"`
	Msg   interface{} `json:"msg"`
}

type callServiceMsg struct {
	Op      string      `json:"op"`
	ID      string      `json:"id"`
	Service string      `json:"service"`
	Type    string      `json:"type,omitempty"`
	Args    interface{} `json:"args"`
}

// inboundMsg covers every server-to-client operation the client handles.
type inboundMsg struct {
	Op      string          `json:"op"`
	ID      string          `json:"id,omitempty"`
	Topic   string          `json:"topic,omitempty"`
	Msg     json.RawMessage `json:"msg,omitempty"`
	Service string          `json:"service,omitempty"`
	Values  json.RawMessage `json:"values,omitempty"`
	Result  *bool           `json:"result,omitempty"`
	Level   string          `json:"level,omitempty"`
}
