package realtime

import "bell24h/internal/domain"

// Client → server message types
const (
	MsgAuthenticate   = "authenticate"
	MsgSubscribeRFQ   = "subscribe_rfq"
	MsgUnsubscribeRFQ = "unsubscribe_rfq"
	MsgPing           = "ping"
)

// Server → client message types
const (
	MsgConnected     = "connected"
	MsgAuthenticated = "authenticated"
	MsgSubscribed    = "subscribed"
	MsgUnsubscribed  = "unsubscribed"
	MsgPong          = "pong"
	MsgNotification  = "notification"
	MsgError         = "error"
)

// Inbound is a message sent by a client
type Inbound struct {
	Type  string `json:"type"`
	Token string `json:"token,omitempty"`
	RFQID uint   `json:"rfq_id,omitempty"`
}

// Outbound is a message sent to a client
type Outbound struct {
	Type         string               `json:"type"`
	ConnectionID string               `json:"connection_id,omitempty"`
	UserID       uint                 `json:"user_id,omitempty"`
	RFQID        uint                 `json:"rfq_id,omitempty"`
	Message      string               `json:"message,omitempty"`
	Timestamp    int64                `json:"timestamp,omitempty"`
	Notification *domain.Notification `json:"notification,omitempty"`
}
