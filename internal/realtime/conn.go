package realtime

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"bell24h/internal/notify"
)

// State is the lifecycle stage of a relay connection
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateAuthenticated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Conn is one client socket. userID and topics are guarded by the hub lock.
type Conn struct {
	id        string
	hub       *Hub
	ws        *websocket.Conn
	send      chan []byte // nil frame asks the writer to close the socket
	done      chan struct{}
	state     atomic.Int32
	closeOnce sync.Once
	authTimer *time.Timer // Guarded by the hub lock

	userID uint
	topics map[string]struct{}
}

// ID returns the connection id
func (c *Conn) ID() string { return c.id }

// State returns the current lifecycle stage
func (c *Conn) State() State { return State(c.state.Load()) }

func (c *Conn) log() *logrus.Entry {
	return logrus.WithFields(logrus.Fields{"connection_id": c.id, "state": c.State().String()})
}

// enqueue hands a frame to the writer. A full buffer drops the connection.
func (c *Conn) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		c.log().Warn("Send buffer full, dropping connection")
		c.shutdown()
		return false
	}
}

func (c *Conn) sendJSON(msg Outbound) bool {
	b, err := json.Marshal(msg)
	if err != nil {
		c.log().WithError(err).Error("Failed to encode outbound message")
		return false
	}
	return c.enqueue(b)
}

func (c *Conn) sendError(message string) {
	c.sendJSON(Outbound{Type: MsgError, Message: message})
}

// closeAfterFlush lets the writer drain queued frames, then closes the socket
func (c *Conn) closeAfterFlush() {
	c.enqueue(nil)
}

// shutdown tears the connection down exactly once
func (c *Conn) shutdown() {
	c.closeOnce.Do(func() {
		c.hub.unregister(c)
		close(c.done)
		_ = c.ws.Close()
		c.log().Debug("Connection closed")
	})
}

func (c *Conn) readPump() {
	defer c.shutdown()
	opts := c.hub.opts
	c.ws.SetReadLimit(opts.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(opts.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(opts.PongWait))
	})
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log().WithError(err).Debug("Unexpected socket close")
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(opts.PongWait))
		c.handle(data)
	}
}

func (c *Conn) writePump() {
	opts := c.hub.opts
	ticker := time.NewTicker(opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.shutdown()
	}()
	for {
		select {
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if frame == nil {
				_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, ""))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Conn) handle(data []byte) {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		c.sendError("invalid message format")
		return
	}
	switch in.Type {
	case MsgPing:
		c.sendJSON(Outbound{Type: MsgPong, Timestamp: time.Now().UnixMilli()})
	case MsgAuthenticate:
		c.authenticate(in.Token)
	case MsgSubscribeRFQ, MsgUnsubscribeRFQ:
		if c.State() != StateAuthenticated {
			c.sendError("authentication required")
			return
		}
		if in.RFQID == 0 {
			c.sendError("rfq_id is required")
			return
		}
		topic := notify.RFQTopic(in.RFQID)
		if in.Type == MsgSubscribeRFQ {
			c.hub.subscribe(c, topic)
			c.sendJSON(Outbound{Type: MsgSubscribed, RFQID: in.RFQID})
		} else {
			c.hub.unsubscribe(c, topic)
			c.sendJSON(Outbound{Type: MsgUnsubscribed, RFQID: in.RFQID})
		}
	default:
		c.sendError("unknown message type: " + in.Type)
	}
}

func (c *Conn) authenticate(token string) {
	if c.State() == StateAuthenticated {
		c.sendError("already authenticated")
		return
	}
	userID, err := c.hub.auth(token)
	if err != nil || userID == 0 {
		c.log().WithError(err).Info("Socket authentication failed")
		c.sendError("authentication failed")
		c.closeAfterFlush()
		return
	}
	pending, ok := c.hub.bindUser(c, userID)
	if !ok {
		return // The auth timeout won
	}
	c.sendJSON(Outbound{Type: MsgAuthenticated, UserID: userID})
	for i := range pending {
		c.sendJSON(Outbound{Type: MsgNotification, Notification: &pending[i].Notification})
	}
	c.log().WithFields(logrus.Fields{"user_id": userID, "pending": len(pending)}).Info("Socket authenticated")
}
