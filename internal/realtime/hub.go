// Package realtime is the WebSocket notification relay. Clients authenticate with their API
// token, subscribe to RFQ topics and receive notifications as they are dispatched. Delivery
// is at most once: nothing is acknowledged, retried or persisted, and a full client buffer
// drops the client.
package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"bell24h/internal/notify"
	"bell24h/internal/utils"
)

// Authenticator resolves a client token to a user id
type Authenticator func(token string) (uint, error)

// JWTAuthenticator validates API tokens signed with secret
func JWTAuthenticator(secret string) Authenticator {
	return func(token string) (uint, error) {
		claims, err := utils.ParseJWT(token, secret)
		if err != nil {
			return 0, err
		}
		return claims.UserID, nil
	}
}

// Options tune the relay
type Options struct {
	AuthTimeout    time.Duration // Unauthenticated sockets are closed after this
	PendingLimit   int           // Offline notifications kept in memory, oldest dropped first
	SendBuffer     int           // Frames buffered per connection
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
}

func (o Options) withDefaults() Options {
	if o.AuthTimeout <= 0 {
		o.AuthTimeout = 30 * time.Second
	}
	if o.PendingLimit <= 0 {
		o.PendingLimit = 1000
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.PongWait {
		o.PingInterval = o.PongWait * 9 / 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 4096
	}
	return o
}

// Stats is a point-in-time view of the hub
type Stats struct {
	Connections   int `json:"connections"`
	Authenticated int `json:"authenticated"`
	Users         int `json:"users"`
	RFQTopics     int `json:"rfq_topics"`
	Pending       int `json:"pending"`
}

// Hub tracks connections, their users and topic subscriptions
type Hub struct {
	auth     Authenticator
	opts     Options
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	conns   map[*Conn]struct{}
	users   map[uint]map[*Conn]struct{}
	topics  map[string]map[*Conn]struct{}
	pending []notify.Envelope
}

// NewHub creates a relay hub
func NewHub(auth Authenticator, opts Options) *Hub {
	return &Hub{
		auth: auth,
		opts: opts.withDefaults(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Sockets authenticate with a token message; origin is not checked.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns:  make(map[*Conn]struct{}),
		users:  make(map[uint]map[*Conn]struct{}),
		topics: make(map[string]map[*Conn]struct{}),
	}
}

// ServeWS upgrades the request and serves the socket until it closes
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Warn("WebSocket upgrade failed") // Upgrade already wrote the HTTP error
		return
	}
	c := &Conn{
		id:     uuid.NewString(),
		hub:    h,
		ws:     ws,
		send:   make(chan []byte, h.opts.SendBuffer),
		done:   make(chan struct{}),
		topics: make(map[string]struct{}),
	}
	c.state.Store(int32(StateConnecting))
	h.register(c)
	c.log().WithField("remote_addr", r.RemoteAddr).Info("Socket connected")
	c.sendJSON(Outbound{Type: MsgConnected, ConnectionID: c.id})
	go c.writePump()
	c.readPump()
}

func (h *Hub) register(c *Conn) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	c.state.Store(int32(StateOpen))
	c.authTimer = time.AfterFunc(h.opts.AuthTimeout, func() { h.expireAuth(c) })
	h.mu.Unlock()
}

// expireAuth closes c if it never authenticated. It and bindUser both swap out of
// StateOpen, so only one of them takes effect.
func (h *Hub) expireAuth(c *Conn) {
	if !c.state.CompareAndSwap(int32(StateOpen), int32(StateClosed)) {
		return
	}
	c.log().Info("Socket authentication timed out")
	c.sendError("authentication timeout")
	c.closeAfterFlush()
}

func (h *Hub) unregister(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.authTimer != nil {
		c.authTimer.Stop()
	}
	c.state.Store(int32(StateClosed))
	delete(h.conns, c)
	if c.userID != 0 {
		if set := h.users[c.userID]; set != nil {
			delete(set, c)
			if len(set) == 0 {
				delete(h.users, c.userID)
			}
		}
	}
	for topic := range c.topics {
		h.removeFromTopic(c, topic)
	}
}

func (h *Hub) removeFromTopic(c *Conn, topic string) {
	delete(c.topics, topic)
	if set := h.topics[topic]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(h.topics, topic)
		}
	}
}

// bindUser marks c authenticated for userID and hands back the user's queued notifications.
// At most SendBuffer-2 of the newest are returned so the flush fits the connection buffer.
// It reports false when the connection timed out or closed first.
func (h *Hub) bindUser(c *Conn, userID uint) ([]notify.Envelope, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !c.state.CompareAndSwap(int32(StateOpen), int32(StateAuthenticated)) {
		return nil, false
	}
	c.authTimer.Stop()
	c.userID = userID
	set := h.users[userID]
	if set == nil {
		set = make(map[*Conn]struct{})
		h.users[userID] = set
	}
	set[c] = struct{}{}

	var mine []notify.Envelope
	kept := h.pending[:0]
	for _, env := range h.pending {
		if env.UserID == userID {
			mine = append(mine, env)
			continue
		}
		kept = append(kept, env)
	}
	for i := len(kept); i < len(h.pending); i++ {
		h.pending[i] = notify.Envelope{}
	}
	h.pending = kept
	if limit := h.opts.SendBuffer - 2; len(mine) > limit {
		mine = mine[len(mine)-limit:]
	}
	return mine, true
}

func (h *Hub) subscribe(c *Conn, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.State() == StateClosed {
		return
	}
	set := h.topics[topic]
	if set == nil {
		set = make(map[*Conn]struct{})
		h.topics[topic] = set
	}
	set[c] = struct{}{}
	c.topics[topic] = struct{}{}
}

func (h *Hub) unsubscribe(c *Conn, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeFromTopic(c, topic)
}

// Dispatch routes an envelope to the user's connections and the topic's subscribers, each
// connection receiving it at most once. A user with no live connection gets it queued.
// It returns the number of connections the notification was handed to.
func (h *Hub) Dispatch(env notify.Envelope) int {
	frame, err := json.Marshal(Outbound{Type: MsgNotification, Notification: &env.Notification})
	if err != nil {
		logrus.WithError(err).Error("Failed to encode notification")
		return 0
	}

	h.mu.Lock()
	targets := make(map[*Conn]struct{})
	if env.UserID != 0 {
		for c := range h.users[env.UserID] {
			targets[c] = struct{}{}
		}
		if len(h.users[env.UserID]) == 0 {
			h.queue(env)
		}
	}
	if env.Topic != "" {
		for c := range h.topics[env.Topic] {
			targets[c] = struct{}{}
		}
	}
	h.mu.Unlock()

	delivered := 0
	for c := range targets {
		if c.enqueue(frame) {
			delivered++
		}
	}
	logrus.WithFields(logrus.Fields{
		"user_id":   env.UserID,
		"topic":     env.Topic,
		"delivered": delivered,
	}).Debug("Notification dispatched")
	return delivered
}

// queue appends to the pending buffer, dropping the oldest entries past the limit. Caller holds mu.
func (h *Hub) queue(env notify.Envelope) {
	h.pending = append(h.pending, env)
	if over := len(h.pending) - h.opts.PendingLimit; over > 0 {
		trimmed := make([]notify.Envelope, h.opts.PendingLimit)
		copy(trimmed, h.pending[over:])
		h.pending = trimmed
	}
}

// Stats reports connection and queue counts
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s := Stats{
		Connections: len(h.conns),
		Users:       len(h.users),
		RFQTopics:   len(h.topics),
		Pending:     len(h.pending),
	}
	for c := range h.conns {
		if c.State() == StateAuthenticated {
			s.Authenticated++
		}
	}
	return s
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	for _, c := range conns {
		c.shutdown()
	}
}
