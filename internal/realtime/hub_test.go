package realtime

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bell24h/internal/domain"
	"bell24h/internal/notify"
	"bell24h/internal/utils"
)

const testSecret = "relay-secret"

func startRelay(t *testing.T, opts Options) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(JWTAuthenticator(testSecret), opts)
	srv := httptest.NewServer(NewRouter(hub))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	msg := read(t, ws)
	require.Equal(t, MsgConnected, msg.Type)
	require.NotEmpty(t, msg.ConnectionID)
	return ws
}

func read(t *testing.T, ws *websocket.Conn) Outbound {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	var out Outbound
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func send(t *testing.T, ws *websocket.Conn, msg any) {
	t.Helper()
	require.NoError(t, ws.WriteJSON(msg))
}

func token(t *testing.T, userID uint) string {
	t.Helper()
	tok, err := utils.GenerateJWT(userID, domain.RoleBuyer, testSecret, time.Hour)
	require.NoError(t, err)
	return tok
}

func authenticate(t *testing.T, ws *websocket.Conn, userID uint) {
	t.Helper()
	send(t, ws, Inbound{Type: MsgAuthenticate, Token: token(t, userID)})
	msg := read(t, ws)
	require.Equal(t, MsgAuthenticated, msg.Type)
	require.Equal(t, userID, msg.UserID)
}

func TestRelay_PingPong(t *testing.T) {
	_, srv := startRelay(t, Options{})
	ws := dial(t, srv)

	send(t, ws, Inbound{Type: MsgPing})
	msg := read(t, ws)
	assert.Equal(t, MsgPong, msg.Type)
	assert.NotZero(t, msg.Timestamp)
}

func TestRelay_MalformedAndUnknownMessagesKeepConnection(t *testing.T) {
	_, srv := startRelay(t, Options{})
	ws := dial(t, srv)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("{not json")))
	msg := read(t, ws)
	assert.Equal(t, MsgError, msg.Type)
	assert.Equal(t, "invalid message format", msg.Message)

	send(t, ws, Inbound{Type: "dance"})
	msg = read(t, ws)
	assert.Equal(t, MsgError, msg.Type)
	assert.Contains(t, msg.Message, "dance")

	send(t, ws, Inbound{Type: MsgPing})
	assert.Equal(t, MsgPong, read(t, ws).Type)
}

func TestRelay_AuthenticateAndReceiveUserNotification(t *testing.T) {
	hub, srv := startRelay(t, Options{})
	ws := dial(t, srv)
	authenticate(t, ws, 7)

	n := hub.Dispatch(notify.Envelope{UserID: 7, Notification: domain.Notification{ID: 1, UserID: 7, Title: "Payment received"}})
	assert.Equal(t, 1, n)

	msg := read(t, ws)
	assert.Equal(t, MsgNotification, msg.Type)
	require.NotNil(t, msg.Notification)
	assert.Equal(t, "Payment received", msg.Notification.Title)

	stats := hub.Stats()
	assert.Equal(t, 1, stats.Connections)
	assert.Equal(t, 1, stats.Authenticated)
	assert.Equal(t, 1, stats.Users)
}

func TestRelay_AuthenticationFailureClosesSocket(t *testing.T) {
	hub, srv := startRelay(t, Options{})
	ws := dial(t, srv)

	send(t, ws, Inbound{Type: MsgAuthenticate, Token: "garbage"})
	msg := read(t, ws)
	assert.Equal(t, MsgError, msg.Type)
	assert.Equal(t, "authentication failed", msg.Message)

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := ws.ReadMessage()
	require.Error(t, err)
	var closeErr *websocket.CloseError
	assert.True(t, errors.As(err, &closeErr), "expected a close frame, got %v", err)

	assert.Eventually(t, func() bool { return hub.Stats().Connections == 0 }, time.Second, 10*time.Millisecond)
}

func TestRelay_AuthTimeout(t *testing.T) {
	hub, srv := startRelay(t, Options{AuthTimeout: 100 * time.Millisecond})
	ws := dial(t, srv)

	msg := read(t, ws)
	assert.Equal(t, MsgError, msg.Type)
	assert.Equal(t, "authentication timeout", msg.Message)

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := ws.ReadMessage()
	assert.Error(t, err)
	assert.Eventually(t, func() bool { return hub.Stats().Connections == 0 }, time.Second, 10*time.Millisecond)
}

func TestRelay_AuthenticatedSocketOutlivesTimeout(t *testing.T) {
	_, srv := startRelay(t, Options{AuthTimeout: 100 * time.Millisecond})
	ws := dial(t, srv)
	authenticate(t, ws, 3)

	time.Sleep(200 * time.Millisecond)
	send(t, ws, Inbound{Type: MsgPing})
	assert.Equal(t, MsgPong, read(t, ws).Type)
}

func TestRelay_SubscribeRequiresAuthentication(t *testing.T) {
	_, srv := startRelay(t, Options{})
	ws := dial(t, srv)

	send(t, ws, Inbound{Type: MsgSubscribeRFQ, RFQID: 5})
	msg := read(t, ws)
	assert.Equal(t, MsgError, msg.Type)
	assert.Equal(t, "authentication required", msg.Message)
}

func TestRelay_TopicSubscription(t *testing.T) {
	hub, srv := startRelay(t, Options{})
	supplier := dial(t, srv)
	authenticate(t, supplier, 20)

	send(t, supplier, Inbound{Type: MsgSubscribeRFQ})
	assert.Equal(t, MsgError, read(t, supplier).Type, "rfq_id is required")

	send(t, supplier, Inbound{Type: MsgSubscribeRFQ, RFQID: 5})
	msg := read(t, supplier)
	assert.Equal(t, MsgSubscribed, msg.Type)
	assert.Equal(t, uint(5), msg.RFQID)
	assert.Equal(t, 1, hub.Stats().RFQTopics)

	hub.Dispatch(notify.Envelope{Topic: notify.RFQTopic(5), Notification: domain.Notification{Title: "RFQ updated"}})
	msg = read(t, supplier)
	assert.Equal(t, MsgNotification, msg.Type)
	assert.Equal(t, "RFQ updated", msg.Notification.Title)

	send(t, supplier, Inbound{Type: MsgUnsubscribeRFQ, RFQID: 5})
	assert.Equal(t, MsgUnsubscribed, read(t, supplier).Type)
	assert.Equal(t, 0, hub.Stats().RFQTopics)

	assert.Equal(t, 0, hub.Dispatch(notify.Envelope{Topic: notify.RFQTopic(5), Notification: domain.Notification{Title: "ignored"}}))
	assert.Equal(t, 0, hub.Stats().Pending, "topic-only envelopes are never queued")
}

func TestRelay_UserAndTopicDeliveredOnce(t *testing.T) {
	hub, srv := startRelay(t, Options{})
	buyer := dial(t, srv)
	authenticate(t, buyer, 1)
	send(t, buyer, Inbound{Type: MsgSubscribeRFQ, RFQID: 9})
	require.Equal(t, MsgSubscribed, read(t, buyer).Type)

	delivered := hub.Dispatch(notify.Envelope{UserID: 1, Topic: notify.RFQTopic(9), Notification: domain.Notification{Title: "New quote"}})
	assert.Equal(t, 1, delivered)
	assert.Equal(t, "New quote", read(t, buyer).Notification.Title)

	// The next frame must be the pong, not a duplicate notification.
	send(t, buyer, Inbound{Type: MsgPing})
	assert.Equal(t, MsgPong, read(t, buyer).Type)
}

func TestRelay_MultipleConnectionsPerUser(t *testing.T) {
	hub, srv := startRelay(t, Options{})
	laptop := dial(t, srv)
	phone := dial(t, srv)
	authenticate(t, laptop, 4)
	authenticate(t, phone, 4)

	assert.Equal(t, 2, hub.Dispatch(notify.Envelope{UserID: 4, Notification: domain.Notification{Title: "Hi"}}))
	assert.Equal(t, "Hi", read(t, laptop).Notification.Title)
	assert.Equal(t, "Hi", read(t, phone).Notification.Title)
	assert.Equal(t, 1, hub.Stats().Users)
}

func TestRelay_PendingFlushedOnAuthenticate(t *testing.T) {
	hub, srv := startRelay(t, Options{})
	assert.Equal(t, 0, hub.Dispatch(notify.Envelope{UserID: 11, Notification: domain.Notification{ID: 1, Title: "first"}}))
	assert.Equal(t, 0, hub.Dispatch(notify.Envelope{UserID: 12, Notification: domain.Notification{ID: 2, Title: "other user"}}))
	assert.Equal(t, 0, hub.Dispatch(notify.Envelope{UserID: 11, Notification: domain.Notification{ID: 3, Title: "second"}}))
	assert.Equal(t, 3, hub.Stats().Pending)

	ws := dial(t, srv)
	authenticate(t, ws, 11)
	assert.Equal(t, "first", read(t, ws).Notification.Title)
	assert.Equal(t, "second", read(t, ws).Notification.Title)
	assert.Equal(t, 1, hub.Stats().Pending)
}

func TestRelay_ClosedConnectionLeavesMaps(t *testing.T) {
	hub, srv := startRelay(t, Options{})
	ws := dial(t, srv)
	authenticate(t, ws, 2)
	send(t, ws, Inbound{Type: MsgSubscribeRFQ, RFQID: 1})
	require.Equal(t, MsgSubscribed, read(t, ws).Type)

	require.NoError(t, ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	assert.Eventually(t, func() bool {
		s := hub.Stats()
		return s.Connections == 0 && s.Users == 0 && s.RFQTopics == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRelay_FullSendBufferDropsClient(t *testing.T) {
	hub, srv := startRelay(t, Options{SendBuffer: 2})
	ws := dial(t, srv)
	authenticate(t, ws, 5)
	send(t, ws, Inbound{Type: MsgSubscribeRFQ, RFQID: 3})
	require.Equal(t, MsgSubscribed, read(t, ws).Type)

	// The client stops reading, so the socket backs up and then the buffer fills
	big := domain.Notification{UserID: 5, Message: strings.Repeat("x", 64<<10)}
	for i := 0; i < 500 && hub.Stats().Connections > 0; i++ {
		hub.Dispatch(notify.Envelope{UserID: 5, Notification: big})
	}
	assert.Eventually(t, func() bool {
		s := hub.Stats()
		return s.Connections == 0 && s.Users == 0 && s.RFQTopics == 0
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, hub.Dispatch(notify.Envelope{Topic: notify.RFQTopic(3), Notification: big}))
}

func TestHub_CloseDisconnectsEveryClient(t *testing.T) {
	hub, srv := startRelay(t, Options{})
	buyer := dial(t, srv)
	authenticate(t, buyer, 1)
	send(t, buyer, Inbound{Type: MsgSubscribeRFQ, RFQID: 2})
	require.Equal(t, MsgSubscribed, read(t, buyer).Type)
	anon := dial(t, srv)
	require.Equal(t, 2, hub.Stats().Connections)

	hub.Close()

	for _, ws := range []*websocket.Conn{buyer, anon} {
		require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, _, err := ws.ReadMessage()
		assert.Error(t, err)
	}
	assert.Equal(t, Stats{}, hub.Stats())
}

// newBareConn registers a connection with no socket behind it
func newBareConn(t *testing.T, hub *Hub) *Conn {
	t.Helper()
	c := &Conn{
		id:     "bare",
		hub:    hub,
		send:   make(chan []byte, 8),
		done:   make(chan struct{}),
		topics: make(map[string]struct{}),
	}
	hub.register(c)
	t.Cleanup(func() { hub.unregister(c) })
	return c
}

func TestHub_AuthTimeoutBeatsLateAuthenticate(t *testing.T) {
	hub := NewHub(JWTAuthenticator(testSecret), Options{})
	c := newBareConn(t, hub)

	hub.expireAuth(c)
	_, ok := hub.bindUser(c, 7)
	assert.False(t, ok)
	assert.Equal(t, StateClosed, c.State())
	assert.Equal(t, 0, hub.Stats().Users)
	require.Len(t, c.send, 2, "timeout error then the close marker")
}

func TestHub_AuthenticateBeatsTimeout(t *testing.T) {
	hub := NewHub(JWTAuthenticator(testSecret), Options{})
	c := newBareConn(t, hub)

	_, ok := hub.bindUser(c, 7)
	require.True(t, ok)
	hub.expireAuth(c)
	assert.Equal(t, StateAuthenticated, c.State())
	assert.Empty(t, c.send, "a late timeout must not close an authenticated socket")
	assert.Equal(t, 1, hub.Stats().Users)
}

func TestHub_AuthenticateAndTimeoutRace(t *testing.T) {
	hub := NewHub(JWTAuthenticator(testSecret), Options{})
	for i := 0; i < 200; i++ {
		c := newBareConn(t, hub)
		var (
			wg    sync.WaitGroup
			bound bool
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, bound = hub.bindUser(c, uint(i+1))
		}()
		go func() {
			defer wg.Done()
			hub.expireAuth(c)
		}()
		wg.Wait()

		expired := len(c.send) > 0
		require.NotEqual(t, bound, expired, "exactly one of authenticate and timeout wins")
	}
}

func TestRelay_Health(t *testing.T) {
	_, srv := startRelay(t, Options{})
	dial(t, srv)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 1, body["connections"])
	assert.EqualValues(t, 0, body["authenticated"])
}

func TestHub_PendingIsBounded(t *testing.T) {
	hub := NewHub(JWTAuthenticator(testSecret), Options{PendingLimit: 2})
	for i := uint(1); i <= 3; i++ {
		hub.Dispatch(notify.Envelope{UserID: 1, Notification: domain.Notification{ID: i}})
	}
	require.Len(t, hub.pending, 2)
	assert.Equal(t, uint(2), hub.pending[0].Notification.ID, "oldest entry is dropped first")
	assert.Equal(t, uint(3), hub.pending[1].Notification.ID)
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	assert.Equal(t, 30*time.Second, o.AuthTimeout)
	assert.Equal(t, 1000, o.PendingLimit)
	assert.Less(t, o.PingInterval, o.PongWait)
	assert.Equal(t, int64(4096), o.MaxMessageSize)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "authenticated", StateAuthenticated.String())
	assert.Equal(t, "unknown", State(42).String())
}
