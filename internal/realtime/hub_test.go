package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, hub *Hub, email string, streams ...string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(email, streams, w, r)
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func subscribed(hub *Hub, stream string, want int) func() bool {
	return func() bool { return hub.Subscribers(stream) == want }
}

func TestBroadcastToUserTargetsOnlyThatEmployee(t *testing.T) {
	hub := NewHub()
	conn := dial(t, hub, "Eve@Company.com", StreamNotifications)
	require.Eventually(t, subscribed(hub, StreamNotifications, 1), time.Second, 10*time.Millisecond)

	hub.BroadcastToUser(StreamNotifications, "mallory@company.com", Message{Event: "ignored"})
	hub.BroadcastToUser(StreamNotifications, "eve@company.com", Message{Event: "notification.created", Data: map[string]string{"title": "hi"}})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Message
	require.NoError(t, conn.ReadJSON(&got))
	require.Equal(t, StreamNotifications, got.Stream)
	require.Equal(t, "notification.created", got.Event)
}

func TestControlFramesChangeSubscriptions(t *testing.T) {
	hub := NewHub()
	conn := dial(t, hub, "mallory@company.com", StreamNotifications)
	require.Eventually(t, subscribed(hub, StreamNotifications, 1), time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(control{Op: "subscribe", Streams: []string{StreamApprovals, "payroll"}}))
	require.Eventually(t, subscribed(hub, StreamApprovals, 1), time.Second, 10*time.Millisecond)
	require.Zero(t, hub.Subscribers("payroll"))

	hub.BroadcastToUsers(StreamApprovals, []string{"MALLORY@company.com", "bob@company.com"}, Message{Event: "approval.requested"})
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Message
	require.NoError(t, conn.ReadJSON(&got))
	require.Equal(t, StreamApprovals, got.Stream)
	require.Equal(t, "approval.requested", got.Event)

	require.NoError(t, conn.WriteJSON(control{Op: "ping"}))
	require.NoError(t, conn.ReadJSON(&got))
	require.Equal(t, "pong", got.Event)

	require.NoError(t, conn.WriteJSON(control{Op: "unsubscribe", Streams: []string{StreamApprovals}}))
	require.Eventually(t, subscribed(hub, StreamApprovals, 0), time.Second, 10*time.Millisecond)
}

func TestBroadcastStreamReachesEverySubscriber(t *testing.T) {
	hub := NewHub()
	first := dial(t, hub, "eve@company.com", StreamAccess)
	second := dial(t, hub, "alice@company.com", StreamAccess)
	require.Eventually(t, subscribed(hub, StreamAccess, 2), time.Second, 10*time.Millisecond)

	hub.BroadcastStream(StreamAccess, Message{Event: "policy.reloaded"})
	for _, conn := range []*websocket.Conn{first, second} {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var got Message
		require.NoError(t, conn.ReadJSON(&got))
		require.Equal(t, "policy.reloaded", got.Event)
	}
}

func TestDisconnectUnregisters(t *testing.T) {
	hub := NewHub()
	conn := dial(t, hub, "eve@company.com", StreamNotifications, StreamApprovals)
	require.Eventually(t, subscribed(hub, StreamApprovals, 1), time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, subscribed(hub, StreamNotifications, 0), 2*time.Second, 10*time.Millisecond)
	require.Zero(t, hub.Subscribers(StreamApprovals))
}

func TestAccepts(t *testing.T) {
	hub := NewHub()
	require.True(t, hub.Accepts(" Approvals "))
	require.False(t, hub.Accepts("payroll"))
}

func TestCheckOrigin(t *testing.T) {
	request := func(host, origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "http://"+host+"/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	hub := NewHub("https://portal.company.com/")
	require.True(t, hub.checkOrigin(request("access.company.com", "")))
	require.True(t, hub.checkOrigin(request("access.company.com:8000", "https://access.company.com")))
	require.True(t, hub.checkOrigin(request("access.company.com", "https://portal.company.com")))
	require.True(t, hub.checkOrigin(request("access.company.com", "http://localhost:5173")))
	require.False(t, hub.checkOrigin(request("access.company.com", "https://evil.example.com")))

	require.True(t, NewHub("*").checkOrigin(request("access.company.com", "https://evil.example.com")))
}
