package hub

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/thebtf/threadwatch/pkg/models"
)

func TestEncodeFrame(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		want  map[string]any
	}{
		{
			name:  "file change",
			event: FileChange{ProjectID: "p1"},
			want:  map[string]any{"type": "file_change", "project_id": "p1"},
		},
		{
			name:  "notification read",
			event: NotificationRead{ID: "n-1"},
			want:  map[string]any{"type": "notification_read", "id": "n-1"},
		},
		{
			name:  "stats update",
			event: StatsUpdate{UnreadCount: 3, ByProject: map[string]int{"p1": 3}},
			want: map[string]any{
				"type":         "stats_update",
				"unread_count": float64(3),
				"by_project":   map[string]any{"p1": float64(3)},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := EncodeFrame(tt.event)
			require.NoError(t, err)

			var got map[string]any
			require.NoError(t, json.Unmarshal(frame, &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeFrameNewNotification(t *testing.T) {
	ev := NewNotification{Notification: models.Notification{
		ID:        "01ARZ3NDEKTSV4RRFFQ69G5FAV",
		Type:      models.NotificationTypeToolUse,
		ProjectID: "p1",
		ToolName:  "Bash",
		Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}}

	frame, err := EncodeFrame(ev)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(frame, &got))
	assert.Equal(t, "new_notification", got["type"])

	notif, ok := got["notification"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "tool_use", notif["type"])
	assert.Equal(t, "Bash", notif["tool_name"])
}

// HubSuite exercises fan-out over real WebSocket connections.
type HubSuite struct {
	suite.Suite
	hub    *Hub
	server *httptest.Server
}

func (s *HubSuite) SetupTest() {
	s.hub = New()
	s.server = httptest.NewServer(http.HandlerFunc(s.hub.HandleWS))
}

func (s *HubSuite) TearDownTest() {
	s.hub.Close()
	s.server.Close()
}

func TestHubSuite(t *testing.T) {
	suite.Run(t, new(HubSuite))
}

// dial opens a subscriber connection to the test server.
func (s *HubSuite) dial() *websocket.Conn {
	url := "ws" + strings.TrimPrefix(s.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	s.Require().NoError(err)
	return conn
}

// waitForClients blocks until the hub sees the expected connection count.
func (s *HubSuite) waitForClients(n int) {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.hub.ClientCount() == n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	s.Require().Equal(n, s.hub.ClientCount())
}

// readFrame reads one frame with a deadline.
func (s *HubSuite) readFrame(conn *websocket.Conn) map[string]any {
	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	_, data, err := conn.ReadMessage()
	s.Require().NoError(err)

	var frame map[string]any
	s.Require().NoError(json.Unmarshal(data, &frame))
	return frame
}

// TestBroadcastReachesAllClients tests basic fan-out.
func (s *HubSuite) TestBroadcastReachesAllClients() {
	c1 := s.dial()
	defer c1.Close()
	c2 := s.dial()
	defer c2.Close()
	s.waitForClients(2)

	s.hub.Broadcast(FileChange{ProjectID: "demo"})

	for _, conn := range []*websocket.Conn{c1, c2} {
		frame := s.readFrame(conn)
		s.Equal("file_change", frame["type"])
		s.Equal("demo", frame["project_id"])
	}
}

// TestBroadcastPreservesOrder tests that frames of the same kind arrive in
// emission order on a single connection.
func (s *HubSuite) TestBroadcastPreservesOrder() {
	conn := s.dial()
	defer conn.Close()
	s.waitForClients(1)

	for i := 0; i < 10; i++ {
		s.hub.Broadcast(NotificationRead{ID: string(rune('a' + i))})
	}

	for i := 0; i < 10; i++ {
		frame := s.readFrame(conn)
		s.Equal("notification_read", frame["type"])
		s.Equal(string(rune('a'+i)), frame["id"])
	}
}

// TestDisconnectedClientRemoved tests that a closed client leaves the set
// and broadcasts keep flowing to the rest.
func (s *HubSuite) TestDisconnectedClientRemoved() {
	c1 := s.dial()
	c2 := s.dial()
	defer c2.Close()
	s.waitForClients(2)

	s.Require().NoError(c1.Close())
	s.waitForClients(1)

	s.hub.Broadcast(FileChange{ProjectID: "demo"})
	frame := s.readFrame(c2)
	s.Equal("file_change", frame["type"])
}

// TestBroadcastWithNoClients tests that broadcasting into an empty hub is a
// no-op rather than a panic.
func (s *HubSuite) TestBroadcastWithNoClients() {
	s.hub.Broadcast(StatsUpdate{UnreadCount: 0, ByProject: map[string]int{}})
	s.Equal(0, s.hub.ClientCount())
}

// TestConcurrentBroadcastAndDisconnect tests registry safety when clients
// drop mid-broadcast.
func (s *HubSuite) TestConcurrentBroadcastAndDisconnect() {
	conns := make([]*websocket.Conn, 5)
	for i := range conns {
		conns[i] = s.dial()
	}
	s.waitForClients(5)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			s.hub.Broadcast(FileChange{ProjectID: "demo"})
		}
	}()

	for _, c := range conns {
		c.Close()
	}
	<-done

	s.waitForClients(0)
}
