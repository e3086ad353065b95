package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-ticketvote/internal/events"
	"go-ticketvote/internal/models"
	"go-ticketvote/internal/screens"
)

// echoScreen renders every command it receives
type echoScreen struct {
	out    screens.Renderer
	closed chan struct{}
}

func (s *echoScreen) Handle(_ context.Context, cmd screens.Command) error {
	if cmd.Action == "fail" {
		return errors.New("nope")
	}
	s.out.Render(map[string]string{"echo": cmd.Action})
	return nil
}

func (s *echoScreen) Run(ctx context.Context) { <-ctx.Done() }

func (s *echoScreen) Close() { close(s.closed) }

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func startHub(t *testing.T, origins []string) (*Hub, *httptest.Server, chan struct{}) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(origins)
	go hub.Run(ctx)

	closed := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeScreen(w, r, TopicVoting, func(out screens.Renderer) Screen {
			return &echoScreen{out: out, closed: closed}
		})
	}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv, closed
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestServeScreen_CommandsAndErrors(t *testing.T) {
	hub, srv, closed := startHub(t, []string{"*"})
	conn := dial(t, srv)

	hello := read(t, conn)
	assert.Equal(t, "hello", hello.Type)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.WriteJSON(screens.Command{Action: "refresh"}))
	view := read(t, conn)
	assert.Equal(t, "view", view.Type)
	assert.JSONEq(t, `{"echo":"refresh"}`, string(view.Data))

	require.NoError(t, conn.WriteJSON(screens.Command{Action: "fail"}))
	failed := read(t, conn)
	assert.Equal(t, "error", failed.Type)
	assert.JSONEq(t, `{"action":"fail","error":"nope"}`, string(failed.Data))

	conn.Close()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("screen was not closed after the browser left")
	}
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestServeScreen_RejectsForeignOrigin(t *testing.T) {
	_, srv, _ := startHub(t, []string{"https://tickets.example.com"})

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestRelayTallies(t *testing.T) {
	hub, srv, _ := startHub(t, []string{"*"})
	conn := dial(t, srv)
	read(t, conn)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	votes := events.NewChannel[models.VoteOutcome]("votes", 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go RelayTallies(ctx, votes, hub)
	require.Eventually(t, func() bool { return votes.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	count := int64(21)
	votes.Publish(models.VoteOutcome{Reference: "R1", Status: models.OutcomeFailed, ContestantID: "c1"})
	votes.Publish(models.VoteOutcome{Reference: "R2", Status: models.OutcomeSuccess, ContestantID: "c2", NewVoteCount: &count})

	tally := read(t, conn)
	assert.Equal(t, "tally", tally.Type)
	assert.JSONEq(t, `{"contestantId":"c2","votes":21}`, string(tally.Data))
}
