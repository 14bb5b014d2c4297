package http

import (
	"context"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wirechat-irc/internal/config"
	"github.com/vovakirdan/wirechat-irc/internal/core"
	"github.com/vovakirdan/wirechat-irc/internal/store"
	"github.com/vovakirdan/wirechat-irc/internal/store/sqlite"
)

func startTestServer(t *testing.T, st store.Store) (*httptest.Server, *core.Hub) {
	t.Helper()

	logger := zerolog.Nop()
	hub := core.NewHub(core.HubOptions{ServerName: "irc.test"}, st, &logger)

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.ReadHeaderTimeout = time.Second

	server := NewServer(hub, st, &cfg, &logger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)
	return ts, hub
}

func joinAs(t *testing.T, hub *core.Hub, id, nick, channel string) *core.Client {
	t.Helper()

	c := core.NewClient(id, "127.0.0.1", 64)
	ctx := context.Background()
	hub.HandleLine(ctx, c, "NICK "+nick)
	hub.HandleLine(ctx, c, "USER "+nick+" 0 * :"+nick)
	hub.HandleLine(ctx, c, "JOIN "+channel)
	return c
}

func TestHealthEndpoint(t *testing.T) {
	ts, _ := startTestServer(t, nil)

	resp, err := ts.Client().Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, stdhttp.StatusOK, resp.StatusCode)
}

func TestListAndGetChannel(t *testing.T) {
	ts, hub := startTestServer(t, nil)
	joinAs(t, hub, "a", "alice", "#general")
	joinAs(t, hub, "b", "bob", "#general")

	resp, err := ts.Client().Get(ts.URL + "/api/channels")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, stdhttp.StatusOK, resp.StatusCode)

	var list []ChannelSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, "#general", list[0].Name)
	assert.Equal(t, 2, list[0].Members)

	resp2, err := ts.Client().Get(ts.URL + "/api/channels/general")
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, stdhttp.StatusOK, resp2.StatusCode)

	var detail ChannelResponse
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&detail))
	assert.Equal(t, []string{"alice", "bob"}, detail.Members)
	assert.Equal(t, []string{"alice"}, detail.Operators)
	assert.Equal(t, []string{}, detail.Invitees)
}

func TestGetUnknownChannel(t *testing.T) {
	ts, _ := startTestServer(t, nil)

	resp, err := ts.Client().Get(ts.URL + "/api/channels/ghost")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, stdhttp.StatusNotFound, resp.StatusCode)
}

func TestListMessages(t *testing.T) {
	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ts, hub := startTestServer(t, st)
	alice := joinAs(t, hub, "a", "alice", "#general")
	joinAs(t, hub, "b", "bob", "#general")
	hub.HandleLine(context.Background(), alice, "PRIVMSG #general :logged line")

	resp, err := ts.Client().Get(ts.URL + "/api/channels/general/messages?limit=10")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, stdhttp.StatusOK, resp.StatusCode)

	var msgs []MessageResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, "alice", msgs[0].Sender)
	assert.Equal(t, "logged line", msgs[0].Body)
}

func TestListMessagesDisabled(t *testing.T) {
	ts, _ := startTestServer(t, nil)

	resp, err := ts.Client().Get(ts.URL + "/api/channels/general/messages")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, stdhttp.StatusServiceUnavailable, resp.StatusCode)
}

func TestWebSocketConversation(t *testing.T) {
	ts, hub := startTestServer(t, nil)
	bob := joinAs(t, hub, "b", "bob", "#general")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := strings.Replace(ts.URL, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	for _, line := range []string{"NICK alice", "USER alice 0 * :Alice", "JOIN #general"} {
		require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(line)))
	}
	readUntil(t, ctx, conn, " 366 ")

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("PRIVMSG #general :hi from ws")))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case line := <-bob.Outbox():
			if strings.Contains(line, "PRIVMSG") {
				assert.Equal(t, ":alice PRIVMSG #general :hi from ws\r\n", line)
				return
			}
		case <-deadline:
			t.Fatal("bob did not receive the message")
		}
	}
}

func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, fragment string) string {
	t.Helper()
	for {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		if line := string(data); strings.Contains(line, fragment) {
			return line
		}
	}
}

func TestWebSocketQuitFlushesError(t *testing.T) {
	ts, hub := startTestServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := strings.Replace(ts.URL, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{Subprotocols: []string{"text.ircv3.net"}})
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "bye")
	assert.Equal(t, "text.ircv3.net", conn.Subprotocol())

	for _, line := range []string{"NICK carol", "USER carol 0 * :Carol"} {
		require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(line)))
	}
	readUntil(t, ctx, conn, " 001 ")
	require.Equal(t, 1, hub.ClientCount())

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("QUIT :done")))
	line := readUntil(t, ctx, conn, "ERROR")
	assert.Contains(t, line, "done")
	assert.Equal(t, 0, hub.ClientCount())
}
