package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/framecraft/engagement/config"
	"github.com/framecraft/engagement/game/progression"
	mw "github.com/framecraft/engagement/middleware"
	"github.com/framecraft/engagement/plugin/hook"
	"github.com/framecraft/engagement/testutil"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const secret = "ws-test-secret"

func newServer(t *testing.T, origins []string) (string, *hook.HookCenter) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, ps := testutil.SetupTestCache(t)
	hc := hook.NewHookCenter()
	n := progression.NewNotifier(c, ps)
	n.Register(hc)

	h := NewHandler(ps, n, origins, zap.NewNop())
	r := gin.New()
	r.GET("/ws", mw.Auth(config.SecurityConfig{JWTSecret: secret}, c), h.Serve)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws", hc
}

func dial(t *testing.T, url, userID string, header http.Header) *websocket.Conn {
	t.Helper()
	tok, err := mw.GenerateToken("studio-1", userID, secret, "", time.Hour)
	require.NoError(t, err)
	conn, resp, err := websocket.DefaultDialer.Dial(url+"?token="+tok, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readPacket(t *testing.T, conn *websocket.Conn) Packet {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var pkt Packet
	require.NoError(t, json.Unmarshal(raw, &pkt))
	return pkt
}

func TestServe_ForwardsOwnCelebrations(t *testing.T) {
	url, hc := newServer(t, nil)
	conn := dial(t, url, "alice", nil)

	pkt := readPacket(t, conn)
	require.Equal(t, TypeConnected, pkt.Type)
	assert.Contains(t, string(pkt.Payload), "alice")

	ctx := context.Background()
	require.NoError(t, hc.Trigger(ctx, &hook.Event{Name: hook.OnLevelUp, OrgID: "studio-1", UserID: "bob"}))
	require.NoError(t, hc.Trigger(ctx, &hook.Event{
		Name: hook.OnMilestoneReached, OrgID: "studio-1", UserID: "alice",
		Data: map[string]interface{}{"milestone": "first_gallery"},
	}))

	pkt = readPacket(t, conn)
	require.Equal(t, TypeCelebration, pkt.Type)
	var ev hook.Event
	require.NoError(t, json.Unmarshal(pkt.Payload, &ev))
	assert.Equal(t, hook.OnMilestoneReached, ev.Name)
	assert.Equal(t, "alice", ev.UserID)
	assert.Equal(t, "first_gallery", ev.Data["milestone"])
}

func TestServe_PingAndRecent(t *testing.T) {
	url, hc := newServer(t, nil)
	conn := dial(t, url, "alice", nil)
	require.Equal(t, TypeConnected, readPacket(t, conn).Type)

	require.NoError(t, conn.WriteJSON(Packet{Seq: 1, Type: TypePing, Payload: json.RawMessage(`{"client_ts":42}`)}))
	pkt := readPacket(t, conn)
	require.Equal(t, TypePong, pkt.Type)
	var pong map[string]int64
	require.NoError(t, json.Unmarshal(pkt.Payload, &pong))
	assert.Equal(t, int64(42), pong["client_ts"])
	assert.Positive(t, pong["server_ts"])

	require.NoError(t, hc.Trigger(context.Background(), &hook.Event{Name: hook.OnLevelUp, OrgID: "studio-1", UserID: "alice"}))
	require.Equal(t, TypeCelebration, readPacket(t, conn).Type)

	require.NoError(t, conn.WriteJSON(Packet{Seq: 2, Type: TypeRecent}))
	pkt = readPacket(t, conn)
	require.Equal(t, TypeRecent, pkt.Type)
	var recent []hook.Event
	require.NoError(t, json.Unmarshal(pkt.Payload, &recent))
	require.Len(t, recent, 1)
	assert.Equal(t, hook.OnLevelUp, recent[0].Name)
}

func TestServe_UnknownTypeAndReplay(t *testing.T) {
	url, _ := newServer(t, nil)
	conn := dial(t, url, "alice", nil)
	require.Equal(t, TypeConnected, readPacket(t, conn).Type)

	require.NoError(t, conn.WriteJSON(Packet{Seq: 5, Type: "teleport"}))
	pkt := readPacket(t, conn)
	require.Equal(t, TypeError, pkt.Type)
	assert.Contains(t, string(pkt.Payload), "unknown_type")

	// seq 5 again is stale and silently dropped; the next reply is for seq 6
	require.NoError(t, conn.WriteJSON(Packet{Seq: 5, Type: TypePing, Payload: json.RawMessage(`{"client_ts":1}`)}))
	require.NoError(t, conn.WriteJSON(Packet{Seq: 6, Type: TypePing, Payload: json.RawMessage(`{"client_ts":2}`)}))
	pkt = readPacket(t, conn)
	require.Equal(t, TypePong, pkt.Type)
	assert.Contains(t, string(pkt.Payload), `"client_ts":2`)
}

func TestServe_RejectsBadOriginAndMissingToken(t *testing.T) {
	url, _ := newServer(t, []string{"https://app.example.com"})

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	tok, _ := mw.GenerateToken("studio-1", "alice", secret, "", time.Hour)
	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err = websocket.DefaultDialer.Dial(url+"?token="+tok, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
