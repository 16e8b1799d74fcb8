package sse

import (
	"bufio"
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
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const secret = "sse-test-secret"

func newServer(t *testing.T, origins []string) (*httptest.Server, *progression.Notifier, *hook.HookCenter) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, ps := testutil.SetupTestCache(t)
	h := NewHandler(ps, origins, zap.NewNop()).WithKeepalive(50 * time.Millisecond)

	r := gin.New()
	r.GET("/events", mw.Auth(config.SecurityConfig{JWTSecret: secret}, c), h.Serve)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	hc := hook.NewHookCenter()
	n := progression.NewNotifier(c, ps)
	n.Register(hc)
	return srv, n, hc
}

// readEvent returns the next named event, skipping comments.
func readEvent(t *testing.T, r *bufio.Reader) (name, data string) {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && name != "":
			return name, data
		}
	}
}

func TestServe_StreamsOwnCelebrations(t *testing.T) {
	srv, _, hc := newServer(t, nil)
	tok, err := mw.GenerateToken("studio-1", "alice", secret, "", time.Hour)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events?token="+tok, nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	br := bufio.NewReader(resp.Body)
	name, data := readEvent(t, br)
	assert.Equal(t, "connected", name)
	assert.Contains(t, data, "alice")

	// another user's event must not reach alice
	require.NoError(t, hc.Trigger(ctx, &hook.Event{Name: hook.OnLevelUp, OrgID: "studio-1", UserID: "bob"}))
	require.NoError(t, hc.Trigger(ctx, &hook.Event{Name: hook.OnXPAwarded, OrgID: "studio-1", UserID: "alice"}))
	require.NoError(t, hc.Trigger(ctx, &hook.Event{
		Name: hook.OnLevelUp, OrgID: "studio-1", UserID: "alice",
		Data: map[string]interface{}{"to": 2},
	}))

	name, data = readEvent(t, br)
	assert.Equal(t, hook.OnLevelUp, name)
	var ev hook.Event
	require.NoError(t, json.Unmarshal([]byte(data), &ev))
	assert.Equal(t, "alice", ev.UserID)
	assert.Equal(t, float64(2), ev.Data["to"])
}

func TestServe_RequiresToken(t *testing.T) {
	srv, _, _ := newServer(t, nil)
	resp, err := http.Get(srv.URL + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServe_OriginCheck(t *testing.T) {
	srv, _, _ := newServer(t, []string{"https://app.example.com"})
	tok, _ := mw.GenerateToken("studio-1", "alice", secret, "", time.Hour)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/events?token="+tok, nil)
	req.Header.Set("Origin", "https://evil.example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
