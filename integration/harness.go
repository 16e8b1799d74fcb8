package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/framecraft/engagement/api/rest"
	"github.com/framecraft/engagement/api/sse"
	"github.com/framecraft/engagement/api/ws"
	"github.com/framecraft/engagement/audit"
	"github.com/framecraft/engagement/cache"
	"github.com/framecraft/engagement/config"
	"github.com/framecraft/engagement/game/progression"
	mw "github.com/framecraft/engagement/middleware"
	"github.com/framecraft/engagement/plugin/hook"
	"github.com/framecraft/engagement/scheduler"
	"github.com/framecraft/engagement/testutil"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

const (
	AdminKey   = "integration-admin-key"
	ServiceKey = "integration-service-key"
)

// TestServer wraps a real HTTP server with every subsystem wired as in
// the serve command.
type TestServer struct {
	DB        *gorm.DB
	Cache     cache.Cache
	PubSub    cache.PubSub
	Service   *progression.Service
	Scheduler *scheduler.Scheduler
	Server    *httptest.Server
	URL       string
	WSURL     string
	Sec       config.SecurityConfig
	Clock     *testutil.Clock
}

// NewTestServer creates a fully wired server. Its clock starts at start and
// only moves through Advance.
func NewTestServer(t *testing.T, start time.Time) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.SetupTestDB(t)
	c, pubsub := testutil.SetupTestCache(t)
	logger := zap.NewNop()

	sec := config.SecurityConfig{
		JWTSecret:      "integration-test-secret",
		RateLimitRPS:   1000,
		RateLimitBurst: 2000,
		ServiceKey:     ServiceKey,
	}
	ts := &TestServer{DB: db, Cache: c, PubSub: pubsub, Sec: sec, Clock: testutil.NewClock(start)}

	hooks := hook.NewHookCenter()
	notifier := progression.NewNotifier(c, pubsub)
	notifier.Register(hooks)
	opts := progression.DefaultOptions()
	opts.Clock = ts.Clock.Now
	svc := progression.NewService(db, c, hooks, opts, logger)

	auditSvc := audit.NewWithOptions(db, audit.Options{FlushInterval: 20 * time.Millisecond}, logger)
	sched := scheduler.New(logger)
	sched.AddTicker("quest_rearm", time.Hour, func(ctx context.Context) error {
		_, err := svc.RearmSweep(ctx)
		return err
	})

	r := gin.New()
	r.Use(mw.TraceID(), mw.Recovery(logger))
	r.Use(mw.NewLimiter(rate.Limit(sec.RateLimitRPS), sec.RateLimitBurst).Middleware(mw.ByClientIP))
	rest.Mount(r, rest.Deps{
		Service:   svc,
		Notifier:  notifier,
		Stream:    sse.NewHandler(pubsub, nil, logger),
		Socket:    ws.NewHandler(pubsub, notifier, nil, logger),
		Cache:     c,
		Scheduler: sched,
		Audit:     auditSvc,
		Security:  sec,
		AdminKey:  AdminKey,
		Logger:    logger,
	})

	server := httptest.NewServer(r)
	t.Cleanup(func() {
		server.Close()
		sched.Stop()
		auditSvc.Stop(context.Background())
	})

	ts.Service = svc
	ts.Scheduler = sched
	ts.Server = server
	ts.URL = server.URL
	ts.WSURL = "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/ws"
	return ts
}

// Token issues a bearer token for one studio member.
func (ts *TestServer) Token(t *testing.T, orgID, userID string) string {
	t.Helper()
	tok, err := mw.GenerateToken(orgID, userID, ts.Sec.JWTSecret, "", time.Hour)
	require.NoError(t, err)
	return tok
}

// --- HTTP helpers ---

// Envelope is the response wrapper every endpoint returns.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

// Decode unmarshals the data payload into target.
func (e Envelope) Decode(t *testing.T, target interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(e.Data, target), "data: %s", string(e.Data))
}

func (ts *TestServer) send(t *testing.T, method, path string, body interface{}, header, value string) (int, Envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	// requests stand in for the studio backend, which holds the service key
	req.Header.Set(mw.ServiceKeyHeader, ServiceKey)
	if value != "" {
		req.Header.Set(header, value)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var env Envelope
	require.NoError(t, json.Unmarshal(raw, &env), "body: %s", string(raw))
	return resp.StatusCode, env
}

// PostJSON sends a POST with an optional JSON body and bearer token.
func (ts *TestServer) PostJSON(t *testing.T, path string, body interface{}, token string) (int, Envelope) {
	t.Helper()
	return ts.send(t, http.MethodPost, path, body, "Authorization", bearer(token))
}

// Get sends a GET with an optional bearer token.
func (ts *TestServer) Get(t *testing.T, path, token string) (int, Envelope) {
	t.Helper()
	return ts.send(t, http.MethodGet, path, nil, "Authorization", bearer(token))
}

// Admin sends an operator request.
func (ts *TestServer) Admin(t *testing.T, method, path string) (int, Envelope) {
	t.Helper()
	return ts.send(t, method, path, nil, mw.AdminKeyHeader, AdminKey)
}

func bearer(token string) string {
	if token == "" {
		return ""
	}
	return "Bearer " + token
}

// --- WebSocket client ---

// WSClient reads celebration frames on a background goroutine.
type WSClient struct {
	Conn   *websocket.Conn
	t      *testing.T
	readCh chan readResult
}

type readResult struct {
	data []byte
	err  error
}

// ConnectWS dials the celebration socket with the given token.
func (ts *TestServer) ConnectWS(t *testing.T, token string) *WSClient {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(ts.WSURL+"?token="+token, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	require.NoError(t, err, "WS dial failed")
	wc := &WSClient{Conn: conn, t: t, readCh: make(chan readResult, 64)}
	go wc.readLoop()
	t.Cleanup(func() { conn.Close() })
	return wc
}

func (wc *WSClient) readLoop() {
	for {
		_, data, err := wc.Conn.ReadMessage()
		wc.readCh <- readResult{data, err}
		if err != nil {
			return
		}
	}
}

// Next returns the next frame, failing the test after timeout.
func (wc *WSClient) Next(timeout time.Duration) ws.Packet {
	wc.t.Helper()
	select {
	case r := <-wc.readCh:
		require.NoError(wc.t, r.err)
		var pkt ws.Packet
		require.NoError(wc.t, json.Unmarshal(r.data, &pkt))
		return pkt
	case <-time.After(timeout):
		wc.t.Fatal("timed out waiting for websocket frame")
		return ws.Packet{}
	}
}

// WaitFor skips frames until a celebration named name arrives.
func (wc *WSClient) WaitFor(name string, timeout time.Duration) hook.Event {
	wc.t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		left := time.Until(deadline)
		if left <= 0 {
			wc.t.Fatalf("no %s celebration within %s", name, timeout)
		}
		pkt := wc.Next(left)
		if pkt.Type != ws.TypeCelebration {
			continue
		}
		var ev hook.Event
		require.NoError(wc.t, json.Unmarshal(pkt.Payload, &ev))
		if ev.Name == name {
			return ev
		}
	}
}
