package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/framecraft/engagement/cache"
	"github.com/framecraft/engagement/game/progression"
	mw "github.com/framecraft/engagement/middleware"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Frame types.
const (
	TypeConnected   = "connected"
	TypeCelebration = "celebration"
	TypePing        = "ping"
	TypePong        = "pong"
	TypeRecent      = "recent"
	TypeError       = "error"
)

// Handler serves GET /api/v1/ws: the same celebration stream as SSE, for
// clients that prefer a socket. Clients may also send ping and recent.
type Handler struct {
	pubsub   cache.PubSub
	notifier *progression.Notifier
	router   *Router
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHandler creates a Handler. An empty origin list permits all origins.
func NewHandler(pubsub cache.PubSub, notifier *progression.Notifier, allowedOrigins []string, logger *zap.Logger) *Handler {
	h := &Handler{
		pubsub:   pubsub,
		notifier: notifier,
		router:   NewRouter(logger),
		logger:   logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, o := range allowedOrigins {
				if o == origin {
					return true
				}
			}
			return false
		},
	}
	h.router.On(TypePing, h.handlePing)
	h.router.On(TypeRecent, h.handleRecent)
	return h
}

// Serve upgrades the connection. middleware.Auth must run first.
func (h *Handler) Serve(c *gin.Context) {
	orgID, userID := mw.GetIdentity(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader already wrote the HTTP error
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	s := NewSession(orgID, userID, conn, h.logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := h.pubsub.Subscribe(ctx, progression.EventChannel(orgID, userID))
	if err != nil {
		h.logger.Error("ws subscribe failed",
			zap.String("org_id", orgID), zap.String("user_id", userID), zap.Error(err))
		s.Send(TypeError, errorPayload{Code: "internal"})
		s.Close()
		return
	}
	defer sub.Close()

	s.Send(TypeConnected, map[string]string{"user_id": userID})
	go h.forward(s, sub)
	h.readPump(ctx, s)
}

func (h *Handler) forward(s *Session, sub *cache.Subscription) {
	for {
		select {
		case payload, ok := <-sub.C:
			if !ok {
				s.Close()
				return
			}
			s.SendRaw(TypeCelebration, []byte(payload))
		case <-s.Done():
			return
		}
	}
}

func (h *Handler) readPump(ctx context.Context, s *Session) {
	defer s.Close()

	s.SetReadDeadline()
	s.Conn.SetPongHandler(func(string) error {
		s.SetReadDeadline()
		return nil
	})
	for {
		_, raw, err := s.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived) {
				h.logger.Warn("ws unexpected close",
					zap.String("user_id", s.UserID), zap.Error(err))
			}
			return
		}
		s.SetReadDeadline()
		h.router.Dispatch(ctx, s, raw)
	}
}

type pingPayload struct {
	ClientTS int64 `json:"client_ts"`
}

func (h *Handler) handlePing(_ context.Context, s *Session, payload json.RawMessage) error {
	var p pingPayload
	if len(payload) > 0 {
		_ = json.Unmarshal(payload, &p)
	}
	s.Send(TypePong, map[string]int64{
		"client_ts": p.ClientTS,
		"server_ts": time.Now().UnixMilli(),
	})
	return nil
}

func (h *Handler) handleRecent(ctx context.Context, s *Session, _ json.RawMessage) error {
	if h.notifier == nil {
		s.Send(TypeRecent, []interface{}{})
		return nil
	}
	events, err := h.notifier.Recent(ctx, s.OrgID, s.UserID)
	if err != nil {
		return err
	}
	s.Send(TypeRecent, events)
	return nil
}
