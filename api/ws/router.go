package ws

import (
	"context"
	"encoding/json"

	mw "github.com/framecraft/engagement/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HandlerFunc answers one client frame. A returned error is logged and
// reported to the client as an "internal" error frame.
type HandlerFunc func(ctx context.Context, s *Session, payload json.RawMessage) error

// Router maps client frame types to handlers. Handlers are registered
// before the first connection and never change afterwards.
type Router struct {
	handlers map[string]HandlerFunc
	logger   *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{handlers: make(map[string]HandlerFunc), logger: logger}
}

func (r *Router) On(frameType string, fn HandlerFunc) {
	r.handlers[frameType] = fn
}

type errorPayload struct {
	Code string `json:"code"`
	Type string `json:"type,omitempty"`
}

// Dispatch handles one raw frame read from s. Each dispatch gets its own
// trace id, readable from the handler's context with middleware.TraceIDFrom.
func (r *Router) Dispatch(ctx context.Context, s *Session, raw []byte) {
	var pkt Packet
	if err := json.Unmarshal(raw, &pkt); err != nil {
		r.logger.Warn("ws malformed frame", zap.String("user_id", s.UserID), zap.Error(err))
		s.Send(TypeError, errorPayload{Code: "malformed_packet"})
		return
	}
	if !s.accept(pkt.Seq) {
		r.logger.Warn("ws stale frame dropped",
			zap.String("user_id", s.UserID),
			zap.Uint64("seq", pkt.Seq),
			zap.Uint64("last_seq", s.LastSeq))
		return
	}
	fn, found := r.handlers[pkt.Type]
	if !found {
		s.Send(TypeError, errorPayload{Code: "unknown_type", Type: pkt.Type})
		return
	}

	s.TraceID = uuid.NewString()
	log := r.logger.With(
		zap.String("type", pkt.Type),
		zap.String("user_id", s.UserID),
		zap.String("trace_id", s.TraceID))
	if err := fn(mw.WithTraceID(ctx, s.TraceID), s, pkt.Payload); err != nil {
		log.Error("ws handler failed", zap.Error(err))
		s.Send(TypeError, errorPayload{Code: "internal", Type: pkt.Type})
	}
}
