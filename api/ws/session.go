package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeDeadline = 10 * time.Second
	readDeadline  = 60 * time.Second
	pingInterval  = 30 * time.Second
	sendBuffer    = 64
)

// Packet is the frame format in both directions.
type Packet struct {
	Seq     uint64          `json:"seq,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Session is one connected studio member.
type Session struct {
	OrgID   string
	UserID  string
	Conn    *websocket.Conn
	LastSeq uint64
	TraceID string

	send   chan []byte
	done   chan struct{}
	once   sync.Once
	logger *zap.Logger
}

// NewSession wraps conn and starts its write pump.
func NewSession(orgID, userID string, conn *websocket.Conn, logger *zap.Logger) *Session {
	s := &Session{
		OrgID:  orgID,
		UserID: userID,
		Conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		logger: logger,
	}
	go s.writePump()
	return s
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer s.Conn.Close()
	for {
		select {
		case data := <-s.send:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := s.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Warn("ws write error",
					zap.String("org_id", s.OrgID),
					zap.String("user_id", s.UserID),
					zap.Error(err))
				s.Close()
				return
			}
		case <-ticker.C:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := s.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		case <-s.done:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			_ = s.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send queues a packet. Slow readers lose frames rather than stall the
// publisher.
func (s *Session) Send(msgType string, payload interface{}) {
	if s.IsClosed() {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("ws encode payload", zap.String("type", msgType), zap.Error(err))
		return
	}
	s.SendRaw(msgType, raw)
}

// SendRaw queues a packet whose payload is already JSON.
func (s *Session) SendRaw(msgType string, payload []byte) {
	data, err := json.Marshal(Packet{Type: msgType, Payload: payload})
	if err != nil {
		return
	}
	select {
	case s.send <- data:
	case <-s.done:
	default:
		s.logger.Warn("ws send buffer full, frame dropped",
			zap.String("user_id", s.UserID), zap.String("type", msgType))
	}
}

// Close stops the write pump. It is safe to call more than once.
func (s *Session) Close() {
	s.once.Do(func() { close(s.done) })
}

// IsClosed reports whether Close has been called.
func (s *Session) IsClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// accept records seq and reports whether the frame should be handled.
// Zero opts out of ordering; anything else must exceed the last seen seq.
func (s *Session) accept(seq uint64) bool {
	if seq == 0 {
		return true
	}
	if seq <= s.LastSeq {
		return false
	}
	s.LastSeq = seq
	return true
}

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} { return s.done }

// SetReadDeadline pushes the read deadline out by the idle window.
func (s *Session) SetReadDeadline() {
	_ = s.Conn.SetReadDeadline(time.Now().Add(readDeadline))
}
