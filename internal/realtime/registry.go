package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"dealership_backend/internal/auth"
	"dealership_backend/internal/metrics"
	"dealership_backend/internal/model"
)

// sendBuffer is the per-session outbound queue length.
const sendBuffer = 64

// ErrNotOperator is returned when a valid credential belongs to a non-operator role.
var ErrNotOperator = errors.New("realtime channel requires an operator role")

// Event is the JSON frame pushed to operator sessions.
type Event struct {
	Type      string         `json:"type"`
	RecordID  int64          `json:"id,omitempty"`
	Category  model.Category `json:"category"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Payload   model.Payload  `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Session is one operator's open channel. It lives only in process memory.
type Session struct {
	ID          uuid.UUID
	PrincipalID int64
	Role        model.Role

	conn *websocket.Conn
	send chan []byte
}

// NewSession wraps an upgraded connection. conn may be nil in tests.
func NewSession(p model.Principal, conn *websocket.Conn) *Session {
	return &Session{
		ID:          uuid.New(),
		PrincipalID: p.ID,
		Role:        p.Role,
		conn:        conn,
		send:        make(chan []byte, sendBuffer),
	}
}

// Registry tracks at most one session per operator principal.
// Sends happen under the read lock and channel closes under the write lock,
// so a session's send channel is never written after it is closed.
type Registry struct {
	verifier auth.Verifier
	origins  []string
	logger   *zap.Logger

	mu       sync.RWMutex
	sessions map[int64]*Session
}

// NewRegistry creates an empty registry. It is owned by the process lifecycle.
// allowedOrigins limits which browser origins may open a session; "*" or an
// empty list allows any.
func NewRegistry(verifier auth.Verifier, allowedOrigins []string, logger *zap.Logger) *Registry {
	return &Registry{
		verifier: verifier,
		origins:  allowedOrigins,
		logger:   logger.Named("realtime"),
		sessions: make(map[int64]*Session),
	}
}

// Authenticate resolves a handshake credential and enforces the operator gate.
func (r *Registry) Authenticate(credential string) (model.Principal, error) {
	p, err := r.verifier.Verify(credential)
	if err != nil {
		return model.Principal{}, err
	}
	if !p.Role.IsOperator() {
		return model.Principal{}, fmt.Errorf("%w: role %q", ErrNotOperator, p.Role)
	}
	return p, nil
}

// Register tracks s, replacing any previous session of the same principal.
func (r *Registry) Register(s *Session) error {
	if !s.Role.IsOperator() {
		return ErrNotOperator
	}

	r.mu.Lock()
	if old, ok := r.sessions[s.PrincipalID]; ok && old != s {
		close(old.send)
		r.logger.Info("session replaced",
			zap.Int64("principal_id", s.PrincipalID), zap.String("old_session", old.ID.String()))
	}
	r.sessions[s.PrincipalID] = s
	count := len(r.sessions)
	r.mu.Unlock()

	metrics.RealtimeSessions.Set(float64(count))
	r.logger.Info("session registered",
		zap.Int64("principal_id", s.PrincipalID),
		zap.String("session", s.ID.String()),
		zap.String("role", string(s.Role)),
		zap.Int("sessions", count))
	return nil
}

// Unregister drops whatever session the principal holds.
func (r *Registry) Unregister(principalID int64) {
	r.mu.Lock()
	s, ok := r.sessions[principalID]
	if ok {
		delete(r.sessions, principalID)
		close(s.send)
	}
	count := len(r.sessions)
	r.mu.Unlock()

	if ok {
		metrics.RealtimeSessions.Set(float64(count))
		r.logger.Info("session unregistered", zap.Int64("principal_id", principalID), zap.Int("sessions", count))
	}
}

// release drops s only if it is still the principal's current session, so a
// replaced connection shutting down does not evict its successor.
func (r *Registry) release(s *Session) {
	r.mu.Lock()
	cur, ok := r.sessions[s.PrincipalID]
	if ok && cur == s {
		delete(r.sessions, s.PrincipalID)
		close(s.send)
	}
	count := len(r.sessions)
	r.mu.Unlock()

	if ok && cur == s {
		metrics.RealtimeSessions.Set(float64(count))
		r.logger.Info("session closed", zap.Int64("principal_id", s.PrincipalID), zap.Int("sessions", count))
	}
}

// Broadcast queues ev on every session without blocking and returns how many
// sessions accepted it. Zero sessions is a no-op.
func (r *Registry) Broadcast(ev Event) int {
	data, err := r.encode(ev)
	if err != nil {
		return 0
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	delivered := 0
	for id, s := range r.sessions {
		if r.enqueue(id, s, data) {
			delivered++
		}
	}
	return delivered
}

// SendTo queues ev for one principal. It reports false when the principal has
// no session or its buffer is full.
func (r *Registry) SendTo(principalID int64, ev Event) bool {
	data, err := r.encode(ev)
	if err != nil {
		return false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[principalID]
	if !ok {
		return false
	}
	return r.enqueue(principalID, s, data)
}

// Connected reports whether the principal currently holds a session.
func (r *Registry) Connected(principalID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[principalID]
	return ok
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll drops every session. Called on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	for id, s := range r.sessions {
		close(s.send)
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	metrics.RealtimeSessions.Set(0)
}

func (r *Registry) encode(ev Event) ([]byte, error) {
	if ev.Type == "" {
		ev.Type = "notification"
	}
	data, err := json.Marshal(ev)
	if err != nil {
		r.logger.Error("encode realtime event", zap.Error(err))
		return nil, err
	}
	return data, nil
}

// enqueue must be called with at least the read lock held.
func (r *Registry) enqueue(principalID int64, s *Session, data []byte) bool {
	select {
	case s.send <- data:
		return true
	default:
		metrics.RealtimeDropped.Inc()
		r.logger.Warn("session buffer full, event dropped", zap.Int64("principal_id", principalID))
		return false
	}
}
