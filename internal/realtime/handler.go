package realtime

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"dealership_backend/internal/httputil"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Operators only send pongs and close frames
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// ServeWS checks the origin itself before authenticating
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS authenticates the handshake before upgrading. A non-operator
// credential is refused with 403 and no session is created.
func (r *Registry) ServeWS(w http.ResponseWriter, req *http.Request) {
	if !r.originAllowed(req.Header.Get("Origin")) {
		r.logger.Warn("realtime handshake from foreign origin", zap.String("origin", req.Header.Get("Origin")))
		httputil.WriteForbidden(w, "Origin not allowed")
		return
	}

	principal, err := r.Authenticate(credentialFrom(req))
	if err != nil {
		if errors.Is(err, ErrNotOperator) {
			r.logger.Warn("realtime handshake refused", zap.Error(err))
			httputil.WriteForbidden(w, "Operator role required")
			return
		}
		r.logger.Info("realtime handshake unauthenticated", zap.Error(err))
		httputil.WriteUnauthorized(w, "Invalid authentication token")
		return
	}

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warn("websocket upgrade failed", zap.Int64("principal_id", principal.ID), zap.Error(err))
		return
	}

	s := NewSession(principal, conn)
	if err := r.Register(s); err != nil {
		_ = conn.Close()
		return
	}

	go s.writePump()
	s.readPump(r)
}

// originAllowed accepts requests without an Origin header (native clients).
func (r *Registry) originAllowed(origin string) bool {
	if origin == "" || len(r.origins) == 0 {
		return true
	}
	for _, o := range r.origins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// credentialFrom reads the token from the query string (browsers cannot set
// headers on a websocket handshake), then the Authorization header. The
// access_token cookie is never used here: a browser would attach it to a
// handshake opened by any page.
func credentialFrom(req *http.Request) string {
	if t := req.URL.Query().Get("token"); t != "" {
		return t
	}
	if h := req.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}
	return ""
}

// readPump discards client frames and keeps the read deadline alive on pong.
// It returns when the peer goes away, then releases the session.
func (s *Session) readPump(r *Registry) {
	defer func() {
		r.release(s)
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				r.logger.Debug("websocket read error", zap.Int64("principal_id", s.PrincipalID), zap.Error(err))
			}
			return
		}
	}
}

// writePump drains the send channel onto the connection and pings periodically.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The registry closed the channel
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
