// Package wsapi implements the WebSocket surface: upgrading a request for
// /<ws_target_prefix><stream_id> into a hub.Subscriber session, using
// github.com/gorilla/websocket the way the pack's RTSP/media-server repos
// do for outbound binary framing.
package wsapi

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alxayo/go-rtmp/internal/hub"
	"github.com/alxayo/go-rtmp/internal/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Session implements hub.Subscriber over one upgraded WebSocket connection.
type Session struct {
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

// Write sends buf as a single binary frame. Called at most once at a time
// by the owning hub subscriberQueue's drain goroutine.
func (s *Session) Write(buf []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return websocket.ErrCloseSent
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.BinaryMessage, buf)
}

// Close ends the session's underlying connection. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.conn.Close()
}

// readPump drains and discards inbound messages, keeping the read
// deadline alive, exactly as spec.md specifies for non-chat subscribers:
// it returns (and the caller should Leave+Close the session) once the
// connection errors or is closed from the other end.
func (s *Session) readPump() {
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Session) pingPump(stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			if s.closed {
				s.mu.Unlock()
				return
			}
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := s.conn.WriteMessage(websocket.PingMessage, nil)
			s.mu.Unlock()
			if err != nil {
				return
			}
		case <-stop:
			return
		}
	}
}

// Handler upgrades GET /<prefix><stream_id> requests into a hub.Subscriber
// session. An unknown stream_id is accepted then immediately closed per
// spec.md: the upgrade happens first (so the client gets no HTTP error),
// and the connection is closed right after without a WebSocket close
// frame.
func Handler(h *hub.Hub, prefix string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		streamID := strings.TrimPrefix(r.URL.Path, prefix)
		if streamID == "" {
			http.Error(w, "missing stream id", http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		sess := &Session{conn: conn}
		log := logger.WithSubscriber(logger.Logger(), streamID, r.RemoteAddr)

		if h.Stream(streamID) == nil {
			log.Warn("rejected subscriber for unknown stream")
			sess.Close()
			return
		}

		h.Join(streamID, sess)
		log.Info("subscriber joined")
		stop := make(chan struct{})
		go sess.pingPump(stop)

		sess.readPump()

		close(stop)
		h.Leave(streamID, sess)
		sess.Close()
		log.Info("subscriber left")
	}
}
