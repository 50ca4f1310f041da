package panel

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"avatarstream/native/internal/status"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	pingInterval = 30 * time.Second
	writeTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	// The panel is served from the same origin it talks to.
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || origin == "http://"+r.Host
	},
}

// statusStream pushes status events to one panel page.
type statusStream struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	closed chan struct{}
	once   sync.Once
}

func serveStatusStream(ctx context.Context, w http.ResponseWriter, r *http.Request, statusLog *status.Log) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("module", "panel").Msg("websocket upgrade")
		return
	}

	s := &statusStream{conn: conn, closed: make(chan struct{})}
	history, events, unsubscribe := statusLog.Follow()
	defer unsubscribe()
	defer s.Close()

	log.Debug().Str("module", "panel").Str("remote", r.RemoteAddr).Msg("status stream opened")

	// Replay the transcript so a freshly opened page shows everything.
	for _, line := range history {
		if err := s.sendJSON(status.Event{Kind: status.KindStatus, Text: line}); err != nil {
			return
		}
	}

	go s.readLoop()
	go s.pingLoop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.closed:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := s.sendJSON(ev); err != nil {
				log.Debug().Err(err).Str("module", "panel").Msg("status stream write")
				return
			}
		}
	}
}

func (s *statusStream) Close() {
	s.once.Do(func() {
		close(s.closed)
		s.conn.Close()
	})
}

func (s *statusStream) sendJSON(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop discards client messages and notices when the page goes away.
func (s *statusStream) readLoop() {
	defer s.Close()

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *statusStream) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.closed:
			return
		case <-ticker.C:
			s.mu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeTimeout))
			s.mu.Unlock()
			if err != nil {
				s.Close()
				return
			}
		}
	}
}
