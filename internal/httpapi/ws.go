package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/onewithdev/peterbot/internal/bus"
)

// upgrader has no origin check: the dashboard is a single-user personal
// tool behind the same X-Dashboard-Password as everything else, matching
// the teacher's cmd/agent_chat.go websocket client's trust model.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const writeTimeout = 5 * time.Second

// handleJobsWS upgrades to a websocket and streams bus.Event as JSON until
// the connection closes, grounded on internal/bus.EventBus.Broadcast/
// Subscribe and the teacher's own websocket client in cmd/agent_chat.go.
func (s *Server) handleJobsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("httpapi: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	subID := uuid.NewString()
	events := make(chan bus.Event, 32)
	s.events.Subscribe(subID, func(e bus.Event) {
		select {
		case events <- e:
		default:
			slog.Warn("httpapi: ws subscriber channel full, dropping event", "sub_id", subID)
		}
	})
	defer s.events.Unsubscribe(subID)

	// Drain client-initiated reads just to detect disconnects; the
	// dashboard never sends anything meaningful over this socket.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case e := <-events:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		}
	}
}
