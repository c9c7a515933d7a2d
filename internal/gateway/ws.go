package gateway

import (
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// wsEvent is one bus event on the wire.
type wsEvent struct {
	Topic     string `json:"topic"`
	Payload   any    `json:"payload"`
	Timestamp string `json:"timestamp"`
}

// handleWS streams bus events to the dashboard for live updates. The feed
// is one-way; client frames are read only to detect disconnects.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Bus == nil {
		s.writeError(w, http.StatusNotFound, "event feed disabled")
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.cfg.CORS.AllowedOrigins,
	})
	if err != nil {
		return
	}
	s.logger.Info("ws: client connected")
	defer func() {
		s.logger.Info("ws: client disconnecting")
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
	}()

	sub := s.cfg.Bus.Subscribe("")
	defer s.cfg.Bus.Unsubscribe(sub)

	ctx := r.Context()
	go func() {
		// Drain client frames so pings and closes are processed.
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Ch():
			if !ok {
				return
			}
			out := wsEvent{
				Topic:     ev.Topic,
				Payload:   ev.Payload,
				Timestamp: time.Now().UTC().Format(time.RFC3339),
			}
			if err := wsjson.Write(ctx, conn, out); err != nil {
				s.logger.Debug("ws: write error, closing", "error", err)
				return
			}
		}
	}
}
