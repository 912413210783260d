package web

import (
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/websocket"

	"github.com/osa030/jukeula/internal/app/notification"
)

// Subprotocol is the WebSocket subprotocol of the live channel.
const Subprotocol = "juke"

// wsStream adapts a WebSocket connection to notification.Stream.
type wsStream struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// Send writes one frame. A client that does not take it within
// notification.SendTimeout fails the write.
func (w *wsStream) Send(n *notification.Notification) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.conn.SetWriteDeadline(time.Now().Add(notification.SendTimeout)); err != nil {
		return errors.Wrap(err, "failed to set write deadline")
	}
	return websocket.JSON.Send(w.conn, n)
}

func (s *Server) websocketHandler() http.Handler {
	return websocket.Server{
		Handshake: handshake,
		Handler:   s.serveWebSocket,
	}
}

// handshake accepts clients offering no subprotocol or the juke subprotocol.
func handshake(cfg *websocket.Config, r *http.Request) error {
	if len(cfg.Protocol) == 0 {
		return nil
	}
	if !slices.Contains(cfg.Protocol, Subprotocol) {
		return errors.Newf("unsupported subprotocol: %v", cfg.Protocol)
	}
	cfg.Protocol = []string{Subprotocol}
	return nil
}

// serveWebSocket sends the current status and queue, then pushes changes
// until the client goes away. The client may ask for a frame by sending
// "status" or "queue".
func (s *Server) serveWebSocket(conn *websocket.Conn) {
	defer conn.Close()

	stream := &wsStream{conn: conn}
	id := s.notifier.Subscribe(stream)
	defer s.notifier.Unsubscribe(id)
	zlog.Debug().Msgf("websocket connected: id=%s remote=%s", id, conn.Request().RemoteAddr)

	if err := s.sendStatus(id); err != nil {
		return
	}
	if err := s.sendQueue(id); err != nil {
		return
	}

	for {
		var msg string
		if err := websocket.Message.Receive(conn, &msg); err != nil {
			zlog.Debug().Msgf("websocket closed: id=%s error=%v", id, err)
			return
		}

		var err error
		switch strings.TrimSpace(msg) {
		case "status":
			err = s.sendStatus(id)
		case "queue":
			err = s.sendQueue(id)
		default:
			zlog.Debug().Msgf("unknown websocket message ignored: id=%s message=%q", id, msg)
		}
		if err != nil {
			return
		}
	}
}

func (s *Server) sendStatus(id string) error {
	return s.notifier.Send(id, notification.StatusNotification(s.jukebox.Status()))
}

func (s *Server) sendQueue(id string) error {
	return s.notifier.Send(id, notification.QueueNotification(s.jukebox.Queue()))
}
