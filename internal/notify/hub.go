package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

// Envelope is what live clients receive for every published message.
type Envelope struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub broadcasts published messages to connected websocket clients, such
// as browsers showing the athan page.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]*sync.Mutex // conn => write lock
}

var _ Publisher = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]*sync.Mutex)}
}

// Connected reports whether at least one client is listening.
func (h *Hub) Connected() bool {
	return h.Clients() > 0
}

func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) Publish(ctx context.Context, topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", topic, err)
	}
	msg, err := json.Marshal(Envelope{Topic: topic, Payload: body})
	if err != nil {
		return err
	}

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	h.mu.Lock()
	conns := make(map[*websocket.Conn]*sync.Mutex, len(h.clients))
	for c, l := range h.clients {
		conns[c] = l
	}
	h.mu.Unlock()

	for conn, wl := range conns {
		wl.Lock()
		_ = conn.SetWriteDeadline(deadline)
		err := conn.WriteMessage(websocket.TextMessage, msg)
		wl.Unlock()
		if err != nil {
			log.Warn().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("dropping live client")
			h.remove(conn)
		}
	}
	return nil
}

// Handler upgrades the request and keeps the client registered until it
// disconnects. Incoming messages are ignored.
func (h *Hub) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}

		h.mu.Lock()
		h.clients[conn] = &sync.Mutex{}
		h.mu.Unlock()
		log.Info().Str("remote", conn.RemoteAddr().String()).Msg("live client connected")

		defer func() {
			h.remove(conn)
			log.Info().Str("remote", conn.RemoteAddr().String()).Msg("live client disconnected")
		}()

		// keep the connection alive
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.clients[conn]
	delete(h.clients, conn)
	h.mu.Unlock()
	if ok {
		conn.Close()
	}
}

// Fanout publishes to every connected publisher. It counts as connected
// while any of them is.
func Fanout(pubs ...Publisher) Publisher {
	return fanout(pubs)
}

type fanout []Publisher

func (f fanout) Connected() bool {
	for _, p := range f {
		if p.Connected() {
			return true
		}
	}
	return false
}

func (f fanout) Publish(ctx context.Context, topic string, payload any) error {
	var errs []error
	for _, p := range f {
		if !p.Connected() {
			continue
		}
		if err := p.Publish(ctx, topic, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
