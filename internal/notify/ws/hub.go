// Package ws exposes connected dashboards as a notification host. Dashboards
// report their permission state and display the notifications pushed to them.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"smartalerts/internal/model"
	"smartalerts/internal/notify"
)

const (
	pingInterval = 30 * time.Second
	pingTimeout  = 10 * time.Second
	sendBuffer   = 64
)

var ErrNoClients = errors.New("no dashboards connected")

type frame struct {
	Type         string               `json:"type"`
	State        model.Permission     `json:"state,omitempty"`
	Notification *notify.Notification `json:"notification,omitempty"`
}

// Hub tracks dashboard connections. The last permission answer from any
// dashboard applies to all of them.
type Hub struct {
	mu         sync.Mutex
	clients    map[*client]struct{}
	permission model.Permission
	waiters    []chan model.Permission
	logger     zerolog.Logger
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		logger:  logger,
	}
}

func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) Permission() model.Permission {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.permissionLocked()
}

func (h *Hub) permissionLocked() model.Permission {
	if len(h.clients) == 0 {
		return model.PermissionUnsupported
	}
	if h.permission == "" {
		return model.PermissionDefault
	}
	return h.permission
}

// Prompt asks every dashboard for permission and returns the first answer.
func (h *Hub) Prompt(ctx context.Context) (model.Permission, error) {
	h.mu.Lock()
	if len(h.clients) == 0 {
		h.mu.Unlock()
		return model.PermissionUnsupported, nil
	}
	ch := make(chan model.Permission, 1)
	h.waiters = append(h.waiters, ch)
	h.mu.Unlock()

	if err := h.broadcast(frame{Type: "permission_request"}); err != nil {
		h.dropWaiter(ch)
		return model.PermissionDefault, err
	}
	select {
	case p := <-ch:
		return p, nil
	case <-ctx.Done():
		h.dropWaiter(ch)
		return model.PermissionDefault, ctx.Err()
	}
}

func (h *Hub) Show(_ context.Context, n notify.Notification) error {
	return h.broadcast(frame{Type: "notification", Notification: &n})
}

func (h *Hub) broadcast(f frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.clients) == 0 {
		return ErrNoClients
	}
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn().Str("frame", f.Type).Msg("dashboard too slow, frame dropped")
		}
	}
	return nil
}

func (h *Hub) dropWaiter(ch chan model.Permission) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, w := range h.waiters {
		if w == ch {
			h.waiters = append(h.waiters[:i], h.waiters[i+1:]...)
			return
		}
	}
}

func (h *Hub) setPermission(p model.Permission) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.permission = p
	for _, w := range h.waiters {
		w <- p
	}
	h.waiters = nil
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info().Int("clients", n).Msg("dashboard connected")
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	close(c.send)
	h.logger.Info().Int("clients", n).Msg("dashboard disconnected")
}

// HandleWS upgrades the request and serves the dashboard until it leaves.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket accept failed")
		return
	}

	c := &client{hub: h, conn: conn, send: make(chan []byte, sendBuffer)}
	h.register(c)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go c.pingLoop(ctx)
	go c.writePump(ctx)
	c.readPump(ctx)
}

func (c *client) readPump(ctx context.Context) {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close(websocket.StatusNormalClosure, "bye")
	}()

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}
		var msg frame
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type != "permission" {
			continue
		}
		switch msg.State {
		case model.PermissionGranted, model.PermissionDenied, model.PermissionDefault:
			c.hub.setPermission(msg.State)
		}
	}
}

func (c *client) writePump(ctx context.Context) {
	for data := range c.send {
		if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
			return
		}
	}
}

func (c *client) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				c.conn.Close(websocket.StatusGoingAway, "ping timeout")
				return
			}
		}
	}
}
