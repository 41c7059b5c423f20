package gateway

import (
	"context"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"bollinger-service/internal/metrics"
	"bollinger-service/internal/model"
)

// Hub manages WebSocket clients and pushes band snapshots to them.
type Hub struct {
	bands    BandComputer
	settings Settings
	prom     *metrics.Metrics // optional
	maxLimit int              // cap on subscription limits, 0 = none

	mu      sync.RWMutex
	clients map[*Client]bool
}

// NewHub creates a new Hub. prom may be nil. Subscription limits above
// maxLimit are lowered to it; maxLimit <= 0 leaves them alone.
func NewHub(bands BandComputer, settings Settings, prom *metrics.Metrics, maxLimit int) *Hub {
	return &Hub{
		bands:    bands,
		settings: settings,
		prom:     prom,
		maxLimit: maxLimit,
		clients:  make(map[*Client]bool),
	}
}

// HandleWSRequest registers an upgraded connection and starts its pumps.
func (h *Hub) HandleWSRequest(conn *websocket.Conn) {
	client := newClient(h, conn)

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	if h.prom != nil {
		h.prom.WSClients.Set(float64(count))
	}
	log.Printf("[gateway] ws client connected (%d total)", count)

	go client.writePump()
	go client.readPump()
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	count := len(h.clients)
	h.mu.Unlock()
	c.close()

	if h.prom != nil {
		h.prom.WSClients.Set(float64(count))
	}
}

func (h *Hub) capLimit(limit int) int {
	if limit < 0 {
		return 0
	}
	if h.maxLimit > 0 && limit > h.maxLimit {
		return h.maxLimit
	}
	return limit
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Refresh recomputes every subscription of every client and pushes the
// result with the given reason.
func (h *Hub) Refresh(ctx context.Context, reason string) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		for _, sub := range c.subscriptions() {
			if ctx.Err() != nil {
				return
			}
			c.pushBands(ctx, sub, "", reason)
		}
	}
}

// OnSettingsChange is a settings listener: subscribers get fresh bands
// in the background so the caller that changed settings is not held up.
func (h *Hub) OnSettingsChange(opts model.BollingerOptions) {
	log.Printf("[gateway] settings changed (length=%d mult=%g offset=%d), refreshing %d clients",
		opts.Inputs.Length, opts.Inputs.StdDevMultiplier, opts.Inputs.Offset, h.ClientCount())
	go h.Refresh(context.Background(), ReasonSettings)
}
