package websocket

import (
	"context"
	"sync"

	"notesync-be/internal/metrics"
	"notesync-be/internal/pkg/logger"
	"notesync-be/pkg/events"
)

// Hub is the process-local registry of connected clients, keyed by tenant.
// It only delivers; events reach it through the relay.
type Hub struct {
	// tenant -> connected clients (one per device tab)
	clients map[string][]*Client

	mu sync.RWMutex

	logger  logger.ILogger
	metrics *metrics.Metrics
}

func NewHub(log logger.ILogger, m *metrics.Metrics) *Hub {
	return &Hub{
		clients: make(map[string][]*Client),
		logger:  log,
		metrics: m,
	}
}

func (h *Hub) Connect(client *Client) {
	h.mu.Lock()
	h.clients[client.Tenant] = append(h.clients[client.Tenant], client)
	h.mu.Unlock()

	h.metrics.ClientsConnected.Inc()
	h.logger.Info("Hub", "Client registered", map[string]interface{}{
		"tenant":    client.Tenant,
		"device_id": client.DeviceID,
	})
}

// Disconnect removes client from every tenant list and closes its send
// channel. Calling it twice is harmless.
func (h *Hub) Disconnect(client *Client) {
	h.mu.Lock()
	removed := h.remove(client)
	h.mu.Unlock()

	if removed {
		h.metrics.ClientsConnected.Dec()
		h.logger.Info("Hub", "Client unregistered", map[string]interface{}{
			"tenant":    client.Tenant,
			"device_id": client.DeviceID,
		})
	}
	client.close()
}

// remove must be called with mu held. Empty tenant entries are pruned.
func (h *Hub) remove(client *Client) bool {
	removed := false
	for tenant, clients := range h.clients {
		kept := clients[:0]
		for _, c := range clients {
			if c == client {
				removed = true
				continue
			}
			kept = append(kept, c)
		}
		if len(kept) == 0 {
			delete(h.clients, tenant)
		} else {
			h.clients[tenant] = kept
		}
	}
	return removed
}

// BroadcastLocal delivers event to the sockets of its tenant, or to every
// socket when the event carries no tenant. Clients whose buffer is full are
// dropped.
func (h *Hub) BroadcastLocal(event events.Event) {
	data, err := event.Marshal()
	if err != nil {
		h.logger.Error("Hub", "Failed to encode event", map[string]interface{}{
			"event": event.Name,
			"error": err,
		})
		return
	}

	var broken []*Client
	h.mu.RLock()
	if event.Tenant != "" {
		broken = deliver(h.clients[event.Tenant], data, broken)
	} else {
		for _, clients := range h.clients {
			broken = deliver(clients, data, broken)
		}
	}
	h.mu.RUnlock()

	for _, c := range broken {
		h.logger.Warn("Hub", "Client send buffer full, dropping client", map[string]interface{}{
			"tenant":    c.Tenant,
			"device_id": c.DeviceID,
			"event":     event.Name,
		})
		h.Disconnect(c)
	}
}

func deliver(clients []*Client, data []byte, broken []*Client) []*Client {
	for _, c := range clients {
		if !c.offer(data) {
			broken = append(broken, c)
		}
	}
	return broken
}

// Deliver adapts BroadcastLocal to the relay subscriber callback.
func (h *Hub) Deliver(ctx context.Context, event events.Event) error {
	h.BroadcastLocal(event)
	return nil
}

// Count returns how many clients are connected for tenant.
func (h *Hub) Count(tenant string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[tenant])
}

func (h *Hub) Tenants() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll disconnects every client, used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	var all []*Client
	for _, clients := range h.clients {
		all = append(all, clients...)
	}
	h.clients = make(map[string][]*Client)
	h.mu.Unlock()

	for _, c := range all {
		h.metrics.ClientsConnected.Dec()
		c.close()
	}
}
