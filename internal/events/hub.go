package events

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/domain"
)

// Subscription scopes a client to one (serviceType, date) line. An empty
// ServiceType is the staff wildcard tier observing every line.
type Subscription struct {
	ServiceType domain.ServiceType
	Date        string
}

// Matches reports whether an event for the given partition should reach this
// subscription.
func (s Subscription) Matches(serviceType domain.ServiceType, date string) bool {
	if s.ServiceType != "" && s.ServiceType != serviceType {
		return false
	}
	if s.Date != "" && s.Date != date {
		return false
	}
	return true
}

// Client is one connected observer. Send is buffered; Broadcast drops rather
// than blocks when it is full. A client receives nothing until its first
// UpdateSubscription; a freshly registered connection is not an implicit
// wildcard.
type Client struct {
	ID           string
	Send         chan []byte
	Subscription Subscription

	joined bool
}

// Hub is the process-wide subscriber registry. Register/Unregister/Broadcast
// are safe for concurrent use and never block ticket mutations.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  *zap.Logger
}

// NewHub creates an empty registry.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{clients: make(map[string]*Client), logger: logger}
}

// Register adds a client to the registry.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
}

// Unregister removes a client and closes its send channel. Unknown clients
// are a no-op.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	close(client.Send)
}

// UpdateSubscription repoints the client at another line and marks it as
// joined, making it eligible for delivery.
func (h *Hub) UpdateSubscription(client *Client, sub Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client.Subscription = sub
	client.joined = true
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish delivers the event to every subscriber of its partition.
func (h *Hub) Publish(_ context.Context, event QueueEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	h.broadcast(payload, event.ServiceType, event.Date)
	return nil
}

func (h *Hub) broadcast(payload []byte, serviceType domain.ServiceType, date string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if !client.joined || !client.Subscription.Matches(serviceType, date) {
			continue
		}
		select {
		case client.Send <- payload:
		default:
			h.logger.Warn("dropping event for slow subscriber", zap.String("client_id", client.ID))
		}
	}
}
