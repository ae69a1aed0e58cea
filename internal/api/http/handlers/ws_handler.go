package handlers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/auth"
	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/events"
	"github.com/spec-kit/queue-service/internal/service"
)

const sendBufferSize = 32

// joinMessage is what a connected client sends to watch a line. Staff may
// leave serviceType empty to watch every line.
type joinMessage struct {
	Action      string             `json:"action"`
	ServiceType domain.ServiceType `json:"serviceType"`
	Date        string             `json:"date"`
}

// WSHandler upgrades clients onto the event fanout.
type WSHandler struct {
	hub    *events.Hub
	queue  *service.QueueService
	tokens *auth.TokenManager
	logger *zap.Logger
}

// NewWSHandler constructs handler.
func NewWSHandler(hub *events.Hub, queueService *service.QueueService, tokens *auth.TokenManager, logger *zap.Logger) *WSHandler {
	return &WSHandler{hub: hub, queue: queueService, tokens: tokens, logger: logger}
}

// Handle runs one websocket session: register, serve join requests, fan out
// events until disconnect.
func (h *WSHandler) Handle(conn *websocket.Conn) {
	claims, err := h.tokens.ParseToken(conn.Query("token"))
	if err != nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"invalid token"}`))
		_ = conn.Close()
		return
	}

	client := &events.Client{
		ID:   uuid.NewString(),
		Send: make(chan []byte, sendBufferSize),
	}
	h.hub.Register(client)
	defer h.hub.Unregister(client)

	go func() {
		for payload := range client.Send {
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg joinMessage
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Action != "join" {
			continue
		}
		h.join(client, claims, msg)
	}
}

func (h *WSHandler) join(client *events.Client, claims *auth.Claims, msg joinMessage) {
	date := msg.Date
	if date == "" {
		date = domain.Today()
	}

	if msg.ServiceType == "" {
		// Wildcard tier: staff dashboards watching all lines.
		if !claims.Role.CanManageQueue() {
			return
		}
		h.hub.UpdateSubscription(client, events.Subscription{Date: date})
		return
	}

	if !msg.ServiceType.IsValid() {
		return
	}
	h.hub.UpdateSubscription(client, events.Subscription{ServiceType: msg.ServiceType, Date: date})
	h.sendSnapshot(client, msg.ServiceType, date)
}

// sendSnapshot delivers the line's current state to the joining client only.
// It is not ordered against concurrent broadcasts: a transition event may
// arrive before the snapshot that already reflects it, so clients must treat
// the snapshot as authoritative state, not a delta.
func (h *WSHandler) sendSnapshot(client *events.Client, serviceType domain.ServiceType, date string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	tickets, err := h.queue.Snapshot(ctx, serviceType, date)
	if err != nil {
		h.logger.Warn("snapshot failed", zap.Error(err))
		return
	}

	payload, err := json.Marshal(events.QueueEvent{
		Type:        events.EventSnapshot,
		ServiceType: serviceType,
		Date:        date,
		Tickets:     tickets,
		Timestamp:   time.Now().UTC(),
	})
	if err != nil {
		return
	}

	select {
	case client.Send <- payload:
	default:
		h.logger.Warn("dropping snapshot for slow subscriber", zap.String("client_id", client.ID))
	}
}
