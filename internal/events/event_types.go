package events

import (
	"context"
	"time"

	"github.com/spec-kit/queue-service/internal/domain"
)

// QueueEventType enumerates the transitions broadcast to line observers.
type QueueEventType string

const (
	EventBooked     QueueEventType = "booked"
	EventNowServing QueueEventType = "now_serving"
	EventCompleted  QueueEventType = "completed"
	// EventSnapshot carries the current line state, sent once to a client
	// when it joins a partition.
	EventSnapshot QueueEventType = "snapshot"
)

// QueueEvent is a ticket-state transition scoped to one (serviceType, date)
// line.
type QueueEvent struct {
	Type        QueueEventType      `json:"type"`
	ServiceType domain.ServiceType  `json:"serviceType"`
	Date        string              `json:"date"`
	TicketID    string              `json:"ticketId,omitempty"`
	QueueNumber int                 `json:"queueNumber,omitempty"`
	Position    int                 `json:"position,omitempty"`
	Status      domain.TicketStatus `json:"status,omitempty"`
	Tickets     []domain.Ticket     `json:"tickets,omitempty"`
	Timestamp   time.Time           `json:"timestamp"`
}

// Publisher delivers queue events to whoever is watching the line. Delivery
// is best-effort and must never block the ordering engine.
type Publisher interface {
	Publish(ctx context.Context, event QueueEvent) error
}

// TicketEvent builds the event for a ticket transition.
func TicketEvent(eventType QueueEventType, ticket *domain.Ticket) QueueEvent {
	return QueueEvent{
		Type:        eventType,
		ServiceType: ticket.ServiceType,
		Date:        ticket.Date,
		TicketID:    ticket.ID,
		QueueNumber: ticket.QueueNumber,
		Position:    ticket.Position,
		Status:      ticket.Status,
		Timestamp:   time.Now().UTC(),
	}
}
