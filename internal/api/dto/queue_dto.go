package dto

import (
	"time"

	"github.com/spec-kit/queue-service/internal/domain"
)

// BookRequest payload.
type BookRequest struct {
	ServiceType domain.ServiceType `json:"serviceType"`
	TimeSlot    string             `json:"timeSlot"`
	Date        string             `json:"date,omitempty"`
}

// BookResponse confirms a booking.
type BookResponse struct {
	TicketID    string `json:"ticketId"`
	QueueNumber int    `json:"queueNumber"`
	Message     string `json:"message"`
}

// AdvanceRequest payload.
type AdvanceRequest struct {
	ServiceType domain.ServiceType `json:"serviceType"`
	Date        string             `json:"date,omitempty"`
}

// CompleteRequest payload.
type CompleteRequest struct {
	TicketID string `json:"ticketId"`
}

// TicketResponse is the wire shape of one ticket.
type TicketResponse struct {
	ID          string              `json:"id"`
	ServiceType domain.ServiceType  `json:"serviceType"`
	TimeSlot    string              `json:"timeSlot"`
	Date        string              `json:"date"`
	QueueNumber int                 `json:"queueNumber"`
	Position    int                 `json:"position"`
	Status      domain.TicketStatus `json:"status"`
	CreatedAt   time.Time           `json:"createdAt"`
	CompletedAt *time.Time          `json:"completedAt,omitempty"`
}

// NewTicketResponse maps a domain ticket.
func NewTicketResponse(t *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:          t.ID,
		ServiceType: t.ServiceType,
		TimeSlot:    t.TimeSlot,
		Date:        t.Date,
		QueueNumber: t.QueueNumber,
		Position:    t.Position,
		Status:      t.Status,
		CreatedAt:   t.CreatedAt,
		CompletedAt: t.CompletedAt,
	}
}

// NewTicketResponses maps a slice of domain tickets.
func NewTicketResponses(tickets []domain.Ticket) []TicketResponse {
	items := make([]TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, NewTicketResponse(&tickets[i]))
	}
	return items
}
