package domain

import "time"

// DateLayout is the calendar-day partition key format.
const DateLayout = "2006-01-02"

// Today returns the canonical calendar day (UTC).
func Today() string {
	return time.Now().UTC().Format(DateLayout)
}

// ServiceType enumerates the line categories users can book into.
type ServiceType string

const (
	ServiceHospital   ServiceType = "Hospital"
	ServiceBank       ServiceType = "Bank"
	ServiceGovernment ServiceType = "Government Office"
	ServicePostOffice ServiceType = "Post Office"
	ServiceDMV        ServiceType = "DMV"
)

// KnownServiceTypes lists every recognized line category.
var KnownServiceTypes = []ServiceType{
	ServiceHospital,
	ServiceBank,
	ServiceGovernment,
	ServicePostOffice,
	ServiceDMV,
}

// IsValid reports whether the service type is a recognized category.
func (s ServiceType) IsValid() bool {
	for _, known := range KnownServiceTypes {
		if s == known {
			return true
		}
	}
	return false
}

// TicketStatus enumerates lifecycle states for queue tickets.
type TicketStatus string

const (
	TicketStatusPending   TicketStatus = "pending"
	TicketStatusServing   TicketStatus = "serving"
	TicketStatusCompleted TicketStatus = "completed"
	// Rendered by clients; no server operation currently produces it.
	TicketStatusCanceled TicketStatus = "canceled"
)

// IsActive reports whether the ticket still occupies a position in its line.
func (s TicketStatus) IsActive() bool {
	return s == TicketStatusPending || s == TicketStatusServing
}

var allowedTransitions = map[TicketStatus][]TicketStatus{
	TicketStatusPending:   {TicketStatusServing, TicketStatusCompleted, TicketStatusCanceled},
	TicketStatusServing:   {TicketStatusCompleted},
	TicketStatusCompleted: {},
	TicketStatusCanceled:  {},
}

// ValidTransition reports whether a ticket may move from one status to the
// next. Transitions are strictly forward; completed and canceled are terminal.
func ValidTransition(current, next TicketStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Ticket is a booked slot in a (serviceType, date) line.
//
// QueueNumber is the permanent display ordinal assigned at booking: strictly
// increasing within the partition, never reassigned. Position is the current
// 1-based rank among the partition's active tickets and shrinks as earlier
// tickets complete; for completed tickets it is a historical artifact.
type Ticket struct {
	ID          string
	OwnerID     string
	ServiceType ServiceType
	TimeSlot    string
	Date        string
	QueueNumber int
	Position    int
	Status      TicketStatus
	CreatedAt   time.Time
	CompletedAt *time.Time
}
