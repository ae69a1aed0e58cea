package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/spec-kit/queue-service/internal/domain"
)

// memoryTicketRepository keeps the full ticket set in process memory. It
// backs tests and DSN-less development runs with the same atomic-unit
// contract as the Postgres implementation.
type memoryTicketRepository struct {
	mu      sync.Mutex
	tickets map[string]*domain.Ticket
	maxSeq  map[string]int
}

// NewMemoryTicketRepository returns an in-memory implementation.
func NewMemoryTicketRepository() TicketRepository {
	return &memoryTicketRepository{
		tickets: make(map[string]*domain.Ticket),
		maxSeq:  make(map[string]int),
	}
}

func partitionKey(serviceType domain.ServiceType, date string) string {
	return string(serviceType) + "|" + date
}

func (r *memoryTicketRepository) InsertNext(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := partitionKey(ticket.ServiceType, ticket.Date)
	active := 0
	for _, t := range r.tickets {
		if t.ServiceType == ticket.ServiceType && t.Date == ticket.Date && t.Status.IsActive() {
			active++
		}
	}

	r.maxSeq[key]++
	ticket.QueueNumber = r.maxSeq[key]
	ticket.Position = active + 1
	ticket.Status = domain.TicketStatusPending
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = time.Now().UTC()
	}

	stored := *ticket
	r.tickets[ticket.ID] = &stored
	return nil
}

func (r *memoryTicketRepository) AdvanceNext(_ context.Context, serviceType domain.ServiceType, date string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var next *domain.Ticket
	for _, t := range r.tickets {
		if t.ServiceType != serviceType || t.Date != date || t.Status != domain.TicketStatusPending {
			continue
		}
		if next == nil || t.Position < next.Position {
			next = t
		}
	}
	if next == nil {
		return nil, ErrEmptyQueue
	}

	next.Status = domain.TicketStatusServing
	copied := *next
	return &copied, nil
}

func (r *memoryTicketRepository) CompleteAndCompact(_ context.Context, ticketID string, completedAt time.Time) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ticket, ok := r.tickets[ticketID]
	if !ok {
		return nil, ErrNotFound
	}
	if !ticket.Status.IsActive() {
		return nil, ErrAlreadyCompleted
	}

	freed := ticket.Position
	ticket.Status = domain.TicketStatusCompleted
	stamp := completedAt
	ticket.CompletedAt = &stamp

	for _, t := range r.tickets {
		if t.ServiceType == ticket.ServiceType && t.Date == ticket.Date && t.Status.IsActive() && t.Position > freed {
			t.Position--
		}
	}

	copied := *ticket
	return &copied, nil
}

func (r *memoryTicketRepository) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ticket, ok := r.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *ticket
	return &copied, nil
}

func (r *memoryTicketRepository) ListActive(_ context.Context, serviceType domain.ServiceType, date string) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []domain.Ticket
	for _, t := range r.tickets {
		if t.ServiceType == serviceType && t.Date == date && t.Status.IsActive() {
			result = append(result, *t)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Position < result[j].Position })
	return result, nil
}

func (r *memoryTicketRepository) ListByDate(_ context.Context, date string) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []domain.Ticket
	for _, t := range r.tickets {
		if t.Date == date {
			result = append(result, *t)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (r *memoryTicketRepository) ListByOwner(_ context.Context, ownerID string) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []domain.Ticket
	for _, t := range r.tickets {
		if t.OwnerID == ownerID {
			result = append(result, *t)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}
