package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/config"
	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/events"
	"github.com/spec-kit/queue-service/internal/repository"
	"github.com/spec-kit/queue-service/pkg/errorutil"
)

// Identity is the verified caller supplied by the access gate. The engine
// does not authenticate; it only refuses calls the gate should have blocked.
type Identity struct {
	UserID string
	Role   domain.Role
}

// QueueService is the ticket ordering engine. All three mutating operations
// on one (serviceType, date) partition are serialized through a per-partition
// mutex, and each store call is itself one atomic unit, so active positions
// stay exactly {1..N} under concurrent callers. Events are published before
// the partition lock is released, which keeps them in operation order per
// partition.
type QueueService struct {
	tickets   repository.TicketRepository
	publisher events.Publisher
	logger    *zap.Logger

	locks partitionLocks

	retryAttempts int
	retryBackoff  time.Duration
}

// QueueDependencies bundles collaborator requirements for the engine.
type QueueDependencies struct {
	TicketRepo repository.TicketRepository
	Publisher  events.Publisher
	Logger     *zap.Logger
}

// BookInput describes a booking request.
type BookInput struct {
	ServiceType domain.ServiceType
	TimeSlot    string
	Date        string
}

// NewQueueService constructs the engine.
func NewQueueService(cfg config.QueueConfig, deps QueueDependencies) *QueueService {
	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 3
	}
	backoff := cfg.RetryBackoff()
	if backoff <= 0 {
		backoff = 25 * time.Millisecond
	}
	return &QueueService{
		tickets:       deps.TicketRepo,
		publisher:     deps.Publisher,
		logger:        deps.Logger,
		locks:         partitionLocks{locks: make(map[string]*sync.Mutex)},
		retryAttempts: attempts,
		retryBackoff:  backoff,
	}
}

// Book places the caller at the end of the line, assigning the next queue
// number and position. The confirmation message embeds the queue number.
func (s *QueueService) Book(ctx context.Context, identity Identity, input BookInput) (*domain.Ticket, string, error) {
	if identity.UserID == "" {
		return nil, "", errorutil.NewUnauthorized("identity required")
	}
	if !input.ServiceType.IsValid() {
		return nil, "", errorutil.NewValidationError("unknown service type", map[string]any{"service_type": input.ServiceType})
	}
	if strings.TrimSpace(input.TimeSlot) == "" {
		return nil, "", errorutil.NewValidationError("time slot required", nil)
	}
	date, err := normalizeDate(input.Date)
	if err != nil {
		return nil, "", err
	}

	unlock := s.locks.acquire(string(input.ServiceType) + "|" + date)
	defer unlock()

	ticket := &domain.Ticket{
		ID:          uuid.NewString(),
		OwnerID:     identity.UserID,
		ServiceType: input.ServiceType,
		TimeSlot:    strings.TrimSpace(input.TimeSlot),
		Date:        date,
	}
	if err := s.withRetry(ctx, func() error {
		return s.tickets.InsertNext(ctx, ticket)
	}); err != nil {
		return nil, "", s.mapEngineError(err, "")
	}

	s.publish(ctx, events.TicketEvent(events.EventBooked, ticket))

	message := fmt.Sprintf("Your booking is confirmed! Queue Number: #%d", ticket.QueueNumber)
	return ticket, message, nil
}

// Advance flips the pending ticket with the smallest position to serving.
// Calling it again before a completion advances a different pending ticket;
// several tickets may be serving at once.
func (s *QueueService) Advance(ctx context.Context, identity Identity, serviceType domain.ServiceType, rawDate string) (*domain.Ticket, error) {
	if err := requireStaff(identity); err != nil {
		return nil, err
	}
	if !serviceType.IsValid() {
		return nil, errorutil.NewValidationError("unknown service type", map[string]any{"service_type": serviceType})
	}
	date, err := normalizeDate(rawDate)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.acquire(string(serviceType) + "|" + date)
	defer unlock()

	var ticket *domain.Ticket
	if err := s.withRetry(ctx, func() error {
		var inner error
		ticket, inner = s.tickets.AdvanceNext(ctx, serviceType, date)
		return inner
	}); err != nil {
		if errors.Is(err, repository.ErrEmptyQueue) {
			return nil, errorutil.NewEmptyQueue(string(serviceType))
		}
		return nil, s.mapEngineError(err, "")
	}

	s.publish(ctx, events.TicketEvent(events.EventNowServing, ticket))
	return ticket, nil
}

// Complete marks the ticket completed and compacts the positions behind it.
// A pending ticket may be completed directly, skipping Advance.
func (s *QueueService) Complete(ctx context.Context, identity Identity, ticketID string) error {
	if err := requireStaff(identity); err != nil {
		return err
	}
	if strings.TrimSpace(ticketID) == "" {
		return errorutil.NewValidationError("ticket id required", nil)
	}

	existing, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return s.mapEngineError(err, ticketID)
	}

	unlock := s.locks.acquire(string(existing.ServiceType) + "|" + existing.Date)
	defer unlock()

	var ticket *domain.Ticket
	if err := s.withRetry(ctx, func() error {
		var inner error
		ticket, inner = s.tickets.CompleteAndCompact(ctx, ticketID, time.Now().UTC())
		return inner
	}); err != nil {
		return s.mapEngineError(err, ticketID)
	}

	s.publish(ctx, events.TicketEvent(events.EventCompleted, ticket))
	return nil
}

// ListLines returns all of the day's tickets in creation order, for staff
// dashboards.
func (s *QueueService) ListLines(ctx context.Context, identity Identity, rawDate string) ([]domain.Ticket, error) {
	if err := requireStaff(identity); err != nil {
		return nil, err
	}
	date, err := normalizeDate(rawDate)
	if err != nil {
		return nil, err
	}
	return s.tickets.ListByDate(ctx, date)
}

// ListUserTickets returns the caller's own bookings, newest first.
func (s *QueueService) ListUserTickets(ctx context.Context, identity Identity) ([]domain.Ticket, error) {
	if identity.UserID == "" {
		return nil, errorutil.NewUnauthorized("identity required")
	}
	return s.tickets.ListByOwner(ctx, identity.UserID)
}

// Snapshot returns the active tickets of one line in position order. Used to
// seed a joining subscriber.
func (s *QueueService) Snapshot(ctx context.Context, serviceType domain.ServiceType, rawDate string) ([]domain.Ticket, error) {
	if !serviceType.IsValid() {
		return nil, errorutil.NewValidationError("unknown service type", map[string]any{"service_type": serviceType})
	}
	date, err := normalizeDate(rawDate)
	if err != nil {
		return nil, err
	}
	return s.tickets.ListActive(ctx, serviceType, date)
}

func requireStaff(identity Identity) error {
	if identity.UserID == "" {
		return errorutil.NewUnauthorized("identity required")
	}
	if !identity.Role.CanManageQueue() {
		return errorutil.NewForbidden("staff access required")
	}
	return nil
}

func normalizeDate(raw string) (string, error) {
	if raw == "" {
		return domain.Today(), nil
	}
	if _, err := time.Parse(domain.DateLayout, raw); err != nil {
		return "", errorutil.NewValidationError("invalid date, expected YYYY-MM-DD", map[string]any{"date": raw})
	}
	return raw, nil
}

// withRetry re-runs the unit on conflict a bounded number of times with
// doubling backoff. Conflicts are expected under concurrent load and are not
// caller-caused.
func (s *QueueService) withRetry(ctx context.Context, fn func() error) error {
	backoff := s.retryBackoff
	for attempt := 0; ; attempt++ {
		err := fn()
		if !errors.Is(err, repository.ErrConflict) || attempt >= s.retryAttempts {
			return err
		}
		s.logger.Warn("retrying after write conflict", zap.Int("attempt", attempt+1))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

func (s *QueueService) mapEngineError(err error, ticketID string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		details := map[string]any{}
		if ticketID != "" {
			details["ticket_id"] = ticketID
		}
		return errorutil.NewNotFound("ticket", details)
	case errors.Is(err, repository.ErrAlreadyCompleted):
		return errorutil.NewAlreadyCompleted(ticketID)
	case errors.Is(err, repository.ErrConflict):
		return errorutil.NewTransient(err)
	default:
		return err
	}
}

func (s *QueueService) publish(ctx context.Context, event events.QueueEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("event publish failed",
			zap.String("type", string(event.Type)),
			zap.String("service_type", string(event.ServiceType)),
			zap.Error(err))
	}
}

// partitionLocks hands out one mutex per (serviceType, date) key.
type partitionLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (p *partitionLocks) acquire(key string) func() {
	p.mu.Lock()
	lock, ok := p.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		p.locks[key] = lock
	}
	p.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
