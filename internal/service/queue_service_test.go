package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/config"
	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/events"
	"github.com/spec-kit/queue-service/internal/repository"
	"github.com/spec-kit/queue-service/pkg/errorutil"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []events.QueueEvent
}

func (p *capturePublisher) Publish(_ context.Context, event events.QueueEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) types() []events.QueueEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.QueueEventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func newTestService() (*QueueService, *capturePublisher) {
	publisher := &capturePublisher{}
	svc := NewQueueService(config.QueueConfig{}, QueueDependencies{
		TicketRepo: repository.NewMemoryTicketRepository(),
		Publisher:  publisher,
		Logger:     zap.NewNop(),
	})
	return svc, publisher
}

func codeOf(t *testing.T, err error) string {
	t.Helper()
	var domainErr *errorutil.DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	return domainErr.Code
}

var (
	user  = Identity{UserID: "user-1", Role: domain.RoleUser}
	staff = Identity{UserID: "staff-1", Role: domain.RoleStaff}
)

func TestBookAssignsSequentialNumbersAndPositions(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		ticket, message, err := svc.Book(ctx, user, BookInput{
			ServiceType: domain.ServiceBank,
			TimeSlot:    "10:00",
			Date:        "2026-08-28",
		})
		if err != nil {
			t.Fatalf("book %d: %v", i, err)
		}
		if ticket.QueueNumber != i {
			t.Errorf("booking %d: queue number = %d, want %d", i, ticket.QueueNumber, i)
		}
		if ticket.Position != i {
			t.Errorf("booking %d: position = %d, want %d", i, ticket.Position, i)
		}
		if ticket.Status != domain.TicketStatusPending {
			t.Errorf("booking %d: status = %q, want pending", i, ticket.Status)
		}
		if !strings.Contains(message, "#") {
			t.Errorf("confirmation message %q missing queue number", message)
		}
	}
}

func TestBookPartitionsAreIndependent(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	first, _, err := svc.Book(ctx, user, BookInput{ServiceType: domain.ServiceBank, TimeSlot: "10:00", Date: "2026-08-28"})
	if err != nil {
		t.Fatal(err)
	}
	other, _, err := svc.Book(ctx, user, BookInput{ServiceType: domain.ServiceDMV, TimeSlot: "10:00", Date: "2026-08-28"})
	if err != nil {
		t.Fatal(err)
	}
	nextDay, _, err := svc.Book(ctx, user, BookInput{ServiceType: domain.ServiceBank, TimeSlot: "10:00", Date: "2026-08-29"})
	if err != nil {
		t.Fatal(err)
	}

	if first.QueueNumber != 1 || other.QueueNumber != 1 || nextDay.QueueNumber != 1 {
		t.Errorf("each partition should start at 1, got %d, %d, %d",
			first.QueueNumber, other.QueueNumber, nextDay.QueueNumber)
	}
}

func TestBookValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	tests := []struct {
		name     string
		identity Identity
		input    BookInput
		wantCode string
	}{
		{"missing identity", Identity{}, BookInput{ServiceType: domain.ServiceBank, TimeSlot: "10:00"}, "UNAUTHORIZED"},
		{"unknown service type", user, BookInput{ServiceType: "Barber Shop", TimeSlot: "10:00"}, "VALIDATION_FAILED"},
		{"empty time slot", user, BookInput{ServiceType: domain.ServiceBank}, "VALIDATION_FAILED"},
		{"malformed date", user, BookInput{ServiceType: domain.ServiceBank, TimeSlot: "10:00", Date: "28/08/2026"}, "VALIDATION_FAILED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.Book(ctx, tt.identity, tt.input)
			if err == nil {
				t.Fatal("expected error")
			}
			if code := codeOf(t, err); code != tt.wantCode {
				t.Errorf("code = %q, want %q", code, tt.wantCode)
			}
		})
	}
}

func TestBookDefaultsToToday(t *testing.T) {
	svc, _ := newTestService()

	ticket, _, err := svc.Book(context.Background(), user, BookInput{ServiceType: domain.ServiceHospital, TimeSlot: "09:00"})
	if err != nil {
		t.Fatal(err)
	}
	if ticket.Date != domain.Today() {
		t.Errorf("date = %q, want today %q", ticket.Date, domain.Today())
	}
}

func TestAdvanceServesOldestPending(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, _, err := svc.Book(ctx, user, BookInput{ServiceType: domain.ServiceBank, TimeSlot: "10:00", Date: "2026-08-28"}); err != nil {
			t.Fatal(err)
		}
	}

	first, err := svc.Advance(ctx, staff, domain.ServiceBank, "2026-08-28")
	if err != nil {
		t.Fatal(err)
	}
	if first.QueueNumber != 1 || first.Status != domain.TicketStatusServing {
		t.Errorf("first advance: number %d status %q, want 1 serving", first.QueueNumber, first.Status)
	}

	// A second advance before any completion serves the next pending ticket.
	second, err := svc.Advance(ctx, staff, domain.ServiceBank, "2026-08-28")
	if err != nil {
		t.Fatal(err)
	}
	if second.QueueNumber != 2 {
		t.Errorf("second advance: number %d, want 2", second.QueueNumber)
	}
}

func TestAdvanceRequiresStaff(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Advance(context.Background(), user, domain.ServiceBank, "2026-08-28")
	if code := codeOf(t, err); code != "FORBIDDEN" {
		t.Errorf("code = %q, want FORBIDDEN", code)
	}
}

func TestAdvanceEmptyQueue(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Advance(context.Background(), staff, domain.ServiceBank, "2026-08-28")
	if code := codeOf(t, err); code != "EMPTY_QUEUE" {
		t.Errorf("code = %q, want EMPTY_QUEUE", code)
	}
}

func TestCompleteCompactsPositions(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	var tickets []*domain.Ticket
	for i := 0; i < 3; i++ {
		ticket, _, err := svc.Book(ctx, user, BookInput{ServiceType: domain.ServiceBank, TimeSlot: "10:00", Date: "2026-08-28"})
		if err != nil {
			t.Fatal(err)
		}
		tickets = append(tickets, ticket)
	}

	if _, err := svc.Advance(ctx, staff, domain.ServiceBank, "2026-08-28"); err != nil {
		t.Fatal(err)
	}
	if err := svc.Complete(ctx, staff, tickets[0].ID); err != nil {
		t.Fatal(err)
	}

	active, err := svc.Snapshot(ctx, domain.ServiceBank, "2026-08-28")
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 2 {
		t.Fatalf("active = %d, want 2", len(active))
	}
	for i, ticket := range active {
		if ticket.Position != i+1 {
			t.Errorf("active[%d].Position = %d, want %d", i, ticket.Position, i+1)
		}
	}
	// Queue numbers never shift when positions compact.
	if active[0].QueueNumber != 2 || active[1].QueueNumber != 3 {
		t.Errorf("queue numbers = %d, %d, want 2, 3", active[0].QueueNumber, active[1].QueueNumber)
	}
}

func TestCompletePendingDirectly(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	ticket, _, err := svc.Book(ctx, user, BookInput{ServiceType: domain.ServiceBank, TimeSlot: "10:00", Date: "2026-08-28"})
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Complete(ctx, staff, ticket.ID); err != nil {
		t.Errorf("completing a pending ticket without advance: %v", err)
	}
}

func TestCompleteTwiceIsRejected(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	ticket, _, err := svc.Book(ctx, user, BookInput{ServiceType: domain.ServiceBank, TimeSlot: "10:00", Date: "2026-08-28"})
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Complete(ctx, staff, ticket.ID); err != nil {
		t.Fatal(err)
	}

	err = svc.Complete(ctx, staff, ticket.ID)
	if code := codeOf(t, err); code != "ALREADY_COMPLETED" {
		t.Errorf("code = %q, want ALREADY_COMPLETED", code)
	}
}

func TestCompleteUnknownTicket(t *testing.T) {
	svc, _ := newTestService()

	err := svc.Complete(context.Background(), staff, "no-such-ticket")
	if code := codeOf(t, err); code != "NOT_FOUND" {
		t.Errorf("code = %q, want NOT_FOUND", code)
	}
}

func TestQueueNumbersNeverReused(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	first, _, err := svc.Book(ctx, user, BookInput{ServiceType: domain.ServiceBank, TimeSlot: "10:00", Date: "2026-08-28"})
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Complete(ctx, staff, first.ID); err != nil {
		t.Fatal(err)
	}

	// The line is empty again, but the next booking must not see number 1.
	second, _, err := svc.Book(ctx, user, BookInput{ServiceType: domain.ServiceBank, TimeSlot: "10:30", Date: "2026-08-28"})
	if err != nil {
		t.Fatal(err)
	}
	if second.QueueNumber != 2 {
		t.Errorf("queue number after completion = %d, want 2", second.QueueNumber)
	}
	if second.Position != 1 {
		t.Errorf("position after completion = %d, want 1", second.Position)
	}
}

func TestConcurrentBookingsStayGapless(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	const n = 50

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := svc.Book(ctx, user, BookInput{ServiceType: domain.ServiceDMV, TimeSlot: "10:00", Date: "2026-08-28"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}

	active, err := svc.Snapshot(ctx, domain.ServiceDMV, "2026-08-28")
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != n {
		t.Fatalf("active = %d, want %d", len(active), n)
	}

	seenPositions := make(map[int]bool, n)
	seenNumbers := make(map[int]bool, n)
	for _, ticket := range active {
		seenPositions[ticket.Position] = true
		seenNumbers[ticket.QueueNumber] = true
	}
	for i := 1; i <= n; i++ {
		if !seenPositions[i] {
			t.Errorf("missing position %d", i)
		}
		if !seenNumbers[i] {
			t.Errorf("missing queue number %d", i)
		}
	}
}

func TestEventsFollowOperationOrder(t *testing.T) {
	svc, publisher := newTestService()
	ctx := context.Background()

	ticket, _, err := svc.Book(ctx, user, BookInput{ServiceType: domain.ServiceBank, TimeSlot: "10:00", Date: "2026-08-28"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Advance(ctx, staff, domain.ServiceBank, "2026-08-28"); err != nil {
		t.Fatal(err)
	}
	if err := svc.Complete(ctx, staff, ticket.ID); err != nil {
		t.Fatal(err)
	}

	want := []events.QueueEventType{events.EventBooked, events.EventNowServing, events.EventCompleted}
	got := publisher.types()
	if len(got) != len(want) {
		t.Fatalf("event count = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestListLinesRequiresStaff(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.ListLines(context.Background(), user, "2026-08-28")
	if code := codeOf(t, err); code != "FORBIDDEN" {
		t.Errorf("code = %q, want FORBIDDEN", code)
	}
}

func TestListUserTicketsReturnsOwnOnly(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	other := Identity{UserID: "user-2", Role: domain.RoleUser}
	if _, _, err := svc.Book(ctx, user, BookInput{ServiceType: domain.ServiceBank, TimeSlot: "10:00", Date: "2026-08-28"}); err != nil {
		t.Fatal(err)
	}
	if _, _, err := svc.Book(ctx, other, BookInput{ServiceType: domain.ServiceBank, TimeSlot: "10:30", Date: "2026-08-28"}); err != nil {
		t.Fatal(err)
	}

	mine, err := svc.ListUserTickets(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 1 || mine[0].OwnerID != user.UserID {
		t.Errorf("expected exactly my booking, got %d tickets", len(mine))
	}
}
