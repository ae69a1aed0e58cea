package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/queue-service/internal/domain"
)

// TicketRepository encapsulates ticket persistence. The three mutating
// operations are atomic units: each one reads partition-wide aggregate state
// and writes inside a single transaction holding the partition's exclusive
// lock, so positions stay gapless under concurrent callers.
type TicketRepository interface {
	// InsertNext assigns the ticket's queue number (all-time partition max
	// plus one) and position (active count plus one) and persists it.
	InsertNext(ctx context.Context, ticket *domain.Ticket) error
	// AdvanceNext flips the pending ticket with the smallest position to
	// serving and returns it. ErrEmptyQueue when no pending ticket exists.
	AdvanceNext(ctx context.Context, serviceType domain.ServiceType, date string) (*domain.Ticket, error)
	// CompleteAndCompact flips the ticket to completed and decrements the
	// position of every active ticket behind it, in one unit.
	CompleteAndCompact(ctx context.Context, ticketID string, completedAt time.Time) (*domain.Ticket, error)

	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	ListActive(ctx context.Context, serviceType domain.ServiceType, date string) ([]domain.Ticket, error)
	ListByDate(ctx context.Context, date string) ([]domain.Ticket, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Ticket, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository returns a Postgres-backed implementation.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, owner_id, service_type, time_slot, date, queue_number, position, status, created_at, completed_at`

// lockPartition serializes writers of one (service_type, date) line for the
// duration of the transaction.
func lockPartition(ctx context.Context, tx pgx.Tx, serviceType domain.ServiceType, date string) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, string(serviceType)+"|"+date)
	return err
}

func (r *ticketRepository) InsertNext(ctx context.Context, ticket *domain.Ticket) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return mapPgError(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = lockPartition(ctx, tx, ticket.ServiceType, ticket.Date); err != nil {
		return mapPgError(err)
	}

	var activeCount, maxQueueNumber int
	err = tx.QueryRow(ctx, `
        SELECT COUNT(*) FILTER (WHERE status IN ('pending','serving')),
               COALESCE(MAX(queue_number), 0)
        FROM tickets WHERE service_type=$1 AND date=$2`,
		ticket.ServiceType, ticket.Date,
	).Scan(&activeCount, &maxQueueNumber)
	if err != nil {
		return mapPgError(err)
	}

	ticket.QueueNumber = maxQueueNumber + 1
	ticket.Position = activeCount + 1
	ticket.Status = domain.TicketStatusPending

	err = tx.QueryRow(ctx, `
        INSERT INTO tickets (id, owner_id, service_type, time_slot, date, queue_number, position, status)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING created_at`,
		ticket.ID,
		ticket.OwnerID,
		ticket.ServiceType,
		ticket.TimeSlot,
		ticket.Date,
		ticket.QueueNumber,
		ticket.Position,
		ticket.Status,
	).Scan(&ticket.CreatedAt)
	if err != nil {
		return mapPgError(err)
	}

	if err = tx.Commit(ctx); err != nil {
		return mapPgError(err)
	}
	return nil
}

func (r *ticketRepository) AdvanceNext(ctx context.Context, serviceType domain.ServiceType, date string) (*domain.Ticket, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, mapPgError(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = lockPartition(ctx, tx, serviceType, date); err != nil {
		return nil, mapPgError(err)
	}

	var ticket domain.Ticket
	err = tx.QueryRow(ctx, `
        SELECT `+ticketColumns+`
        FROM tickets
        WHERE service_type=$1 AND date=$2 AND status='pending'
        ORDER BY position ASC
        LIMIT 1
        FOR UPDATE`,
		serviceType, date,
	).Scan(ticketFields(&ticket)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = ErrEmptyQueue
			return nil, err
		}
		return nil, mapPgError(err)
	}

	if _, err = tx.Exec(ctx, `UPDATE tickets SET status='serving' WHERE id=$1`, ticket.ID); err != nil {
		return nil, mapPgError(err)
	}
	ticket.Status = domain.TicketStatusServing

	if err = tx.Commit(ctx); err != nil {
		return nil, mapPgError(err)
	}
	return &ticket, nil
}

func (r *ticketRepository) CompleteAndCompact(ctx context.Context, ticketID string, completedAt time.Time) (*domain.Ticket, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, mapPgError(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	// Plain read first to learn the partition, then the partition lock, then
	// the locked re-read. Taking the row lock before the partition lock could
	// deadlock against InsertNext/AdvanceNext, which lock the other way round.
	var serviceType domain.ServiceType
	var date string
	err = tx.QueryRow(ctx, `SELECT service_type, date FROM tickets WHERE id=$1`, ticketID).Scan(&serviceType, &date)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = ErrNotFound
			return nil, err
		}
		return nil, mapPgError(err)
	}

	if err = lockPartition(ctx, tx, serviceType, date); err != nil {
		return nil, mapPgError(err)
	}

	var ticket domain.Ticket
	err = tx.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=$1 FOR UPDATE`, ticketID).
		Scan(ticketFields(&ticket)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = ErrNotFound
			return nil, err
		}
		return nil, mapPgError(err)
	}

	if !ticket.Status.IsActive() {
		err = ErrAlreadyCompleted
		return nil, err
	}

	if _, err = tx.Exec(ctx, `UPDATE tickets SET status='completed', completed_at=$1 WHERE id=$2`, completedAt, ticket.ID); err != nil {
		return nil, mapPgError(err)
	}

	if _, err = tx.Exec(ctx, `
        UPDATE tickets SET position = position - 1
        WHERE service_type=$1 AND date=$2 AND status IN ('pending','serving') AND position > $3`,
		ticket.ServiceType, ticket.Date, ticket.Position,
	); err != nil {
		return nil, mapPgError(err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, mapPgError(err)
	}

	ticket.Status = domain.TicketStatusCompleted
	ticket.CompletedAt = &completedAt
	return &ticket, nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	var ticket domain.Ticket
	err := r.pool.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=$1`, id).
		Scan(ticketFields(&ticket)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, mapPgError(err)
	}
	return &ticket, nil
}

func (r *ticketRepository) ListActive(ctx context.Context, serviceType domain.ServiceType, date string) ([]domain.Ticket, error) {
	rows, err := r.pool.Query(ctx, `
        SELECT `+ticketColumns+`
        FROM tickets
        WHERE service_type=$1 AND date=$2 AND status IN ('pending','serving')
        ORDER BY position ASC`,
		serviceType, date)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) ListByDate(ctx context.Context, date string) ([]domain.Ticket, error) {
	rows, err := r.pool.Query(ctx, `
        SELECT `+ticketColumns+`
        FROM tickets
        WHERE date=$1
        ORDER BY created_at ASC`,
		date)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Ticket, error) {
	rows, err := r.pool.Query(ctx, `
        SELECT `+ticketColumns+`
        FROM tickets
        WHERE owner_id=$1
        ORDER BY created_at DESC`,
		ownerID)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()
	return scanTickets(rows)
}

func ticketFields(t *domain.Ticket) []any {
	return []any{
		&t.ID,
		&t.OwnerID,
		&t.ServiceType,
		&t.TimeSlot,
		&t.Date,
		&t.QueueNumber,
		&t.Position,
		&t.Status,
		&t.CreatedAt,
		&t.CompletedAt,
	}
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(ticketFields(&ticket)...); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}

// mapPgError surfaces serialization and deadlock failures as ErrConflict so
// the engine can retry them.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return ErrConflict
		}
	}
	return err
}
