package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// TicketFilter captures predicate queries used by the scheduler loops and the
// ops API.
type TicketFilter struct {
	RequesterID        *string
	CategoryID         *string
	AssigneeID         *string
	Unassigned         bool
	Statuses           []domain.TicketStatus
	Priorities         []domain.TicketPriority
	CreatedBefore      *time.Time
	CreatedFrom        *time.Time
	CreatedTo          *time.Time
	UpdatedBefore      *time.Time
	LastActivityBefore *time.Time
	FirstResponseUnset bool
	Limit              int
	Offset             int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetBySequenceKey(ctx context.Context, key string) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	NextDailySequence(ctx context.Context, day string) (int, error)
	CountCreatedBetween(ctx context.Context, from, to time.Time) (int, error)
	CountResolvedBetween(ctx context.Context, from, to time.Time) (int, error)
	CountClosedBetween(ctx context.Context, from, to time.Time) (int, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, sequence_key, requester_id, category_id, assignee_id,
               subject, description, status, priority, tags,
               first_response_at, resolved_at, closed_at, last_activity_at, created_at, updated_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (sequence_key, requester_id, category_id, assignee_id, subject, description, status, priority, tags, last_activity_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW())
        RETURNING id, last_activity_at, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.SequenceKey,
		ticket.RequesterID,
		ticket.CategoryID,
		ticket.AssigneeID,
		ticket.Subject,
		ticket.Description,
		ticket.Status,
		ticket.Priority,
		ticket.Tags,
	).Scan(&ticket.ID, &ticket.LastActivityAt, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET category_id=$1, assignee_id=$2, subject=$3, description=$4,
            status=$5, priority=$6, tags=$7, first_response_at=$8, resolved_at=$9, closed_at=$10,
            last_activity_at=$11, updated_at=NOW()
        WHERE id=$12`
	cmd, err := r.pool.Exec(ctx, query,
		ticket.CategoryID,
		ticket.AssigneeID,
		ticket.Subject,
		ticket.Description,
		ticket.Status,
		ticket.Priority,
		ticket.Tags,
		ticket.FirstResponseAt,
		ticket.ResolvedAt,
		ticket.ClosedAt,
		ticket.LastActivityAt,
		ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE id=$1`, ticketColumns)
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) GetBySequenceKey(ctx context.Context, key string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE sequence_key=$1`, ticketColumns)
	return r.fetchSingle(ctx, query, key)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&ticket.ID,
		&ticket.SequenceKey,
		&ticket.RequesterID,
		&ticket.CategoryID,
		&ticket.AssigneeID,
		&ticket.Subject,
		&ticket.Description,
		&ticket.Status,
		&ticket.Priority,
		&ticket.Tags,
		&ticket.FirstResponseAt,
		&ticket.ResolvedAt,
		&ticket.ClosedAt,
		&ticket.LastActivityAt,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	base := fmt.Sprintf(`SELECT %s FROM tickets`, ticketColumns)
	clauses := []string{"1=1"}
	args := []any{}

	if filter.RequesterID != nil {
		args = append(args, *filter.RequesterID)
		clauses = append(clauses, fmt.Sprintf("requester_id=$%d", len(args)))
	}
	if filter.CategoryID != nil {
		args = append(args, *filter.CategoryID)
		clauses = append(clauses, fmt.Sprintf("category_id=$%d", len(args)))
	}
	if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		clauses = append(clauses, fmt.Sprintf("assignee_id=$%d", len(args)))
	}
	if filter.Unassigned {
		clauses = append(clauses, "assignee_id IS NULL")
	}
	if filter.FirstResponseUnset {
		clauses = append(clauses, "first_response_at IS NULL")
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.CreatedBefore != nil {
		args = append(args, *filter.CreatedBefore)
		clauses = append(clauses, fmt.Sprintf("created_at < $%d", len(args)))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if filter.UpdatedBefore != nil {
		args = append(args, *filter.UpdatedBefore)
		clauses = append(clauses, fmt.Sprintf("updated_at < $%d", len(args)))
	}
	if filter.LastActivityBefore != nil {
		args = append(args, *filter.LastActivityBefore)
		clauses = append(clauses, fmt.Sprintf("last_activity_at < $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY created_at ASC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

// NextDailySequence allocates the next human-readable ticket number for the
// given day. The upsert keeps the counter race-free across instances.
func (r *ticketRepository) NextDailySequence(ctx context.Context, day string) (int, error) {
	const query = `
        INSERT INTO ticket_sequences (day, value) VALUES ($1, 1)
        ON CONFLICT (day) DO UPDATE SET value = ticket_sequences.value + 1
        RETURNING value`
	var value int
	if err := r.pool.QueryRow(ctx, query, day).Scan(&value); err != nil {
		return 0, err
	}
	return value, nil
}

func (r *ticketRepository) CountCreatedBetween(ctx context.Context, from, to time.Time) (int, error) {
	return r.countBetween(ctx, "created_at", from, to)
}

func (r *ticketRepository) CountResolvedBetween(ctx context.Context, from, to time.Time) (int, error) {
	return r.countBetween(ctx, "resolved_at", from, to)
}

func (r *ticketRepository) CountClosedBetween(ctx context.Context, from, to time.Time) (int, error) {
	return r.countBetween(ctx, "closed_at", from, to)
}

func (r *ticketRepository) countBetween(ctx context.Context, column string, from, to time.Time) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM tickets WHERE %s >= $1 AND %s < $2`, column, column)
	var count int
	if err := r.pool.QueryRow(ctx, query, from, to).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(
			&ticket.ID,
			&ticket.SequenceKey,
			&ticket.RequesterID,
			&ticket.CategoryID,
			&ticket.AssigneeID,
			&ticket.Subject,
			&ticket.Description,
			&ticket.Status,
			&ticket.Priority,
			&ticket.Tags,
			&ticket.FirstResponseAt,
			&ticket.ResolvedAt,
			&ticket.ClosedAt,
			&ticket.LastActivityAt,
			&ticket.CreatedAt,
			&ticket.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}
