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

// TicketSLARepository manages per-ticket SLA tracking records. Breach and
// met stamps are conditional set-if-unset updates so overlapping evaluator
// passes cannot double-fire; the boolean result reports whether this caller
// performed the write.
type TicketSLARepository interface {
	Create(ctx context.Context, sla *domain.TicketSLA) error
	GetByID(ctx context.Context, id string) (*domain.TicketSLA, error)
	GetByTicket(ctx context.Context, ticketID string) (*domain.TicketSLA, error)
	ListActiveDueBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.TicketSLA, error)
	MarkResponseMet(ctx context.Context, id string, at time.Time) (bool, error)
	MarkResolutionMet(ctx context.Context, id string, at time.Time) (bool, error)
	MarkResponseBreached(ctx context.Context, id string, at time.Time) (bool, error)
	MarkResolutionBreached(ctx context.Context, id string, at time.Time) (bool, error)
	AdvanceEscalationLevel(ctx context.Context, id string, from, to int) (bool, error)
	CountBreachedBetween(ctx context.Context, axis domain.BreachType, from, to time.Time) (int, error)
	CountMetBetween(ctx context.Context, axis domain.BreachType, from, to time.Time) (int, error)
	ListOrphaned(ctx context.Context, limit int) ([]domain.TicketSLA, error)
	Delete(ctx context.Context, id string) error
}

type ticketSLARepository struct {
	pool *pgxpool.Pool
}

// NewTicketSLARepository builds repository.
func NewTicketSLARepository(pool *pgxpool.Pool) TicketSLARepository {
	return &ticketSLARepository{pool: pool}
}

const ticketSLAColumns = `id, ticket_id, policy_id, response_due_at, first_response_met_at, response_breached_at,
               resolution_due_at, resolution_met_at, resolution_breached_at, escalation_level,
               paused_at, paused_minutes, created_at, updated_at`

func (r *ticketSLARepository) Create(ctx context.Context, sla *domain.TicketSLA) error {
	const query = `
        INSERT INTO ticket_slas (ticket_id, policy_id, response_due_at, resolution_due_at)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		sla.TicketID,
		sla.PolicyID,
		sla.ResponseDueAt,
		sla.ResolutionDueAt,
	).Scan(&sla.ID, &sla.CreatedAt, &sla.UpdatedAt)
}

func (r *ticketSLARepository) GetByID(ctx context.Context, id string) (*domain.TicketSLA, error) {
	query := fmt.Sprintf(`SELECT %s FROM ticket_slas WHERE id=$1`, ticketSLAColumns)
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketSLARepository) GetByTicket(ctx context.Context, ticketID string) (*domain.TicketSLA, error) {
	query := fmt.Sprintf(`SELECT %s FROM ticket_slas WHERE ticket_id=$1`, ticketSLAColumns)
	return r.fetchSingle(ctx, query, ticketID)
}

func (r *ticketSLARepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.TicketSLA, error) {
	var sla domain.TicketSLA
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&sla.ID,
		&sla.TicketID,
		&sla.PolicyID,
		&sla.ResponseDueAt,
		&sla.FirstResponseMetAt,
		&sla.ResponseBreachedAt,
		&sla.ResolutionDueAt,
		&sla.ResolutionMetAt,
		&sla.ResolutionBreachedAt,
		&sla.EscalationLevel,
		&sla.PausedAt,
		&sla.PausedMinutes,
		&sla.CreatedAt,
		&sla.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &sla, nil
}

// ListActiveDueBefore returns SLA records whose owning ticket is not in a
// terminal status and whose response or resolution deadline falls before the
// cutoff. Already-breached records are included so escalation chains can
// catch up across passes.
func (r *ticketSLARepository) ListActiveDueBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.TicketSLA, error) {
	if limit <= 0 {
		limit = 500
	}
	query := fmt.Sprintf(`
        SELECT %s FROM ticket_slas s
        WHERE EXISTS (
            SELECT 1 FROM tickets t
            WHERE t.id = s.ticket_id AND t.status NOT IN ('RESOLVED','CLOSED')
        )
        AND (
            (s.first_response_met_at IS NULL AND s.response_due_at < $1)
            OR (s.resolution_met_at IS NULL AND s.resolution_due_at < $1)
        )
        ORDER BY s.created_at ASC
        LIMIT %d`, prefixColumns("s", ticketSLAColumns), limit)
	rows, err := r.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTicketSLAs(rows)
}

func (r *ticketSLARepository) MarkResponseMet(ctx context.Context, id string, at time.Time) (bool, error) {
	return r.setIfUnset(ctx, "first_response_met_at", id, at)
}

func (r *ticketSLARepository) MarkResolutionMet(ctx context.Context, id string, at time.Time) (bool, error) {
	return r.setIfUnset(ctx, "resolution_met_at", id, at)
}

func (r *ticketSLARepository) MarkResponseBreached(ctx context.Context, id string, at time.Time) (bool, error) {
	return r.setIfUnset(ctx, "response_breached_at", id, at)
}

func (r *ticketSLARepository) MarkResolutionBreached(ctx context.Context, id string, at time.Time) (bool, error) {
	return r.setIfUnset(ctx, "resolution_breached_at", id, at)
}

func (r *ticketSLARepository) setIfUnset(ctx context.Context, column, id string, at time.Time) (bool, error) {
	query := fmt.Sprintf(`
        UPDATE ticket_slas SET %s=$2, updated_at=NOW()
        WHERE id=$1 AND %s IS NULL`, column, column)
	cmd, err := r.pool.Exec(ctx, query, id, at)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

// AdvanceEscalationLevel moves the watermark with a compare-and-swap so a
// rule fires at most once per breach even under concurrent passes.
func (r *ticketSLARepository) AdvanceEscalationLevel(ctx context.Context, id string, from, to int) (bool, error) {
	const query = `
        UPDATE ticket_slas SET escalation_level=$3, updated_at=NOW()
        WHERE id=$1 AND escalation_level=$2`
	cmd, err := r.pool.Exec(ctx, query, id, from, to)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *ticketSLARepository) CountBreachedBetween(ctx context.Context, axis domain.BreachType, from, to time.Time) (int, error) {
	return r.countBetween(ctx, axisColumn(axis, "breached"), from, to)
}

func (r *ticketSLARepository) CountMetBetween(ctx context.Context, axis domain.BreachType, from, to time.Time) (int, error) {
	return r.countBetween(ctx, axisColumn(axis, "met"), from, to)
}

func axisColumn(axis domain.BreachType, kind string) string {
	if axis == domain.BreachTypeResponse {
		if kind == "met" {
			return "first_response_met_at"
		}
		return "response_breached_at"
	}
	if kind == "met" {
		return "resolution_met_at"
	}
	return "resolution_breached_at"
}

func (r *ticketSLARepository) countBetween(ctx context.Context, column string, from, to time.Time) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM ticket_slas WHERE %s >= $1 AND %s < $2`, column, column)
	var count int
	if err := r.pool.QueryRow(ctx, query, from, to).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// ListOrphaned finds SLA records whose owning ticket no longer exists.
func (r *ticketSLARepository) ListOrphaned(ctx context.Context, limit int) ([]domain.TicketSLA, error) {
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`
        SELECT %s FROM ticket_slas s
        LEFT JOIN tickets t ON t.id = s.ticket_id
        WHERE t.id IS NULL
        LIMIT %d`, prefixColumns("s", ticketSLAColumns), limit)
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTicketSLAs(rows)
}

func (r *ticketSLARepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM ticket_slas WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, col := range parts {
		parts[i] = alias + "." + strings.TrimSpace(col)
	}
	return strings.Join(parts, ", ")
}

func scanTicketSLAs(rows pgx.Rows) ([]domain.TicketSLA, error) {
	var result []domain.TicketSLA
	for rows.Next() {
		var sla domain.TicketSLA
		if err := rows.Scan(
			&sla.ID,
			&sla.TicketID,
			&sla.PolicyID,
			&sla.ResponseDueAt,
			&sla.FirstResponseMetAt,
			&sla.ResponseBreachedAt,
			&sla.ResolutionDueAt,
			&sla.ResolutionMetAt,
			&sla.ResolutionBreachedAt,
			&sla.EscalationLevel,
			&sla.PausedAt,
			&sla.PausedMinutes,
			&sla.CreatedAt,
			&sla.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, sla)
	}
	return result, rows.Err()
}
