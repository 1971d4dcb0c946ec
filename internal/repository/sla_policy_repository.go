package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// SLAPolicyRepository manages shared, read-mostly SLA policies. Escalation
// rules are stored as an ordered JSONB array on the policy row.
type SLAPolicyRepository interface {
	Create(ctx context.Context, policy *domain.SLAPolicy) error
	GetByID(ctx context.Context, id string) (*domain.SLAPolicy, error)
	List(ctx context.Context) ([]domain.SLAPolicy, error)
}

type slaPolicyRepository struct {
	pool *pgxpool.Pool
}

// NewSLAPolicyRepository builds repository.
func NewSLAPolicyRepository(pool *pgxpool.Pool) SLAPolicyRepository {
	return &slaPolicyRepository{pool: pool}
}

func (r *slaPolicyRepository) Create(ctx context.Context, policy *domain.SLAPolicy) error {
	rules, err := json.Marshal(policy.Rules)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO sla_policies (name, priority, response_minutes, resolution_minutes, business_hours_only, rules)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		policy.Name,
		policy.Priority,
		policy.ResponseMinutes,
		policy.ResolutionMinutes,
		policy.BusinessHoursOnly,
		rules,
	).Scan(&policy.ID, &policy.CreatedAt, &policy.UpdatedAt)
}

func (r *slaPolicyRepository) GetByID(ctx context.Context, id string) (*domain.SLAPolicy, error) {
	const query = `
        SELECT id, name, priority, response_minutes, resolution_minutes, business_hours_only, rules, created_at, updated_at
        FROM sla_policies WHERE id=$1`
	var policy domain.SLAPolicy
	var rules []byte
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&policy.ID,
		&policy.Name,
		&policy.Priority,
		&policy.ResponseMinutes,
		&policy.ResolutionMinutes,
		&policy.BusinessHoursOnly,
		&rules,
		&policy.CreatedAt,
		&policy.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(rules) > 0 {
		if err := json.Unmarshal(rules, &policy.Rules); err != nil {
			return nil, err
		}
	}
	return &policy, nil
}

func (r *slaPolicyRepository) List(ctx context.Context) ([]domain.SLAPolicy, error) {
	const query = `
        SELECT id, name, priority, response_minutes, resolution_minutes, business_hours_only, rules, created_at, updated_at
        FROM sla_policies ORDER BY name ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SLAPolicy
	for rows.Next() {
		var policy domain.SLAPolicy
		var rules []byte
		if err := rows.Scan(
			&policy.ID,
			&policy.Name,
			&policy.Priority,
			&policy.ResponseMinutes,
			&policy.ResolutionMinutes,
			&policy.BusinessHoursOnly,
			&rules,
			&policy.CreatedAt,
			&policy.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if len(rules) > 0 {
			if err := json.Unmarshal(rules, &policy.Rules); err != nil {
				return nil, err
			}
		}
		result = append(result, policy)
	}
	return result, rows.Err()
}
