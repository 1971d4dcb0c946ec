package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/clock"
	"github.com/spec-kit/sla-engine/internal/config"
	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/events"
	"github.com/spec-kit/sla-engine/internal/observability"
	"github.com/spec-kit/sla-engine/internal/repository"
)

// SLAService scans SLA tracking records, stamps breaches exactly once, emits
// at-risk warnings and drives the escalation chain for breached records.
type SLAService struct {
	slas       repository.TicketSLARepository
	tickets    repository.TicketRepository
	policies   repository.SLAPolicyRepository
	dispatcher events.Dispatcher
	clock      clock.Clock
	logger     *zap.Logger
	metrics    *observability.Metrics
	cfg        config.SLAConfig

	// riskSeen dedupes at-risk notices when repeat mode is off. It is
	// process-local and resets on restart; the at-risk signal is advisory,
	// so that is an accepted bound, not a correctness issue.
	riskMu   sync.Mutex
	riskSeen map[string]struct{}
}

// SLADependencies bundles collaborators for the SLA service.
type SLADependencies struct {
	SLARepo    repository.TicketSLARepository
	TicketRepo repository.TicketRepository
	PolicyRepo repository.SLAPolicyRepository
	Dispatcher events.Dispatcher
	Clock      clock.Clock
	Logger     *zap.Logger
	Metrics    *observability.Metrics
	Config     config.SLAConfig
}

// BreachRecord describes one newly stamped breach.
type BreachRecord struct {
	TicketSLAID string
	TicketID    string
	BreachType  domain.BreachType
	DueAt       time.Time
	BreachedAt  time.Time
}

// RiskRecord describes one at-risk detection.
type RiskRecord struct {
	TicketSLAID string
	TicketID    string
	RiskType    domain.BreachType
	DueAt       time.Time
}

// EvaluationResult reports one evaluator pass for observability.
type EvaluationResult struct {
	Breached []BreachRecord
	AtRisk   []RiskRecord
}

// NewSLAService constructs the service.
func NewSLAService(deps SLADependencies) *SLAService {
	return &SLAService{
		slas:       deps.SLARepo,
		tickets:    deps.TicketRepo,
		policies:   deps.PolicyRepo,
		dispatcher: deps.Dispatcher,
		clock:      deps.Clock,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
		cfg:        deps.Config,
		riskSeen:   make(map[string]struct{}),
	}
}

// EvaluatePass classifies every active SLA record as pending, at-risk or
// breached. Breach stamping is a set-if-unset update, so re-scans and
// overlapping passes cannot double-fire; records already breached are still
// walked through the escalation chain so delayed rules catch up.
func (s *SLAService) EvaluatePass(ctx context.Context) (*EvaluationResult, error) {
	now := s.clock.Now()
	cutoff := now.Add(s.cfg.AtRiskWindow())
	records, err := s.slas.ListActiveDueBefore(ctx, cutoff, 0)
	if err != nil {
		return nil, err
	}

	result := &EvaluationResult{}
	for i := range records {
		sla := &records[i]
		ticket, err := s.tickets.GetByID(ctx, sla.TicketID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				s.logger.Warn("sla record without ticket, skipping",
					zap.String("ticket_sla_id", sla.ID),
					zap.String("ticket_id", sla.TicketID))
				continue
			}
			return nil, err
		}
		if ticket.IsTerminal() {
			continue
		}
		s.evaluateAxis(ctx, sla, ticket, domain.BreachTypeResponse, now, result)
		s.evaluateAxis(ctx, sla, ticket, domain.BreachTypeResolution, now, result)
	}
	return result, nil
}

func (s *SLAService) evaluateAxis(ctx context.Context, sla *domain.TicketSLA, ticket *domain.Ticket, axis domain.BreachType, now time.Time, result *EvaluationResult) {
	dueAt, metAt, breachedAt := axisFields(sla, axis)
	if metAt != nil {
		return
	}

	if breachedAt == nil && dueAt.Before(now) {
		won, err := s.markBreached(ctx, sla, axis, now)
		if err != nil {
			s.logger.Error("breach stamp failed",
				zap.String("ticket_sla_id", sla.ID),
				zap.String("axis", string(axis)),
				zap.Error(err))
			return
		}
		if won {
			breachedAt = &now
			s.metrics.RecordBreach(string(axis))
			result.Breached = append(result.Breached, BreachRecord{
				TicketSLAID: sla.ID,
				TicketID:    sla.TicketID,
				BreachType:  axis,
				DueAt:       dueAt,
				BreachedAt:  now,
			})
			s.publishEvent(ctx, events.Event{
				Type:     events.EventSLABreached,
				TicketID: sla.TicketID,
				Actor:    events.SystemActor(),
				Payload: events.SLABreachedPayload{
					TicketSLAID: sla.ID,
					AssigneeID:  ticket.AssigneeID,
					BreachType:  axis,
					DueAt:       dueAt,
					BreachedAt:  now,
				},
			})
		} else {
			// lost the race to a concurrent pass; reload the stamp so the
			// escalation walk below still runs
			fresh, err := s.slas.GetByID(ctx, sla.ID)
			if err != nil {
				return
			}
			*sla = *fresh
			breachedAt = sla.BreachedAt(axis)
		}
	}

	if breachedAt != nil {
		if err := s.ProcessBreach(ctx, sla, ticket, axis, now); err != nil {
			s.logger.Error("escalation walk failed",
				zap.String("ticket_sla_id", sla.ID),
				zap.String("axis", string(axis)),
				zap.Error(err))
		}
		return
	}

	// not breached, not met: due inside the lookahead window means at-risk
	if dueAt.Before(now) || !dueAt.Before(now.Add(s.cfg.AtRiskWindow())) {
		return
	}
	if s.shouldWarn(sla.ID, axis) {
		result.AtRisk = append(result.AtRisk, RiskRecord{
			TicketSLAID: sla.ID,
			TicketID:    sla.TicketID,
			RiskType:    axis,
			DueAt:       dueAt,
		})
		s.publishEvent(ctx, events.Event{
			Type:     events.EventSLAAtRisk,
			TicketID: sla.TicketID,
			Actor:    events.SystemActor(),
			Payload: events.SLAAtRiskPayload{
				TicketSLAID: sla.ID,
				AssigneeID:  ticket.AssigneeID,
				RiskType:    axis,
				DueAt:       dueAt,
			},
		})
	}
}

// ProcessBreach walks the policy's ordered escalation chain from the current
// watermark. Rule delays count from the breach stamp; an evaluator that was
// down fires every rule whose delay has since elapsed in one pass. The
// watermark advances with a compare-and-swap; losing the swap means another
// pass already fired the rule.
func (s *SLAService) ProcessBreach(ctx context.Context, sla *domain.TicketSLA, ticket *domain.Ticket, axis domain.BreachType, now time.Time) error {
	_, _, breachedAt := axisFields(sla, axis)
	if breachedAt == nil {
		return nil
	}
	policy, err := s.policies.GetByID(ctx, sla.PolicyID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.logger.Warn("sla policy missing, skipping escalation",
				zap.String("ticket_sla_id", sla.ID),
				zap.String("policy_id", sla.PolicyID))
			return nil
		}
		return err
	}

	elapsed := now.Sub(*breachedAt)
	for i := sla.EscalationLevel; i < len(policy.Rules); i++ {
		rule := policy.Rules[i]
		if elapsed < time.Duration(rule.DelayMinutes)*time.Minute {
			// rules are ordered by delay; nothing later is eligible yet
			break
		}
		won, err := s.slas.AdvanceEscalationLevel(ctx, sla.ID, i, i+1)
		if err != nil {
			return err
		}
		if !won {
			break
		}
		sla.EscalationLevel = i + 1
		if err := s.fireRule(ctx, sla, ticket, axis, rule, i); err != nil {
			return err
		}
	}
	return nil
}

func (s *SLAService) fireRule(ctx context.Context, sla *domain.TicketSLA, ticket *domain.Ticket, axis domain.BreachType, rule domain.EscalationRule, index int) error {
	s.metrics.RecordEscalation()
	previous := ticket.AssigneeID

	if rule.AssigneeID != nil {
		ticket.AssigneeID = rule.AssigneeID
		ticket.LastActivityAt = s.clock.Now()
		if err := s.tickets.Update(ctx, ticket); err != nil {
			return fmt.Errorf("escalation reassign: %w", err)
		}
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketAssigned,
			TicketID: ticket.ID,
			Actor:    events.SystemActor(),
			Payload: events.TicketAssignedPayload{
				AssigneeID:         *rule.AssigneeID,
				PreviousAssigneeID: previous,
			},
		})
	}

	s.logger.Info("escalation rule fired",
		zap.String("ticket_id", ticket.ID),
		zap.String("ticket_sla_id", sla.ID),
		zap.String("axis", string(axis)),
		zap.Int("rule_index", index))

	if rule.Notify {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketEscalated,
			TicketID: ticket.ID,
			Actor:    events.SystemActor(),
			Payload: events.TicketEscalatedPayload{
				TicketSLAID:        sla.ID,
				BreachType:         axis,
				RuleIndex:          index,
				Reason:             fmt.Sprintf("%s SLA breached", axis),
				PreviousAssigneeID: previous,
				NewAssigneeID:      ticket.AssigneeID,
			},
		})
	}
	return nil
}

// shouldWarn applies the at-risk repeat policy.
func (s *SLAService) shouldWarn(slaID string, axis domain.BreachType) bool {
	if s.cfg.AtRiskRepeat {
		return true
	}
	key := slaID + "|" + string(axis)
	s.riskMu.Lock()
	defer s.riskMu.Unlock()
	if _, seen := s.riskSeen[key]; seen {
		return false
	}
	s.riskSeen[key] = struct{}{}
	return true
}

func axisFields(sla *domain.TicketSLA, axis domain.BreachType) (dueAt time.Time, metAt, breachedAt *time.Time) {
	if axis == domain.BreachTypeResponse {
		return sla.ResponseDueAt, sla.FirstResponseMetAt, sla.ResponseBreachedAt
	}
	return sla.ResolutionDueAt, sla.ResolutionMetAt, sla.ResolutionBreachedAt
}

func (s *SLAService) markBreached(ctx context.Context, sla *domain.TicketSLA, axis domain.BreachType, at time.Time) (bool, error) {
	if axis == domain.BreachTypeResponse {
		won, err := s.slas.MarkResponseBreached(ctx, sla.ID, at)
		if won {
			sla.ResponseBreachedAt = &at
		}
		return won, err
	}
	won, err := s.slas.MarkResolutionBreached(ctx, sla.ID, at)
	if won {
		sla.ResolutionBreachedAt = &at
	}
	return won, err
}

func (s *SLAService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.clock.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}
