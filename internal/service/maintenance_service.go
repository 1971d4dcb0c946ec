package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/clock"
	"github.com/spec-kit/sla-engine/internal/config"
	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/events"
	"github.com/spec-kit/sla-engine/internal/repository"
)

// MaintenanceService runs the background hygiene sweeps: idle and stale
// detection, default-assignee auto-assignment, stuck-ticket recovery and
// orphaned SLA-record cleanup.
type MaintenanceService struct {
	tickets    repository.TicketRepository
	categories repository.CategoryRepository
	slas       repository.TicketSLARepository
	ticketSvc  *TicketService
	dispatcher events.Dispatcher
	clock      clock.Clock
	logger     *zap.Logger
	cfg        config.SchedulerConfig
}

// MaintenanceDependencies bundles collaborators for the maintenance service.
type MaintenanceDependencies struct {
	TicketRepo    repository.TicketRepository
	CategoryRepo  repository.CategoryRepository
	SLARepo       repository.TicketSLARepository
	TicketService *TicketService
	Dispatcher    events.Dispatcher
	Clock         clock.Clock
	Logger        *zap.Logger
	Config        config.SchedulerConfig
}

// NewMaintenanceService constructs the service.
func NewMaintenanceService(deps MaintenanceDependencies) *MaintenanceService {
	return &MaintenanceService{
		tickets:    deps.TicketRepo,
		categories: deps.CategoryRepo,
		slas:       deps.SLARepo,
		ticketSvc:  deps.TicketService,
		dispatcher: deps.Dispatcher,
		clock:      deps.Clock,
		logger:     deps.Logger,
		cfg:        deps.Config,
	}
}

// SweepIdle flags tickets that never received a first response within the
// idle threshold.
func (s *MaintenanceService) SweepIdle(ctx context.Context) (int, error) {
	cutoff := s.clock.Now().Add(-time.Duration(s.cfg.IdleThresholdMinutes) * time.Minute)
	tickets, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		Statuses:           []domain.TicketStatus{domain.TicketStatusNew, domain.TicketStatusOpen, domain.TicketStatusReopened},
		FirstResponseUnset: true,
		CreatedBefore:      &cutoff,
		Limit:              sweepBatchSize,
	})
	if err != nil {
		return 0, fmt.Errorf("idle sweep query: %w", err)
	}
	for i := range tickets {
		ticket := &tickets[i]
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketIdle,
			TicketID: ticket.ID,
			Actor:    events.SystemActor(),
			Payload: events.TicketIdlePayload{
				AssigneeID: ticket.AssigneeID,
				CreatedAt:  ticket.CreatedAt,
			},
		})
	}
	return len(tickets), nil
}

// SweepStale flags non-terminal tickets without any activity past the stale
// threshold.
func (s *MaintenanceService) SweepStale(ctx context.Context) (int, error) {
	cutoff := s.clock.Now().Add(-time.Duration(s.cfg.StaleThresholdHours) * time.Hour)
	tickets, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		Statuses: []domain.TicketStatus{
			domain.TicketStatusNew,
			domain.TicketStatusOpen,
			domain.TicketStatusPending,
			domain.TicketStatusReopened,
		},
		LastActivityBefore: &cutoff,
		Limit:              sweepBatchSize,
	})
	if err != nil {
		return 0, fmt.Errorf("stale sweep query: %w", err)
	}
	for i := range tickets {
		ticket := &tickets[i]
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketStale,
			TicketID: ticket.ID,
			Actor:    events.SystemActor(),
			Payload: events.TicketStalePayload{
				AssigneeID:     ticket.AssigneeID,
				LastActivityAt: ticket.LastActivityAt,
			},
		})
	}
	return len(tickets), nil
}

// AutoAssign routes unassigned NEW tickets to their category's default
// assignee, bounded by the configured batch per pass.
func (s *MaintenanceService) AutoAssign(ctx context.Context) (int, error) {
	categories, err := s.categories.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("auto-assign categories: %w", err)
	}

	budget := s.cfg.AutoAssignBatch
	assigned := 0
	for i := range categories {
		category := &categories[i]
		if category.DefaultAssigneeID == nil || budget <= 0 {
			continue
		}
		tickets, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{
			CategoryID: &category.ID,
			Unassigned: true,
			Statuses:   []domain.TicketStatus{domain.TicketStatusNew},
			Limit:      budget,
		})
		if err != nil {
			return assigned, fmt.Errorf("auto-assign query: %w", err)
		}
		for j := range tickets {
			if _, err := s.ticketSvc.AssignTicket(ctx, tickets[j].ID, *category.DefaultAssigneeID, events.SystemActor()); err != nil {
				s.logger.Warn("auto-assign failed",
					zap.String("ticket_id", tickets[j].ID),
					zap.String("category_id", category.ID),
					zap.Error(err))
				continue
			}
			assigned++
			budget--
		}
	}
	return assigned, nil
}

// RecoverStuck reopens tickets that sat in PENDING past the stuck threshold
// without any update, so they rejoin the active queue.
func (s *MaintenanceService) RecoverStuck(ctx context.Context) (int, error) {
	cutoff := s.clock.Now().Add(-time.Duration(s.cfg.StuckPendingMinutes) * time.Minute)
	tickets, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		Statuses:      []domain.TicketStatus{domain.TicketStatusPending},
		UpdatedBefore: &cutoff,
		Limit:         sweepBatchSize,
	})
	if err != nil {
		return 0, fmt.Errorf("stuck recovery query: %w", err)
	}
	recovered := 0
	for i := range tickets {
		note := fmt.Sprintf("automatically reopened after %d minutes pending without updates", s.cfg.StuckPendingMinutes)
		if _, err := s.ticketSvc.UpdateStatus(ctx, tickets[i].ID, domain.TicketStatusOpen, note, events.SystemActor()); err != nil {
			s.logger.Warn("stuck recovery failed",
				zap.String("ticket_id", tickets[i].ID),
				zap.Error(err))
			continue
		}
		recovered++
	}
	return recovered, nil
}

// CleanupOrphans deletes SLA records whose ticket no longer exists.
func (s *MaintenanceService) CleanupOrphans(ctx context.Context) (int, error) {
	orphans, err := s.slas.ListOrphaned(ctx, sweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("orphan scan: %w", err)
	}
	removed := 0
	for i := range orphans {
		if err := s.slas.Delete(ctx, orphans[i].ID); err != nil {
			s.logger.Warn("orphan delete failed",
				zap.String("ticket_sla_id", orphans[i].ID),
				zap.Error(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		s.logger.Info("orphaned sla records removed", zap.Int("count", removed))
	}
	return removed, nil
}

// sweepBatchSize bounds how many rows one sweep pass touches.
const sweepBatchSize = 200

func (s *MaintenanceService) publishEvent(ctx context.Context, event events.Event) {
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
