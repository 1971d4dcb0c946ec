package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/clock"
	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/events"
	"github.com/spec-kit/sla-engine/internal/repository"
)

// ReportService aggregates the previous day's ticket and SLA activity into a
// daily report event.
type ReportService struct {
	tickets    repository.TicketRepository
	slas       repository.TicketSLARepository
	dispatcher events.Dispatcher
	clock      clock.Clock
	logger     *zap.Logger
}

// NewReportService constructs the service.
func NewReportService(tickets repository.TicketRepository, slas repository.TicketSLARepository, dispatcher events.Dispatcher, clk clock.Clock, logger *zap.Logger) *ReportService {
	return &ReportService{
		tickets:    tickets,
		slas:       slas,
		dispatcher: dispatcher,
		clock:      clk,
		logger:     logger,
	}
}

// GenerateDaily aggregates the UTC day before the current one and publishes
// the report event. Counts come straight from the store, so a rerun for the
// same day produces the same numbers.
func (s *ReportService) GenerateDaily(ctx context.Context) (*events.DailyReportPayload, error) {
	now := s.clock.Now().UTC()
	to := now.Truncate(24 * time.Hour)
	from := to.Add(-24 * time.Hour)

	created, err := s.tickets.CountCreatedBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("report created count: %w", err)
	}
	resolved, err := s.tickets.CountResolvedBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("report resolved count: %w", err)
	}
	closed, err := s.tickets.CountClosedBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("report closed count: %w", err)
	}
	responseBreaches, err := s.slas.CountBreachedBetween(ctx, domain.BreachTypeResponse, from, to)
	if err != nil {
		return nil, fmt.Errorf("report response breach count: %w", err)
	}
	resolutionBreaches, err := s.slas.CountBreachedBetween(ctx, domain.BreachTypeResolution, from, to)
	if err != nil {
		return nil, fmt.Errorf("report resolution breach count: %w", err)
	}
	responsesMet, err := s.slas.CountMetBetween(ctx, domain.BreachTypeResponse, from, to)
	if err != nil {
		return nil, fmt.Errorf("report response met count: %w", err)
	}
	resolutionsMet, err := s.slas.CountMetBetween(ctx, domain.BreachTypeResolution, from, to)
	if err != nil {
		return nil, fmt.Errorf("report resolution met count: %w", err)
	}

	payload := events.DailyReportPayload{
		Date:               from.Format("2006-01-02"),
		TicketsCreated:     created,
		TicketsResolved:    resolved,
		TicketsClosed:      closed,
		ResponseBreaches:   responseBreaches,
		ResolutionBreaches: resolutionBreaches,
		ResponsesMet:       responsesMet,
		ResolutionsMet:     resolutionsMet,
	}

	s.logger.Info("daily report generated",
		zap.String("date", payload.Date),
		zap.Int("tickets_created", payload.TicketsCreated),
		zap.Int("tickets_resolved", payload.TicketsResolved),
		zap.Int("response_breaches", payload.ResponseBreaches),
		zap.Int("resolution_breaches", payload.ResolutionBreaches))

	if s.dispatcher != nil {
		_ = s.dispatcher.Publish(ctx, events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventDailyReport,
			Actor:     events.SystemActor(),
			Timestamp: s.clock.Now(),
			Payload:   payload,
		})
	}
	return &payload, nil
}
