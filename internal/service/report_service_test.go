package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/events"
)

func TestGenerateDailyAggregatesPreviousDay(t *testing.T) {
	clk := newFakeClock(time.Date(2024, 3, 2, 0, 30, 0, 0, time.UTC))
	tickets := newFakeTicketRepo(clk.Now)
	slas := newFakeSLARepo(tickets)
	recorder := &eventRecorder{}
	service := NewReportService(tickets, slas, recorder, clk, zap.NewNop())

	inWindow := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	outOfWindow := time.Date(2024, 2, 28, 10, 0, 0, 0, time.UTC)

	require.NoError(t, tickets.Create(context.Background(), &domain.Ticket{
		RequesterID: "user-1",
		CategoryID:  "cat-1",
		Subject:     "a",
		Status:      domain.TicketStatusResolved,
		CreatedAt:   inWindow,
		ResolvedAt:  &inWindow,
	}))
	require.NoError(t, tickets.Create(context.Background(), &domain.Ticket{
		RequesterID: "user-2",
		CategoryID:  "cat-1",
		Subject:     "b",
		Status:      domain.TicketStatusClosed,
		CreatedAt:   outOfWindow,
		ClosedAt:    &inWindow,
	}))

	sla := &domain.TicketSLA{
		TicketID:        "ticket-1",
		PolicyID:        "policy-1",
		ResponseDueAt:   inWindow,
		ResolutionDueAt: inWindow,
	}
	require.NoError(t, slas.Create(context.Background(), sla))
	_, err := slas.MarkResponseBreached(context.Background(), sla.ID, inWindow)
	require.NoError(t, err)
	_, err = slas.MarkResolutionMet(context.Background(), sla.ID, inWindow)
	require.NoError(t, err)

	payload, err := service.GenerateDaily(context.Background())
	require.NoError(t, err)
	require.Equal(t, "2024-03-01", payload.Date)
	require.Equal(t, 1, payload.TicketsCreated)
	require.Equal(t, 1, payload.TicketsResolved)
	require.Equal(t, 1, payload.TicketsClosed)
	require.Equal(t, 1, payload.ResponseBreaches)
	require.Equal(t, 0, payload.ResolutionBreaches)
	require.Equal(t, 0, payload.ResponsesMet)
	require.Equal(t, 1, payload.ResolutionsMet)

	reports := recorder.byType(events.EventDailyReport)
	require.Len(t, reports, 1)
}
