package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/config"
	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/events"
)

type maintenanceFixture struct {
	service    *MaintenanceService
	tickets    *fakeTicketRepo
	categories *fakeCategoryRepo
	slas       *fakeSLARepo
	recorder   *eventRecorder
	clock      *fakeClock
}

func newMaintenanceFixture(t *testing.T) *maintenanceFixture {
	t.Helper()
	clk := newFakeClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	tickets := newFakeTicketRepo(clk.Now)
	messages := newFakeMessageRepo()
	categories := newFakeCategoryRepo()
	policies := newFakePolicyRepo()
	slas := newFakeSLARepo(tickets)
	recorder := &eventRecorder{}

	ticketSvc := NewTicketService(TicketDependencies{
		TicketRepo:   tickets,
		MessageRepo:  messages,
		CategoryRepo: categories,
		PolicyRepo:   policies,
		SLARepo:      slas,
		Dispatcher:   recorder,
		Clock:        clk,
	})
	service := NewMaintenanceService(MaintenanceDependencies{
		TicketRepo:    tickets,
		CategoryRepo:  categories,
		SLARepo:       slas,
		TicketService: ticketSvc,
		Dispatcher:    recorder,
		Clock:         clk,
		Logger:        zap.NewNop(),
		Config: config.SchedulerConfig{
			AutoAssignBatch:      50,
			IdleThresholdMinutes: 30,
			StaleThresholdHours:  24,
			StuckPendingMinutes:  5,
		},
	})
	return &maintenanceFixture{
		service:    service,
		tickets:    tickets,
		categories: categories,
		slas:       slas,
		recorder:   recorder,
		clock:      clk,
	}
}

func (f *maintenanceFixture) seedTicket(t *testing.T, status domain.TicketStatus) *domain.Ticket {
	t.Helper()
	ticket := &domain.Ticket{
		RequesterID: "user-1",
		CategoryID:  "cat-1",
		Subject:     "help",
		Status:      status,
		Priority:    domain.TicketPriorityMedium,
	}
	require.NoError(t, f.tickets.Create(context.Background(), ticket))
	return ticket
}

func TestSweepIdleFlagsUnansweredTickets(t *testing.T) {
	f := newMaintenanceFixture(t)
	f.seedTicket(t, domain.TicketStatusNew)

	f.clock.Advance(31 * time.Minute)
	count, err := f.service.SweepIdle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.Len(t, f.recorder.byType(events.EventTicketIdle), 1)
}

func TestSweepIdleIgnoresAnsweredTickets(t *testing.T) {
	f := newMaintenanceFixture(t)
	ticket := f.seedTicket(t, domain.TicketStatusOpen)
	now := f.clock.Now()
	ticket.FirstResponseAt = &now
	require.NoError(t, f.tickets.Update(context.Background(), ticket))

	f.clock.Advance(31 * time.Minute)
	count, err := f.service.SweepIdle(context.Background())
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestSweepIdleIgnoresFreshTickets(t *testing.T) {
	f := newMaintenanceFixture(t)
	f.seedTicket(t, domain.TicketStatusNew)

	f.clock.Advance(10 * time.Minute)
	count, err := f.service.SweepIdle(context.Background())
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestSweepStaleFlagsInactiveTickets(t *testing.T) {
	f := newMaintenanceFixture(t)
	f.seedTicket(t, domain.TicketStatusOpen)

	f.clock.Advance(25 * time.Hour)
	count, err := f.service.SweepStale(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.Len(t, f.recorder.byType(events.EventTicketStale), 1)
}

func TestSweepStaleSkipsTerminalTickets(t *testing.T) {
	f := newMaintenanceFixture(t)
	f.seedTicket(t, domain.TicketStatusClosed)

	f.clock.Advance(25 * time.Hour)
	count, err := f.service.SweepStale(context.Background())
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestAutoAssignRoutesToDefaultAssignee(t *testing.T) {
	f := newMaintenanceFixture(t)
	assignee := "agent-default"
	require.NoError(t, f.categories.Create(context.Background(), &domain.Category{
		ID:                "cat-1",
		Name:              "billing",
		DefaultAssigneeID: &assignee,
		IsActive:          true,
	}))
	ticket := f.seedTicket(t, domain.TicketStatusNew)

	count, err := f.service.AutoAssign(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, count)

	updated, err := f.tickets.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.AssigneeID)
	require.Equal(t, assignee, *updated.AssigneeID)
}

func TestAutoAssignSkipsCategoriesWithoutDefault(t *testing.T) {
	f := newMaintenanceFixture(t)
	require.NoError(t, f.categories.Create(context.Background(), &domain.Category{
		ID:       "cat-1",
		Name:     "billing",
		IsActive: true,
	}))
	f.seedTicket(t, domain.TicketStatusNew)

	count, err := f.service.AutoAssign(context.Background())
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestRecoverStuckReopensPendingTickets(t *testing.T) {
	f := newMaintenanceFixture(t)
	ticket := f.seedTicket(t, domain.TicketStatusPending)

	f.clock.Advance(6 * time.Minute)
	count, err := f.service.RecoverStuck(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, count)

	updated, err := f.tickets.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TicketStatusOpen, updated.Status)
}

func TestCleanupOrphansDeletesRecordsWithoutTicket(t *testing.T) {
	f := newMaintenanceFixture(t)
	sla := &domain.TicketSLA{
		TicketID:        "ghost-ticket",
		PolicyID:        "policy-1",
		ResponseDueAt:   f.clock.Now(),
		ResolutionDueAt: f.clock.Now(),
	}
	require.NoError(t, f.slas.Create(context.Background(), sla))

	count, err := f.service.CleanupOrphans(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, count)

	_, err = f.slas.GetByID(context.Background(), sla.ID)
	require.Error(t, err)
}
