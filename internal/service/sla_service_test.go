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
	"github.com/spec-kit/sla-engine/internal/observability"
)

type slaFixture struct {
	service  *SLAService
	tickets  *fakeTicketRepo
	policies *fakePolicyRepo
	slas     *fakeSLARepo
	recorder *eventRecorder
	clock    *fakeClock
}

func newSLAFixture(t *testing.T, cfg config.SLAConfig, policy *domain.SLAPolicy) *slaFixture {
	t.Helper()
	clk := newFakeClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	tickets := newFakeTicketRepo(clk.Now)
	policies := newFakePolicyRepo()
	slas := newFakeSLARepo(tickets)
	recorder := &eventRecorder{}

	require.NoError(t, policies.Create(context.Background(), policy))

	service := NewSLAService(SLADependencies{
		SLARepo:    slas,
		TicketRepo: tickets,
		PolicyRepo: policies,
		Dispatcher: recorder,
		Clock:      clk,
		Logger:     zap.NewNop(),
		Metrics:    observability.NewMetrics(),
		Config:     cfg,
	})
	return &slaFixture{
		service:  service,
		tickets:  tickets,
		policies: policies,
		slas:     slas,
		recorder: recorder,
		clock:    clk,
	}
}

func standardPolicy(rules ...domain.EscalationRule) *domain.SLAPolicy {
	return &domain.SLAPolicy{
		ID:                "policy-1",
		Name:              "standard",
		ResponseMinutes:   30,
		ResolutionMinutes: 240,
		Rules:             rules,
	}
}

func defaultSLAConfig() config.SLAConfig {
	return config.SLAConfig{ScanIntervalMinutes: 5, AtRiskWindowMinutes: 30, AtRiskRepeat: true}
}

func (f *slaFixture) seedTicket(t *testing.T) (*domain.Ticket, *domain.TicketSLA) {
	t.Helper()
	ticket := &domain.Ticket{
		RequesterID: "user-1",
		CategoryID:  "cat-1",
		Subject:     "printer on fire",
		Status:      domain.TicketStatusNew,
		Priority:    domain.TicketPriorityHigh,
	}
	require.NoError(t, f.tickets.Create(context.Background(), ticket))
	policy, err := f.policies.GetByID(context.Background(), "policy-1")
	require.NoError(t, err)
	sla := domain.NewTicketSLA(ticket, policy)
	require.NoError(t, f.slas.Create(context.Background(), sla))
	return ticket, sla
}

func TestEvaluatePassStampsBreachOnce(t *testing.T) {
	f := newSLAFixture(t, defaultSLAConfig(), standardPolicy())
	_, sla := f.seedTicket(t)

	f.clock.Advance(31 * time.Minute)
	result, err := f.service.EvaluatePass(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Breached, 1)
	require.Equal(t, domain.BreachTypeResponse, result.Breached[0].BreachType)

	stored, err := f.slas.GetByID(context.Background(), sla.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ResponseBreachedAt)
	firstStamp := *stored.ResponseBreachedAt

	// a re-scan must not re-stamp or re-announce
	f.clock.Advance(5 * time.Minute)
	result, err = f.service.EvaluatePass(context.Background())
	require.NoError(t, err)
	require.Empty(t, result.Breached)

	stored, err = f.slas.GetByID(context.Background(), sla.ID)
	require.NoError(t, err)
	require.Equal(t, firstStamp, *stored.ResponseBreachedAt)
	require.Len(t, f.recorder.byType(events.EventSLABreached), 1)
}

func TestEvaluatePassSkipsMetAxis(t *testing.T) {
	f := newSLAFixture(t, defaultSLAConfig(), standardPolicy())
	_, sla := f.seedTicket(t)

	met := f.clock.Now().Add(10 * time.Minute)
	won, err := f.slas.MarkResponseMet(context.Background(), sla.ID, met)
	require.NoError(t, err)
	require.True(t, won)

	f.clock.Advance(31 * time.Minute)
	result, err := f.service.EvaluatePass(context.Background())
	require.NoError(t, err)
	require.Empty(t, result.Breached)
}

func TestEvaluatePassSkipsTerminalTickets(t *testing.T) {
	f := newSLAFixture(t, defaultSLAConfig(), standardPolicy())
	ticket, _ := f.seedTicket(t)

	ticket.Status = domain.TicketStatusResolved
	require.NoError(t, f.tickets.Update(context.Background(), ticket))

	f.clock.Advance(31 * time.Minute)
	result, err := f.service.EvaluatePass(context.Background())
	require.NoError(t, err)
	require.Empty(t, result.Breached)
	require.Empty(t, result.AtRisk)
}

func TestEvaluatePassFlagsAtRiskInsideWindow(t *testing.T) {
	f := newSLAFixture(t, defaultSLAConfig(), standardPolicy())
	f.seedTicket(t)

	// 10 minutes before the response deadline, inside the 30 minute window
	f.clock.Advance(20 * time.Minute)
	result, err := f.service.EvaluatePass(context.Background())
	require.NoError(t, err)
	require.Empty(t, result.Breached)
	require.Len(t, result.AtRisk, 1)
	require.Equal(t, domain.BreachTypeResponse, result.AtRisk[0].RiskType)
}

func TestAtRiskRepeatsWhenConfigured(t *testing.T) {
	f := newSLAFixture(t, defaultSLAConfig(), standardPolicy())
	f.seedTicket(t)

	f.clock.Advance(20 * time.Minute)
	_, err := f.service.EvaluatePass(context.Background())
	require.NoError(t, err)
	f.clock.Advance(5 * time.Minute)
	_, err = f.service.EvaluatePass(context.Background())
	require.NoError(t, err)

	require.Len(t, f.recorder.byType(events.EventSLAAtRisk), 2)
}

func TestAtRiskOneShotMode(t *testing.T) {
	cfg := defaultSLAConfig()
	cfg.AtRiskRepeat = false
	f := newSLAFixture(t, cfg, standardPolicy())
	f.seedTicket(t)

	f.clock.Advance(20 * time.Minute)
	_, err := f.service.EvaluatePass(context.Background())
	require.NoError(t, err)
	f.clock.Advance(5 * time.Minute)
	_, err = f.service.EvaluatePass(context.Background())
	require.NoError(t, err)

	require.Len(t, f.recorder.byType(events.EventSLAAtRisk), 1)
}

func TestImmediateEscalationRuleFiresWithBreach(t *testing.T) {
	escalatee := "agent-lead"
	f := newSLAFixture(t, defaultSLAConfig(), standardPolicy(
		domain.EscalationRule{DelayMinutes: 0, AssigneeID: &escalatee, Notify: true},
	))
	ticket, sla := f.seedTicket(t)

	f.clock.Advance(31 * time.Minute)
	_, err := f.service.EvaluatePass(context.Background())
	require.NoError(t, err)

	stored, err := f.slas.GetByID(context.Background(), sla.ID)
	require.NoError(t, err)
	require.Equal(t, 1, stored.EscalationLevel)

	updated, err := f.tickets.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.AssigneeID)
	require.Equal(t, escalatee, *updated.AssigneeID)

	escalated := f.recorder.byType(events.EventTicketEscalated)
	require.Len(t, escalated, 1)
	payload, ok := escalated[0].Payload.(events.TicketEscalatedPayload)
	require.True(t, ok)
	require.Equal(t, 0, payload.RuleIndex)
}

func TestEscalationRuleFiresAtMostOnce(t *testing.T) {
	f := newSLAFixture(t, defaultSLAConfig(), standardPolicy(
		domain.EscalationRule{DelayMinutes: 0, Notify: true},
	))
	f.seedTicket(t)

	f.clock.Advance(31 * time.Minute)
	_, err := f.service.EvaluatePass(context.Background())
	require.NoError(t, err)
	f.clock.Advance(5 * time.Minute)
	_, err = f.service.EvaluatePass(context.Background())
	require.NoError(t, err)

	require.Len(t, f.recorder.byType(events.EventTicketEscalated), 1)
}

func TestDelayedRuleWaitsForItsDelay(t *testing.T) {
	f := newSLAFixture(t, defaultSLAConfig(), standardPolicy(
		domain.EscalationRule{DelayMinutes: 0, Notify: true},
		domain.EscalationRule{DelayMinutes: 60, Notify: true},
	))
	_, sla := f.seedTicket(t)

	f.clock.Advance(31 * time.Minute)
	_, err := f.service.EvaluatePass(context.Background())
	require.NoError(t, err)

	stored, err := f.slas.GetByID(context.Background(), sla.ID)
	require.NoError(t, err)
	require.Equal(t, 1, stored.EscalationLevel)

	// 60 minutes after the breach the second rule becomes eligible
	f.clock.Advance(61 * time.Minute)
	_, err = f.service.EvaluatePass(context.Background())
	require.NoError(t, err)

	stored, err = f.slas.GetByID(context.Background(), sla.ID)
	require.NoError(t, err)
	require.Equal(t, 2, stored.EscalationLevel)
	require.Len(t, f.recorder.byType(events.EventTicketEscalated), 2)
}

func TestEscalationCatchUpFiresAllEligibleRules(t *testing.T) {
	f := newSLAFixture(t, defaultSLAConfig(), standardPolicy(
		domain.EscalationRule{DelayMinutes: 0, Notify: true},
		domain.EscalationRule{DelayMinutes: 30, Notify: true},
		domain.EscalationRule{DelayMinutes: 60, Notify: true},
	))
	_, sla := f.seedTicket(t)

	f.clock.Advance(31 * time.Minute)
	_, err := f.service.EvaluatePass(context.Background())
	require.NoError(t, err)

	// the evaluator was down after the breach was stamped: the next pass
	// fires every rule whose delay has elapsed since the breach
	f.clock.Advance(90 * time.Minute)
	_, err = f.service.EvaluatePass(context.Background())
	require.NoError(t, err)

	stored, err := f.slas.GetByID(context.Background(), sla.ID)
	require.NoError(t, err)
	require.Equal(t, 3, stored.EscalationLevel)
	require.Len(t, f.recorder.byType(events.EventTicketEscalated), 3)
}

func TestDelayedRuleWaitsForBreachStampBeforeCounting(t *testing.T) {
	f := newSLAFixture(t, defaultSLAConfig(), standardPolicy(
		domain.EscalationRule{DelayMinutes: 30, Notify: true},
	))
	_, sla := f.seedTicket(t)

	// the scanner was down well past the response deadline; the pass that
	// stamps the breach starts the escalation clock, it does not satisfy
	// the delay
	f.clock.Advance(120 * time.Minute)
	_, err := f.service.EvaluatePass(context.Background())
	require.NoError(t, err)

	stored, err := f.slas.GetByID(context.Background(), sla.ID)
	require.NoError(t, err)
	require.Equal(t, 0, stored.EscalationLevel)
	require.Empty(t, f.recorder.byType(events.EventTicketEscalated))

	// thirty minutes after the stamp the rule becomes eligible
	f.clock.Advance(30 * time.Minute)
	_, err = f.service.EvaluatePass(context.Background())
	require.NoError(t, err)

	stored, err = f.slas.GetByID(context.Background(), sla.ID)
	require.NoError(t, err)
	require.Equal(t, 1, stored.EscalationLevel)
	require.Len(t, f.recorder.byType(events.EventTicketEscalated), 1)
}

func TestResolutionBreachAfterResponseMet(t *testing.T) {
	f := newSLAFixture(t, defaultSLAConfig(), standardPolicy())
	_, sla := f.seedTicket(t)

	met := f.clock.Now().Add(5 * time.Minute)
	_, err := f.slas.MarkResponseMet(context.Background(), sla.ID, met)
	require.NoError(t, err)

	f.clock.Advance(241 * time.Minute)
	result, err := f.service.EvaluatePass(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Breached, 1)
	require.Equal(t, domain.BreachTypeResolution, result.Breached[0].BreachType)
}
