package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/sla-engine/internal/clock"
	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/events"
	"github.com/spec-kit/sla-engine/internal/repository"
	apperrors "github.com/spec-kit/sla-engine/pkg/util/errorutil"
)

// TicketService owns the ticket lifecycle: creation, messaging, assignment
// and validated status transitions, plus the SLA completion checks they
// trigger.
type TicketService struct {
	tickets    repository.TicketRepository
	messages   repository.TicketMessageRepository
	categories repository.CategoryRepository
	policies   repository.SLAPolicyRepository
	slas       repository.TicketSLARepository
	dispatcher events.Dispatcher
	clock      clock.Clock
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo   repository.TicketRepository
	MessageRepo  repository.TicketMessageRepository
	CategoryRepo repository.CategoryRepository
	PolicyRepo   repository.SLAPolicyRepository
	SLARepo      repository.TicketSLARepository
	Dispatcher   events.Dispatcher
	Clock        clock.Clock
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	RequesterID string
	CategoryID  string
	Subject     string
	Description string
	Priority    domain.TicketPriority
	Tags        []string
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		tickets:    deps.TicketRepo,
		messages:   deps.MessageRepo,
		categories: deps.CategoryRepo,
		policies:   deps.PolicyRepo,
		slas:       deps.SLARepo,
		dispatcher: deps.Dispatcher,
		clock:      deps.Clock,
	}
}

// CreateTicket creates a ticket and, when its category carries an SLA policy,
// the tracking record with due dates computed once from the creation time.
func (s *TicketService) CreateTicket(ctx context.Context, input TicketCreateInput) (*domain.Ticket, error) {
	category, err := s.categories.GetByID(ctx, input.CategoryID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("category", map[string]any{"category_id": input.CategoryID})
		}
		return nil, apperrors.MapError(err)
	}
	if !category.IsActive {
		return nil, apperrors.NewConflict("category inactive", map[string]any{"category_id": category.ID})
	}

	now := s.clock.Now()
	seq, err := s.tickets.NextDailySequence(ctx, now.Format("20060102"))
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	ticket := &domain.Ticket{
		SequenceKey: fmt.Sprintf("TCK-%s-%04d", now.Format("20060102"), seq),
		RequesterID: input.RequesterID,
		CategoryID:  category.ID,
		Subject:     strings.TrimSpace(input.Subject),
		Description: strings.TrimSpace(input.Description),
		Status:      domain.TicketStatusNew,
		Priority:    input.Priority,
		Tags:        input.Tags,
	}
	if ticket.Priority == "" {
		ticket.Priority = domain.TicketPriorityMedium
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	if category.PolicyID != nil {
		policy, err := s.policies.GetByID(ctx, *category.PolicyID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, apperrors.NewNotFound("sla policy", map[string]any{"policy_id": *category.PolicyID})
			}
			return nil, apperrors.MapError(err)
		}
		sla := domain.NewTicketSLA(ticket, policy)
		if err := s.slas.Create(ctx, sla); err != nil {
			return nil, apperrors.MapError(err)
		}
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    requesterActor(ticket.RequesterID),
		Payload: events.TicketCreatedPayload{
			SequenceKey: ticket.SequenceKey,
			RequesterID: ticket.RequesterID,
			CategoryID:  ticket.CategoryID,
			Priority:    ticket.Priority,
			Subject:     ticket.Subject,
		},
	})
	return ticket, nil
}

// AddMessage appends a message to a ticket. The first public agent reply
// stamps firstResponseAt exactly once and feeds the SLA response-met check.
func (s *TicketService) AddMessage(ctx context.Context, ticketID string, authorType domain.MessageAuthorType, authorID *string, messageType domain.TicketMessageType, body string) (*domain.TicketMessage, error) {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status == domain.TicketStatusClosed {
		return nil, apperrors.NewConflict("ticket closed", map[string]any{"ticket_id": ticket.ID})
	}

	msg := &domain.TicketMessage{
		TicketID:    ticket.ID,
		AuthorType:  authorType,
		AuthorID:    authorID,
		MessageType: messageType,
		Body:        strings.TrimSpace(body),
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, apperrors.MapError(err)
	}

	now := s.clock.Now()
	firstResponse := false
	if !msg.IsInternal() && authorType == domain.AuthorTypeAgent && ticket.FirstResponseAt == nil {
		ticket.FirstResponseAt = &now
		firstResponse = true
	}
	ticket.LastActivityAt = now
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	if firstResponse {
		s.completeSLAAxis(ctx, ticket.ID, domain.BreachTypeResponse, now)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketMessageAdded,
		TicketID: ticket.ID,
		Actor:    events.Actor{Type: authorType, ID: authorID},
		Payload: events.TicketMessageAddedPayload{
			MessageID:     msg.ID,
			RequesterID:   ticket.RequesterID,
			AuthorType:    msg.AuthorType,
			Internal:      msg.IsInternal(),
			FirstResponse: firstResponse,
			BodyPreview:   stringPreview(msg.Body, 120),
		},
	})
	return msg, nil
}

// AssignTicket sets the ticket assignee and emits the assignment event.
func (s *TicketService) AssignTicket(ctx context.Context, ticketID, assigneeID string, actor events.Actor) (*domain.Ticket, error) {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.IsTerminal() {
		return nil, apperrors.NewConflict("ticket in terminal status", map[string]any{"ticket_id": ticket.ID, "status": ticket.Status})
	}
	previous := ticket.AssigneeID
	ticket.AssigneeID = &assigneeID
	ticket.LastActivityAt = s.clock.Now()
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketAssigned,
		TicketID: ticket.ID,
		Actor:    actor,
		Payload: events.TicketAssignedPayload{
			AssigneeID:         assigneeID,
			PreviousAssigneeID: previous,
		},
	})
	return ticket, nil
}

// UpdateStatus performs a validated transition. RESOLVED stamps resolvedAt
// and triggers the SLA resolution check; CLOSED stamps closedAt; REOPENED
// clears both stamps. The SLA record keeps its original due dates across
// reopens: regenerating them would let a reopen reset the clock.
func (s *TicketService) UpdateStatus(ctx context.Context, ticketID string, newStatus domain.TicketStatus, note string, actor events.Actor) (*domain.Ticket, error) {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(ticket.Status, newStatus) {
		return nil, apperrors.NewConflict("invalid status transition", map[string]any{
			"ticket_id": ticket.ID,
			"from":      ticket.Status,
			"to":        newStatus,
		})
	}

	now := s.clock.Now()
	previous := ticket.Status
	switch newStatus {
	case domain.TicketStatusResolved:
		ticket.ResolvedAt = &now
	case domain.TicketStatusClosed:
		ticket.ClosedAt = &now
	case domain.TicketStatusReopened:
		ticket.ResolvedAt = nil
		ticket.ClosedAt = nil
	}
	ticket.Status = newStatus
	ticket.LastActivityAt = now
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	if newStatus == domain.TicketStatusResolved {
		s.completeSLAAxis(ctx, ticket.ID, domain.BreachTypeResolution, now)
	}
	if note = strings.TrimSpace(note); note != "" {
		s.recordTransitionNote(ctx, ticket.ID, actor, note)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticket.ID,
		Actor:    actor,
		Payload: events.TicketStatusChangedPayload{
			RequesterID:    ticket.RequesterID,
			PreviousStatus: previous,
			NewStatus:      newStatus,
			Note:           note,
		},
	})
	return ticket, nil
}

// GetTicket returns the ticket with its SLA record when present.
func (s *TicketService) GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, *domain.TicketSLA, error) {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}
	sla, err := s.slas.GetByTicket(ctx, ticket.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ticket, nil, nil
		}
		return nil, nil, apperrors.MapError(err)
	}
	return ticket, sla, nil
}

// ListTickets returns tickets matching the filter.
func (s *TicketService) ListTickets(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	tickets, err := s.tickets.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// completeSLAAxis records a milestone met on time. Late milestones leave the
// record alone: the breach stamp already owns that axis. Errors here must not
// fail the triggering mutation; lost races against the evaluator are benign.
func (s *TicketService) completeSLAAxis(ctx context.Context, ticketID string, axis domain.BreachType, at time.Time) {
	sla, err := s.slas.GetByTicket(ctx, ticketID)
	if err != nil {
		return
	}
	switch axis {
	case domain.BreachTypeResponse:
		if !at.After(sla.ResponseDueAt) {
			_, _ = s.slas.MarkResponseMet(ctx, sla.ID, at)
		}
	case domain.BreachTypeResolution:
		if !at.After(sla.ResolutionDueAt) {
			_, _ = s.slas.MarkResolutionMet(ctx, sla.ID, at)
		}
	}
}

func (s *TicketService) getTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// recordTransitionNote keeps the note on the thread: an internal system event
// for system transitions, an internal note otherwise.
func (s *TicketService) recordTransitionNote(ctx context.Context, ticketID string, actor events.Actor, note string) {
	messageType := domain.MessageTypeInternalNote
	if actor.Type == domain.AuthorTypeSystem {
		messageType = domain.MessageTypeSystemEvent
	}
	msg := &domain.TicketMessage{
		TicketID:    ticketID,
		AuthorType:  actor.Type,
		AuthorID:    actor.ID,
		MessageType: messageType,
		Body:        note,
	}
	_ = s.messages.Create(ctx, msg)
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
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

func requesterActor(requesterID string) events.Actor {
	return events.Actor{Type: domain.AuthorTypeRequester, ID: &requesterID}
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
