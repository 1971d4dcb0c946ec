package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/config"
	"github.com/spec-kit/sla-engine/internal/events"
	"github.com/spec-kit/sla-engine/internal/notify"
	"github.com/spec-kit/sla-engine/internal/queue"
)

// opsRecipient receives operational alerts that have no assignee to target.
const opsRecipient = "support-ops"

// channelRoutes maps each job type to its delivery channels. Requester-facing
// notices go out on email plus in-app; operational alerts stay internal.
var channelRoutes = map[queue.JobType][]notify.Channel{
	queue.JobTicketConfirmation: {notify.ChannelEmail, notify.ChannelInApp},
	queue.JobTicketAssigned:     {notify.ChannelPush, notify.ChannelInApp},
	queue.JobStatusChanged:      {notify.ChannelEmail, notify.ChannelInApp},
	queue.JobNewMessage:         {notify.ChannelEmail, notify.ChannelPush, notify.ChannelInApp},
	queue.JobSLABreached:        {notify.ChannelEmail, notify.ChannelPush},
	queue.JobSLAAtRisk:          {notify.ChannelPush, notify.ChannelInApp},
	queue.JobEscalateTicket:     {notify.ChannelEmail, notify.ChannelPush},
	queue.JobIdleTicketAlert:    {notify.ChannelInApp},
	queue.JobStaleTicketAlert:   {notify.ChannelInApp},
	queue.JobDailyReport:        {notify.ChannelEmail},
}

// NotificationService bridges domain events to the durable notification
// queue. Event handling stays off the mutation path: enqueue failures are
// logged by the dispatcher, never bubbled to the caller that triggered the
// event.
type NotificationService struct {
	queue  queue.Queue
	logger *zap.Logger
	cfg    config.QueueConfig
}

// NewNotificationService constructs the service.
func NewNotificationService(q queue.Queue, logger *zap.Logger, cfg config.QueueConfig) *NotificationService {
	return &NotificationService{queue: q, logger: logger, cfg: cfg}
}

// Register subscribes the service to every event type it converts into jobs.
func (s *NotificationService) Register(dispatcher events.Dispatcher) {
	dispatcher.Subscribe(events.EventTicketCreated, s.onTicketCreated)
	dispatcher.Subscribe(events.EventTicketAssigned, s.onTicketAssigned)
	dispatcher.Subscribe(events.EventTicketStatusChanged, s.onStatusChanged)
	dispatcher.Subscribe(events.EventTicketMessageAdded, s.onMessageAdded)
	dispatcher.Subscribe(events.EventSLABreached, s.onSLABreached)
	dispatcher.Subscribe(events.EventSLAAtRisk, s.onSLAAtRisk)
	dispatcher.Subscribe(events.EventTicketEscalated, s.onTicketEscalated)
	dispatcher.Subscribe(events.EventTicketIdle, s.onTicketIdle)
	dispatcher.Subscribe(events.EventTicketStale, s.onTicketStale)
	dispatcher.Subscribe(events.EventDailyReport, s.onDailyReport)
}

func (s *NotificationService) onTicketCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCreatedPayload)
	if !ok {
		return payloadTypeError(event)
	}
	return s.enqueue(ctx, queue.JobTicketConfirmation, queue.TicketConfirmationPayload{
		TicketID:    event.TicketID,
		SequenceKey: payload.SequenceKey,
		Subject:     payload.Subject,
	}, payload.RequesterID)
}

func (s *NotificationService) onTicketAssigned(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketAssignedPayload)
	if !ok {
		return payloadTypeError(event)
	}
	return s.enqueue(ctx, queue.JobTicketAssigned, queue.TicketAssignedPayload{
		TicketID:           event.TicketID,
		AssigneeID:         payload.AssigneeID,
		PreviousAssigneeID: payload.PreviousAssigneeID,
	}, payload.AssigneeID)
}

func (s *NotificationService) onStatusChanged(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketStatusChangedPayload)
	if !ok {
		return payloadTypeError(event)
	}
	return s.enqueue(ctx, queue.JobStatusChanged, queue.StatusChangedPayload{
		TicketID:       event.TicketID,
		PreviousStatus: payload.PreviousStatus,
		NewStatus:      payload.NewStatus,
		Note:           payload.Note,
	}, payload.RequesterID)
}

// onMessageAdded notifies the requester of public replies only; internal
// notes never leave the system.
func (s *NotificationService) onMessageAdded(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketMessageAddedPayload)
	if !ok {
		return payloadTypeError(event)
	}
	if payload.Internal {
		return nil
	}
	return s.enqueue(ctx, queue.JobNewMessage, queue.NewMessagePayload{
		TicketID:    event.TicketID,
		MessageID:   payload.MessageID,
		BodyPreview: payload.BodyPreview,
	}, payload.RequesterID)
}

func (s *NotificationService) onSLABreached(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.SLABreachedPayload)
	if !ok {
		return payloadTypeError(event)
	}
	return s.enqueue(ctx, queue.JobSLABreached, queue.SLABreachedPayload{
		TicketID:   event.TicketID,
		BreachType: payload.BreachType,
		DueAt:      payload.DueAt,
		BreachedAt: payload.BreachedAt,
	}, recipientOrOps(payload.AssigneeID))
}

func (s *NotificationService) onSLAAtRisk(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.SLAAtRiskPayload)
	if !ok {
		return payloadTypeError(event)
	}
	return s.enqueue(ctx, queue.JobSLAAtRisk, queue.SLAAtRiskPayload{
		TicketID: event.TicketID,
		RiskType: payload.RiskType,
		DueAt:    payload.DueAt,
	}, recipientOrOps(payload.AssigneeID))
}

func (s *NotificationService) onTicketEscalated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketEscalatedPayload)
	if !ok {
		return payloadTypeError(event)
	}
	return s.enqueue(ctx, queue.JobEscalateTicket, queue.EscalateTicketPayload{
		TicketID:           event.TicketID,
		Reason:             payload.Reason,
		RuleIndex:          payload.RuleIndex,
		PreviousAssigneeID: payload.PreviousAssigneeID,
		NewAssigneeID:      payload.NewAssigneeID,
	}, recipientOrOps(payload.NewAssigneeID))
}

func (s *NotificationService) onTicketIdle(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketIdlePayload)
	if !ok {
		return payloadTypeError(event)
	}
	return s.enqueue(ctx, queue.JobIdleTicketAlert, queue.IdleTicketAlertPayload{
		TicketID:  event.TicketID,
		CreatedAt: payload.CreatedAt,
	}, recipientOrOps(payload.AssigneeID))
}

func (s *NotificationService) onTicketStale(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketStalePayload)
	if !ok {
		return payloadTypeError(event)
	}
	return s.enqueue(ctx, queue.JobStaleTicketAlert, queue.StaleTicketAlertPayload{
		TicketID:       event.TicketID,
		LastActivityAt: payload.LastActivityAt,
	}, recipientOrOps(payload.AssigneeID))
}

func (s *NotificationService) onDailyReport(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.DailyReportPayload)
	if !ok {
		return payloadTypeError(event)
	}
	return s.enqueue(ctx, queue.JobDailyReport, queue.DailyReportPayload(payload), opsRecipient)
}

func (s *NotificationService) enqueue(ctx context.Context, jobType queue.JobType, payload any, recipient string) error {
	job, err := queue.NewJob(jobType, payload, recipient, channelRoutes[jobType], s.cfg.MaxAttempts)
	if err != nil {
		return err
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("enqueue %s: %w", jobType, err)
	}
	s.logger.Debug("notification job enqueued",
		zap.String("job_id", job.ID),
		zap.String("job_type", string(jobType)),
		zap.String("recipient", recipient))
	return nil
}

func recipientOrOps(assigneeID *string) string {
	if assigneeID != nil && *assigneeID != "" {
		return *assigneeID
	}
	return opsRecipient
}

func payloadTypeError(event events.Event) error {
	return fmt.Errorf("unexpected payload type for %s event", event.Type)
}
