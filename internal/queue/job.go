package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/notify"
)

// JobType is the closed set of notification job kinds. Adding a member
// requires a payload struct, a DecodePayload arm and a channel route.
type JobType string

const (
	JobTicketConfirmation JobType = "ticket-confirmation"
	JobTicketAssigned     JobType = "ticket-assigned"
	JobStatusChanged      JobType = "status-changed"
	JobNewMessage         JobType = "new-message"
	JobSLABreached        JobType = "sla-breached"
	JobSLAAtRisk          JobType = "sla-at-risk"
	JobEscalateTicket     JobType = "escalate-ticket"
	JobIdleTicketAlert    JobType = "idle-ticket-alert"
	JobStaleTicketAlert   JobType = "stale-ticket-alert"
	JobDailyReport        JobType = "daily-report"
)

// JobStatus tracks a job through the queue.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusActive    JobStatus = "active"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Job is one queued notification delivery. Failed jobs are retained for
// operator inspection, never dropped.
type Job struct {
	ID           string           `json:"id"`
	Type         JobType          `json:"type"`
	Payload      json.RawMessage  `json:"payload"`
	Recipient    string           `json:"recipient"`
	Channels     []notify.Channel `json:"channels"`
	AttemptCount int              `json:"attempt_count"`
	MaxAttempts  int              `json:"max_attempts"`
	Status       JobStatus        `json:"status"`
	LastError    string           `json:"last_error,omitempty"`
	EnqueuedAt   time.Time        `json:"enqueued_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// TicketConfirmationPayload for JobTicketConfirmation.
type TicketConfirmationPayload struct {
	TicketID    string `json:"ticket_id"`
	SequenceKey string `json:"sequence_key"`
	Subject     string `json:"subject"`
}

// TicketAssignedPayload for JobTicketAssigned.
type TicketAssignedPayload struct {
	TicketID           string  `json:"ticket_id"`
	AssigneeID         string  `json:"assignee_id"`
	PreviousAssigneeID *string `json:"previous_assignee_id,omitempty"`
}

// StatusChangedPayload for JobStatusChanged.
type StatusChangedPayload struct {
	TicketID       string              `json:"ticket_id"`
	PreviousStatus domain.TicketStatus `json:"previous_status"`
	NewStatus      domain.TicketStatus `json:"new_status"`
	Note           string              `json:"note,omitempty"`
}

// NewMessagePayload for JobNewMessage.
type NewMessagePayload struct {
	TicketID    string `json:"ticket_id"`
	MessageID   string `json:"message_id"`
	BodyPreview string `json:"body_preview"`
}

// SLABreachedPayload for JobSLABreached.
type SLABreachedPayload struct {
	TicketID   string            `json:"ticket_id"`
	BreachType domain.BreachType `json:"breach_type"`
	DueAt      time.Time         `json:"due_at"`
	BreachedAt time.Time         `json:"breached_at"`
}

// SLAAtRiskPayload for JobSLAAtRisk.
type SLAAtRiskPayload struct {
	TicketID string            `json:"ticket_id"`
	RiskType domain.BreachType `json:"risk_type"`
	DueAt    time.Time         `json:"due_at"`
}

// EscalateTicketPayload for JobEscalateTicket.
type EscalateTicketPayload struct {
	TicketID           string  `json:"ticket_id"`
	Reason             string  `json:"reason"`
	RuleIndex          int     `json:"rule_index"`
	PreviousAssigneeID *string `json:"previous_assignee_id,omitempty"`
	NewAssigneeID      *string `json:"new_assignee_id,omitempty"`
}

// IdleTicketAlertPayload for JobIdleTicketAlert.
type IdleTicketAlertPayload struct {
	TicketID  string    `json:"ticket_id"`
	CreatedAt time.Time `json:"created_at"`
}

// StaleTicketAlertPayload for JobStaleTicketAlert.
type StaleTicketAlertPayload struct {
	TicketID       string    `json:"ticket_id"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// DailyReportPayload for JobDailyReport.
type DailyReportPayload struct {
	Date               string `json:"date"`
	TicketsCreated     int    `json:"tickets_created"`
	TicketsResolved    int    `json:"tickets_resolved"`
	TicketsClosed      int    `json:"tickets_closed"`
	ResponseBreaches   int    `json:"response_breaches"`
	ResolutionBreaches int    `json:"resolution_breaches"`
	ResponsesMet       int    `json:"responses_met"`
	ResolutionsMet     int    `json:"resolutions_met"`
}

// NewJob builds a pending job with an encoded payload.
func NewJob(jobType JobType, payload any, recipient string, channels []notify.Channel, maxAttempts int) (*Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", jobType, err)
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &Job{
		ID:          uuid.NewString(),
		Type:        jobType,
		Payload:     raw,
		Recipient:   recipient,
		Channels:    channels,
		MaxAttempts: maxAttempts,
		Status:      JobStatusPending,
	}, nil
}

// DecodePayload unmarshals the job payload into its typed form. The switch is
// exhaustive over JobType; an unknown type is a programming error surfaced as
// a non-retryable failure.
func DecodePayload(job *Job) (any, error) {
	switch job.Type {
	case JobTicketConfirmation:
		return decodeAs[TicketConfirmationPayload](job)
	case JobTicketAssigned:
		return decodeAs[TicketAssignedPayload](job)
	case JobStatusChanged:
		return decodeAs[StatusChangedPayload](job)
	case JobNewMessage:
		return decodeAs[NewMessagePayload](job)
	case JobSLABreached:
		return decodeAs[SLABreachedPayload](job)
	case JobSLAAtRisk:
		return decodeAs[SLAAtRiskPayload](job)
	case JobEscalateTicket:
		return decodeAs[EscalateTicketPayload](job)
	case JobIdleTicketAlert:
		return decodeAs[IdleTicketAlertPayload](job)
	case JobStaleTicketAlert:
		return decodeAs[StaleTicketAlertPayload](job)
	case JobDailyReport:
		return decodeAs[DailyReportPayload](job)
	default:
		return nil, fmt.Errorf("unknown job type %q", job.Type)
	}
}

func decodeAs[T any](job *Job) (any, error) {
	var payload T
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", job.Type, err)
	}
	return payload, nil
}
