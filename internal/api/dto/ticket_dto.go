package dto

import (
	"time"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// CreateTicketRequest payload for POST /tickets.
type CreateTicketRequest struct {
	RequesterID string                `json:"requester_id"`
	CategoryID  string                `json:"category_id"`
	Subject     string                `json:"subject"`
	Description string                `json:"description"`
	Priority    domain.TicketPriority `json:"priority"`
	Tags        []string              `json:"tags"`
}

// CreateMessageRequest payload for POST /tickets/:id/messages.
type CreateMessageRequest struct {
	AuthorType  domain.MessageAuthorType `json:"author_type"`
	AuthorID    *string                  `json:"author_id"`
	MessageType domain.TicketMessageType `json:"message_type"`
	Body        string                   `json:"body"`
}

// UpdateStatusRequest payload for POST /tickets/:id/status.
type UpdateStatusRequest struct {
	Status domain.TicketStatus `json:"status"`
	Note   string              `json:"note"`
}

// AssignTicketRequest payload for POST /tickets/:id/assign.
type AssignTicketRequest struct {
	AssigneeID string `json:"assignee_id"`
}

// OperatorTokenRequest payload for POST /auth/token.
type OperatorTokenRequest struct {
	Operator string `json:"operator"`
	Key      string `json:"key"`
}

// TicketSummary is the list representation of a ticket.
type TicketSummary struct {
	ID             string                `json:"id"`
	SequenceKey    string                `json:"sequence_key"`
	RequesterID    string                `json:"requester_id"`
	CategoryID     string                `json:"category_id"`
	AssigneeID     *string               `json:"assignee_id,omitempty"`
	Subject        string                `json:"subject"`
	Status         domain.TicketStatus   `json:"status"`
	Priority       domain.TicketPriority `json:"priority"`
	Tags           []string              `json:"tags,omitempty"`
	LastActivityAt time.Time             `json:"last_activity_at"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// TicketSLAResponse is the SLA tracking view attached to a ticket detail.
type TicketSLAResponse struct {
	ID                   string     `json:"id"`
	PolicyID             string     `json:"policy_id"`
	ResponseDueAt        time.Time  `json:"response_due_at"`
	FirstResponseMetAt   *time.Time `json:"first_response_met_at,omitempty"`
	ResponseBreachedAt   *time.Time `json:"response_breached_at,omitempty"`
	ResolutionDueAt      time.Time  `json:"resolution_due_at"`
	ResolutionMetAt      *time.Time `json:"resolution_met_at,omitempty"`
	ResolutionBreachedAt *time.Time `json:"resolution_breached_at,omitempty"`
	EscalationLevel      int        `json:"escalation_level"`
}

// TicketDetailResponse is the full ticket view with its SLA record and
// message thread.
type TicketDetailResponse struct {
	TicketSummary
	Description     string                  `json:"description"`
	FirstResponseAt *time.Time              `json:"first_response_at,omitempty"`
	ResolvedAt      *time.Time              `json:"resolved_at,omitempty"`
	ClosedAt        *time.Time              `json:"closed_at,omitempty"`
	SLA             *TicketSLAResponse      `json:"sla,omitempty"`
	Messages        []TicketMessageResponse `json:"messages"`
}

// TicketMessageResponse is the message view.
type TicketMessageResponse struct {
	ID          string                   `json:"id"`
	AuthorType  domain.MessageAuthorType `json:"author_type"`
	AuthorID    *string                  `json:"author_id,omitempty"`
	MessageType domain.TicketMessageType `json:"message_type"`
	Body        string                   `json:"body"`
	CreatedAt   time.Time                `json:"created_at"`
}

// FailedJobResponse is the ops view of a retained failed job.
type FailedJobResponse struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	Recipient    string    `json:"recipient"`
	AttemptCount int       `json:"attempt_count"`
	MaxAttempts  int       `json:"max_attempts"`
	LastError    string    `json:"last_error,omitempty"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
