package events

import (
	"time"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventTicketAssigned      EventType = "ticket_assigned"
	EventTicketMessageAdded  EventType = "ticket_message_added"
	EventSLABreached         EventType = "sla_breached"
	EventSLAAtRisk           EventType = "sla_at_risk"
	EventTicketEscalated     EventType = "ticket_escalated"
	EventTicketIdle          EventType = "ticket_idle"
	EventTicketStale         EventType = "ticket_stale"
	EventDailyReport         EventType = "daily_report"
)

// Actor encapsulates actor metadata for an event. System transitions carry no
// actor id.
type Actor struct {
	Type domain.MessageAuthorType `json:"type"`
	ID   *string                  `json:"id,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	SequenceKey string                `json:"sequence_key"`
	RequesterID string                `json:"requester_id"`
	CategoryID  string                `json:"category_id"`
	Priority    domain.TicketPriority `json:"priority"`
	Subject     string                `json:"subject"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	RequesterID    string              `json:"requester_id"`
	PreviousStatus domain.TicketStatus `json:"previous_status"`
	NewStatus      domain.TicketStatus `json:"new_status"`
	Note           string              `json:"note,omitempty"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	AssigneeID         string  `json:"assignee_id"`
	PreviousAssigneeID *string `json:"previous_assignee_id,omitempty"`
}

// TicketMessageAddedPayload payload.
type TicketMessageAddedPayload struct {
	MessageID     string                   `json:"message_id"`
	RequesterID   string                   `json:"requester_id"`
	AuthorType    domain.MessageAuthorType `json:"author_type"`
	Internal      bool                     `json:"internal"`
	FirstResponse bool                     `json:"first_response"`
	BodyPreview   string                   `json:"body_preview"`
}

// SLABreachedPayload payload.
type SLABreachedPayload struct {
	TicketSLAID string            `json:"ticket_sla_id"`
	AssigneeID  *string           `json:"assignee_id,omitempty"`
	BreachType  domain.BreachType `json:"breach_type"`
	DueAt       time.Time         `json:"due_at"`
	BreachedAt  time.Time         `json:"breached_at"`
}

// SLAAtRiskPayload payload.
type SLAAtRiskPayload struct {
	TicketSLAID string            `json:"ticket_sla_id"`
	AssigneeID  *string           `json:"assignee_id,omitempty"`
	RiskType    domain.BreachType `json:"risk_type"`
	DueAt       time.Time         `json:"due_at"`
}

// TicketEscalatedPayload payload.
type TicketEscalatedPayload struct {
	TicketSLAID        string            `json:"ticket_sla_id"`
	BreachType         domain.BreachType `json:"breach_type"`
	RuleIndex          int               `json:"rule_index"`
	Reason             string            `json:"reason"`
	PreviousAssigneeID *string           `json:"previous_assignee_id,omitempty"`
	NewAssigneeID      *string           `json:"new_assignee_id,omitempty"`
}

// TicketIdlePayload payload.
type TicketIdlePayload struct {
	AssigneeID *string   `json:"assignee_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// TicketStalePayload payload.
type TicketStalePayload struct {
	AssigneeID     *string   `json:"assignee_id,omitempty"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// DailyReportPayload payload.
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

// SystemActor returns the actor used for scheduler and evaluator transitions.
func SystemActor() Actor {
	return Actor{Type: domain.AuthorTypeSystem}
}
