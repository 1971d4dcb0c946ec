package domain

import "time"

// BreachType identifies which SLA axis was missed.
type BreachType string

const (
	BreachTypeResponse   BreachType = "response"
	BreachTypeResolution BreachType = "resolution"
)

// EscalationRule defines one step of a policy's escalation chain. Rules are
// ordered by DelayMinutes; a rule fires once the breach has persisted past
// its delay.
type EscalationRule struct {
	DelayMinutes int     `json:"delay_minutes"`
	AssigneeID   *string `json:"assignee_id,omitempty"`
	Notify       bool    `json:"notify"`
}

// SLAPolicy pairs response/resolution time budgets with an escalation chain.
// One policy per priority is conventional but not enforced.
type SLAPolicy struct {
	ID                string
	Name              string
	Priority          TicketPriority
	ResponseMinutes   int
	ResolutionMinutes int
	BusinessHoursOnly bool
	Rules             []EscalationRule
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ResponseBudget returns the response budget as a duration.
func (p *SLAPolicy) ResponseBudget() time.Duration {
	return time.Duration(p.ResponseMinutes) * time.Minute
}

// ResolutionBudget returns the resolution budget as a duration.
func (p *SLAPolicy) ResolutionBudget() time.Duration {
	return time.Duration(p.ResolutionMinutes) * time.Minute
}

// TicketSLA tracks one ticket against one policy. Due timestamps are computed
// once at creation and never recomputed; breach timestamps are set at most
// once. PausedAt/PausedMinutes are reserved for business-hours pausing.
type TicketSLA struct {
	ID                   string
	TicketID             string
	PolicyID             string
	ResponseDueAt        time.Time
	FirstResponseMetAt   *time.Time
	ResponseBreachedAt   *time.Time
	ResolutionDueAt      time.Time
	ResolutionMetAt      *time.Time
	ResolutionBreachedAt *time.Time
	EscalationLevel      int
	PausedAt             *time.Time
	PausedMinutes        int
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// NewTicketSLA derives a tracking record from the ticket's creation time and
// the policy budgets.
func NewTicketSLA(ticket *Ticket, policy *SLAPolicy) *TicketSLA {
	return &TicketSLA{
		TicketID:        ticket.ID,
		PolicyID:        policy.ID,
		ResponseDueAt:   ticket.CreatedAt.Add(policy.ResponseBudget()),
		ResolutionDueAt: ticket.CreatedAt.Add(policy.ResolutionBudget()),
	}
}

// ResponseOutstanding reports whether the response milestone is still owed.
func (s *TicketSLA) ResponseOutstanding() bool {
	return s.FirstResponseMetAt == nil && s.ResponseBreachedAt == nil
}

// ResolutionOutstanding reports whether the resolution milestone is still owed.
func (s *TicketSLA) ResolutionOutstanding() bool {
	return s.ResolutionMetAt == nil && s.ResolutionBreachedAt == nil
}

// BreachedAt returns the breach timestamp for the given axis, or nil.
func (s *TicketSLA) BreachedAt(axis BreachType) *time.Time {
	if axis == BreachTypeResponse {
		return s.ResponseBreachedAt
	}
	return s.ResolutionBreachedAt
}
