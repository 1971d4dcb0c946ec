package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusNew      TicketStatus = "NEW"
	TicketStatusOpen     TicketStatus = "OPEN"
	TicketStatusPending  TicketStatus = "PENDING"
	TicketStatusResolved TicketStatus = "RESOLVED"
	TicketStatusClosed   TicketStatus = "CLOSED"
	TicketStatusReopened TicketStatus = "REOPENED"
)

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow      TicketPriority = "LOW"
	TicketPriorityMedium   TicketPriority = "MEDIUM"
	TicketPriorityHigh     TicketPriority = "HIGH"
	TicketPriorityCritical TicketPriority = "CRITICAL"
)

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID              string
	SequenceKey     string
	RequesterID     string
	CategoryID      string
	AssigneeID      *string
	Subject         string
	Description     string
	Status          TicketStatus
	Priority        TicketPriority
	Tags            []string
	FirstResponseAt *time.Time
	ResolvedAt      *time.Time
	ClosedAt        *time.Time
	LastActivityAt  time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsTerminal reports whether the ticket no longer participates in SLA scans.
func (t *Ticket) IsTerminal() bool {
	return t.Status == TicketStatusResolved || t.Status == TicketStatusClosed
}

var allowedTransitions = map[TicketStatus][]TicketStatus{
	TicketStatusNew:      {TicketStatusOpen, TicketStatusPending, TicketStatusResolved, TicketStatusClosed},
	TicketStatusOpen:     {TicketStatusPending, TicketStatusResolved, TicketStatusClosed},
	TicketStatusPending:  {TicketStatusOpen, TicketStatusResolved, TicketStatusClosed},
	TicketStatusResolved: {TicketStatusClosed, TicketStatusReopened},
	TicketStatusClosed:   {TicketStatusReopened},
	TicketStatusReopened: {TicketStatusOpen, TicketStatusPending, TicketStatusResolved, TicketStatusClosed},
}

// CanTransition validates a status change against the lifecycle rules.
// RESOLVED and CLOSED are terminal except via explicit reopen.
func CanTransition(current, next TicketStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}
