package domain

import "time"

// MessageAuthorType indicates who authored a message.
type MessageAuthorType string

const (
	AuthorTypeRequester MessageAuthorType = "REQUESTER"
	AuthorTypeAgent     MessageAuthorType = "AGENT"
	AuthorTypeSystem    MessageAuthorType = "SYSTEM"
)

// TicketMessageType differentiates between replies, notes and system events.
type TicketMessageType string

const (
	MessageTypePublicReply  TicketMessageType = "PUBLIC_REPLY"
	MessageTypeInternalNote TicketMessageType = "INTERNAL_NOTE"
	MessageTypeSystemEvent  TicketMessageType = "SYSTEM_EVENT"
)

// TicketMessage captures communications in a ticket thread.
type TicketMessage struct {
	ID          string
	TicketID    string
	AuthorType  MessageAuthorType
	AuthorID    *string
	MessageType TicketMessageType
	Body        string
	CreatedAt   time.Time
}

// IsInternal reports whether the message is hidden from the requester.
// Only public replies count toward the first-response milestone.
func (m *TicketMessage) IsInternal() bool {
	return m.MessageType != MessageTypePublicReply
}
