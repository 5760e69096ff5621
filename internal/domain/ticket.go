package domain

import "time"

// TicketState enumerates lifecycle states for tickets in the translation pipeline.
type TicketState string

const (
	TicketStatePendingTrans TicketState = "PENDING_TRANS"
	TicketStateTranslating  TicketState = "TRANSLATING"
	TicketStatePendingReply TicketState = "PENDING_REPLY"
	TicketStateReplying     TicketState = "REPLYING"
	TicketStatePendingAudit TicketState = "PENDING_AUDIT"
	// TicketStateAuditing is accepted everywhere but no transition produces it yet.
	TicketStateAuditing  TicketState = "AUDITING"
	TicketStateCompleted TicketState = "COMPLETED"
)

// TicketStates lists every valid state in pipeline order.
var TicketStates = []TicketState{
	TicketStatePendingTrans,
	TicketStateTranslating,
	TicketStatePendingReply,
	TicketStateReplying,
	TicketStatePendingAudit,
	TicketStateAuditing,
	TicketStateCompleted,
}

// Valid reports whether s is one of the defined states.
func (s TicketState) Valid() bool {
	for _, candidate := range TicketStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// Ticket is the aggregate root synchronized from the external ticketing service.
type Ticket struct {
	ID          int64
	ExternalID  string
	Subject     string
	Content     string
	ContentKind ContentKind
	SourceLang  string
	State       TicketState
	IsValid     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Clone returns a copy safe to hand to other goroutines.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

// TicketDetail bundles a ticket with the records it owns.
type TicketDetail struct {
	Ticket       *Ticket
	Translations []TicketTranslation
	Replies      []TicketReply
	Audits       []TicketAudit
}
