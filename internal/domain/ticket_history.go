package domain

import "time"

// TicketHistory is an immutable record of one lifecycle transition.
type TicketHistory struct {
	ID        int64
	TicketID  int64
	Event     string
	FromState *TicketState
	ToState   TicketState
	CreatedAt time.Time
}
