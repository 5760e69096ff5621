// Package workflow decides ticket lifecycle transitions and the task each one dispatches.
// It holds no state and performs no I/O.
package workflow

import (
	"errors"
	"fmt"

	"github.com/spec-kit/ticket-sync/internal/domain"
)

// Event is something that happened to a ticket.
type Event string

const (
	// EventDiscovered fires when sync creates a ticket that had no local record.
	EventDiscovered Event = "SYNC_DISCOVERED"
	// EventResurfaced fires when sync sees an update to a ticket that already exists locally.
	EventResurfaced           Event = "SYNC_RESURFACED"
	EventTranslationRequested Event = "TRANSLATION_REQUESTED"
	EventTranslationSubmitted Event = "TRANSLATION_SUBMITTED"
	EventReplyRequested       Event = "REPLY_REQUESTED"
	EventReplySubmitted       Event = "REPLY_SUBMITTED"
	EventAuditPassed          Event = "AUDIT_PASSED"
	EventAuditRejected        Event = "AUDIT_REJECTED"
)

// Action is the side effect the caller must perform after persisting a transition.
type Action string

const (
	ActionNone      Action = ""
	ActionTranslate Action = "DISPATCH_TRANSLATE"
	ActionReply     Action = "DISPATCH_REPLY"
	ActionAudit     Action = "DISPATCH_AUDIT"
	// ActionPushReply pushes the accepted reply to the external service and selects it.
	ActionPushReply Action = "PUSH_REPLY"
)

// TaskKind maps dispatch actions to the task kind they publish.
func (a Action) TaskKind() (domain.TaskKind, bool) {
	switch a {
	case ActionTranslate:
		return domain.TaskTranslate, true
	case ActionReply:
		return domain.TaskReply, true
	case ActionAudit:
		return domain.TaskAudit, true
	default:
		return "", false
	}
}

// Decision is the outcome of applying an event to a state.
type Decision struct {
	From   domain.TicketState
	Next   domain.TicketState
	Action Action
	// NoOp means nothing must be persisted or dispatched.
	NoOp bool
}

// Changed reports whether the decision moves the ticket to another state.
func (d Decision) Changed() bool {
	return !d.NoOp && d.From != d.Next
}

var (
	ErrUnknownState = errors.New("unknown ticket state")
	ErrUnknownEvent = errors.New("unknown workflow event")
)

type rule struct {
	next   domain.TicketState
	action Action
	// skipFrom lists states in which the event is absorbed without effect.
	skipFrom []domain.TicketState
}

var rules = map[Event]rule{
	EventDiscovered:           {next: domain.TicketStatePendingTrans, action: ActionTranslate},
	EventResurfaced:           {next: domain.TicketStatePendingTrans, action: ActionTranslate, skipFrom: []domain.TicketState{domain.TicketStatePendingTrans}},
	EventTranslationRequested: {next: domain.TicketStateTranslating, action: ActionTranslate},
	EventTranslationSubmitted: {next: domain.TicketStatePendingReply, action: ActionReply, skipFrom: []domain.TicketState{domain.TicketStatePendingReply}},
	EventReplyRequested:       {next: domain.TicketStateReplying, action: ActionReply},
	EventReplySubmitted:       {next: domain.TicketStatePendingAudit, action: ActionAudit},
	EventAuditPassed:          {next: domain.TicketStateCompleted, action: ActionPushReply},
	EventAuditRejected:        {next: domain.TicketStatePendingReply, action: ActionReply},
}

// Decide applies event to the current state.
func Decide(current domain.TicketState, event Event) (Decision, error) {
	if !current.Valid() {
		return Decision{}, fmt.Errorf("%w: %q", ErrUnknownState, current)
	}
	r, ok := rules[event]
	if !ok {
		return Decision{}, fmt.Errorf("%w: %q", ErrUnknownEvent, event)
	}
	for _, skip := range r.skipFrom {
		if skip == current {
			return Decision{From: current, Next: current, Action: ActionNone, NoOp: true}, nil
		}
	}
	return Decision{From: current, Next: r.next, Action: r.action}, nil
}

// AuditEvent maps an audit verdict to its workflow event.
func AuditEvent(result domain.AuditResult) Event {
	if result == domain.AuditResultPass {
		return EventAuditPassed
	}
	return EventAuditRejected
}
