package service

import (
	"context"
	"time"

	"github.com/spec-kit/ticket-sync/internal/domain"
	"github.com/spec-kit/ticket-sync/internal/freshdesk"
)

// TicketSource reads tickets from the external ticketing service.
type TicketSource interface {
	FetchUpdatedSince(ctx context.Context, since *time.Time) ([]freshdesk.Ticket, error)
	FetchConversationThread(ctx context.Context, externalID string) ([]domain.Conversation, error)
}

// ReplyPusher posts accepted replies back to the external ticketing service.
type ReplyPusher interface {
	PushReply(ctx context.Context, externalID, text string) error
}

// TaskDispatcher hands a ticket snapshot to out-of-process workers.
type TaskDispatcher interface {
	Dispatch(ctx context.Context, kind domain.TaskKind, ticket *domain.Ticket) error
}
