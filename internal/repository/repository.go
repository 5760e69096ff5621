package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/ticket-sync/internal/domain"
)

// ErrNotFound is returned when a referenced record does not exist.
var ErrNotFound = errors.New("record not found")

// DBTX is satisfied by both a pgx pool and a pgx transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxFunc runs against a Store bound to one transaction.
type TxFunc func(ctx context.Context, tx Store) error

// Store exposes every repository plus transactional scopes.
type Store interface {
	Tickets() TicketRepository
	Translations() TicketTranslationRepository
	Replies() TicketReplyRepository
	Audits() TicketAuditRepository
	History() TicketHistoryRepository
	SyncLogs() SyncLogRepository
	SyncSettings() SyncConfigRepository

	// WithinTx runs fn atomically. Nested calls join the outer transaction.
	WithinTx(ctx context.Context, fn TxFunc) error
	// WithinTicket runs fn atomically while holding the ticket's single-writer lock.
	// It returns ErrNotFound when the ticket does not exist.
	WithinTicket(ctx context.Context, ticketID int64, fn TxFunc) error
	Ping(ctx context.Context) error
}

// MaxTicketListLimit caps a single ticket listing.
const MaxTicketListLimit = 500

// TicketFilter captures ticket search parameters. Nil and empty fields do not filter.
type TicketFilter struct {
	States      []domain.TicketState
	ExternalID  *string
	SearchTerm  *string
	IsValid     *bool
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
}

// EffectiveLimit returns Limit clamped to (0, MaxTicketListLimit], defaulting to 100.
func (f TicketFilter) EffectiveLimit() int {
	switch {
	case f.Limit <= 0:
		return 100
	case f.Limit > MaxTicketListLimit:
		return MaxTicketListLimit
	}
	return f.Limit
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	// UpsertByExternalID creates the ticket or refreshes subject and content of the existing one.
	// On return ticket carries the stored id, state and timestamps.
	UpsertByExternalID(ctx context.Context, ticket *domain.Ticket) (inserted bool, err error)
	GetByID(ctx context.Context, id int64) (*domain.Ticket, error)
	GetByExternalID(ctx context.Context, externalID string) (*domain.Ticket, error)
	UpdateState(ctx context.Context, id int64, state domain.TicketState) error
	UpdateValidity(ctx context.Context, id int64, valid bool) error
	// ListWithFilter returns matching tickets, most recently updated first.
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
}

// TicketTranslationRepository stores one translation per (ticket, target language).
type TicketTranslationRepository interface {
	Upsert(ctx context.Context, translation *domain.TicketTranslation) error
	ListByTicket(ctx context.Context, ticketID int64) ([]domain.TicketTranslation, error)
}

// TicketReplyRepository stores reply drafts.
type TicketReplyRepository interface {
	Create(ctx context.Context, reply *domain.TicketReply) error
	GetByID(ctx context.Context, ticketID, replyID int64) (*domain.TicketReply, error)
	ListByTicket(ctx context.Context, ticketID int64) ([]domain.TicketReply, error)
	// MarkSelected selects replyID and clears any other selection on the ticket.
	MarkSelected(ctx context.Context, ticketID, replyID int64) error
}

// TicketAuditRepository stores append-only audit verdicts.
type TicketAuditRepository interface {
	Create(ctx context.Context, audit *domain.TicketAudit) error
	ListByTicket(ctx context.Context, ticketID int64) ([]domain.TicketAudit, error)
}

// SyncLogRepository records sync attempts.
type SyncLogRepository interface {
	Create(ctx context.Context, log *domain.SyncLog) error
	Finish(ctx context.Context, log *domain.SyncLog) error
	Latest(ctx context.Context) (*domain.SyncLog, error)
	// FailRunning closes every RUNNING row left behind by a crashed process.
	FailRunning(ctx context.Context, message string) (int64, error)
}

// SyncConfigRepository stores mutable sync settings.
type SyncConfigRepository interface {
	Get(ctx context.Context, key string) (*domain.SyncSetting, error)
	Set(ctx context.Context, key, value string) error
	InsertIfAbsent(ctx context.Context, setting domain.SyncSetting) (bool, error)
}

func translateErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
