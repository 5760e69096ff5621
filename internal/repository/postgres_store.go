package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool is the part of *pgxpool.Pool the store uses.
type Pool interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

var _ Pool = (*pgxpool.Pool)(nil)

// PostgresStore is the pgx-backed Store.
type PostgresStore struct {
	pool Pool
	db   DBTX
}

// NewPostgresStore builds a store on the pool.
func NewPostgresStore(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool, db: pool}
}

func (s *PostgresStore) Tickets() TicketRepository { return NewTicketRepository(s.db) }

func (s *PostgresStore) Translations() TicketTranslationRepository {
	return NewTicketTranslationRepository(s.db)
}

func (s *PostgresStore) Replies() TicketReplyRepository { return NewTicketReplyRepository(s.db) }

func (s *PostgresStore) Audits() TicketAuditRepository { return NewTicketAuditRepository(s.db) }

func (s *PostgresStore) History() TicketHistoryRepository { return NewTicketHistoryRepository(s.db) }

func (s *PostgresStore) SyncLogs() SyncLogRepository { return NewSyncLogRepository(s.db) }

func (s *PostgresStore) SyncSettings() SyncConfigRepository { return NewSyncConfigRepository(s.db) }

func (s *PostgresStore) WithinTx(ctx context.Context, fn TxFunc) error {
	if s.pool == nil {
		// already bound to a transaction
		return fn(ctx, s)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()
	if err := fn(ctx, &PostgresStore{db: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) WithinTicket(ctx context.Context, ticketID int64, fn TxFunc) error {
	return s.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		pg := tx.(*PostgresStore)
		var locked int64
		if err := pg.db.QueryRow(ctx, `SELECT id FROM tickets WHERE id=$1 FOR UPDATE`, ticketID).Scan(&locked); err != nil {
			return translateErr(err)
		}
		return fn(ctx, tx)
	})
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if s.pool == nil {
		return errors.New("postgres pool not configured")
	}
	return s.pool.Ping(ctx)
}
