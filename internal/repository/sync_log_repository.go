package repository

import (
	"context"

	"github.com/spec-kit/ticket-sync/internal/domain"
)

type syncLogRepository struct {
	db DBTX
}

// NewSyncLogRepository builds repository.
func NewSyncLogRepository(db DBTX) SyncLogRepository {
	return &syncLogRepository{db: db}
}

func (r *syncLogRepository) Create(ctx context.Context, log *domain.SyncLog) error {
	const query = `
        INSERT INTO sync_logs (start_time, status, trigger_type)
        VALUES ($1,$2,$3)
        RETURNING id`
	return r.db.QueryRow(ctx, query, log.StartTime, log.Status, log.TriggerType).Scan(&log.ID)
}

func (r *syncLogRepository) Finish(ctx context.Context, log *domain.SyncLog) error {
	const query = `
        UPDATE sync_logs SET end_time=$1, tickets_created=$2, tickets_updated=$3, tickets_failed=$4,
            status=$5, error_message=$6
        WHERE id=$7`
	cmd, err := r.db.Exec(ctx, query,
		log.EndTime,
		log.TicketsCreated,
		log.TicketsUpdated,
		log.TicketsFailed,
		log.Status,
		log.ErrorMessage,
		log.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *syncLogRepository) Latest(ctx context.Context) (*domain.SyncLog, error) {
	const query = `
        SELECT id, start_time, end_time, tickets_created, tickets_updated, tickets_failed, status, trigger_type, error_message
        FROM sync_logs ORDER BY start_time DESC, id DESC LIMIT 1`
	var log domain.SyncLog
	if err := r.db.QueryRow(ctx, query).Scan(
		&log.ID,
		&log.StartTime,
		&log.EndTime,
		&log.TicketsCreated,
		&log.TicketsUpdated,
		&log.TicketsFailed,
		&log.Status,
		&log.TriggerType,
		&log.ErrorMessage,
	); err != nil {
		return nil, translateErr(err)
	}
	return &log, nil
}

func (r *syncLogRepository) FailRunning(ctx context.Context, message string) (int64, error) {
	const query = `
        UPDATE sync_logs SET status=$1, end_time=NOW(), error_message=$2
        WHERE status=$3`
	cmd, err := r.db.Exec(ctx, query, domain.SyncStatusFailed, message, domain.SyncStatusRunning)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
