package repository

import (
	"context"

	"github.com/spec-kit/ticket-sync/internal/domain"
)

type syncConfigRepository struct {
	db DBTX
}

// NewSyncConfigRepository builds repository.
func NewSyncConfigRepository(db DBTX) SyncConfigRepository {
	return &syncConfigRepository{db: db}
}

func (r *syncConfigRepository) Get(ctx context.Context, key string) (*domain.SyncSetting, error) {
	const query = `SELECT config_key, config_value, description, updated_at FROM sync_config WHERE config_key=$1`
	var setting domain.SyncSetting
	if err := r.db.QueryRow(ctx, query, key).Scan(
		&setting.Key,
		&setting.Value,
		&setting.Description,
		&setting.UpdatedAt,
	); err != nil {
		return nil, translateErr(err)
	}
	return &setting, nil
}

func (r *syncConfigRepository) Set(ctx context.Context, key, value string) error {
	cmd, err := r.db.Exec(ctx, `UPDATE sync_config SET config_value=$1, updated_at=NOW() WHERE config_key=$2`, value, key)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *syncConfigRepository) InsertIfAbsent(ctx context.Context, setting domain.SyncSetting) (bool, error) {
	const query = `
        INSERT INTO sync_config (config_key, config_value, description)
        VALUES ($1,$2,$3)
        ON CONFLICT (config_key) DO NOTHING`
	cmd, err := r.db.Exec(ctx, query, setting.Key, setting.Value, setting.Description)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}
