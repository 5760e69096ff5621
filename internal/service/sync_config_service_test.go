package service

import (
	"context"
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sync/internal/config"
	"github.com/spec-kit/ticket-sync/internal/domain"
	"github.com/spec-kit/ticket-sync/internal/repository"
	apperrors "github.com/spec-kit/ticket-sync/pkg/util/errorutil"
)

func newConfigService(store *repository.MemoryStore, validate func(string) error) *SyncConfigService {
	return NewSyncConfigService(SyncConfigDependencies{
		Settings:     store.SyncSettings(),
		Defaults:     config.SyncConfig{DefaultCron: "0 0/5 * * * ?", DefaultEnabled: true, Timezone: "Asia/Shanghai"},
		Logger:       zap.NewNop(),
		ValidateCron: validate,
	})
}

func TestInitDefaultsDoesNotOverwrite(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	svc := newConfigService(store, nil)

	require.NoError(t, svc.InitDefaults(ctx))
	require.NoError(t, store.SyncSettings().Set(ctx, domain.ConfigKeySyncEnabled, "false"))
	require.NoError(t, svc.InitDefaults(ctx))

	settings, err := svc.Settings(ctx)
	require.NoError(t, err)
	require.Equal(t, "0 0/5 * * * ?", settings.Cron)
	require.False(t, settings.Enabled)
	require.Nil(t, settings.LastSyncTime)
}

func TestSettingsFallBackToDefaultsWhenMissing(t *testing.T) {
	svc := newConfigService(repository.NewMemoryStore(), nil)
	settings, err := svc.Settings(context.Background())
	require.NoError(t, err)
	require.Equal(t, "0 0/5 * * * ?", settings.Cron)
	require.True(t, settings.Enabled)
}

func TestLastSyncTimeRoundTripAndLocalFormat(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	svc := newConfigService(store, nil)
	require.NoError(t, svc.InitDefaults(ctx))

	ts := time.Date(2024, 6, 1, 8, 30, 0, 0, time.UTC)
	require.NoError(t, svc.UpdateLastSyncTime(ctx, ts))
	got, err := svc.LastSyncTime(ctx)
	require.NoError(t, err)
	require.True(t, got.Equal(ts))

	require.NoError(t, store.SyncSettings().Set(ctx, domain.ConfigKeyLastSyncTime, "2024-06-01T16:30:00.123"))
	got, err = svc.LastSyncTime(ctx)
	require.NoError(t, err)
	require.True(t, got.Equal(time.Date(2024, 6, 1, 8, 30, 0, 123000000, time.UTC)))

	require.NoError(t, store.SyncSettings().Set(ctx, domain.ConfigKeyLastSyncTime, "yesterday"))
	_, err = svc.LastSyncTime(ctx)
	require.Error(t, err)
}

func TestUpdateValidatesAndReschedules(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	svc := newConfigService(store, func(expr string) error {
		if expr == "bad" {
			return errors.New("expected 5 to 6 fields")
		}
		return nil
	})
	require.NoError(t, svc.InitDefaults(ctx))

	var rescheduled []string
	svc.OnCronChange(func(expr string) error {
		rescheduled = append(rescheduled, expr)
		return nil
	})

	bad := "bad"
	_, err := svc.Update(ctx, SyncSettingsUpdate{Cron: &bad})
	require.Equal(t, "VALIDATION_FAILED", apperrors.ToDomainError(err).Code)
	require.Empty(t, rescheduled)

	cron := "0 */10 * * * *"
	disabled := false
	settings, err := svc.Update(ctx, SyncSettingsUpdate{Cron: &cron, Enabled: &disabled})
	require.NoError(t, err)
	require.Equal(t, cron, settings.Cron)
	require.False(t, settings.Enabled)
	require.Equal(t, []string{cron}, rescheduled)
}

func TestSyncLogRecoverInterrupted(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	logs := NewSyncLogService(store.SyncLogs(), zap.NewNop())

	_, err := logs.Start(ctx, domain.TriggerScheduled)
	require.NoError(t, err)
	n, err := logs.RecoverInterrupted(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	latest, err := logs.Latest(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.SyncStatusFailed, latest.Status)
	require.Equal(t, interruptedMessage, *latest.ErrorMessage)
}
