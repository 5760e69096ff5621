package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sync/internal/config"
	"github.com/spec-kit/ticket-sync/internal/domain"
	"github.com/spec-kit/ticket-sync/internal/repository"
	apperrors "github.com/spec-kit/ticket-sync/pkg/util/errorutil"
)

// localWatermarkLayouts accept watermarks written without a zone offset.
var localWatermarkLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// SyncSettings is the effective persisted configuration.
type SyncSettings struct {
	Cron         string     `json:"sync_cron"`
	Enabled      bool       `json:"sync_enabled"`
	LastSyncTime *time.Time `json:"last_sync_time"`
}

// SyncSettingsUpdate carries optional changes. Nil fields are left untouched.
type SyncSettingsUpdate struct {
	Cron    *string
	Enabled *bool
}

// SyncConfigDependencies bundles collaborators for SyncConfigService.
type SyncConfigDependencies struct {
	Settings repository.SyncConfigRepository
	Defaults config.SyncConfig
	Logger   *zap.Logger
	// ValidateCron rejects schedule expressions the scheduler cannot parse.
	ValidateCron func(expr string) error
}

// SyncConfigService reads and writes the sync_config key/value settings.
type SyncConfigService struct {
	settings repository.SyncConfigRepository
	defaults config.SyncConfig
	location *time.Location
	logger   *zap.Logger
	validate func(string) error

	mu          sync.RWMutex
	cronChanged func(expr string) error
}

// NewSyncConfigService constructs the service.
func NewSyncConfigService(deps SyncConfigDependencies) *SyncConfigService {
	validate := deps.ValidateCron
	if validate == nil {
		validate = func(string) error { return nil }
	}
	return &SyncConfigService{
		settings: deps.Settings,
		defaults: deps.Defaults,
		location: deps.Defaults.Location(),
		logger:   deps.Logger,
		validate: validate,
	}
}

// OnCronChange registers the callback invoked after a new schedule is stored.
func (s *SyncConfigService) OnCronChange(fn func(expr string) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cronChanged = fn
}

// InitDefaults inserts every missing key with its default value.
func (s *SyncConfigService) InitDefaults(ctx context.Context) error {
	defaults := []domain.SyncSetting{
		{Key: domain.ConfigKeySyncCron, Value: s.defaults.DefaultCron, Description: "sync schedule (cron, seconds optional)"},
		{Key: domain.ConfigKeySyncEnabled, Value: strconv.FormatBool(s.defaults.DefaultEnabled), Description: "whether scheduled sync runs"},
		{Key: domain.ConfigKeyLastSyncTime, Value: "", Description: "watermark of the last successful sync, empty means never"},
	}
	for _, setting := range defaults {
		added, err := s.settings.InsertIfAbsent(ctx, setting)
		if err != nil {
			return fmt.Errorf("init setting %s: %w", setting.Key, err)
		}
		if added {
			s.logger.Info("initialized sync setting", zap.String("key", setting.Key), zap.String("value", setting.Value))
		}
	}
	return nil
}

// CronExpression returns the stored schedule or the default.
func (s *SyncConfigService) CronExpression(ctx context.Context) (string, error) {
	value, ok, err := s.get(ctx, domain.ConfigKeySyncCron)
	if err != nil || !ok || strings.TrimSpace(value) == "" {
		return s.defaults.DefaultCron, err
	}
	return value, nil
}

// IsEnabled reports whether scheduled runs should fire.
func (s *SyncConfigService) IsEnabled(ctx context.Context) (bool, error) {
	value, ok, err := s.get(ctx, domain.ConfigKeySyncEnabled)
	if err != nil || !ok {
		return s.defaults.DefaultEnabled, err
	}
	enabled, perr := strconv.ParseBool(strings.TrimSpace(value))
	if perr != nil {
		s.logger.Warn("invalid sync_enabled value, using default", zap.String("value", value))
		return s.defaults.DefaultEnabled, nil
	}
	return enabled, nil
}

// LastSyncTime returns the watermark, or nil when no sync has succeeded yet.
func (s *SyncConfigService) LastSyncTime(ctx context.Context) (*time.Time, error) {
	value, ok, err := s.get(ctx, domain.ConfigKeyLastSyncTime)
	if err != nil {
		return nil, err
	}
	value = strings.TrimSpace(value)
	if !ok || value == "" {
		return nil, nil
	}
	ts, err := s.parseWatermark(value)
	if err != nil {
		return nil, fmt.Errorf("parse last_sync_time %q: %w", value, err)
	}
	return &ts, nil
}

// UpdateLastSyncTime stores the watermark in RFC 3339 UTC.
func (s *SyncConfigService) UpdateLastSyncTime(ctx context.Context, ts time.Time) error {
	return s.set(ctx, domain.SyncSetting{
		Key:         domain.ConfigKeyLastSyncTime,
		Value:       ts.UTC().Format(time.RFC3339Nano),
		Description: "watermark of the last successful sync, empty means never",
	})
}

// Settings returns the effective configuration.
func (s *SyncConfigService) Settings(ctx context.Context) (SyncSettings, error) {
	cron, err := s.CronExpression(ctx)
	if err != nil {
		return SyncSettings{}, err
	}
	enabled, err := s.IsEnabled(ctx)
	if err != nil {
		return SyncSettings{}, err
	}
	last, err := s.LastSyncTime(ctx)
	if err != nil {
		return SyncSettings{}, err
	}
	return SyncSettings{Cron: cron, Enabled: enabled, LastSyncTime: last}, nil
}

// Update applies the given changes. A new cron expression is validated before it is stored
// and the registered callback reschedules the timer afterwards.
func (s *SyncConfigService) Update(ctx context.Context, input SyncSettingsUpdate) (SyncSettings, error) {
	if input.Cron != nil {
		expr := strings.TrimSpace(*input.Cron)
		if expr == "" {
			return SyncSettings{}, apperrors.NewValidationError("sync_cron must not be empty", nil)
		}
		if err := s.validate(expr); err != nil {
			return SyncSettings{}, apperrors.NewValidationError("invalid sync_cron", map[string]any{"sync_cron": expr, "reason": err.Error()})
		}
		if err := s.set(ctx, domain.SyncSetting{Key: domain.ConfigKeySyncCron, Value: expr, Description: "sync schedule (cron, seconds optional)"}); err != nil {
			return SyncSettings{}, err
		}
		s.mu.RLock()
		callback := s.cronChanged
		s.mu.RUnlock()
		if callback != nil {
			if err := callback(expr); err != nil {
				return SyncSettings{}, apperrors.NewInternalError(fmt.Errorf("reschedule sync: %w", err))
			}
		}
		s.logger.Info("sync schedule updated", zap.String("sync_cron", expr))
	}
	if input.Enabled != nil {
		value := strconv.FormatBool(*input.Enabled)
		if err := s.set(ctx, domain.SyncSetting{Key: domain.ConfigKeySyncEnabled, Value: value, Description: "whether scheduled sync runs"}); err != nil {
			return SyncSettings{}, err
		}
		s.logger.Info("sync enabled flag updated", zap.Bool("sync_enabled", *input.Enabled))
	}
	return s.Settings(ctx)
}

func (s *SyncConfigService) get(ctx context.Context, key string) (string, bool, error) {
	setting, err := s.settings.Get(ctx, key)
	if errors.Is(err, repository.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return setting.Value, true, nil
}

// set writes an existing key, inserting it first when InitDefaults never ran.
func (s *SyncConfigService) set(ctx context.Context, setting domain.SyncSetting) error {
	err := s.settings.Set(ctx, setting.Key, setting.Value)
	if !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	added, err := s.settings.InsertIfAbsent(ctx, setting)
	if err != nil || added {
		return err
	}
	return s.settings.Set(ctx, setting.Key, setting.Value)
}

func (s *SyncConfigService) parseWatermark(value string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	var lastErr error
	for _, layout := range localWatermarkLayouts {
		ts, err := time.ParseInLocation(layout, value, s.location)
		if err == nil {
			return ts, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
