package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sync/internal/domain"
)

// defaultParser accepts both 5-field and 6-field (leading seconds) expressions, with "?" as a wildcard.
var defaultParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateCron reports whether expr can be scheduled.
func ValidateCron(expr string) error {
	_, err := defaultParser.Parse(expr)
	return err
}

// SyncRunner performs one sync pass.
type SyncRunner interface {
	Run(ctx context.Context, trigger domain.TriggerType) domain.SyncOutcome
}

// SyncSettings exposes the persisted schedule.
type SyncSettings interface {
	CronExpression(ctx context.Context) (string, error)
	IsEnabled(ctx context.Context) (bool, error)
}

// SyncScheduler fires scheduled sync runs on the configured cron expression.
type SyncScheduler struct {
	runner   SyncRunner
	settings SyncSettings
	logger   *zap.Logger
	cron     *cron.Cron
	parser   cron.Parser
	location *time.Location

	mu      sync.Mutex
	entry   cron.EntryID
	expr    string
	rootCtx context.Context

	startOnce sync.Once
	stopOnce  sync.Once
}

// NewSyncScheduler wires a scheduler around the sync engine.
func NewSyncScheduler(runner SyncRunner, settings SyncSettings, opts ...Option) *SyncScheduler {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	cronEngine := o.Cron
	if cronEngine == nil {
		cronEngine = cron.New(cron.WithLocation(o.Location), cron.WithParser(defaultParser))
	}
	return &SyncScheduler{
		runner:   runner,
		settings: settings,
		logger:   o.Logger,
		cron:     cronEngine,
		parser:   defaultParser,
		location: o.Location,
		rootCtx:  context.Background(),
	}
}

// Start schedules the stored expression and starts the cron loop.
func (s *SyncScheduler) Start(ctx context.Context) error {
	var err error
	s.startOnce.Do(func() {
		s.mu.Lock()
		s.rootCtx = ctx
		s.mu.Unlock()

		var expr string
		expr, err = s.settings.CronExpression(ctx)
		if err != nil {
			err = fmt.Errorf("read sync schedule: %w", err)
			return
		}
		if err = s.Reschedule(expr); err != nil {
			return
		}
		s.cron.Start()
	})
	return err
}

// Reschedule replaces the current schedule with expr.
func (s *SyncScheduler) Reschedule(expr string) error {
	schedule, err := s.parser.Parse(expr)
	if err != nil {
		return fmt.Errorf("parse sync schedule %q: %w", expr, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entry != 0 {
		s.cron.Remove(s.entry)
	}
	s.entry = s.cron.Schedule(schedule, cron.FuncJob(s.tick))
	s.expr = expr

	next := schedule.Next(time.Now().In(s.location))
	s.logger.Info("sync scheduled", zap.String("sync_cron", expr), zap.Time("next_run", next))
	return nil
}

// Expression returns the active schedule.
func (s *SyncScheduler) Expression() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expr
}

// Stop halts the cron loop and waits briefly for a running tick.
func (s *SyncScheduler) Stop() {
	s.stopOnce.Do(func() {
		ctx := s.cron.Stop()
		select {
		case <-ctx.Done():
		case <-time.After(5 * time.Second):
			s.logger.Warn("timed out waiting for scheduled sync to finish")
		}
	})
}

func (s *SyncScheduler) tick() {
	s.mu.Lock()
	ctx := s.rootCtx
	s.mu.Unlock()

	enabled, err := s.settings.IsEnabled(ctx)
	if err != nil {
		s.logger.Error("read sync_enabled, skipping scheduled sync", zap.Error(err))
		return
	}
	if !enabled {
		s.logger.Debug("scheduled sync disabled")
		return
	}

	outcome := s.runner.Run(ctx, domain.TriggerScheduled)
	fields := []zap.Field{
		zap.Bool("success", outcome.Success),
		zap.Int("created", outcome.NewCount),
		zap.Int("updated", outcome.UpdatedCount),
		zap.Int("failed", outcome.FailedCount),
		zap.String("message", outcome.Message),
	}
	if outcome.Success {
		s.logger.Info("scheduled sync finished", fields...)
	} else {
		s.logger.Warn("scheduled sync did not succeed", fields...)
	}
}
