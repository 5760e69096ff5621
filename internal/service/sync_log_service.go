package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sync/internal/domain"
	"github.com/spec-kit/ticket-sync/internal/repository"
)

const interruptedMessage = "interrupted: process stopped before the run finished"

// SyncLogService records one row per sync attempt.
type SyncLogService struct {
	logs   repository.SyncLogRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewSyncLogService constructs the recorder.
func NewSyncLogService(logs repository.SyncLogRepository, logger *zap.Logger) *SyncLogService {
	return &SyncLogService{logs: logs, logger: logger, now: time.Now}
}

// Start opens a RUNNING entry.
func (s *SyncLogService) Start(ctx context.Context, trigger domain.TriggerType) (*domain.SyncLog, error) {
	entry := &domain.SyncLog{
		StartTime:   s.now(),
		Status:      domain.SyncStatusRunning,
		TriggerType: trigger,
	}
	if err := s.logs.Create(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Complete marks the entry SUCCESS with final counts.
func (s *SyncLogService) Complete(ctx context.Context, entry *domain.SyncLog, created, updated, failed int) error {
	end := s.now()
	entry.EndTime = &end
	entry.TicketsCreated = created
	entry.TicketsUpdated = updated
	entry.TicketsFailed = failed
	entry.Status = domain.SyncStatusSuccess
	entry.ErrorMessage = nil
	return s.logs.Finish(ctx, entry)
}

// Fail marks the entry FAILED. Counts gathered before the failure are kept.
func (s *SyncLogService) Fail(ctx context.Context, entry *domain.SyncLog, message string) error {
	end := s.now()
	entry.EndTime = &end
	entry.Status = domain.SyncStatusFailed
	entry.ErrorMessage = &message
	return s.logs.Finish(ctx, entry)
}

// RecoverInterrupted closes RUNNING rows left by a previous process.
func (s *SyncLogService) RecoverInterrupted(ctx context.Context) (int64, error) {
	n, err := s.logs.FailRunning(ctx, interruptedMessage)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Warn("closed interrupted sync runs", zap.Int64("count", n))
	}
	return n, nil
}

// Latest returns the most recent attempt, or nil when none was recorded.
func (s *SyncLogService) Latest(ctx context.Context) (*domain.SyncLog, error) {
	entry, err := s.logs.Latest(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return entry, err
}
