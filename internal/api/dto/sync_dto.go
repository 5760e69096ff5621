package dto

import (
	"time"

	"github.com/spec-kit/ticket-sync/internal/domain"
	"github.com/spec-kit/ticket-sync/internal/service"
)

// UpdateSyncConfigRequest payload. Omitted fields are left unchanged.
type UpdateSyncConfigRequest struct {
	SyncCron    *string `json:"sync_cron"`
	SyncEnabled *bool   `json:"sync_enabled"`
}

// SyncConfigResponse mirrors the persisted settings.
type SyncConfigResponse struct {
	SyncCron     string     `json:"sync_cron"`
	SyncEnabled  bool       `json:"sync_enabled"`
	LastSyncTime *time.Time `json:"last_sync_time"`
}

// SyncLogResponse represents one sync attempt.
type SyncLogResponse struct {
	ID             int64              `json:"id"`
	StartTime      time.Time          `json:"start_time"`
	EndTime        *time.Time         `json:"end_time"`
	TicketsCreated int                `json:"tickets_created"`
	TicketsUpdated int                `json:"tickets_updated"`
	TicketsFailed  int                `json:"tickets_failed"`
	Status         domain.SyncStatus  `json:"status"`
	TriggerType    domain.TriggerType `json:"trigger_type"`
	ErrorMessage   *string            `json:"error_message,omitempty"`
}

// SyncStatusResponse reports sync progress.
type SyncStatusResponse struct {
	IsSyncing    bool             `json:"is_syncing"`
	LastSyncTime *time.Time       `json:"last_sync_time"`
	LastRun      *SyncLogResponse `json:"last_run,omitempty"`
}

// NewSyncConfigResponse maps settings.
func NewSyncConfigResponse(s service.SyncSettings) SyncConfigResponse {
	return SyncConfigResponse{SyncCron: s.Cron, SyncEnabled: s.Enabled, LastSyncTime: s.LastSyncTime}
}

// NewSyncStatusResponse maps the sync state.
func NewSyncStatusResponse(s service.SyncState) SyncStatusResponse {
	resp := SyncStatusResponse{IsSyncing: s.IsSyncing, LastSyncTime: s.LastSyncTime}
	if l := s.LastRun; l != nil {
		resp.LastRun = &SyncLogResponse{
			ID:             l.ID,
			StartTime:      l.StartTime,
			EndTime:        l.EndTime,
			TicketsCreated: l.TicketsCreated,
			TicketsUpdated: l.TicketsUpdated,
			TicketsFailed:  l.TicketsFailed,
			Status:         l.Status,
			TriggerType:    l.TriggerType,
			ErrorMessage:   l.ErrorMessage,
		}
	}
	return resp
}
