package domain

import "time"

// SyncStatus is the lifecycle of one sync attempt.
type SyncStatus string

const (
	SyncStatusRunning SyncStatus = "RUNNING"
	SyncStatusSuccess SyncStatus = "SUCCESS"
	SyncStatusFailed  SyncStatus = "FAILED"
)

// TriggerType records who started a sync.
type TriggerType string

const (
	TriggerManual    TriggerType = "MANUAL"
	TriggerScheduled TriggerType = "SCHEDULED"
)

// SyncLog is one row per sync attempt.
type SyncLog struct {
	ID             int64
	StartTime      time.Time
	EndTime        *time.Time
	TicketsCreated int
	TicketsUpdated int
	TicketsFailed  int
	Status         SyncStatus
	TriggerType    TriggerType
	ErrorMessage   *string
}

// SyncOutcome is returned to every sync caller, including skipped runs.
type SyncOutcome struct {
	NewCount     int    `json:"new_count"`
	UpdatedCount int    `json:"updated_count"`
	FailedCount  int    `json:"failed_count"`
	Success      bool   `json:"success"`
	Message      string `json:"message"`
}

// Persisted sync settings keys.
const (
	ConfigKeySyncCron     = "sync_cron"
	ConfigKeySyncEnabled  = "sync_enabled"
	ConfigKeyLastSyncTime = "last_sync_time"
)

// SyncSetting is a key/value row of mutable sync configuration.
type SyncSetting struct {
	Key         string
	Value       string
	Description string
	UpdatedAt   time.Time
}
