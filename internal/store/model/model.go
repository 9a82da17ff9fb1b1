// Package model defines the GORM-mapped persistent entities of the
// inventory store (spec §3). Every row is owned exclusively by the store;
// other components mutate state only through store operations.
package model

import (
	"time"

	"github.com/google/uuid"
)

// RouterStatus is the lifecycle status of a managed router.
type RouterStatus string

const (
	RouterStatusUnknown         RouterStatus = "unknown"
	RouterStatusUpToDate        RouterStatus = "up_to_date"
	RouterStatusUpdateAvailable RouterStatus = "update_available"
	RouterStatusUpdating        RouterStatus = "updating"
	RouterStatusUnreachable     RouterStatus = "unreachable"
	RouterStatusError           RouterStatus = "error"
)

// Router is the identity and current state of one managed device.
type Router struct {
	ID                 uuid.UUID `gorm:"type:text;primaryKey"`
	DeviceName         string    `gorm:"column:device_name;not null"`
	IPAddress          string    `gorm:"column:ip_address;uniqueIndex;not null"`
	Username           *string   `gorm:"column:username"`
	Password           *string   `gorm:"column:password"`
	CurrentFirmware    *string   `gorm:"column:current_firmware"`
	AvailableFirmware  *string   `gorm:"column:available_firmware"`
	Status             RouterStatus `gorm:"column:status;index;not null"`
	LastCheck          *time.Time   `gorm:"column:last_check"`
	CreatedAt          time.Time    `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time    `gorm:"column:updated_at;autoUpdateTime"`
}

func (Router) TableName() string { return "routers" }

// HistoryStatus is the status of one update attempt.
type HistoryStatus string

const (
	HistoryStatusRunning HistoryStatus = "running"
	HistoryStatusSuccess HistoryStatus = "success"
	HistoryStatusFailed  HistoryStatus = "failed"
)

// UpdateHistoryRecord is one rollout attempt against one router.
type UpdateHistoryRecord struct {
	ID              uuid.UUID     `gorm:"type:text;primaryKey"`
	RouterID        uuid.UUID     `gorm:"column:router_id;index;not null"`
	FirmwareBefore  *string       `gorm:"column:firmware_before"`
	FirmwareAfter   *string       `gorm:"column:firmware_after"`
	Status          HistoryStatus `gorm:"column:status;not null"`
	ErrorMessage    *string       `gorm:"column:error_message"`
	StartedAt       time.Time     `gorm:"column:started_at;not null"`
	CompletedAt     *time.Time    `gorm:"column:completed_at"`
}

func (UpdateHistoryRecord) TableName() string { return "update_history" }

// JobStatus is the status of one rollout.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusCancelled JobStatus = "cancelled"
)

// BatchJob is one rollout run.
type BatchJob struct {
	ID                uuid.UUID `gorm:"type:text;primaryKey"`
	Status            JobStatus `gorm:"column:status;index;not null"`
	BatchSize         int       `gorm:"column:batch_size;not null"`
	TotalRouters      int       `gorm:"column:total_routers;not null"`
	CompletedRouters  int       `gorm:"column:completed_routers;not null"`
	FailedRouters     int       `gorm:"column:failed_routers;not null"`
	CreatedAt         time.Time  `gorm:"column:created_at;autoCreateTime"`
	StartedAt         *time.Time `gorm:"column:started_at"`
	CompletedAt       *time.Time `gorm:"column:completed_at"`
}

func (BatchJob) TableName() string { return "batch_jobs" }

// Setting is a key/value configuration row.
type Setting struct {
	Key   string `gorm:"column:key;primaryKey"`
	Value string `gorm:"column:value;not null"`
}

func (Setting) TableName() string { return "settings" }

// Known setting keys.
const (
	SettingGlobalUsername   = "global_username"
	SettingGlobalPassword   = "global_password"
	SettingBatchWaitMinutes = "batch_wait_minutes"
	SettingScanCron         = "scan_cron"
)

// FirmwareVersion maps a device-family prefix to its known-latest version.
type FirmwareVersion struct {
	DevicePrefix  string    `gorm:"column:device_prefix;primaryKey"`
	LatestVersion string    `gorm:"column:latest_version;not null"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (FirmwareVersion) TableName() string { return "firmware_versions" }
