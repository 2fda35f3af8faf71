package task

import (
	"time"

	"gorm.io/datatypes"
)

const (
	JobStatusPending = "pending"
	JobStatusRunning = "running"
	JobStatusSuccess = "success"
	JobStatusFailed  = "failed"
)

// Job is an execution record of a background task.
type Job struct {
	ID          string         `gorm:"column:id;primaryKey;type:varchar(32)"`
	Code        string         `gorm:"column:code;type:varchar(32);index"`
	TaskName    string         `gorm:"column:task_name;type:varchar(100);index;not null"`
	Status      string         `gorm:"column:status;type:varchar(20);default:'pending'"` // pending|running|success|failed
	ErrorMsg    string         `gorm:"column:error_msg;type:text"`
	StartedAt   *time.Time     `gorm:"column:started_at"`
	CompletedAt *time.Time     `gorm:"column:completed_at"`
	CreatedAt   time.Time      `gorm:"autoCreateTime"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime"`
	Metadata    datatypes.JSON `gorm:"column:metadata"`
}
