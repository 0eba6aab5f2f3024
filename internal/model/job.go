package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// JobStatus 任务状态
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
	JobStatusCancelled  JobStatus = "cancelled"
)

// AllJobStatuses 用于统计和参数校验
var AllJobStatuses = []JobStatus{
	JobStatusPending,
	JobStatusProcessing,
	JobStatusCompleted,
	JobStatusFailed,
	JobStatusRetrying,
	JobStatusCancelled,
}

func (s JobStatus) Valid() bool {
	for _, st := range AllJobStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// JobResults 任务完成后的结果载荷
type JobResults struct {
	Analysis     *AnalysisResult `json:"analysis,omitempty"`
	LeaseSummary *LeaseSummary   `json:"lease_summary,omitempty"`
	Issues       []string        `json:"issues,omitempty"`
}

func (r JobResults) Value() (driver.Value, error) {
	return json.Marshal(r)
}

func (r *JobResults) Scan(value interface{}) error {
	if value == nil {
		*r = JobResults{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New("model: unsupported type for JobResults")
	}
	if len(data) == 0 {
		*r = JobResults{}
		return nil
	}
	return json.Unmarshal(data, r)
}

// ProcessingJob 后台文档处理任务，只能通过 jobs.Machine 修改
type ProcessingJob struct {
	ID                    string      `gorm:"primaryKey;size:36" json:"id"`
	UserID                string      `gorm:"size:64;not null;index" json:"user_id"`
	BuildingID            string      `gorm:"size:64;index" json:"building_id,omitempty"`
	Filename              string      `gorm:"size:255;not null" json:"filename"`
	FileSize              int64       `gorm:"not null" json:"file_size"`
	FileType              string      `gorm:"size:100;not null" json:"file_type"`
	FileKey               string      `gorm:"size:500;not null" json:"-"`
	Question              string      `gorm:"type:text" json:"question,omitempty"`
	Status                JobStatus   `gorm:"size:20;default:pending;index:idx_jobs_claim,priority:1" json:"status"`
	Priority              int         `gorm:"not null;index:idx_jobs_claim,priority:2" json:"priority"`
	RetryCount            int         `gorm:"default:0" json:"retry_count"`
	MaxRetries            int         `gorm:"default:3" json:"max_retries"`
	CancelRequested       bool        `gorm:"default:false" json:"cancel_requested"`
	RouteReason           string      `gorm:"size:50" json:"route_reason,omitempty"`
	CreatedAt             time.Time   `gorm:"index:idx_jobs_claim,priority:3" json:"created_at"`
	UpdatedAt             time.Time   `json:"updated_at"`
	ProcessingStartedAt   *time.Time  `json:"processing_started_at,omitempty"`
	AttemptStartedAt      *time.Time  `json:"attempt_started_at,omitempty"`
	ProcessingCompletedAt *time.Time  `json:"processing_completed_at,omitempty"`
	ProcessingDurationMs  *int64      `json:"processing_duration_ms,omitempty"`
	OCRSource             string      `gorm:"column:ocr_source;size:50" json:"ocr_source,omitempty"`
	ErrorMessage          string      `gorm:"type:text" json:"error_message,omitempty"`
	ExtractedText         string      `gorm:"type:longtext" json:"-"`
	Results               *JobResults `gorm:"type:json" json:"results,omitempty"`
}

func (ProcessingJob) TableName() string {
	return "processing_jobs"
}

// IsTerminal 是否处于自动处理的终态
func (j *ProcessingJob) IsTerminal() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// CanRetry 失败且未达到重试上限
func (j *ProcessingJob) CanRetry() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}
