package dto

import "github.com/qs3c/lease_go_server/internal/model"

// DocumentMetadata 调用方随文本一并提交的文档信息
type DocumentMetadata struct {
	Filename         string   `json:"filename"`
	FileSize         int64    `json:"fileSize,omitempty"`
	ProcessingEngine string   `json:"processingEngine,omitempty"`
	OCRConfidence    *float64 `json:"ocrConfidence,omitempty"`
}

// AnalyzeRequest 对已提取文本的即时问答请求
type AnalyzeRequest struct {
	Question         string            `json:"question"`
	DocumentText     string            `json:"documentText"`
	DocumentMetadata *DocumentMetadata `json:"documentMetadata,omitempty"`
}

// SubmitDocumentResponse 文档提交响应，path 为 quick 时带 result，为 background 时带 job_id
type SubmitDocumentResponse struct {
	Path         string                `json:"path"`
	Reason       string                `json:"reason"`
	PageEstimate int                   `json:"page_estimate,omitempty"`
	Result       *model.AnalysisResult `json:"result,omitempty"`
	JobID        string                `json:"job_id,omitempty"`
	Message      string                `json:"message,omitempty"`
	Alternatives []string              `json:"alternatives,omitempty"`
}

// SubmitJobResponse 创建后台任务的响应
type SubmitJobResponse struct {
	JobID    string          `json:"job_id"`
	Status   model.JobStatus `json:"status"`
	Priority int             `json:"priority"`
}

// JobStatusInfo 面向前端的任务进度描述
type JobStatusInfo struct {
	Status                 model.JobStatus `json:"status"`
	Progress               int             `json:"progress"`
	Message                string          `json:"message"`
	EstimatedTimeRemaining *int64          `json:"estimated_time_remaining,omitempty"` // 秒
	CanRetry               bool            `json:"can_retry"`
}

// JobDetail 任务详情
type JobDetail struct {
	Job        *model.ProcessingJob `json:"job"`
	StatusInfo JobStatusInfo        `json:"status_info"`
}

// JobListItem 任务列表项
type JobListItem struct {
	ID                   string          `json:"id"`
	Filename             string          `json:"filename"`
	FileSize             int64           `json:"file_size"`
	Status               model.JobStatus `json:"status"`
	Priority             int             `json:"priority"`
	RetryCount           int             `json:"retry_count"`
	OCRSource            string          `json:"ocr_source,omitempty"`
	ErrorMessage         string          `json:"error_message,omitempty"`
	ProcessingDurationMs *int64          `json:"processing_duration_ms,omitempty"`
	CreatedAt            string          `json:"created_at"`
}

// JobStats 指定时间窗口内的任务统计
type JobStats struct {
	Hours         int                       `json:"hours"`
	Total         int64                     `json:"total"`
	ByStatus      map[model.JobStatus]int64 `json:"by_status"`
	AvgDurationMs float64                   `json:"avg_duration_ms"`
}

// RetryJobResponse 重试响应
type RetryJobResponse struct {
	JobID      string          `json:"job_id"`
	Status     model.JobStatus `json:"status"`
	RetryCount int             `json:"retry_count"`
}

// CancelJobResponse 取消响应，outcome 为 cancelled 或 cancel_requested
type CancelJobResponse struct {
	JobID   string `json:"job_id"`
	Outcome string `json:"outcome"`
}
