package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/qs3c/lease_go_server/config"
	"github.com/qs3c/lease_go_server/internal/jobs"
	"github.com/qs3c/lease_go_server/internal/model"
	"github.com/qs3c/lease_go_server/internal/model/dto"
	"github.com/qs3c/lease_go_server/internal/ocr"
	"github.com/qs3c/lease_go_server/internal/pkg/blob"
	"github.com/qs3c/lease_go_server/internal/pkg/queue"
	"github.com/qs3c/lease_go_server/internal/repository"
)

const (
	defaultStatsHours = 24
	maxStatsHours     = 24 * 30

	// expectedProcessing 进度估算用的典型处理时长
	expectedProcessing = 5 * time.Minute
)

// JobQueue 任务唤醒队列，由 queue.Queue 实现
type JobQueue interface {
	Push(ctx context.Context, msg *queue.JobMessage) error
	Remove(ctx context.Context, jobID string) error
}

// SubmitJobInput 创建后台任务的参数
type SubmitJobInput struct {
	Filename    string
	FileType    string
	Data        []byte
	Question    string
	BuildingID  string
	Priority    *int
	RouteReason string
}

type JobService struct {
	jobRepo *repository.JobRepository
	machine *jobs.Machine
	store   blob.Store
	queue   JobQueue
	cfg     *config.Config
	logger  *zap.Logger
	now     func() time.Time
}

func NewJobService(
	jobRepo *repository.JobRepository,
	machine *jobs.Machine,
	store blob.Store,
	q JobQueue,
	cfg *config.Config,
	logger *zap.Logger,
) *JobService {
	return &JobService{
		jobRepo: jobRepo,
		machine: machine,
		store:   store,
		queue:   q,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// Submit 上传文件并创建 pending 任务
//
// 入队失败只记录日志，worker 的数据库扫描仍会领取该任务。
func (s *JobService) Submit(ctx context.Context, userID string, in *SubmitJobInput) (*model.ProcessingJob, error) {
	if len(in.Data) == 0 {
		return nil, ErrEmptyFile
	}
	if limit := s.cfg.Server.MaxUploadBytes; limit > 0 && int64(len(in.Data)) > limit {
		return nil, ErrFileTooLarge
	}

	priority := s.cfg.Jobs.DefaultPriority
	if in.Priority != nil {
		priority = *in.Priority
	}
	if priority < queue.MinPriority || priority > queue.MaxPriority {
		return nil, ErrInvalidPriority
	}

	now := s.now()
	key := blob.DocumentKey(userID, in.Filename, now)
	mime := ocr.DetectMIME(in.Filename, in.FileType, in.Data)
	if err := s.store.Put(ctx, key, in.Data, mime); err != nil {
		return nil, err
	}

	job := &model.ProcessingJob{
		ID:          uuid.NewString(),
		UserID:      userID,
		BuildingID:  in.BuildingID,
		Filename:    in.Filename,
		FileSize:    int64(len(in.Data)),
		FileType:    mime,
		FileKey:     key,
		Question:    in.Question,
		Status:      model.JobStatusPending,
		Priority:    priority,
		MaxRetries:  s.machine.MaxRetries(),
		RouteReason: in.RouteReason,
		CreatedAt:   now,
	}
	if err := s.jobRepo.Create(ctx, job); err != nil {
		if derr := s.store.Delete(ctx, key); derr != nil {
			s.logger.Warn("failed to remove orphaned upload", zap.String("key", key), zap.Error(derr))
		}
		return nil, err
	}

	s.enqueue(ctx, job)
	s.logger.Info("job submitted",
		zap.String("job_id", job.ID),
		zap.String("user_id", userID),
		zap.String("filename", job.Filename),
		zap.Int64("file_size", job.FileSize),
		zap.Int("priority", priority),
		zap.String("route_reason", in.RouteReason),
	)
	return job, nil
}

// Get 任务详情和进度信息
func (s *JobService) Get(ctx context.Context, userID, jobID string) (*dto.JobDetail, error) {
	job, err := s.owned(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	return &dto.JobDetail{Job: job, StatusInfo: s.statusInfo(job)}, nil
}

// Result 已完成任务的结果
func (s *JobService) Result(ctx context.Context, userID, jobID string) (*model.JobResults, error) {
	job, err := s.owned(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusCompleted {
		return nil, ErrJobNotCompleted
	}
	if job.Results == nil {
		return &model.JobResults{}, nil
	}
	return job.Results, nil
}

// Download 按格式导出已完成任务
func (s *JobService) Download(ctx context.Context, userID, jobID, format string) (*Download, error) {
	if format == "" {
		format = FormatFull
	}
	if !validFormat(format) {
		return nil, ErrInvalidFormat
	}
	job, err := s.owned(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusCompleted {
		return nil, ErrJobNotCompleted
	}
	return renderDownload(job, format, s.now())
}

// Retry failed -> retrying 并重新入队
func (s *JobService) Retry(ctx context.Context, userID, jobID string) (*dto.RetryJobResponse, error) {
	if _, err := s.owned(ctx, userID, jobID); err != nil {
		return nil, err
	}

	job, err := s.machine.Retry(ctx, jobID)
	if err != nil {
		switch {
		case errors.Is(err, jobs.ErrRetryLimit):
			return nil, ErrRetryLimit
		case errors.Is(err, jobs.ErrInvalidTransition):
			return nil, ErrJobNotRetryable
		case errors.Is(err, jobs.ErrNotFound):
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	s.enqueue(ctx, job)
	return &dto.RetryJobResponse{JobID: job.ID, Status: job.Status, RetryCount: job.RetryCount}, nil
}

// Cancel 取消任务，处理中的任务只做标记
func (s *JobService) Cancel(ctx context.Context, userID, jobID string) (*dto.CancelJobResponse, error) {
	if _, err := s.owned(ctx, userID, jobID); err != nil {
		return nil, err
	}

	outcome, err := s.machine.Cancel(ctx, jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrInvalidTransition) {
			return nil, ErrJobNotCancellable
		}
		return nil, err
	}

	if outcome == jobs.CancelDone {
		if err := s.queue.Remove(ctx, jobID); err != nil {
			s.logger.Warn("failed to remove cancelled job from queue", zap.String("job_id", jobID), zap.Error(err))
		}
	}
	return &dto.CancelJobResponse{JobID: jobID, Outcome: string(outcome)}, nil
}

// List 用户任务列表，按创建时间倒序
func (s *JobService) List(ctx context.Context, userID, status string, page, pageSize int) ([]*dto.JobListItem, int64, error) {
	st := model.JobStatus(status)
	if status != "" && !st.Valid() {
		return nil, 0, ErrInvalidStatus
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	list, total, err := s.jobRepo.ListByUser(ctx, userID, st, page, pageSize)
	if err != nil {
		return nil, 0, err
	}

	items := make([]*dto.JobListItem, len(list))
	for i, j := range list {
		items[i] = &dto.JobListItem{
			ID:                   j.ID,
			Filename:             j.Filename,
			FileSize:             j.FileSize,
			Status:               j.Status,
			Priority:             j.Priority,
			RetryCount:           j.RetryCount,
			OCRSource:            j.OCRSource,
			ErrorMessage:         j.ErrorMessage,
			ProcessingDurationMs: j.ProcessingDurationMs,
			CreatedAt:            j.CreatedAt.Format(time.RFC3339),
		}
	}
	return items, total, nil
}

// Stats 最近 hours 小时内的状态分布和平均耗时
func (s *JobService) Stats(ctx context.Context, userID string, hours int) (*dto.JobStats, error) {
	if hours <= 0 {
		hours = defaultStatsHours
	}
	if hours > maxStatsHours {
		hours = maxStatsHours
	}
	since := s.now().Add(-time.Duration(hours) * time.Hour)

	counts, err := s.jobRepo.CountByStatusSince(ctx, userID, since)
	if err != nil {
		return nil, err
	}
	avg, err := s.jobRepo.AvgDurationSince(ctx, userID, since)
	if err != nil {
		return nil, err
	}

	stats := &dto.JobStats{Hours: hours, ByStatus: counts, AvgDurationMs: avg}
	for _, n := range counts {
		stats.Total += n
	}
	return stats, nil
}

func (s *JobService) owned(ctx context.Context, userID, jobID string) (*model.ProcessingJob, error) {
	job, err := s.machine.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	if job.UserID != userID {
		return nil, ErrJobPermission
	}
	return job, nil
}

func (s *JobService) enqueue(ctx context.Context, job *model.ProcessingJob) {
	err := s.queue.Push(ctx, &queue.JobMessage{
		JobID:     job.ID,
		UserID:    job.UserID,
		Priority:  job.Priority,
		CreatedAt: job.CreatedAt,
	})
	if err != nil {
		s.logger.Warn("failed to enqueue job, relying on database scan",
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
	}
}

func (s *JobService) statusInfo(job *model.ProcessingJob) dto.JobStatusInfo {
	info := dto.JobStatusInfo{Status: job.Status}

	switch job.Status {
	case model.JobStatusPending:
		info.Message = "Waiting in queue for processing"
	case model.JobStatusProcessing:
		info.Message = "Processing document..."
		if job.CancelRequested {
			info.Message = "Cancellation requested"
		}
		start := job.AttemptStartedAt
		if start == nil {
			start = job.ProcessingStartedAt
		}
		if start != nil {
			elapsed := s.now().Sub(*start)
			info.Progress = min(int(elapsed*100/expectedProcessing), 95)
			if remaining := expectedProcessing - elapsed; remaining > 0 {
				secs := int64(remaining / time.Second)
				info.EstimatedTimeRemaining = &secs
			}
		}
	case model.JobStatusCompleted:
		info.Progress = 100
		info.Message = "Processing complete"
	case model.JobStatusFailed:
		info.Message = "Processing failed"
		if job.ErrorMessage != "" {
			info.Message = job.ErrorMessage
		}
		info.CanRetry = job.RetryCount < s.machine.RetryLimit(job)
	case model.JobStatusRetrying:
		info.Progress = 25
		info.Message = "Queued for retry"
	case model.JobStatusCancelled:
		info.Message = "Processing cancelled"
	}
	return info
}
