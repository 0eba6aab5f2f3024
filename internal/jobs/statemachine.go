// Package jobs 负责后台任务的路由决策与状态流转。
//
// 所有状态修改都是带状态条件的 UPDATE（WHERE id = ? AND status IN (...)），
// 影响行数为 0 即视为被拒绝，多个 worker 并发领取同一任务时只有一个能成功。
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qs3c/lease_go_server/internal/model"
)

var (
	ErrInvalidTransition = errors.New("jobs: invalid state transition")
	ErrRetryLimit        = errors.New("jobs: retry limit reached")
	ErrNotFound          = errors.New("jobs: job not found")
)

const DefaultMaxRetries = 3

// claimBatch ClaimNext 每次扫描的候选数量
const claimBatch = 5

// Store 任务存储，由 repository.JobRepository 实现
type Store interface {
	GetByID(ctx context.Context, id string) (*model.ProcessingJob, error)
	UpdateWhere(ctx context.Context, id string, from []model.JobStatus, updates map[string]interface{}) (bool, error)
	ClaimCandidates(ctx context.Context, limit int) ([]*model.ProcessingJob, error)
}

var transitions = map[model.JobStatus][]model.JobStatus{
	model.JobStatusPending:    {model.JobStatusProcessing, model.JobStatusCancelled},
	model.JobStatusProcessing: {model.JobStatusCompleted, model.JobStatusFailed, model.JobStatusCancelled},
	model.JobStatusFailed:     {model.JobStatusRetrying},
	model.JobStatusRetrying:   {model.JobStatusProcessing, model.JobStatusCancelled},
}

// CanTransition 查表判断 from -> to 是否合法
func CanTransition(from, to model.JobStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// sources 所有可以转到 to 的状态
func sources(to model.JobStatus) []model.JobStatus {
	var from []model.JobStatus
	for _, s := range model.AllJobStatuses {
		if CanTransition(s, to) {
			from = append(from, s)
		}
	}
	return from
}

// Completion 任务完成时写入的结果
type Completion struct {
	Results       *model.JobResults
	ExtractedText string
	OCRSource     string
}

// CancelOutcome 取消请求的结果
type CancelOutcome string

const (
	CancelDone      CancelOutcome = "cancelled"
	CancelRequested CancelOutcome = "cancel_requested"
)

type Machine struct {
	store      Store
	maxRetries int
	now        func() time.Time
	logger     *zap.Logger
}

func NewMachine(store Store, maxRetries int, logger *zap.Logger) *Machine {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Machine{
		store:      store,
		maxRetries: maxRetries,
		now:        time.Now,
		logger:     logger,
	}
}

// MaxRetries 全局重试上限
func (m *Machine) MaxRetries() int {
	return m.maxRetries
}

// Get 查询任务，不存在时返回 ErrNotFound
func (m *Machine) Get(ctx context.Context, id string) (*model.ProcessingJob, error) {
	job, err := m.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

// Claim pending|retrying -> processing
//
// processing_started_at 只在第一次领取时写入；每次领取都会刷新 attempt_started_at，
// 并清空上一次失败留下的完成时间和耗时。
func (m *Machine) Claim(ctx context.Context, id string) (*model.ProcessingJob, error) {
	now := m.now()
	ok, err := m.store.UpdateWhere(ctx, id, sources(model.JobStatusProcessing), map[string]interface{}{
		"status":                  model.JobStatusProcessing,
		"processing_started_at":   gorm.Expr("COALESCE(processing_started_at, ?)", now),
		"attempt_started_at":      now,
		"processing_completed_at": nil,
		"processing_duration_ms":  nil,
		"cancel_requested":        false,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, m.rejection(ctx, id, model.JobStatusProcessing)
	}

	job, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	m.logger.Info("job claimed",
		zap.String("job_id", id),
		zap.Int("retry_count", job.RetryCount),
		zap.Int("priority", job.Priority),
	)
	return job, nil
}

// ClaimNext 按 priority, created_at 扫描并领取下一个任务，没有可领取任务时返回 nil, nil
func (m *Machine) ClaimNext(ctx context.Context) (*model.ProcessingJob, error) {
	candidates, err := m.store.ClaimCandidates(ctx, claimBatch)
	if err != nil {
		return nil, err
	}
	for _, c := range candidates {
		job, err := m.Claim(ctx, c.ID)
		if errors.Is(err, ErrInvalidTransition) {
			continue // 被其他 worker 抢先领取
		}
		if err != nil {
			return nil, err
		}
		return job, nil
	}
	return nil, nil
}

// Complete processing -> completed
func (m *Machine) Complete(ctx context.Context, id string, c Completion) error {
	job, err := m.processing(ctx, id, model.JobStatusCompleted)
	if err != nil {
		return err
	}

	now := m.now()
	updates := map[string]interface{}{
		"status":                  model.JobStatusCompleted,
		"processing_completed_at": now,
		"processing_duration_ms":  durationMs(job, now),
		"extracted_text":          c.ExtractedText,
		"ocr_source":              c.OCRSource,
		"error_message":           "",
	}
	if c.Results != nil {
		updates["results"] = *c.Results
	}
	if err := m.apply(ctx, id, model.JobStatusCompleted, updates); err != nil {
		return err
	}
	m.logger.Info("job completed", zap.String("job_id", id), zap.String("ocr_source", c.OCRSource))
	return nil
}

// Fail processing -> failed
func (m *Machine) Fail(ctx context.Context, id string, reason string) error {
	job, err := m.processing(ctx, id, model.JobStatusFailed)
	if err != nil {
		return err
	}

	now := m.now()
	err = m.apply(ctx, id, model.JobStatusFailed, map[string]interface{}{
		"status":                  model.JobStatusFailed,
		"error_message":           reason,
		"processing_completed_at": now,
		"processing_duration_ms":  durationMs(job, now),
	})
	if err != nil {
		return err
	}
	m.logger.Warn("job failed", zap.String("job_id", id), zap.String("reason", reason))
	return nil
}

// Retry failed -> retrying，retry_count 加一，保留 error_message
func (m *Machine) Retry(ctx context.Context, id string) (*model.ProcessingJob, error) {
	job, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusFailed {
		return nil, invalid(job.Status, model.JobStatusRetrying)
	}
	if job.RetryCount >= m.RetryLimit(job) {
		return nil, fmt.Errorf("%w: %d of %d retries used", ErrRetryLimit, job.RetryCount, m.RetryLimit(job))
	}

	err = m.apply(ctx, id, model.JobStatusRetrying, map[string]interface{}{
		"status":           model.JobStatusRetrying,
		"retry_count":      gorm.Expr("retry_count + 1"),
		"cancel_requested": false,
	})
	if err != nil {
		return nil, err
	}
	m.logger.Info("job queued for retry", zap.String("job_id", id), zap.Int("retry_count", job.RetryCount+1))
	return m.Get(ctx, id)
}

// Cancel pending|retrying 直接取消；processing 只打上 cancel_requested 标记，由 worker 在检查点完成取消
func (m *Machine) Cancel(ctx context.Context, id string) (CancelOutcome, error) {
	ok, err := m.store.UpdateWhere(ctx, id,
		[]model.JobStatus{model.JobStatusPending, model.JobStatusRetrying},
		map[string]interface{}{"status": model.JobStatusCancelled},
	)
	if err != nil {
		return "", err
	}
	if ok {
		m.logger.Info("job cancelled", zap.String("job_id", id))
		return CancelDone, nil
	}

	ok, err = m.store.UpdateWhere(ctx, id,
		[]model.JobStatus{model.JobStatusProcessing},
		map[string]interface{}{"cancel_requested": true},
	)
	if err != nil {
		return "", err
	}
	if ok {
		m.logger.Info("job cancellation requested", zap.String("job_id", id))
		return CancelRequested, nil
	}
	return "", m.rejection(ctx, id, model.JobStatusCancelled)
}

// CancelRequested worker 检查点调用
func (m *Machine) CancelRequested(ctx context.Context, id string) (bool, error) {
	job, err := m.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return job.CancelRequested, nil
}

// FinishCancelled processing -> cancelled，worker 在检查点发现取消标记后调用
func (m *Machine) FinishCancelled(ctx context.Context, id string) error {
	if err := m.apply(ctx, id, model.JobStatusCancelled, map[string]interface{}{
		"status": model.JobStatusCancelled,
	}); err != nil {
		return err
	}
	m.logger.Info("job cancelled at checkpoint", zap.String("job_id", id))
	return nil
}

func (m *Machine) processing(ctx context.Context, id string, to model.JobStatus) (*model.ProcessingJob, error) {
	job, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusProcessing {
		return nil, invalid(job.Status, to)
	}
	return job, nil
}

// apply 仅允许从 to 的合法前驱状态更新；取消检查点只处理 processing
func (m *Machine) apply(ctx context.Context, id string, to model.JobStatus, updates map[string]interface{}) error {
	from := sources(to)
	if to == model.JobStatusCancelled {
		from = []model.JobStatus{model.JobStatusProcessing}
	}
	ok, err := m.store.UpdateWhere(ctx, id, from, updates)
	if err != nil {
		return err
	}
	if !ok {
		return m.rejection(ctx, id, to)
	}
	return nil
}

func (m *Machine) rejection(ctx context.Context, id string, to model.JobStatus) error {
	job, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	return invalid(job.Status, to)
}

// RetryLimit 任务级上限与全局上限取较小值
func (m *Machine) RetryLimit(job *model.ProcessingJob) int {
	if job.MaxRetries > 0 && job.MaxRetries < m.maxRetries {
		return job.MaxRetries
	}
	return m.maxRetries
}

func invalid(from, to model.JobStatus) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

func durationMs(job *model.ProcessingJob, now time.Time) int64 {
	start := job.AttemptStartedAt
	if start == nil {
		start = job.ProcessingStartedAt
	}
	if start == nil {
		return 0
	}
	return now.Sub(*start).Milliseconds()
}
