package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	"gorm.io/gorm"

	"github.com/qs3c/lease_go_server/internal/model"
)

// claimableStatuses 可被 worker 领取的状态
var claimableStatuses = []model.JobStatus{model.JobStatusPending, model.JobStatusRetrying}

type JobRepository struct {
	db *gorm.DB
}

func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) Create(ctx context.Context, job *model.ProcessingJob) error {
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return eris.Wrap(err, "repository: create job")
	}
	return nil
}

// GetByID 未找到时返回的错误满足 errors.Is(err, gorm.ErrRecordNotFound)
func (r *JobRepository) GetByID(ctx context.Context, id string) (*model.ProcessingJob, error) {
	var job model.ProcessingJob
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error
	if err != nil {
		return nil, eris.Wrapf(err, "repository: get job %s", id)
	}
	return &job, nil
}

// ListByUser 分页查询用户任务，按创建时间倒序，不加载提取文本
func (r *JobRepository) ListByUser(ctx context.Context, userID string, status model.JobStatus, page, pageSize int) ([]*model.ProcessingJob, int64, error) {
	query := r.db.WithContext(ctx).Model(&model.ProcessingJob{}).Where("user_id = ?", userID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, eris.Wrap(err, "repository: count jobs")
	}

	var jobs []*model.ProcessingJob
	offset := (page - 1) * pageSize
	err := query.Omit("extracted_text").
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&jobs).Error
	if err != nil {
		return nil, 0, eris.Wrap(err, "repository: list jobs")
	}
	return jobs, total, nil
}

// ClaimCandidates 返回待领取任务，priority ASC, created_at ASC
func (r *JobRepository) ClaimCandidates(ctx context.Context, limit int) ([]*model.ProcessingJob, error) {
	var jobs []*model.ProcessingJob
	err := r.db.WithContext(ctx).
		Select("id", "status", "priority", "created_at").
		Where("status IN ?", claimableStatuses).
		Order("priority ASC").
		Order("created_at ASC").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, eris.Wrap(err, "repository: list claim candidates")
	}
	return jobs, nil
}

// UpdateWhere 条件更新: WHERE id = ? AND status IN (from)，返回是否命中一行
func (r *JobRepository) UpdateWhere(ctx context.Context, id string, from []model.JobStatus, updates map[string]interface{}) (bool, error) {
	updates["updated_at"] = time.Now()
	res := r.db.WithContext(ctx).Model(&model.ProcessingJob{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, eris.Wrapf(res.Error, "repository: update job %s", id)
	}
	return res.RowsAffected == 1, nil
}

// ListStale 本次尝试开始时间早于 before 的处理中任务
func (r *JobRepository) ListStale(ctx context.Context, before time.Time) ([]*model.ProcessingJob, error) {
	var jobs []*model.ProcessingJob
	err := r.db.WithContext(ctx).
		Omit("extracted_text", "results").
		Where("status = ? AND attempt_started_at < ?", model.JobStatusProcessing, before).
		Order("attempt_started_at ASC").
		Find(&jobs).Error
	if err != nil {
		return nil, eris.Wrap(err, "repository: list stale jobs")
	}
	return jobs, nil
}

type statusCount struct {
	Status model.JobStatus
	Count  int64
}

// CountByStatusSince 统计 since 之后创建的任务数量，userID 为空时统计全部
func (r *JobRepository) CountByStatusSince(ctx context.Context, userID string, since time.Time) (map[model.JobStatus]int64, error) {
	var rows []statusCount
	err := r.scoped(ctx, userID, since).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, eris.Wrap(err, "repository: count by status")
	}

	counts := make(map[model.JobStatus]int64, len(model.AllJobStatuses))
	for _, s := range model.AllJobStatuses {
		counts[s] = 0
	}
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// AvgDurationSince 已完成任务的平均处理时长（毫秒），没有数据时为 0
func (r *JobRepository) AvgDurationSince(ctx context.Context, userID string, since time.Time) (float64, error) {
	var avg sql.NullFloat64
	err := r.scoped(ctx, userID, since).
		Select("AVG(processing_duration_ms)").
		Where("status = ? AND processing_duration_ms IS NOT NULL", model.JobStatusCompleted).
		Row().
		Scan(&avg)
	if err != nil {
		return 0, eris.Wrap(err, "repository: average duration")
	}
	return avg.Float64, nil
}

func (r *JobRepository) scoped(ctx context.Context, userID string, since time.Time) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&model.ProcessingJob{}).Where("created_at >= ?", since)
	if userID != "" {
		query = query.Where("user_id = ?", userID)
	}
	return query
}
