package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/qs3c/lease_go_server/internal/jobs"
	"github.com/qs3c/lease_go_server/internal/model"
	"github.com/qs3c/lease_go_server/internal/pkg/queue"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultDrainTimeout = 2 * time.Minute
)

// JobSource 任务唤醒消息来源，由 queue.Queue 实现
type JobSource interface {
	Pop(ctx context.Context, timeout time.Duration) (*queue.JobMessage, error)
}

// Pool 固定数量的 worker 并发处理任务
//
// 队列消息只用于唤醒，真正的归属由 Machine.Claim 的条件更新决定；
// 队列超时或不可用时回退到按 priority, created_at 的数据库扫描。
type Pool struct {
	source       JobSource
	machine      *jobs.Machine
	processor    *Processor
	workers      int
	pollInterval time.Duration
	drainTimeout time.Duration
	logger       *zap.Logger
}

func NewPool(source JobSource, machine *jobs.Machine, processor *Processor, workers int, pollInterval time.Duration, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &Pool{
		source:       source,
		machine:      machine,
		processor:    processor,
		workers:      workers,
		pollInterval: pollInterval,
		drainTimeout: defaultDrainTimeout,
		logger:       logger,
	}
}

// SetDrainTimeout 停止后等待进行中任务的最长时间，超时后取消任务的 OCR 和补全调用
func (p *Pool) SetDrainTimeout(d time.Duration) {
	if d > 0 {
		p.drainTimeout = d
	}
}

// Run 阻塞直到 ctx 取消，进行中的任务会处理完再返回
func (p *Pool) Run(ctx context.Context) error {
	p.logger.Info("worker pool started", zap.Int("workers", p.workers))

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.workers; i++ {
		workerID := i
		g.Go(func() error {
			p.loop(gctx, workerID)
			return nil
		})
	}
	err := g.Wait()
	p.logger.Info("worker pool stopped")
	return err
}

func (p *Pool) loop(ctx context.Context, workerID int) {
	log := p.logger.With(zap.Int("worker", workerID))
	for ctx.Err() == nil {
		if _, err := p.RunOnce(ctx); err != nil && ctx.Err() == nil {
			log.Error("worker iteration failed", zap.Error(err))
		}
	}
	log.Info("worker shutting down")
}

// RunOnce 领取并处理至多一个任务，返回是否处理了任务。
// ctx 只控制领取；已领取的任务在 ctx 取消后继续运行，最多再等 drainTimeout
func (p *Pool) RunOnce(ctx context.Context) (bool, error) {
	job, err := p.next(ctx)
	if err != nil || job == nil {
		return false, err
	}

	jobCtx, release := p.detach(ctx, job.ID)
	defer release()
	return true, p.processor.Process(jobCtx, job)
}

// detach 返回不随 ctx 取消的任务 context，ctx 取消 drainTimeout 之后才取消它
func (p *Pool) detach(ctx context.Context, jobID string) (context.Context, context.CancelFunc) {
	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(ctx, func() {
		timer := time.NewTimer(p.drainTimeout)
		defer timer.Stop()
		select {
		case <-jobCtx.Done():
		case <-timer.C:
			p.logger.Warn("drain timeout reached, aborting in-flight job",
				zap.String("job_id", jobID),
				zap.Duration("drain_timeout", p.drainTimeout),
			)
			cancel()
		}
	})
	return jobCtx, func() {
		stop()
		cancel()
	}
}

func (p *Pool) next(ctx context.Context) (*model.ProcessingJob, error) {
	msg, err := p.source.Pop(ctx, p.pollInterval)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil
		}
		p.logger.Warn("queue pop failed, scanning database", zap.Error(err))
		job, err := p.machine.ClaimNext(ctx)
		if err != nil || job != nil {
			return job, err
		}
		// 队列不可用且没有待处理任务，避免空转
		select {
		case <-ctx.Done():
		case <-time.After(p.pollInterval):
		}
		return nil, nil
	}

	if msg == nil {
		return p.machine.ClaimNext(ctx)
	}

	job, err := p.machine.Claim(ctx, msg.JobID)
	if errors.Is(err, jobs.ErrInvalidTransition) || errors.Is(err, jobs.ErrNotFound) {
		p.logger.Debug("skipping stale queue message", zap.String("job_id", msg.JobID), zap.Error(err))
		return nil, nil
	}
	return job, err
}
