package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/qs3c/lease_go_server/internal/analysis"
	"github.com/qs3c/lease_go_server/internal/jobs"
	"github.com/qs3c/lease_go_server/internal/model"
	"github.com/qs3c/lease_go_server/internal/ocr"
	"github.com/qs3c/lease_go_server/internal/pkg/blob"
	"github.com/qs3c/lease_go_server/internal/pkg/pubsub"
)

// Extractor 文档转文本，由 ocr.Chain 实现
type Extractor interface {
	Extract(ctx context.Context, doc ocr.Document) (*ocr.Result, error)
}

// Summarizer 租约关键条款摘要，由 analysis.Summarizer 实现
type Summarizer interface {
	Summarize(ctx context.Context, filename, text string) (*model.LeaseSummary, error)
}

// ProgressPublisher 进度推送，由 pubsub.Publisher 实现
type ProgressPublisher interface {
	PublishProgress(ctx context.Context, msg *pubsub.JobProgress) error
}

// Processor 任务处理器
type Processor struct {
	machine    *jobs.Machine
	store      blob.Store
	extractor  Extractor
	analyzer   *analysis.Analyzer
	summarizer Summarizer
	publisher  ProgressPublisher
	logger     *zap.Logger
}

// NewProcessor summarizer 和 publisher 可以为 nil
func NewProcessor(
	machine *jobs.Machine,
	store blob.Store,
	extractor Extractor,
	analyzer *analysis.Analyzer,
	summarizer Summarizer,
	publisher ProgressPublisher,
	logger *zap.Logger,
) *Processor {
	return &Processor{
		machine:    machine,
		store:      store,
		extractor:  extractor,
		analyzer:   analyzer,
		summarizer: summarizer,
		publisher:  publisher,
		logger:     logger,
	}
}

// Process 处理一个已领取（processing）的任务，直到 completed、failed 或 cancelled
func (p *Processor) Process(ctx context.Context, job *model.ProcessingJob) error {
	start := time.Now()
	log := p.logger.With(zap.String("job_id", job.ID), zap.String("filename", job.Filename))
	p.publish(ctx, job, model.JobStatusProcessing, pubsub.StepClaimed, "")

	if p.cancelled(ctx, job) {
		return nil
	}

	data, err := p.store.Get(ctx, job.FileKey)
	if err != nil {
		return p.fail(ctx, job, fmt.Errorf("load document: %w", err))
	}

	p.publish(ctx, job, model.JobStatusProcessing, pubsub.StepExtracting, "")
	extracted, err := p.extractor.Extract(ctx, ocr.Document{
		Data:     data,
		Filename: job.Filename,
		MIME:     job.FileType,
	})
	if err != nil {
		return p.fail(ctx, job, err)
	}
	log.Info("document text extracted",
		zap.String("engine", extracted.Engine),
		zap.Strings("attempts", extracted.Attempts),
		zap.Int("quality_score", extracted.Quality.Score),
	)

	if p.cancelled(ctx, job) {
		return nil
	}

	results := &model.JobResults{Issues: []string{}}

	if job.Question != "" {
		p.publish(ctx, job, model.JobStatusProcessing, pubsub.StepAnalyzing, "")
		out, err := p.analyzer.Analyze(ctx, analysis.Input{
			Question:         job.Question,
			Text:             extracted.Text,
			Filename:         job.Filename,
			ProcessingEngine: extracted.Engine,
		})
		if err != nil {
			return p.fail(ctx, job, err)
		}
		if out.Generation.Unavailable() {
			return p.fail(ctx, job, out.Generation.Cause)
		}
		results.Analysis = out.Result
	}

	if p.summarizer != nil {
		p.publish(ctx, job, model.JobStatusProcessing, pubsub.StepSummarizing, "")
		summary, err := p.summarizer.Summarize(ctx, job.Filename, extracted.Text)
		if err != nil {
			log.Warn("lease summary failed", zap.Error(err))
			results.Issues = append(results.Issues, "Lease summary unavailable: "+err.Error())
		} else {
			results.LeaseSummary = summary
		}
	}

	if p.cancelled(ctx, job) {
		return nil
	}

	err = p.machine.Complete(context.WithoutCancel(ctx), job.ID, jobs.Completion{
		Results:       results,
		ExtractedText: extracted.Text,
		OCRSource:     extracted.Engine,
	})
	if err != nil {
		return err
	}

	p.publish(ctx, job, model.JobStatusCompleted, pubsub.StepCompleted, "")
	log.Info("job processed", zap.Duration("elapsed", time.Since(start)))
	return nil
}

// cancelled 取消检查点；发现取消标记时完成取消并返回 true
func (p *Processor) cancelled(ctx context.Context, job *model.ProcessingJob) bool {
	requested, err := p.machine.CancelRequested(ctx, job.ID)
	if err != nil {
		p.logger.Warn("cancel checkpoint failed", zap.String("job_id", job.ID), zap.Error(err))
		return false
	}
	if !requested {
		return false
	}

	if err := p.machine.FinishCancelled(context.WithoutCancel(ctx), job.ID); err != nil {
		p.logger.Warn("failed to cancel job", zap.String("job_id", job.ID), zap.Error(err))
		return false
	}
	p.publish(ctx, job, model.JobStatusCancelled, pubsub.StepCancelled, "")
	return true
}

func (p *Processor) fail(ctx context.Context, job *model.ProcessingJob, cause error) error {
	p.logger.Warn("job processing failed",
		zap.String("job_id", job.ID),
		zap.Bool("retryable", analysis.IsRetryable(cause)),
		zap.Error(cause),
	)

	if err := p.machine.Fail(context.WithoutCancel(ctx), job.ID, cause.Error()); err != nil {
		if errors.Is(err, jobs.ErrInvalidTransition) {
			p.logger.Warn("job left processing before failure was recorded", zap.String("job_id", job.ID))
		}
		return errors.Join(cause, err)
	}
	p.publish(ctx, job, model.JobStatusFailed, pubsub.StepFailed, cause.Error())
	return cause
}

func (p *Processor) publish(ctx context.Context, job *model.ProcessingJob, status model.JobStatus, step, errMsg string) {
	if p.publisher == nil {
		return
	}
	err := p.publisher.PublishProgress(context.WithoutCancel(ctx), &pubsub.JobProgress{
		UserID: job.UserID,
		JobID:  job.ID,
		Status: string(status),
		Step:   step,
		Error:  errMsg,
	})
	if err != nil {
		p.logger.Warn("failed to publish progress", zap.String("job_id", job.ID), zap.Error(err))
	}
}
