package cron

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/qs3c/lease_go_server/internal/jobs"
	"github.com/qs3c/lease_go_server/internal/model"
)

// StaleReason 超时任务的失败原因
const StaleReason = "processing timed out: worker lost"

// ocrTempPrefix OCR 引擎在系统临时目录下创建的工作目录前缀
const ocrTempPrefix = "lease-ocr-"

// StaleLister 查询超时的处理中任务
type StaleLister interface {
	ListStale(ctx context.Context, before time.Time) ([]*model.ProcessingJob, error)
}

// Service 定时清理: 把 worker 丢失的处理中任务标记为失败，并删除残留的 OCR 临时目录
type Service struct {
	machine    *jobs.Machine
	stale      StaleLister
	staleAfter time.Duration
	interval   time.Duration
	tempDir    string
	logger     *zap.Logger
	stopChan   chan struct{}
	stopOnce   sync.Once
}

func NewService(
	machine *jobs.Machine,
	stale StaleLister,
	staleAfter time.Duration,
	interval time.Duration,
	logger *zap.Logger,
) *Service {
	if staleAfter <= 0 {
		staleAfter = 15 * time.Minute
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Service{
		machine:    machine,
		stale:      stale,
		staleAfter: staleAfter,
		interval:   interval,
		tempDir:    os.TempDir(),
		logger:     logger,
		stopChan:   make(chan struct{}),
	}
}

// Start 启动定时任务
func (s *Service) Start() {
	go s.runSweeper()
	s.logger.Info("cron service started",
		zap.Duration("interval", s.interval),
		zap.Duration("stale_after", s.staleAfter),
	)
}

// Stop 停止定时任务
func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.logger.Info("cron service stopped")
}

func (s *Service) runSweeper() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.interval)
			if _, err := s.SweepStale(ctx, false); err != nil {
				s.logger.Error("stale job sweep failed", zap.Error(err))
			}
			s.CleanupTempDirs()
			cancel()
		}
	}
}

// SweepStale 将本次尝试开始时间超过 staleAfter 的处理中任务置为失败，dryRun 时只返回列表
func (s *Service) SweepStale(ctx context.Context, dryRun bool) ([]*model.ProcessingJob, error) {
	stale, err := s.stale.ListStale(ctx, time.Now().Add(-s.staleAfter))
	if err != nil {
		return nil, err
	}
	if dryRun || len(stale) == 0 {
		return stale, nil
	}

	swept := make([]*model.ProcessingJob, 0, len(stale))
	for _, job := range stale {
		err := s.machine.Fail(ctx, job.ID, StaleReason)
		if errors.Is(err, jobs.ErrInvalidTransition) {
			continue // 期间已经完成或失败
		}
		if err != nil {
			return swept, err
		}
		swept = append(swept, job)
	}
	if len(swept) > 0 {
		s.logger.Warn("stale jobs failed", zap.Int("count", len(swept)))
	}
	return swept, nil
}

// CleanupTempDirs 清理过期的 OCR 临时目录（/tmp/lease-ocr-*）
func (s *Service) CleanupTempDirs() int {
	entries, err := os.ReadDir(s.tempDir)
	if err != nil {
		s.logger.Warn("cleanup temp dirs: read dir failed", zap.String("dir", s.tempDir), zap.Error(err))
		return 0
	}

	cleaned := 0
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), ocrTempPrefix) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if time.Since(info.ModTime()) > s.staleAfter {
			dirPath := filepath.Join(s.tempDir, entry.Name())
			if err := os.RemoveAll(dirPath); err != nil {
				s.logger.Warn("cleanup temp dirs: remove failed", zap.String("dir", dirPath), zap.Error(err))
			} else {
				cleaned++
			}
		}
	}
	return cleaned
}
