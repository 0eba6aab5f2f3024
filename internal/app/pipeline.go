package app

import (
	"context"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/qs3c/lease_go_server/config"
	"github.com/qs3c/lease_go_server/internal/analysis"
	"github.com/qs3c/lease_go_server/internal/jobs"
	"github.com/qs3c/lease_go_server/internal/llm"
	"github.com/qs3c/lease_go_server/internal/ocr"
)

// Pipeline server、worker 和 leasectl 共用的分析组件
type Pipeline struct {
	Completer  llm.Completer
	Extractor  *ocr.Chain
	Analyzer   *analysis.Analyzer
	Summarizer *analysis.Summarizer
	Router     *jobs.Router
}

// NewPipeline rdb 为 nil 时不缓存质量评估
func NewPipeline(ctx context.Context, cfg *config.Config, rdb *redis.Client, logger *zap.Logger) (*Pipeline, error) {
	completer, err := llm.NewCompleter(ctx, cfg.LLM, logger)
	if err != nil {
		return nil, err
	}

	extractor, err := ocr.NewFromConfig(cfg.OCR, cfg.Analysis.OCRTimeout, nil, logger)
	if err != nil {
		return nil, err
	}

	var cache analysis.AssessmentCache
	if cfg.Analysis.ReuseAssessment && rdb != nil {
		cache = analysis.NewRedisAssessmentCache(rdb, cfg.Analysis.ReuseTTL)
		logger.Info("quality assessment reuse enabled", zap.Duration("ttl", cfg.Analysis.ReuseTTL))
	}

	generator := analysis.NewGenerator(completer, analysis.GeneratorOptions{
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
	}, logger)

	return &Pipeline{
		Completer:  completer,
		Extractor:  extractor,
		Analyzer:   analysis.NewAnalyzer(generator, analysis.NewClauseExtractor(cfg.Analysis.MaxClauses), cache, logger),
		Summarizer: analysis.NewSummarizer(completer, cfg.LLM.Timeout, logger),
		Router:     jobs.NewRouter(cfg.Router, nil, logger),
	}, nil
}
