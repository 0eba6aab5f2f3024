package ocr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/qs3c/lease_go_server/internal/analysis"
	"github.com/qs3c/lease_go_server/internal/model"
)

const DefaultMaxRemoteBytes = 20 << 20

// Result 链式提取的输出
type Result struct {
	Text     string
	Engine   string
	Quality  model.Quality
	Attempts []string
}

// Chain 按顺序尝试各引擎，得到非空且质量不为 poor 的文本即停止
type Chain struct {
	extractors     []Extractor
	maxRemoteBytes int64
	timeout        time.Duration
	logger         *zap.Logger
}

func NewChain(extractors []Extractor, maxRemoteBytes int64, timeout time.Duration, logger *zap.Logger) *Chain {
	if maxRemoteBytes <= 0 {
		maxRemoteBytes = DefaultMaxRemoteBytes
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Chain{
		extractors:     extractors,
		maxRemoteBytes: maxRemoteBytes,
		timeout:        timeout,
		logger:         logger,
	}
}

// Engines 返回链上引擎名称
func (c *Chain) Engines() []string {
	names := make([]string, len(c.extractors))
	for i, e := range c.extractors {
		names[i] = e.Name()
	}
	return names
}

// Extract 返回最佳结果；没有任何引擎产出文本时返回 *analysis.ExtractionError
func (c *Chain) Extract(ctx context.Context, doc Document) (*Result, error) {
	if doc.MIME == "" {
		doc.MIME = DetectMIME(doc.Filename, "", doc.Data)
	}

	var best *Result
	var errs []error
	var attempted []string

	for _, e := range c.extractors {
		if !e.Supports(doc.MIME) {
			continue
		}
		if isRemote(e) && int64(len(doc.Data)) > c.maxRemoteBytes {
			c.logger.Info("skipping remote ocr engine for large document",
				zap.String("engine", e.Name()),
				zap.Int("bytes", len(doc.Data)),
			)
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, analysis.WrapTimeout(err))
			break
		}

		attempted = append(attempted, e.Name())
		start := time.Now()
		text, err := c.run(ctx, e, doc)
		if err != nil {
			c.logger.Warn("ocr engine failed",
				zap.String("engine", e.Name()),
				zap.String("filename", doc.Filename),
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", e.Name(), err))
			continue
		}

		text = strings.TrimSpace(text)
		if text == "" {
			errs = append(errs, fmt.Errorf("%s: no text extracted", e.Name()))
			continue
		}

		q := analysis.AssessQuality(text)
		c.logger.Info("ocr engine finished",
			zap.String("engine", e.Name()),
			zap.Int("chars", len(text)),
			zap.Int("quality_score", q.Score),
			zap.Duration("elapsed", time.Since(start)),
		)
		if best == nil || q.Score > best.Quality.Score {
			best = &Result{Text: text, Engine: e.Name(), Quality: q}
		}
		if q.Level != model.QualityPoor {
			break
		}
	}

	if best == nil {
		if len(attempted) == 0 {
			errs = append(errs, fmt.Errorf("no ocr engine supports %s", doc.MIME))
		}
		return nil, &analysis.ExtractionError{
			Stage: "ocr[" + strings.Join(attempted, ",") + "]",
			Err:   errors.Join(errs...),
		}
	}
	best.Attempts = attempted
	return best, nil
}

func (c *Chain) run(ctx context.Context, e Extractor, doc Document) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	text, err := e.Extract(runCtx, doc)
	if err != nil {
		// 被 kill 的子进程不会返回 context 错误
		if cerr := runCtx.Err(); cerr != nil && !errors.Is(err, cerr) {
			err = fmt.Errorf("%w: %w", cerr, err)
		}
		return "", analysis.WrapTimeout(err)
	}
	return text, nil
}
