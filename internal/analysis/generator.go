package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/qs3c/lease_go_server/internal/llm"
	"github.com/qs3c/lease_go_server/internal/model"
)

const (
	DefaultTemperature = 0.1
	DefaultMaxTokens   = 1200
	DefaultLLMTimeout  = 60 * time.Second

	UnavailableAnswer = "AI analysis unavailable due to technical error."
	rawAnswerLimit    = 500
)

// GenerationStatus tags a Generation as a full or degraded answer.
type GenerationStatus string

const (
	GenerationOK       GenerationStatus = "ok"
	GenerationDegraded GenerationStatus = "degraded"
)

// Generated is the structured answer produced by the completion service.
type Generated struct {
	Answer                string           `json:"answer"`
	Citations             []model.Citation `json:"citations"`
	LegalContext          string           `json:"legalContext,omitempty"`
	PracticalImplications string           `json:"practicalImplications,omitempty"`
}

// Generation is either Ok(Analysis) or Degraded(Analysis, Cause).
type Generation struct {
	Status   GenerationStatus
	Analysis Generated
	Raw      string
	Cause    *GenerationError
}

func (g Generation) OK() bool { return g.Status == GenerationOK }

// Unavailable reports a degraded generation caused by the service itself failing.
func (g Generation) Unavailable() bool {
	return g.Cause != nil && g.Cause.Reason == ReasonUnavailable
}

type GenerateInput struct {
	Question string
	Category model.Category
	Quality  model.Quality
	Clauses  []model.ExtractedClause
	Text     string
}

type GeneratorOptions struct {
	Temperature float64
	MaxTokens   int64
	Timeout     time.Duration
}

// Generator 调用补全服务生成带引用的答案
type Generator struct {
	completer llm.Completer
	opts      GeneratorOptions
	logger    *zap.Logger
}

func NewGenerator(completer llm.Completer, opts GeneratorOptions, logger *zap.Logger) *Generator {
	if opts.Temperature <= 0 {
		opts.Temperature = DefaultTemperature
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultLLMTimeout
	}
	return &Generator{completer: completer, opts: opts, logger: logger}
}

// Generate 永不返回错误，失败时降级为 Degraded
func (g *Generator) Generate(ctx context.Context, in GenerateInput) Generation {
	callCtx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := g.completer.Complete(callCtx, llm.Request{
		System:      analystSystemPrompt,
		Prompt:      buildUserPrompt(in),
		Temperature: g.opts.Temperature,
		MaxTokens:   g.opts.MaxTokens,
		JSON:        true,
	})
	if err == nil && resp == nil {
		err = errors.New("empty completion response")
	}
	if err != nil {
		err = WrapTimeout(err)
		g.logger.Warn("analysis generation unavailable",
			zap.String("provider", g.completer.Name()),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return Generation{
			Status:   GenerationDegraded,
			Analysis: Generated{Answer: UnavailableAnswer, Citations: []model.Citation{}},
			Cause:    &GenerationError{Reason: ReasonUnavailable, Err: err},
		}
	}

	g.logger.Debug("analysis generation finished",
		zap.String("model", resp.Model),
		zap.Int64("input_tokens", resp.InputTokens),
		zap.Int64("output_tokens", resp.OutputTokens),
		zap.Duration("elapsed", time.Since(start)),
	)

	parsed, perr := parseGenerated(resp.Text)
	if perr != nil {
		g.logger.Warn("analysis generation malformed", zap.Error(perr))
		return Generation{
			Status: GenerationDegraded,
			Analysis: Generated{
				Answer:    truncateRunes(resp.Text, rawAnswerLimit),
				Citations: []model.Citation{},
			},
			Raw:   resp.Text,
			Cause: &GenerationError{Reason: ReasonMalformed, Err: perr},
		}
	}

	return Generation{Status: GenerationOK, Analysis: parsed, Raw: resp.Text}
}

func parseGenerated(raw string) (Generated, error) {
	obj := llm.ExtractJSONObject(raw)
	if obj == "" {
		return Generated{}, errors.New("no JSON object in response")
	}
	if err := llm.ValidateJSONAgainstSchema(generationSchema, []byte(obj)); err != nil {
		return Generated{}, err
	}
	var out Generated
	if err := json.Unmarshal([]byte(obj), &out); err != nil {
		return Generated{}, err
	}
	if out.Citations == nil {
		out.Citations = []model.Citation{}
	}
	return out, nil
}
