package analysis

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/qs3c/lease_go_server/internal/model"
)

const (
	DefaultProcessingEngine = "provided_text"

	lowOCRConfidence = 0.6
)

// Input 一次问题分析的输入
type Input struct {
	Question         string
	Text             string
	Filename         string
	ProcessingEngine string
	// OCRConfidence 取值 0 到 1，由上游 OCR 自报
	OCRConfidence *float64
}

// Outcome 携带最终结果和生成阶段的原始状态，便于调用方区分降级
type Outcome struct {
	Result     *model.AnalysisResult
	Generation Generation
}

// Analyzer 串起质量评估、分类、条款抽取、生成与置信度打分
type Analyzer struct {
	generator *Generator
	extractor *ClauseExtractor
	cache     AssessmentCache
	logger    *zap.Logger
}

// NewAnalyzer cache 可以为 nil，此时每次都重新评估质量
func NewAnalyzer(generator *Generator, extractor *ClauseExtractor, cache AssessmentCache, logger *zap.Logger) *Analyzer {
	if extractor == nil {
		extractor = NewClauseExtractor(DefaultMaxClauses)
	}
	return &Analyzer{
		generator: generator,
		extractor: extractor,
		cache:     cache,
		logger:    logger,
	}
}

// Analyze 运行完整流水线，生成失败时返回降级结果而不是错误
func (a *Analyzer) Analyze(ctx context.Context, in Input) (*Outcome, error) {
	if strings.TrimSpace(in.Question) == "" {
		return nil, &ValidationError{Field: "question", Reason: "must not be empty"}
	}
	if strings.TrimSpace(in.Text) == "" {
		return nil, &ValidationError{Field: "document_text", Reason: "must not be empty"}
	}

	quality := a.assess(ctx, in.Text)
	category := ClassifyQuestion(in.Question)
	clauses := a.extractor.Extract(in.Text, in.Question, category)
	textLength := utf8.RuneCountInString(in.Text)

	gen := a.generator.Generate(ctx, GenerateInput{
		Question: in.Question,
		Category: category,
		Quality:  quality,
		Clauses:  clauses,
		Text:     in.Text,
	})

	confidence := ScoreConfidence(gen.Analysis, clauses, quality, textLength)
	issues := append([]string{}, quality.Issues...)
	if gen.Cause != nil {
		switch gen.Cause.Reason {
		case ReasonUnavailable:
			confidence = UnavailableConfidence
			issues = append(issues, "AI analysis service unavailable")
		case ReasonMalformed:
			confidence = min(confidence, MalformedConfidenceCap)
			issues = append(issues, "AI response could not be parsed; raw answer returned")
		}
	}
	if in.OCRConfidence != nil && *in.OCRConfidence < lowOCRConfidence {
		issues = append(issues, "Low OCR confidence reported by extraction engine")
	}

	engine := in.ProcessingEngine
	if engine == "" {
		engine = DefaultProcessingEngine
	}

	result := &model.AnalysisResult{
		Answer:                gen.Analysis.Answer,
		Citations:             gen.Analysis.Citations,
		Confidence:            confidence,
		ConfidenceLevel:       ConfidenceBand(confidence),
		Category:              category,
		LegalContext:          gen.Analysis.LegalContext,
		PracticalImplications: gen.Analysis.PracticalImplications,
		DocumentInfo: model.DocumentInfo{
			Filename:         in.Filename,
			ExtractedLength:  textLength,
			Quality:          quality,
			ProcessingEngine: engine,
			Issues:           issues,
		},
		RelevantClauses: clauses,
		Degraded:        !gen.OK(),
	}
	if result.Citations == nil {
		result.Citations = []model.Citation{}
	}

	a.logger.Info("question analysed",
		zap.String("category", string(category)),
		zap.Int("quality_score", quality.Score),
		zap.Int("clauses", len(clauses)),
		zap.Int("confidence", confidence),
		zap.Bool("degraded", result.Degraded),
	)

	return &Outcome{Result: result, Generation: gen}, nil
}

func (a *Analyzer) assess(ctx context.Context, text string) model.Quality {
	if a.cache != nil {
		if q, ok := a.cache.Get(ctx, text); ok {
			return *q
		}
	}
	q := AssessQuality(text)
	if a.cache != nil {
		if err := a.cache.Set(ctx, text, q); err != nil {
			a.logger.Warn("failed to cache quality assessment", zap.Error(err))
		}
	}
	return q
}

// FallbackResult 在拿不到可用文本时构造低置信度结果，调用方永远拿到一个结果
func FallbackResult(question, filename, engine string, cause error) *model.AnalysisResult {
	issues := []string{"Text extraction failed"}
	if cause != nil {
		issues = append(issues, cause.Error())
	}
	if engine == "" {
		engine = DefaultProcessingEngine
	}
	return &model.AnalysisResult{
		Answer:          "The document text could not be extracted, so the question could not be answered. Try a clearer scan or ask about a specific page.",
		Citations:       []model.Citation{},
		Confidence:      minConfidence,
		ConfidenceLevel: ConfidenceBand(minConfidence),
		Category:        ClassifyQuestion(question),
		DocumentInfo: model.DocumentInfo{
			Filename:         filename,
			Quality:          model.Quality{Score: minQualityScore, Level: model.QualityPoor, Issues: []string{}},
			ProcessingEngine: engine,
			Issues:           issues,
		},
		Degraded: true,
	}
}
