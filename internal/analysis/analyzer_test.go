package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/qs3c/lease_go_server/internal/llm"
	"github.com/qs3c/lease_go_server/internal/model"
	"github.com/qs3c/lease_go_server/internal/testutil"
)

func newTestAnalyzer(c llm.Completer, cache AssessmentCache) *Analyzer {
	return NewAnalyzer(
		NewGenerator(c, GeneratorOptions{}, zap.NewNop()),
		NewClauseExtractor(DefaultMaxClauses),
		cache,
		zap.NewNop(),
	)
}

func TestAnalyzer_Analyze(t *testing.T) {
	a := newTestAnalyzer(&llm.StaticCompleter{Text: validGeneration}, nil)

	out, err := a.Analyze(context.Background(), Input{
		Question: "What is the service charge percentage?",
		Text:     testutil.LeaseText(9000),
		Filename: "lease.pdf",
	})

	require.NoError(t, err)
	require.NotNil(t, out.Result)
	r := out.Result
	assert.True(t, out.Generation.OK())
	assert.False(t, r.Degraded)
	assert.Equal(t, model.CategoryFinancialObligations, r.Category)
	assert.GreaterOrEqual(t, r.Confidence, 80)
	assert.Equal(t, model.ConfidenceHigh, r.ConfidenceLevel)
	assert.NotEmpty(t, r.RelevantClauses)
	assert.Equal(t, DefaultProcessingEngine, r.DocumentInfo.ProcessingEngine)
	assert.Equal(t, model.QualityGood, r.DocumentInfo.Quality.Level)
	assert.Equal(t, "lease.pdf", r.DocumentInfo.Filename)
	assert.Greater(t, r.DocumentInfo.ExtractedLength, 8000)
}

func TestAnalyzer_Analyze_Validation(t *testing.T) {
	a := newTestAnalyzer(&llm.StaticCompleter{Text: validGeneration}, nil)

	tests := []struct {
		name  string
		in    Input
		field string
	}{
		{"empty question", Input{Question: "  ", Text: "lease"}, "question"},
		{"empty text", Input{Question: "rent?", Text: ""}, "document_text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := a.Analyze(context.Background(), tt.in)
			assert.Nil(t, out)
			require.Error(t, err)
			assert.True(t, IsValidation(err))
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestAnalyzer_Analyze_Degraded(t *testing.T) {
	t.Run("service unavailable forces floor confidence", func(t *testing.T) {
		a := newTestAnalyzer(&llm.StaticCompleter{Err: errors.New("connection refused")}, nil)

		out, err := a.Analyze(context.Background(), Input{
			Question: "What is the service charge percentage?",
			Text:     testutil.LeaseText(9000),
		})

		require.NoError(t, err)
		assert.True(t, out.Result.Degraded)
		assert.Equal(t, UnavailableConfidence, out.Result.Confidence)
		assert.Equal(t, model.ConfidenceLow, out.Result.ConfidenceLevel)
		assert.Equal(t, UnavailableAnswer, out.Result.Answer)
		assert.Contains(t, out.Result.DocumentInfo.Issues, "AI analysis service unavailable")
	})

	t.Run("malformed output is capped", func(t *testing.T) {
		a := newTestAnalyzer(&llm.StaticCompleter{Text: "The service charge is 15 percent."}, nil)

		out, err := a.Analyze(context.Background(), Input{
			Question: "What is the service charge percentage?",
			Text:     testutil.LeaseText(9000),
		})

		require.NoError(t, err)
		assert.True(t, out.Result.Degraded)
		assert.LessOrEqual(t, out.Result.Confidence, MalformedConfidenceCap)
		assert.Equal(t, "The service charge is 15 percent.", out.Result.Answer)
		assert.Empty(t, out.Result.Citations)
	})
}

func TestAnalyzer_Analyze_LowOCRConfidence(t *testing.T) {
	a := newTestAnalyzer(&llm.StaticCompleter{Text: validGeneration}, nil)
	low := 0.4

	out, err := a.Analyze(context.Background(), Input{
		Question:         "rent?",
		Text:             testutil.LeaseText(4000),
		ProcessingEngine: "tesseract",
		OCRConfidence:    &low,
	})

	require.NoError(t, err)
	assert.Equal(t, "tesseract", out.Result.DocumentInfo.ProcessingEngine)
	assert.Contains(t, out.Result.DocumentInfo.Issues, "Low OCR confidence reported by extraction engine")
}

func TestAnalyzer_ReusesAssessment(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	cache := NewRedisAssessmentCache(client, time.Minute)
	a := newTestAnalyzer(&llm.StaticCompleter{Text: validGeneration}, cache)
	text := testutil.LeaseText(5000)

	_, err = a.Analyze(context.Background(), Input{Question: "rent?", Text: text})
	require.NoError(t, err)
	assert.True(t, mr.Exists(QualityKey(text)))
	assert.Equal(t, time.Minute, mr.TTL(QualityKey(text)))

	// 缓存中的评估优先于重新计算
	require.NoError(t, cache.Set(context.Background(), text, model.Quality{Score: 42, Level: model.QualityPoor, Issues: []string{"cached"}}))

	out, err := a.Analyze(context.Background(), Input{Question: "can I keep a dog?", Text: text})
	require.NoError(t, err)
	assert.Equal(t, 42, out.Result.DocumentInfo.Quality.Score)
	assert.Contains(t, out.Result.DocumentInfo.Issues, "cached")
}

func TestFallbackResult(t *testing.T) {
	r := FallbackResult("Can I sublet?", "scan.png", "tesseract", errors.New("tesseract: exit 1"))

	assert.True(t, r.Degraded)
	assert.Equal(t, 15, r.Confidence)
	assert.Equal(t, model.ConfidenceLow, r.ConfidenceLevel)
	assert.Equal(t, model.CategoryAssignmentSubletting, r.Category)
	assert.Contains(t, r.DocumentInfo.Issues, "tesseract: exit 1")
	assert.Equal(t, "tesseract", r.DocumentInfo.ProcessingEngine)
}
