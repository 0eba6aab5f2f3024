package app

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/qs3c/lease_go_server/config"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.LLM.Provider = "openai"
	cfg.LLM.BaseURL = "http://127.0.0.1:1"
	cfg.OCR.Providers = []string{"plain", "docx", "pdftotext"}
	return cfg
}

func TestNewPipeline(t *testing.T) {
	p, err := NewPipeline(context.Background(), testConfig(), nil, zap.NewNop())

	require.NoError(t, err)
	assert.NotNil(t, p.Completer)
	assert.NotNil(t, p.Analyzer)
	assert.NotNil(t, p.Summarizer)
	assert.NotNil(t, p.Router)
	assert.Equal(t, []string{"plain", "docx", "pdftotext"}, p.Extractor.Engines())
}

func TestNewPipeline_AssessmentReuse(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	cfg := testConfig()
	cfg.Analysis.ReuseAssessment = true

	p, err := NewPipeline(context.Background(), cfg, rdb, zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, p.Analyzer)
}

func TestNewPipeline_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{name: "anthropic without key", mutate: func(c *config.Config) { c.LLM.Provider = "anthropic"; c.LLM.APIKey = "" }},
		{name: "unknown provider", mutate: func(c *config.Config) { c.LLM.Provider = "mystery" }},
		{name: "unknown ocr engine", mutate: func(c *config.Config) { c.OCR.Providers = []string{"abbyy"} }},
		{name: "no ocr engines", mutate: func(c *config.Config) { c.OCR.Providers = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(cfg)
			_, err := NewPipeline(context.Background(), cfg, nil, zap.NewNop())
			assert.Error(t, err)
		})
	}
}
