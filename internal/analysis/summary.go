package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/qs3c/lease_go_server/internal/llm"
	"github.com/qs3c/lease_go_server/internal/model"
)

const (
	summaryTextChars = 4000
	summaryMaxTokens = 2000
)

const summarySystemPrompt = `You extract key terms from residential and commercial lease documents.
Use only the text provided. Leave a field empty when the document does not state it.`

var summarySchema = map[string]any{
	"type":     "object",
	"required": []string{"summary"},
	"properties": map[string]any{
		"summary": map[string]any{"type": "string"},
		"clauses": map[string]any{
			"type": []string{"array", "null"},
			"items": map[string]any{
				"type":     "object",
				"required": []string{"term", "text"},
				"properties": map[string]any{
					"term":  map[string]any{"type": "string"},
					"text":  map[string]any{"type": "string"},
					"value": nullable("string"),
				},
			},
		},
		"keyTerms": map[string]any{
			"type": []string{"object", "null"},
			"properties": map[string]any{
				"monthlyRent":     nullable("string"),
				"tenantName":      nullable("string"),
				"landlordName":    nullable("string"),
				"propertyAddress": nullable("string"),
				"leaseStartDate":  nullable("string"),
				"leaseEndDate":    nullable("string"),
				"depositAmount":   nullable("string"),
			},
		},
	},
}

// Summarizer 生成租约关键条款摘要
type Summarizer struct {
	completer llm.Completer
	timeout   time.Duration
	logger    *zap.Logger
}

func NewSummarizer(completer llm.Completer, timeout time.Duration, logger *zap.Logger) *Summarizer {
	if timeout <= 0 {
		timeout = DefaultLLMTimeout
	}
	return &Summarizer{completer: completer, timeout: timeout, logger: logger}
}

func summaryPrompt(filename, text string) string {
	return fmt.Sprintf(`Analyze this lease document and extract key information in JSON format:

Document: %s
Text: %s

Return a JSON object with:
{
  "summary": "Brief summary of the lease",
  "clauses": [{"term": "rent", "text": "extracted clause text", "value": "parsed value if applicable"}],
  "keyTerms": {
    "monthlyRent": "amount",
    "tenantName": "name",
    "landlordName": "name",
    "propertyAddress": "address",
    "leaseStartDate": "date",
    "leaseEndDate": "date",
    "depositAmount": "amount"
  }
}`, filename, truncateRunes(text, summaryTextChars))
}

// Summarize 失败时返回错误，由调用方决定是否只记录为 issue
func (s *Summarizer) Summarize(ctx context.Context, filename, text string) (*model.LeaseSummary, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.completer.Complete(callCtx, llm.Request{
		System:      summarySystemPrompt,
		Prompt:      summaryPrompt(filename, text),
		Temperature: 0,
		MaxTokens:   summaryMaxTokens,
		JSON:        true,
	})
	if err != nil {
		return nil, &GenerationError{Reason: ReasonUnavailable, Err: WrapTimeout(err)}
	}

	obj := llm.ExtractJSONObject(resp.Text)
	if obj == "" {
		return nil, &GenerationError{Reason: ReasonMalformed, Err: eris.New("analysis: summary has no JSON object")}
	}
	if err := llm.ValidateJSONAgainstSchema(summarySchema, []byte(obj)); err != nil {
		return nil, &GenerationError{Reason: ReasonMalformed, Err: err}
	}

	var out model.LeaseSummary
	if err := json.Unmarshal([]byte(obj), &out); err != nil {
		return nil, &GenerationError{Reason: ReasonMalformed, Err: eris.Wrap(err, "analysis: decode summary")}
	}
	if out.Clauses == nil {
		out.Clauses = []model.LeaseClause{}
	}

	s.logger.Debug("lease summary generated",
		zap.String("filename", filename),
		zap.Int("clauses", len(out.Clauses)),
	)
	return &out, nil
}
