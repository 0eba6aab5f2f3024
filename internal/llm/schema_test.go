package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var answerSchema = map[string]any{
	"type":     "object",
	"required": []string{"answer"},
	"properties": map[string]any{
		"answer": map[string]any{"type": "string"},
	},
}

func TestValidateJSONAgainstSchema(t *testing.T) {
	assert.NoError(t, ValidateJSONAgainstSchema(answerSchema, []byte(`{"answer":"yes"}`)))
	assert.Error(t, ValidateJSONAgainstSchema(answerSchema, []byte(`{"answer":3}`)))
	assert.Error(t, ValidateJSONAgainstSchema(answerSchema, []byte(`{}`)))
	assert.Error(t, ValidateJSONAgainstSchema(answerSchema, []byte(`not json`)))
}

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"fenced with tag", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"fenced without tag", "```{\"a\":1}```", `{"a":1}`},
		{"leading prose", `Here you go: {"a":{"b":2}} thanks`, `{"a":{"b":2}}`},
		{"no object", "plain answer", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSONObject(tt.in))
		})
	}
}
