package analysis

import (
	"fmt"
	"strings"

	"github.com/qs3c/lease_go_server/internal/model"
)

const (
	fallbackContextChars = 4000
	previewChars         = 2000
)

const analystSystemPrompt = `You are a specialist UK lease document analyst.
Answer ONLY from the document text provided. Do not rely on general knowledge of what leases usually say.
Cite the specific clause, paragraph or schedule identifiers that support your answer.
If the document does not address the question, say so explicitly and do not guess.
Flag any uncertainty caused by unclear or partial text.

Respond with a single JSON object of this shape:
{
  "answer": "direct answer to the question",
  "citations": [{"clause": "4.2", "schedule": "optional", "paragraph": "optional", "text": "quoted supporting text"}],
  "legalContext": "brief legal context, if relevant",
  "practicalImplications": "what this means for the tenant or leaseholder"
}`

// nullable 可选字段允许 null，模型常用 null 表示缺省
func nullable(typ string) map[string]any {
	return map[string]any{"type": []string{typ, "null"}}
}

// generationSchema 校验模型输出的结构
var generationSchema = map[string]any{
	"type":     "object",
	"required": []string{"answer"},
	"properties": map[string]any{
		"answer": map[string]any{"type": "string", "minLength": 1},
		"citations": map[string]any{
			"type": []string{"array", "null"},
			"items": map[string]any{
				"type":     "object",
				"required": []string{"text"},
				"properties": map[string]any{
					"clause":    nullable("string"),
					"schedule":  nullable("string"),
					"paragraph": nullable("string"),
					"text":      map[string]any{"type": "string"},
				},
			},
		},
		"legalContext":          nullable("string"),
		"practicalImplications": nullable("string"),
	},
}

func buildContext(clauses []model.ExtractedClause, text string) string {
	if len(clauses) == 0 {
		return truncateRunes(text, fallbackContextChars)
	}
	var sb strings.Builder
	for i, c := range clauses {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		switch {
		case c.Type == model.ClauseSchedule:
			fmt.Fprintf(&sb, "%s: %s", c.Number, c.Text)
		case c.Number != "":
			fmt.Fprintf(&sb, "Clause %s: %s", c.Number, c.Text)
		default:
			sb.WriteString(c.Text)
		}
	}
	return sb.String()
}

func buildUserPrompt(in GenerateInput) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: %s\n", in.Question)
	fmt.Fprintf(&sb, "Category: %s\n", in.Category)
	fmt.Fprintf(&sb, "Document Quality: %s (%d/100)\n\n", in.Quality.Level, in.Quality.Score)

	if len(in.Clauses) > 0 {
		sb.WriteString("Relevant clauses from the document:\n")
	} else {
		sb.WriteString("No clearly numbered clauses matched the question. Document excerpt:\n")
	}
	sb.WriteString(buildContext(in.Clauses, in.Text))

	if len(in.Clauses) == 0 && in.Text != "" {
		sb.WriteString("\n\nDocument preview:\n")
		sb.WriteString(truncateRunes(in.Text, previewChars))
	}

	sb.WriteString("\n\nAnswer the question using only the text above.")
	return sb.String()
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
