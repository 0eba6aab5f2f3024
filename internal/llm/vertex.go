package llm

import (
	"context"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"github.com/rotisserie/eris"
)

// VertexCompleter implements Completer with Gemini models on Vertex AI.
type VertexCompleter struct {
	client *genai.Client
	model  string
}

func NewVertexCompleter(ctx context.Context, projectID, region, model string) (*VertexCompleter, error) {
	client, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, eris.Wrap(err, "vertex: new client")
	}
	return &VertexCompleter{client: client, model: model}, nil
}

func (c *VertexCompleter) Name() string { return "vertex:" + c.model }

func (c *VertexCompleter) Complete(ctx context.Context, req Request) (*Response, error) {
	m := c.client.GenerativeModel(c.model)
	if req.System != "" {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.System)},
		}
	}
	m.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.MaxTokens > 0 {
		m.GenerationConfig.MaxOutputTokens = genai.Ptr(int32(req.MaxTokens))
	}
	if req.JSON {
		m.GenerationConfig.ResponseMIMEType = "application/json"
	}

	resp, err := m.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return nil, eris.Wrap(err, "vertex: generate content")
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, eris.New("vertex: empty response")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}

	out := &Response{Text: strings.TrimSpace(sb.String()), Model: c.model}
	if resp.UsageMetadata != nil {
		out.InputTokens = int64(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int64(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}

func (c *VertexCompleter) Close() error {
	return c.client.Close()
}
