package ocr

import (
	"context"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/qs3c/lease_go_server/internal/llm"
)

const visionPrompt = "Extract all text from this document. Focus on lease terms, dates, names, addresses, rent amounts, and other important lease information. Return only the text content, preserving structure when possible."

// Vision 使用多模态聊天模型识别图片中的文字，作为最后的兜底
type Vision struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func NewVision(baseURL, apiKey, model string) *Vision {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "gpt-4o"
	}
	return &Vision{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: 2 * time.Minute},
	}
}

func (v *Vision) Name() string { return "vision" }

func (v *Vision) Supports(m string) bool { return IsImage(m) }

func (v *Vision) Remote() bool { return true }

type visionContent struct {
	Type     string         `json:"type"`
	Text     string         `json:"text,omitempty"`
	ImageURL *visionImageURL `json:"image_url,omitempty"`
}

type visionImageURL struct {
	URL string `json:"url"`
}

func (v *Vision) Extract(ctx context.Context, doc Document) (string, error) {
	dataURL := "data:" + doc.MIME + ";base64," + base64.StdEncoding.EncodeToString(doc.Data)
	body := map[string]any{
		"model":       v.model,
		"max_tokens":  4000,
		"temperature": 0,
		"messages": []map[string]any{{
			"role": "user",
			"content": []visionContent{
				{Type: "text", Text: visionPrompt},
				{Type: "image_url", ImageURL: &visionImageURL{URL: dataURL}},
			},
		}},
	}

	raw, err := llm.PostChatCompletion(ctx, v.client, v.baseURL, v.apiKey, body)
	if err != nil {
		return "", err
	}
	resp, err := llm.ParseChatResponse(raw)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}
