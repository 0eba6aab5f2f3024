package ocr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/lease_go_server/internal/pkg/resilience"
)

func newTestMistral(url string) *MistralOCR {
	m := NewMistralOCR("test-key", "test-model")
	m.endpoint = url
	m.retry = resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
	return m
}

func TestMistralOCR_DefaultModel(t *testing.T) {
	m := NewMistralOCR("key", "")
	assert.Equal(t, defaultMistralModel, m.model)
	assert.Equal(t, mistralOCREndpoint, m.endpoint)
	assert.True(t, m.Remote())
}

func TestMistralOCR_Extract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req mistralOCRRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		assert.Equal(t, "document_url", req.Document.Type)
		assert.Contains(t, req.Document.DocumentURL, "data:application/pdf;base64,")

		resp := mistralOCRResponse{Pages: []mistralOCRPage{
			{Index: 0, Markdown: "Page one content"},
			{Index: 1, Markdown: "Page two content"},
		}}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp) //nolint:errcheck
	}))
	defer srv.Close()

	text, err := newTestMistral(srv.URL).Extract(context.Background(), Document{Data: []byte("%PDF-1.4"), MIME: MIMEPDF})

	require.NoError(t, err)
	assert.Equal(t, "Page one content\n\nPage two content", text)
}

func TestMistralOCR_Image(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req mistralOCRRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "image_url", req.Document.Type)
		assert.Contains(t, req.Document.ImageURL, "data:image/png;base64,")
		assert.Empty(t, req.Document.DocumentURL)
		json.NewEncoder(w).Encode(mistralOCRResponse{Pages: []mistralOCRPage{{Markdown: "img"}}}) //nolint:errcheck
	}))
	defer srv.Close()

	text, err := newTestMistral(srv.URL).Extract(context.Background(), Document{Data: []byte{1}, MIME: "image/png"})

	require.NoError(t, err)
	assert.Equal(t, "img", text)
}

func TestMistralOCR_RetriesTransient(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(mistralOCRResponse{Pages: []mistralOCRPage{{Markdown: "ok"}}}) //nolint:errcheck
	}))
	defer srv.Close()

	text, err := newTestMistral(srv.URL).Extract(context.Background(), Document{Data: []byte{1}, MIME: MIMEPDF})

	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestMistralOCR_APIError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid api key"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	_, err := newTestMistral(srv.URL).Extract(context.Background(), Document{Data: []byte{1}, MIME: MIMEPDF})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "mistral API returned 401")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestMistralOCR_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{invalid json`)) //nolint:errcheck
	}))
	defer srv.Close()

	_, err := newTestMistral(srv.URL).Extract(context.Background(), Document{Data: []byte{1}, MIME: MIMEPDF})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal mistral response")
}

func TestVision_Extract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer vision-key", r.Header.Get("Authorization"))

		var body struct {
			Model     string  `json:"model"`
			MaxTokens int     `json:"max_tokens"`
			Temp      float64 `json:"temperature"`
			Messages  []struct {
				Role    string          `json:"role"`
				Content []visionContent `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4o", body.Model)
		assert.Equal(t, 4000, body.MaxTokens)
		assert.Zero(t, body.Temp)
		require.Len(t, body.Messages, 1)
		require.Len(t, body.Messages[0].Content, 2)
		assert.Equal(t, visionPrompt, body.Messages[0].Content[0].Text)
		require.NotNil(t, body.Messages[0].Content[1].ImageURL)
		assert.Contains(t, body.Messages[0].Content[1].ImageURL.URL, "data:image/jpeg;base64,")

		w.Write([]byte(`{"model":"gpt-4o","choices":[{"message":{"content":"  THIS LEASE  "}}]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	v := NewVision(srv.URL, "vision-key", "")
	assert.True(t, v.Supports("image/jpeg"))
	assert.False(t, v.Supports(MIMEPDF))

	text, err := v.Extract(context.Background(), Document{Data: []byte{0xff, 0xd8}, MIME: "image/jpeg"})

	require.NoError(t, err)
	assert.Equal(t, "THIS LEASE", text)
}
