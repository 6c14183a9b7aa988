package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/grahamatarrowmedia/ai-doc-phone--app/internal/circuitbreaker"
)

type capturedRequest struct {
	Path string
	Body map[string]any
}

func newGeminiServer(t *testing.T, status int, reply string, captured *capturedRequest, calls *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			atomic.AddInt32(calls, 1)
		}
		body, _ := io.ReadAll(r.Body)
		if captured != nil {
			captured.Path = r.URL.Path
			_ = json.Unmarshal(body, &captured.Body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"code":400,"message":"invalid request","status":"INVALID_ARGUMENT"}}`))
			return
		}
		resp := map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{
					"role":  "model",
					"parts": []map[string]any{{"text": reply}},
				},
				"finishReason": "STOP",
			}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, baseURL string) *GeminiClient {
	t.Helper()
	c, err := NewGeminiClient(context.Background(), Config{
		Backend: BackendGemini,
		APIKey:  "test-key",
		BaseURL: baseURL,
		Model:   "gemini-test",
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return c
}

func TestGenerateSendsResearchParameters(t *testing.T) {
	var captured capturedRequest
	srv := newGeminiServer(t, http.StatusOK, `{"executive_summary":"ok"}`, &captured, nil)
	c := newTestClient(t, srv.URL)

	text, err := c.Generate(context.Background(), Request{
		SystemInstruction: "be precise",
		Prompt:            "Research Query: Titanic",
		Temperature:       0.7,
		MaxOutputTokens:   4096,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"executive_summary":"ok"}`, text)

	assert.True(t, strings.HasSuffix(captured.Path, "models/gemini-test:generateContent"), captured.Path)

	sys, ok := captured.Body["systemInstruction"].(map[string]any)
	require.True(t, ok, "systemInstruction missing: %v", captured.Body)
	parts := sys["parts"].([]any)
	assert.Equal(t, "be precise", parts[0].(map[string]any)["text"])

	gen, ok := captured.Body["generationConfig"].(map[string]any)
	require.True(t, ok, "generationConfig missing: %v", captured.Body)
	assert.InDelta(t, 0.7, gen["temperature"], 0.0001)
	assert.EqualValues(t, 4096, gen["maxOutputTokens"])

	contents := captured.Body["contents"].([]any)
	require.Len(t, contents, 1)
	userParts := contents[0].(map[string]any)["parts"].([]any)
	assert.Equal(t, "Research Query: Titanic", userParts[0].(map[string]any)["text"])
}

func TestGenerateBlankReplyIsReturned(t *testing.T) {
	var calls int32
	srv := newGeminiServer(t, http.StatusOK, "   ", nil, &calls)
	c := newTestClient(t, srv.URL)

	for i := 0; i < 5; i++ {
		text, err := c.Generate(context.Background(), Request{Prompt: "x", Temperature: 0.7, MaxOutputTokens: 10})
		require.NoError(t, err)
		assert.Equal(t, "   ", text)
	}
	assert.Equal(t, int32(5), atomic.LoadInt32(&calls))
	assert.Equal(t, circuitbreaker.StateClosed, c.BreakerState())
}

func TestGenerateDoesNotRetry(t *testing.T) {
	var calls int32
	srv := newGeminiServer(t, http.StatusBadRequest, "", nil, &calls)
	c := newTestClient(t, srv.URL)

	_, err := c.Generate(context.Background(), Request{Prompt: "x", Temperature: 0.7, MaxOutputTokens: 10})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestNewGeminiClientValidation(t *testing.T) {
	ctx := context.Background()

	_, err := NewGeminiClient(ctx, Config{Backend: BackendGemini}, nil)
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	_, err = NewGeminiClient(ctx, Config{Backend: BackendVertex}, nil)
	assert.ErrorIs(t, err, ErrMissingProject)

	_, err = NewGeminiClient(ctx, Config{Backend: "openai"}, nil)
	assert.Error(t, err)
}

func TestDefaultModel(t *testing.T) {
	c, err := NewGeminiClient(context.Background(), Config{Backend: BackendGemini, APIKey: "k"}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, c.Model())
}
