package classify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var testImage = Image{Data: []byte{0xff, 0xd8, 0xff, 0xe0}, MIMEType: "image/jpeg"}

func TestOpenAIProvider_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Expected path /chat/completions, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Unexpected Authorization header %q", r.Header.Get("Authorization"))
		}

		var req openai.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Messages) != 1 || len(req.Messages[0].MultiContent) != 2 {
			t.Errorf("expected one message with text and image parts, got %+v", req.Messages)
		} else {
			img := req.Messages[0].MultiContent[1].ImageURL
			if img == nil || !strings.HasPrefix(img.URL, "data:image/jpeg;base64,") {
				t.Errorf("expected data URL image part, got %+v", img)
			}
		}

		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			ID:    "chatcmpl-1",
			Model: "gpt-4o-mini",
			Choices: []openai.ChatCompletionChoice{{
				Message: openai.ChatCompletionMessage{Role: "assistant", Content: " SINGLE \n"},
			}},
		})
	}))
	defer server.Close()

	p, err := NewOpenAIProvider(Config{APIKey: "test-key", BaseURL: server.URL, Timeout: 5 * time.Second})
	require.NoError(t, err)

	text, err := p.Generate(context.Background(), testImage, MultiplicityPrompt)
	require.NoError(t, err)
	assert.Equal(t, "SINGLE", text)
	assert.Equal(t, "openai/gpt-4o-mini", p.Name())
}

func TestOpenAIProvider_RateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"Rate limit reached","type":"requests","code":"rate_limit_exceeded"}}`))
	}))
	defer server.Close()

	p, err := NewOpenAIProvider(Config{APIKey: "k", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = p.Generate(context.Background(), testImage, "x")
	assert.Equal(t, KindRateLimit, KindOf(err))
}

func TestOpenAIProvider_RequiresKey(t *testing.T) {
	_, err := NewOpenAIProvider(Config{})
	assert.Error(t, err)
}

func TestOllamaProvider_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("Expected path /api/generate, got %s", r.URL.Path)
		}
		var req ollamaRequest
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Stream {
			t.Error("expected non-streaming request")
		}
		if len(req.Images) != 1 || req.Images[0] != base64.StdEncoding.EncodeToString(testImage.Data) {
			t.Errorf("unexpected images: %v", req.Images)
		}
		_ = json.NewEncoder(w).Encode(ollamaResponse{Model: req.Model, Response: "MULTIPLE", Done: true})
	}))
	defer server.Close()

	p, err := NewOllamaProvider(Config{BaseURL: server.URL + "/", Model: "llava:13b"})
	require.NoError(t, err)

	text, err := p.Generate(context.Background(), testImage, MultiplicityPrompt)
	require.NoError(t, err)
	assert.Equal(t, "MULTIPLE", text)
	assert.Equal(t, "ollama/llava:13b", p.Name())
}

func TestOllamaProvider_Errors(t *testing.T) {
	tests := []struct {
		status int
		kind   Kind
	}{
		{http.StatusTooManyRequests, KindRateLimit},
		{http.StatusNotFound, KindAPIError},
		{http.StatusInternalServerError, KindAPIError},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_ = json.NewEncoder(w).Encode(ollamaError{Error: "model not found"})
			}))
			defer server.Close()

			p, err := NewOllamaProvider(Config{BaseURL: server.URL})
			require.NoError(t, err)

			_, err = p.Generate(context.Background(), testImage, "x")
			require.Error(t, err)
			assert.Equal(t, tt.kind, KindOf(err))
			assert.ErrorIs(t, err, errOllamaStatus)
			assert.Contains(t, err.Error(), "model not found")
		})
	}
}

func TestAnthropicProvider_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("Expected path /v1/messages, got %s", r.URL.Path)
		}
		if r.Header.Get("X-Api-Key") != "test-key" {
			t.Errorf("Unexpected x-api-key %q", r.Header.Get("X-Api-Key"))
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"type":"image"`) || !strings.Contains(string(body), `"media_type":"image/jpeg"`) {
			t.Errorf("expected base64 image block, got %s", body)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-3-5-haiku-latest",
			"content": [{"type": "text", "text": "NONE"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 10, "output_tokens": 1}
		}`))
	}))
	defer server.Close()

	p, err := NewAnthropicProvider(Config{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)

	text, err := p.Generate(context.Background(), testImage, MultiplicityPrompt)
	require.NoError(t, err)
	assert.Equal(t, "NONE", text)
}

func TestAnthropicProvider_RateLimitNotRetriedBySDK(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer server.Close()

	p, err := NewAnthropicProvider(Config{APIKey: "k", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = p.Generate(context.Background(), testImage, "x")
	assert.Equal(t, KindRateLimit, KindOf(err))
	assert.Equal(t, 1, calls)
}

func TestIsGeminiRateLimit(t *testing.T) {
	assert.True(t, isGeminiRateLimit(status.Error(codes.ResourceExhausted, "quota exceeded")))
	assert.True(t, isGeminiRateLimit(&googleapi.Error{Code: http.StatusTooManyRequests}))
	assert.False(t, isGeminiRateLimit(status.Error(codes.PermissionDenied, "bad key")))
	assert.False(t, isGeminiRateLimit(errors.New("quota")))
}

func TestNewProvider(t *testing.T) {
	ctx := context.Background()

	_, err := NewProvider(ctx, Config{Provider: "bard"})
	assert.Error(t, err)

	_, err = NewProvider(ctx, Config{Provider: "gemini"})
	assert.Error(t, err, "missing key must fail")

	_, err = NewProvider(ctx, Config{Provider: "anthropic"})
	assert.Error(t, err)

	p, err := NewProvider(ctx, Config{Provider: "Ollama"})
	require.NoError(t, err)
	assert.IsType(t, &OllamaProvider{}, p)

	p, err = NewProvider(ctx, Config{Provider: "claude", APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &AnthropicProvider{}, p)
}
