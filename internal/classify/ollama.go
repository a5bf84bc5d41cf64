package classify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// OllamaProvider calls a local Ollama server with a multimodal model
type OllamaProvider struct {
	baseURL    string
	httpClient *http.Client
	config     Config
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Images  []string      `json:"images"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

type ollamaError struct {
	Error string `json:"error"`
}

// errOllamaStatus marks a non-200 reply from the Ollama server
var errOllamaStatus = errors.New("ollama returned an error status")

// NewOllamaProvider creates an Ollama backend
func NewOllamaProvider(config Config) (*OllamaProvider, error) {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = DefaultOllamaBaseURL
	}

	return &OllamaProvider{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: config.httpClient(),
		config:     config,
	}, nil
}

func (p *OllamaProvider) Name() string {
	return "ollama/" + p.model()
}

func (p *OllamaProvider) model() string {
	if p.config.Model != "" {
		return p.config.Model
	}
	return DefaultOllamaModel
}

func (p *OllamaProvider) Generate(ctx context.Context, img Image, prompt string) (string, error) {
	body, err := json.Marshal(ollamaRequest{
		Model:  p.model(),
		Prompt: prompt,
		Images: []string{base64.StdEncoding.EncodeToString(img.Data)},
		Stream: false,
		Options: ollamaOptions{
			Temperature: 0,
			NumPredict:  p.config.maxTokens(),
		},
	})
	if err != nil {
		return "", APIError(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", APIError(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", APIError(fmt.Errorf("execute request: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", APIError(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		detail := string(respBody)
		var apiErr ollamaError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			detail = apiErr.Error
		}
		err := fmt.Errorf("%w (%d): %s", errOllamaStatus, resp.StatusCode, detail)
		if resp.StatusCode == http.StatusTooManyRequests {
			return "", RateLimited(err)
		}
		return "", APIError(err)
	}

	var out ollamaResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", APIError(fmt.Errorf("unmarshal response: %w", err))
	}
	return strings.TrimSpace(out.Response), nil
}
