package classify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ppiankov/thumbsieve/internal/model"
	"github.com/ppiankov/thumbsieve/internal/util"
)

// Config selects and configures a backend
type Config struct {
	Provider  string // gemini, openai, anthropic (or claude), ollama
	Model     string
	APIKey    string
	BaseURL   string
	Timeout   time.Duration
	MaxTokens int

	HTTPProxy  string
	HTTPSProxy string
}

// Default models per provider
const (
	DefaultGeminiModel    = "gemini-2.5-flash-lite-preview-09-2025"
	DefaultOpenAIModel    = "gpt-4o-mini"
	DefaultAnthropicModel = "claude-3-5-haiku-latest"
	DefaultOllamaModel    = "llava:7b"
	DefaultOllamaBaseURL  = "http://localhost:11434"

	defaultMaxTokens = 200
	defaultTimeout   = 30 * time.Second
)

// ConfigFromModel builds a backend config from the run configuration
func ConfigFromModel(c model.ClassifierConfig, h model.HTTPConfig) Config {
	return Config{
		Provider:   c.Provider,
		Model:      c.Model,
		APIKey:     c.APIKey,
		BaseURL:    c.BaseURL,
		Timeout:    c.Timeout,
		HTTPProxy:  h.HTTPProxy,
		HTTPSProxy: h.HTTPSProxy,
	}
}

// NewProvider creates the backend named by config.Provider
func NewProvider(ctx context.Context, config Config) (Generator, error) {
	switch strings.ToLower(config.Provider) {
	case "gemini", "google", "":
		return NewGeminiProvider(ctx, config)
	case "openai":
		return NewOpenAIProvider(config)
	case "anthropic", "claude":
		return NewAnthropicProvider(config)
	case "ollama":
		return NewOllamaProvider(config)
	default:
		return nil, fmt.Errorf("unknown classifier provider: %s (supported: gemini, openai, anthropic, ollama)", config.Provider)
	}
}

func (c Config) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return defaultTimeout
}

func (c Config) maxTokens() int {
	if c.MaxTokens > 0 {
		return c.MaxTokens
	}
	return defaultMaxTokens
}

func (c Config) httpClient() *http.Client {
	return util.NewHTTPClient(c.timeout(), c.HTTPProxy, c.HTTPSProxy)
}
