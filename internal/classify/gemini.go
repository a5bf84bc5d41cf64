package classify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GeminiProvider calls Google's Gemini models
type GeminiProvider struct {
	client *genai.Client
	model  *genai.GenerativeModel
	name   string
	config Config
}

// NewGeminiProvider creates a Gemini backend; the client lives until Close
func NewGeminiProvider(ctx context.Context, config Config) (*GeminiProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required (set GEMINI_API_KEY)")
	}

	opts := []option.ClientOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(config.BaseURL))
	}

	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	name := config.Model
	if name == "" {
		name = DefaultGeminiModel
	}
	m := client.GenerativeModel(name)
	m.SetTemperature(0)
	m.SetMaxOutputTokens(int32(config.maxTokens()))

	return &GeminiProvider{client: client, model: m, name: name, config: config}, nil
}

func (p *GeminiProvider) Name() string {
	return "gemini/" + p.name
}

func (p *GeminiProvider) Generate(ctx context.Context, img Image, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.config.timeout())
	defer cancel()

	resp, err := p.model.GenerateContent(ctx, genai.Text(prompt), genai.ImageData(img.Format(), img.Data))
	if err != nil {
		if isGeminiRateLimit(err) {
			return "", RateLimited(err)
		}
		return "", APIError(err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String(), nil
}

// Close releases the underlying connection
func (p *GeminiProvider) Close() error {
	return p.client.Close()
}

func isGeminiRateLimit(err error) bool {
	if status.Code(err) == codes.ResourceExhausted {
		return true
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusTooManyRequests {
		return true
	}
	return false
}
