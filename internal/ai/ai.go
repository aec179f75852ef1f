package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/david/grantmatch/internal/config"
)

// ErrMissingAPIKey is returned when a hosted provider is configured without a key.
var ErrMissingAPIKey = errors.New("AI API key not set")

// Generator produces free text (or a JSON document when jsonMode is set) for a prompt.
type Generator interface {
	GenerateCompletion(ctx context.Context, prompt string, jsonMode bool) (string, error)
}

type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

type Provider interface {
	Generator
	Embedder
}

const geminiOpenAIBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

// New builds the provider selected by cfg.Provider. Ollama runs locally and needs
// no key; openai and gemini fail with ErrMissingAPIKey when cfg.APIKey is empty.
func New(cfg config.AIConfig) (Provider, error) {
	switch cfg.Provider {
	case "", "ollama":
		return NewOllamaClient(cfg.BaseURL, cfg.EmbedModel, cfg.Model), nil
	case "openai":
		if cfg.APIKey == "" {
			return nil, ErrMissingAPIKey
		}
		return NewOpenAIClient(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.EmbedModel), nil
	case "gemini":
		if cfg.APIKey == "" {
			return nil, ErrMissingAPIKey
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = geminiOpenAIBaseURL
		}
		model := cfg.Model
		if model == "" {
			model = "gemini-1.5-flash"
		}
		embedModel := cfg.EmbedModel
		if embedModel == "" {
			embedModel = "text-embedding-004"
		}
		return NewOpenAIClient(cfg.APIKey, baseURL, model, embedModel), nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.Provider)
	}
}

// WithTimeout bounds every call made through p by d. A non-positive d returns
// p unchanged.
func WithTimeout(p Provider, d time.Duration) Provider {
	if p == nil || d <= 0 {
		return p
	}
	return &timeoutProvider{next: p, timeout: d}
}

type timeoutProvider struct {
	next    Provider
	timeout time.Duration
}

func (t *timeoutProvider) GenerateCompletion(ctx context.Context, prompt string, jsonMode bool) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.GenerateCompletion(ctx, prompt, jsonMode)
}

func (t *timeoutProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.GenerateEmbedding(ctx, text)
}
