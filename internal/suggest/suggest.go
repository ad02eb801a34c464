// Package suggest drafts short reply suggestions for a conversation.
//
// The engine wraps a single configured provider and never surfaces failures:
// any error, timeout, or unusable response falls back to a fixed list of
// canned replies so the overlay always has something to show.
package suggest

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/quillhq/quill/internal/config"
	"github.com/quillhq/quill/internal/keyring"
	"github.com/quillhq/quill/internal/logging"
)

// Provider is a minimal completion backend.
type Provider interface {
	// ID returns the provider identifier ("openai", "anthropic", "ollama")
	ID() string
	// Complete sends one system+user exchange and returns the raw model text
	Complete(ctx context.Context, system, user string) (string, error)
}

// Engine turns conversation context into 1..5 reply suggestions.
type Engine struct {
	provider     Provider
	maxCount     int
	timeout      time.Duration
	systemPrompt string
}

// NewEngine builds an engine from config, resolving the provider and its
// credentials. Returns an error only for unknown provider names or missing
// API keys; runtime failures are absorbed by Generate.
func NewEngine(cfg *config.Config) (*Engine, error) {
	provider, err := resolveProvider(cfg)
	if err != nil {
		return nil, err
	}
	return NewEngineWithProvider(provider, cfg.Suggestions.MaxCount,
		time.Duration(cfg.Suggestions.TimeoutSeconds)*time.Second, cfg.Suggestions.SystemPrompt), nil
}

// NewEngineWithProvider builds an engine around an explicit provider.
func NewEngineWithProvider(p Provider, maxCount int, timeout time.Duration, systemPrompt string) *Engine {
	if maxCount < 1 {
		maxCount = 1
	}
	if maxCount > 5 {
		maxCount = 5
	}
	if timeout <= 0 {
		timeout = 6 * time.Second
	}
	return &Engine{
		provider:     p,
		maxCount:     maxCount,
		timeout:      timeout,
		systemPrompt: systemPrompt,
	}
}

// ProviderID returns the active provider's identifier.
func (e *Engine) ProviderID() string {
	if e.provider == nil {
		return "none"
	}
	return e.provider.ID()
}

// Generate drafts suggestions for the given conversation context.
// It always returns between 1 and 5 strings: on any provider error,
// timeout, or empty result the fixed fallback list is returned instead.
func (e *Engine) Generate(ctx context.Context, convo string) []string {
	if e.provider == nil {
		return Fallback()
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	system := e.systemPrompt
	if system == "" {
		system = defaultSystemPrompt
	}

	raw, err := e.provider.Complete(ctx, system, buildUserPrompt(convo, e.maxCount))
	if err != nil {
		logging.Errorf("[suggest] %s completion failed: %v", e.provider.ID(), err)
		return Fallback()
	}

	replies := parseReplies(raw, e.maxCount)
	if len(replies) == 0 {
		logging.Errorf("[suggest] %s returned no usable replies", e.provider.ID())
		return Fallback()
	}
	return replies
}

// resolveProvider picks the configured backend and its credentials.
// API keys are looked up in order: config value, OS keychain, environment.
func resolveProvider(cfg *config.Config) (Provider, error) {
	s := cfg.Suggestions
	switch strings.ToLower(s.Provider) {
	case "openai":
		key := apiKey(s.APIKey, "openai", "OPENAI_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("no OpenAI API key: set suggestions.api_key, the keychain entry, or OPENAI_API_KEY")
		}
		return NewOpenAIProvider(key, s.Model), nil
	case "anthropic":
		key := apiKey(s.APIKey, "anthropic", "ANTHROPIC_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("no Anthropic API key: set suggestions.api_key, the keychain entry, or ANTHROPIC_API_KEY")
		}
		return NewAnthropicProvider(key, s.Model), nil
	case "ollama":
		return NewOllamaProvider(s.OllamaBaseURL, s.Model), nil
	default:
		return nil, fmt.Errorf("unknown suggestions provider %q", s.Provider)
	}
}

func apiKey(configured, provider, envVar string) string {
	if configured != "" {
		return configured
	}
	if keyring.Available() {
		if key, err := keyring.GetAPIKey(provider); err == nil && key != "" {
			return key
		}
	}
	return os.Getenv(envVar)
}
