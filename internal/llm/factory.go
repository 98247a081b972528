// In file: internal/llm/factory.go
package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"goa.design/clue/log"
)

// ErrNoClient is returned when no provider client is configured for a model.
var ErrNoClient = errors.New("no LLM client configured")

// APIKeys holds one key per provider. Empty keys disable the provider.
type APIKeys struct {
	Anthropic string
	OpenAI    string
	Mistral   string
	Gemini    string
}

// ProviderForModel maps a model id onto its provider by prefix.
func ProviderForModel(modelID string) (string, bool) {
	switch {
	case strings.HasPrefix(modelID, "gpt"), strings.HasPrefix(modelID, "o1"),
		strings.HasPrefix(modelID, "o3"), strings.HasPrefix(modelID, "o4"):
		return providerOpenAI, true
	case strings.HasPrefix(modelID, "claude"):
		return providerAnthropic, true
	case strings.HasPrefix(modelID, "gemini"):
		return providerGemini, true
	case strings.HasPrefix(modelID, "mistral"), strings.HasPrefix(modelID, "open-mistral"),
		strings.HasPrefix(modelID, "codestral"):
		return providerMistral, true
	}
	return "", false
}

// Clients holds one LLMClient per configured provider.
type Clients struct {
	byProvider map[string]LLMClient
}

// Decorator wraps a provider client, e.g. with retries or profiling.
type Decorator func(provider string, client LLMClient) LLMClient

// NewClients creates a client for every provider that has a key. Decorators
// are applied in order, so the last one is outermost.
func NewClients(ctx context.Context, keys APIKeys, decorators ...Decorator) (*Clients, error) {
	clients := make(map[string]LLMClient)
	add := func(provider string, client LLMClient, err error) error {
		if err != nil {
			return fmt.Errorf("failed to create client for %s: %w", provider, err)
		}
		for _, d := range decorators {
			client = d(provider, client)
		}
		clients[provider] = client
		return nil
	}
	if keys.Anthropic != "" {
		c, err := NewAnthropicClient(keys.Anthropic)
		if err := add(providerAnthropic, c, err); err != nil {
			return nil, err
		}
	}
	if keys.OpenAI != "" {
		c, err := NewOpenAIClient(keys.OpenAI)
		if err := add(providerOpenAI, c, err); err != nil {
			return nil, err
		}
	}
	if keys.Mistral != "" {
		c, err := NewMistralClient(keys.Mistral)
		if err := add(providerMistral, c, err); err != nil {
			return nil, err
		}
	}
	if keys.Gemini != "" {
		c, err := NewGeminiClient(ctx, keys.Gemini)
		if err := add(providerGemini, c, err); err != nil {
			return nil, err
		}
	}
	log.Print(ctx, log.KV{K: "msg", V: "LLM clients initialized"}, log.KV{K: "providers", V: len(clients)})
	return &Clients{byProvider: clients}, nil
}

// NewStaticClients builds a Clients value from ready-made clients keyed by
// provider name. Tests and the CLI use it to inject scripted clients.
func NewStaticClients(byProvider map[string]LLMClient) *Clients {
	m := make(map[string]LLMClient, len(byProvider))
	for k, v := range byProvider {
		m[k] = v
	}
	return &Clients{byProvider: m}
}

// ForModel returns the client serving modelID.
func (c *Clients) ForModel(modelID string) (LLMClient, error) {
	provider, ok := ProviderForModel(modelID)
	if !ok {
		if client, ok := c.byProvider["*"]; ok {
			return client, nil
		}
		return nil, fmt.Errorf("%w: unknown provider for model %q", ErrNoClient, modelID)
	}
	if client, ok := c.byProvider[provider]; ok {
		return client, nil
	}
	if client, ok := c.byProvider["*"]; ok {
		return client, nil
	}
	return nil, fmt.Errorf("%w: provider %s for model %q has no API key", ErrNoClient, provider, modelID)
}

// Providers lists configured providers, sorted.
func (c *Clients) Providers() []string {
	out := make([]string, 0, len(c.byProvider))
	for p := range c.byProvider {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
