// In file: internal/llm/mistral_client.go
package llm

import (
	"errors"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

const mistralAPIURL = "https://api.mistral.ai/v1"

// NewMistralClient returns an OpenAIClient pointed at Mistral's Chat
// Completions endpoint, which speaks the same wire format including tool calls.
func NewMistralClient(apiKey string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("mistral API key cannot be empty")
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = mistralAPIURL
	cfg.HTTPClient = &http.Client{Timeout: defaultTimeout}
	return &OpenAIClient{chat: openai.NewClientWithConfig(cfg), provider: providerMistral}, nil
}
