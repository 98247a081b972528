// In file: internal/llm/constants.go
package llm

import "time"

// Shared by the provider adapters and the retry policy.
const (
	defaultTimeout    = 120 * time.Second
	defaultMaxTokens  = 4096
	maxRetries        = 3
	initialRetryDelay = 2 * time.Second
	maxRetryDelay     = 30 * time.Second

	providerAnthropic = "anthropic"
	providerOpenAI    = "openai"
	providerMistral   = "mistral"
	providerGemini    = "gemini"
)
