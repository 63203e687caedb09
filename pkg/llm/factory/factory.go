package factory

import (
	"docchat-be/pkg/llm"
	"docchat-be/pkg/llm/gemini"
	"docchat-be/pkg/llm/ollama"
	"docchat-be/pkg/llm/openaicompat"
)

type Config struct {
	GeminiAPIKey  string
	OllamaBaseURL string
	OpenAIBaseURL string
	OpenAIAPIKey  string
}

// NewRegistry registers every provider a cascade candidate can name.
func NewRegistry(cfg Config) *llm.Registry {
	r := llm.NewRegistry()
	r.Register("gemini", gemini.NewGeminiProvider(cfg.GeminiAPIKey))
	r.Register("ollama", ollama.NewOllamaProvider(cfg.OllamaBaseURL))
	r.Register("openai", openaicompat.NewProvider(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey))
	return r
}
