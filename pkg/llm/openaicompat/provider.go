package openaicompat

import (
	"context"
	"sync"

	"docchat-be/pkg/llm"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Provider streams from any OpenAI-compatible chat completions endpoint
// (HuggingFace router, vLLM, LM Studio, OpenAI itself).
type Provider struct {
	baseURL string
	token   string

	mu      sync.Mutex
	clients map[string]llms.Model
}

var _ llm.StreamProvider = &Provider{}

func NewProvider(baseURL, token string) *Provider {
	if token == "" {
		// local servers accept any token
		token = "none"
	}
	return &Provider{
		baseURL: baseURL,
		token:   token,
		clients: make(map[string]llms.Model),
	}
}

func (p *Provider) client(model string) (llms.Model, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[model]; ok {
		return c, nil
	}

	opts := []openai.Option{openai.WithToken(p.token), openai.WithModel(model)}
	if p.baseURL != "" {
		opts = append(opts, openai.WithBaseURL(p.baseURL))
	}
	c, err := openai.New(opts...)
	if err != nil {
		return nil, err
	}
	p.clients[model] = c
	return c, nil
}

func (p *Provider) Stream(ctx context.Context, prompt string, model string) (<-chan string, <-chan error) {
	chunks := make(chan string, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		c, err := p.client(model)
		if err != nil {
			errs <- err
			return
		}

		content := []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, prompt)}
		_, err = c.GenerateContent(ctx, content, llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			select {
			case chunks <- string(chunk):
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}))
		if err != nil {
			errs <- err
		}
	}()

	return chunks, errs
}
