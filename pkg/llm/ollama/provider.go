package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"docchat-be/pkg/llm"
)

type OllamaProvider struct {
	BaseURL string
	Client  *http.Client
}

var _ llm.StreamProvider = &OllamaProvider{}

func NewOllamaProvider(baseURL string) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	// No client timeout; the caller's context bounds the stream.
	return &OllamaProvider{BaseURL: baseURL, Client: &http.Client{}}
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaStreamResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
	Error   string        `json:"error,omitempty"`
}

// Stream reads /api/chat NDJSON, one message fragment per line.
func (o *OllamaProvider) Stream(ctx context.Context, prompt string, model string) (<-chan string, <-chan error) {
	chunks := make(chan string, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		if err := o.stream(ctx, prompt, model, chunks); err != nil {
			errs <- err
		}
	}()

	return chunks, errs
}

func (o *OllamaProvider) stream(ctx context.Context, prompt, model string, chunks chan<- string) error {
	payload, err := json.Marshal(ollamaChatRequest{
		Model:    model,
		Messages: []ollamaMessage{{Role: "user", Content: prompt}},
		Stream:   true,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.BaseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.Client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ollama error: status %d, body: %s", resp.StatusCode, string(body))
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)

	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}

		var decoded ollamaStreamResponse
		if err := json.Unmarshal(line, &decoded); err != nil {
			return fmt.Errorf("unmarshal fragment: %w", err)
		}
		if decoded.Error != "" {
			return errors.New(decoded.Error)
		}

		if decoded.Message.Content != "" {
			select {
			case chunks <- decoded.Message.Content:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if decoded.Done {
			return nil
		}
	}

	if err := sc.Err(); err != nil {
		return err
	}
	return io.ErrUnexpectedEOF
}
