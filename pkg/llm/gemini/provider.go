package gemini

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"docchat-be/pkg/llm"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

type chatPart struct {
	Text string `json:"text"`
}

type chatContent struct {
	Parts []chatPart `json:"parts"`
	Role  string     `json:"role,omitempty"`
}

type chatRequest struct {
	Contents []chatContent `json:"contents"`
}

type chatCandidate struct {
	Content      *chatContent `json:"content"`
	FinishReason string       `json:"finishReason,omitempty"`
}

type chatResponse struct {
	Candidates []chatCandidate `json:"candidates"`
	Error      *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type GeminiProvider struct {
	apiKey  string
	BaseURL string
	Client  *http.Client
}

var _ llm.StreamProvider = &GeminiProvider{}

func NewGeminiProvider(apiKey string) *GeminiProvider {
	return &GeminiProvider{
		apiKey:  apiKey,
		BaseURL: defaultBaseURL,
		Client:  &http.Client{},
	}
}

// Stream calls streamGenerateContent with server-sent events and forwards
// the text of each event.
func (p *GeminiProvider) Stream(ctx context.Context, prompt string, model string) (<-chan string, <-chan error) {
	chunks := make(chan string, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		if err := p.stream(ctx, prompt, model, chunks); err != nil {
			errs <- err
		}
	}()

	return chunks, errs
}

func (p *GeminiProvider) stream(ctx context.Context, prompt, model string, chunks chan<- string) error {
	if p.apiKey == "" {
		return fmt.Errorf("gemini: missing api key")
	}

	payload, err := json.Marshal(chatRequest{
		Contents: []chatContent{{Role: "user", Parts: []chatPart{{Text: prompt}}}},
	})
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", p.BaseURL, model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(payload))
	if err != nil {
		return err
	}
	req.Header.Set("x-goog-api-key", p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := p.Client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("status error, got status %d. with response body %s", res.StatusCode, string(body))
	}

	sc := bufio.NewScanner(res.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)

	for sc.Scan() {
		data, ok := strings.CutPrefix(sc.Text(), "data:")
		if !ok {
			continue
		}

		var event chatResponse
		if err := json.Unmarshal([]byte(strings.TrimSpace(data)), &event); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		if event.Error != nil {
			return fmt.Errorf("gemini error %d: %s", event.Error.Code, event.Error.Message)
		}

		for _, c := range event.Candidates {
			if c.Content == nil {
				continue
			}
			for _, part := range c.Content.Parts {
				if part.Text == "" {
					continue
				}
				select {
				case chunks <- part.Text:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}

	return sc.Err()
}
