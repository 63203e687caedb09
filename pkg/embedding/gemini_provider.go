package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const defaultGeminiModel = "text-embedding-004"

type geminiRequestPart struct {
	Text string `json:"text"`
}

type geminiRequestContent struct {
	Parts []geminiRequestPart `json:"parts"`
}

type geminiRequest struct {
	Model    string               `json:"model"`
	Content  geminiRequestContent `json:"content"`
	TaskType string               `json:"task_type,omitempty"`
}

type geminiResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

type GeminiProvider struct {
	ApiKey  string
	Model   string
	BaseURL string
	Client  *http.Client
}

func NewGeminiProvider(apiKey, model string) *GeminiProvider {
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiProvider{
		ApiKey:  apiKey,
		Model:   model,
		BaseURL: "https://generativelanguage.googleapis.com/v1",
		Client:  newHTTPClient(),
	}
}

func (p *GeminiProvider) Generate(ctx context.Context, text string, taskType string) ([]float32, error) {
	body, err := json.Marshal(geminiRequest{
		Model:    "models/" + p.Model,
		Content:  geminiRequestContent{Parts: []geminiRequestPart{{Text: text}}},
		TaskType: taskType,
	})
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/models/%s:embedContent", p.BaseURL, p.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-goog-api-key", p.ApiKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := p.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	resByte, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("error from gemini response, code %d, body %s", res.StatusCode, string(resByte))
	}

	var decoded geminiResponse
	if err := json.Unmarshal(resByte, &decoded); err != nil {
		return nil, err
	}
	if len(decoded.Embedding.Values) == 0 {
		return nil, fmt.Errorf("gemini returned an empty embedding")
	}

	return decoded.Embedding.Values, nil
}
