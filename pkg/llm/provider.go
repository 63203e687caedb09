package llm

import (
	"context"
	"fmt"
	"strings"
)

// StreamProvider generates text for a prompt as an ordered stream of
// fragments. Both channels are closed when the stream ends; at most one error
// is delivered.
type StreamProvider interface {
	Stream(ctx context.Context, prompt string, model string) (<-chan string, <-chan error)
}

// Candidate is one provider/model pair in a generation cascade.
type Candidate struct {
	Provider string
	Model    string
}

func (c Candidate) String() string {
	return c.Provider + ":" + c.Model
}

// ParseCandidates reads "provider:model" entries.
func ParseCandidates(specs []string) ([]Candidate, error) {
	out := make([]Candidate, 0, len(specs))
	for _, spec := range specs {
		provider, model, ok := strings.Cut(strings.TrimSpace(spec), ":")
		provider = strings.ToLower(strings.TrimSpace(provider))
		model = strings.TrimSpace(model)
		if !ok || provider == "" || model == "" {
			return nil, fmt.Errorf("invalid llm candidate %q, want provider:model", spec)
		}
		out = append(out, Candidate{Provider: provider, Model: model})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no llm candidates configured")
	}
	return out, nil
}

// Collect drains a stream into one string.
func Collect(ctx context.Context, p StreamProvider, prompt, model string) (string, error) {
	chunks, errs := p.Stream(ctx, prompt, model)
	var sb strings.Builder
	for chunk := range chunks {
		sb.WriteString(chunk)
	}
	if err := <-errs; err != nil {
		return sb.String(), err
	}
	return sb.String(), nil
}
