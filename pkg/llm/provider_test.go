package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticProvider struct {
	parts []string
	err   error
}

func (p staticProvider) Stream(_ context.Context, _ string, _ string) (<-chan string, <-chan error) {
	chunks := make(chan string, len(p.parts))
	errs := make(chan error, 1)
	for _, part := range p.parts {
		chunks <- part
	}
	if p.err != nil {
		errs <- p.err
	}
	close(chunks)
	close(errs)
	return chunks, errs
}

func TestParseCandidates(t *testing.T) {
	got, err := ParseCandidates([]string{"Gemini:gemini-2.5-flash", " ollama : llama3:8b "})
	require.NoError(t, err)
	assert.Equal(t, []Candidate{
		{Provider: "gemini", Model: "gemini-2.5-flash"},
		{Provider: "ollama", Model: "llama3:8b"},
	}, got)
	assert.Equal(t, "gemini:gemini-2.5-flash", got[0].String())
}

func TestParseCandidates_Invalid(t *testing.T) {
	for _, specs := range [][]string{nil, {"gemini"}, {":model"}, {"gemini:"}} {
		_, err := ParseCandidates(specs)
		assert.Error(t, err, "%v", specs)
	}
}

func TestCollect(t *testing.T) {
	out, err := Collect(context.Background(), staticProvider{parts: []string{"a", "b"}}, "p", "m")
	require.NoError(t, err)
	assert.Equal(t, "ab", out)

	out, err = Collect(context.Background(), staticProvider{parts: []string{"a"}, err: errors.New("boom")}, "p", "m")
	assert.EqualError(t, err, "boom")
	assert.Equal(t, "a", out)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(" Gemini ", staticProvider{})

	_, err := r.Get("gemini")
	assert.NoError(t, err)
	_, err = r.Get("claude")
	assert.Error(t, err)
}
