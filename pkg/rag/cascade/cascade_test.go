package cascade

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"docchat-be/internal/pkg/logger"
	"docchat-be/pkg/llm"
	"docchat-be/pkg/rag"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type script struct {
	parts []string
	err   error
	// block keeps the stream open until the context ends.
	block bool
}

type fakeProvider struct {
	mu      sync.Mutex
	scripts map[string]script
	calls   []string
}

func (f *fakeProvider) Stream(ctx context.Context, _ string, model string) (<-chan string, <-chan error) {
	f.mu.Lock()
	f.calls = append(f.calls, model)
	s := f.scripts[model]
	f.mu.Unlock()

	chunks := make(chan string)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		for _, p := range s.parts {
			select {
			case chunks <- p:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
		if s.block {
			<-ctx.Done()
			errs <- ctx.Err()
			return
		}
		if s.err != nil {
			errs <- s.err
		}
	}()
	return chunks, errs
}

func (f *fakeProvider) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func newCascade(t *testing.T, scripts map[string]script, models ...string) (*Cascade, *fakeProvider) {
	t.Helper()
	fake := &fakeProvider{scripts: scripts}
	registry := llm.NewRegistry()
	registry.Register("fake", fake)

	candidates := make([]llm.Candidate, len(models))
	for i, m := range models {
		candidates[i] = llm.Candidate{Provider: "fake", Model: m}
	}
	return New(registry, candidates, logger.NewNop()), fake
}

func collect(run *Run) []string {
	var out []string
	for f := range run.Fragments() {
		out = append(out, f)
	}
	return out
}

func TestStream_FirstCandidateSucceeds(t *testing.T) {
	c, fake := newCascade(t, map[string]script{
		"m1": {parts: []string{"- a", "\n- b"}},
		"m2": {parts: []string{"unused"}},
	}, "m1", "m2")

	run := c.Stream(context.Background(), "prompt")
	got := collect(run)
	outcome := run.Outcome()

	assert.Equal(t, []string{"- a", "\n- b"}, got)
	assert.Equal(t, StateSucceeded, outcome.State)
	require.NotNil(t, outcome.Committed)
	assert.Equal(t, "m1", outcome.Committed.Model)
	assert.Empty(t, outcome.Failed)
	assert.Equal(t, []string{"m1"}, fake.Calls())
}

func TestStream_ThirdCandidateSucceeds(t *testing.T) {
	quota := errors.New("429 quota exceeded")
	c, fake := newCascade(t, map[string]script{
		"m1": {err: quota},
		"m2": {err: quota},
		"m3": {parts: []string{"answer"}},
	}, "m1", "m2", "m3")

	run := c.Stream(context.Background(), "prompt")
	got := collect(run)
	outcome := run.Outcome()

	assert.Equal(t, []string{"answer"}, got)
	assert.Equal(t, StateSucceeded, outcome.State)
	assert.Equal(t, "m3", outcome.Committed.Model)
	require.Len(t, outcome.Failed, 2)
	assert.Equal(t, "m1", outcome.Failed[0].Candidate.Model)
	assert.ErrorIs(t, outcome.Failed[1].Err, quota)
	assert.Equal(t, []string{"m1", "m2", "m3"}, fake.Calls())
}

func TestStream_ExhaustionEmitsSingleNotice(t *testing.T) {
	c, _ := newCascade(t, map[string]script{
		"m1": {err: errors.New("down")},
		"m2": {err: errors.New("down")},
	}, "m1", "m2")

	run := c.Stream(context.Background(), "prompt")
	got := collect(run)
	outcome := run.Outcome()

	require.Len(t, got, 1)
	assert.Equal(t, ExhaustedNotice, got[0])
	assert.NotEmpty(t, got[0])
	assert.Equal(t, StateExhausted, outcome.State)
	assert.Nil(t, outcome.Committed)
	assert.ErrorIs(t, outcome.Err, rag.ErrGeneration)
}

func TestStream_MidStreamFailureDoesNotSwitch(t *testing.T) {
	c, fake := newCascade(t, map[string]script{
		"m1": {parts: []string{"par", "tial"}, err: errors.New("connection reset")},
		"m2": {parts: []string{"other"}},
	}, "m1", "m2")

	run := c.Stream(context.Background(), "prompt")
	got := collect(run)
	outcome := run.Outcome()

	assert.Equal(t, []string{"par", "tial", InterruptedNotice}, got)
	assert.Equal(t, StateInterrupted, outcome.State)
	assert.Equal(t, "m1", outcome.Committed.Model)
	assert.Equal(t, []string{"m1"}, fake.Calls())
}

func TestStream_EmptyOutputFallsThrough(t *testing.T) {
	c, _ := newCascade(t, map[string]script{
		"m1": {},
		"m2": {parts: []string{"", "ok"}},
	}, "m1", "m2")

	run := c.Stream(context.Background(), "prompt")
	got := collect(run)

	assert.Equal(t, []string{"ok"}, got)
	outcome := run.Outcome()
	require.Len(t, outcome.Failed, 1)
	assert.ErrorIs(t, outcome.Failed[0].Err, errEmptyResponse)
}

func TestStream_UnknownProviderIsAFailedAttempt(t *testing.T) {
	fake := &fakeProvider{scripts: map[string]script{"m": {parts: []string{"hi"}}}}
	registry := llm.NewRegistry()
	registry.Register("fake", fake)

	c := New(registry, []llm.Candidate{
		{Provider: "missing", Model: "x"},
		{Provider: "fake", Model: "m"},
	}, logger.NewNop())

	run := c.Stream(context.Background(), "prompt")
	assert.Equal(t, []string{"hi"}, collect(run))
	assert.Len(t, run.Outcome().Failed, 1)
}

func TestStream_CancelStopsGeneration(t *testing.T) {
	c, _ := newCascade(t, map[string]script{
		"m1": {parts: []string{"first"}, block: true},
	}, "m1")

	ctx, cancel := context.WithCancel(context.Background())
	run := c.Stream(ctx, "prompt")

	first := <-run.Fragments()
	assert.Equal(t, "first", first)
	cancel()

	rest := collect(run)
	assert.Empty(t, rest)
	outcome := run.Outcome()
	assert.Equal(t, StateCanceled, outcome.State)
}

func TestStream_FragmentDelay(t *testing.T) {
	fake := &fakeProvider{scripts: map[string]script{"m": {parts: []string{"a", "b", "c"}}}}
	registry := llm.NewRegistry()
	registry.Register("fake", fake)
	c := New(registry, []llm.Candidate{{Provider: "fake", Model: "m"}}, logger.NewNop(), WithFragmentDelay(5*time.Millisecond))

	start := time.Now()
	run := c.Stream(context.Background(), "prompt")
	assert.Equal(t, []string{"a", "b", "c"}, collect(run))
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}
