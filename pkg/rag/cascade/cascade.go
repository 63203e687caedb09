package cascade

import (
	"context"
	"errors"
	"fmt"
	"time"

	"docchat-be/internal/pkg/logger"
	"docchat-be/pkg/llm"
	"docchat-be/pkg/rag"
)

const (
	ExhaustedNotice   = "\n\n⚠️ **API Limit Reached:** every language model failed to answer. Please wait 30 seconds and try again."
	InterruptedNotice = "\n\n⚠️ **Answer interrupted:** the model stopped responding. Please try again."
)

var errEmptyResponse = errors.New("candidate produced no output")

type State string

const (
	StateTrying      State = "TRYING"
	StateSucceeded   State = "SUCCEEDED"
	StateInterrupted State = "INTERRUPTED"
	StateExhausted   State = "EXHAUSTED"
	StateCanceled    State = "CANCELED"
)

// Attempt records one candidate that failed before producing output.
type Attempt struct {
	Candidate llm.Candidate
	Err       error
}

type Outcome struct {
	State State
	// Committed is the candidate whose output reached the caller, if any.
	Committed *llm.Candidate
	Failed    []Attempt
	Fragments int
	Err       error
}

type ProviderResolver interface {
	Get(name string) (llm.StreamProvider, error)
}

type Option func(*Cascade)

func WithFragmentDelay(d time.Duration) Option {
	return func(c *Cascade) { c.delay = d }
}

// Cascade tries candidates in order until one starts producing output. Once a
// candidate is committed there is no switching, even if it fails later.
type Cascade struct {
	resolver   ProviderResolver
	candidates []llm.Candidate
	delay      time.Duration
	logger     logger.ILogger
}

func New(resolver ProviderResolver, candidates []llm.Candidate, log logger.ILogger, opts ...Option) *Cascade {
	c := &Cascade{
		resolver:   resolver,
		candidates: append([]llm.Candidate(nil), candidates...),
		logger:     log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cascade) Candidates() []llm.Candidate {
	return append([]llm.Candidate(nil), c.candidates...)
}

// Run is one streamed generation. Read Fragments until closed, then Outcome.
type Run struct {
	fragments chan string
	done      chan struct{}
	outcome   Outcome
}

func (r *Run) Fragments() <-chan string {
	return r.fragments
}

// Outcome blocks until the run has finished.
func (r *Run) Outcome() Outcome {
	<-r.done
	return r.outcome
}

func (c *Cascade) Stream(ctx context.Context, prompt string) *Run {
	run := &Run{
		fragments: make(chan string),
		done:      make(chan struct{}),
	}

	go func() {
		defer close(run.done)
		defer close(run.fragments)
		run.outcome = c.run(ctx, prompt, run.fragments)
	}()

	return run
}

func (c *Cascade) run(ctx context.Context, prompt string, out chan<- string) Outcome {
	outcome := Outcome{State: StateTrying}

	for i, cand := range c.candidates {
		if ctx.Err() != nil {
			outcome.State, outcome.Err = StateCanceled, ctx.Err()
			return outcome
		}

		fragments, err := c.tryCandidate(ctx, cand, prompt, out)
		outcome.Fragments += fragments

		switch {
		case err == nil:
			committed := cand
			outcome.State, outcome.Committed = StateSucceeded, &committed
			return outcome

		case ctx.Err() != nil:
			outcome.State, outcome.Err = StateCanceled, ctx.Err()
			if fragments > 0 {
				committed := cand
				outcome.Committed = &committed
			}
			return outcome

		case fragments > 0:
			committed := cand
			outcome.State, outcome.Committed, outcome.Err = StateInterrupted, &committed, err
			c.logger.Warn("CASCADE", "Committed candidate failed mid-stream", map[string]interface{}{
				"candidate": cand.String(),
				"fragments": fragments,
				"error":     err.Error(),
			})
			if c.emit(ctx, out, InterruptedNotice) {
				outcome.Fragments++
			}
			return outcome

		default:
			outcome.Failed = append(outcome.Failed, Attempt{Candidate: cand, Err: err})
			c.logger.Warn("CASCADE", "Candidate failed, trying next", map[string]interface{}{
				"candidate": cand.String(),
				"position":  i + 1,
				"of":        len(c.candidates),
				"error":     err.Error(),
			})
		}
	}

	outcome.State = StateExhausted
	outcome.Err = fmt.Errorf("%w: all %d candidates failed", rag.ErrGeneration, len(c.candidates))
	c.logger.Error("CASCADE", "All candidates exhausted", map[string]interface{}{
		"candidates": len(c.candidates),
	})
	if c.emit(ctx, out, ExhaustedNotice) {
		outcome.Fragments++
	}
	return outcome
}

// tryCandidate forwards one candidate's stream and returns how many fragments
// reached the caller.
func (c *Cascade) tryCandidate(ctx context.Context, cand llm.Candidate, prompt string, out chan<- string) (int, error) {
	provider, err := c.resolver.Get(cand.Provider)
	if err != nil {
		return 0, err
	}

	candCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	chunks, errs := provider.Stream(candCtx, prompt, cand.Model)

	forwarded := 0
	for chunk := range chunks {
		if chunk == "" {
			continue
		}
		if !c.emit(ctx, out, chunk) {
			cancel()
			drain(chunks, errs)
			return forwarded, ctx.Err()
		}
		forwarded++
	}

	if err := <-errs; err != nil {
		return forwarded, err
	}
	if forwarded == 0 {
		return 0, errEmptyResponse
	}
	return forwarded, nil
}

// emit hands one fragment to the reader, then waits the configured delay.
func (c *Cascade) emit(ctx context.Context, out chan<- string, fragment string) bool {
	select {
	case out <- fragment:
	case <-ctx.Done():
		return false
	}

	if c.delay > 0 {
		t := time.NewTimer(c.delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
		}
	}
	return true
}

func drain(chunks <-chan string, errs <-chan error) {
	go func() {
		for range chunks {
		}
		<-errs
	}()
}
