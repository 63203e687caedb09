package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"docchat-be/internal/pkg/logger"
	"docchat-be/pkg/rag"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"
)

var ErrUnexpectedDimension = errors.New("embedding has unexpected dimension")

const (
	defaultQueryAttempts = 3
	defaultQueryBackoff  = time.Second
)

type GatewayConfig struct {
	Dimension int
	// QueryAttempts and QueryBackoff govern EmbedQuery retries.
	QueryAttempts int
	QueryBackoff  time.Duration
	// DocumentsPerSecond throttles EmbedDocument. Zero disables throttling.
	DocumentsPerSecond float64
}

// Gateway fronts an EmbeddingProvider with the retry and throttling policy of
// each call site: queries are retried, documents are rate limited.
type Gateway struct {
	provider  EmbeddingProvider
	dimension int
	attempts  int
	backoff   time.Duration
	limiter   *rate.Limiter
	logger    logger.ILogger
}

func NewGateway(provider EmbeddingProvider, cfg GatewayConfig, log logger.ILogger) *Gateway {
	g := &Gateway{
		provider:  provider,
		dimension: cfg.Dimension,
		attempts:  cfg.QueryAttempts,
		backoff:   cfg.QueryBackoff,
		logger:    log,
	}
	if g.attempts <= 0 {
		g.attempts = defaultQueryAttempts
	}
	if g.backoff <= 0 {
		g.backoff = defaultQueryBackoff
	}
	if cfg.DocumentsPerSecond > 0 {
		burst := int(cfg.DocumentsPerSecond)
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.DocumentsPerSecond), burst)
	}
	return g
}

func (g *Gateway) Dimension() int {
	return g.dimension
}

// EmbedQuery embeds a user question. Failures are retried with a constant
// backoff; exhaustion wraps rag.ErrEmbeddingUnavailable.
func (g *Gateway) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	attempt := 0
	vec, err := backoff.Retry(ctx, func() ([]float32, error) {
		attempt++
		v, err := g.provider.Generate(ctx, text, TaskRetrievalQuery)
		if err != nil {
			return nil, err
		}
		if err := g.checkDimension(v); err != nil {
			return nil, backoff.Permanent(err)
		}
		return v, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(g.backoff)),
		backoff.WithMaxTries(uint(g.attempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			g.logger.Warn("EMBEDDING", "Query embedding failed, retrying", map[string]interface{}{
				"attempt":  attempt,
				"retry_in": next.String(),
				"error":    err.Error(),
			})
		}),
	)
	if err != nil {
		if errors.Is(err, ErrUnexpectedDimension) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %d attempts: %v", rag.ErrEmbeddingUnavailable, attempt, err)
	}
	return vec, nil
}

// EmbedDocument embeds one chunk during ingestion. It waits for the rate
// limiter and makes a single attempt.
func (g *Gateway) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	vec, err := g.provider.Generate(ctx, text, TaskRetrievalDocument)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", rag.ErrEmbeddingUnavailable, err)
	}
	if err := g.checkDimension(vec); err != nil {
		return nil, err
	}
	return vec, nil
}

func (g *Gateway) checkDimension(vec []float32) error {
	if g.dimension > 0 && len(vec) != g.dimension {
		return fmt.Errorf("%w: got %d, want %d", ErrUnexpectedDimension, len(vec), g.dimension)
	}
	return nil
}
