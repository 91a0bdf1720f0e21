// Package embedding wraps the external embedding capability with the
// orchestration the pipeline needs: rate limiting, bounded retry with
// exponential backoff, and typed per-position failures for batch calls.
//
// The capability itself is a genkit ai.Embedder; this package never assumes
// a specific vendor.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/firebase/genkit/go/ai"
	"golang.org/x/time/rate"

	"github.com/docent-ai/docent/internal/log"
)

// Dimension is the vector size every embedding must have. The store schema
// declares vector(1536) and rejects anything else.
const Dimension = 1536

var (
	// ErrRateLimited marks a transient rate-limit rejection; retried.
	ErrRateLimited = errors.New("embedding rate limited")

	// ErrServiceUnavailable marks a transient upstream outage; retried.
	ErrServiceUnavailable = errors.New("embedding service unavailable")

	// ErrInvalidInput marks input the capability rejected; never retried.
	ErrInvalidInput = errors.New("invalid embedding input")

	// ErrEmptyEmbedding indicates the capability returned no vector for an
	// input that did not error. Treated as permanent.
	ErrEmptyEmbedding = errors.New("empty embedding returned")
)

// BatchError identifies which input of a batch exhausted its retries.
// Callers decide whether to skip the position, zero-fill it, or abort.
type BatchError struct {
	Index int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("embedding input %d: %v", e.Index, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// RetryPolicy bounds retry behavior for transient failures. It is injected
// rather than hardcoded so rate budgets stay configuration, not law.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int

	// BaseDelay is the initial backoff interval.
	BaseDelay time.Duration

	// MaxDelay caps the backoff interval.
	MaxDelay time.Duration

	// Jitter is the randomization factor applied to each interval.
	Jitter float64
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 4,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Jitter:      0.5,
	}
}

// Embedder converts text into fixed-dimension vectors via the external
// capability, retrying transient failures.
//
// Embedder is safe for concurrent use by multiple goroutines.
type Embedder struct {
	embedder ai.Embedder
	limiter  *rate.Limiter
	policy   RetryPolicy
	logger   log.Logger
}

// New creates an Embedder.
//
//   - embedder: the external capability (must not be nil)
//   - limiter: request rate limiter; nil disables rate limiting
//   - policy: retry policy; zero MaxAttempts selects DefaultRetryPolicy
//   - logger: nil selects the no-op logger
func New(embedder ai.Embedder, limiter *rate.Limiter, policy RetryPolicy, logger log.Logger) *Embedder {
	if policy.MaxAttempts <= 0 {
		policy = DefaultRetryPolicy()
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Embedder{
		embedder: embedder,
		limiter:  limiter,
		policy:   policy,
		logger:   logger,
	}
}

// Embed converts one text into a vector, retrying transient failures per
// the configured policy.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32

	operation := func() error {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}

		v, err := e.embedOnce(ctx, text)
		if err != nil {
			err = classify(err)
			if !isTransient(err) {
				return backoff.Permanent(err)
			}
			e.logger.Debug("transient embedding failure, backing off", "error", err)
			return err
		}
		vec = v
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.policy.BaseDelay
	b.MaxInterval = e.policy.MaxDelay
	b.RandomizationFactor = e.policy.Jitter

	// MaxAttempts includes the first try; WithMaxRetries counts retries.
	wrapped := backoff.WithContext(
		backoff.WithMaxRetries(b, uint64(e.policy.MaxAttempts-1)), // #nosec G115 -- validated > 0 in New
		ctx,
	)

	if err := backoff.Retry(operation, wrapped); err != nil {
		return nil, err
	}
	return vec, nil
}

// EmbedMany converts texts into vectors, preserving input order. Positions
// that exhaust their retries hold nil in the returned slice, and the error
// joins one *BatchError per failed position. A non-nil error therefore does
// not mean the whole batch failed.
func (e *Embedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	var errs []error

	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return vectors, err
		}
		vec, err := e.Embed(ctx, text)
		if err != nil {
			errs = append(errs, &BatchError{Index: i, Err: err})
			continue
		}
		vectors[i] = vec
	}

	return vectors, errors.Join(errs...)
}

// embedOnce issues one call to the capability.
func (e *Embedder) embedOnce(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText(text, nil)},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return resp.Embeddings[0].Embedding, nil
}

// ZeroVector returns the explicit degraded-result marker: a vector callers
// may store in place of a failed embedding. It always means "embedding
// failed", never "no error".
func ZeroVector(dim int) []float32 {
	return make([]float32, dim)
}

// classify maps an opaque capability error onto the package sentinels so
// callers can branch with errors.Is. Providers do not share typed errors, so
// classification falls back to status-code and message sniffing.
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, ErrEmptyEmbedding) {
		return err
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "quota"):
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	case strings.Contains(msg, "503") || strings.Contains(msg, "unavailable") ||
		strings.Contains(msg, "timeout") || strings.Contains(msg, "connection"):
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	case strings.Contains(msg, "400") || strings.Contains(msg, "invalid"):
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	default:
		// Unknown failures are retried; a bounded policy keeps this safe.
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
}

// isTransient reports whether the classified error is worth retrying.
func isTransient(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrServiceUnavailable)
}
