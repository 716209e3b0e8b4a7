package llm

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/truenorth-finance/truenorth/internal/backoff"
	"github.com/truenorth-finance/truenorth/internal/model"
)

const (
	// DefaultBatchSize is the chunk size for residual classification.
	DefaultBatchSize = 50
	// DefaultChunkDelay spaces out consecutive chunk requests.
	DefaultChunkDelay = time.Second
	// DefaultMaxAttempts is the per-chunk call budget.
	DefaultMaxAttempts = 3
	// DefaultRateLimitBase is multiplied by 2^attempt after a throttled call.
	DefaultRateLimitBase = 2 * time.Second
)

// DefaultPolicy waits base*2^attempt after a rate limit (or the provider's
// Retry-After when that is longer) and retries other failures immediately.
func DefaultPolicy(maxAttempts int, base time.Duration) backoff.Policy {
	return backoff.Policy{
		MaxAttempts: maxAttempts,
		Backoff: func(attempt int, err error) time.Duration {
			if !IsRateLimit(err) {
				return 0
			}
			return max(backoff.Exponential(base, attempt), retryAfter(err))
		},
		Retryable: backoff.NotCanceled,
	}
}

// Classifier turns uncategorized transactions into AnalysisResults by asking
// a Provider, one chunk at a time.
type Classifier struct {
	provider   Provider
	policy     backoff.Policy
	batchSize  int
	chunkDelay time.Duration
	sleep      backoff.SleepFunc
	log        zerolog.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithPolicy replaces the per-chunk retry policy.
func WithPolicy(p backoff.Policy) Option {
	return func(c *Classifier) { c.policy = p }
}

// WithBatchSize sets the chunk size used when AnalyzeBatch is given none.
func WithBatchSize(n int) Option {
	return func(c *Classifier) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithChunkDelay sets the pause between chunks.
func WithChunkDelay(d time.Duration) Option {
	return func(c *Classifier) { c.chunkDelay = d }
}

// WithSleep replaces the clock used for chunk pacing and retry waits.
func WithSleep(fn backoff.SleepFunc) Option {
	return func(c *Classifier) { c.sleep = fn }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Classifier) { c.log = l }
}

// NewClassifier creates a Classifier with default pacing and retry policy.
func NewClassifier(p Provider, opts ...Option) *Classifier {
	c := &Classifier{
		provider:   p,
		policy:     DefaultPolicy(DefaultMaxAttempts, DefaultRateLimitBase),
		batchSize:  DefaultBatchSize,
		chunkDelay: DefaultChunkDelay,
		sleep:      backoff.SleepContext,
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.policy.Sleep == nil {
		c.policy.Sleep = c.sleep
	}
	return c
}

// AnalyzeChunk classifies up to one batch of transactions in a single
// request. It never fails: when the retry budget runs out every transaction
// gets an Uncategorized result whose reasoning carries the last error.
func (c *Classifier) AnalyzeChunk(ctx context.Context, chunk []model.Transaction) map[string]model.AnalysisResult {
	results := make(map[string]model.AnalysisResult, len(chunk))
	if len(chunk) == 0 {
		return results
	}

	prompt := BuildPrompt(chunk)
	policy := c.policy
	policy.OnRetry = func(attempt int, err error, wait time.Duration) {
		c.log.Warn().Err(err).
			Str("provider", c.provider.Name()).
			Int("attempt", attempt).
			Dur("wait", wait).
			Bool("rate_limited", IsRateLimit(err)).
			Msg("classification attempt failed, retrying")
	}

	err := policy.Do(ctx, func(int) error {
		body, err := c.provider.Complete(ctx, prompt)
		if err != nil {
			return err
		}
		parsed, err := ParseResponse(body, chunk)
		if err != nil {
			return err
		}
		results = parsed
		return nil
	})
	if err != nil {
		c.log.Error().Err(err).Int("transactions", len(chunk)).Msg("classification failed, using fallback")
		for _, t := range chunk {
			if _, ok := results[t.ID]; !ok {
				results[t.ID] = fallback("Error: " + err.Error())
			}
		}
	}
	return results
}

// AnalyzeBatch classifies txns in sequential chunks of batchSize (the
// classifier default when batchSize <= 0), pausing between chunks.
// onProgress, if set, runs after every chunk. The only error is a cancelled
// ctx noticed between chunks; results gathered so far are returned with it.
func (c *Classifier) AnalyzeBatch(ctx context.Context, txns []model.Transaction, batchSize int, onProgress func(completed, total int)) (map[string]model.AnalysisResult, error) {
	if batchSize <= 0 {
		batchSize = c.batchSize
	}
	total := len(txns)
	results := make(map[string]model.AnalysisResult, total)

	for start := 0; start < total; start += batchSize {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		end := min(start+batchSize, total)

		for txnID, r := range c.AnalyzeChunk(ctx, txns[start:end]) {
			results[txnID] = r
		}
		c.log.Debug().Int("completed", end).Int("total", total).Msg("chunk classified")
		if onProgress != nil {
			onProgress(end, total)
		}

		if end < total {
			if err := c.sleep(ctx, c.chunkDelay); err != nil {
				return results, err
			}
		}
	}
	return results, nil
}

// AnalyzeTransaction classifies a single transaction.
func (c *Classifier) AnalyzeTransaction(ctx context.Context, txn model.Transaction) model.AnalysisResult {
	if r, ok := c.AnalyzeChunk(ctx, []model.Transaction{txn})[txn.ID]; ok {
		return r
	}
	return fallback("Error")
}
