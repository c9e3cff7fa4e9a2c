package remote

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/Zereker/vectorstore/pkg/log"
	"github.com/Zereker/vectorstore/pkg/vector"
)

// Executor runs backend calls with a per-request timeout, a bound on
// parallel requests and exponential retry of transient failures.
type Executor struct {
	cfg    Config
	sem    *semaphore.Weighted
	logger *slog.Logger
}

// NewExecutor expects a validated cfg.
func NewExecutor(backend string, cfg Config) *Executor {
	return &Executor{
		cfg:    cfg,
		sem:    semaphore.NewWeighted(int64(cfg.MaxParallel)),
		logger: log.Logger(backend),
	}
}

// cappedBackOff clamps the jittered delay, which ExponentialBackOff only
// bounds before randomization.
type cappedBackOff struct {
	backoff.BackOff
	max time.Duration
}

func (c cappedBackOff) NextBackOff() time.Duration {
	next := c.BackOff.NextBackOff()
	if next > c.max {
		return c.max
	}
	return next
}

func (e *Executor) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.cfg.Retry.InitialDelay.Duration
	b.MaxInterval = e.cfg.Retry.MaxDelay.Duration
	b.Multiplier = e.cfg.Retry.Multiplier
	return cappedBackOff{BackOff: b, max: e.cfg.Retry.MaxDelay.Duration}
}

// Call runs fn under e. Errors classified retryable by vector.IsRetryable are
// retried up to the configured count; all others stop immediately.
func Call[T any](ctx context.Context, e *Executor, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	attempt := func() (T, error) {
		var zero T
		if err := e.sem.Acquire(ctx, 1); err != nil {
			return zero, backoff.Permanent(err)
		}
		defer e.sem.Release(1)

		callCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout.Duration)
		defer cancel()

		out, err := fn(callCtx)
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return zero, backoff.Permanent(ctx.Err())
		}
		if errors.Is(err, context.DeadlineExceeded) && !vector.IsRetryable(err) {
			err = vector.Wrap(vector.KindTimeout, "", errors.WithMessagef(err, "%s exceeded %s", op, e.cfg.Timeout.Duration))
		}
		if !vector.IsRetryable(err) {
			return zero, backoff.Permanent(err)
		}
		return zero, err
	}

	out, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(e.newBackOff()),
		backoff.WithMaxTries(uint(e.cfg.Retry.MaxRetries)+1),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			e.logger.Warn("retrying", "op", op, "error", err, "backoff", next)
		}),
	)
	// the last attempt can still come back wrapped
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}
	return out, err
}

// Do is Call for operations without a result.
func (e *Executor) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	_, err := Call(ctx, e, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Batches splits docs by the batch size and applies them in parallel. It
// returns the ids of every batch that was applied, in input order, together
// with the first error.
func (e *Executor) Batches(ctx context.Context, op string, docs []vector.Document, apply func(ctx context.Context, batch []vector.Document) error) ([]string, error) {
	size := e.cfg.BatchSize
	var batches [][]vector.Document
	for start := 0; start < len(docs); start += size {
		batches = append(batches, docs[start:min(start+size, len(docs))])
	}

	var mu sync.Mutex
	applied := make([]bool, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.MaxParallel)
	for i, batch := range batches {
		g.Go(func() error {
			if err := e.Do(gctx, op, func(ctx context.Context) error { return apply(ctx, batch) }); err != nil {
				return err
			}
			mu.Lock()
			applied[i] = true
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()

	ids := make([]string, 0, len(docs))
	for i, batch := range batches {
		if !applied[i] {
			continue
		}
		for _, doc := range batch {
			ids = append(ids, doc.ID)
		}
	}
	if err != nil {
		e.logger.Error("batch apply failed", "op", op, "applied", len(ids), "total", len(docs), "error", err)
	}
	return ids, err
}
