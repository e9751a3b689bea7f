// Package workqueue provides bounded fan-out for per-rule and per-definition
// execution, with input-order result reassembly and busy backpressure.
package workqueue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/reconlab/recon-engine/pkg/apperrors"
)

// DefaultSize is the per-request parallelism when none is configured.
const DefaultSize = 4

// highWaterFactor bounds the accepted backlog: size * highWaterFactor items
// may be pending before callers receive busy errors.
const highWaterFactor = 4

// Pool runs batches of work items with bounded parallelism. One pool is
// shared across requests; its high-water mark produces backpressure.
type Pool struct {
	size      int
	highWater int
	pending   atomic.Int64
	logger    *zap.Logger
}

// NewPool creates a pool. size < 1 falls back to DefaultSize.
func NewPool(size int, logger *zap.Logger) *Pool {
	if size < 1 {
		size = DefaultSize
	}
	return &Pool{
		size:      size,
		highWater: size * highWaterFactor,
		logger:    logger.Named("workqueue"),
	}
}

// Item is one unit of work.
type Item[T any] struct {
	ID      string
	Execute func(ctx context.Context) (T, error)
}

// Result pairs an item's output with its error. Per-item failures never abort
// the batch.
type Result[T any] struct {
	ID    string
	Value T
	Err   error
}

// Run executes all items with at most pool.size in flight and returns results
// in input order. It fails fast with a busy error when accepting the batch
// would exceed the pool's high-water mark.
func Run[T any](ctx context.Context, pool *Pool, items []Item[T]) ([]Result[T], error) {
	if len(items) == 0 {
		return nil, nil
	}

	if pending := pool.pending.Add(int64(len(items))); pending > int64(pool.highWater) {
		pool.pending.Add(-int64(len(items)))
		pool.logger.Warn("rejecting batch over high-water mark",
			zap.Int("batch", len(items)),
			zap.Int64("pending", pending-int64(len(items))))
		return nil, fmt.Errorf("work queue over capacity: %w", apperrors.ErrBusy)
	}
	defer pool.pending.Add(-int64(len(items)))

	results := make([]Result[T], len(items))
	sem := make(chan struct{}, pool.size)

	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(i int, item Item[T]) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[i] = Result[T]{ID: item.ID, Err: ctx.Err()}
				return
			}

			value, err := item.Execute(ctx)
			results[i] = Result[T]{ID: item.ID, Value: value, Err: err}
		}(i, item)
	}
	wg.Wait()

	return results, nil
}
