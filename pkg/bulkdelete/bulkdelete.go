// Package bulkdelete removes sets of keys with as few round trips as the
// store allows, degrading to per-key deletes when a batch fails.
package bulkdelete

import (
	"context"
	"errors"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/3leaps/nimbusfs/pkg/errclass"
	"github.com/3leaps/nimbusfs/pkg/provider"
	"github.com/3leaps/nimbusfs/pkg/retry"
)

const (
	// DefaultThreshold is the smallest key count sent as a batch.
	DefaultThreshold = 3

	// DefaultMaxBatch is the largest batch the store accepts.
	DefaultMaxBatch = 1000
)

// Client is the remote capability the engine needs.
type Client interface {
	provider.ObjectDeleter
	provider.BatchDeleter
}

// Config configures an Engine.
type Config struct {
	// Enabled turns on multi-object delete. When false every key is
	// deleted individually.
	Enabled bool

	// Threshold is the minimum key count for a batch request.
	Threshold int

	// MaxBatch is the maximum number of keys per batch request.
	MaxBatch int
}

// DefaultConfig returns batching enabled with store limits.
func DefaultConfig() Config {
	return Config{Enabled: true, Threshold: DefaultThreshold, MaxBatch: DefaultMaxBatch}
}

// Stats counts engine activity.
type Stats struct {
	SingleDeletes  int64
	BatchRequests  int64
	BatchFallbacks int64
	RepairedKeys   int64
}

// Engine deletes keys from one bucket.
type Engine struct {
	client Client
	exec   *retry.Executor
	cfg    Config
	logger *zap.Logger

	singleDeletes  atomic.Int64
	batchRequests  atomic.Int64
	batchFallbacks atomic.Int64
	repairedKeys   atomic.Int64
}

// New creates an Engine. Non-positive Threshold and MaxBatch take their
// defaults.
func New(client Client, exec *retry.Executor, cfg Config, logger *zap.Logger) *Engine {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = DefaultMaxBatch
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{client: client, exec: exec, cfg: cfg, logger: logger}
}

// Stats returns a snapshot of the counters.
func (e *Engine) Stats() Stats {
	return Stats{
		SingleDeletes:  e.singleDeletes.Load(),
		BatchRequests:  e.batchRequests.Load(),
		BatchFallbacks: e.batchFallbacks.Load(),
		RepairedKeys:   e.repairedKeys.Load(),
	}
}

// CheckNotRoot rejects the bucket root as a deletion target.
func CheckNotRoot(bucket, key string) error {
	if key == "" || key == "/" {
		return errclass.NewInvalidRequest("delete", key, "cannot delete root of bucket "+bucket)
	}
	return nil
}

// DeleteObject deletes one key through the retry executor.
func (e *Engine) DeleteObject(ctx context.Context, bucket, key string) error {
	if err := CheckNotRoot(bucket, key); err != nil {
		return err
	}
	return e.deleteOne(ctx, key)
}

func (e *Engine) deleteOne(ctx context.Context, key string) error {
	e.singleDeletes.Add(1)
	return e.exec.Do(ctx, "deleteObject", key, func(ctx context.Context) error {
		return e.client.DeleteObject(ctx, key)
	})
}

// RemoveKeys deletes every key.
//
// With checkRoot, all keys are checked before any remote call and the root
// is rejected with InvalidRequest. Small sets are deleted one by one; larger
// sets go out in quiet batches of at most MaxBatch keys, processed in input
// order. The first unrecoverable failure stops the operation.
func (e *Engine) RemoveKeys(ctx context.Context, bucket string, keys []string, checkRoot bool) error {
	if len(keys) == 0 {
		return nil
	}

	if checkRoot {
		for _, k := range keys {
			if err := CheckNotRoot(bucket, k); err != nil {
				return err
			}
		}
	}

	if !e.cfg.Enabled || len(keys) < e.cfg.Threshold {
		return e.deleteEach(ctx, keys)
	}

	// A tail shorter than Threshold still goes out as a batch.
	for start := 0; start < len(keys); start += e.cfg.MaxBatch {
		end := min(start+e.cfg.MaxBatch, len(keys))
		if err := e.deleteBatch(ctx, keys[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) deleteEach(ctx context.Context, keys []string) error {
	for _, k := range keys {
		if err := e.deleteOne(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

// deleteBatch sends one quiet batch. If the request fails as a whole every
// key is deleted individually; per-key failures are retried individually.
func (e *Engine) deleteBatch(ctx context.Context, batch []string) error {
	e.batchRequests.Add(1)
	res, err := e.client.DeleteObjects(ctx, batch, true)
	if err != nil {
		cerr := errclass.Classify("deleteObjects", batch[0], err)
		var ce *errclass.Error
		fields := []zap.Field{zap.Int("keys", len(batch)), zap.Error(cerr)}
		if errors.As(cerr, &ce) {
			fields = append(fields,
				zap.String("request_id", ce.RequestID),
				zap.String("error_code", ce.Code),
				zap.String("error_message", ce.Message))
		}
		e.logger.Warn("batch delete failed, deleting one by one", fields...)
		e.batchFallbacks.Add(1)
		return e.deleteEach(ctx, batch)
	}

	if res == nil || len(res.Errors) == 0 {
		return nil
	}

	e.logger.Warn("batch delete partially failed, retrying failed keys one by one",
		zap.Int("keys", len(batch)),
		zap.Int("failed", len(res.Errors)))
	for _, fe := range res.Errors {
		e.repairedKeys.Add(1)
		if err := e.deleteOne(ctx, fe.Key); err != nil {
			return err
		}
	}
	return nil
}
