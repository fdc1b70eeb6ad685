// Package bucketfs presents a bucket as a hierarchical filesystem.
//
// FS owns one retry executor, lister, bulk delete engine and task pool and
// routes every filesystem operation through them. Directories are common
// prefixes or zero-byte marker objects whose key ends in "/".
package bucketfs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/nimbusfs/pkg/bulkdelete"
	"github.com/3leaps/nimbusfs/pkg/errclass"
	"github.com/3leaps/nimbusfs/pkg/listing"
	"github.com/3leaps/nimbusfs/pkg/provider"
	"github.com/3leaps/nimbusfs/pkg/retry"
	"github.com/3leaps/nimbusfs/pkg/taskpool"
)

// Config groups the settings of every component FS wires together.
type Config struct {
	Retry   retry.Config
	Listing listing.Config
	Delete  bulkdelete.Config
	Tasks   taskpool.Config

	// SkipBucketCheck disables the HeadBucket probe in New.
	SkipBucketCheck bool
}

// DefaultConfig returns the defaults of every component.
func DefaultConfig() Config {
	return Config{
		Retry:   retry.DefaultConfig(),
		Listing: listing.Config{MaxKeys: listing.DefaultMaxKeys},
		Delete:  bulkdelete.DefaultConfig(),
		Tasks:   taskpool.DefaultConfig(),
	}
}

// bucketNamer is implemented by clients that know their bucket name.
type bucketNamer interface {
	Bucket() string
}

// FS is a filesystem view of one bucket. It is safe for concurrent use.
type FS struct {
	client  provider.Client
	bucket  string
	cfg     Config
	exec    *retry.Executor
	lister  *listing.Lister
	deleter *bulkdelete.Engine
	pool    *taskpool.Pool
	logger  *zap.Logger
	now     func() time.Time
}

// New wires the components for client and, unless disabled, verifies the
// bucket exists.
func New(ctx context.Context, client provider.Client, cfg Config, logger *zap.Logger, opts ...retry.Option) (*FS, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	bucket := ""
	if bn, ok := client.(bucketNamer); ok {
		bucket = bn.Bucket()
	}
	logger = logger.With(zap.String("bucket", bucket))

	exec := retry.New(cfg.Retry, append([]retry.Option{retry.WithLogger(logger)}, opts...)...)
	fs := &FS{
		client:  client,
		bucket:  bucket,
		cfg:     cfg,
		exec:    exec,
		lister:  listing.New(client, exec, cfg.Listing, logger),
		deleter: bulkdelete.New(client, exec, cfg.Delete, logger),
		pool:    taskpool.New(cfg.Tasks, logger),
		logger:  logger,
		now:     time.Now,
	}

	if !cfg.SkipBucketCheck {
		if err := fs.VerifyBucketExists(ctx); err != nil {
			_ = fs.pool.Shutdown(context.Background())
			return nil, err
		}
	}
	return fs, nil
}

// Bucket returns the bucket name, or "" when the client does not report one.
func (f *FS) Bucket() string { return f.bucket }

// Lister exposes the underlying lister for iteration.
func (f *FS) Lister() *listing.Lister { return f.lister }

// DeleteStats returns the bulk delete counters.
func (f *FS) DeleteStats() bulkdelete.Stats { return f.deleter.Stats() }

// Retryable runs fn under the retry policy. op and path label logs and
// errors.
func (f *FS) Retryable(ctx context.Context, op, path string, fn func(context.Context) error) error {
	return f.exec.Do(ctx, op, path, fn)
}

// List returns the first page under prefix.
func (f *FS) List(ctx context.Context, prefix, delimiter string) (*listing.Page, error) {
	return f.lister.List(ctx, prefix, delimiter, 0)
}

// ContinueList returns the page after cursor.
func (f *FS) ContinueList(ctx context.Context, cursor listing.Cursor) (*listing.Page, error) {
	return f.lister.Continue(ctx, cursor)
}

// RemoveKeys deletes keys with the bulk delete engine.
func (f *FS) RemoveKeys(ctx context.Context, keys []string, checkRoot bool) error {
	return f.deleter.RemoveKeys(ctx, f.bucket, keys, checkRoot)
}

// Submit hands task to the bounded pool, blocking while it is full.
func (f *FS) Submit(ctx context.Context, task taskpool.Task) (*taskpool.Handle, error) {
	return f.pool.Submit(ctx, task)
}

// VerifyBucketExists probes the bucket. A missing bucket is NotFound.
func (f *FS) VerifyBucketExists(ctx context.Context) error {
	err := f.exec.Do(ctx, "verifyBucketExists", f.bucket, f.client.HeadBucket)
	if err != nil && errclass.IsNotFound(err) {
		f.logger.Error("bucket does not exist")
	}
	return err
}

// Close waits for submitted tasks and stops the pool.
func (f *FS) Close(ctx context.Context) error {
	return f.pool.Shutdown(ctx)
}
