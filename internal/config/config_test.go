package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/nimbusfs/pkg/bulkdelete"
	"github.com/3leaps/nimbusfs/pkg/taskpool"
)

// isolate points the user config dir at an empty temp dir so a developer's
// own nimbusfs.yaml never leaks into a test.
func isolate(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("HOME", dir)
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, BackendS3, cfg.Backend)
	assert.False(t, cfg.FSBucket)
	assert.Equal(t, 180*time.Second, cfg.Retry.MaxDuration)
	assert.Equal(t, 50*time.Millisecond, cfg.Retry.MinDelay)
	assert.Equal(t, 30*time.Second, cfg.Retry.MaxDelay)
	assert.True(t, cfg.Delete.MultiObjectEnabled)
	assert.Equal(t, bulkdelete.DefaultThreshold, cfg.Delete.Threshold)
	assert.Equal(t, bulkdelete.DefaultMaxBatch, cfg.Delete.MaxBatch)
	assert.Equal(t, taskpool.DefaultActiveLimit, cfg.Tasks.ActiveLimit)
	assert.Equal(t, taskpool.DefaultQueueLimit, cfg.Tasks.QueuedLimit)
	assert.Equal(t, time.Minute, cfg.Tasks.KeepAlive)
	assert.Equal(t, 24*time.Hour, cfg.Multipart.PurgeAge)
	assert.Equal(t, "info", cfg.Logging.Level)

	assert.Same(t, cfg, GetConfig())
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("NIMBUSFS_RETRY_MAX_DURATION", "2s")
	t.Setenv("NIMBUSFS_LOGGING_LEVEL", "debug")
	t.Setenv("NIMBUSFS_DELETE_MULTI_OBJECT_ENABLED", "false")
	t.Setenv("NIMBUSFS_S3_BUCKET", "env-bucket")

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.Retry.MaxDuration)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.False(t, cfg.Delete.MultiObjectEnabled)
	assert.Equal(t, "env-bucket", cfg.S3.Bucket)
}

func TestLoad_RuntimeOverridesBeatEnv(t *testing.T) {
	isolate(t)
	t.Setenv("NIMBUSFS_S3_BUCKET", "env-bucket")

	cfg, err := Load(context.Background(), map[string]any{
		"s3":    map[string]any{"bucket": "flag-bucket"},
		"tasks": map[string]any{"active_limit": 16},
	})
	require.NoError(t, err)

	assert.Equal(t, "flag-bucket", cfg.S3.Bucket)
	assert.Equal(t, 16, cfg.Tasks.ActiveLimit)
}

func TestLoadFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "custom.yaml")
	body := []byte(`backend: file
file:
  root: /srv/objects
retry:
  min_delay: 10ms
  max_delay: 1s
listing:
  max_keys: 250
`)
	require.NoError(t, os.WriteFile(path, body, 0o600))

	cfg, err := LoadFile(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, BackendFile, cfg.Backend)
	assert.Equal(t, "/srv/objects", cfg.FileProvider().BaseDir)
	assert.Equal(t, 10*time.Millisecond, cfg.Retry.MinDelay)
	assert.Equal(t, time.Second, cfg.Retry.MaxDelay)
	assert.Equal(t, 250, cfg.FS().Listing.MaxKeys)
	assert.Equal(t, 250, cfg.S3Provider().MaxKeys)
}

func TestLoadFile_Missing(t *testing.T) {
	isolate(t)
	_, err := LoadFile(context.Background(), filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoad_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Load(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		override map[string]any
		wantErr  string
	}{
		{"unknown backend", map[string]any{"backend": "gcs"}, "backend"},
		{"min above max", map[string]any{"retry": map[string]any{"min_delay": "5s", "max_delay": "1s"}}, "exceeds retry.max_delay"},
		{"batch too large", map[string]any{"delete": map[string]any{"max_batch": 5000}}, "delete.max_batch"},
		{"page too large", map[string]any{"listing": map[string]any{"max_keys": 5000}}, "listing.max_keys"},
		{"negative tasks", map[string]any{"tasks": map[string]any{"queued_limit": -1}}, "task limits"},
		{"bad level", map[string]any{"logging": map[string]any{"level": "loud"}}, "logging.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			_, err := Load(context.Background(), tt.override)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFS_MapsSections(t *testing.T) {
	isolate(t)
	cfg, err := Load(context.Background(), map[string]any{
		"fs_bucket": true,
		"retry":     map[string]any{"rate_limit": 25.0},
		"delete":    map[string]any{"threshold": 7},
		"tasks":     map[string]any{"keep_alive": "5s"},
	})
	require.NoError(t, err)

	fs := cfg.FS()
	assert.True(t, fs.Listing.FSBucket)
	assert.InDelta(t, 25.0, fs.Retry.RateLimit, 0.001)
	assert.Equal(t, 7, fs.Delete.Threshold)
	assert.True(t, fs.Delete.Enabled)
	assert.Equal(t, 5*time.Second, fs.Tasks.KeepAlive)
	assert.False(t, fs.SkipBucketCheck)
}

func TestEnvSpecs(t *testing.T) {
	isolate(t)
	_, err := Load(context.Background())
	require.NoError(t, err)

	specs := EnvSpecs()
	require.NotEmpty(t, specs)

	byPath := make(map[string]string, len(specs))
	for _, s := range specs {
		byPath[s.Path] = s.Name
	}
	assert.Equal(t, "NIMBUSFS_RETRY_MAX_DURATION", byPath["retry.max_duration"])
	assert.Equal(t, "NIMBUSFS_DELETE_MULTI_OBJECT_ENABLED", byPath["delete.multi_object_enabled"])
	assert.Equal(t, "NIMBUSFS_S3_FORCE_PATH_STYLE", byPath["s3.force_path_style"])
}
