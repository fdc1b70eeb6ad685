package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/nimbusfs/internal/config"
	"github.com/3leaps/nimbusfs/internal/observability"
	"github.com/3leaps/nimbusfs/pkg/bucketfs"
	"github.com/3leaps/nimbusfs/pkg/errclass"
	"github.com/3leaps/nimbusfs/pkg/output"
	"github.com/3leaps/nimbusfs/pkg/provider"
	"github.com/3leaps/nimbusfs/pkg/provider/file"
	"github.com/3leaps/nimbusfs/pkg/provider/s3"
)

var errReadOnly = errors.New("readonly mode enabled")

// newClient builds the provider client for uri from the loaded
// configuration. Tests replace it with an in-memory client.
var newClient = func(ctx context.Context, uri *ObjectURI) (provider.Client, error) {
	cfg := currentConfig()
	switch provider.ProviderType(uri.Provider) {
	case provider.ProviderFile:
		return file.New(cfg.FileProvider())
	case provider.ProviderS3:
		s3cfg := cfg.S3Provider()
		if uri.Bucket != "" {
			s3cfg.Bucket = uri.Bucket
		}
		return s3.New(ctx, s3cfg)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, uri.Provider)
	}
}

// currentConfig returns the loaded configuration, falling back to defaults
// when a command runs without PersistentPreRunE (direct calls in tests).
func currentConfig() *config.Config {
	if appConfig != nil {
		return appConfig
	}
	if cfg := config.GetConfig(); cfg != nil {
		return cfg
	}
	cfg, err := config.Load(context.Background())
	if err != nil {
		return &config.Config{Backend: config.BackendS3}
	}
	return cfg
}

// session is an opened filesystem plus the JSONL writer for one command.
type session struct {
	fs      *bucketfs.FS
	client  provider.Client
	out     *output.JSONLWriter
	started time.Time
}

func openSession(cmd *cobra.Command, uri *ObjectURI) (*session, error) {
	ctx := cmd.Context()
	client, err := newClient(ctx, uri)
	if err != nil {
		observability.CLILogger.Error("Failed to create provider", zap.Error(err))
		return nil, exitError(foundry.ExitExternalServiceUnavailable, "Failed to connect to storage provider", err)
	}

	fs, err := bucketfs.New(ctx, client, currentConfig().FS(), observability.CLILogger)
	if err != nil {
		_ = client.Close()
		if errclass.IsNotFound(err) {
			return nil, exitError(foundry.ExitFileNotFound, "Bucket not found", err)
		}
		return nil, exitError(foundry.ExitExternalServiceUnavailable, "Failed to open bucket", err)
	}

	return &session{
		fs:      fs,
		client:  client,
		out:     newWriter(cmd.OutOrStdout(), uri),
		started: time.Now(),
	}, nil
}

func newWriter(w io.Writer, uri *ObjectURI) *output.JSONLWriter {
	return output.NewJSONLWriter(w, output.NewJobID(), uri.Provider)
}

// close shuts the task pool down, then releases the client and writer.
func (s *session) close(ctx context.Context) {
	if err := s.fs.Close(ctx); err != nil {
		observability.CLILogger.Warn("Task pool did not drain", zap.Error(err))
	}
	_ = s.client.Close()
	_ = s.out.Close()
}

// summary writes the closing record of a command.
func (s *session) summary(ctx context.Context, rec *output.SummaryRecord) error {
	rec.Duration = time.Since(s.started)
	return s.out.WriteSummary(ctx, rec)
}

func entryFromStatus(st bucketfs.FileStatus) *output.EntryRecord {
	return &output.EntryRecord{
		Key:          st.Key,
		Size:         st.Size,
		LastModified: st.LastModified,
		IsDir:        st.IsDir,
	}
}

// requireWritable refuses action when readonly mode is on.
func requireWritable(action string) error {
	if IsReadOnly() {
		return exitError(foundry.ExitInvalidArgument, "readonly mode enabled: refusing "+action,
			fmt.Errorf("%w: disable --readonly or unset %s_READONLY", errReadOnly, config.EnvPrefix))
	}
	return nil
}

// failure maps a filesystem error to an exit error, picking the exit code
// from the error kind.
func failure(message string, err error) error {
	switch errclass.KindOf(err) {
	case errclass.NotFound:
		return exitError(foundry.ExitFileNotFound, message, err)
	case errclass.Conflict, errclass.InvalidRequest:
		return exitError(foundry.ExitInvalidArgument, message, err)
	default:
		return exitError(foundry.ExitExternalServiceUnavailable, message, err)
	}
}
