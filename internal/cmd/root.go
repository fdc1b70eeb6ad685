// Package cmd implements the nimbusfs command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/3leaps/nimbusfs/internal/config"
	"github.com/3leaps/nimbusfs/internal/observability"
)

const binaryName = "nimbusfs"

var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "unknown",
	BuildDate: "unknown",
}

var (
	cfgFile      string
	verbose      bool
	readOnly     bool
	flagRegion   string
	flagProfile  string
	flagEndpoint string
	flagRoot     string
	flagFSBucket bool

	appConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   binaryName,
	Short: "Filesystem operations over object storage buckets",
	Long: `nimbusfs treats an object storage bucket as a filesystem: list, stat,
mkdir, delete (recursive or by glob), upload, and purge stale multipart uploads.
Transient failures are retried with bounded exponential backoff, large deletes
go out as multi-object batches, and parallel uploads run on a bounded pool.

Results are written to stdout as JSONL records; diagnostics go to stderr.

Examples:
  nimbusfs ls s3://bucket/logs/
  nimbusfs rm -r s3://bucket/tmp/
  nimbusfs rm 's3://bucket/logs/**/*.gz' --exclude 'logs/keep/**'
  nimbusfs --root ./data ls file://reports/`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initConfig,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (default: ./nimbusfs.yaml or <user config dir>/nimbusfs/nimbusfs.yaml)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	pf.BoolVar(&readOnly, "readonly", false, "Refuse every provider-side mutation")
	pf.StringVar(&flagRegion, "region", "", "AWS region")
	pf.StringVar(&flagProfile, "profile", "", "AWS profile")
	pf.StringVar(&flagEndpoint, "endpoint", "", "Custom S3 endpoint (enables path-style addressing)")
	pf.StringVar(&flagRoot, "root", "", "Base directory for file:// URIs")
	pf.BoolVar(&flagFSBucket, "fs-bucket", false, "Bucket has native directory support")

	_ = viper.BindPFlag("readonly", pf.Lookup("readonly"))
	_ = viper.BindEnv("readonly", config.EnvPrefix+"_READONLY")

	rootCmd.Long += "\n\nSafety:\n- --readonly (or " + config.EnvPrefix + "_READONLY=1) disables mkdir, rm, put, purge-uploads and write-probe preflight."
}

// SetVersionInfo records build metadata for the version command.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// IsReadOnly reports whether provider-side mutations are disabled.
func IsReadOnly() bool {
	return readOnly || viper.GetBool("readonly")
}

func initConfig(cmd *cobra.Command, _ []string) error {
	observability.InitCLILogger(binaryName, verbose)

	cfg, err := config.LoadFile(cmd.Context(), cfgFile, flagOverrides(cmd))
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	appConfig = cfg

	if !verbose {
		if err := observability.SetLevel(binaryName, cfg.Logging.Level); err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid logging level", err)
		}
	}
	observability.CLILogger.Debug("Configuration loaded",
		zap.String("backend", cfg.Backend),
		zap.Bool("readonly", IsReadOnly()))
	return nil
}

// flagOverrides maps explicitly set flags onto config keys so they win over
// the config file and environment.
func flagOverrides(cmd *cobra.Command) map[string]any {
	flags := cmd.Flags()
	out := map[string]any{}
	s3 := map[string]any{}
	if flags.Changed("region") {
		s3["region"] = flagRegion
	}
	if flags.Changed("profile") {
		s3["profile"] = flagProfile
	}
	if flags.Changed("endpoint") {
		s3["endpoint"] = flagEndpoint
		// S3-compatible services (moto, MinIO, etc.) need path-style URLs.
		s3["force_path_style"] = true
	}
	if len(s3) > 0 {
		out["s3"] = s3
	}
	if flags.Changed("root") {
		out["file"] = map[string]any{"root": flagRoot}
	}
	if flags.Changed("fs-bucket") {
		out["fs_bucket"] = flagFSBucket
	}
	if verbose {
		out["logging"] = map[string]any{"level": "debug"}
	}
	return out
}

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s: %v (exit code %d)", e.Message, e.Err, e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// exitError creates an error that will cause the CLI to exit with the given code.
func exitError(code int, message string, err error) error {
	return &ExitError{Code: code, Message: message, Err: err}
}

// exitCode maps err to the process exit status.
func exitCode(err error) int {
	var ee *ExitError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &ee):
		return ee.Code
	case errors.Is(err, context.Canceled):
		return foundry.ExitSignalInt
	default:
		return 1
	}
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		observability.CLILogger.Error("Command failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	_ = observability.CLILogger.Sync()
	return exitCode(err)
}
