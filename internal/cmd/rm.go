package cmd

import (
	"context"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/nimbusfs/internal/observability"
	"github.com/3leaps/nimbusfs/pkg/errclass"
	"github.com/3leaps/nimbusfs/pkg/match"
	"github.com/3leaps/nimbusfs/pkg/output"
)

var rmCmd = &cobra.Command{
	Use:   "rm <uri>",
	Short: "Delete a file, a directory, or keys matching a glob",
	Long: `Delete a file or directory.

A non-empty directory needs --recursive. Deleting the bucket root only ever
succeeds when the root is already empty; a recursive root delete is refused.

A glob URI (or --include) deletes the matching keys below the URI's prefix.
Large deletes go out as multi-object batches.

Examples:
  nimbusfs rm s3://bucket/tmp/report.csv
  nimbusfs rm -r s3://bucket/tmp/
  nimbusfs rm 's3://bucket/logs/**/*.gz' --exclude 'logs/keep/**'
  nimbusfs rm s3://bucket/logs/ --include '**/*.tmp'`,
	Args: cobra.ExactArgs(1),
	RunE: runRm,
}

var (
	rmRecursive bool
	rmIncludes  []string
	rmExcludes  []string
	rmHidden    bool
)

func init() {
	rootCmd.AddCommand(rmCmd)

	rmCmd.Flags().BoolVarP(&rmRecursive, "recursive", "r", false, "Delete a directory and everything below it")
	rmCmd.Flags().StringArrayVar(&rmIncludes, "include", nil, "Glob of keys to delete (relative to the bucket)")
	rmCmd.Flags().StringArrayVar(&rmExcludes, "exclude", nil, "Glob of keys to keep")
	rmCmd.Flags().BoolVar(&rmHidden, "hidden", false, "Also match keys with a segment starting with '.'")
}

func runRm(cmd *cobra.Command, args []string) error {
	if err := requireWritable("rm"); err != nil {
		return err
	}
	ctx := cmd.Context()
	parsed, err := ParseURI(args[0])
	if err != nil {
		observability.CLILogger.Error("Invalid URI", zap.String("uri", args[0]), zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Invalid URI", err)
	}

	includes := rmIncludes
	if parsed.IsPattern() {
		includes = append([]string{parsed.Pattern}, includes...)
	}

	var matcher *match.Matcher
	if len(includes) > 0 {
		matcher, err = match.New(match.Config{Includes: includes, Excludes: rmExcludes, IncludeHidden: rmHidden})
		if err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid match pattern", err)
		}
	} else if len(rmExcludes) > 0 {
		return exitError(foundry.ExitInvalidArgument, "--exclude needs a glob URI or --include", match.ErrNoIncludes)
	}

	s, err := openSession(cmd, parsed)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	sum := &output.SummaryRecord{Command: "rm"}
	if matcher != nil {
		n, err := s.fs.DeleteMatching(ctx, parsed.Key, matcher)
		sum.Deleted = int64(n)
		if err != nil {
			return s.rmFailed(ctx, sum, parsed, err)
		}
		s.logDeleteStats()
		return s.summary(ctx, sum)
	}

	deleted, err := s.fs.Delete(ctx, parsed.Key, rmRecursive)
	if err != nil {
		return s.rmFailed(ctx, sum, parsed, err)
	}
	if !deleted {
		notFound := errclass.New(errclass.NotFound, "delete", parsed.Key, "no such file or directory")
		if isRoot(parsed.Key) {
			notFound = errclass.New(errclass.InvalidRequest, "delete", parsed.Key, "refusing to delete the bucket root")
		}
		return s.rmFailed(ctx, sum, parsed, notFound)
	}
	sum.Deleted = 1
	s.logDeleteStats()
	return s.summary(ctx, sum)
}

func (s *session) rmFailed(ctx context.Context, sum *output.SummaryRecord, u *ObjectURI, err error) error {
	observability.CLILogger.Error("rm failed", zap.String("key", u.Key), zap.Error(err))
	if werr := s.out.WriteError(ctx, output.ErrorRecordFrom(u.Key, err)); werr != nil {
		return werr
	}
	sum.Errors++
	_ = s.summary(ctx, sum)
	return failure("Cannot delete "+u.String(), err)
}

func (s *session) logDeleteStats() {
	st := s.fs.DeleteStats()
	observability.CLILogger.Debug("Delete stats",
		zap.Int64("single_deletes", st.SingleDeletes),
		zap.Int64("batch_requests", st.BatchRequests),
		zap.Int64("batch_fallbacks", st.BatchFallbacks),
		zap.Int64("repaired_keys", st.RepairedKeys))
}

func isRoot(key string) bool {
	return strings.Trim(key, "/") == ""
}

func trimDirKey(key string) string {
	return strings.Trim(key, "/")
}
