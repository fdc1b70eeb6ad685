package cmd

import (
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/nimbusfs/internal/observability"
	"github.com/3leaps/nimbusfs/pkg/output"
)

var purgeCmd = &cobra.Command{
	Use:   "purge-uploads <uri>",
	Short: "Abort stale multipart uploads",
	Long: `Abort multipart uploads started longer ago than --older-than.

Without --older-than the multipart.purge_age setting applies. A principal
without permission to list uploads is logged and skipped, so the command
succeeds on read-only buckets.

Examples:
  nimbusfs purge-uploads s3://bucket/
  nimbusfs purge-uploads s3://bucket/ --older-than 2h`,
	Args: cobra.ExactArgs(1),
	RunE: runPurge,
}

var purgeOlderThan time.Duration

func init() {
	rootCmd.AddCommand(purgeCmd)

	purgeCmd.Flags().DurationVar(&purgeOlderThan, "older-than", 0, "Minimum upload age (default: multipart.purge_age)")
}

func runPurge(cmd *cobra.Command, args []string) error {
	if err := requireWritable("purge-uploads"); err != nil {
		return err
	}
	ctx := cmd.Context()
	parsed, err := ParseURI(args[0])
	if err != nil {
		observability.CLILogger.Error("Invalid URI", zap.String("uri", args[0]), zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Invalid URI", err)
	}

	age := purgeOlderThan
	if !cmd.Flags().Changed("older-than") {
		age = currentConfig().Multipart.PurgeAge
	}

	s, err := openSession(cmd, parsed)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	sum := &output.SummaryRecord{Command: "purge-uploads"}
	n, err := s.fs.PurgeMultipartUploads(ctx, age)
	sum.Aborted = int64(n)
	if err != nil {
		observability.CLILogger.Error("Purge failed", zap.Error(err))
		if werr := s.out.WriteError(ctx, output.ErrorRecordFrom(parsed.Key, err)); werr != nil {
			return werr
		}
		sum.Errors++
		_ = s.summary(ctx, sum)
		return failure("Cannot purge multipart uploads", err)
	}
	observability.CLILogger.Info("Purged multipart uploads", zap.Int("aborted", n), zap.Duration("older_than", age))
	return s.summary(ctx, sum)
}
