package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/nimbusfs/internal/observability"
	"github.com/3leaps/nimbusfs/pkg/output"
)

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <uri>...",
	Short: "Create directories",
	Long: `Create a directory marker for each path.

Parents need no markers of their own, but a file anywhere on the path is a
conflict.

Examples:
  nimbusfs mkdir s3://bucket/staging/2024/`,
	Args: cobra.MinimumNArgs(1),
	RunE: runMkdir,
}

func init() {
	rootCmd.AddCommand(mkdirCmd)
}

func runMkdir(cmd *cobra.Command, args []string) error {
	if err := requireWritable("mkdir"); err != nil {
		return err
	}
	ctx := cmd.Context()
	uris, err := parseSameBucket(args)
	if err != nil {
		return err
	}

	s, err := openSession(cmd, uris[0])
	if err != nil {
		return err
	}
	defer s.close(ctx)

	sum := &output.SummaryRecord{Command: "mkdir"}
	var firstErr error
	for _, u := range uris {
		if err := s.fs.Mkdirs(ctx, u.Key); err != nil {
			observability.CLILogger.Error("mkdir failed", zap.String("key", u.Key), zap.Error(err))
			if werr := s.out.WriteError(ctx, output.ErrorRecordFrom(u.Key, err)); werr != nil {
				return werr
			}
			sum.Errors++
			if firstErr == nil {
				firstErr = failure("Cannot create "+u.String(), err)
			}
			continue
		}
		if err := s.out.WriteEntry(ctx, &output.EntryRecord{Key: trimDirKey(u.Key), IsDir: true}); err != nil {
			return err
		}
		sum.Entries++
	}
	if err := s.summary(ctx, sum); err != nil {
		return err
	}
	return firstErr
}
