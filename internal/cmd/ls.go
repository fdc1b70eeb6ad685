package cmd

import (
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/nimbusfs/internal/observability"
	"github.com/3leaps/nimbusfs/pkg/listing"
	"github.com/3leaps/nimbusfs/pkg/match"
	"github.com/3leaps/nimbusfs/pkg/output"
)

var lsCmd = &cobra.Command{
	Use:   "ls <uri>",
	Short: "List a file or directory",
	Long: `List the entries under a directory, or the file itself.

A glob URI lists every key under the pattern's static prefix that the
pattern selects.

Examples:
  nimbusfs ls s3://bucket/logs/
  nimbusfs ls -R s3://bucket/logs/
  nimbusfs ls 's3://bucket/logs/**/*.gz' --exclude 'logs/archive/**'`,
	Args: cobra.ExactArgs(1),
	RunE: runLs,
}

var (
	lsRecursive bool
	lsExcludes  []string
	lsHidden    bool
)

func init() {
	rootCmd.AddCommand(lsCmd)

	lsCmd.Flags().BoolVarP(&lsRecursive, "recursive", "R", false, "List every key below the directory")
	lsCmd.Flags().StringArrayVar(&lsExcludes, "exclude", nil, "Glob of keys to skip (pattern URIs only)")
	lsCmd.Flags().BoolVar(&lsHidden, "hidden", false, "Include keys with a segment starting with '.'")
}

func runLs(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	parsed, err := ParseURI(args[0])
	if err != nil {
		observability.CLILogger.Error("Invalid URI", zap.String("uri", args[0]), zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Invalid URI", err)
	}

	var matcher *match.Matcher
	if parsed.IsPattern() {
		matcher, err = match.New(match.Config{
			Includes:      []string{parsed.Pattern},
			Excludes:      lsExcludes,
			IncludeHidden: lsHidden,
		})
		if err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid match pattern", err)
		}
	}

	s, err := openSession(cmd, parsed)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	sum := &output.SummaryRecord{Command: "ls"}
	if matcher != nil {
		entries, err := s.fs.Lister().ListAll(ctx, matcher.Prefix(), "", func(e listing.Entry) bool {
			return matcher.Match(e.Key)
		})
		if err != nil {
			return failure("Failed to list objects", err)
		}
		for _, e := range entries {
			rec := &output.EntryRecord{Key: e.Key, Size: e.Size, ETag: e.ETag, LastModified: e.LastModified, IsDir: e.IsDir()}
			if err := s.out.WriteEntry(ctx, rec); err != nil {
				return err
			}
			sum.Entries++
			sum.Bytes += e.Size
		}
		return s.summary(ctx, sum)
	}

	statuses, err := s.fs.ListStatus(ctx, parsed.Key, lsRecursive)
	if err != nil {
		observability.CLILogger.Error("Failed to list", zap.String("key", parsed.Key), zap.Error(err))
		return failure("Failed to list "+parsed.String(), err)
	}
	for _, st := range statuses {
		if err := s.out.WriteEntry(ctx, entryFromStatus(st)); err != nil {
			return err
		}
		sum.Entries++
		sum.Bytes += st.Size
	}
	return s.summary(ctx, sum)
}
