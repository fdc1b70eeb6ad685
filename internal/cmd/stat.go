package cmd

import (
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/3leaps/nimbusfs/pkg/output"
)

var statCmd = &cobra.Command{
	Use:   "stat <uri>...",
	Short: "Show file or directory status",
	Long: `Report whether each path is a file or a directory.

A path is a directory when a "path/" marker exists or any key lives below it.
Missing paths are reported as error records; the command exits non-zero
when any path is missing.

Examples:
  nimbusfs stat s3://bucket/logs/2024/app.log
  nimbusfs stat s3://bucket/logs s3://bucket/tmp`,
	Args: cobra.MinimumNArgs(1),
	RunE: runStat,
}

func init() {
	rootCmd.AddCommand(statCmd)
}

func runStat(cmd *cobra.Command, args []string) error {
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

	sum := &output.SummaryRecord{Command: "stat"}
	var firstErr error
	for _, u := range uris {
		st, err := s.fs.GetFileStatus(ctx, u.Key)
		if err != nil {
			if werr := s.out.WriteError(ctx, output.ErrorRecordFrom(u.Key, err)); werr != nil {
				return werr
			}
			sum.Errors++
			if firstErr == nil {
				firstErr = failure("Cannot stat "+u.String(), err)
			}
			continue
		}
		if err := s.out.WriteEntry(ctx, entryFromStatus(*st)); err != nil {
			return err
		}
		sum.Entries++
		sum.Bytes += st.Size
	}
	if err := s.summary(ctx, sum); err != nil {
		return err
	}
	return firstErr
}

// parseSameBucket parses every argument and requires them to address one
// bucket, so a single session can serve them all.
func parseSameBucket(args []string) ([]*ObjectURI, error) {
	uris := make([]*ObjectURI, 0, len(args))
	for _, a := range args {
		u, err := ParseURI(a)
		if err != nil {
			return nil, exitError(foundry.ExitInvalidArgument, "Invalid URI", err)
		}
		if len(uris) > 0 && (u.Provider != uris[0].Provider || u.Bucket != uris[0].Bucket) {
			return nil, exitError(foundry.ExitInvalidArgument, "Paths span buckets",
				fmt.Errorf("%w: %s and %s", ErrInvalidURI, uris[0], u))
		}
		uris = append(uris, u)
	}
	return uris, nil
}
