package cmd

import (
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/nimbusfs/internal/observability"
	"github.com/3leaps/nimbusfs/pkg/bucketfs"
	"github.com/3leaps/nimbusfs/pkg/output"
)

var putCmd = &cobra.Command{
	Use:   "put <file>... <uri>",
	Short: "Upload local files",
	Long: `Upload local files in parallel on the bounded task pool.

With one file and a URI not ending in '/', the URI is the object key.
Otherwise each file keeps its base name under the URI prefix.

A single "-" reads the object from stdin; the URI must then name a key.

Examples:
  nimbusfs put report.csv s3://bucket/reports/2024.csv
  nimbusfs put a.log b.log s3://bucket/logs/
  pg_dump db | nimbusfs put - s3://bucket/backups/db.sql`,
	Args: cobra.MinimumNArgs(2),
	RunE: runPut,
}

func init() {
	rootCmd.AddCommand(putCmd)
}

const stdinSource = "-"

type upload struct {
	local string
	key   string
	size  int64
}

func runPut(cmd *cobra.Command, args []string) error {
	if err := requireWritable("put"); err != nil {
		return err
	}
	ctx := cmd.Context()
	target := args[len(args)-1]
	sources := args[:len(args)-1]

	parsed, err := ParseURI(target)
	if err != nil {
		observability.CLILogger.Error("Invalid URI", zap.String("uri", target), zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Invalid URI", err)
	}
	if parsed.IsPattern() {
		return exitError(foundry.ExitInvalidArgument, "Invalid put target", fmt.Errorf("%w: glob not allowed in %s", ErrInvalidURI, target))
	}

	var (
		uploads []upload
		reqs    []bucketfs.PutRequest
	)
	if len(sources) == 1 && sources[0] == stdinSource {
		if parsed.IsPrefix() {
			return exitError(foundry.ExitInvalidArgument, "Invalid put target", fmt.Errorf("%w: stdin needs an object key, got prefix %s", ErrInvalidURI, target))
		}
		body, err := bucketfs.SpoolBody(cmd.InOrStdin(), -1, bucketfs.DefaultSpoolThreshold)
		if err != nil {
			return exitError(foundry.ExitFileReadError, "Cannot read stdin", err)
		}
		defer func() { _ = body.Close() }()
		uploads = []upload{{local: stdinSource, key: parsed.Key, size: body.Size()}}
		reqs = []bucketfs.PutRequest{{Key: parsed.Key, Body: body, Size: body.Size()}}
	} else {
		uploads, err = planUploads(sources, parsed)
		if err != nil {
			return err
		}
		files := make([]*os.File, 0, len(uploads))
		defer func() {
			for _, f := range files {
				_ = f.Close()
			}
		}()
		for _, u := range uploads {
			f, err := os.Open(u.local)
			if err != nil {
				return exitError(foundry.ExitFileReadError, "Cannot open "+u.local, err)
			}
			files = append(files, f)
			reqs = append(reqs, bucketfs.PutRequest{Key: u.key, Body: f, Size: u.size})
		}
	}

	s, err := openSession(cmd, parsed)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	sum := &output.SummaryRecord{Command: "put"}
	if err := s.fs.PutObjects(ctx, reqs); err != nil {
		observability.CLILogger.Error("Upload failed", zap.Error(err))
		if werr := s.out.WriteError(ctx, output.ErrorRecordFrom(parsed.Key, err)); werr != nil {
			return werr
		}
		sum.Errors++
		_ = s.summary(ctx, sum)
		return exitError(foundry.ExitFileWriteError, "Upload failed", err)
	}
	for _, u := range uploads {
		if err := s.out.WriteEntry(ctx, &output.EntryRecord{Key: u.key, Size: u.size}); err != nil {
			return err
		}
		sum.Entries++
		sum.Bytes += u.size
	}
	return s.summary(ctx, sum)
}

// planUploads resolves each local file to its object key.
func planUploads(sources []string, target *ObjectURI) ([]upload, error) {
	single := len(sources) == 1 && !target.IsPrefix()
	out := make([]upload, 0, len(sources))
	for _, src := range sources {
		if src == stdinSource {
			return nil, exitError(foundry.ExitInvalidArgument, "Cannot mix stdin with files", fmt.Errorf("%w: '-' must be the only source", ErrInvalidURI))
		}
		st, err := os.Stat(src)
		if err != nil {
			return nil, exitError(foundry.ExitFileNotFound, "Cannot read "+src, err)
		}
		if st.IsDir() {
			return nil, exitError(foundry.ExitInvalidArgument, "Cannot upload "+src, fmt.Errorf("%s is a directory", src))
		}
		key := target.Key
		if !single {
			key = path.Join(target.Key, filepath.Base(src))
		}
		out = append(out, upload{local: src, key: key, size: st.Size()})
	}
	return out, nil
}
