package bucketfs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/nimbusfs/pkg/errclass"
	"github.com/3leaps/nimbusfs/pkg/provider"
	"github.com/3leaps/nimbusfs/pkg/retry"
)

// PurgeMultipartUploads aborts multipart uploads initiated more than
// olderThan ago and returns how many were aborted.
//
// A bucket the caller may not write to is not an error: the purge is
// skipped with a log line.
func (f *FS) PurgeMultipartUploads(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := f.now().Add(-olderThan)
	aborted, err := f.purgeUploads(ctx, cutoff)
	if err != nil && errclass.IsAccessDenied(err) {
		f.logger.Info("cannot purge multipart uploads, filesystem may be read-only",
			zap.Int("aborted", aborted), zap.Error(err))
		return aborted, nil
	}
	return aborted, err
}

func (f *FS) purgeUploads(ctx context.Context, cutoff time.Time) (int, error) {
	opts := provider.MultipartListOptions{}
	aborted := 0
	for {
		res, err := retry.Value(ctx, f.exec, "listMultipartUploads", opts.KeyMarker,
			func(ctx context.Context) (*provider.MultipartListResult, error) {
				return f.client.ListMultipartUploads(ctx, opts)
			})
		if err != nil {
			return aborted, err
		}

		for _, u := range res.Uploads {
			if !u.Initiated.Before(cutoff) {
				continue
			}
			err := f.exec.Do(ctx, "abortMultipartUpload", u.Key, func(ctx context.Context) error {
				return f.client.AbortMultipartUpload(ctx, u.Key, u.UploadID)
			})
			if err != nil {
				if errclass.IsNotFound(err) {
					continue
				}
				return aborted, err
			}
			aborted++
			f.logger.Debug("aborted multipart upload",
				zap.String("key", u.Key),
				zap.String("upload_id", u.UploadID),
				zap.Time("initiated", u.Initiated))
		}

		if !res.IsTruncated {
			return aborted, nil
		}
		if res.NextKeyMarker == opts.KeyMarker && res.NextUploadIDMarker == opts.UploadIDMarker {
			f.logger.Warn("multipart listing truncated without advancing markers, stopping",
				zap.String("key_marker", opts.KeyMarker),
				zap.String("upload_id_marker", opts.UploadIDMarker))
			return aborted, nil
		}
		opts.KeyMarker = res.NextKeyMarker
		opts.UploadIDMarker = res.NextUploadIDMarker
	}
}

// AppendPosition returns the offset the next append to key should write at:
// the larger of the caller's recorded position and the object's length.
func (f *FS) AppendPosition(ctx context.Context, key string, recorded int64) (int64, error) {
	meta, err := retry.Value(ctx, f.exec, "getAttribute", key, func(ctx context.Context) (*provider.ObjectMeta, error) {
		return f.client.Head(ctx, key)
	})
	if err != nil {
		return 0, err
	}
	pos := max(recorded, meta.Size)
	if recorded != meta.Size {
		f.logger.Warn("append position differs from object length",
			zap.String("key", key),
			zap.Int64("position", pos),
			zap.Int64("content_length", meta.Size),
			zap.Int64("recorded", recorded))
	}
	return pos, nil
}
