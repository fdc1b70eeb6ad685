package bucketfs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/3leaps/nimbusfs/pkg/errclass"
	"github.com/3leaps/nimbusfs/pkg/listing"
	"github.com/3leaps/nimbusfs/pkg/match"
	"github.com/3leaps/nimbusfs/pkg/taskpool"
)

func trimSlashes(key string) string {
	return strings.TrimSuffix(listing.MaybeDeleteBeginningSlash(key), "/")
}

// Mkdirs creates directory key and any missing parents by writing a marker
// object for key. It fails with Conflict when key or one of its parents is
// a file.
func (f *FS) Mkdirs(ctx context.Context, key string) error {
	key = trimSlashes(key)
	if key == "" {
		return nil
	}

	st, err := f.GetFileStatus(ctx, key)
	switch {
	case err == nil && st.IsDir:
		return nil
	case err == nil:
		return errclass.New(errclass.Conflict, "mkdirs", key, "path is a file")
	case !errclass.IsNotFound(err):
		return err
	}

	for parent := path.Dir(key); parent != "." && parent != "/"; parent = path.Dir(parent) {
		st, err := f.GetFileStatus(ctx, parent)
		if err != nil {
			if errclass.IsNotFound(err) {
				continue
			}
			return err
		}
		if st.IsDir {
			break
		}
		return errclass.New(errclass.Conflict, "mkdirs", key,
			fmt.Sprintf("cannot create directory, parent %s is a file", parent))
	}

	return f.putObject(ctx, "createEmptyObject", listing.MaybeAddTrailingSlash(key), bytes.NewReader(nil), 0)
}

// Delete removes key. A directory that is not empty is only removed when
// recursive is set; otherwise Delete fails with Conflict. Delete reports
// false without error when key does not exist.
//
// The bucket root is never removed: an empty root is a successful no-op, a
// recursive delete of a populated root reports false, and anything else is
// a Conflict.
func (f *FS) Delete(ctx context.Context, key string, recursive bool) (bool, error) {
	st, err := f.GetFileStatus(ctx, key)
	if err != nil {
		if errclass.IsNotFound(err) {
			f.logger.Debug("delete: path does not exist", zap.String("key", key))
			return false, nil
		}
		return false, err
	}

	if !st.IsDir {
		if err := f.deleter.DeleteObject(ctx, f.bucket, st.Key); err != nil {
			return false, err
		}
		return true, nil
	}

	empty, err := f.lister.IsFolderEmpty(ctx, st.Key)
	if err != nil {
		return false, err
	}
	if st.Key == "" {
		return f.rejectRootDirectoryDelete(empty, recursive)
	}

	dirKey := listing.MaybeAddTrailingSlash(st.Key)
	if empty {
		if err := f.RemoveKeys(ctx, []string{dirKey}, true); err != nil {
			return false, err
		}
		return true, nil
	}
	if !recursive {
		return false, errclass.New(errclass.Conflict, "delete", st.Key, "directory is not empty")
	}

	entries, err := f.lister.ListAll(ctx, dirKey, "", listing.AcceptAll)
	if err != nil {
		return false, err
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, e.Key)
	}
	f.logger.Debug("deleting directory", zap.String("key", dirKey), zap.Int("keys", len(keys)))
	if err := f.RemoveKeys(ctx, keys, true); err != nil {
		return false, err
	}
	return true, nil
}

func (f *FS) rejectRootDirectoryDelete(empty, recursive bool) (bool, error) {
	f.logger.Info("delete the root directory", zap.Bool("empty", empty), zap.Bool("recursive", recursive))
	if empty {
		return true, nil
	}
	if recursive {
		return false, nil
	}
	return false, errclass.New(errclass.Conflict, "delete", "/", "cannot delete root of bucket "+f.bucket+": directory is not empty")
}

// DeleteMatching deletes every object under prefix that m selects and
// returns how many keys were removed. The listing starts at m's own prefix
// when that is narrower.
func (f *FS) DeleteMatching(ctx context.Context, prefix string, m *match.Matcher) (int, error) {
	prefix = listing.MaybeDeleteBeginningSlash(prefix)
	if mp := m.Prefix(); strings.HasPrefix(mp, prefix) {
		prefix = mp
	} else if !strings.HasPrefix(prefix, mp) {
		return 0, nil
	}

	entries, err := f.lister.ListAll(ctx, prefix, "", func(e listing.Entry) bool {
		return m.Match(e.Key)
	})
	if err != nil {
		return 0, err
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, e.Key)
	}
	if err := f.RemoveKeys(ctx, keys, true); err != nil {
		return 0, err
	}
	return len(keys), nil
}

// PutRequest is one object upload. Body is rewound before every attempt.
type PutRequest struct {
	Key  string
	Body io.ReadSeeker
	Size int64
}

// PutObjects uploads every request through the task pool and returns once
// all of them have finished. The first failure cancels the uploads that
// have not completed yet and is the error returned.
func (f *FS) PutObjects(ctx context.Context, reqs []PutRequest) error {
	putCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		once  sync.Once
		first error
	)
	fail := func(err error) {
		once.Do(func() {
			first = err
			cancel()
		})
	}

	handles := make([]*taskpool.Handle, 0, len(reqs))
	for _, req := range reqs {
		h, err := f.pool.Submit(putCtx, func(poolCtx context.Context) error {
			tctx, stopTask := context.WithCancel(putCtx)
			defer stopTask()
			stop := context.AfterFunc(poolCtx, stopTask)
			defer stop()
			if err := tctx.Err(); err != nil {
				return err
			}
			err := f.putObject(tctx, "putObject", listing.MaybeDeleteBeginningSlash(req.Key), req.Body, req.Size)
			if err != nil {
				fail(err)
			}
			return err
		})
		if err != nil {
			fail(err)
			break
		}
		handles = append(handles, h)
	}

	err := taskpool.WaitAll(handles...)
	if first != nil {
		return first
	}
	return err
}

func (f *FS) putObject(ctx context.Context, op, key string, body io.ReadSeeker, size int64) error {
	return f.exec.Do(ctx, op, key, func(ctx context.Context) error {
		if _, err := body.Seek(0, io.SeekStart); err != nil {
			return errclass.NewInvalidRequest(op, key, err.Error())
		}
		return f.client.PutObject(ctx, key, body, size)
	})
}
