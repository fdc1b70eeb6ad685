package bucketfs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/nimbusfs/pkg/errclass"
	"github.com/3leaps/nimbusfs/pkg/listing"
	"github.com/3leaps/nimbusfs/pkg/provider"
	"github.com/3leaps/nimbusfs/pkg/retry"
)

// FileStatus describes a file or directory.
type FileStatus struct {
	// Key is the object key without a leading slash. Directory keys keep no
	// trailing slash; the root is "".
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified,omitzero"`
	IsDir        bool      `json:"is_dir"`
}

func dirStatus(key string) *FileStatus {
	return &FileStatus{Key: trimSlashes(key), IsDir: true}
}

func statusFromEntry(e listing.Entry) FileStatus {
	if e.IsDir() {
		return FileStatus{Key: trimSlashes(e.Key), LastModified: e.LastModified, IsDir: true}
	}
	return FileStatus{Key: e.Key, Size: e.Size, LastModified: e.LastModified}
}

// GetFileStatus returns the status of key.
//
// An object at key is a file. Otherwise key is a directory when a "key/"
// marker exists or anything is listed under "key/". The root is always a
// directory. Anything else is NotFound.
func (f *FS) GetFileStatus(ctx context.Context, key string) (*FileStatus, error) {
	key = trimSlashes(key)
	if key == "" {
		return dirStatus(""), nil
	}

	meta, err := f.head(ctx, key)
	switch {
	case err == nil:
		return &FileStatus{Key: key, Size: meta.Size, LastModified: meta.LastModified}, nil
	case !errclass.IsNotFound(err):
		return nil, err
	}

	dirKey := listing.MaybeAddTrailingSlash(key)
	meta, err = f.head(ctx, dirKey)
	switch {
	case err == nil:
		st := dirStatus(key)
		st.LastModified = meta.LastModified
		return st, nil
	case !errclass.IsNotFound(err):
		return nil, err
	}

	page, err := f.lister.List(ctx, dirKey, listing.Delimiter, 1)
	if err != nil {
		return nil, err
	}
	if len(page.Objects) > 0 || len(page.CommonPrefixes) > 0 {
		return dirStatus(key), nil
	}

	f.logger.Debug("not found", zap.String("key", key))
	return nil, errclass.New(errclass.NotFound, "getFileStatus", key, "no such file or directory")
}

func (f *FS) head(ctx context.Context, key string) (*provider.ObjectMeta, error) {
	return retry.Value(ctx, f.exec, "getObjectMetadata", key, func(ctx context.Context) (*provider.ObjectMeta, error) {
		return f.client.Head(ctx, key)
	})
}

// IsFolderEmpty reports whether directory key holds nothing but its marker.
func (f *FS) IsFolderEmpty(ctx context.Context, key string) (bool, error) {
	return f.lister.IsFolderEmpty(ctx, trimSlashes(key))
}

// ListStatus lists a directory's children, or every descendant when
// recursive is set. A file lists as itself.
func (f *FS) ListStatus(ctx context.Context, key string, recursive bool) ([]FileStatus, error) {
	st, err := f.GetFileStatus(ctx, key)
	if err != nil {
		return nil, err
	}
	if !st.IsDir {
		return []FileStatus{*st}, nil
	}

	delimiter := listing.Delimiter
	if recursive {
		delimiter = ""
	}
	prefix := listing.MaybeAddTrailingSlash(st.Key)
	entries, err := f.lister.ListAll(ctx, prefix, delimiter, listing.AcceptAllButSelf(st.Key))
	if err != nil {
		return nil, err
	}

	out := make([]FileStatus, 0, len(entries))
	for _, e := range entries {
		out = append(out, statusFromEntry(e))
	}
	return out, nil
}
