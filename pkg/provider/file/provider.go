// Package file implements the provider interfaces on top of a local
// directory. It is meant for offline development of the filesystem layer and
// for tests that want real files instead of an in-memory store.
package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/3leaps/nimbusfs/pkg/provider"
	"github.com/3leaps/nimbusfs/pkg/provider/internal/keyspace"
)

// DirMarkerName is the file that stands in for a zero-byte "dir/" key.
const DirMarkerName = ".nimbusfs-dir"

// Provider implements provider.Client for local filesystem paths.
//
// Keys are treated as relative paths under BaseDir. A key ending in "/"
// is stored as a DirMarkerName file inside the matching directory.
type Provider struct {
	baseDir string
}

// Ensure Provider implements provider capability interfaces.
var (
	_ provider.Provider      = (*Provider)(nil)
	_ provider.ObjectGetter  = (*Provider)(nil)
	_ provider.ObjectPutter  = (*Provider)(nil)
	_ provider.ObjectDeleter = (*Provider)(nil)
	_ provider.Client        = (*Provider)(nil)
)

type Config struct {
	BaseDir string
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseDir) == "" {
		return fmt.Errorf("base dir is required")
	}
	return nil
}

func New(cfg Config) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base := filepath.Clean(cfg.BaseDir)
	return &Provider{baseDir: base}, nil
}

func (p *Provider) Close() error { return nil }

// Bucket returns the base directory, which plays the role of the bucket.
func (p *Provider) Bucket() string { return p.baseDir }

func (p *Provider) HeadBucket(ctx context.Context) error {
	_ = ctx
	st, err := os.Stat(p.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return p.remoteError("HeadBucket", "", 404, "NoSuchBucket", provider.ErrBucketNotFound, err)
		}
		return p.wrapError("HeadBucket", "", err)
	}
	if !st.IsDir() {
		return p.remoteError("HeadBucket", "", 404, "NoSuchBucket", provider.ErrBucketNotFound, nil)
	}
	return nil
}

func (p *Provider) List(ctx context.Context, opts provider.ListOptions) (*provider.ListResult, error) {
	_ = ctx
	objects, err := p.collectObjects(strings.TrimPrefix(opts.Prefix, "/"))
	if err != nil {
		return nil, p.wrapError("List", opts.Prefix, err)
	}
	keyspace.Sort(objects)
	opts.Prefix = strings.TrimPrefix(opts.Prefix, "/")
	return keyspace.Page(objects, opts), nil
}

func (p *Provider) Head(ctx context.Context, key string) (*provider.ObjectMeta, error) {
	_ = ctx
	full, err := p.fullPath(key)
	if err != nil {
		return nil, p.wrapError("Head", key, err)
	}
	st, err := os.Stat(full)
	if err != nil {
		return nil, p.wrapError("Head", key, err)
	}
	if st.IsDir() {
		return nil, p.remoteError("Head", key, 404, "NoSuchKey", provider.ErrNotFound, nil)
	}

	return &provider.ObjectMeta{
		ObjectSummary: provider.ObjectSummary{Key: strings.TrimPrefix(key, "/"), Size: st.Size(), LastModified: st.ModTime()},
	}, nil
}

func (p *Provider) GetObject(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	_ = ctx
	full, err := p.fullPath(key)
	if err != nil {
		return nil, 0, p.wrapError("GetObject", key, err)
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, 0, p.wrapError("GetObject", key, err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, p.wrapError("GetObject", key, err)
	}
	return f, st.Size(), nil
}

func (p *Provider) PutObject(ctx context.Context, key string, body io.Reader, contentLength int64) error {
	_ = ctx
	_ = contentLength
	full, err := p.fullPath(key)
	if err != nil {
		return p.wrapError("PutObject", key, err)
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return p.wrapError("PutObject", key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), "nimbusfs-put-*")
	if err != nil {
		return p.wrapError("PutObject", key, err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := io.Copy(tmp, body); err != nil {
		return p.wrapError("PutObject", key, err)
	}
	if err := tmp.Close(); err != nil {
		return p.wrapError("PutObject", key, err)
	}

	if err := os.Rename(tmpName, full); err != nil {
		return p.wrapError("PutObject", key, err)
	}
	return nil
}

func (p *Provider) DeleteObject(ctx context.Context, key string) error {
	_ = ctx
	full, err := p.fullPath(key)
	if err != nil {
		return p.wrapError("DeleteObject", key, err)
	}
	if err := os.Remove(full); err != nil {
		if isMissing(err) {
			return nil
		}
		return p.wrapError("DeleteObject", key, err)
	}
	p.pruneEmptyParents(filepath.Dir(full))
	return nil
}

func (p *Provider) DeleteObjects(ctx context.Context, keys []string, quiet bool) (*provider.DeleteObjectsResult, error) {
	res := &provider.DeleteObjectsResult{}
	for _, key := range keys {
		if err := p.DeleteObject(ctx, key); err != nil {
			code := "InternalError"
			if re, ok := provider.AsRemote(err); ok && re.Code != "" {
				code = re.Code
			}
			res.Errors = append(res.Errors, provider.DeleteObjectError{Key: key, Code: code, Message: err.Error()})
			continue
		}
		if !quiet {
			res.Deleted = append(res.Deleted, key)
		}
	}
	return res, nil
}

// Local directories have no multipart uploads in flight.
func (p *Provider) ListMultipartUploads(ctx context.Context, opts provider.MultipartListOptions) (*provider.MultipartListResult, error) {
	_ = ctx
	_ = opts
	return &provider.MultipartListResult{}, nil
}

func (p *Provider) CreateMultipartUpload(ctx context.Context, key string) (string, error) {
	_ = ctx
	return "", &provider.ProviderError{Op: "CreateMultipartUpload", Provider: provider.ProviderFile, Key: key, Err: errors.ErrUnsupported}
}

func (p *Provider) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	_ = ctx
	_ = uploadID
	return p.remoteError("AbortMultipartUpload", key, 404, "NoSuchUpload", provider.ErrNotFound, nil)
}

func (p *Provider) fullPath(key string) (string, error) {
	key = strings.TrimSpace(key)
	key = strings.TrimPrefix(key, "/")
	isDir := strings.HasSuffix(key, "/")
	// Prevent path traversal.
	clean := filepath.Clean("/" + key)
	clean = strings.TrimPrefix(clean, "/")
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("invalid key path")
	}
	full := filepath.Join(p.baseDir, filepath.FromSlash(clean))
	if isDir {
		full = filepath.Join(full, DirMarkerName)
	}
	return full, nil
}

// collectObjects walks the directory holding prefix and returns every key.
func (p *Provider) collectObjects(prefix string) ([]provider.ObjectSummary, error) {
	dir := prefix
	if i := strings.LastIndex(dir, "/"); i >= 0 {
		dir = dir[:i]
	} else {
		dir = ""
	}
	root := filepath.Join(p.baseDir, filepath.FromSlash(dir))
	if _, err := os.Stat(root); err != nil {
		if isMissing(err) {
			return []provider.ObjectSummary{}, nil
		}
		return nil, err
	}

	var objects []provider.ObjectSummary
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), "nimbusfs-put-") {
			return nil
		}
		rel, err := filepath.Rel(p.baseDir, path)
		if err != nil {
			return nil
		}
		key := filepath.ToSlash(rel)
		if d.Name() == DirMarkerName {
			key = strings.TrimSuffix(key, DirMarkerName)
		}
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		objects = append(objects, provider.ObjectSummary{Key: key, Size: info.Size(), LastModified: info.ModTime()})
		return nil
	})
	return objects, err
}

// pruneEmptyParents removes directories left empty by a delete, stopping at
// the base directory.
func (p *Provider) pruneEmptyParents(dir string) {
	for dir != p.baseDir && strings.HasPrefix(dir, p.baseDir) {
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

func (p *Provider) remoteError(op, key string, status int, code string, sentinel, cause error) error {
	return &provider.ProviderError{
		Op:       op,
		Provider: provider.ProviderFile,
		Bucket:   p.baseDir,
		Key:      key,
		Err: &provider.RemoteError{
			StatusCode: status,
			Code:       code,
			Message:    sentinel.Error(),
			Err:        sentinel,
			Cause:      cause,
		},
	}
}

func (p *Provider) wrapError(op, key string, err error) error {
	if err == nil {
		err = fmt.Errorf("unknown error")
	}
	// Normalize common filesystem errors to provider sentinels.
	switch {
	case isMissing(err):
		return p.remoteError(op, key, 404, "NoSuchKey", provider.ErrNotFound, err)
	case os.IsPermission(err):
		return p.remoteError(op, key, 403, "AccessDenied", provider.ErrAccessDenied, err)
	}
	return &provider.ProviderError{Op: op, Provider: provider.ProviderFile, Bucket: p.baseDir, Key: key, Err: err}
}

// isMissing reports whether err means nothing exists at the path, including
// a path that runs through a regular file.
func isMissing(err error) bool {
	return os.IsNotExist(err) || errors.Is(err, syscall.ENOTDIR)
}
