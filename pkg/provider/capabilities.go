package provider

import (
	"context"
	"io"
	"time"
)

// Optional provider capability interfaces.
//
// These interfaces are used for feature detection (type assertions). The core
// Provider interface remains intentionally small; Client bundles everything
// the filesystem layer needs.

// ObjectPutter can create/overwrite objects.
type ObjectPutter interface {
	PutObject(ctx context.Context, key string, body io.Reader, contentLength int64) error
}

// ObjectDeleter can delete objects.
//
// Deleting a missing key is not an error.
type ObjectDeleter interface {
	DeleteObject(ctx context.Context, key string) error
}

// BatchDeleter can delete many objects in one round trip.
//
// A returned error means the request as a whole failed. Per-key failures are
// reported in DeleteObjectsResult.Errors.
type BatchDeleter interface {
	DeleteObjects(ctx context.Context, keys []string, quiet bool) (*DeleteObjectsResult, error)
}

// ObjectGetter can download objects as a stream.
type ObjectGetter interface {
	GetObject(ctx context.Context, key string) (body io.ReadCloser, contentLength int64, err error)
}

// BucketHeader can check that the configured bucket exists and is reachable.
type BucketHeader interface {
	HeadBucket(ctx context.Context) error
}

// MultipartUploader can create and abort multipart uploads.
type MultipartUploader interface {
	CreateMultipartUpload(ctx context.Context, key string) (uploadID string, err error)
	AbortMultipartUpload(ctx context.Context, key, uploadID string) error
}

// MultipartLister can enumerate in-progress multipart uploads.
type MultipartLister interface {
	ListMultipartUploads(ctx context.Context, opts MultipartListOptions) (*MultipartListResult, error)
}

// Client is the full remote capability used by the filesystem layer.
type Client interface {
	Provider
	ObjectPutter
	ObjectGetter
	ObjectDeleter
	BatchDeleter
	BucketHeader
	MultipartUploader
	MultipartLister
}

// DeleteObjectsResult reports the outcome of a batch delete.
type DeleteObjectsResult struct {
	// Deleted lists keys confirmed deleted. Empty in quiet mode.
	Deleted []string

	// Errors lists keys the service failed to delete.
	Errors []DeleteObjectError
}

// DeleteObjectError is a single key failure inside a batch delete.
type DeleteObjectError struct {
	Key     string
	Code    string
	Message string
}

// MultipartListOptions configures a ListMultipartUploads operation.
type MultipartListOptions struct {
	Prefix         string
	KeyMarker      string
	UploadIDMarker string

	// MaxUploads limits the uploads returned per page. Zero uses the
	// provider default.
	MaxUploads int
}

// MultipartListResult contains a page of in-progress multipart uploads.
type MultipartListResult struct {
	Uploads            []MultipartUpload
	NextKeyMarker      string
	NextUploadIDMarker string
	IsTruncated        bool
}

// MultipartUpload describes one in-progress multipart upload.
type MultipartUpload struct {
	Key       string
	UploadID  string
	Initiated time.Time
}
