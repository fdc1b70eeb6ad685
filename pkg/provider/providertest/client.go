// Package providertest provides an in-memory provider.Client for tests.
//
// The client records every call and lets tests script failures per
// operation, so retry, listing and delete paths can be driven without a
// network.
package providertest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/3leaps/nimbusfs/pkg/provider"
	"github.com/3leaps/nimbusfs/pkg/provider/internal/keyspace"
)

// Operation names used for call accounting and fault injection.
const (
	OpList           = "List"
	OpHead           = "Head"
	OpPut            = "PutObject"
	OpGet            = "GetObject"
	OpDelete         = "DeleteObject"
	OpDeleteObjects  = "DeleteObjects"
	OpHeadBucket     = "HeadBucket"
	OpCreateUpload   = "CreateMultipartUpload"
	OpAbortUpload    = "AbortMultipartUpload"
	OpListMultiparts = "ListMultipartUploads"
)

// Call is one recorded invocation.
type Call struct {
	Op   string
	Key  string
	Keys []string
}

type object struct {
	data     []byte
	modified time.Time
}

// Client is an in-memory provider.Client.
type Client struct {
	mu        sync.Mutex
	bucket    string
	objects   map[string]object
	uploads   []provider.MultipartUpload
	calls     []Call
	faults    map[string][]error
	keyFaults map[string]provider.DeleteObjectError
	now       func() time.Time
	nextID    int
}

var _ provider.Client = (*Client)(nil)

// New returns an empty client for bucket.
func New(bucket string) *Client {
	return &Client{
		bucket:    bucket,
		objects:   make(map[string]object),
		faults:    make(map[string][]error),
		keyFaults: make(map[string]provider.DeleteObjectError),
		now:       time.Now,
	}
}

// Bucket returns the bucket name.
func (c *Client) Bucket() string { return c.bucket }

// Seed stores objects directly, without recording calls.
func (c *Client) Seed(objects map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range objects {
		c.objects[k] = object{data: []byte(v), modified: c.now()}
	}
}

// SeedKeys stores empty objects for each key.
func (c *Client) SeedKeys(keys ...string) {
	m := make(map[string]string, len(keys))
	for _, k := range keys {
		m[k] = ""
	}
	c.Seed(m)
}

// AddUpload registers an in-progress multipart upload.
func (c *Client) AddUpload(key, uploadID string, initiated time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.uploads = append(c.uploads, provider.MultipartUpload{Key: key, UploadID: uploadID, Initiated: initiated})
}

// Fail queues errors returned by the next calls of op, one per call.
// A nil entry lets that call through.
func (c *Client) Fail(op string, errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.faults[op] = append(c.faults[op], errs...)
}

// FailKeyInBatch makes DeleteObjects report key as failed (and keep it)
// until cleared.
func (c *Client) FailKeyInBatch(key, code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keyFaults[key] = provider.DeleteObjectError{Key: key, Code: code, Message: "injected"}
}

// Keys returns every stored key in order.
func (c *Client) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.objects))
	for k := range c.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Has reports whether key is stored.
func (c *Client) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.objects[key]
	return ok
}

// Calls returns a copy of the call log.
func (c *Client) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// Count returns how many times op was called.
func (c *Client) Count(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, call := range c.calls {
		if call.Op == op {
			n++
		}
	}
	return n
}

// RemoteCalls returns the total number of recorded calls.
func (c *Client) RemoteCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

// record logs the call and pops the next scripted fault for op.
func (c *Client) record(call Call) error {
	c.calls = append(c.calls, call)
	queue := c.faults[call.Op]
	if len(queue) == 0 {
		return nil
	}
	err := queue[0]
	c.faults[call.Op] = queue[1:]
	return err
}

func (c *Client) List(ctx context.Context, opts provider.ListOptions) (*provider.ListResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(Call{Op: OpList, Key: opts.Prefix}); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	objects := make([]provider.ObjectSummary, 0, len(c.objects))
	for k, o := range c.objects {
		objects = append(objects, provider.ObjectSummary{Key: k, Size: int64(len(o.data)), LastModified: o.modified})
	}
	keyspace.Sort(objects)
	return keyspace.Page(objects, opts), nil
}

func (c *Client) Head(ctx context.Context, key string) (*provider.ObjectMeta, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(Call{Op: OpHead, Key: key}); err != nil {
		return nil, err
	}
	o, ok := c.objects[key]
	if !ok {
		return nil, NotFound(OpHead, key)
	}
	return &provider.ObjectMeta{ObjectSummary: provider.ObjectSummary{
		Key: key, Size: int64(len(o.data)), LastModified: o.modified,
	}}, nil
}

func (c *Client) PutObject(ctx context.Context, key string, body io.Reader, contentLength int64) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(Call{Op: OpPut, Key: key}); err != nil {
		return err
	}
	c.objects[key] = object{data: data, modified: c.now()}
	return nil
}

func (c *Client) GetObject(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(Call{Op: OpGet, Key: key}); err != nil {
		return nil, 0, err
	}
	o, ok := c.objects[key]
	if !ok {
		return nil, 0, NotFound(OpGet, key)
	}
	return io.NopCloser(bytes.NewReader(o.data)), int64(len(o.data)), nil
}

func (c *Client) DeleteObject(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(Call{Op: OpDelete, Key: key}); err != nil {
		return err
	}
	delete(c.objects, key)
	return nil
}

func (c *Client) DeleteObjects(ctx context.Context, keys []string, quiet bool) (*provider.DeleteObjectsResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(Call{Op: OpDeleteObjects, Keys: append([]string(nil), keys...)}); err != nil {
		return nil, err
	}
	res := &provider.DeleteObjectsResult{}
	for _, k := range keys {
		if fault, ok := c.keyFaults[k]; ok {
			res.Errors = append(res.Errors, fault)
			continue
		}
		delete(c.objects, k)
		if !quiet {
			res.Deleted = append(res.Deleted, k)
		}
	}
	return res, nil
}

func (c *Client) HeadBucket(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.record(Call{Op: OpHeadBucket})
}

func (c *Client) CreateMultipartUpload(ctx context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(Call{Op: OpCreateUpload, Key: key}); err != nil {
		return "", err
	}
	c.nextID++
	id := fmt.Sprintf("upload-%d", c.nextID)
	c.uploads = append(c.uploads, provider.MultipartUpload{Key: key, UploadID: id, Initiated: c.now()})
	return id, nil
}

func (c *Client) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(Call{Op: OpAbortUpload, Key: key}); err != nil {
		return err
	}
	for i, u := range c.uploads {
		if u.Key == key && u.UploadID == uploadID {
			c.uploads = append(c.uploads[:i], c.uploads[i+1:]...)
			return nil
		}
	}
	return Status(OpAbortUpload, key, 404, "NoSuchUpload")
}

// ListMultipartUploads pages uploads ordered by key then upload id.
func (c *Client) ListMultipartUploads(ctx context.Context, opts provider.MultipartListOptions) (*provider.MultipartListResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(Call{Op: OpListMultiparts, Key: opts.Prefix}); err != nil {
		return nil, err
	}
	uploads := append([]provider.MultipartUpload(nil), c.uploads...)
	sort.Slice(uploads, func(i, j int) bool {
		if uploads[i].Key != uploads[j].Key {
			return uploads[i].Key < uploads[j].Key
		}
		return uploads[i].UploadID < uploads[j].UploadID
	})

	limit := opts.MaxUploads
	if limit <= 0 {
		limit = keyspace.DefaultMaxKeys
	}
	res := &provider.MultipartListResult{}
	for _, u := range uploads {
		if opts.KeyMarker != "" {
			if u.Key < opts.KeyMarker || (u.Key == opts.KeyMarker && u.UploadID <= opts.UploadIDMarker) {
				continue
			}
		}
		if !strings.HasPrefix(u.Key, opts.Prefix) {
			continue
		}
		if len(res.Uploads) == limit {
			res.IsTruncated = true
			last := res.Uploads[len(res.Uploads)-1]
			res.NextKeyMarker = last.Key
			res.NextUploadIDMarker = last.UploadID
			break
		}
		res.Uploads = append(res.Uploads, u)
	}
	return res, nil
}

func (c *Client) Close() error { return nil }
