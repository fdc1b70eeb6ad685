// Package listing pages through a bucket and synthesizes directory
// semantics from a flat key space.
//
// A directory is either a common prefix returned by a delimiter listing or
// a zero-byte marker object whose key ends in "/". Every remote call goes
// through the retry executor.
package listing

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/nimbusfs/pkg/errclass"
	"github.com/3leaps/nimbusfs/pkg/provider"
	"github.com/3leaps/nimbusfs/pkg/retry"
)

const (
	// DefaultMaxKeys is the store's page size limit.
	DefaultMaxKeys = 1000

	// folderEmptyKeys is enough to tell "only the marker" from "anything else".
	folderEmptyKeys = 3

	// Delimiter is the path separator used for directory listings.
	Delimiter = "/"
)

// Config configures a Lister.
type Config struct {
	// MaxKeys caps the page size of every listing. Zero uses DefaultMaxKeys.
	MaxKeys int

	// FSBucket marks a bucket with native directory support, where a
	// directory can exist without a marker object or children.
	FSBucket bool
}

// Lister issues paginated listings against one bucket.
type Lister struct {
	client provider.Provider
	exec   *retry.Executor
	cfg    Config
	logger *zap.Logger
}

// New creates a Lister.
func New(client provider.Provider, exec *retry.Executor, cfg Config, logger *zap.Logger) *Lister {
	if cfg.MaxKeys <= 0 {
		cfg.MaxKeys = DefaultMaxKeys
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lister{client: client, exec: exec, cfg: cfg, logger: logger}
}

// Cursor is the continuation state of a listing. A continuation re-submits
// the original prefix, delimiter and page size; only Marker changes.
type Cursor struct {
	Prefix    string `json:"prefix"`
	Delimiter string `json:"delimiter,omitempty"`
	MaxKeys   int    `json:"max_keys"`
	Marker    string `json:"marker"`
}

// Entry is one listed object or common prefix.
type Entry struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time

	// IsPrefix is true for common prefixes.
	IsPrefix bool
}

// IsDir reports whether the entry stands for a directory.
func (e Entry) IsDir() bool {
	return e.IsPrefix || ObjectRepresentsDirectory(e.Key, e.Size)
}

// Page is one page of a listing.
type Page struct {
	Objects        []provider.ObjectSummary
	CommonPrefixes []string

	// Next continues the listing. Nil when the listing is complete.
	Next *Cursor
}

// Entries returns the page's objects followed by its common prefixes, each
// in the order the store returned them.
func (p *Page) Entries() []Entry {
	out := make([]Entry, 0, len(p.Objects)+len(p.CommonPrefixes))
	for _, o := range p.Objects {
		out = append(out, Entry{Key: o.Key, Size: o.Size, ETag: o.ETag, LastModified: o.LastModified})
	}
	for _, cp := range p.CommonPrefixes {
		out = append(out, Entry{Key: cp, IsPrefix: true})
	}
	return out
}

// Truncated reports whether more pages follow.
func (p *Page) Truncated() bool {
	return p.Next != nil
}

// PageSize returns the page size sent for a requested size: requested when
// it is positive and below the store limit, otherwise the limit.
func (l *Lister) PageSize(requested int) int {
	if requested > 0 && requested < l.cfg.MaxKeys {
		return requested
	}
	return l.cfg.MaxKeys
}

// List fetches the first page under prefix.
func (l *Lister) List(ctx context.Context, prefix, delimiter string, pageSize int) (*Page, error) {
	c := Cursor{Prefix: prefix, Delimiter: delimiter, MaxKeys: l.PageSize(pageSize)}
	return l.fetch(ctx, "listObjects", c)
}

// Continue fetches the page after c.
func (l *Lister) Continue(ctx context.Context, c Cursor) (*Page, error) {
	if c.Marker == "" {
		return nil, errclass.NewInvalidRequest("continueListObjects", c.Prefix, "cursor has no marker")
	}
	c.MaxKeys = l.PageSize(c.MaxKeys)
	return l.fetch(ctx, "continueListObjects", c)
}

func (l *Lister) fetch(ctx context.Context, op string, c Cursor) (*Page, error) {
	res, err := retry.Value(ctx, l.exec, op, c.Prefix, func(ctx context.Context) (*provider.ListResult, error) {
		return l.client.List(ctx, provider.ListOptions{
			Prefix:            c.Prefix,
			Delimiter:         c.Delimiter,
			ContinuationToken: c.Marker,
			MaxKeys:           c.MaxKeys,
		})
	})
	if err != nil {
		return nil, err
	}

	page := &Page{Objects: res.Objects, CommonPrefixes: res.CommonPrefixes}
	if res.IsTruncated {
		marker := res.ContinuationToken
		if marker == "" {
			marker = lastKey(res)
		}
		if marker != "" {
			next := c
			next.Marker = marker
			page.Next = &next
		}
	}
	return page, nil
}

// lastKey is the marker for stores that omit a continuation token on
// truncated pages.
func lastKey(res *provider.ListResult) string {
	last := ""
	if n := len(res.Objects); n > 0 {
		last = res.Objects[n-1].Key
	}
	if n := len(res.CommonPrefixes); n > 0 && res.CommonPrefixes[n-1] > last {
		last = res.CommonPrefixes[n-1]
	}
	return last
}

// ObjectRepresentsDirectory reports whether a listed object is a directory
// marker: a non-empty key ending in "/" with no content.
func ObjectRepresentsDirectory(key string, size int64) bool {
	return key != "" && strings.HasSuffix(key, "/") && size == 0
}

// MaybeAddTrailingSlash turns a non-root key into a directory prefix.
func MaybeAddTrailingSlash(key string) string {
	if key != "" && !strings.HasSuffix(key, "/") {
		return key + "/"
	}
	return key
}

// MaybeDeleteBeginningSlash strips one leading "/" so paths become keys.
func MaybeDeleteBeginningSlash(key string) string {
	return strings.TrimPrefix(key, "/")
}

// IsFolderEmpty reports whether the directory key holds nothing besides its
// own marker.
//
// When nothing at all lives under key, the root and directories of an
// FSBucket are empty; anything else does not exist and yields NotFound.
func (l *Lister) IsFolderEmpty(ctx context.Context, key string) (bool, error) {
	prefix := MaybeAddTrailingSlash(key)
	res, err := retry.Value(ctx, l.exec, "isFolderEmpty", prefix, func(ctx context.Context) (*provider.ListResult, error) {
		return l.client.List(ctx, provider.ListOptions{
			Prefix:    prefix,
			Delimiter: Delimiter,
			MaxKeys:   folderEmptyKeys,
		})
	})
	if err != nil {
		return false, err
	}

	if len(res.Objects) > 0 || len(res.CommonPrefixes) > 0 {
		if onlySelf(prefix, res) {
			l.logger.Debug("found empty directory", zap.String("key", prefix))
			return true, nil
		}
		l.logger.Debug("found non-empty directory",
			zap.String("key", prefix),
			zap.Int("objects", len(res.Objects)),
			zap.Int("prefixes", len(res.CommonPrefixes)))
		return false, nil
	}

	switch {
	case prefix == "":
		l.logger.Debug("found root directory")
		return true, nil
	case l.cfg.FSBucket:
		l.logger.Debug("found empty directory", zap.String("key", prefix))
		return true, nil
	}
	return false, errclass.New(errclass.NotFound, "isFolderEmpty", prefix, "no such file or directory")
}

// onlySelf reports whether a listing under prefix contains nothing but the
// prefix's own marker object or common prefix.
func onlySelf(prefix string, res *provider.ListResult) bool {
	switch n := len(res.Objects); {
	case n >= 2:
		return false
	case n == 1 && res.Objects[0].Key != prefix:
		return false
	}
	switch n := len(res.CommonPrefixes); {
	case n >= 2:
		return false
	case n == 1:
		return res.CommonPrefixes[0] == prefix
	}
	return true
}

// Filter selects entries in ListAll.
type Filter func(Entry) bool

// AcceptAll keeps every entry.
func AcceptAll(Entry) bool { return true }

// AcceptAllButSelf keeps every entry except the directory key itself.
func AcceptAllButSelf(key string) Filter {
	self := MaybeAddTrailingSlash(key)
	return func(e Entry) bool { return e.Key != self }
}

// ListAll drains a listing and returns the entries accepted by filter.
func (l *Lister) ListAll(ctx context.Context, prefix, delimiter string, filter Filter) ([]Entry, error) {
	if filter == nil {
		filter = AcceptAll
	}
	var out []Entry
	it := l.Iterate(prefix, delimiter, 0)
	for it.Next(ctx) {
		if e := it.Entry(); filter(e) {
			out = append(out, e)
		}
	}
	return out, it.Err()
}
