package cmd

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/3leaps/nimbusfs/pkg/match"
	"github.com/3leaps/nimbusfs/pkg/provider"
)

var (
	// ErrInvalidURI indicates the URI could not be parsed.
	ErrInvalidURI = errors.New("invalid URI")

	// ErrUnsupportedProvider indicates the URI scheme is not supported.
	ErrUnsupportedProvider = errors.New("unsupported provider")

	// ErrMissingBucket indicates an s3 URI without a bucket name.
	ErrMissingBucket = errors.New("missing bucket name")
)

// ObjectURI is a parsed object path.
//
//   - s3://bucket/key/path.txt
//   - s3://bucket/prefix/
//   - s3://bucket/prefix/**/*.parquet
//   - file://prefix/key.txt (relative to the configured file.root)
type ObjectURI struct {
	Provider string

	// Bucket is empty for file URIs; their root comes from configuration.
	Bucket string

	// Key is the object key, or the static prefix of Pattern.
	Key string

	// Pattern holds the full glob when the path has glob metacharacters.
	Pattern string
}

func (u *ObjectURI) String() string {
	path := u.Key
	if u.Pattern != "" {
		path = u.Pattern
	}
	if u.Provider == string(provider.ProviderFile) {
		return "file://" + path
	}
	return fmt.Sprintf("%s://%s/%s", u.Provider, u.Bucket, path)
}

// IsPattern reports whether the URI carries a glob.
func (u *ObjectURI) IsPattern() bool {
	return u.Pattern != ""
}

// IsPrefix reports whether the URI names a prefix (bucket root or trailing /).
func (u *ObjectURI) IsPrefix() bool {
	return u.Key == "" || strings.HasSuffix(u.Key, "/")
}

// ParseURI parses an s3:// or file:// URI.
func ParseURI(uri string) (*ObjectURI, error) {
	if uri == "" {
		return nil, fmt.Errorf("%w: empty URI", ErrInvalidURI)
	}

	// url.Parse would treat '?' in a glob as a query delimiter.
	schemeEnd := strings.Index(uri, "://")
	if schemeEnd == -1 {
		return nil, fmt.Errorf("%w: missing scheme (expected s3:// or file://)", ErrInvalidURI)
	}

	scheme := strings.ToLower(uri[:schemeEnd])
	remainder := uri[schemeEnd+3:]

	var bucket, key string
	switch provider.ProviderType(scheme) {
	case provider.ProviderS3:
		if remainder == "" {
			return nil, fmt.Errorf("%w: in %s", ErrMissingBucket, uri)
		}
		bucket, key, _ = strings.Cut(remainder, "/")
		if bucket == "" {
			return nil, fmt.Errorf("%w: in %s", ErrMissingBucket, uri)
		}
		if _, err := url.Parse("s3://" + bucket + "/"); err != nil {
			return nil, fmt.Errorf("%w: invalid bucket name %q", ErrInvalidURI, bucket)
		}
	case provider.ProviderFile:
		key = strings.TrimPrefix(remainder, "/")
	default:
		return nil, fmt.Errorf("%w: %s (supported: s3, file)", ErrUnsupportedProvider, scheme)
	}

	result := &ObjectURI{Provider: scheme, Bucket: bucket}
	if match.IsGlob(key) {
		result.Pattern = key
	}
	result.Key = match.StaticPrefix(key)
	return result, nil
}
