// Package s3 backs the nimbusfs provider interfaces with AWS S3 or any
// S3-compatible store.
package s3

import (
	"net/url"
	"strings"
)

// Store limits. S3 rejects larger pages and larger delete batches.
const (
	DefaultMaxKeys   = 1000
	MaxAllowedKeys   = 1000
	MaxDeleteObjects = 1000
)

// DefaultAWSRegion applies to AWS S3 when neither the config, the
// environment nor the profile names a region. It is never applied when
// Endpoint is set.
const DefaultAWSRegion = "us-east-1"

// Config selects the bucket and how to reach it.
//
// Credentials come from AccessKeyID/SecretAccessKey when both are set,
// otherwise from the SDK default chain (environment, shared files with
// Profile, then instance or task roles).
type Config struct {
	Bucket string
	Region string

	// Endpoint points at an S3-compatible store (MinIO, Wasabi, moto).
	// Empty means AWS S3. Such stores usually also need ForcePathStyle.
	Endpoint string

	Profile         string
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool

	// MaxKeys is the List page size. Zero means DefaultMaxKeys; larger
	// values are clamped to MaxAllowedKeys.
	MaxKeys int
}

// Validate reports the first problem with c as a *ConfigError.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return &ConfigError{Field: "Bucket", Message: "bucket name is required"}
	}
	if (c.AccessKeyID == "") != (c.SecretAccessKey == "") {
		return &ConfigError{
			Field:   "AccessKeyID/SecretAccessKey",
			Message: "both access key ID and secret access key must be provided together",
		}
	}
	if c.Endpoint != "" {
		u, err := url.Parse(c.Endpoint)
		if err != nil || u.Host == "" || (!strings.EqualFold(u.Scheme, "http") && !strings.EqualFold(u.Scheme, "https")) {
			return &ConfigError{Field: "Endpoint", Message: "endpoint must be an http(s) URL with a host"}
		}
	}
	return nil
}

// ConfigError names the Config field that failed validation.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "s3 config: " + e.Field + ": " + e.Message
}
