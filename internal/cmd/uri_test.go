package cmd

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURI(t *testing.T) {
	tests := []struct {
		name        string
		uri         string
		wantErr     error
		errContains string
		want        *ObjectURI
	}{
		{
			name: "simple bucket",
			uri:  "s3://my-bucket",
			want: &ObjectURI{
				Provider: "s3",
				Bucket:   "my-bucket",
				Key:      "",
			},
		},
		{
			name: "bucket with trailing slash",
			uri:  "s3://my-bucket/",
			want: &ObjectURI{
				Provider: "s3",
				Bucket:   "my-bucket",
				Key:      "",
			},
		},
		{
			name: "bucket with key",
			uri:  "s3://my-bucket/path/to/object.txt",
			want: &ObjectURI{
				Provider: "s3",
				Bucket:   "my-bucket",
				Key:      "path/to/object.txt",
			},
		},
		{
			name: "bucket with prefix",
			uri:  "s3://my-bucket/path/to/prefix/",
			want: &ObjectURI{
				Provider: "s3",
				Bucket:   "my-bucket",
				Key:      "path/to/prefix/",
			},
		},
		{
			name: "bucket with glob pattern",
			uri:  "s3://my-bucket/data/2024/**/*.parquet",
			want: &ObjectURI{
				Provider: "s3",
				Bucket:   "my-bucket",
				Key:      "data/2024/",
				Pattern:  "data/2024/**/*.parquet",
			},
		},
		{
			name: "bucket with star pattern at root",
			uri:  "s3://my-bucket/*.txt",
			want: &ObjectURI{
				Provider: "s3",
				Bucket:   "my-bucket",
				Key:      "",
				Pattern:  "*.txt",
			},
		},
		{
			name: "bucket with question mark pattern",
			uri:  "s3://my-bucket/data/file?.csv",
			want: &ObjectURI{
				Provider: "s3",
				Bucket:   "my-bucket",
				Key:      "data/",
				Pattern:  "data/file?.csv",
			},
		},
		{
			name: "bucket with bracket pattern",
			uri:  "s3://my-bucket/data/file[0-9].csv",
			want: &ObjectURI{
				Provider: "s3",
				Bucket:   "my-bucket",
				Key:      "data/",
				Pattern:  "data/file[0-9].csv",
			},
		},
		{
			name: "bucket with brace pattern",
			uri:  "s3://my-bucket/data/{a,b,c}.csv",
			want: &ObjectURI{
				Provider: "s3",
				Bucket:   "my-bucket",
				Key:      "data/",
				Pattern:  "data/{a,b,c}.csv",
			},
		},
		{
			name: "uppercase S3 scheme",
			uri:  "S3://my-bucket/path",
			want: &ObjectURI{
				Provider: "s3",
				Bucket:   "my-bucket",
				Key:      "path",
			},
		},
		{
			name: "file key",
			uri:  "file://reports/2024/summary.csv",
			want: &ObjectURI{
				Provider: "file",
				Key:      "reports/2024/summary.csv",
			},
		},
		{
			name: "file with leading slash and glob",
			uri:  "file:///reports/**/*.csv",
			want: &ObjectURI{
				Provider: "file",
				Key:      "reports/",
				Pattern:  "reports/**/*.csv",
			},
		},
		{
			name: "file root",
			uri:  "file://",
			want: &ObjectURI{Provider: "file"},
		},
		{
			name:        "empty URI",
			uri:         "",
			wantErr:     ErrInvalidURI,
			errContains: "empty",
		},
		{
			name:        "missing scheme",
			uri:         "my-bucket/path",
			wantErr:     ErrInvalidURI,
			errContains: "missing scheme",
		},
		{
			name:        "unsupported scheme",
			uri:         "gcs://my-bucket/path",
			wantErr:     ErrUnsupportedProvider,
			errContains: "gcs",
		},
		{
			name:        "missing bucket",
			uri:         "s3:///path",
			wantErr:     ErrMissingBucket,
			errContains: "missing bucket",
		},
		{
			name:        "http scheme not supported",
			uri:         "http://example.com/bucket",
			wantErr:     ErrUnsupportedProvider,
			errContains: "http",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseURI(tt.uri)

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "expected %v, got %v", tt.wantErr, err)
				if tt.errContains != "" {
					assert.Contains(t, err.Error(), tt.errContains)
				}
				return
			}

			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, tt.want.Provider, got.Provider)
			assert.Equal(t, tt.want.Bucket, got.Bucket)
			assert.Equal(t, tt.want.Key, got.Key)
			assert.Equal(t, tt.want.Pattern, got.Pattern)
		})
	}
}

func TestObjectURI_Accessors(t *testing.T) {
	tests := []struct {
		uri     string
		str     string
		pattern bool
		prefix  bool
	}{
		{"s3://bucket", "s3://bucket/", false, true},
		{"s3://bucket/path/", "s3://bucket/path/", false, true},
		{"s3://bucket/path/file.txt", "s3://bucket/path/file.txt", false, false},
		{"s3://bucket/data/**/*.csv", "s3://bucket/data/**/*.csv", true, true},
		{"file://reports/a.csv", "file://reports/a.csv", false, false},
		{"file:///reports/", "file://reports/", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			u, err := ParseURI(tt.uri)
			require.NoError(t, err)
			assert.Equal(t, tt.str, u.String())
			assert.Equal(t, tt.pattern, u.IsPattern())
			assert.Equal(t, tt.prefix, u.IsPrefix())
		})
	}
}

func TestParseURI_Escapes(t *testing.T) {
	tests := []struct {
		uri     string
		key     string
		pattern string
	}{
		{`s3://bucket/data/file\*.txt`, "data/file*.txt", ""},
		{`s3://bucket/data/file\?.txt`, "data/file?.txt", ""},
		{`s3://bucket/data/\[backup\]/file.txt`, "data/[backup]/file.txt", ""},
		{`s3://bucket/data/file\*/*.txt`, "data/file*/", `data/file\*/*.txt`},
		{`file://logs/\{a,b\}/x.log`, "logs/{a,b}/x.log", ""},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			got, err := ParseURI(tt.uri)
			require.NoError(t, err)
			assert.Equal(t, tt.key, got.Key)
			assert.Equal(t, tt.pattern, got.Pattern)
		})
	}
}
