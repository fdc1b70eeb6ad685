package file

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/nimbusfs/pkg/provider"
)

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	p, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)
	return p
}

func put(t *testing.T, p *Provider, key, body string) {
	t.Helper()
	require.NoError(t, p.PutObject(context.Background(), key, strings.NewReader(body), int64(len(body))))
}

func TestConfig_Validate(t *testing.T) {
	assert.Error(t, Config{}.Validate())
	assert.Error(t, Config{BaseDir: "  "}.Validate())
	assert.NoError(t, Config{BaseDir: "/tmp"}.Validate())
}

func TestProvider_PutHeadGet(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)
	put(t, p, "data/a.txt", "hello")

	meta, err := p.Head(ctx, "data/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "data/a.txt", meta.Key)
	assert.Equal(t, int64(5), meta.Size)

	body, size, err := p.GetObject(ctx, "data/a.txt")
	require.NoError(t, err)
	defer body.Close()
	b, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)
	assert.Equal(t, "hello", string(b))
}

func TestProvider_HeadMissingCarriesStatus(t *testing.T) {
	p := newTestProvider(t)

	_, err := p.Head(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, provider.IsNotFound(err))

	re, ok := provider.AsRemote(err)
	require.True(t, ok)
	assert.Equal(t, 404, re.StatusCode)
	assert.Equal(t, "NoSuchKey", re.Code)
}

func TestProvider_DirectoryMarkers(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)
	put(t, p, "dir/", "")
	put(t, p, "dir/sub/file", "x")

	_, err := os.Stat(filepath.Join(p.baseDir, "dir", DirMarkerName))
	require.NoError(t, err)

	res, err := p.List(ctx, provider.ListOptions{Prefix: "dir/", Delimiter: "/"})
	require.NoError(t, err)
	require.Len(t, res.Objects, 1)
	assert.Equal(t, "dir/", res.Objects[0].Key)
	assert.Zero(t, res.Objects[0].Size)
	assert.Equal(t, []string{"dir/sub/"}, res.CommonPrefixes)

	meta, err := p.Head(ctx, "dir/")
	require.NoError(t, err)
	assert.Equal(t, "dir/", meta.Key)
}

func TestProvider_ListPaginates(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		put(t, p, "p/"+k, k)
	}

	var got []string
	token := ""
	for {
		res, err := p.List(ctx, provider.ListOptions{Prefix: "p/", MaxKeys: 2, ContinuationToken: token})
		require.NoError(t, err)
		for _, o := range res.Objects {
			got = append(got, o.Key)
		}
		if !res.IsTruncated {
			break
		}
		token = res.ContinuationToken
	}
	assert.Equal(t, []string{"p/a", "p/b", "p/c", "p/d", "p/e"}, got)
}

func TestProvider_DeleteObjectPrunesEmptyDirs(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)
	put(t, p, "x/y/z", "1")

	require.NoError(t, p.DeleteObject(ctx, "x/y/z"))
	_, err := os.Stat(filepath.Join(p.baseDir, "x"))
	assert.True(t, os.IsNotExist(err))

	// Missing keys delete cleanly.
	require.NoError(t, p.DeleteObject(ctx, "x/y/z"))
}

func TestProvider_DeleteObjects(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)
	put(t, p, "k1", "1")
	put(t, p, "k2", "2")

	res, err := p.DeleteObjects(ctx, []string{"k1", "k2"}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"k1", "k2"}, res.Deleted)
	assert.Empty(t, res.Errors)

	res, err = p.DeleteObjects(ctx, []string{"k1"}, true)
	require.NoError(t, err)
	assert.Empty(t, res.Deleted)
}

func TestProvider_HeadBucket(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)
	require.NoError(t, p.HeadBucket(ctx))

	missing, err := New(Config{BaseDir: filepath.Join(p.baseDir, "nope")})
	require.NoError(t, err)
	err = missing.HeadBucket(ctx)
	assert.True(t, provider.IsBucketNotFound(err))
}

func TestProvider_RejectsTraversal(t *testing.T) {
	p := newTestProvider(t)
	full, err := p.fullPath("../../etc/passwd")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(full, p.baseDir))
}

func TestProvider_PathThroughFileIsMissing(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)
	put(t, p, "reports", "not a directory")

	_, err := p.Head(ctx, "reports/2026")
	require.Error(t, err)
	assert.True(t, provider.IsNotFound(err))

	res, err := p.List(ctx, provider.ListOptions{Prefix: "reports/2026/"})
	require.NoError(t, err)
	assert.Empty(t, res.Objects)

	assert.NoError(t, p.DeleteObject(ctx, "reports/2026/x"))
}
