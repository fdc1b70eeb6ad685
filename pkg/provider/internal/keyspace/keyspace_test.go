package keyspace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/nimbusfs/pkg/provider"
)

func objs(keys ...string) []provider.ObjectSummary {
	out := make([]provider.ObjectSummary, 0, len(keys))
	for _, k := range keys {
		out = append(out, provider.ObjectSummary{Key: k})
	}
	Sort(out)
	return out
}

func keysOf(res *provider.ListResult) []string {
	var out []string
	for _, o := range res.Objects {
		out = append(out, o.Key)
	}
	return out
}

func TestPage_Flat(t *testing.T) {
	all := objs("b", "a", "c/d", "c/e")
	res := Page(all, provider.ListOptions{})
	assert.Equal(t, []string{"a", "b", "c/d", "c/e"}, keysOf(res))
	assert.Empty(t, res.CommonPrefixes)
	assert.False(t, res.IsTruncated)
}

func TestPage_Delimiter(t *testing.T) {
	all := objs("dir/", "dir/a", "dir/sub/x", "dir/sub/y", "dir2/z", "top")

	tests := []struct {
		name     string
		prefix   string
		keys     []string
		prefixes []string
	}{
		{"root", "", []string{"top"}, []string{"dir/", "dir2/"}},
		{"dir", "dir/", []string{"dir/", "dir/a"}, []string{"dir/sub/"}},
		{"sub", "dir/sub/", []string{"dir/sub/x", "dir/sub/y"}, []string{}},
		{"missing", "nope/", nil, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Page(all, provider.ListOptions{Prefix: tt.prefix, Delimiter: "/"})
			assert.Equal(t, tt.keys, keysOf(res))
			assert.Equal(t, tt.prefixes, res.CommonPrefixes)
		})
	}
}

func TestPage_ContinuationSkipsRolledUpKeys(t *testing.T) {
	all := objs("a/1", "a/2", "a/3", "b", "c/1", "d")

	first := Page(all, provider.ListOptions{Delimiter: "/", MaxKeys: 1})
	require.True(t, first.IsTruncated)
	assert.Equal(t, []string{"a/"}, first.CommonPrefixes)

	var seen []string
	seen = append(seen, first.CommonPrefixes...)
	token := first.ContinuationToken
	for token != "" {
		page := Page(all, provider.ListOptions{Delimiter: "/", MaxKeys: 1, ContinuationToken: token})
		seen = append(seen, keysOf(page)...)
		seen = append(seen, page.CommonPrefixes...)
		token = page.ContinuationToken
	}
	assert.Equal(t, []string{"a/", "b", "c/", "d"}, seen)
}

func TestPage_ExactPageIsNotTruncated(t *testing.T) {
	res := Page(objs("a", "b"), provider.ListOptions{MaxKeys: 2})
	assert.False(t, res.IsTruncated)
	assert.Empty(t, res.ContinuationToken)
}
