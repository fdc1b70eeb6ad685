// Package keyspace pages a sorted, in-process key set the way an object
// store answers a delimiter listing. It backs the local and in-memory
// providers.
package keyspace

import (
	"sort"
	"strings"

	"github.com/3leaps/nimbusfs/pkg/provider"
)

// DefaultMaxKeys is used when ListOptions.MaxKeys is not positive.
const DefaultMaxKeys = 1000

const (
	tokenKey    = "k:"
	tokenPrefix = "p:"
)

// Page returns one page of objects (sorted by key) matching opts.
//
// Continuation tokens are opaque to callers. They remember whether the last
// entry was an object or a common prefix so a continuation never re-emits
// keys rolled up under an already returned prefix.
func Page(objects []provider.ObjectSummary, opts provider.ListOptions) *provider.ListResult {
	maxKeys := opts.MaxKeys
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}

	after, rolled := decodeToken(opts.ContinuationToken)
	start := sort.Search(len(objects), func(i int) bool { return objects[i].Key >= opts.Prefix })

	res := &provider.ListResult{Objects: []provider.ObjectSummary{}, CommonPrefixes: []string{}}
	emitted := 0
	lastToken := ""
	lastPrefix := ""

	for _, obj := range objects[start:] {
		if !strings.HasPrefix(obj.Key, opts.Prefix) {
			break
		}
		if after != "" {
			if obj.Key <= after && !rolled {
				continue
			}
			if rolled && (obj.Key <= after || strings.HasPrefix(obj.Key, after)) {
				continue
			}
		}

		cp := ""
		if opts.Delimiter != "" {
			rest := obj.Key[len(opts.Prefix):]
			if i := strings.Index(rest, opts.Delimiter); i >= 0 {
				cp = opts.Prefix + rest[:i+len(opts.Delimiter)]
			}
		}
		if cp != "" && cp == lastPrefix {
			continue
		}

		if emitted == maxKeys {
			res.IsTruncated = true
			res.ContinuationToken = lastToken
			return res
		}

		if cp != "" {
			res.CommonPrefixes = append(res.CommonPrefixes, cp)
			lastPrefix = cp
			lastToken = tokenPrefix + cp
		} else {
			res.Objects = append(res.Objects, obj)
			lastToken = tokenKey + obj.Key
		}
		emitted++
	}
	return res
}

// Sort orders objects by key, as every listing expects.
func Sort(objects []provider.ObjectSummary) {
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
}

func decodeToken(token string) (after string, rolled bool) {
	switch {
	case strings.HasPrefix(token, tokenPrefix):
		return strings.TrimPrefix(token, tokenPrefix), true
	case strings.HasPrefix(token, tokenKey):
		return strings.TrimPrefix(token, tokenKey), false
	default:
		return token, false
	}
}
