package match

import "strings"

// StaticPrefix returns the part of pattern before the first unescaped glob
// metacharacter, cut back to the last '/', with escapes removed.
//
//	"data/2024/**/*.parquet" -> "data/2024/"
//	"data/2024-*"            -> "data/"
//	"*.json"                 -> ""
//	"exact/file.txt"         -> "exact/file.txt"
//	"data/\[raw\]/*"         -> "data/[raw]/"
func StaticPrefix(pattern string) string {
	pattern = NormalizePattern(pattern)
	i := firstMeta(pattern)
	if i < 0 {
		return unescape(pattern)
	}
	cut := strings.LastIndex(pattern[:i], "/")
	if cut < 0 {
		return ""
	}
	return unescape(pattern[:cut+1])
}

// CommonPrefix returns the longest directory prefix shared by the static
// prefixes of every pattern. A single listing under it sees every key any of
// the patterns can match.
func CommonPrefix(patterns []string) string {
	if len(patterns) == 0 {
		return ""
	}
	common := StaticPrefix(patterns[0])
	for _, p := range patterns[1:] {
		common = sharedDir(common, StaticPrefix(p))
		if common == "" {
			return ""
		}
	}
	return common
}

// IsGlob reports whether pattern has any unescaped metacharacter.
func IsGlob(pattern string) bool {
	return firstMeta(pattern) >= 0
}

func sharedDir(a, b string) string {
	n := min(len(a), len(b))
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	if i == len(a) && i == len(b) {
		return a
	}
	// a fully contained in b only counts when a ends on a segment boundary
	if i == len(a) && strings.HasSuffix(a, "/") {
		return a
	}
	if i == len(b) && strings.HasSuffix(b, "/") {
		return b
	}
	cut := strings.LastIndex(a[:i], "/")
	if cut < 0 {
		return ""
	}
	return a[:cut+1]
}

func isEscapable(c byte) bool {
	return strings.IndexByte(`*?[]{}\`, c) >= 0
}

func firstMeta(pattern string) int {
	for i := 0; i < len(pattern); i++ {
		switch pattern[i] {
		case '\\':
			if i+1 < len(pattern) && isEscapable(pattern[i+1]) {
				i++
			}
		case '*', '?', '[', '{':
			return i
		}
	}
	return -1
}

func unescape(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && isEscapable(s[i+1]) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
