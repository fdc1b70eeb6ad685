// Package match selects object keys with doublestar glob patterns. It is
// used by pattern deletes to narrow a listing to the keys that should go.
package match

import (
	"errors"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

var (
	ErrNoIncludes     = errors.New("at least one include pattern is required")
	ErrInvalidPattern = errors.New("invalid glob pattern")
)

// PatternError names the pattern that failed to compile.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return "pattern " + e.Pattern + ": " + e.Err.Error()
}

func (e *PatternError) Unwrap() error { return e.Err }

// Config configures a Matcher.
type Config struct {
	Includes []string
	Excludes []string

	// IncludeHidden matches keys with a segment starting with '.'.
	IncludeHidden bool

	// IncludeMarkers matches directory markers (keys ending in "/").
	IncludeMarkers bool
}

// Matcher reports whether a key is selected. It is immutable after New and
// safe for concurrent use.
type Matcher struct {
	includes       []string
	excludes       []string
	prefix         string
	includeHidden  bool
	includeMarkers bool
}

// New validates every pattern and derives the narrowest listing prefix that
// covers all includes.
func New(cfg Config) (*Matcher, error) {
	if len(cfg.Includes) == 0 {
		return nil, ErrNoIncludes
	}
	includes, err := compile(cfg.Includes)
	if err != nil {
		return nil, err
	}
	excludes, err := compile(cfg.Excludes)
	if err != nil {
		return nil, err
	}
	return &Matcher{
		includes:       includes,
		excludes:       excludes,
		prefix:         CommonPrefix(includes),
		includeHidden:  cfg.IncludeHidden,
		includeMarkers: cfg.IncludeMarkers,
	}, nil
}

func compile(raw []string) ([]string, error) {
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimPrefix(NormalizePattern(p), "/")
		if !doublestar.ValidatePattern(p) {
			return nil, &PatternError{Pattern: p, Err: ErrInvalidPattern}
		}
		out = append(out, p)
	}
	return out, nil
}

// Match reports whether key matches an include and no exclude.
func (m *Matcher) Match(key string) bool {
	if !m.includeMarkers && strings.HasSuffix(key, "/") {
		return false
	}
	if !m.includeHidden && IsHidden(key) {
		return false
	}
	if !anyMatch(m.includes, key) {
		return false
	}
	return !anyMatch(m.excludes, key)
}

// Prefix is the listing prefix every include shares. Empty means the whole
// bucket has to be listed.
func (m *Matcher) Prefix() string { return m.prefix }

func (m *Matcher) Includes() []string { return append([]string(nil), m.includes...) }

func (m *Matcher) Excludes() []string { return append([]string(nil), m.excludes...) }

func anyMatch(patterns []string, key string) bool {
	for _, p := range patterns {
		// Patterns are validated in New, so Match cannot fail here.
		if ok, _ := doublestar.Match(p, key); ok {
			return true
		}
	}
	return false
}

// NormalizePattern turns unescaped backslashes into '/' and leaves escaped
// glob metacharacters alone, so "logs\2024\*.gz" and "logs/2024/*.gz" agree.
func NormalizePattern(pattern string) string {
	if !strings.ContainsRune(pattern, '\\') {
		return pattern
	}
	var b strings.Builder
	b.Grow(len(pattern))
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		if i+1 < len(pattern) && isEscapable(pattern[i+1]) {
			b.WriteByte('\\')
			b.WriteByte(pattern[i+1])
			i++
			continue
		}
		b.WriteByte('/')
	}
	return b.String()
}

// IsHidden reports whether any segment of key starts with a dot.
func IsHidden(key string) bool {
	for _, seg := range strings.Split(key, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}
