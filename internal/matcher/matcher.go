// Package matcher selects names with glob or regex patterns. The CLI uses it
// to let resource and workflow arguments name several entries at once.
package matcher

import (
	"path"
	"regexp"
	"strings"

	"github.com/agentstation/shopfloor/pkg/errors"
)

// PatternType represents the type of pattern matching to use.
type PatternType int

const (
	// Literal matches the whole input exactly.
	Literal PatternType = iota
	// Glob uses shell-style patterns (*, ?, []).
	Glob
	// Regex uses regular expressions, anchored at both ends.
	Regex
	// Auto picks one of the above from the pattern's text.
	Auto
)

// String returns the pattern type name.
func (pt PatternType) String() string {
	switch pt {
	case Literal:
		return "literal"
	case Glob:
		return "glob"
	case Regex:
		return "regex"
	case Auto:
		return "auto"
	default:
		return "unknown"
	}
}

// Matcher reports whether names match a compiled pattern.
type Matcher interface {
	Match(name string) bool
	Pattern() string
	Type() PatternType
}

type matcher struct {
	pattern     string
	patternType PatternType
	compiled    *regexp.Regexp
}

// New compiles pattern. With Auto, a "re:" prefix selects Regex, glob
// metacharacters select Glob and anything else is Literal.
func New(patternType PatternType, pattern string) (Matcher, error) {
	if pattern == "" {
		return nil, errors.NewValidationError("pattern", pattern, "pattern is required")
	}
	m := &matcher{pattern: pattern, patternType: patternType}
	if patternType == Auto {
		m.patternType, m.pattern = detect(pattern)
	}

	switch m.patternType {
	case Literal:
	case Glob:
		if _, err := path.Match(m.pattern, ""); err != nil {
			return nil, errors.NewValidationError("pattern", pattern, "invalid glob: "+err.Error())
		}
	case Regex:
		expr := m.pattern
		if !strings.HasPrefix(expr, "^") {
			expr = "^(?:" + expr + ")"
		}
		if !strings.HasSuffix(expr, "$") {
			expr += "$"
		}
		compiled, err := regexp.Compile(expr)
		if err != nil {
			return nil, errors.NewValidationError("pattern", pattern, "invalid regex: "+err.Error())
		}
		m.compiled = compiled
	default:
		return nil, errors.NewValidationError("type", patternType.String(), "unsupported pattern type")
	}
	return m, nil
}

func (m *matcher) Match(name string) bool {
	switch m.patternType {
	case Literal:
		return name == m.pattern
	case Glob:
		ok, _ := path.Match(m.pattern, name)
		return ok
	case Regex:
		return m.compiled.MatchString(name)
	}
	return false
}

func (m *matcher) Pattern() string   { return m.pattern }
func (m *matcher) Type() PatternType { return m.patternType }

func detect(pattern string) (PatternType, string) {
	if rest, ok := strings.CutPrefix(pattern, "re:"); ok {
		return Regex, rest
	}
	if IsGlobPattern(pattern) {
		return Glob, pattern
	}
	return Literal, pattern
}

// IsGlobPattern checks if a string contains glob metacharacters.
func IsGlobPattern(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[")
}

// Expand resolves patterns against names in the order names are given.
// Each name appears once. A pattern that matches nothing is returned as a
// literal entry so the caller can report it as unknown.
func Expand(names []string, patterns ...string) ([]string, error) {
	var (
		out  []string
		seen = make(map[string]bool)
	)
	for _, p := range patterns {
		m, err := New(Auto, p)
		if err != nil {
			return nil, err
		}
		hit := false
		for _, name := range names {
			if !m.Match(name) {
				continue
			}
			hit = true
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
		if !hit && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out, nil
}
