package filter

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrInvalidPattern is wrapped by every rule-compilation failure.
var ErrInvalidPattern = errors.New("invalid exclusion pattern")

// RuleSet is an ordered, read-only set of compiled exclusion rules. A path is
// excluded when any rule matches it. A nil *RuleSet excludes nothing and is
// safe for concurrent use.
type RuleSet struct {
	rules []rule
}

// Compile builds a RuleSet from user-supplied patterns. Patterns are regular
// expressions unless prefixed with "glob:". Empty patterns are ignored. The
// first invalid pattern aborts compilation.
func Compile(patterns []string) (*RuleSet, error) {
	rs := &RuleSet{}
	for _, p := range patterns {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if err := rs.Add(p); err != nil {
			return nil, err
		}
	}
	return rs, nil
}

// Add compiles and appends a single pattern. It must not be called once the
// set is shared with the engine.
func (rs *RuleSet) Add(pattern string) error {
	r, err := compileRule(pattern)
	if err != nil {
		return fmt.Errorf("%w %q: %w", ErrInvalidPattern, pattern, err)
	}
	rs.rules = append(rs.rules, r)
	return nil
}

// Len returns the number of rules.
func (rs *RuleSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.rules)
}

// Empty reports whether the set has no rules.
func (rs *RuleSet) Empty() bool {
	return rs.Len() == 0
}

// Patterns returns the original pattern strings in order.
func (rs *RuleSet) Patterns() []string {
	if rs == nil {
		return nil
	}
	out := make([]string, len(rs.rules))
	for i, r := range rs.rules {
		out[i] = r.source()
	}
	return out
}

// Excluded reports whether relPath, a path relative to the operation root as
// it appears in the destination tree, matches any rule.
func (rs *RuleSet) Excluded(relPath string) bool {
	if rs == nil || len(rs.rules) == 0 {
		return false
	}
	p := normalize(relPath)
	for _, r := range rs.rules {
		if r.match(p) {
			return true
		}
	}
	return false
}

// normalize converts relPath to a clean slash-separated form so patterns are
// portable across platforms and roots.
func normalize(relPath string) string {
	p := strings.ReplaceAll(relPath, "\\", "/")
	p = path.Clean(p)
	return strings.TrimPrefix(p, "./")
}
