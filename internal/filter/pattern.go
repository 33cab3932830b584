package filter

import (
	"errors"
	"path"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

const globPrefix = "glob:"

// rule is one compiled exclusion pattern.
type rule interface {
	match(relPath string) bool
	source() string
}

// regexRule matches when the expression occurs anywhere in the relative path.
type regexRule struct {
	re       *regexp.Regexp
	original string
}

func (r regexRule) match(relPath string) bool { return r.re.MatchString(relPath) }
func (r regexRule) source() string            { return r.original }

// globRule matches a doublestar glob. Patterns without a slash match the
// base name at any depth; patterns with a slash are anchored to the root.
type globRule struct {
	pattern  string
	original string
	basename bool
}

func (g globRule) match(relPath string) bool {
	target := relPath
	if g.basename {
		target = path.Base(relPath)
	}
	ok, err := doublestar.Match(g.pattern, target)
	return err == nil && ok
}

func (g globRule) source() string { return g.original }

func compileRule(pattern string) (rule, error) {
	if glob, ok := strings.CutPrefix(pattern, globPrefix); ok {
		glob = strings.TrimPrefix(glob, "/")
		if glob == "" {
			return nil, errors.New("empty glob")
		}
		if !doublestar.ValidatePattern(glob) {
			return nil, errors.New("malformed glob")
		}
		return globRule{
			pattern:  glob,
			original: pattern,
			basename: !strings.Contains(glob, "/"),
		}, nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	return regexRule{re: re, original: pattern}, nil
}
