package sync

import (
	"runtime"
	"strings"

	"github.com/gobwas/glob"

	"github.com/Irvise/gprbuild/pkg/errors"
)

// caseInsensitive is whether file names on the host filesystem are compared
// without regard to case.
var caseInsensitive = runtime.GOOS == "windows" || runtime.GOOS == "darwin"

// PatternSet is a set of compiled shell-style glob patterns. Patterns are
// matched against a single file or directory name, so `*` never has to cross
// a path separator.
type PatternSet struct {
	patterns []string
	globs    []glob.Glob
}

// CompilePatterns compiles `patterns` into a PatternSet.
func CompilePatterns(patterns []string) (PatternSet, error) {
	set := PatternSet{}
	for _, p := range patterns {
		g, err := glob.Compile(normalizeName(p))
		if err != nil {
			return PatternSet{}, errors.WithContext(err, "compile pattern "+p)
		}
		set.patterns = append(set.patterns, p)
		set.globs = append(set.globs, g)
	}
	return set, nil
}

// MustCompilePatterns is like CompilePatterns but panics if a pattern is
// invalid. It's meant for built-in pattern lists.
func MustCompilePatterns(patterns []string) PatternSet {
	set, err := CompilePatterns(patterns)
	if err != nil {
		panic(err)
	}
	return set
}

// Match returns whether `name` matches at least one pattern in the set.
func (set PatternSet) Match(name string) bool {
	name = normalizeName(name)
	for _, g := range set.globs {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// Empty returns whether the set contains no patterns.
func (set PatternSet) Empty() bool {
	return len(set.globs) == 0
}

// Patterns returns the source patterns of the set.
func (set PatternSet) Patterns() []string {
	return append([]string(nil), set.patterns...)
}

// Union returns a set containing the patterns of both sets.
func (set PatternSet) Union(other PatternSet) PatternSet {
	return PatternSet{
		patterns: append(append([]string(nil), set.patterns...), other.patterns...),
		globs:    append(append([]glob.Glob(nil), set.globs...), other.globs...),
	}
}

func normalizeName(name string) string {
	if caseInsensitive {
		return strings.ToLower(name)
	}
	return name
}
