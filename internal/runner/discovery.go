package runner

import (
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// DefaultPatterns are the base-name patterns of test files. Matching is
// case-insensitive.
var DefaultPatterns = []string{
	"*.test.star",
	"test.*.star",
	"test*.star",
}

// DefaultExclude lists directory names never descended into.
var DefaultExclude = []string{
	"node_modules",
	"vendor",
	".git",
}

// DiscoverOptions controls test file discovery.
type DiscoverOptions struct {
	// Patterns overrides DefaultPatterns.
	Patterns []string

	// Exclude overrides DefaultExclude.
	Exclude []string
}

func (o DiscoverOptions) patterns() []string {
	if len(o.Patterns) == 0 {
		return DefaultPatterns
	}
	return o.Patterns
}

func (o DiscoverOptions) exclude() []string {
	if o.Exclude == nil {
		return DefaultExclude
	}
	return o.Exclude
}

// Discover walks root and returns the test files below it in lexical
// walk order.
func Discover(root string, opts DiscoverOptions) ([]string, error) {
	exclude := opts.exclude()

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && slices.Contains(exclude, d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if opts.IsTestFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// IsTestFile reports whether the base name of path matches a test pattern.
func (o DiscoverOptions) IsTestFile(path string) bool {
	base := strings.ToLower(filepath.Base(path))
	for _, pattern := range o.patterns() {
		if matched, _ := filepath.Match(strings.ToLower(pattern), base); matched {
			return true
		}
	}
	return false
}

// SplitTestName splits a "file::test" argument. name is empty when arg
// carries no test selector.
func SplitTestName(arg string) (path, name string) {
	if i := strings.Index(arg, "::"); i >= 0 {
		return arg[:i], arg[i+2:]
	}
	return arg, ""
}

// ExpandPaths turns command-line arguments into test files. Arguments may
// be directories, files, glob patterns or file::test selectors. The
// returned map holds the selected test names per file; a file that is also
// named as a whole runs every test.
func ExpandPaths(args []string, opts DiscoverOptions) ([]string, map[string][]string, error) {
	var files []string
	seen := make(map[string]bool)
	add := func(path string) {
		if !seen[path] {
			seen[path] = true
			files = append(files, path)
		}
	}
	names := make(map[string][]string)
	whole := make(map[string]bool)

	for _, arg := range args {
		path, name := SplitTestName(arg)
		if name != "" {
			add(path)
			names[path] = append(names[path], name)
			continue
		}

		if strings.ContainsAny(path, "*?[") {
			matches, err := filepath.Glob(path)
			if err != nil {
				return nil, nil, err
			}
			for _, m := range matches {
				add(m)
				whole[m] = true
			}
			continue
		}

		info, err := os.Stat(path)
		if err != nil {
			return nil, nil, err
		}
		if !info.IsDir() {
			add(path)
			whole[path] = true
			continue
		}
		found, err := Discover(path, opts)
		if err != nil {
			return nil, nil, err
		}
		for _, f := range found {
			add(f)
			whole[f] = true
		}
	}
	for path := range whole {
		delete(names, path)
	}
	return files, names, nil
}
