package lint

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Options configures a Linter.
type Options struct {
	// Quiet drops everything below error level.
	Quiet bool
	// Disabled lists rule names to skip.
	Disabled []string
}

// Linter applies rules to documentation files.
type Linter struct {
	opts  Options
	rules []Rule
}

// DefaultRules returns the built-in rule set.
func DefaultRules() []Rule {
	return []Rule{
		&FilenameRule{},
		&FrontmatterYAMLRule{},
		&FingerprintRule{},
		&RelativeLinksRule{},
		&NotebookRule{},
	}
}

// New creates a linter with the default rules minus any disabled ones.
func New(opts Options) *Linter {
	disabled := make(map[string]bool, len(opts.Disabled))
	for _, name := range opts.Disabled {
		disabled[name] = true
	}
	var rules []Rule
	for _, r := range DefaultRules() {
		if !disabled[r.Name()] {
			rules = append(rules, r)
		}
	}
	return &Linter{opts: opts, rules: rules}
}

// LintPath lints a file or every documentation file below a directory.
// Issues are ordered by path, then line.
func (l *Linter) LintPath(path string) (*Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	result := &Result{Root: path, Issues: []Issue{}}
	if !info.IsDir() {
		result.FilesTotal = 1
		err = l.lintFile(path, result)
	} else {
		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if p != path && strings.HasPrefix(d.Name(), ".") {
				if d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				if d.Name() == "node_modules" || d.Name() == "__pycache__" {
					return fs.SkipDir
				}
				return nil
			}
			if isIgnoredFile(d.Name()) || !(IsMarkdown(p) || IsNotebook(p) || IsAsset(p)) {
				return nil
			}
			result.FilesTotal++
			return l.lintFile(p, result)
		})
	}
	sort.SliceStable(result.Issues, func(i, j int) bool {
		a, b := result.Issues[i], result.Issues[j]
		if a.FilePath != b.FilePath {
			return a.FilePath < b.FilePath
		}
		return a.Line < b.Line
	})
	return result, err
}

func (l *Linter) lintFile(path string, result *Result) error {
	for _, rule := range l.rules {
		if !rule.AppliesTo(path) {
			continue
		}
		issues, err := rule.Check(path)
		if err != nil {
			return err
		}
		for _, issue := range issues {
			if l.opts.Quiet && issue.Severity != SeverityError {
				continue
			}
			result.Issues = append(result.Issues, issue)
		}
	}
	return nil
}

// isIgnoredFile skips repository boilerplate that does not follow page naming.
func isIgnoredFile(name string) bool {
	switch strings.ToUpper(name) {
	case "README.MD", "CONTRIBUTING.MD", "CHANGELOG.MD", "LICENSE.MD", "CODE_OF_CONDUCT.MD", "SECURITY.MD":
		return true
	}
	return false
}
