package lint

import (
	"path/filepath"
	"strings"
)

// Severity indicates the importance level of a linting issue.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	// SeverityError fails the lint step.
	SeverityError
)

// String returns the human-readable severity name.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Issue is a single problem found in a file.
type Issue struct {
	FilePath    string
	Severity    Severity
	Rule        string
	Message     string
	Explanation string
	Fix         string
	Line        int // 0 for file-level issues
}

// Result contains all issues found during linting.
type Result struct {
	Root       string
	Issues     []Issue
	FilesTotal int
}

// HasErrors returns true if any error-level issues exist.
func (r *Result) HasErrors() bool { return r.ErrorCount() > 0 }

// ErrorCount returns the number of error-level issues.
func (r *Result) ErrorCount() int { return r.count(SeverityError) }

// WarningCount returns the number of warning-level issues.
func (r *Result) WarningCount() int { return r.count(SeverityWarning) }

func (r *Result) count(s Severity) int {
	n := 0
	for _, issue := range r.Issues {
		if issue.Severity == s {
			n++
		}
	}
	return n
}

// Rule is one check applied to files it declares itself responsible for.
type Rule interface {
	Name() string
	AppliesTo(filePath string) bool
	Check(filePath string) ([]Issue, error)
}

// IsMarkdown reports whether path is a markdown document.
func IsMarkdown(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return true
	}
	return false
}

// IsNotebook reports whether path is a Jupyter notebook.
func IsNotebook(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".ipynb")
}

// IsAsset reports whether path is an image asset referenced from docs.
func IsAsset(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp":
		return true
	}
	return false
}
