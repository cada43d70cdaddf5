package lint

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Formatter writes a lint result.
type Formatter interface {
	Format(w io.Writer, result *Result) error
}

// NewFormatter returns the formatter for "json" or, for anything else, text.
func NewFormatter(format string) Formatter {
	if strings.EqualFold(format, "json") {
		return JSONFormatter{}
	}
	return TextFormatter{}
}

// TextFormatter writes one block per issue followed by a summary.
type TextFormatter struct{}

func (TextFormatter) Format(w io.Writer, result *Result) error {
	ew := &errWriter{w: w}
	ew.printf("Linting documentation in: %s\n\n", result.Root)
	for _, issue := range result.Issues {
		loc := relPath(result.Root, issue.FilePath)
		if issue.Line > 0 {
			loc = fmt.Sprintf("%s:%d", loc, issue.Line)
		}
		ew.printf("%s %s [%s]\n", issue.Severity, loc, issue.Rule)
		ew.printf("  %s\n", issue.Message)
		if issue.Explanation != "" {
			for _, line := range strings.Split(strings.TrimSpace(issue.Explanation), "\n") {
				ew.printf("  %s\n", line)
			}
		}
		if issue.Fix != "" {
			ew.printf("  Fix: %s\n", issue.Fix)
		}
		ew.printf("\n")
	}
	ew.printf("%d files scanned, %d error%s, %d warning%s\n",
		result.FilesTotal,
		result.ErrorCount(), plural(result.ErrorCount()),
		result.WarningCount(), plural(result.WarningCount()))
	return ew.err
}

// JSONOutput is the JSON document written by JSONFormatter.
type JSONOutput struct {
	Path         string      `json:"path"`
	FilesTotal   int         `json:"files_total"`
	ErrorCount   int         `json:"error_count"`
	WarningCount int         `json:"warning_count"`
	Issues       []JSONIssue `json:"issues"`
}

// JSONIssue is one issue in JSONOutput.
type JSONIssue struct {
	FilePath    string `json:"file_path"`
	Severity    string `json:"severity"`
	Rule        string `json:"rule"`
	Message     string `json:"message"`
	Explanation string `json:"explanation,omitempty"`
	Fix         string `json:"fix,omitempty"`
	Line        int    `json:"line,omitempty"`
}

// JSONFormatter writes JSONOutput.
type JSONFormatter struct{}

func (JSONFormatter) Format(w io.Writer, result *Result) error {
	out := JSONOutput{
		Path:         result.Root,
		FilesTotal:   result.FilesTotal,
		ErrorCount:   result.ErrorCount(),
		WarningCount: result.WarningCount(),
		Issues:       make([]JSONIssue, 0, len(result.Issues)),
	}
	for _, issue := range result.Issues {
		out.Issues = append(out.Issues, JSONIssue{
			FilePath:    relPath(result.Root, issue.FilePath),
			Severity:    issue.Severity.String(),
			Rule:        issue.Rule,
			Message:     issue.Message,
			Explanation: issue.Explanation,
			Fix:         issue.Fix,
			Line:        issue.Line,
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func relPath(root, p string) string {
	if rel, err := filepath.Rel(root, p); err == nil && !strings.HasPrefix(rel, "..") && rel != "." {
		return filepath.ToSlash(rel)
	}
	return p
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
