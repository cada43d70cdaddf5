package lint

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// RelativeLinksRule requires relative links and images in markdown to point
// at files that exist.
type RelativeLinksRule struct{}

func (r *RelativeLinksRule) Name() string { return "markdown-relative-links" }

func (r *RelativeLinksRule) AppliesTo(filePath string) bool { return IsMarkdown(filePath) }

func (r *RelativeLinksRule) Check(filePath string) ([]Issue, error) {
	// #nosec G304 -- filePath comes from the lint walk.
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	doc, err := splitDocument(data)
	if err != nil {
		//nolint:nilerr // reported by frontmatter-yaml
		return nil, nil
	}

	var issues []Issue
	for _, l := range markdownLinks(doc.body) {
		target, ok := localTarget(l.dest)
		if !ok {
			continue
		}
		resolved := filepath.Join(filepath.Dir(filePath), filepath.FromSlash(target))
		if linkTargetExists(resolved) {
			continue
		}
		issues = append(issues, Issue{
			FilePath: filePath,
			Severity: SeverityError,
			Rule:     r.Name(),
			Line:     doc.bodyLine + l.line - 1,
			Message:  "Broken relative link: " + l.dest,
			Fix:      "Point the link at an existing file or remove it",
		})
	}
	return issues, nil
}

type mdLink struct {
	dest string
	line int
}

// markdownLinks returns link and image destinations with their 1-based line in body.
func markdownLinks(body []byte) []mdLink {
	root := goldmark.New().Parser().Parse(text.NewReader(body))
	var out []mdLink
	_ = gmast.Walk(root, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		var dest []byte
		switch node := n.(type) {
		case *gmast.Link:
			dest = node.Destination
		case *gmast.Image:
			dest = node.Destination
		default:
			return gmast.WalkContinue, nil
		}
		out = append(out, mdLink{dest: string(dest), line: lineOf(n, body)})
		return gmast.WalkContinue, nil
	})
	return out
}

// lineOf finds the line of an inline node through its nearest block ancestor.
func lineOf(n gmast.Node, body []byte) int {
	for p := n; p != nil; p = p.Parent() {
		if p.Type() == gmast.TypeBlock && p.Lines().Len() > 0 {
			start := p.Lines().At(0).Start
			return bytes.Count(body[:start], []byte("\n")) + 1
		}
	}
	return 1
}

// localTarget returns the file path part of a relative destination, or false
// for anything that is not a relative file reference.
func localTarget(dest string) (string, bool) {
	dest = strings.TrimSpace(dest)
	if dest == "" || strings.HasPrefix(dest, "#") || strings.HasPrefix(dest, "/") ||
		strings.HasPrefix(dest, "//") || strings.Contains(dest, "{{") {
		return "", false
	}
	u, err := url.Parse(dest)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "", false
	}
	p, err := url.PathUnescape(u.Path)
	if err != nil || p == "" {
		return "", false
	}
	return p, true
}

// linkTargetExists accepts the path itself or the source a directory URL renders from.
func linkTargetExists(resolved string) bool {
	candidates := []string{resolved}
	trimmed := strings.TrimSuffix(resolved, string(filepath.Separator))
	candidates = append(candidates,
		trimmed+".md",
		trimmed+".ipynb",
		filepath.Join(trimmed, "index.md"),
		filepath.Join(trimmed, "index.ipynb"),
	)
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return true
		}
	}
	return false
}
