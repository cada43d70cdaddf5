package lint

import (
	"fmt"
	"os"
	"strings"

	"github.com/inful/mdfp"
)

// FrontmatterYAMLRule requires front matter, when present, to be closed and valid YAML.
type FrontmatterYAMLRule struct{}

func (r *FrontmatterYAMLRule) Name() string { return "frontmatter-yaml" }

func (r *FrontmatterYAMLRule) AppliesTo(filePath string) bool { return IsMarkdown(filePath) }

func (r *FrontmatterYAMLRule) Check(filePath string) ([]Issue, error) {
	// #nosec G304 -- filePath comes from the lint walk.
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	doc, err := splitDocument(data)
	if err != nil {
		//nolint:nilerr // reported as an issue
		return []Issue{{
			FilePath: filePath, Severity: SeverityError, Rule: r.Name(), Line: 1,
			Message: err.Error(),
			Fix:     "Add a closing --- line after the front matter",
		}}, nil
	}
	if !doc.has {
		return nil, nil
	}
	if _, err := parseFrontmatter(doc.frontmatter); err != nil {
		return []Issue{{
			FilePath: filePath, Severity: SeverityError, Rule: r.Name(), Line: 2,
			Message:     "Invalid YAML front matter",
			Explanation: err.Error(),
		}}, nil
	}
	return nil, nil
}

// FingerprintRule checks a declared content fingerprint against the document.
// Documents without a fingerprint field are not checked.
type FingerprintRule struct{}

func (r *FingerprintRule) Name() string { return "frontmatter-fingerprint" }

func (r *FingerprintRule) AppliesTo(filePath string) bool { return IsMarkdown(filePath) }

func (r *FingerprintRule) Check(filePath string) ([]Issue, error) {
	// #nosec G304 -- filePath comes from the lint walk.
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	doc, err := splitDocument(data)
	if err != nil || !doc.has {
		//nolint:nilerr // structural problems belong to frontmatter-yaml
		return nil, nil
	}
	fields, err := parseFrontmatter(doc.frontmatter)
	if err != nil {
		//nolint:nilerr // structural problems belong to frontmatter-yaml
		return nil, nil
	}
	raw, ok := fields[mdfp.FingerprintField]
	if !ok {
		return nil, nil
	}
	current, _ := raw.(string)
	expected, err := Fingerprint(fields, doc.body)
	if err != nil {
		return nil, fmt.Errorf("compute fingerprint: %w", err)
	}
	if strings.TrimSpace(current) == expected {
		return nil, nil
	}
	return []Issue{{
		FilePath:    filePath,
		Severity:    SeverityWarning,
		Rule:        r.Name(),
		Message:     "Content fingerprint does not match document",
		Explanation: "The document changed since its fingerprint was recorded.",
		Fix:         fmt.Sprintf("Set %s: %s", mdfp.FingerprintField, expected),
	}}, nil
}
