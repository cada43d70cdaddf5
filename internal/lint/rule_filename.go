package lint

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var validFilename = regexp.MustCompile(`^[a-z0-9\-_.]+$`)

// FilenameRule enforces URL-safe file names: lowercase, no spaces, only
// [a-z0-9-_.], NFC normalized, no leading or trailing separators.
type FilenameRule struct{}

func (r *FilenameRule) Name() string { return "filename-conventions" }

func (r *FilenameRule) AppliesTo(filePath string) bool {
	return IsMarkdown(filePath) || IsNotebook(filePath) || IsAsset(filePath)
}

func (r *FilenameRule) Check(filePath string) ([]Issue, error) {
	name := filepath.Base(filePath)
	suggested := SuggestFilename(name)
	issue := func(msg, explanation string) Issue {
		return Issue{
			FilePath:    filePath,
			Severity:    SeverityError,
			Rule:        r.Name(),
			Message:     msg,
			Explanation: explanation,
			Fix:         "Rename to: " + suggested,
		}
	}

	var issues []Issue
	if !norm.NFC.IsNormalString(name) {
		issues = append(issues, issue("Filename is not NFC normalized",
			"Decomposed unicode names produce different URLs on macOS and Linux."))
	}
	if strings.IndexFunc(name, unicode.IsUpper) >= 0 {
		issues = append(issues, issue("Filename contains uppercase letters",
			"Rendered URLs are case-sensitive on most hosts; mixed case breaks links across platforms."))
	}
	if strings.ContainsAny(name, " \t") {
		issues = append(issues, issue("Filename contains spaces",
			"Spaces become %20 in page URLs and break cross references."))
	}
	if bad := invalidChars(name); len(bad) > 0 {
		issues = append(issues, issue("Filename contains special characters: "+strings.Join(bad, ", "),
			"Allowed characters: [a-z0-9-_.]"))
	}
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	if strings.HasPrefix(stem, "-") || strings.HasPrefix(stem, "_") ||
		strings.HasSuffix(stem, "-") || strings.HasSuffix(stem, "_") {
		i := issue("Filename has leading or trailing hyphens/underscores",
			"Leading or trailing separators create malformed page slugs.")
		i.Severity = SeverityWarning
		issues = append(issues, i)
	}
	return issues, nil
}

func invalidChars(name string) []string {
	lower := strings.ToLower(strings.ReplaceAll(name, " ", ""))
	if validFilename.MatchString(lower) {
		return nil
	}
	seen := map[rune]bool{}
	var out []string
	for _, c := range lower {
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '-' || c == '_' || c == '.' {
			continue
		}
		if !seen[c] {
			seen[c] = true
			out = append(out, string(c))
		}
	}
	return out
}

// SuggestFilename returns the closest name that passes FilenameRule.
func SuggestFilename(name string) string {
	name = norm.NFC.String(strings.ToLower(name))
	var b strings.Builder
	for _, c := range name {
		switch {
		case (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_' || c == '.':
			b.WriteRune(c)
		case c == '-' || c == ' ' || c == '\t':
			b.WriteRune('-')
		}
	}
	out := b.String()
	ext := filepath.Ext(out)
	stem := strings.Trim(strings.TrimSuffix(out, ext), "-_")
	for strings.Contains(stem, "--") {
		stem = strings.ReplaceAll(stem, "--", "-")
	}
	return stem + ext
}
