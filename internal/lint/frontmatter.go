package lint

import (
	"bytes"
	"errors"
	"strings"

	"github.com/inful/mdfp"
	"gopkg.in/yaml.v3"
)

var errUnclosedFrontmatter = errors.New("front matter opened with --- but never closed")

// document is a markdown file split into front matter and body.
type document struct {
	frontmatter []byte
	body        []byte
	has         bool
	// bodyLine is the 1-based line the body starts on.
	bodyLine int
}

func splitDocument(content []byte) (document, error) {
	nl := "\n"
	if i := bytes.IndexByte(content, '\n'); i > 0 && content[i-1] == '\r' {
		nl = "\r\n"
	}
	open := []byte("---" + nl)
	if !bytes.HasPrefix(content, open) {
		return document{body: content, bodyLine: 1}, nil
	}
	rest := content[len(open):]
	if bytes.HasPrefix(rest, open) {
		return document{frontmatter: []byte{}, body: rest[len(open):], has: true, bodyLine: 3}, nil
	}
	closing := []byte(nl + "---" + nl)
	idx := bytes.Index(rest, closing)
	if idx < 0 {
		return document{}, errUnclosedFrontmatter
	}
	fm := rest[:idx+len(nl)]
	return document{
		frontmatter: fm,
		body:        rest[idx+len(closing):],
		has:         true,
		bodyLine:    bytes.Count(fm, []byte("\n")) + 3,
	}, nil
}

func parseFrontmatter(fm []byte) (map[string]any, error) {
	fields := map[string]any{}
	if len(bytes.TrimSpace(fm)) == 0 {
		return fields, nil
	}
	if err := yaml.Unmarshal(fm, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = map[string]any{}
	}
	return fields, nil
}

// Fingerprint computes the mdfp fingerprint of a document from its front
// matter fields (excluding the fingerprint itself) and body. yaml.v3 emits
// map keys sorted, so the serialized front matter is canonical.
func Fingerprint(fields map[string]any, body []byte) (string, error) {
	rest := make(map[string]any, len(fields))
	for k, v := range fields {
		if k != mdfp.FingerprintField {
			rest[k] = v
		}
	}
	fm := ""
	if len(rest) > 0 {
		out, err := yaml.Marshal(rest)
		if err != nil {
			return "", err
		}
		fm = strings.TrimSuffix(string(out), "\n")
	}
	return mdfp.CalculateFingerprintFromParts(fm, string(body)), nil
}
