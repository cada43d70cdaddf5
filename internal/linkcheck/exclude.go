package linkcheck

import (
	"fmt"
	"regexp"
	"strings"

	"git.home.luguber.info/inful/docpublisher/internal/config"
)

// Rule excludes URLs matching Pattern from verification.
type Rule struct {
	Pattern string
	Reason  string
	re      *regexp.Regexp
}

// DefaultRules is the shipped exclude list. Order matters: the first
// matching rule is reported.
var DefaultRules = []config.ExcludeRule{
	{Pattern: `^https?://(localhost|127\.0\.0\.1)(:\d+)?(/|$)`, Reason: "local development server"},
	{Pattern: `^https?://(smith|api\.smith|eu\.smith)\.langchain\.com(/|$)`, Reason: "authenticated dashboard"},
	{Pattern: `^https?://(platform\.openai\.com|console\.anthropic\.com|console\.cloud\.google\.com|portal\.azure\.com)(/|$)`, Reason: "authenticated dashboard"},
	{Pattern: `^https?://(www\.)?(x|twitter|linkedin|facebook|reddit)\.com(/|$)`, Reason: "social media blocks automated clients"},
	{Pattern: `^https?://(www\.)?(github\.com|npmjs\.com)(/|$)`, Reason: "rate-limited host"},
}

// Policy is an ordered exclude list, evaluated first match wins.
type Policy struct {
	rules []Rule
}

// NewPolicy compiles the default rules followed by user rules, or only the
// user rules when replaceDefaults is set.
func NewPolicy(user []config.ExcludeRule, replaceDefaults bool) (*Policy, error) {
	var src []config.ExcludeRule
	if !replaceDefaults {
		src = append(src, DefaultRules...)
	}
	src = append(src, user...)

	p := &Policy{rules: make([]Rule, 0, len(src))}
	for _, r := range src {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", r.Pattern, err)
		}
		p.rules = append(p.rules, Rule{Pattern: r.Pattern, Reason: r.Reason, re: re})
	}
	return p, nil
}

// Match returns the first rule matching rawURL.
func (p *Policy) Match(rawURL string) (Rule, bool) {
	if p == nil {
		return Rule{}, false
	}
	for _, r := range p.rules {
		if r.re.MatchString(rawURL) {
			return r, true
		}
	}
	return Rule{}, false
}

// Rules returns a copy of the compiled rules in evaluation order.
func (p *Policy) Rules() []Rule {
	if p == nil {
		return nil
	}
	out := make([]Rule, len(p.rules))
	copy(out, p.rules)
	return out
}

// Args renders every rule as command line arguments for an external checker.
// A flag containing {pattern} yields one argument per rule, any other flag
// is followed by the pattern.
func (p *Policy) Args(flag string) []string {
	if p == nil || flag == "" {
		return nil
	}
	var out []string
	for _, r := range p.rules {
		if strings.Contains(flag, "{pattern}") {
			out = append(out, strings.ReplaceAll(flag, "{pattern}", r.Pattern))
			continue
		}
		out = append(out, flag, r.Pattern)
	}
	return out
}
