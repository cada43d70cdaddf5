package trigger

import (
	"fmt"
	"os"
	"strings"
)

// CI environment variables understood by FromEnv.
const (
	EnvEventName = "GITHUB_EVENT_NAME"
	EnvRefName   = "GITHUB_REF_NAME"
	EnvHeadRef   = "GITHUB_HEAD_REF"
	EnvBaseRef   = "GITHUB_BASE_REF"
	EnvSHA       = "GITHUB_SHA"
	EnvBaseSHA   = "DOCPUBLISHER_BASE_SHA"
	EnvBeforeSHA = "DOCPUBLISHER_BEFORE_SHA"
)

// FromEnv reads run parameters from CI environment variables through lookup.
// Pull requests use the head branch as Branch and prefer an explicit base SHA
// over the base branch name.
func FromEnv(lookup func(string) string) (Params, error) {
	if lookup == nil {
		lookup = os.Getenv
	}
	raw := lookup(EnvEventName)
	if raw == "" {
		return Params{}, fmt.Errorf("%s is not set", EnvEventName)
	}
	ev, err := ParseEvent(raw)
	if err != nil {
		return Params{}, err
	}
	p := Params{Event: ev, HeadRef: lookup(EnvSHA)}
	if ev == EventPullRequest {
		p.Branch = lookup(EnvHeadRef)
		p.BaseRef = firstNonEmpty(lookup(EnvBaseSHA), lookup(EnvBaseRef))
	} else {
		p.Branch = lookup(EnvRefName)
		p.BeforeRef = lookup(EnvBeforeSHA)
	}
	p.Branch = strings.TrimPrefix(p.Branch, "refs/heads/")
	if p.Branch == "" {
		return Params{}, fmt.Errorf("could not determine branch from environment")
	}
	return p, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
