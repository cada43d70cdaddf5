package linkcheck

import "time"

// BrokenLinkEvent is published for every broken link so downstream consumers
// (issue trackers, dashboards) can act on it.
type BrokenLinkEvent struct {
	URL      string `json:"url"`
	Status   int    `json:"status"`
	Error    string `json:"error"`
	Internal bool   `json:"internal"`

	// Page is the rendered page path relative to the site root.
	Page string `json:"page"`
	// Source is the notebook the page was rendered from.
	Source string `json:"source"`

	RunID  string `json:"run_id,omitempty"`
	Branch string `json:"branch,omitempty"`

	Timestamp     time.Time `json:"timestamp"`
	FailureCount  int       `json:"failure_count"`
	FirstFailedAt time.Time `json:"first_failed_at,omitzero"`
}
