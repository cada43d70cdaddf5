package logfields

import (
	"errors"
	"log/slog"
	"testing"
)

// TestHelperKeyNames verifies string-based helper key/value stability.
func TestHelperKeyNames(t *testing.T) {
	cases := []struct {
		name    string
		attrKey string
		attrVal string
		attr    slog.Attr
	}{
		{"RunID", KeyRunID, "r-1", RunID("r-1")},
		{"Event", KeyEvent, "push", Event("push")},
		{"Branch", KeyBranch, "main", Branch("main")},
		{"Step", KeyStep, "build", Step("build")},
		{"Status", KeyStatus, "skipped", Status("skipped")},
		{"Path", KeyPath, "/tmp/x", Path("/tmp/x")},
		{"URL", KeyURL, "https://example.com", URL("https://example.com")},
		{"Commit", KeyCommit, "abc123", Commit("abc123")},
		{"CacheKey", KeyCacheKey, "k", CacheKey("k")},
		{"Group", KeyGroup, "pages", Group("pages")},
		{"ScheduleID", KeyScheduleID, "s1", ScheduleID("s1")},
	}
	for _, c := range cases {
		if c.attr.Key != c.attrKey {
			t.Errorf("%s: key = %q, want %q", c.name, c.attr.Key, c.attrKey)
		}
		if c.attr.Value.String() != c.attrVal {
			t.Errorf("%s: value = %q, want %q", c.name, c.attr.Value.String(), c.attrVal)
		}
	}
}

func TestNonStringHelpers(t *testing.T) {
	if a := Release(true); a.Key != KeyRelease || !a.Value.Bool() {
		t.Errorf("Release attr wrong: %v", a)
	}
	if a := ExitCode(5); a.Key != KeyExitCode || a.Value.Int64() != 5 {
		t.Errorf("ExitCode attr wrong: %v", a)
	}
	if a := Count(3); a.Value.Int64() != 3 {
		t.Errorf("Count attr wrong: %v", a)
	}
	if a := Error(nil); a.Value.String() != "" {
		t.Errorf("Error(nil) should be empty, got %q", a.Value.String())
	}
	if a := Error(errors.New("boom")); a.Value.String() != "boom" {
		t.Errorf("Error attr wrong: %v", a)
	}
}
