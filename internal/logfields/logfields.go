package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID      = "run_id"
	KeyEvent      = "event"
	KeyBranch     = "branch"
	KeyRelease    = "release"
	KeyStep       = "step"
	KeyStatus     = "status"
	KeyDurationMS = "duration_ms"
	KeyPath       = "path"
	KeyURL        = "url"
	KeyCommit     = "commit"
	KeyCount      = "count"
	KeyExitCode   = "exit_code"
	KeyCacheKey   = "cache_key"
	KeyGroup      = "group"
	KeyScheduleID = "schedule_id"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr        { return slog.String(KeyRunID, id) }
func Event(e string) slog.Attr         { return slog.String(KeyEvent, e) }
func Branch(b string) slog.Attr        { return slog.String(KeyBranch, b) }
func Release(r bool) slog.Attr         { return slog.Bool(KeyRelease, r) }
func Step(name string) slog.Attr       { return slog.String(KeyStep, name) }
func Status(s string) slog.Attr        { return slog.String(KeyStatus, s) }
func DurationMS(ms float64) slog.Attr  { return slog.Float64(KeyDurationMS, ms) }
func Path(p string) slog.Attr          { return slog.String(KeyPath, p) }
func URL(u string) slog.Attr           { return slog.String(KeyURL, u) }
func Commit(c string) slog.Attr        { return slog.String(KeyCommit, c) }
func Count(n int) slog.Attr            { return slog.Int(KeyCount, n) }
func ExitCode(code int) slog.Attr      { return slog.Int(KeyExitCode, code) }
func CacheKey(k string) slog.Attr      { return slog.String(KeyCacheKey, k) }
func Group(g string) slog.Attr         { return slog.String(KeyGroup, g) }
func ScheduleID(id string) slog.Attr   { return slog.String(KeyScheduleID, id) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
