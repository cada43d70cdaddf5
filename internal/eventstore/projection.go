package eventstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

const runStatusRunning = "running"

// RunSummary is a read model of one run.
type RunSummary struct {
	RunID       string        `json:"run_id"`
	Event       string        `json:"event"`
	Branch      string        `json:"branch"`
	Release     bool          `json:"release"`
	DryRun      bool          `json:"dry_run,omitempty"`
	Status      string        `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	Steps       []StepRecord  `json:"steps,omitempty"`
	FailedStep  string        `json:"failed_step,omitempty"`
	Error       string        `json:"error,omitempty"`
	Digest      string        `json:"digest,omitempty"`
}

// RunHistoryProjection maintains an in-memory view of run history rebuilt
// from the store.
type RunHistoryProjection struct {
	mu       sync.RWMutex
	store    Store
	runs     map[string]*RunSummary
	history  []*RunSummary // completed runs, newest first
	maxSize  int
	lastSync time.Time
}

// NewRunHistoryProjection creates a projection backed by store.
func NewRunHistoryProjection(store Store, maxHistorySize int) *RunHistoryProjection {
	if maxHistorySize <= 0 {
		maxHistorySize = 100
	}
	return &RunHistoryProjection{
		store:   store,
		runs:    make(map[string]*RunSummary),
		history: make([]*RunSummary, 0, maxHistorySize),
		maxSize: maxHistorySize,
	}
}

// Rebuild reconstructs the projection from all stored events.
func (p *RunHistoryProjection) Rebuild(ctx context.Context) error {
	events, err := p.store.GetRange(ctx, time.Time{}, time.Now().Add(time.Hour))
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.runs = make(map[string]*RunSummary)
	p.history = make([]*RunSummary, 0, p.maxSize)
	for _, event := range events {
		p.applyEventLocked(event)
	}
	sort.SliceStable(p.history, func(i, j int) bool {
		return p.history[i].StartedAt.After(p.history[j].StartedAt)
	})
	if len(p.history) > p.maxSize {
		p.history = p.history[:p.maxSize]
	}
	p.pruneRunsLocked()
	p.lastSync = time.Now()
	return nil
}

// Apply processes a single event.
func (p *RunHistoryProjection) Apply(event Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applyEventLocked(event)
}

func (p *RunHistoryProjection) applyEventLocked(event Event) {
	runID := event.RunID()
	if runID == "" {
		return
	}
	summary, exists := p.runs[runID]
	if !exists {
		summary = &RunSummary{RunID: runID, Status: runStatusRunning, StartedAt: event.Timestamp()}
		p.runs[runID] = summary
	}

	switch event.Type() {
	case TypeRunStarted:
		summary.StartedAt = event.Timestamp()
		summary.Status = runStatusRunning
		var meta RunStartedMeta
		if err := json.Unmarshal(event.Payload(), &meta); err == nil {
			summary.Event = meta.Event
			summary.Branch = meta.Branch
			summary.Release = meta.Release
			summary.DryRun = meta.DryRun
		}

	case TypeStepFinished:
		var rec StepRecord
		if err := json.Unmarshal(event.Payload(), &rec); err == nil {
			summary.Steps = append(summary.Steps, rec)
		}

	case TypeRunCompleted:
		done := event.Timestamp()
		summary.CompletedAt = &done
		summary.Duration = done.Sub(summary.StartedAt)
		var res RunResult
		if err := json.Unmarshal(event.Payload(), &res); err == nil {
			summary.Status = res.Status
			summary.FailedStep = res.FailedStep
			summary.Error = res.Error
			summary.Digest = res.Digest
			if res.DurationMS > 0 {
				summary.Duration = time.Duration(res.DurationMS) * time.Millisecond
			}
		}
		p.addToHistoryLocked(summary)
	}
}

func (p *RunHistoryProjection) addToHistoryLocked(summary *RunSummary) {
	for _, h := range p.history {
		if h.RunID == summary.RunID {
			return
		}
	}
	p.history = append([]*RunSummary{summary}, p.history...)
	if len(p.history) > p.maxSize {
		p.history = p.history[:p.maxSize]
	}
	p.pruneRunsLocked()
}

// pruneRunsLocked drops completed runs that fell out of the bounded history.
func (p *RunHistoryProjection) pruneRunsLocked() {
	keep := make(map[string]struct{}, len(p.history))
	for _, h := range p.history {
		keep[h.RunID] = struct{}{}
	}
	for id, summary := range p.runs {
		if summary.Status == runStatusRunning {
			continue
		}
		if _, ok := keep[id]; !ok {
			delete(p.runs, id)
		}
	}
}

// History returns up to limit completed runs, newest first. A limit <= 0
// returns everything retained.
func (p *RunHistoryProjection) History(limit int) []RunSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := len(p.history)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]RunSummary, 0, n)
	for _, h := range p.history[:n] {
		out = append(out, copySummary(h))
	}
	return out
}

// Get returns the summary for runID.
func (p *RunHistoryProjection) Get(runID string) (RunSummary, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.runs[runID]
	if !ok {
		return RunSummary{}, false
	}
	return copySummary(s), true
}

// Active returns a run that has started but not completed.
func (p *RunHistoryProjection) Active() (RunSummary, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, s := range p.runs {
		if s.Status == runStatusRunning {
			return copySummary(s), true
		}
	}
	return RunSummary{}, false
}

// LastSyncTime returns when the projection was last rebuilt.
func (p *RunHistoryProjection) LastSyncTime() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastSync
}

func copySummary(s *RunSummary) RunSummary {
	cp := *s
	cp.Steps = append([]StepRecord(nil), s.Steps...)
	return cp
}
