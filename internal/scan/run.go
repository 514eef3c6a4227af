package scan

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/August26/proxymatrix/internal/model"
)

// MaxEvents bounds the per-run event log; older lines are dropped first.
const MaxEvents = 60

// Counter is a monotonic done/total pair for one phase.
type Counter struct {
	Done  int `json:"done"`
	Total int `json:"total"`
}

// Run is the state of one scan. It is owned by the Orchestrator and only
// mutated under its lock, from the phase collectors.
type Run struct {
	aborted atomic.Bool

	candidates []model.Candidate
	targets    []string
	results    []model.ProxyCheckResult
	matrix     []model.TargetResult

	phase1 Counter
	phase2 Counter

	startedAt  time.Time
	finishedAt time.Time
	events     []string
}

func newRun(cands []model.Candidate, targets []string) *Run {
	return &Run{
		candidates: cands,
		targets:    targets,
		results:    make([]model.ProxyCheckResult, 0, len(cands)),
		phase1:     Counter{Total: len(cands)},
		startedAt:  time.Now(),
	}
}

// abort sets the cancellation flag. It reports whether this call set it.
func (r *Run) abort() bool {
	return r.aborted.CompareAndSwap(false, true)
}

func (r *Run) stopped() bool {
	return r.aborted.Load()
}

func (r *Run) logf(format string, args ...any) {
	line := time.Now().Format("15:04:05") + " " + fmt.Sprintf(format, args...)
	r.events = append(r.events, line)
	if n := len(r.events) - MaxEvents; n > 0 {
		r.events = append([]string(nil), r.events[n:]...)
	}
}

// Snapshot is a read model of the orchestrator. Slices and maps are copies,
// so callers may keep them without locking.
type Snapshot struct {
	State      State                    `json:"state"`
	Aborted    bool                     `json:"aborted"`
	Candidates []model.Candidate        `json:"candidates"`
	Targets    []string                 `json:"targets"`
	Results    []model.ProxyCheckResult `json:"results"`
	Matrix     []model.TargetResult     `json:"matrix"`
	Phase1     Counter                  `json:"phase1"`
	Phase2     Counter                  `json:"phase2"`
	StartedAt  time.Time                `json:"started_at"`
	FinishedAt time.Time                `json:"finished_at"`
	Events     []string                 `json:"events"`
}

// Duration is the wall time of the run so far.
func (s Snapshot) Duration() time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	if s.FinishedAt.IsZero() {
		return time.Since(s.StartedAt)
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Working returns the Working subset of Phase 1 results.
func (s Snapshot) Working() []model.ProxyCheckResult {
	var out []model.ProxyCheckResult
	for _, r := range s.Results {
		if r.Working() {
			out = append(out, r)
		}
	}
	return out
}

func (r *Run) snapshot(state State) Snapshot {
	matrix := make([]model.TargetResult, len(r.matrix))
	for i, tr := range r.matrix {
		matrix[i] = tr.Clone()
	}
	return Snapshot{
		State:      state,
		Aborted:    r.aborted.Load(),
		Candidates: append([]model.Candidate(nil), r.candidates...),
		Targets:    append([]string(nil), r.targets...),
		Results:    append([]model.ProxyCheckResult(nil), r.results...),
		Matrix:     matrix,
		Phase1:     r.phase1,
		Phase2:     r.phase2,
		StartedAt:  r.startedAt,
		FinishedAt: r.finishedAt,
		Events:     append([]string(nil), r.events...),
	}
}
