package scan

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/August26/proxymatrix/internal/checker"
	"github.com/August26/proxymatrix/internal/model"
	"github.com/August26/proxymatrix/internal/parser"
)

const (
	DefaultConcurrency    = 25
	DefaultTimeoutSeconds = 6
)

// Request describes one scan.
type Request struct {
	ProxyText  string
	TargetText string   // newline separated, merged after Targets
	Targets    []string // absolute URLs

	Concurrency          int
	TimeoutSeconds       int // Phase 1 probe timeout
	TargetTimeoutSeconds int // Phase 2 per-target timeout, 0 means checker.TargetTimeout
	ForceProtocol        string
}

// Progress is reported after every finished unit of work.
type Progress struct {
	Phase State
	Done  int
	Total int
}

// Options wires the orchestrator. Reachability and Matrix are required.
type Options struct {
	Reachability *checker.Reachability
	Matrix       *checker.Matrix
	Logger       *slog.Logger

	// OnProgress is called from the collector goroutine of the running
	// phase; it must not block for long.
	OnProgress func(Progress)
}

// Orchestrator drives the two phase scan and owns the only active Run.
type Orchestrator struct {
	opts Options
	log  *slog.Logger

	mu    sync.RWMutex
	state State
	run   *Run
	done  chan struct{}
}

func New(opts Options) *Orchestrator {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Orchestrator{opts: opts, log: log, state: StateIdle}
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// Snapshot returns a deep copy of the current run, or just the state when
// there is none.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.run == nil {
		return Snapshot{State: o.state}
	}
	return o.run.snapshot(o.state)
}

// Start parses the request and, if any candidate survives, runs both
// phases in the background. The returned channel is closed when the run
// reaches done or aborted.
//
// Cancelling ctx aborts the run the same way Abort does: no new unit is
// started, in-flight probes finish on their own timeout.
func (o *Orchestrator) Start(ctx context.Context, req Request) (<-chan struct{}, error) {
	o.mu.Lock()
	if o.state.Active() {
		o.mu.Unlock()
		return nil, ErrScanActive
	}
	if err := o.setState(StateParsing); err != nil {
		o.mu.Unlock()
		return nil, err
	}

	force, err := parser.ParseForce(req.ForceProtocol)
	if err != nil {
		o.run = nil
		_ = o.setState(StateIdle)
		o.mu.Unlock()
		return nil, err
	}

	cands := parser.Parse(req.ProxyText, force)
	if len(cands) == 0 {
		o.run = nil
		_ = o.setState(StateIdle)
		o.mu.Unlock()
		o.log.Warn("scan rejected", "err", ErrNoCandidates)
		return nil, ErrNoCandidates
	}

	// Matrix cells are keyed by the trimmed URL, so both sources go
	// through the same normalization.
	targets := parser.ParseTargets(strings.Join(req.Targets, "\n") + "\n" + req.TargetText)

	run := newRun(cands, targets)
	run.logf("parsed %d candidates, %d targets", len(cands), len(targets))
	o.run = run
	o.done = make(chan struct{})
	_ = o.setState(StatePhase1)
	done := o.done
	o.mu.Unlock()

	go o.execute(ctx, run, normalize(req), done)
	return done, nil
}

// Run starts a scan and waits for it to finish.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Snapshot, error) {
	done, err := o.Start(ctx, req)
	if err != nil {
		return Snapshot{}, err
	}
	<-done
	return o.Snapshot(), nil
}

// Abort requests cooperative cancellation of the active run. It returns
// false when nothing is running or the run was already aborted.
func (o *Orchestrator) Abort() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.run == nil || !(o.state == StatePhase1 || o.state == StatePhase2) {
		return false
	}
	if !o.run.abort() {
		return false
	}
	o.run.logf("abort requested")
	o.log.Info("scan abort requested", "state", o.state)
	return true
}

// Clear discards a finished run.
func (o *Orchestrator) Clear() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state.Active() {
		return ErrScanActive
	}
	o.run = nil
	return o.setState(StateIdle)
}

// Wait returns the done channel of the current run, or nil.
func (o *Orchestrator) Wait() <-chan struct{} {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.done
}

func (o *Orchestrator) execute(ctx context.Context, run *Run, req Request, done chan struct{}) {
	defer close(done)

	stopAfter := context.AfterFunc(ctx, func() {
		if run.abort() {
			o.mu.Lock()
			run.logf("context cancelled")
			o.mu.Unlock()
		}
	})
	defer stopAfter()

	// Probes are not cut short by cancellation.
	probeCtx := context.WithoutCancel(ctx)

	o.log.Info("scan started",
		"candidates", len(run.candidates),
		"targets", len(run.targets),
		"concurrency", req.Concurrency,
	)

	_, err := o.opts.Reachability.RunBatch(probeCtx, run.candidates, checker.BatchOptions{
		TimeoutSeconds: req.TimeoutSeconds,
		Concurrency:    req.Concurrency,
		Stop:           run.stopped,
	}, func(res model.ProxyCheckResult) {
		o.mu.Lock()
		run.results = append(run.results, res)
		run.phase1.Done++
		if res.Working() {
			run.logf("link established %s %dms %s", res.URL(), res.LatencyMs, res.ISP)
		}
		p := Progress{Phase: StatePhase1, Done: run.phase1.Done, Total: run.phase1.Total}
		o.mu.Unlock()
		o.progress(p)
	})
	if err != nil {
		o.log.Error("phase 1 pool failed", "err", err)
	}

	o.mu.Lock()
	// Aborted in Phase 1: go straight to aborted. The shared flag would
	// stop every Phase 2 submission, so the matrix stays empty either way.
	if run.stopped() {
		o.finishLocked(run, StateAborted)
		o.mu.Unlock()
		return
	}
	results := append([]model.ProxyCheckResult(nil), run.results...)
	run.phase2 = Counter{Total: len(results)}
	run.logf("phase 1 complete: %d working of %d", countWorking(results), len(results))
	_ = o.setState(StatePhase2)
	o.mu.Unlock()

	if len(run.targets) > 0 {
		_, err = o.opts.Matrix.RunBatch(probeCtx, results, run.targets, checker.BatchOptions{
			TimeoutSeconds: req.TargetTimeoutSeconds,
			Concurrency:    req.Concurrency,
			Stop:           run.stopped,
		}, func(tr model.TargetResult) {
			o.mu.Lock()
			run.matrix = append(run.matrix, tr)
			run.phase2.Done++
			if granted := tr.Granted(run.targets); len(granted) > 0 {
				run.logf("access %s -> %d target(s)", tr.ProxyKey, len(granted))
			}
			p := Progress{Phase: StatePhase2, Done: run.phase2.Done, Total: run.phase2.Total}
			o.mu.Unlock()
			o.progress(p)
		})
		if err != nil {
			o.log.Error("phase 2 pool failed", "err", err)
		}
	}

	o.mu.Lock()
	if run.stopped() {
		o.finishLocked(run, StateAborted)
	} else {
		o.finishLocked(run, StateDone)
	}
	o.mu.Unlock()
}

func (o *Orchestrator) finishLocked(run *Run, final State) {
	run.finishedAt = time.Now()
	run.logf("scan %s after %s", final, run.finishedAt.Sub(run.startedAt).Round(time.Millisecond))
	if err := o.setState(final); err != nil {
		o.log.Error("scan state", "err", err, "from", o.state, "to", final)
	}
	o.log.Info("scan finished",
		"state", final,
		"results", len(run.results),
		"matrix", len(run.matrix),
		"duration_ms", run.finishedAt.Sub(run.startedAt).Milliseconds(),
	)
}

// setState must be called with mu held.
func (o *Orchestrator) setState(next State) error {
	if o.state == next {
		return nil
	}
	if !allowedTransition(o.state, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.state, next)
	}
	o.state = next
	return nil
}

func (o *Orchestrator) progress(p Progress) {
	if o.opts.OnProgress != nil {
		o.opts.OnProgress(p)
	}
}

func normalize(req Request) Request {
	if req.Concurrency <= 0 {
		req.Concurrency = DefaultConcurrency
	}
	if req.TimeoutSeconds <= 0 {
		req.TimeoutSeconds = DefaultTimeoutSeconds
	}
	return req
}

func countWorking(results []model.ProxyCheckResult) int {
	n := 0
	for _, r := range results {
		if r.Working() {
			n++
		}
	}
	return n
}
