package main

import (
	"io"
	"sync"

	"github.com/cheggaaa/pb/v3"

	"github.com/August26/proxymatrix/internal/scan"
)

const barTemplate = `{{string . "phase"}} {{counters . }} {{bar . }} {{percent . }} {{etime . }}`

// progressBars shows one bar per phase. A nil receiver is a no-op.
type progressBars struct {
	w     io.Writer
	mu    sync.Mutex
	phase scan.State
	bar   *pb.ProgressBar
}

func newProgressBars(w io.Writer) *progressBars {
	return &progressBars{w: w}
}

func (p *progressBars) update(pr scan.Progress) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bar == nil || p.phase != pr.Phase {
		if p.bar != nil {
			p.bar.Finish()
		}
		label := "reachability"
		if pr.Phase == scan.StatePhase2 {
			label = "target matrix"
		}
		p.phase = pr.Phase
		p.bar = pb.ProgressBarTemplate(barTemplate).New(pr.Total)
		p.bar.Set("phase", label)
		p.bar.SetWriter(p.w)
		p.bar.Start()
	}
	p.bar.SetCurrent(int64(pr.Done))
}

func (p *progressBars) finish() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		p.bar.Finish()
		p.bar = nil
	}
}
