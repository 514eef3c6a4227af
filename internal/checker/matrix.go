package checker

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/August26/proxymatrix/internal/model"
)

// TargetTimeout bounds every single target request in Phase 2.
const TargetTimeout = 5 * time.Second

// Matrix is the Phase 2 prober. It runs every Phase 1 result, Working or
// Dead, against the target list: a proxy that cannot reach the Internet may
// still reach an internal-only host.
type Matrix struct {
	Prober Prober
	Logger *slog.Logger
}

// RunBatch sweeps proxies in parallel. opts.TimeoutSeconds is the
// per-target timeout; zero means TargetTimeout.
func (m *Matrix) RunBatch(ctx context.Context, results []model.ProxyCheckResult, targets []string, opts BatchOptions, onResult func(model.TargetResult)) ([]model.TargetResult, error) {
	timeout := TargetTimeout
	if opts.TimeoutSeconds > 0 {
		timeout = time.Duration(opts.TimeoutSeconds) * time.Second
	}
	m.logger().Info("phase 2 started",
		"proxies", len(results),
		"targets", len(targets),
		"concurrency", opts.Concurrency,
	)

	out := make([]model.TargetResult, 0, len(results))
	err := runPool(results, opts,
		func(res model.ProxyCheckResult) model.TargetResult {
			return m.Sweep(ctx, res, targets, timeout)
		},
		func(tr model.TargetResult) {
			out = append(out, tr)
			if onResult != nil {
				onResult(tr)
			}
		},
	)
	return out, err
}

// Sweep probes the targets one after another through a single proxy.
func (m *Matrix) Sweep(ctx context.Context, res model.ProxyCheckResult, targets []string, timeout time.Duration) model.TargetResult {
	tr := model.TargetResult{
		ProxyKey:  res.Key(),
		Scheme:    res.Scheme,
		ISP:       res.ISP,
		PerTarget: make(map[string]model.Outcome, len(targets)),
	}
	for _, u := range targets {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		o := Classify(m.Prober.Probe(ctx, res.Candidate, u, timeout, nil))
		tr.PerTarget[u] = o
		if o.Granted() {
			m.logger().Info("access granted", "proxy", res.URL(), "target", u)
		}
	}
	return tr
}

// Classify maps a probe outcome onto a matrix cell. Every failure is a
// Timeout, whatever the cause.
func Classify(po model.ProbeOutcome) model.Outcome {
	if po.Failed() {
		return model.Outcome{Kind: model.OutcomeTimeout}
	}
	return model.OutcomeFromStatus(po.StatusCode)
}

func (m *Matrix) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
