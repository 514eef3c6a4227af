package checker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/August26/proxymatrix/internal/model"
)

const DefaultEchoURL = "http://httpbin.org/get"

// Prober performs one GET through a proxy candidate.
type Prober interface {
	Probe(ctx context.Context, c model.Candidate, targetURL string, timeout time.Duration, headers http.Header) model.ProbeOutcome
}

// Enricher supplies the tester's public IP and geo data for proxy hosts.
type Enricher interface {
	PublicIP(ctx context.Context) string
	Geo(ctx context.Context, ip string) (model.GeoInfo, bool)
}

// Reachability is the Phase 1 prober: one echo request per candidate.
type Reachability struct {
	Prober   Prober
	Enricher Enricher // optional
	EchoURL  string
	Logger   *slog.Logger
}

// RunBatch concurrently checks all candidates and returns one result per
// processed candidate, in completion order. onResult, if set, is called on
// the single collector goroutine right after each result is appended.
func (r *Reachability) RunBatch(ctx context.Context, candidates []model.Candidate, opts BatchOptions, onResult func(model.ProxyCheckResult)) ([]model.ProxyCheckResult, error) {
	publicIP := model.PublicIPUnknown
	if r.Enricher != nil {
		publicIP = r.Enricher.PublicIP(ctx)
	}
	r.logger().Info("phase 1 started",
		"candidates", len(candidates),
		"concurrency", opts.Concurrency,
		"timeout_seconds", opts.TimeoutSeconds,
		"public_ip", publicIP,
	)

	timeout := time.Duration(opts.TimeoutSeconds) * time.Second
	out := make([]model.ProxyCheckResult, 0, len(candidates))

	err := runPool(candidates, opts,
		func(c model.Candidate) model.ProxyCheckResult {
			return r.Check(ctx, c, publicIP, timeout)
		},
		func(res model.ProxyCheckResult) {
			out = append(out, res)
			if onResult != nil {
				onResult(res)
			}
		},
	)
	return out, err
}

// Check classifies a single candidate. One attempt, no retries: a slow
// proxy and a dead one look the same here.
func (r *Reachability) Check(ctx context.Context, c model.Candidate, publicIP string, timeout time.Duration) model.ProxyCheckResult {
	out := model.NewDeadResult(c)
	out.CheckedAt = time.Now()

	po := r.Prober.Probe(ctx, c, r.echoURL(), timeout, nil)
	if po.Failed() || po.StatusCode != http.StatusOK {
		r.logger().Debug("proxy dead", "proxy", c.URL(), "status", po.StatusCode, "err", po.Err)
		return out
	}

	out.Status = model.StatusWorking
	out.LatencyMs = po.ElapsedMs

	hb, err := parseEcho(po.Body)
	if err != nil {
		out.Anonymity = model.AnonymityUnknown
	} else {
		out.ExitIP = firstIPToken(hb.Origin)
		out.Anonymity = DetermineAnonymity(AnonymityInput{
			Origin:   hb.Origin,
			PublicIP: publicIP,
			Headers:  hb.Headers,
		})
	}

	if r.Enricher != nil {
		if info, ok := r.Enricher.Geo(ctx, c.Host); ok {
			if info.CountryCode != "" {
				out.CountryCode = info.CountryCode
			}
			if info.ISP != "" {
				out.ISP = info.ISP
			}
		}
	}

	r.logger().Info("link established",
		"proxy", c.URL(),
		"latency_ms", out.LatencyMs,
		"anonymity", out.Anonymity,
		"isp", out.ISP,
	)
	return out
}

// httpbinResponse matches the fields we care about from httpbin.org/get.
type httpbinResponse struct {
	Origin  string            `json:"origin"`  // what IP httpbin thinks we are
	Headers map[string]string `json:"headers"` // headers seen by httpbin
}

func parseEcho(body []byte) (httpbinResponse, error) {
	var parsed httpbinResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return httpbinResponse{}, err
	}
	if parsed.Origin == "" {
		return httpbinResponse{}, errors.New("echo response has no origin")
	}
	return parsed, nil
}

func (r *Reachability) echoURL() string {
	if r.EchoURL == "" {
		return DefaultEchoURL
	}
	return r.EchoURL
}

func (r *Reachability) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
