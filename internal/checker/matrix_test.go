package checker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/August26/proxymatrix/internal/model"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		in   model.ProbeOutcome
		want string
	}{
		{model.ProbeOutcome{StatusCode: 200}, "ACCESS_GRANTED"},
		{model.ProbeOutcome{StatusCode: 403}, "FORBIDDEN"},
		{model.ProbeOutcome{StatusCode: 404}, "NOT_FOUND"},
		{model.ProbeOutcome{StatusCode: 502}, "ERR_502"},
		{model.ProbeOutcome{StatusCode: 301}, "ERR_301"},
		{model.ProbeOutcome{Err: context.DeadlineExceeded}, "TIMEOUT"},
		{model.ProbeOutcome{Err: errors.New("connection reset by peer")}, "TIMEOUT"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Classify(tc.in).String())
	}
}

func TestSweep_DeadProxyStillProbed(t *testing.T) {
	targets := []string{"http://intranet/", "http://forbidden.local/", "http://missing.local/"}
	p := &fakeProber{answers: map[string]map[string]model.ProbeOutcome{
		"10.0.0.9": {
			"http://intranet/":        {StatusCode: 200},
			"http://forbidden.local/": {StatusCode: 403},
			"http://missing.local/":   {StatusCode: 404},
		},
	}}
	m := &Matrix{Prober: p}

	dead := model.NewDeadResult(cand("10.0.0.9"))
	tr := m.Sweep(context.Background(), dead, targets, time.Second)

	require.Equal(t, "10.0.0.9:8080", tr.ProxyKey)
	require.Len(t, tr.PerTarget, 3)
	require.Equal(t, model.OutcomeAccessGranted, tr.PerTarget["http://intranet/"].Kind)
	require.Equal(t, model.OutcomeForbidden, tr.PerTarget["http://forbidden.local/"].Kind)
	require.Equal(t, model.OutcomeNotFound, tr.PerTarget["http://missing.local/"].Kind)
	require.Equal(t, []string{"http://intranet/"}, tr.Granted(targets))
}

func TestMatrixRunBatch_EveryProxyEveryTarget(t *testing.T) {
	targets := []string{"http://a.test/", "http://b.test/"}
	answers := map[string]map[string]model.ProbeOutcome{}
	var results []model.ProxyCheckResult
	for i := 0; i < 12; i++ {
		host := fmt.Sprintf("10.0.3.%d", i)
		res := model.NewDeadResult(cand(host))
		if i%2 == 0 {
			res.Status = model.StatusWorking
			res.LatencyMs = 120
			answers[host] = map[string]model.ProbeOutcome{"http://a.test/": {StatusCode: 200}}
		}
		results = append(results, res)
	}

	p := &fakeProber{answers: answers}
	m := &Matrix{Prober: p}
	out, err := m.RunBatch(context.Background(), results, targets, BatchOptions{Concurrency: 4}, nil)
	require.NoError(t, err)
	require.Len(t, out, len(results))
	require.EqualValues(t, len(results)*len(targets), p.calls.Load())

	granted := 0
	for _, tr := range out {
		require.Len(t, tr.PerTarget, len(targets))
		require.Equal(t, model.OutcomeTimeout, tr.PerTarget["http://b.test/"].Kind)
		if tr.AnyGranted() {
			granted++
		}
	}
	require.Equal(t, 6, granted)

	for _, ttl := range p.seenTTL {
		require.Equal(t, TargetTimeout, ttl)
	}
}

func TestMatrixRunBatch_TimeoutOverride(t *testing.T) {
	p := &fakeProber{}
	m := &Matrix{Prober: p}
	_, err := m.RunBatch(context.Background(), []model.ProxyCheckResult{model.NewDeadResult(cand("10.0.4.1"))},
		[]string{"http://a.test/"}, BatchOptions{Concurrency: 1, TimeoutSeconds: 2}, nil)
	require.NoError(t, err)
	require.Equal(t, []time.Duration{2 * time.Second}, p.seenTTL)
}

func TestMatrixRunBatch_StoppedBeforeStart(t *testing.T) {
	p := &fakeProber{}
	m := &Matrix{Prober: p}
	out, err := m.RunBatch(context.Background(), []model.ProxyCheckResult{model.NewDeadResult(cand("10.0.4.2"))},
		[]string{"http://a.test/"}, BatchOptions{Concurrency: 1, Stop: func() bool { return true }}, nil)
	require.NoError(t, err)
	require.Empty(t, out)
	require.Zero(t, p.calls.Load())
}
