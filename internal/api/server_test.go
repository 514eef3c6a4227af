package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/August26/proxymatrix/internal/checker"
	"github.com/August26/proxymatrix/internal/model"
	"github.com/August26/proxymatrix/internal/scan"
)

// stubProber treats 10.0.0.2 as the only live proxy. Probes block on gate
// when it is set.
type stubProber struct {
	gate chan struct{}
}

func (p stubProber) Probe(ctx context.Context, c model.Candidate, target string, timeout time.Duration, headers http.Header) model.ProbeOutcome {
	if p.gate != nil {
		<-p.gate
	}
	if c.Host != "10.0.0.2" {
		return model.ProbeOutcome{Err: errors.New("i/o timeout")}
	}
	if target == checker.DefaultEchoURL {
		return model.ProbeOutcome{StatusCode: 200, ElapsedMs: 80, Body: []byte(`{"origin":"10.0.0.2","headers":{}}`)}
	}
	return model.ProbeOutcome{StatusCode: 200}
}

func newTestServer(t *testing.T, p checker.Prober) (*Server, *httptest.Server) {
	t.Helper()
	orch := scan.New(scan.Options{
		Reachability: &checker.Reachability{Prober: p},
		Matrix:       &checker.Matrix{Prober: p},
	})
	s := NewServer(orch, ServerOptions{Defaults: scan.Request{Concurrency: 4, TimeoutSeconds: 1}})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		s.cancel()
	})
	return s, ts
}

func do(t *testing.T, method, url, body string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(b)
}

func TestHealthz(t *testing.T) {
	_, ts := newTestServer(t, stubProber{})
	code, body := do(t, http.MethodGet, ts.URL+"/v1/healthz", "")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, `"state":"idle"`)

	code, _ = do(t, http.MethodPost, ts.URL+"/v1/healthz", "")
	require.Equal(t, http.StatusMethodNotAllowed, code)
}

func TestScanLifecycle(t *testing.T) {
	s, ts := newTestServer(t, stubProber{})

	code, body := do(t, http.MethodPost, ts.URL+"/v1/scan",
		`{"proxies":"10.0.0.1:8080\nbad-line\n10.0.0.2 9090 socks5","targets":["http://intranet/"]}`)
	require.Equal(t, http.StatusAccepted, code, body)

	var acc ScanAccepted
	require.NoError(t, json.Unmarshal([]byte(body), &acc))
	require.Equal(t, 2, acc.Candidates)
	require.Equal(t, 1, acc.Targets)

	<-s.orch.Wait()

	code, body = do(t, http.MethodGet, ts.URL+"/v1/scan", "")
	require.Equal(t, http.StatusOK, code)
	var view ScanView
	require.NoError(t, json.Unmarshal([]byte(body), &view))
	require.Equal(t, "done", view.State)
	require.Len(t, view.Results, 2)
	require.Equal(t, "10.0.0.2", view.Results[0].Host)
	require.Len(t, view.Matrix, 2)
	require.NotNil(t, view.Summary)
	require.Equal(t, 1, view.Summary.WorkingProxies)
	require.Equal(t, 1, view.Summary.ReachableProxies)

	code, body = do(t, http.MethodGet, ts.URL+"/v1/scan/export?format=access", "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "socks5://10.0.0.2:9090 | Access: http://intranet/\n", body)

	code, body = do(t, http.MethodGet, ts.URL+"/v1/scan/export?format=plain", "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "10.0.0.2:9090\n", body)

	code, _ = do(t, http.MethodGet, ts.URL+"/v1/scan/export?format=xml", "")
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, http.MethodDelete, ts.URL+"/v1/scan", "")
	require.Equal(t, http.StatusOK, code)

	code, _ = do(t, http.MethodGet, ts.URL+"/v1/scan/export", "")
	require.Equal(t, http.StatusNotFound, code)
}

func TestStartScan_BadInput(t *testing.T) {
	_, ts := newTestServer(t, stubProber{})

	code, _ := do(t, http.MethodPost, ts.URL+"/v1/scan", `{"proxies":"nothing here"}`)
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, http.MethodPost, ts.URL+"/v1/scan", `{"proxies":"1.2.3.4:80","force_protocol":"ftp"}`)
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, http.MethodPost, ts.URL+"/v1/scan", `{"proxies":"1.2.3.4:80","threads":5}`)
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, http.MethodPost, ts.URL+"/v1/scan", `{"proxies":"1.2.3.4:80","concurrency":-1}`)
	require.Equal(t, http.StatusBadRequest, code)
}

func TestStartScan_ConflictAndAbort(t *testing.T) {
	gate := make(chan struct{})
	s, ts := newTestServer(t, stubProber{gate: gate})

	code, _ := do(t, http.MethodPost, ts.URL+"/v1/scan/abort", "")
	require.Equal(t, http.StatusConflict, code)

	code, _ = do(t, http.MethodPost, ts.URL+"/v1/scan", `{"proxies":"10.0.0.1:80\n10.0.0.3:80\n10.0.0.4:80"}`)
	require.Equal(t, http.StatusAccepted, code)

	code, _ = do(t, http.MethodPost, ts.URL+"/v1/scan", `{"proxies":"10.0.0.2:80"}`)
	require.Equal(t, http.StatusConflict, code)

	code, _ = do(t, http.MethodDelete, ts.URL+"/v1/scan", "")
	require.Equal(t, http.StatusConflict, code)

	code, _ = do(t, http.MethodPost, ts.URL+"/v1/scan/abort", "")
	require.Equal(t, http.StatusAccepted, code)

	close(gate)
	<-s.orch.Wait()
	require.Equal(t, scan.StateAborted, s.orch.State())
}
