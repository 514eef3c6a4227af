package api

import (
	"time"

	"github.com/August26/proxymatrix/internal/model"
	"github.com/August26/proxymatrix/internal/scan"
)

// Public JSON types returned by the API. They are decoupled from the scan
// package so the orchestrator can change without breaking clients.

// ScanRequest is the body of POST /v1/scan. Zero values take the server
// defaults.
type ScanRequest struct {
	Proxies              string   `json:"proxies"`
	Targets              []string `json:"targets"`
	Concurrency          int      `json:"concurrency"`
	TimeoutSeconds       int      `json:"timeout_seconds"`
	TargetTimeoutSeconds int      `json:"target_timeout_seconds"`
	ForceProtocol        string   `json:"force_protocol"`
}

// ScanAccepted is returned by POST /v1/scan.
type ScanAccepted struct {
	State      string `json:"state"`
	Candidates int    `json:"candidates"`
	Targets    int    `json:"targets"`
}

// ScanView is the payload of GET /v1/scan.
type ScanView struct {
	State       string                   `json:"state"`
	Aborted     bool                     `json:"aborted"`
	Phase1      scan.Counter             `json:"phase1"`
	Phase2      scan.Counter             `json:"phase2"`
	Targets     []string                 `json:"targets"`
	Results     []model.ProxyCheckResult `json:"results"`
	Matrix      []model.TargetResult     `json:"matrix"`
	Summary     *model.ScanStats         `json:"summary,omitempty"`
	StartedAt   string                   `json:"started_at,omitempty"`
	FinishedAt  string                   `json:"finished_at,omitempty"`
	Events      []string                 `json:"events"`
	GeneratedAt string                   `json:"generated_at"`
}

// APIError is a standard error payload.
type APIError struct {
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"` // RFC3339
}

// TimeNow abstracts time for tests; overridden in tests.
var TimeNow = func() time.Time { return time.Now() }

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
