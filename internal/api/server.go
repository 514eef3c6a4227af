package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/August26/proxymatrix/internal/analytics"
	"github.com/August26/proxymatrix/internal/output"
	"github.com/August26/proxymatrix/internal/parser"
	"github.com/August26/proxymatrix/internal/scan"
)

const (
	APIVersion     = "v1"
	DefaultAddress = "127.0.0.1:8089"

	maxRequestBody = 8 << 20
)

// ServerOptions configures the HTTP server.
// Timeouts are conservative defaults for a local control server.
type ServerOptions struct {
	Addr              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	Logger            *slog.Logger

	// Defaults fill zero fields of incoming scan requests.
	Defaults scan.Request
}

// Server exposes a scan.Orchestrator over HTTP.
type Server struct {
	http   *http.Server
	orch   *scan.Orchestrator
	logger *slog.Logger
	opts   ServerOptions

	// scans outlive the request that started them
	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewServer constructs a server bound to orch. It does not listen until
// Start is called.
func NewServer(orch *scan.Orchestrator, opts ServerOptions) *Server {
	if orch == nil {
		panic("api.NewServer: orchestrator is nil")
	}
	if opts.Addr == "" {
		opts.Addr = DefaultAddress
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 10 * time.Second
	}
	if opts.ReadHeaderTimeout == 0 {
		opts.ReadHeaderTimeout = 2 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 30 * time.Second
	}
	if opts.IdleTimeout == 0 {
		opts.IdleTimeout = 60 * time.Second
	}
	if opts.ShutdownTimeout == 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	mux := http.NewServeMux()
	s := &Server{
		orch:    orch,
		logger:  opts.Logger,
		opts:    opts,
		baseCtx: baseCtx,
		cancel:  cancel,
	}
	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           withBasicMiddleware(mux, opts.Logger),
		ReadTimeout:       opts.ReadTimeout,
		ReadHeaderTimeout: opts.ReadHeaderTimeout,
		WriteTimeout:      opts.WriteTimeout,
		IdleTimeout:       opts.IdleTimeout,
		ErrorLog:          slog.NewLogLogger(opts.Logger.Handler(), slog.LevelError),
	}

	// Routes
	mux.HandleFunc("/"+APIVersion+"/healthz", s.handleHealthz)
	mux.HandleFunc("/"+APIVersion+"/scan", s.handleScan)
	mux.HandleFunc("/"+APIVersion+"/scan/abort", s.handleAbort)
	mux.HandleFunc("/"+APIVersion+"/scan/export", s.handleExport)

	return s
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start binds the listen address and serves in a background goroutine.
func (s *Server) Start() error {
	l, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("api: listen %s: %w", s.http.Addr, err)
	}
	go func() {
		s.logger.Info("api listening", "addr", l.Addr().String())
		if err := s.http.Serve(l); !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api serve", "err", err)
		}
	}()
	return nil
}

// Stop aborts any running scan and shuts the server down, waiting up to
// ShutdownTimeout.
func (s *Server) Stop(ctx context.Context) error {
	s.cancel()
	timeout := s.opts.ShutdownTimeout
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"state":     string(s.orch.State()),
		"timestamp": TimeNow().UTC().Format(time.RFC3339),
	})
}

// handleScan serves the scan resource.
//
//	GET    snapshot of the current run
//	POST   start a run (202, 400 on bad input, 409 while another runs)
//	DELETE discard a finished run (409 while running)
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.getScan(w)
	case http.MethodPost:
		s.startScan(w, r)
	case http.MethodDelete:
		if err := s.orch.Clear(); err != nil {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"state": string(s.orch.State())})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) getScan(w http.ResponseWriter) {
	snap := s.orch.Snapshot()
	view := ScanView{
		State:       string(snap.State),
		Aborted:     snap.Aborted,
		Phase1:      snap.Phase1,
		Phase2:      snap.Phase2,
		Targets:     snap.Targets,
		Results:     output.SortByLatency(snap.Results),
		Matrix:      snap.Matrix,
		StartedAt:   formatTime(snap.StartedAt),
		FinishedAt:  formatTime(snap.FinishedAt),
		Events:      snap.Events,
		GeneratedAt: TimeNow().UTC().Format(time.RFC3339),
	}
	if snap.State.Finished() {
		stats := analytics.Compute(snap.Results, snap.Matrix, snap.Duration())
		view.Summary = &stats
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) startScan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Concurrency < 0 || req.TimeoutSeconds < 0 || req.TargetTimeoutSeconds < 0 {
		writeError(w, http.StatusBadRequest, "concurrency and timeouts must be >= 0")
		return
	}

	sr := s.opts.Defaults
	if req.Proxies != "" {
		sr.ProxyText = req.Proxies
	}
	if len(req.Targets) > 0 {
		sr.Targets = req.Targets
		sr.TargetText = ""
	}
	if req.Concurrency > 0 {
		sr.Concurrency = req.Concurrency
	}
	if req.TimeoutSeconds > 0 {
		sr.TimeoutSeconds = req.TimeoutSeconds
	}
	if req.TargetTimeoutSeconds > 0 {
		sr.TargetTimeoutSeconds = req.TargetTimeoutSeconds
	}
	if req.ForceProtocol != "" {
		sr.ForceProtocol = req.ForceProtocol
	}

	if _, err := s.orch.Start(s.baseCtx, sr); err != nil {
		switch {
		case errors.Is(err, scan.ErrScanActive):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, scan.ErrNoCandidates), errors.Is(err, parser.ErrInvalidForce):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	snap := s.orch.Snapshot()
	s.logger.Info("scan accepted", "candidates", len(snap.Candidates), "targets", len(snap.Targets))
	writeJSON(w, http.StatusAccepted, ScanAccepted{
		State:      string(snap.State),
		Candidates: len(snap.Candidates),
		Targets:    len(snap.Targets),
	})
}

func (s *Server) handleAbort(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.orch.Abort() {
		writeError(w, http.StatusConflict, "no running scan")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"state": string(s.orch.State())})
}

// handleExport renders the current results in one of the output formats.
// Query: format=plain|access|csv|json|report (default json), isp=substring.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = output.FormatJSON
	}

	snap := s.orch.Snapshot()
	if snap.StartedAt.IsZero() {
		writeError(w, http.StatusNotFound, "no scan results")
		return
	}
	results := output.FilterByISP(snap.Results, r.URL.Query().Get("isp"))
	rep := output.Report{
		Results: results,
		Targets: snap.Targets,
		Matrix:  snap.Matrix,
		Summary: analytics.Compute(snap.Results, snap.Matrix, snap.Duration()),
	}

	switch format {
	case output.FormatPlain, output.FormatAccess, output.FormatCSV, output.FormatJSON, output.FormatReport:
	default:
		writeError(w, http.StatusBadRequest, "unsupported format: "+format)
		return
	}
	w.Header().Set("Content-Type", output.ContentType(format))
	w.WriteHeader(http.StatusOK)
	if err := output.Export(w, format, rep); err != nil {
		s.logger.Warn("export failed", "format", format, "err", err)
	}
}

// Basic middleware: JSON content type and request logging.
// No CORS or auth: this is a local control server.
func withBasicMiddleware(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := TimeNow()
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
		logger.Debug("api request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", time.Since(start).Milliseconds(),
			"ua", r.UserAgent(),
		)
	})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, APIError{
		Error:     msg,
		Timestamp: TimeNow().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(v)
}
