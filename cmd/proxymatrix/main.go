package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/August26/proxymatrix/internal/analytics"
	"github.com/August26/proxymatrix/internal/api"
	"github.com/August26/proxymatrix/internal/checker"
	"github.com/August26/proxymatrix/internal/config"
	"github.com/August26/proxymatrix/internal/enrich"
	"github.com/August26/proxymatrix/internal/logging"
	"github.com/August26/proxymatrix/internal/model"
	"github.com/August26/proxymatrix/internal/output"
	"github.com/August26/proxymatrix/internal/parser"
	"github.com/August26/proxymatrix/internal/probe"
	"github.com/August26/proxymatrix/internal/scan"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.Default()
	var (
		profile    string
		targetCSV  string
		ispFilter  string
		defrag     bool
		noProgress bool
	)

	flag.StringVar(&profile, "config", "", "optional YAML profile; explicit flags override it")
	flag.StringVar(&cfg.InputFile, "input", "", "path to file with proxy list")
	flag.StringVar(&cfg.TargetsFile, "targets-file", "", "path to file with target URLs, one per line")
	flag.StringVar(&targetCSV, "targets", "", "comma separated target URLs")
	flag.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "number of concurrent workers per phase")
	flag.IntVar(&cfg.TimeoutSeconds, "timeout", cfg.TimeoutSeconds, "reachability probe timeout in seconds")
	flag.IntVar(&cfg.TargetTimeoutSeconds, "target-timeout", cfg.TargetTimeoutSeconds, "per-target timeout in seconds")
	flag.StringVar(&cfg.ForceProtocol, "force", cfg.ForceProtocol, "protocol forcing: AUTO | http | https | socks4 | socks5")
	flag.StringVar(&cfg.OutputFile, "output", "", "optional path to write results")
	flag.StringVar(&cfg.OutputFormat, "format", cfg.OutputFormat, "output format: json | csv | plain | access | report")
	flag.StringVar(&cfg.EchoURL, "echo-url", cfg.EchoURL, "connectivity judge returning origin + headers")
	flag.StringVar(&cfg.GeoIPDB, "geoip-db", "", "optional MaxMind country database (.mmdb)")
	flag.StringVar(&cfg.ASNDB, "asn-db", "", "optional MaxMind ASN database (.mmdb)")
	flag.BoolVar(&cfg.InsecureTLS, "insecure", false, "skip TLS verification for https targets and proxies")
	flag.StringVar(&cfg.Listen, "listen", "", "serve the control API on this address instead of a one-shot scan")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "enable debug logs")
	flag.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format: json | text")
	flag.StringVar(&ispFilter, "isp", "", "only report working proxies whose ISP contains this string")
	flag.BoolVar(&defrag, "defrag", false, "print the input file sorted and deduplicated, then exit")
	flag.BoolVar(&noProgress, "no-progress", false, "disable the progress bar")

	flag.Parse()

	if profile != "" {
		loaded, err := config.LoadFile(profile)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		cfg = overlayFlags(loaded, cfg)
	}
	if targetCSV != "" {
		cfg.Targets = append(cfg.Targets, strings.Split(targetCSV, ",")...)
	}

	log := logging.NewLogger(cfg.Verbose, cfg.LogFormat)

	if defrag {
		if err := runDefrag(cfg.InputFile); err != nil {
			log.Error("defrag failed", "err", err)
			return 1
		}
		return 0
	}

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	ctx, stop := interruptContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	enricher := buildEnricher(cfg, log)
	defer enricher.Close()

	req, err := buildRequest(cfg)
	if err != nil {
		log.Error("failed to load input", "err", err)
		return 1
	}

	var bars *progressBars
	if !noProgress && cfg.Listen == "" {
		bars = newProgressBars(os.Stderr)
	}

	prober := &probe.Client{UserAgent: cfg.UserAgent, InsecureTLS: cfg.InsecureTLS}
	orch := scan.New(scan.Options{
		Reachability: &checker.Reachability{
			Prober:   prober,
			Enricher: enricher,
			EchoURL:  cfg.EchoURL,
			Logger:   log,
		},
		Matrix:     &checker.Matrix{Prober: prober, Logger: log},
		Logger:     log,
		OnProgress: bars.update,
	})

	log.Info("starting proxymatrix",
		"concurrency", cfg.Concurrency,
		"timeout_seconds", cfg.TimeoutSeconds,
		"target_timeout_seconds", cfg.TargetTimeoutSeconds,
		"force", cfg.ForceProtocol,
		"targets", len(cfg.Targets),
	)

	if cfg.Listen != "" {
		return serve(ctx, orch, cfg, req, log)
	}

	snap, err := orch.Run(ctx, req)
	bars.finish()
	if err != nil {
		if errors.Is(err, scan.ErrNoCandidates) {
			log.Error("no valid proxies in input", "path", cfg.InputFile)
		} else {
			log.Error("scan failed", "err", err)
		}
		return 1
	}

	stats := analytics.Compute(snap.Results, snap.Matrix, snap.Duration())
	log.Info("scan finished",
		"state", snap.State,
		"total_ms", stats.TotalProcessingTimeMs,
		"working", stats.WorkingProxies,
		"total", stats.TotalProxies,
		"reachable", stats.ReachableProxies,
	)

	rep := output.Report{
		Results: output.FilterByISP(snap.Results, ispFilter),
		Targets: snap.Targets,
		Matrix:  snap.Matrix,
		Summary: stats,
	}

	// Print tables and summary to stdout
	output.PrintResultsTable(os.Stdout, rep.Results)
	output.PrintMatrix(os.Stdout, rep.Matrix, rep.Targets)
	if cfg.Verbose {
		output.PrintDeadList(os.Stdout, rep.Results)
	}
	output.PrintSummary(os.Stdout, stats)

	if cfg.OutputFile != "" {
		if err := output.WriteFile(cfg.OutputFile, cfg.OutputFormat, rep); err != nil {
			log.Error("failed to write output file", "err", err, "path", cfg.OutputFile)
		} else {
			log.Info("results written",
				"path", cfg.OutputFile,
				"format", cfg.OutputFormat,
			)
		}
	}

	if snap.State == scan.StateAborted {
		log.Warn("scan aborted, results are partial")
		return 130
	}
	return 0
}

// interruptContext is cancelled by the first signal. The handler is
// released right away so a second signal terminates the process while
// in-flight probes drain.
func interruptContext(parent context.Context, sigs ...os.Signal) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, sigs...)
	context.AfterFunc(ctx, stop)
	return ctx, stop
}

// overlayFlags copies the flags that were set on the command line onto the
// profile.
func overlayFlags(profile, flags model.Config) model.Config {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "input":
			profile.InputFile = flags.InputFile
		case "targets-file":
			profile.TargetsFile = flags.TargetsFile
		case "concurrency":
			profile.Concurrency = flags.Concurrency
		case "timeout":
			profile.TimeoutSeconds = flags.TimeoutSeconds
		case "target-timeout":
			profile.TargetTimeoutSeconds = flags.TargetTimeoutSeconds
		case "force":
			profile.ForceProtocol = flags.ForceProtocol
		case "output":
			profile.OutputFile = flags.OutputFile
		case "format":
			profile.OutputFormat = flags.OutputFormat
		case "echo-url":
			profile.EchoURL = flags.EchoURL
		case "geoip-db":
			profile.GeoIPDB = flags.GeoIPDB
		case "asn-db":
			profile.ASNDB = flags.ASNDB
		case "insecure":
			profile.InsecureTLS = flags.InsecureTLS
		case "listen":
			profile.Listen = flags.Listen
		case "verbose":
			profile.Verbose = flags.Verbose
		case "log-format":
			profile.LogFormat = flags.LogFormat
		}
	})
	return profile
}

func buildRequest(cfg model.Config) (scan.Request, error) {
	req := scan.Request{
		Targets:              cfg.Targets,
		Concurrency:          cfg.Concurrency,
		TimeoutSeconds:       cfg.TimeoutSeconds,
		TargetTimeoutSeconds: cfg.TargetTimeoutSeconds,
		ForceProtocol:        cfg.ForceProtocol,
	}
	if cfg.InputFile != "" {
		text, err := parser.LoadFromFile(cfg.InputFile)
		if err != nil {
			return req, err
		}
		req.ProxyText = text
	}
	if cfg.TargetsFile != "" {
		text, err := parser.LoadFromFile(cfg.TargetsFile)
		if err != nil {
			return req, err
		}
		req.TargetText = text
	}
	return req, nil
}

func buildEnricher(cfg model.Config, log *slog.Logger) *enrich.Client {
	c := &enrich.Client{
		PublicIPURL: cfg.PublicIPURL,
		Logger:      log,
	}
	if cfg.GeoIPDB != "" || cfg.ASNDB != "" {
		mm, err := enrich.OpenMaxMind(cfg.GeoIPDB, cfg.ASNDB)
		if err != nil {
			log.Warn("maxmind databases unavailable", "err", err)
		} else {
			c.Resolvers = append(c.Resolvers, mm)
		}
	}
	if cfg.GeoURL != "" {
		c.Resolvers = append(c.Resolvers, enrich.NewIPAPI(nil, cfg.GeoURL, cfg.GeoRatePerMinute))
	}
	return c
}

func runDefrag(path string) error {
	text, err := parser.LoadFromFile(path)
	if err != nil {
		return err
	}
	fmt.Println(parser.Defrag(text))
	return nil
}

func serve(ctx context.Context, orch *scan.Orchestrator, cfg model.Config, defaults scan.Request, log *slog.Logger) int {
	srv := api.NewServer(orch, api.ServerOptions{
		Addr:     cfg.Listen,
		Logger:   log,
		Defaults: defaults,
	})
	if err := srv.Start(); err != nil {
		log.Error("api start failed", "err", err)
		return 1
	}

	<-ctx.Done()
	log.Info("shutting down")
	if err := srv.Stop(context.Background()); err != nil {
		log.Error("api shutdown", "err", err)
		return 1
	}
	return 0
}
