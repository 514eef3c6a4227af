package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/August26/proxymatrix/internal/checker"
	"github.com/August26/proxymatrix/internal/enrich"
	"github.com/August26/proxymatrix/internal/model"
	"github.com/August26/proxymatrix/internal/output"
	"github.com/August26/proxymatrix/internal/parser"
)

const (
	DefaultConcurrency          = 25
	DefaultTimeoutSeconds       = 6
	DefaultTargetTimeoutSeconds = 5

	MaxConcurrency = 500
)

var ErrInvalidConfig = errors.New("invalid config")

// Default returns the configuration used when no profile or flag says
// otherwise.
func Default() model.Config {
	return model.Config{
		Concurrency:          DefaultConcurrency,
		TimeoutSeconds:       DefaultTimeoutSeconds,
		TargetTimeoutSeconds: DefaultTargetTimeoutSeconds,
		ForceProtocol:        parser.ForceAuto,
		OutputFormat:         output.FormatJSON,
		LogFormat:            "json",
		EchoURL:              checker.DefaultEchoURL,
		PublicIPURL:          enrich.DefaultPublicIPURL,
		GeoURL:               enrich.DefaultGeoURL,
		GeoRatePerMinute:     enrich.DefaultGeoRatePerMinute,
	}
}

// LoadFile reads a YAML profile on top of Default. Unknown keys are
// rejected so typos do not silently fall back to defaults.
func LoadFile(path string) (model.Config, error) {
	cfg := Default()

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks ranges and enumerations.
func Validate(cfg model.Config) error {
	var problems []string

	if cfg.Concurrency < 1 || cfg.Concurrency > MaxConcurrency {
		problems = append(problems, fmt.Sprintf("concurrency must be in 1..%d, got %d", MaxConcurrency, cfg.Concurrency))
	}
	if cfg.TimeoutSeconds < 1 {
		problems = append(problems, fmt.Sprintf("timeout_seconds must be positive, got %d", cfg.TimeoutSeconds))
	}
	if cfg.TargetTimeoutSeconds < 0 {
		problems = append(problems, fmt.Sprintf("target_timeout_seconds must not be negative, got %d", cfg.TargetTimeoutSeconds))
	}
	if _, err := parser.ParseForce(cfg.ForceProtocol); err != nil {
		problems = append(problems, err.Error())
	}
	switch cfg.OutputFormat {
	case output.FormatJSON, output.FormatCSV, output.FormatPlain, output.FormatAccess, output.FormatReport:
	default:
		problems = append(problems, fmt.Sprintf("unsupported format %q", cfg.OutputFormat))
	}
	switch cfg.LogFormat {
	case "json", "text":
	default:
		problems = append(problems, fmt.Sprintf("unsupported log_format %q", cfg.LogFormat))
	}
	if cfg.Listen == "" && cfg.InputFile == "" {
		problems = append(problems, "input file is required")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
