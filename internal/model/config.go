package model

// Config is the full run configuration. It can be loaded from a YAML
// profile and overridden by command line flags.
type Config struct {
	Concurrency          int    `yaml:"concurrency"`
	TimeoutSeconds       int    `yaml:"timeout_seconds"`        // Phase 1 probe timeout
	TargetTimeoutSeconds int    `yaml:"target_timeout_seconds"` // Phase 2 per-target timeout
	ForceProtocol        string `yaml:"force_protocol"`         // AUTO or a scheme

	InputFile   string   `yaml:"input"`
	TargetsFile string   `yaml:"targets_file"`
	Targets     []string `yaml:"targets"`

	OutputFile   string `yaml:"output"`
	OutputFormat string `yaml:"format"` // json | csv | plain | access

	Verbose   bool   `yaml:"verbose"`
	LogFormat string `yaml:"log_format"` // json | text

	EchoURL          string  `yaml:"echo_url"`
	PublicIPURL      string  `yaml:"public_ip_url"`
	GeoURL           string  `yaml:"geo_url"`
	GeoRatePerMinute float64 `yaml:"geo_rate_per_minute"` // <= 0 disables the budget
	GeoIPDB          string  `yaml:"geoip_db"`
	ASNDB            string  `yaml:"asn_db"`

	UserAgent   string `yaml:"user_agent"`
	InsecureTLS bool   `yaml:"insecure_tls"`

	Listen string `yaml:"listen"` // serve the control API instead of a one-shot run
}
