package model

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Scheme is the protocol spoken to the proxy itself.
type Scheme string

const (
	SchemeHTTP   Scheme = "http"
	SchemeHTTPS  Scheme = "https"
	SchemeSOCKS4 Scheme = "socks4"
	SchemeSOCKS5 Scheme = "socks5"
)

// ParseScheme maps a user supplied protocol name onto a Scheme.
// socks5h and socks4a are accepted as aliases.
func ParseScheme(s string) (Scheme, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "http":
		return SchemeHTTP, true
	case "https":
		return SchemeHTTPS, true
	case "socks4", "socks4a":
		return SchemeSOCKS4, true
	case "socks5", "socks5h":
		return SchemeSOCKS5, true
	}
	return "", false
}

// Candidate is a parsed, not yet tested proxy address.
// Identity is host:port; the scheme is not part of it.
type Candidate struct {
	Host   string `json:"ip"`
	Port   int    `json:"port"`
	Scheme Scheme `json:"protocol"`
}

// Key returns the host:port identity of the candidate.
func (c Candidate) Key() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// URL returns the normalized scheme://host:port form.
func (c Candidate) URL() string {
	return string(c.Scheme) + "://" + c.Key()
}

type Status string

const (
	StatusWorking Status = "Working"
	StatusDead    Status = "Dead"
)

type Anonymity string

const (
	AnonymityTransparent Anonymity = "Transparent"
	AnonymityAnonymous   Anonymity = "Anonymous"
	AnonymityElite       Anonymity = "Elite"
	AnonymityUnknown     Anonymity = "Unknown"
)

const (
	// LatencyUnmeasured is reported for every proxy that is not Working.
	LatencyUnmeasured int64 = 99999

	CountryUnknown  = "-"
	ISPUnknown      = "Unknown"
	PublicIPUnknown = "Unknown"
)

// LatencyBucket is a coarse speed class used for display and sorting.
type LatencyBucket string

const (
	LatencyFast       LatencyBucket = "fast"
	LatencyModerate   LatencyBucket = "moderate"
	LatencySlow       LatencyBucket = "slow"
	LatencyNotMeasure LatencyBucket = "unmeasured"
)

// BucketFor classifies a latency in milliseconds.
func BucketFor(latencyMs int64) LatencyBucket {
	switch {
	case latencyMs < 0 || latencyMs >= LatencyUnmeasured:
		return LatencyNotMeasure
	case latencyMs < 200:
		return LatencyFast
	case latencyMs < 800:
		return LatencyModerate
	default:
		return LatencySlow
	}
}

// ProxyCheckResult is the Phase 1 result for a single candidate.
// It is produced once and never mutated afterwards.
type ProxyCheckResult struct {
	Candidate
	Status      Status    `json:"status"`
	LatencyMs   int64     `json:"latency_ms"`
	CountryCode string    `json:"country"`
	ISP         string    `json:"isp"`
	Anonymity   Anonymity `json:"anonymity"`
	ExitIP      string    `json:"exit_ip,omitempty"` // origin reported by the echo endpoint
	CheckedAt   time.Time `json:"checked_at"`
}

// NewDeadResult returns the default classification for a candidate.
func NewDeadResult(c Candidate) ProxyCheckResult {
	return ProxyCheckResult{
		Candidate:   c,
		Status:      StatusDead,
		LatencyMs:   LatencyUnmeasured,
		CountryCode: CountryUnknown,
		ISP:         ISPUnknown,
		Anonymity:   AnonymityUnknown,
	}
}

func (r ProxyCheckResult) Working() bool { return r.Status == StatusWorking }

func (r ProxyCheckResult) Bucket() LatencyBucket {
	if !r.Working() {
		return LatencyNotMeasure
	}
	return BucketFor(r.LatencyMs)
}

// ProbeOutcome is what a single GET through a proxy produced.
// Err is set for every network level failure; causes are not distinguished.
type ProbeOutcome struct {
	StatusCode int
	Err        error
	ElapsedMs  int64 // only set for HTTP 200
	Body       []byte
}

func (o ProbeOutcome) Failed() bool { return o.Err != nil }

// GeoInfo describes geographical / provider information associated with an IP.
type GeoInfo struct {
	CountryCode string
	Country     string
	ISP         string
}

func (g GeoInfo) String() string {
	return fmt.Sprintf("%s (%s)", g.CountryCode, g.ISP)
}
