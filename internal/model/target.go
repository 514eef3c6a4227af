package model

import (
	"fmt"
	"strconv"
	"strings"
)

type OutcomeKind uint8

const (
	OutcomeTimeout OutcomeKind = iota
	OutcomeAccessGranted
	OutcomeForbidden
	OutcomeNotFound
	OutcomeHTTPError
)

// Outcome is one cell of the target matrix.
type Outcome struct {
	Kind OutcomeKind
	Code int // HTTP status, zero for Timeout
}

// OutcomeFromStatus classifies an HTTP status code.
func OutcomeFromStatus(code int) Outcome {
	switch code {
	case 200:
		return Outcome{Kind: OutcomeAccessGranted, Code: code}
	case 403:
		return Outcome{Kind: OutcomeForbidden, Code: code}
	case 404:
		return Outcome{Kind: OutcomeNotFound, Code: code}
	}
	return Outcome{Kind: OutcomeHTTPError, Code: code}
}

func (o Outcome) Granted() bool { return o.Kind == OutcomeAccessGranted }

func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeAccessGranted:
		return "ACCESS_GRANTED"
	case OutcomeForbidden:
		return "FORBIDDEN"
	case OutcomeNotFound:
		return "NOT_FOUND"
	case OutcomeHTTPError:
		return "ERR_" + strconv.Itoa(o.Code)
	}
	return "TIMEOUT"
}

// ParseOutcome is the inverse of Outcome.String.
func ParseOutcome(s string) (Outcome, error) {
	switch s {
	case "ACCESS_GRANTED":
		return OutcomeFromStatus(200), nil
	case "FORBIDDEN":
		return OutcomeFromStatus(403), nil
	case "NOT_FOUND":
		return OutcomeFromStatus(404), nil
	case "TIMEOUT":
		return Outcome{Kind: OutcomeTimeout}, nil
	}
	if rest, ok := strings.CutPrefix(s, "ERR_"); ok {
		code, err := strconv.Atoi(rest)
		if err == nil {
			return Outcome{Kind: OutcomeHTTPError, Code: code}, nil
		}
	}
	return Outcome{}, fmt.Errorf("unknown outcome %q", s)
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

func (o *Outcome) UnmarshalText(b []byte) error {
	parsed, err := ParseOutcome(string(b))
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

// TargetResult holds every target outcome for one proxy.
type TargetResult struct {
	ProxyKey  string             `json:"proxy"`
	Scheme    Scheme             `json:"protocol"`
	ISP       string             `json:"isp"`
	PerTarget map[string]Outcome `json:"targets"`
}

// Label is the display name used in the matrix.
func (t TargetResult) Label() string {
	if t.ISP == "" || t.ISP == ISPUnknown {
		return t.ProxyKey
	}
	return t.ProxyKey + " (" + t.ISP + ")"
}

// Granted returns the targets that answered 200, in the order of targets.
func (t TargetResult) Granted(targets []string) []string {
	var out []string
	for _, u := range targets {
		if o, ok := t.PerTarget[u]; ok && o.Granted() {
			out = append(out, u)
		}
	}
	return out
}

// AnyGranted reports whether at least one cell is AccessGranted.
func (t TargetResult) AnyGranted() bool {
	for _, o := range t.PerTarget {
		if o.Granted() {
			return true
		}
	}
	return false
}

// Clone deep copies the per-target map.
func (t TargetResult) Clone() TargetResult {
	m := make(map[string]Outcome, len(t.PerTarget))
	for k, v := range t.PerTarget {
		m[k] = v
	}
	t.PerTarget = m
	return t
}
