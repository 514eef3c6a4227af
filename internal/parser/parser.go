package parser

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/August26/proxymatrix/internal/model"
)

// ForceAuto disables protocol forcing.
const ForceAuto = "AUTO"

var ErrInvalidForce = errors.New("invalid protocol forcing mode")

var (
	// scheme://ip:port or ip:port anywhere in the line
	hostPortRe = regexp.MustCompile(`(?i)(?:([a-z0-9]+)://)?(\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}):(\d+)`)
	// octet values are deliberately not range checked
	ipv4Re  = regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}$`)
	digitRe = regexp.MustCompile(`^\d+$`)
)

// ParseForce parses the protocol forcing option. AUTO (or empty) yields
// the zero Scheme, which means "no forcing".
func ParseForce(s string) (model.Scheme, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, ForceAuto) {
		return "", nil
	}
	sc, ok := model.ParseScheme(s)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidForce, s)
	}
	return sc, nil
}

// Parse turns free-form text into deduplicated candidates.
//
// Supported line shapes:
//
//	scheme://ip:port
//	ip:port
//	ip port [hint tokens]
//
// Blank, comment ('#') and unparseable lines are skipped silently.
// Duplicates on ip:port keep the first seen entry; output keeps first
// seen order. force, when non-empty, replaces sniffing for lines without
// an explicit scheme.
func Parse(raw string, force model.Scheme) []model.Candidate {
	var out []model.Candidate
	seen := make(map[string]struct{})

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		c, err := parseProxyLine(line, force)
		if err != nil {
			continue
		}
		key := c.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}

// parseProxyLine parses a single proxy line into a Candidate.
func parseProxyLine(line string, force model.Scheme) (model.Candidate, error) {
	var host, portStr, explicit string

	if m := hostPortRe.FindStringSubmatch(line); m != nil {
		explicit, host, portStr = m[1], m[2], m[3]
	} else {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return model.Candidate{}, fmt.Errorf("unrecognized proxy format: %q", line)
		}
		host, portStr = fields[0], fields[1]
	}

	if !ipv4Re.MatchString(host) {
		return model.Candidate{}, fmt.Errorf("invalid ipv4 literal in %q", line)
	}
	port, err := parsePort(portStr)
	if err != nil {
		return model.Candidate{}, fmt.Errorf("invalid port in %q: %w", line, err)
	}

	return model.Candidate{
		Host:   host,
		Port:   port,
		Scheme: resolveScheme(line, explicit, force),
	}, nil
}

func parsePort(s string) (int, error) {
	if !digitRe.MatchString(s) {
		return 0, fmt.Errorf("not numeric: %q", s)
	}
	port, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("out of range: %d", port)
	}
	return port, nil
}

// resolveScheme applies, in order: explicit prefix, forced scheme,
// substring sniffing (socks5 > socks4 > https), and finally http.
// The sniffing is a loose heuristic and is kept that way on purpose.
func resolveScheme(line, explicit string, force model.Scheme) model.Scheme {
	if explicit != "" {
		if s, ok := model.ParseScheme(explicit); ok {
			return s
		}
	}
	if force != "" {
		return force
	}
	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, "socks5"):
		return model.SchemeSOCKS5
	case strings.Contains(lower, "socks4"):
		return model.SchemeSOCKS4
	case strings.Contains(lower, "https"):
		return model.SchemeHTTPS
	}
	return model.SchemeHTTP
}

// ParseTargets returns the non-blank, trimmed, unique target URLs in order.
func ParseTargets(raw string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, line := range strings.Split(raw, "\n") {
		u := strings.TrimSpace(line)
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// Defrag returns the sorted set of non-blank trimmed lines.
func Defrag(raw string) string {
	set := make(map[string]struct{})
	for _, line := range strings.Split(raw, "\n") {
		if l := strings.TrimSpace(line); l != "" {
			set[l] = struct{}{}
		}
	}
	lines := make([]string, 0, len(set))
	for l := range set {
		lines = append(lines, l)
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}

// Normalize renders candidates back into scheme://ip:port lines.
func Normalize(cands []model.Candidate) string {
	lines := make([]string, len(cands))
	for i, c := range cands {
		lines[i] = c.URL()
	}
	return strings.Join(lines, "\n")
}

// LoadFromFile reads a whole list file.
func LoadFromFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("open input file: %w", err)
	}
	return string(b), nil
}

// LoadCandidates reads and parses a proxy list file.
func LoadCandidates(path string, force model.Scheme) ([]model.Candidate, error) {
	raw, err := LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw, force), nil
}
