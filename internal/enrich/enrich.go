// Package enrich looks up the tester's public IP and geo/ISP data for proxy
// hosts. Every call is best effort: failures become sentinel values and are
// never reported to the caller as errors.
package enrich

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/August26/proxymatrix/internal/model"
)

const (
	DefaultPublicIPURL = "https://api.ipify.org"

	DefaultPublicIPTimeout = 3 * time.Second
	DefaultGeoTimeout      = 2 * time.Second
)

var ErrNoData = errors.New("no geo data")

// GeoResolver maps an IP literal to country / provider data.
type GeoResolver interface {
	Lookup(ctx context.Context, ip string) (model.GeoInfo, error)
}

// Client is called directly, never through the proxy under test.
type Client struct {
	HTTP            *http.Client
	PublicIPURL     string
	PublicIPTimeout time.Duration
	GeoTimeout      time.Duration
	Resolvers       []GeoResolver // tried in order, first hit wins
	Logger          *slog.Logger
}

// PublicIP returns the tester's own address or model.PublicIPUnknown.
func (c *Client) PublicIP(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, orDefault(c.PublicIPTimeout, DefaultPublicIPTimeout))
	defer cancel()

	u := c.PublicIPURL
	if u == "" {
		u = DefaultPublicIPURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return model.PublicIPUnknown
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		c.logger().Debug("public ip lookup failed", "err", err)
		return model.PublicIPUnknown
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return model.PublicIPUnknown
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return model.PublicIPUnknown
	}
	ip := strings.TrimSpace(string(b))
	if net.ParseIP(ip) == nil {
		return model.PublicIPUnknown
	}
	return ip
}

// Geo tries each resolver with a short timeout and returns the first hit.
func (c *Client) Geo(ctx context.Context, ip string) (model.GeoInfo, bool) {
	for _, r := range c.Resolvers {
		lctx, cancel := context.WithTimeout(ctx, orDefault(c.GeoTimeout, DefaultGeoTimeout))
		info, err := r.Lookup(lctx, ip)
		cancel()
		if err == nil {
			return info, true
		}
		c.logger().Debug("geo lookup failed", "ip", ip, "err", err)
	}
	return model.GeoInfo{}, false
}

// Close releases resolvers that hold files open.
func (c *Client) Close() error {
	var errs []error
	for _, r := range c.Resolvers {
		if cl, ok := r.(io.Closer); ok {
			errs = append(errs, cl.Close())
		}
	}
	return errors.Join(errs...)
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

func (c *Client) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
