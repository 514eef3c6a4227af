package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/August26/proxymatrix/internal/model"
)

const (
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Safari/537.36"
	DefaultMaxBody   = 64 << 10
)

// Client performs single GET requests through a proxy candidate.
// The zero value is usable.
type Client struct {
	UserAgent   string
	InsecureTLS bool
	MaxBody     int64 // bytes of body kept in the outcome
}

// Probe issues one GET to targetURL through the candidate. The same proxy
// URL is used for http and https targets. Every network level failure ends
// up in ProbeOutcome.Err; causes are not told apart.
func (c *Client) Probe(ctx context.Context, cand model.Candidate, targetURL string, timeout time.Duration, headers http.Header) model.ProbeOutcome {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := c.httpClient(cand, timeout)
	if err != nil {
		return model.ProbeOutcome{Err: fmt.Errorf("client_build_error: %w", err)}
	}
	defer client.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return model.ProbeOutcome{Err: err}
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent())
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return model.ProbeOutcome{Err: err}
	}
	elapsed := time.Since(start)
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody()))
	if err != nil {
		return model.ProbeOutcome{Err: fmt.Errorf("read body: %w", err)}
	}

	out := model.ProbeOutcome{
		StatusCode: resp.StatusCode,
		Body:       body,
	}
	if resp.StatusCode == http.StatusOK {
		out.ElapsedMs = elapsed.Milliseconds()
	}
	return out
}

func (c *Client) httpClient(cand model.Candidate, timeout time.Duration) (*http.Client, error) {
	transport, err := buildTransport(cand, timeout, c.InsecureTLS)
	if err != nil {
		return nil, err
	}
	// No Timeout here: the per-request context carries the deadline.
	return &http.Client{Transport: transport}, nil
}

func (c *Client) userAgent() string {
	if c.UserAgent == "" {
		return DefaultUserAgent
	}
	return c.UserAgent
}

func (c *Client) maxBody() int64 {
	if c.MaxBody <= 0 {
		return DefaultMaxBody
	}
	return c.MaxBody
}
