package probe

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/proxy"
	"h12.io/socks"

	"github.com/August26/proxymatrix/internal/model"
)

var ErrUnsupportedScheme = errors.New("unsupported proxy scheme")

// buildTransport returns a one-shot transport that tunnels through cand.
func buildTransport(cand model.Candidate, timeout time.Duration, insecure bool) (*http.Transport, error) {
	dialer := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DisableKeepAlives:     true,
		TLSHandshakeTimeout:   timeout,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: insecure,
		},
	}

	switch cand.Scheme {
	case model.SchemeHTTP, model.SchemeHTTPS:
		// Listed "https" proxies are plain HTTP proxies that accept CONNECT;
		// the proxy hop itself is never TLS.
		transport.Proxy = http.ProxyURL(&url.URL{
			Scheme: "http",
			Host:   cand.Key(),
		})
		transport.DialContext = dialer.DialContext

	case model.SchemeSOCKS5:
		d, err := proxy.SOCKS5("tcp", cand.Key(), nil, dialer)
		if err != nil {
			return nil, err
		}
		cd, ok := d.(proxy.ContextDialer)
		if !ok {
			return nil, errors.New("socks5 dialer does not implement DialContext")
		}
		transport.DialContext = cd.DialContext

	case model.SchemeSOCKS4:
		dial := socks.Dial(fmt.Sprintf("socks4://%s?timeout=%s", cand.Key(), timeout))
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialWithContext(ctx, func() (net.Conn, error) {
				return dial(network, addr)
			})
		}

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, cand.Scheme)
	}

	return transport, nil
}

// dialWithContext runs a context-unaware dial and gives up when ctx ends.
// A connection that arrives after that is closed.
func dialWithContext(ctx context.Context, dial func() (net.Conn, error)) (net.Conn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		c, err := dial()
		done <- result{c, err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if r := <-done; r.conn != nil {
				_ = r.conn.Close()
			}
		}()
		return nil, ctx.Err()
	case r := <-done:
		return r.conn, r.err
	}
}
