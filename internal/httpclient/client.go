// Package httpclient provides an http.Client wrapper that guards outbound
// requests against SSRF: scheme allow-listing, redirect caps, and optional
// refusal to dial private or loopback addresses.
package httpclient

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/promptpipe/promptpipe/errors"
)

// Options controls the protections applied by a SafeClient.
type Options struct {
	// BlockPrivateHosts refuses to dial loopback, RFC 1918, link-local,
	// and otherwise non-public addresses, including after DNS resolution.
	BlockPrivateHosts bool
	// MaxRedirects caps redirect following. Zero means the default of 10.
	MaxRedirects int
	// AllowedSchemes defaults to http and https.
	AllowedSchemes []string
}

// SafeClient wraps http.Client with outbound request guards.
type SafeClient struct {
	*http.Client
	allowedSchemes    []string
	blockPrivateHosts bool
	maxRedirects      int
}

// New creates a SafeClient with the given timeout and options.
func New(timeout time.Duration, opts Options) *SafeClient {
	c := &SafeClient{
		Client:            &http.Client{Timeout: timeout},
		allowedSchemes:    opts.AllowedSchemes,
		blockPrivateHosts: opts.BlockPrivateHosts,
		maxRedirects:      opts.MaxRedirects,
	}
	if len(c.allowedSchemes) == 0 {
		c.allowedSchemes = []string{"http", "https"}
	}
	if c.maxRedirects == 0 {
		c.maxRedirects = 10
	}

	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= c.maxRedirects {
			return errors.Newf("stopped after %d redirects", c.maxRedirects)
		}
		if err := c.validateURL(req.URL); err != nil {
			return errors.Wrap(err, "redirect blocked")
		}
		return nil
	}

	if c.blockPrivateHosts {
		dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
		c.Transport = &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				host, _, err := net.SplitHostPort(addr)
				if err != nil {
					return nil, errors.Wrap(err, "invalid address")
				}
				ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
				if err != nil {
					return nil, errors.Wrapf(err, "failed to resolve host %q", host)
				}
				for _, ip := range ips {
					if isNonPublicIP(ip) {
						return nil, errors.Newf("non-public address blocked: %s", ip)
					}
				}
				return dialer.DialContext(ctx, network, addr)
			},
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		}
	}

	return c
}

// ValidateURL parses and validates a URL string against the client's guards.
func (c *SafeClient) ValidateURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid URL")
	}
	if err := c.validateURL(u); err != nil {
		return nil, err
	}
	return u, nil
}

// Do executes a request after validating its URL.
func (c *SafeClient) Do(req *http.Request) (*http.Response, error) {
	if err := c.validateURL(req.URL); err != nil {
		return nil, errors.Wrap(err, "request blocked")
	}
	return c.Client.Do(req)
}

func (c *SafeClient) validateURL(u *url.URL) error {
	scheme := strings.ToLower(u.Scheme)
	allowed := false
	for _, s := range c.allowedSchemes {
		if scheme == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return errors.Newf("scheme %q not allowed", scheme)
	}

	if u.User != nil {
		// http://evil.com@localhost/ style URL confusion
		return errors.New("URL must not carry userinfo")
	}

	hostname := u.Hostname()
	if hostname == "" {
		return errors.New("URL missing hostname")
	}

	if c.blockPrivateHosts {
		if isLocalHostname(hostname) {
			return errors.New("localhost access blocked")
		}
		if ip := net.ParseIP(hostname); ip != nil && isNonPublicIP(ip) {
			return errors.Newf("non-public address blocked: %s", hostname)
		}
	}

	return nil
}

// isNonPublicIP reports whether the address must not be dialed when private
// host blocking is on. Resolved addresses are checked again in DialContext
// so DNS rebinding cannot sidestep the URL-level check.
func isNonPublicIP(ip net.IP) bool {
	if ip4 := ip.To4(); ip4 != nil {
		ip = ip4
	}
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsMulticast() ||
		ip.IsUnspecified()
}

func isLocalHostname(hostname string) bool {
	host := strings.ToLower(hostname)
	return host == "localhost" ||
		host == "localhost.localdomain" ||
		strings.HasSuffix(host, ".localhost")
}

// Wrap adapts an existing http.Client into a SafeClient with private host
// blocking disabled. Intended for tests that target httptest servers on
// loopback addresses.
func Wrap(client *http.Client) *SafeClient {
	return &SafeClient{
		Client:         client,
		allowedSchemes: []string{"http", "https"},
		maxRedirects:   10,
	}
}
