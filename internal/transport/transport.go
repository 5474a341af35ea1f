// Package transport builds the HTTP client used against both upstream
// sources. Calls carry a per-source identity profile, a bounded timeout,
// and a retry policy limited to transient server errors. A politeness
// pacer spaces successive requests to the same source.
package transport

import (
	"bytes"
	"context"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/time/rate"
)

// Profile carries the request identity a source expects to see.
type Profile struct {
	UserAgent      string
	Referer        string
	Accept         string
	Origin         string
	XRequestedWith string
}

// Options configures a Client.
type Options struct {
	Profile Profile

	// Timeout bounds every outbound call. Default 15s; heavier operations
	// (the form POST) pass their own deadline via context.
	Timeout time.Duration

	// MaxAttempts is the total number of tries for 5xx responses,
	// including the first. Default 3.
	MaxAttempts int

	// InitialBackoff is the delay before the first retry, doubled on each
	// subsequent one. Default 1s.
	InitialBackoff time.Duration

	// PaceMin/PaceMax bound the politeness pause between requests to the
	// same source. Defaults 500ms / 1.5s. Not a correctness requirement.
	PaceMin time.Duration
	PaceMax time.Duration
}

// Response is a fully drained HTTP response. Draining up front keeps
// error handling in one place; bodies here are small report pages.
type Response struct {
	StatusCode int
	Body       []byte
	Cookies    []*http.Cookie
}

// Client is an HTTP client bound to one source's identity profile.
// It carries a cookie jar so a warm-up GET's session cookie rides along
// on the following POST.
type Client struct {
	hc      *http.Client
	opts    Options
	limiter *rate.Limiter
}

// New creates a Client with the given options.
func New(opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialBackoff == 0 {
		opts.InitialBackoff = time.Second
	}
	if opts.PaceMin == 0 {
		opts.PaceMin = 500 * time.Millisecond
	}
	if opts.PaceMax < opts.PaceMin {
		opts.PaceMax = opts.PaceMin + time.Second
	}

	jar, _ := cookiejar.New(nil)
	return &Client{
		hc: &http.Client{
			Timeout: opts.Timeout,
			Jar:     jar,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:    opts,
		limiter: rate.NewLimiter(rate.Every(opts.PaceMin), 1),
	}
}

// Pace blocks for the politeness interval between consecutive requests:
// the rate limiter enforces the minimum spacing and a random jitter
// stretches it toward PaceMax.
func (c *Client) Pace(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "transport: pace")
	}
	extra := c.opts.PaceMax - c.opts.PaceMin
	if extra <= 0 {
		return nil
	}
	t := time.NewTimer(rand.N(extra))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Get issues a GET with the identity profile applied.
func (c *Client) Get(ctx context.Context, rawURL string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "transport: create request")
	}
	return c.do(req)
}

// PostForm issues an application/x-www-form-urlencoded POST.
func (c *Client) PostForm(ctx context.Context, rawURL string, form url.Values) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, eris.Wrap(err, "transport: create request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func (c *Client) applyProfile(req *http.Request) {
	p := c.opts.Profile
	if p.UserAgent != "" {
		req.Header.Set("User-Agent", p.UserAgent)
	}
	if p.Referer != "" {
		req.Header.Set("Referer", p.Referer)
	}
	if p.Accept != "" {
		req.Header.Set("Accept", p.Accept)
	}
	if p.Origin != "" {
		req.Header.Set("Origin", p.Origin)
	}
	if p.XRequestedWith != "" {
		req.Header.Set("X-Requested-With", p.XRequestedWith)
	}
}

// do executes the request, retrying only on 500/502/503/504. Timeouts,
// connection errors and non-5xx statuses are not retried here: the
// caller treats them as a zero-yield unit and moves on.
func (c *Client) do(req *http.Request) (*Response, error) {
	c.applyProfile(req)

	var lastStatus int
	for attempt := 0; attempt < c.opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := c.backoff(req.Context(), attempt-1); err != nil {
				return nil, err
			}
			zap.L().Warn("transport: retrying after server error",
				zap.String("url", req.URL.String()),
				zap.Int("status", lastStatus),
				zap.Int("attempt", attempt+1),
			)
		}

		clone := req.Clone(req.Context())
		if clone.GetBody != nil {
			body, err := clone.GetBody()
			if err != nil {
				return nil, eris.Wrap(err, "transport: rewind request body")
			}
			clone.Body = body
		}

		resp, err := c.hc.Do(clone)
		if err != nil {
			return nil, eris.Wrapf(err, "transport: %s %s", req.Method, req.URL)
		}

		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return nil, eris.Wrapf(err, "transport: read body from %s", req.URL)
		}

		if isRetryableStatus(resp.StatusCode) {
			lastStatus = resp.StatusCode
			continue
		}

		return &Response{
			StatusCode: resp.StatusCode,
			Body:       body,
			Cookies:    resp.Cookies(),
		}, nil
	}

	return nil, eris.Errorf("transport: http %d from %s after %d attempts",
		lastStatus, req.URL, c.opts.MaxAttempts)
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func (c *Client) backoff(ctx context.Context, attempt int) error {
	d := time.Duration(float64(c.opts.InitialBackoff) * math.Pow(2, float64(attempt)))
	d += rand.N(d / 2)

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// DecodeWindows1252 converts a windows-1252 body to UTF-8. The markup
// source serves its report pages in that charset; category labels carry
// accented characters that would otherwise be mangled.
func DecodeWindows1252(body []byte) ([]byte, error) {
	decoded, err := io.ReadAll(charmap.Windows1252.NewDecoder().Reader(bytes.NewReader(body)))
	if err != nil {
		return nil, eris.Wrap(err, "transport: decode windows-1252")
	}
	return decoded, nil
}
