package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	baseURLDefault   = "https://api.github.com"
	defaultTimeout   = 15 * time.Second
	defaultUA        = "sla-clock"
	defaultMaxRetry  = 4
	defaultRetryBase = 500 * time.Millisecond
	perPage          = 100
	maxPages         = 50
)

var (
	// ErrUnauthorized is returned for 401 responses.
	ErrUnauthorized = errors.New("github authentication failed (401), check GITHUB_TOKEN")
	// ErrNotFound is returned for 404 responses.
	ErrNotFound = errors.New("github resource not found")
	// ErrRateLimited is returned when retries are exhausted on 403/429.
	ErrRateLimited = errors.New("github rate limited")
	// ErrUnavailable is returned when retries are exhausted on 5xx or transport errors.
	ErrUnavailable = errors.New("github unavailable")
)

// Options configures the Client.
type Options struct {
	BaseURL   string
	UserAgent string
	Token     string
	Timeout   time.Duration

	// Retry config for transient and rate limited responses
	MaxRetries int
	RetryBase  time.Duration

	// MinInterval paces consecutive requests; zero disables pacing.
	MinInterval time.Duration
}

// Client is a small GitHub REST v3 client for issue histories.
type Client struct {
	http    *http.Client
	opts    Options
	limiter *rate.Limiter
	now     func() time.Time
	sleep   func(context.Context, time.Duration) error
}

// NewClient creates a new Client with sane defaults.
func NewClient(o Options) *Client {
	if o.BaseURL == "" {
		o.BaseURL = baseURLDefault
	}
	o.BaseURL = strings.TrimRight(o.BaseURL, "/")
	if o.UserAgent == "" {
		o.UserAgent = defaultUA
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = defaultMaxRetry
	}
	if o.RetryBase <= 0 {
		o.RetryBase = defaultRetryBase
	}

	limit := rate.Inf
	if o.MinInterval > 0 {
		limit = rate.Every(o.MinInterval)
	}

	return &Client{
		http:    &http.Client{Timeout: o.Timeout},
		opts:    o,
		limiter: rate.NewLimiter(limit, 1),
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

// GetIssue returns the issue metadata (title, labels, state).
func (c *Client) GetIssue(ctx context.Context, ref IssueRef) (*Issue, error) {
	var issue Issue
	path := fmt.Sprintf("/repos/%s/%s/issues/%d", url.PathEscape(ref.Owner), url.PathEscape(ref.Repo), ref.Number)
	if err := c.getJSON(ctx, path, &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

// ListIssueEvents returns every event of an issue in API order (oldest first).
func (c *Client) ListIssueEvents(ctx context.Context, ref IssueRef) ([]IssueEvent, error) {
	var all []IssueEvent
	for page := 1; page <= maxPages; page++ {
		var batch []IssueEvent
		path := fmt.Sprintf("/repos/%s/%s/issues/%d/events?per_page=%d&page=%d",
			url.PathEscape(ref.Owner), url.PathEscape(ref.Repo), ref.Number, perPage, page)
		if err := c.getJSON(ctx, path, &batch); err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if len(batch) < perPage {
			return all, nil
		}
	}
	log.Warn().Str("issue", ref.String()).Int("events", len(all)).Msg("github event history exceeds page limit, truncating")
	return all, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.do(ctx, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode github %s: %w", path, err)
	}
	return nil
}

// do issues a GET with auth headers, retries, and rate limit handling.
func (c *Client) do(ctx context.Context, path string) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.BaseURL+path, nil)
		if err != nil {
			return nil, fmt.Errorf("github new request: %w", err)
		}
		req.Header.Set("User-Agent", c.opts.UserAgent)
		req.Header.Set("Accept", "application/vnd.github+json")
		req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
		if c.opts.Token != "" {
			req.Header.Set("Authorization", "Bearer "+c.opts.Token)
		}

		start := c.now()
		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !c.shouldRetry(attempt) {
				return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
			back := c.backoff(attempt)
			log.Warn().Err(err).Dur("retry_in", back).Int("attempt", attempt).Msg("github transport error retrying")
			if err := c.sleep(ctx, back); err != nil {
				return nil, err
			}
			continue
		}

		rem, reset, retryAfter := parseRateHeaders(resp.Header)
		log.Debug().
			Str("path", path).
			Int("status", resp.StatusCode).
			Int("attempt", attempt).
			Dur("latency", c.now().Sub(start)).
			Int("rate_remaining", rem).
			Msg("github http response")

		switch resp.StatusCode {
		case http.StatusOK:
			return resp, nil
		case http.StatusUnauthorized:
			_ = drainAndClose(resp.Body)
			return nil, ErrUnauthorized
		case http.StatusNotFound:
			_ = drainAndClose(resp.Body)
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		case http.StatusTooManyRequests, http.StatusForbidden:
			_ = drainAndClose(resp.Body)
			if !c.shouldRetry(attempt) {
				return nil, ErrRateLimited
			}
			wait := computeWait(rem, reset, retryAfter, c.now())
			if wait <= 0 {
				wait = c.backoff(attempt)
			}
			log.Warn().Dur("sleep", wait).Msg("github rate limited backing off")
			if err := c.sleep(ctx, wait); err != nil {
				return nil, err
			}
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout, http.StatusInternalServerError:
			_ = drainAndClose(resp.Body)
			if !c.shouldRetry(attempt) {
				return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
			}
			back := c.backoff(attempt)
			log.Warn().Dur("retry_in", back).Int("attempt", attempt).Msg("github transient error retrying")
			if err := c.sleep(ctx, back); err != nil {
				return nil, err
			}
		default:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			_ = resp.Body.Close()
			return nil, fmt.Errorf("github unexpected status %d body %s", resp.StatusCode, string(body))
		}
	}
}

func (c *Client) backoff(attempt int) time.Duration {
	// simple exponential with cap
	d := c.opts.RetryBase << uint(attempt)
	if d <= 0 || d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}

func (c *Client) shouldRetry(attempt int) bool {
	return attempt < c.opts.MaxRetries
}

func parseRateHeaders(h http.Header) (remaining int, reset time.Time, retryAfter int) {
	remaining = atoi(h.Get("X-RateLimit-Remaining"), -1)
	if sec := atoi(h.Get("X-RateLimit-Reset"), 0); sec > 0 {
		reset = time.Unix(int64(sec), 0).UTC()
	}
	retryAfter = atoi(h.Get("Retry-After"), 0)
	return
}

// computeWait decides how long to wait based on headers.
func computeWait(remaining int, reset time.Time, retryAfter int, now time.Time) time.Duration {
	if retryAfter > 0 {
		return time.Duration(retryAfter) * time.Second
	}
	if remaining == 0 && reset.After(now) {
		return reset.Sub(now)
	}
	return 0
}

func atoi(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

func drainAndClose(rc io.ReadCloser) error {
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, 64<<10))
	return rc.Close()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
