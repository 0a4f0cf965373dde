package jira

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

var (
	// ErrUnauthorized is returned for 401/403 responses.
	ErrUnauthorized = errors.New("Jira authentication failed (401/403), check your token or session cookies")
	// ErrNotFound is returned for 404 responses.
	ErrNotFound = errors.New("Jira resource not found")
	// ErrRateLimited is returned for 429 responses.
	ErrRateLimited = errors.New("Jira rate limit exceeded (429)")
)

type dcClient struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter

	// Session Cache
	cache      map[string]*cacheEntry
	cacheMutex sync.Mutex
	now        func() time.Time
}

type cacheEntry struct {
	Value       any
	Expiration  time.Time
	AccessCount int
	OriginalTTL time.Duration
}

const (
	issueTTL    = 10 * time.Minute
	metadataTTL = 30 * time.Minute
)

// NewDataCenterClient returns a Client for Jira Server / Data Center REST v2.
func NewDataCenterClient(cfg Config) Client {
	if cfg.RequestDelay < 0 {
		cfg.RequestDelay = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}

	limit := rate.Inf
	if cfg.RequestDelay > 0 {
		limit = rate.Every(cfg.RequestDelay)
	}

	return &dcClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: rate.NewLimiter(limit, 1),
		cache:   make(map[string]*cacheEntry),
		now:     time.Now,
	}
}

func (c *dcClient) getFromCache(key string) (any, bool) {
	c.cacheMutex.Lock()
	defer c.cacheMutex.Unlock()

	entry, ok := c.cache[key]
	if !ok {
		log.Debug().Str("key", key).Msg("Cache miss")
		return nil, false
	}

	if c.now().After(entry.Expiration) {
		delete(c.cache, key)
		return nil, false
	}
	log.Debug().Str("key", key).Msg("Cache hit")

	// Sliding window extension
	if entry.AccessCount < 6 {
		entry.Expiration = c.now().Add(entry.OriginalTTL)
		entry.AccessCount++
		log.Trace().Str("key", key).Int("count", entry.AccessCount).Msg("Extended cache TTL")
	}

	return entry.Value, true
}

func (c *dcClient) addToCache(key string, value any, ttl time.Duration) {
	c.cacheMutex.Lock()
	defer c.cacheMutex.Unlock()

	c.cache[key] = &cacheEntry{
		Value:       value,
		Expiration:  c.now().Add(ttl),
		OriginalTTL: ttl,
		AccessCount: 1,
	}
	log.Debug().Str("key", key).Dur("ttl", ttl).Msg("Added to cache")
}

func (c *dcClient) authenticateRequest(req *http.Request) {
	// 1. Prioritize Personal Access Token (PAT)
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.cfg.Token))
		return
	}

	// 2. Fallback to session cookies
	cookies := []struct {
		name  string
		value string
	}{
		{"atlassian.xsrf.token", c.cfg.XsrfToken},
		{"JSESSIONID", c.cfg.SessionID},
		{"seraph.rememberme.cookie", c.cfg.RememberMe},
		{"GCILB", c.cfg.GCILB},
		{"GCLB", c.cfg.GCLB},
	}

	var cookiePairs []string
	for _, cookie := range cookies {
		if cookie.value != "" {
			// We build the string manually to avoid net/http's strict RFC 6265 validation
			// which would drop valid Jira/GCLB cookies containing double quotes.
			cookiePairs = append(cookiePairs, fmt.Sprintf("%s=%s", cookie.name, cookie.value))
		}
	}

	if len(cookiePairs) > 0 {
		req.Header.Set("Cookie", strings.Join(cookiePairs, "; "))
	}
}

// getJSON performs a paced, authenticated GET and decodes the body into out.
func (c *dcClient) getJSON(ctx context.Context, path string, params url.Values, what string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for Jira request slot: %w", err)
	}

	reqURL := strings.TrimRight(c.cfg.BaseURL, "/") + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	log.Debug().Str("url", reqURL).Msg("Jira request")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	c.authenticateRequest(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("Jira request for %s failed: %w", what, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		switch resp.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%s: %w", what, ErrNotFound)
		case http.StatusUnauthorized, http.StatusForbidden:
			return ErrUnauthorized
		case http.StatusTooManyRequests:
			if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
				return fmt.Errorf("%w, retry after %s seconds", ErrRateLimited, retryAfter)
			}
			return ErrRateLimited
		default:
			return fmt.Errorf("Jira API returned status %d for %s", resp.StatusCode, what)
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", what, err)
	}
	return nil
}

func (c *dcClient) GetIssueWithHistory(ctx context.Context, key string) (*IssueDTO, error) {
	cacheKey := "issue:" + key
	if val, ok := c.getFromCache(cacheKey); ok {
		return val.(*IssueDTO), nil
	}

	params := url.Values{}
	params.Set("fields", "issuetype,status,priority,labels,created,updated")
	params.Set("expand", "changelog")

	var issue IssueDTO
	if err := c.getJSON(ctx, "/rest/api/2/issue/"+url.PathEscape(key), params, "issue "+key, &issue); err != nil {
		return nil, err
	}

	if cl := issue.Changelog; cl != nil && cl.Total > len(cl.Histories) {
		log.Warn().
			Str("issue", key).
			Int("total", cl.Total).
			Int("returned", len(cl.Histories)).
			Msg("Jira truncated the changelog, older status changes are missing")
	}

	c.addToCache(cacheKey, &issue, issueTTL)
	return &issue, nil
}

func (c *dcClient) SearchIssuesWithHistory(ctx context.Context, jql string, startAt int, maxResults int) (*SearchResponse, error) {
	cacheKey := fmt.Sprintf("search:%s:%d:%d", jql, startAt, maxResults)
	if val, ok := c.getFromCache(cacheKey); ok {
		return val.(*SearchResponse), nil
	}

	params := url.Values{}
	params.Set("jql", jql)
	params.Set("startAt", strconv.Itoa(startAt))
	params.Set("maxResults", strconv.Itoa(maxResults))
	params.Set("fields", "issuetype,status,priority,labels,created,updated")
	params.Set("expand", "changelog")

	log.Info().Str("jql", jql).Int("startAt", startAt).Msg("Requesting issues from Jira")

	var result SearchResponse
	if err := c.getJSON(ctx, "/rest/api/2/search", params, "search", &result); err != nil {
		return nil, err
	}

	c.addToCache(cacheKey, &result, issueTTL)
	return &result, nil
}

func (c *dcClient) GetStatuses(ctx context.Context) (*NameRegistry, error) {
	const cacheKey = "statuses"
	if val, ok := c.getFromCache(cacheKey); ok {
		return val.(*NameRegistry), nil
	}

	var statuses []Status
	if err := c.getJSON(ctx, "/rest/api/2/status", nil, "statuses", &statuses); err != nil {
		return nil, err
	}

	reg := &NameRegistry{Statuses: make(map[string]string, len(statuses))}
	for _, s := range statuses {
		reg.Statuses[s.ID] = s.Name
	}

	c.addToCache(cacheKey, reg, metadataTTL)
	return reg, nil
}
