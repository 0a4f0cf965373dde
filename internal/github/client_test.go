package github

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) (*Client, *[]time.Duration) {
	c := NewClient(Options{BaseURL: url, Token: "tok", MaxRetries: 2, RetryBase: 10 * time.Millisecond})
	var slept []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return c, &slept
}

func TestParseIssueRef(t *testing.T) {
	t.Parallel()

	ref, err := ParseIssueRef("acme/support#42")
	require.NoError(t, err)
	assert.Equal(t, IssueRef{Owner: "acme", Repo: "support", Number: 42}, ref)
	assert.Equal(t, "acme/support#42", ref.String())

	for _, bad := range []string{"acme/support", "acme#1", "acme/support#x", "/support#1", "a/b/c#1", "acme/support#0"} {
		_, err := ParseIssueRef(bad)
		assert.ErrorIs(t, err, ErrInvalidRef, bad)
	}
}

func TestGetIssue(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/support/issues/42", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"number": 42, "state": "open", "labels": [{"name": "P2"}, {"name": "bug"}], "created_at": "2024-07-01T04:30:00Z"}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(srv.URL)
	issue, err := c.GetIssue(context.Background(), IssueRef{Owner: "acme", Repo: "support", Number: 42})
	require.NoError(t, err)
	assert.Equal(t, 42, issue.Number)
	require.Len(t, issue.Labels, 2)
	assert.Equal(t, "P2", issue.Labels[0].Name)
}

func TestListIssueEvents_Pages(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		n := perPage
		if page == 2 {
			n = 3
		}
		w.Write([]byte("["))
		for i := 0; i < n; i++ {
			if i > 0 {
				w.Write([]byte(","))
			}
			fmt.Fprintf(w, `{"id": %d, "event": "labeled", "created_at": "2024-07-01T04:30:00Z", "label": {"name": "in-progress"}}`, page*1000+i)
		}
		w.Write([]byte("]"))
	}))
	defer srv.Close()

	c, _ := newTestClient(srv.URL)
	events, err := c.ListIssueEvents(context.Background(), IssueRef{Owner: "acme", Repo: "support", Number: 1})
	require.NoError(t, err)
	assert.Len(t, events, perPage+3)
	assert.Equal(t, "in-progress", events[0].Label.Name)
}

func TestDo_RetriesTransientErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"number": 1}`))
	}))
	defer srv.Close()

	c, slept := newTestClient(srv.URL)
	_, err := c.GetIssue(context.Background(), IssueRef{Owner: "a", Repo: "b", Number: 1})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, []time.Duration{10 * time.Millisecond}, *slept)
}

func TestDo_RateLimitHonoursRetryAfter(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, slept := newTestClient(srv.URL)
	_, err := c.GetIssue(context.Background(), IssueRef{Owner: "a", Repo: "b", Number: 1})
	require.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, []time.Duration{7 * time.Second, 7 * time.Second}, *slept)
}

func TestDo_ExhaustedRetries(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, slept := newTestClient(srv.URL)
	_, err := c.GetIssue(context.Background(), IssueRef{Owner: "a", Repo: "b", Number: 1})
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Len(t, *slept, 2)
}

func TestDo_NotFoundAndUnauthorized(t *testing.T) {
	t.Parallel()

	for status, want := range map[int]error{http.StatusNotFound: ErrNotFound, http.StatusUnauthorized: ErrUnauthorized} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		c, slept := newTestClient(srv.URL)
		_, err := c.GetIssue(context.Background(), IssueRef{Owner: "a", Repo: "b", Number: 1})
		srv.Close()

		require.ErrorIs(t, err, want)
		assert.Empty(t, *slept)
	}
}

func TestComputeWait(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0).UTC()
	assert.Equal(t, 3*time.Second, computeWait(10, time.Time{}, 3, now))
	assert.Equal(t, 90*time.Second, computeWait(0, now.Add(90*time.Second), 0, now))
	assert.Equal(t, time.Duration(0), computeWait(-1, now.Add(90*time.Second), 0, now))
	assert.Equal(t, time.Duration(0), computeWait(0, now.Add(-time.Second), 0, now))
}
