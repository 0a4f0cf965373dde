package jira

import (
	"context"
	"time"
)

// Client is the interface for reading issue histories from Jira.
type Client interface {
	// GetIssueWithHistory returns a single issue with its full changelog.
	GetIssueWithHistory(ctx context.Context, key string) (*IssueDTO, error)
	// SearchIssuesWithHistory pages through a JQL search with changelogs expanded.
	SearchIssuesWithHistory(ctx context.Context, jql string, startAt int, maxResults int) (*SearchResponse, error)
	// GetStatuses returns the status id/name registry of the instance.
	GetStatuses(ctx context.Context) (*NameRegistry, error)
}

// Config holds the authentication and connection settings for Jira.
type Config struct {
	BaseURL string

	// Personal Access Token (preferred over cookies)
	Token string

	// Data Center Cookies
	XsrfToken  string
	SessionID  string
	RememberMe string

	// Load Balancer Cookies
	GCILB string
	GCLB  string

	// Performance Settings
	RequestDelay time.Duration
	Timeout      time.Duration
}

// NewClient creates a new Jira client based on the provided configuration.
func NewClient(cfg Config) Client {
	return NewDataCenterClient(cfg)
}
