package eventlog

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"sla-clock/internal/github"
	"sla-clock/internal/jira"
	"sla-clock/internal/sla"
)

// ErrNotCached is returned in offline mode for issues missing from the cache.
var ErrNotCached = errors.New("issue not in cache")

// ErrSourceNotConfigured is returned when a reference names a source without a client.
var ErrSourceNotConfigured = errors.New("event source not configured")

// GitHubClient is the subset of the GitHub client the provider needs.
type GitHubClient interface {
	GetIssue(ctx context.Context, ref github.IssueRef) (*github.Issue, error)
	ListIssueEvents(ctx context.Context, ref github.IssueRef) ([]github.IssueEvent, error)
}

// ProviderOptions wires the provider to its sources.
type ProviderOptions struct {
	Jira   jira.Client
	GitHub GitHubClient
	Store  *EventStore
	// CacheDir enables write-through persistence of fetched histories.
	CacheDir string
	// Offline serves jira and github references from the cache only.
	Offline bool
	// Priorities are the codes recognised among GitHub labels.
	Priorities []sla.Priority
}

// LogProvider resolves issue references into canonical histories.
// It is safe for concurrent use.
type LogProvider struct {
	opts ProviderOptions

	loadOnce sync.Map // Source -> *sync.Once

	registryOnce sync.Once
	registry     *jira.NameRegistry

	// prefetched holds refs whose history arrived with a search page.
	prefetched sync.Map // string -> Issue
}

// searchPageSize is the page size requested from the Jira search API.
const searchPageSize = 50

func NewLogProvider(opts ProviderOptions) *LogProvider {
	if opts.Store == nil {
		opts.Store = NewEventStore()
	}
	return &LogProvider{opts: opts}
}

// Fetch returns the status history of the referenced issue.
func (p *LogProvider) Fetch(ctx context.Context, ref Ref) (Issue, error) {
	switch ref.Source {
	case SourceFile:
		events, err := ReadEventFile(ref.Key)
		if err != nil {
			return Issue{}, err
		}
		return Issue{Ref: ref, Events: events}, nil
	case SourceJira, SourceGitHub:
	default:
		return Issue{}, fmt.Errorf("%w: %q", ErrInvalidRef, ref.String())
	}

	p.warm(ref.Source)

	if p.opts.Offline {
		issue, ok := p.opts.Store.Issue(ref)
		if !ok {
			return Issue{}, fmt.Errorf("%s: %w", ref, ErrNotCached)
		}
		return issue, nil
	}

	if v, ok := p.prefetched.LoadAndDelete(ref.String()); ok {
		return v.(Issue), nil
	}

	var (
		issue Issue
		err   error
	)
	if ref.Source == SourceJira {
		issue, err = p.fetchJira(ctx, ref)
	} else {
		issue, err = p.fetchGitHub(ctx, ref)
	}
	if err != nil {
		return Issue{}, err
	}
	issue.Ref = ref

	p.opts.Store.Put(issue)
	return issue, nil
}

// Search expands a JQL query into Jira references. The histories come back
// with the search pages, so the returned refs are served without a second
// request and are written through to the cache like fetched issues.
func (p *LogProvider) Search(ctx context.Context, jql string) ([]Ref, error) {
	if p.opts.Offline {
		return nil, fmt.Errorf("jql search: %w", ErrNotCached)
	}
	if p.opts.Jira == nil {
		return nil, fmt.Errorf("jql search: %w", ErrSourceNotConfigured)
	}
	p.warm(SourceJira)

	var refs []Ref
	for startAt := 0; ; {
		page, err := p.opts.Jira.SearchIssuesWithHistory(ctx, jql, startAt, searchPageSize)
		if err != nil {
			return nil, fmt.Errorf("jql search: %w", err)
		}
		for _, dto := range page.Issues {
			issue, err := FromJira(dto, p.statusRegistry(ctx))
			if err != nil {
				return nil, err
			}
			p.opts.Store.Put(issue)
			p.prefetched.Store(issue.Ref.String(), issue)
			refs = append(refs, issue.Ref)
		}

		startAt += len(page.Issues)
		if len(page.Issues) == 0 || startAt >= page.Total {
			break
		}
	}

	log.Info().Str("jql", jql).Int("issues", len(refs)).Msg("JQL search expanded")
	return refs, nil
}

// Flush writes cached histories for every live source to disk.
func (p *LogProvider) Flush() error {
	if p.opts.CacheDir == "" || p.opts.Offline {
		return nil
	}
	var errs []error
	for _, src := range []Source{SourceJira, SourceGitHub} {
		if p.opts.Store.Count(src) == 0 {
			continue
		}
		if err := p.opts.Store.Save(p.opts.CacheDir, src); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *LogProvider) warm(source Source) {
	if p.opts.CacheDir == "" {
		return
	}
	once, _ := p.loadOnce.LoadOrStore(source, &sync.Once{})
	once.(*sync.Once).Do(func() {
		if err := p.opts.Store.Load(p.opts.CacheDir, source); err != nil {
			log.Warn().Err(err).Str("source", string(source)).Msg("Failed to load cache")
		}
	})
}

func (p *LogProvider) fetchJira(ctx context.Context, ref Ref) (Issue, error) {
	if p.opts.Jira == nil {
		return Issue{}, fmt.Errorf("%s: %w", ref, ErrSourceNotConfigured)
	}
	dto, err := p.opts.Jira.GetIssueWithHistory(ctx, ref.Key)
	if err != nil {
		return Issue{}, fmt.Errorf("fetch %s: %w", ref, err)
	}
	return FromJira(*dto, p.statusRegistry(ctx))
}

// statusRegistry loads the Jira status names once; failure only costs the
// fallback for history items lacking a display name.
func (p *LogProvider) statusRegistry(ctx context.Context) *jira.NameRegistry {
	p.registryOnce.Do(func() {
		reg, err := p.opts.Jira.GetStatuses(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Could not load Jira status registry")
			return
		}
		p.registry = reg
	})
	return p.registry
}

func (p *LogProvider) fetchGitHub(ctx context.Context, ref Ref) (Issue, error) {
	if p.opts.GitHub == nil {
		return Issue{}, fmt.Errorf("%s: %w", ref, ErrSourceNotConfigured)
	}
	ghRef, err := github.ParseIssueRef(ref.Key)
	if err != nil {
		return Issue{}, err
	}
	meta, err := p.opts.GitHub.GetIssue(ctx, ghRef)
	if err != nil {
		return Issue{}, fmt.Errorf("fetch %s: %w", ref, err)
	}
	events, err := p.opts.GitHub.ListIssueEvents(ctx, ghRef)
	if err != nil {
		return Issue{}, fmt.Errorf("fetch %s events: %w", ref, err)
	}
	return FromGitHub(ghRef, meta, events, p.opts.Priorities), nil
}
