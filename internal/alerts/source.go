package alerts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Adapter-level failures. Both are recovered by skipping the adapter for the
// cycle; they never abort ingestion for other adapters.
var (
	ErrSourceUnavailable = errors.New("alerts: source unavailable")
	ErrSourceTimeout     = errors.New("alerts: source timeout")
)

// Source is the contract every external fetcher must satisfy. Fetch returns
// the normalized candidates published inside the window, or fails with
// ErrSourceUnavailable / ErrSourceTimeout (wrapped). Implementations drop and
// count malformed individual items instead of failing the batch.
type Source interface {
	Name() string
	Fetch(ctx context.Context, from, to time.Time) ([]Candidate, error)
}

// FetchResult aggregates one cycle's worth of candidates across all adapters.
type FetchResult struct {
	Candidates []Candidate
	// Errors maps adapter name to its failure for this cycle.
	Errors map[string]error
	// Dropped counts malformed items discarded during decoding.
	Dropped int
}

// SourceRegistry invokes each registered adapter in isolation with a bounded
// worker pool and a per-adapter timeout.
type SourceRegistry struct {
	sources        []Source
	timeout        time.Duration
	maxConcurrency int
}

// NewSourceRegistry builds a registry. Timeout bounds each adapter call;
// maxConcurrency bounds how many adapters fetch at once.
func NewSourceRegistry(timeout time.Duration, maxConcurrency int, sources ...Source) (*SourceRegistry, error) {
	if len(sources) == 0 {
		return nil, errors.New("alerts: at least one source is required")
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	return &SourceRegistry{sources: sources, timeout: timeout, maxConcurrency: maxConcurrency}, nil
}

// Add registers an additional source.
func (r *SourceRegistry) Add(source Source) {
	r.sources = append(r.sources, source)
}

// Names returns the registered adapter names in order.
func (r *SourceRegistry) Names() []string {
	names := make([]string, 0, len(r.sources))
	for _, src := range r.sources {
		names = append(names, src.Name())
	}
	return names
}

// FetchAll collects candidates from every adapter concurrently. One adapter's
// failure is recorded and skipped; correlation always sees the whole
// cross-source batch for the cycle.
func (r *SourceRegistry) FetchAll(ctx context.Context, from, to time.Time) FetchResult {
	type fetchOutcome struct {
		name       string
		candidates []Candidate
		err        error
	}

	outcomes := make([]fetchOutcome, len(r.sources))
	sem := make(chan struct{}, r.maxConcurrency)
	var wg sync.WaitGroup

	for idx, src := range r.sources {
		wg.Add(1)
		go func(idx int, src Source) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			fetchCtx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()

			candidates, err := src.Fetch(fetchCtx, from, to)
			if err != nil && errors.Is(fetchCtx.Err(), context.DeadlineExceeded) {
				err = fmt.Errorf("%w: %s exceeded %s", ErrSourceTimeout, src.Name(), r.timeout)
			}
			outcomes[idx] = fetchOutcome{name: src.Name(), candidates: candidates, err: err}
		}(idx, src)
	}
	wg.Wait()

	result := FetchResult{Errors: make(map[string]error)}
	for _, outcome := range outcomes {
		if outcome.err != nil {
			result.Errors[outcome.name] = outcome.err
			continue
		}
		result.Candidates = append(result.Candidates, outcome.candidates...)
	}

	sort.SliceStable(result.Candidates, func(i, j int) bool {
		return result.Candidates[i].PublishedAt.Before(result.Candidates[j].PublishedAt)
	})

	return result
}

// StaticFileSource serves candidates from a JSON fixture file. Used for local
// development and tests.
type StaticFileSource struct {
	name string
	path string
}

// NewStaticFileSource returns a source backed by the given file.
func NewStaticFileSource(name, path string) (*StaticFileSource, error) {
	if name == "" {
		return nil, errors.New("static source requires a name")
	}
	if path == "" {
		return nil, errors.New("static source requires a path")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("static source: %w", err)
	}
	return &StaticFileSource{name: name, path: path}, nil
}

// Name returns the source name.
func (s *StaticFileSource) Name() string { return s.name }

// Fetch reads the fixture and filters candidates by window.
func (s *StaticFileSource) Fetch(ctx context.Context, from, to time.Time) ([]Candidate, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrSourceUnavailable, s.path, err)
	}

	candidates, _, err := DecodeCandidates(raw, s.name)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrSourceUnavailable, s.path, err)
	}

	return filterWindow(candidates, from, to), nil
}

// IngestSource stores ad-hoc candidates submitted via the API.
type IngestSource struct {
	name  string
	mu    sync.RWMutex
	items []Candidate
}

// NewIngestSource constructs an empty ingest source.
func NewIngestSource(name string) *IngestSource {
	if name == "" {
		name = "ingest"
	}
	return &IngestSource{name: name}
}

// Name returns the source identifier.
func (s *IngestSource) Name() string { return s.name }

// Add registers a candidate, generating defaults when missing.
func (s *IngestSource) Add(candidate Candidate) Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()

	if candidate.SourceID == "" {
		candidate.SourceID = uuid.NewString()
	}
	if candidate.SourceName == "" {
		candidate.SourceName = s.name
	}
	if candidate.PublishedAt.IsZero() {
		candidate.PublishedAt = time.Now().UTC()
	}

	for idx := range s.items {
		if s.items[idx].SourceID == candidate.SourceID {
			s.items[idx] = candidate
			return s.items[idx]
		}
	}

	s.items = append(s.items, candidate)
	return candidate
}

// Fetch returns candidates within the requested window.
func (s *IngestSource) Fetch(ctx context.Context, from, to time.Time) ([]Candidate, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return filterWindow(append([]Candidate(nil), s.items...), from, to), nil
}

// PruneOlderThan drops candidates published before ts and returns the count
// of removed entries.
func (s *IngestSource) PruneOlderThan(ts time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	filtered := s.items[:0]
	removed := 0
	for _, item := range s.items {
		if item.PublishedAt.Before(ts) {
			removed++
			continue
		}
		filtered = append(filtered, item)
	}
	s.items = filtered
	return removed
}

// FeedSource pulls normalized candidate payloads from an HTTP endpoint. The
// raw external news/LLM/geocoding APIs sit behind such endpoints; this
// adapter only speaks the normalized contract.
type FeedSource struct {
	name       string
	url        string
	httpClient *http.Client
}

// NewFeedSource returns an HTTP feed adapter.
func NewFeedSource(name, url string, client *http.Client) (*FeedSource, error) {
	if name == "" || url == "" {
		return nil, errors.New("feed source requires a name and url")
	}
	if client == nil {
		client = &http.Client{}
	}
	return &FeedSource{name: name, url: url, httpClient: client}, nil
}

// Name returns the source name.
func (s *FeedSource) Name() string { return s.name }

// Fetch performs the HTTP request and decodes the normalized payload.
func (s *FeedSource) Fetch(ctx context.Context, from, to time.Time) ([]Candidate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrSourceUnavailable, err)
	}
	q := req.URL.Query()
	q.Set("from", from.UTC().Format(time.RFC3339))
	q.Set("to", to.UTC().Format(time.RFC3339))
	req.URL.RawQuery = q.Encode()

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", ErrSourceTimeout, s.name)
		}
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s returned status %d", ErrSourceUnavailable, s.name, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrSourceUnavailable, err)
	}

	candidates, _, err := DecodeCandidates(raw, s.name)
	if err != nil {
		return nil, fmt.Errorf("%w: decode payload: %v", ErrSourceUnavailable, err)
	}
	return filterWindow(candidates, from, to), nil
}

func filterWindow(candidates []Candidate, from, to time.Time) []Candidate {
	out := candidates[:0]
	for _, c := range candidates {
		if c.PublishedAt.Before(from) || c.PublishedAt.After(to) {
			continue
		}
		out = append(out, c)
	}
	return out
}
