package web

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/dlerazeezcore/the-book-platform/api"
	"github.com/dlerazeezcore/the-book-platform/env"
	"github.com/dlerazeezcore/the-book-platform/logger"
)

const (
	probeTimeout    = 2 * time.Second
	resolveCacheTTL = 30 * time.Second
)

// BackendCandidates returns the ordered list of gateway base URLs to try:
// AVAILABILITY_BACKEND_URL first, then AVAILABILITY_BACKEND_URLS (comma
// separated), then the localhost defaults. Duplicates are dropped keeping
// the first occurrence.
func BackendCandidates(e *env.Environment) []string {
	var urls []string

	if v, _ := e.Get("AVAILABILITY_BACKEND_URL"); strings.TrimSpace(v) != "" {
		urls = append(urls, strings.TrimRight(strings.TrimSpace(v), "/"))
	}
	if v, _ := e.Get("AVAILABILITY_BACKEND_URLS"); strings.TrimSpace(v) != "" {
		for _, u := range strings.Split(v, ",") {
			if u = strings.TrimSpace(u); u != "" {
				urls = append(urls, strings.TrimRight(u, "/"))
			}
		}
	}

	urls = append(urls,
		"http://localhost:5050",
		"http://127.0.0.1:5050",
		"http://localhost:8001",
		"http://127.0.0.1:8001",
	)

	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// A Resolver finds a live gateway among the candidate base URLs by probing
// /health, caching the winner for a short while. When nothing answers it
// falls back to the first candidate so callers still get a concrete URL to
// fail against.
type Resolver struct {
	logger     logger.Logger
	candidates []string

	mu       sync.Mutex
	cachedURL string
	cachedAt  time.Time

	// swapped in tests
	now   func() time.Time
	probe func(ctx context.Context, base string) bool
}

func NewResolver(l logger.Logger, candidates []string) *Resolver {
	r := &Resolver{
		logger:     l,
		candidates: candidates,
		now:        time.Now,
	}
	r.probe = r.probeHealth
	return r
}

func (r *Resolver) probeHealth(ctx context.Context, base string) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	c := api.NewClient(r.logger, api.Config{Endpoint: base, Timeout: probeTimeout})
	return c.Health(ctx)
}

// Resolve returns the base URL of a healthy gateway.
func (r *Resolver) Resolve(ctx context.Context) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if r.cachedURL != "" && now.Sub(r.cachedAt) < resolveCacheTTL {
		return r.cachedURL
	}

	for _, base := range r.candidates {
		if r.probe(ctx, base) {
			r.cachedURL = base
			r.cachedAt = now
			return base
		}
	}

	fallback := r.candidates[0]
	r.logger.Warn("No backend answered /health, falling back to %s", fallback)
	r.cachedURL = fallback
	r.cachedAt = now
	return fallback
}
