// Package limit provides the per-client token-bucket rate limiting applied to
// navigation requests.
package limit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/corpusd/internal/fault"
)

// Config configures the per-client limiter registry.
type Config struct {
	// RequestsPerMinute is the steady per-client rate.
	RequestsPerMinute float64

	// Burst allows short spikes above the steady rate.
	Burst int

	// IdleEviction removes a client's bucket after this much inactivity.
	IdleEviction time.Duration
}

// DefaultConfig returns the default of 100 requests per minute per client.
func DefaultConfig() Config {
	return Config{RequestsPerMinute: 100, Burst: 10, IdleEviction: 10 * time.Minute}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.RequestsPerMinute <= 0 {
		return fault.Invalid("rate limit must be positive, got %g", c.RequestsPerMinute)
	}
	if c.Burst < 1 {
		return fault.Invalid("burst must be positive, got %d", c.Burst)
	}
	return nil
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// PerClient is a registry of token buckets keyed by client id.
type PerClient struct {
	cfg Config

	mu      sync.Mutex
	buckets map[string]*clientBucket

	// now is swappable for deterministic tests.
	now func() time.Time
}

// NewPerClient creates the registry.
func NewPerClient(cfg Config) (*PerClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &PerClient{
		cfg:     cfg,
		buckets: make(map[string]*clientBucket),
		now:     time.Now,
	}, nil
}

// Allow reports whether one request from clientID may proceed now. A denied
// request maps to fault.RateLimited at the service boundary.
func (p *PerClient) Allow(clientID string) error {
	if clientID == "" {
		clientID = "anonymous"
	}

	p.mu.Lock()
	b, ok := p.buckets[clientID]
	if !ok {
		b = &clientBucket{
			limiter: rate.NewLimiter(rate.Limit(p.cfg.RequestsPerMinute/60.0), p.cfg.Burst),
		}
		p.buckets[clientID] = b
	}
	b.lastSeen = p.now()
	p.evictIdleLocked()
	p.mu.Unlock()

	if !b.limiter.Allow() {
		return fault.RateLimited("client %s exceeded %g requests/min", clientID, p.cfg.RequestsPerMinute)
	}
	return nil
}

// evictIdleLocked drops buckets idle past the eviction window.
func (p *PerClient) evictIdleLocked() {
	if p.cfg.IdleEviction <= 0 {
		return
	}
	cutoff := p.now().Add(-p.cfg.IdleEviction)
	for id, b := range p.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(p.buckets, id)
		}
	}
}

// Clients returns the number of tracked buckets.
func (p *PerClient) Clients() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buckets)
}
