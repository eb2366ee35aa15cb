package policy

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheTTL is how long a loaded snapshot is served before reloading.
const DefaultCacheTTL = 5 * time.Minute

type snapshot struct {
	config   *Config
	loadedAt time.Time
	expired  bool
}

func (s *snapshot) fresh(now time.Time, ttl time.Duration) bool {
	return s != nil && !s.expired && now.Sub(s.loadedAt) < ttl
}

// Provider caches snapshots from a Source for a fixed TTL. Readers never
// observe a partially loaded config, and concurrent reloads share one Load.
type Provider struct {
	source Source
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger

	current atomic.Pointer[snapshot]
	group   singleflight.Group
}

var _ Source = (*Provider)(nil)

// ProviderOption customizes a Provider.
type ProviderOption func(*Provider)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) ProviderOption {
	return func(p *Provider) {
		p.now = now
	}
}

// NewProvider wraps source with a TTL cache. A non-positive ttl uses DefaultCacheTTL.
func NewProvider(source Source, ttl time.Duration, logger *zap.Logger, opts ...ProviderOption) *Provider {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	p := &Provider{
		source: source,
		ttl:    ttl,
		now:    time.Now,
		logger: logger.Named("policy"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Load returns the cached snapshot, reloading it when the TTL has expired.
// If a reload fails after a snapshot was loaded, the previous snapshot keeps
// being served and the next Load tries again.
func (p *Provider) Load(ctx context.Context) (*Config, error) {
	prev := p.current.Load()
	if prev.fresh(p.now(), p.ttl) {
		return prev.config, nil
	}

	cfg, err := p.reload(ctx)
	if err == nil {
		return cfg, nil
	}
	if prev == nil {
		p.logger.Error("Failed to load policy configuration", zap.Error(err))
		return nil, err
	}
	p.logger.Warn("Policy reload failed; serving previous configuration",
		zap.Time("loaded_at", prev.loadedAt),
		zap.Error(err))
	return prev.config, nil
}

// Reload reads the source now. On failure the error is returned and the
// previous snapshot, if any, stays in place.
func (p *Provider) Reload(ctx context.Context) (*Config, error) {
	p.Invalidate()
	return p.reload(ctx)
}

// reload shares one source read between concurrent callers. The read is
// detached from the caller's cancellation so one abandoned request cannot
// fail the others waiting on it.
func (p *Provider) reload(ctx context.Context) (*Config, error) {
	loadCtx := context.WithoutCancel(ctx)
	v, err, _ := p.group.Do("load", func() (any, error) {
		// Another caller may have refreshed while we waited.
		if snap := p.current.Load(); snap.fresh(p.now(), p.ttl) {
			return snap.config, nil
		}
		cfg, err := p.source.Load(loadCtx)
		if err != nil {
			return nil, err
		}
		p.current.Store(&snapshot{config: cfg, loadedAt: p.now()})
		p.logger.Info("Loaded policy configuration",
			zap.Int("red_lines", len(cfg.Policies.RedLines)),
			zap.Int("emergency_keywords", len(cfg.Policies.Escalation.EmergencyKeywords)),
			zap.Int("faq_topics", len(cfg.FAQs.Defaults)))
		return cfg, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Config), nil
}

// Invalidate expires the cached snapshot so the next Load reads the source.
// The snapshot is still served if that read fails.
func (p *Provider) Invalidate() {
	if snap := p.current.Load(); snap != nil {
		p.current.Store(&snapshot{config: snap.config, loadedAt: snap.loadedAt, expired: true})
	}
}

// LastLoaded returns when the current snapshot was loaded, or the zero time.
func (p *Provider) LastLoaded() time.Time {
	if snap := p.current.Load(); snap != nil {
		return snap.loadedAt
	}
	return time.Time{}
}
