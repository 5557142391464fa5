package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"reward-engine/metrics"
	"reward-engine/models"
)

// ScopeConfigStore is the persistent side of the cache.
type ScopeConfigStore interface {
	Ensure(ctx context.Context, scopeID string) (models.ScopeConfig, error)
	Save(ctx context.Context, cfg models.ScopeConfig) (models.ScopeConfig, error)
}

// MaxMultiplierFactor bounds a single channel or role multiplier.
const MaxMultiplierFactor = 1000

type cachedConfig struct {
	value     models.ScopeConfig
	expiresAt time.Time
}

// ScopeConfigCache serves per-scope configuration with bounded staleness.
// The mutex guards the map only and is never held across store calls, so
// concurrent refreshes of one scope may race; the last writer wins.
type ScopeConfigCache struct {
	store   ScopeConfigStore
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.EngineMetrics

	mu      sync.RWMutex
	entries map[string]cachedConfig
}

func NewScopeConfigCache(store ScopeConfigStore, ttl time.Duration, logger *slog.Logger, m *metrics.EngineMetrics) *ScopeConfigCache {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ScopeConfigCache{
		store:   store,
		ttl:     ttl,
		now:     utcNow,
		logger:  logger,
		metrics: m,
		entries: make(map[string]cachedConfig),
	}
}

// Get never fails: when the store is unreachable it falls back to the last
// cached value, then to the built-in defaults.
func (c *ScopeConfigCache) Get(ctx context.Context, scopeID string) models.ScopeConfig {
	now := c.now()

	c.mu.RLock()
	entry, cached := c.entries[scopeID]
	c.mu.RUnlock()

	if cached && now.Before(entry.expiresAt) {
		c.metrics.ObserveConfigLookup("hit")
		return entry.value
	}

	cfg, err := c.store.Ensure(ctx, scopeID)
	if err != nil {
		if cached {
			c.metrics.ObserveConfigLookup("stale")
			c.logger.WarnContext(ctx, "[CONFIG] store unavailable, serving stale config",
				"scope_id", scopeID, "expired_at", entry.expiresAt, "error", err)
			return entry.value
		}
		c.metrics.ObserveConfigLookup("default")
		c.logger.WarnContext(ctx, "[CONFIG] store unavailable, serving default config",
			"scope_id", scopeID, "error", err)
		return models.DefaultScopeConfig(scopeID)
	}

	c.metrics.ObserveConfigLookup("miss")
	c.put(cfg, now)
	return cfg
}

// Update validates and persists an admin change, then refreshes the cache.
func (c *ScopeConfigCache) Update(ctx context.Context, cfg models.ScopeConfig) (models.ScopeConfig, error) {
	if err := validateScopeConfig(cfg); err != nil {
		return models.ScopeConfig{}, err
	}
	saved, err := c.store.Save(ctx, cfg)
	if err != nil {
		// The write may have landed: force a re-read but keep the old value
		// as the outage fallback.
		c.expire(cfg.ScopeID)
		return models.ScopeConfig{}, unavailable(ctx, c.logger, "CONFIG", cfg.ScopeID, err)
	}
	c.put(saved, c.now())
	c.logger.InfoContext(ctx, "[CONFIG] scope config updated", "scope_id", saved.ScopeID)
	return saved, nil
}

// Invalidate drops the cached entry of scopeID.
func (c *ScopeConfigCache) Invalidate(scopeID string) {
	c.mu.Lock()
	delete(c.entries, scopeID)
	c.mu.Unlock()
}

// Sweep drops entries that expired more than one TTL ago and returns how many
// were removed. Recently expired entries stay as store-outage fallbacks.
func (c *ScopeConfigCache) Sweep() int {
	horizon := c.now().Add(-c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for id, e := range c.entries {
		if !e.expiresAt.After(horizon) {
			delete(c.entries, id)
			removed++
		}
	}
	return removed
}

func (c *ScopeConfigCache) expire(scopeID string) {
	c.mu.Lock()
	if e, ok := c.entries[scopeID]; ok {
		e.expiresAt = c.now()
		c.entries[scopeID] = e
	}
	c.mu.Unlock()
}

func (c *ScopeConfigCache) put(cfg models.ScopeConfig, now time.Time) {
	c.mu.Lock()
	c.entries[cfg.ScopeID] = cachedConfig{value: cfg, expiresAt: now.Add(c.ttl)}
	c.mu.Unlock()
}

func validateScopeConfig(cfg models.ScopeConfig) error {
	switch {
	case cfg.ScopeID == "":
		return fmt.Errorf("%w: scope id is required", ErrInvalidConfig)
	case cfg.MinReward < 0 || cfg.MaxReward < cfg.MinReward:
		return fmt.Errorf("%w: reward range [%d, %d]", ErrInvalidConfig, cfg.MinReward, cfg.MaxReward)
	case cfg.CooldownSeconds < 0:
		return fmt.Errorf("%w: negative cooldown", ErrInvalidConfig)
	case cfg.MinContentLength < 0:
		return fmt.Errorf("%w: negative minimum content length", ErrInvalidConfig)
	}
	for _, rules := range [][]models.Multiplier{cfg.ChannelMultipliers, cfg.RoleMultipliers} {
		for _, r := range rules {
			if r.TargetID == "" || r.Factor < 0 || r.Factor > MaxMultiplierFactor || math.IsNaN(r.Factor) {
				return fmt.Errorf("%w: multiplier %q has factor %v", ErrInvalidConfig, r.TargetID, r.Factor)
			}
		}
	}
	return nil
}
