package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"reward-engine/models"
	"reward-engine/store"

	"github.com/stretchr/testify/require"
)

// flakyConfigs counts store reads and can be switched off.
type flakyConfigs struct {
	mu    sync.Mutex
	down  bool
	reads int
	rows  map[string]models.ScopeConfig
}

func newFlakyConfigs() *flakyConfigs {
	return &flakyConfigs{rows: map[string]models.ScopeConfig{}}
}

func (f *flakyConfigs) Ensure(ctx context.Context, scopeID string) (models.ScopeConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.down {
		return models.ScopeConfig{}, errStoreDown
	}
	cfg, ok := f.rows[scopeID]
	if !ok {
		cfg = models.DefaultScopeConfig(scopeID)
		f.rows[scopeID] = cfg
	}
	return cfg, nil
}

func (f *flakyConfigs) Save(ctx context.Context, cfg models.ScopeConfig) (models.ScopeConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return models.ScopeConfig{}, errStoreDown
	}
	f.rows[cfg.ScopeID] = cfg
	return cfg, nil
}

func (f *flakyConfigs) set(scopeID string, mutate func(*models.ScopeConfig)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cfg := f.rows[scopeID]
	mutate(&cfg)
	f.rows[scopeID] = cfg
}

func (f *flakyConfigs) setDown(down bool) {
	f.mu.Lock()
	f.down = down
	f.mu.Unlock()
}

func (f *flakyConfigs) readCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

func newCache(t *testing.T, backing ScopeConfigStore) (*ScopeConfigCache, *clock) {
	t.Helper()
	c := NewScopeConfigCache(backing, time.Minute, quiet, nil)
	clk := newClock(t0)
	c.now = clk.Now
	return c, clk
}

func TestScopeConfigCacheServesWithinTTL(t *testing.T) {
	backing := newFlakyConfigs()
	cache, clk := newCache(t, backing)
	ctx := context.Background()

	cfg := cache.Get(ctx, "guild")
	require.EqualValues(t, 15, cfg.MinReward)
	require.Equal(t, 1, backing.readCount())

	backing.set("guild", func(c *models.ScopeConfig) { c.MinReward = 99 })
	clk.Advance(30 * time.Second)
	require.EqualValues(t, 15, cache.Get(ctx, "guild").MinReward)
	require.Equal(t, 1, backing.readCount())

	clk.Advance(31 * time.Second)
	require.EqualValues(t, 99, cache.Get(ctx, "guild").MinReward)
	require.Equal(t, 2, backing.readCount())
}

func TestScopeConfigCacheFallsBack(t *testing.T) {
	backing := newFlakyConfigs()
	cache, clk := newCache(t, backing)
	ctx := context.Background()

	backing.set("guild", func(c *models.ScopeConfig) {
		*c = models.DefaultScopeConfig("guild")
		c.CooldownSeconds = 5
	})
	require.EqualValues(t, 5, cache.Get(ctx, "guild").CooldownSeconds)

	backing.setDown(true)
	clk.Advance(2 * time.Minute)
	require.EqualValues(t, 5, cache.Get(ctx, "guild").CooldownSeconds, "stale value beats defaults")

	def := cache.Get(ctx, "other")
	require.Equal(t, "other", def.ScopeID)
	require.Equal(t, models.DefaultScopeConfig("other").CooldownSeconds, def.CooldownSeconds)
}

func TestScopeConfigCacheUpdate(t *testing.T) {
	backing := newFlakyConfigs()
	cache, _ := newCache(t, backing)
	ctx := context.Background()

	cfg := cache.Get(ctx, "guild")
	cfg.MaxReward = cfg.MinReward - 1
	_, err := cache.Update(ctx, cfg)
	require.ErrorIs(t, err, ErrInvalidConfig)

	cfg = cache.Get(ctx, "guild")
	cfg.RoleMultipliers = []models.Multiplier{{TargetID: "", Factor: 2}}
	_, err = cache.Update(ctx, cfg)
	require.ErrorIs(t, err, ErrInvalidConfig)

	cfg = cache.Get(ctx, "guild")
	cfg.MinReward, cfg.MaxReward = 1, 3
	saved, err := cache.Update(ctx, cfg)
	require.NoError(t, err)
	require.EqualValues(t, 3, saved.MaxReward)

	reads := backing.readCount()
	require.EqualValues(t, 3, cache.Get(ctx, "guild").MaxReward)
	require.Equal(t, reads, backing.readCount(), "update refreshes the cache")

	backing.setDown(true)
	_, err = cache.Update(ctx, cfg)
	require.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestScopeConfigCacheSweep(t *testing.T) {
	cache, clk := newCache(t, newFlakyConfigs())
	ctx := context.Background()

	cache.Get(ctx, "a")
	clk.Advance(90 * time.Second)
	cache.Get(ctx, "b")

	// "a" expired 30s ago: kept as a fallback.
	require.Zero(t, cache.Sweep())

	clk.Advance(time.Minute)
	require.Equal(t, 1, cache.Sweep())

	cache.Invalidate("b")
	require.Zero(t, cache.Sweep())
}

func TestScopeConfigCacheWithStore(t *testing.T) {
	cache, _ := newCache(t, store.NewScopeConfigs(setupTestDB(t)))
	ctx := context.Background()

	cfg := cache.Get(ctx, "guild")
	require.NotEmpty(t, cfg.ID)

	cfg.ChannelAllowList = []string{"general"}
	_, err := cache.Update(ctx, cfg)
	require.NoError(t, err)

	cache.Invalidate("guild")
	require.Equal(t, []string{"general"}, cache.Get(ctx, "guild").ChannelAllowList)
}

func TestStartConfigSweeper(t *testing.T) {
	cache, _ := newCache(t, newFlakyConfigs())
	sched, err := StartConfigSweeper(cache, time.Hour, quiet)
	require.NoError(t, err)
	require.Len(t, sched.Jobs(), 1)
	require.NoError(t, sched.Shutdown())
}

func TestScopeConfigCacheFailedUpdateKeepsFallback(t *testing.T) {
	backing := newFlakyConfigs()
	cache, _ := newCache(t, backing)
	ctx := context.Background()

	backing.set("guild", func(c *models.ScopeConfig) {
		*c = models.DefaultScopeConfig("guild")
		c.ChannelBlockList = []string{"bots"}
		c.CooldownSeconds = 600
	})
	cfg := cache.Get(ctx, "guild")
	require.Equal(t, []string{"bots"}, cfg.ChannelBlockList)

	backing.setDown(true)
	cfg.CooldownSeconds = 30
	_, err := cache.Update(ctx, cfg)
	require.ErrorIs(t, err, ErrStoreUnavailable)

	got := cache.Get(ctx, "guild")
	require.Equal(t, []string{"bots"}, got.ChannelBlockList)
	require.EqualValues(t, 600, got.CooldownSeconds)
	require.False(t, got.ChannelQualifies("bots"))

	// The failed save forces a re-read once the store is back.
	reads := backing.readCount()
	backing.setDown(false)
	cache.Get(ctx, "guild")
	require.Equal(t, reads+1, backing.readCount())
}

func TestScopeConfigCacheRejectsOversizedFactor(t *testing.T) {
	cache, _ := newCache(t, newFlakyConfigs())
	ctx := context.Background()

	cfg := cache.Get(ctx, "guild")
	cfg.ChannelMultipliers = []models.Multiplier{{TargetID: "general", Factor: 1e18}}
	_, err := cache.Update(ctx, cfg)
	require.ErrorIs(t, err, ErrInvalidConfig)

	cfg.ChannelMultipliers = []models.Multiplier{{TargetID: "general", Factor: MaxMultiplierFactor}}
	_, err = cache.Update(ctx, cfg)
	require.NoError(t, err)
}
