package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"reward-engine/logging"
	"reward-engine/models"
	"reward-engine/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var errStoreDown = errors.New("connection refused")

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := store.Open("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// One connection serializes writers the way row locks would.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, store.AutoMigrate(db))
	return db
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(at time.Time) *clock { return &clock{now: at} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fixedRoller always draws the same value, clamped into the range.
type fixedRoller int64

func (r fixedRoller) Between(lo, hi int64) int64 {
	return max(lo, min(int64(r), hi))
}

// staticConfigs serves one config for every scope.
type staticConfigs struct{ cfg models.ScopeConfig }

func (s staticConfigs) Get(ctx context.Context, scopeID string) models.ScopeConfig {
	cfg := s.cfg
	cfg.ScopeID = scopeID
	return cfg
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []models.LevelUpEvent
}

func (e *recordingEmitter) Emit(ev models.LevelUpEvent) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	return true
}

func (e *recordingEmitter) all() []models.LevelUpEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.LevelUpEvent(nil), e.events...)
}

func setBalance(t *testing.T, db *gorm.DB, userID string, balance int64) {
	t.Helper()
	_, err := store.NewAccounts(db).Ensure(context.Background(), userID)
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.Account{}).Where("user_id = ?", userID).Update("balance", balance).Error)
}

var quiet = logging.Discard()
