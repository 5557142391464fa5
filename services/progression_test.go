package services

import (
	"context"
	"math"
	"testing"
	"time"

	"reward-engine/models"
	"reward-engine/store"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newProgression(t *testing.T, cfg models.ScopeConfig, roll int64) (*ProgressionService, *gorm.DB, *clock, *recordingEmitter) {
	t.Helper()
	db := setupTestDB(t)
	events := &recordingEmitter{}
	svc := NewProgressionService(store.NewAccounts(db), staticConfigs{cfg: cfg}, events, quiet, nil)
	clk := newClock(t0)
	svc.Now = clk.Now
	svc.Roller = fixedRoller(roll)
	return svc, db, clk, events
}

func message(userID string) Activity {
	return Activity{ScopeID: "guild", UserID: userID, ChannelID: "general", ContentLength: 40}
}

func TestLevelThresholdIsStrictlyIncreasing(t *testing.T) {
	require.EqualValues(t, 155, LevelThreshold(1))
	require.EqualValues(t, 220, LevelThreshold(2))
	for l := 1; l < 500; l++ {
		require.Greater(t, LevelThreshold(l+1), LevelThreshold(l))
	}
}

func TestResolveLevelsCarriesRemainder(t *testing.T) {
	acc := &models.Account{Level: 1, Experience: 155 + 220 + 7}
	require.Equal(t, 2, ResolveLevels(acc))
	require.Equal(t, 3, acc.Level)
	require.EqualValues(t, 7, acc.Experience)
	require.EqualValues(t, 2, acc.LevelUps)

	acc = &models.Account{Level: 0, Experience: 10}
	require.Zero(t, ResolveLevels(acc))
	require.Equal(t, 1, acc.Level)
}

func TestAwardActivityAppliesMultipliers(t *testing.T) {
	cfg := models.DefaultScopeConfig("guild")
	cfg.MinReward, cfg.MaxReward = 10, 10
	cfg.ChannelMultipliers = []models.Multiplier{{TargetID: "general", Factor: 2}}
	cfg.RoleMultipliers = []models.Multiplier{{TargetID: "booster", Factor: 1.5}, {TargetID: "muted", Factor: 0}}
	svc, _, _, _ := newProgression(t, cfg, 10)

	a := message("u1")
	a.RoleIDs = []string{"booster", "member"}
	res, err := svc.AwardActivity(context.Background(), a)
	require.NoError(t, err)
	require.True(t, res.Awarded)
	require.Equal(t, 3.0, res.Multiplier)
	require.EqualValues(t, 30, res.Reward)
	require.EqualValues(t, 30, res.Experience)
}

func TestScaleRewardSaturates(t *testing.T) {
	require.EqualValues(t, 30, scaleReward(20, 1.5))
	require.EqualValues(t, 7, scaleReward(5, 1.5))
	require.Zero(t, scaleReward(20, 0))
	require.EqualValues(t, int64(math.MaxInt64), scaleReward(20, 1e18))
	require.EqualValues(t, int64(math.MaxInt64), scaleReward(math.MaxInt64, 2))
}

func TestAwardActivityHugeMultiplierIsNotZeroReward(t *testing.T) {
	cfg := models.DefaultScopeConfig("guild")
	cfg.MinReward, cfg.MaxReward = 20, 20
	cfg.ChannelMultipliers = []models.Multiplier{{TargetID: "general", Factor: 1e12}}
	svc, _, _, _ := newProgression(t, cfg, 20)

	res, err := svc.AwardActivity(context.Background(), message("u1"))
	require.NoError(t, err)
	require.True(t, res.Awarded)
	require.Empty(t, res.Skipped)
	require.EqualValues(t, 20_000_000_000_000, res.Reward)
}

func TestAwardActivityLevelsUpAndEmits(t *testing.T) {
	cfg := models.DefaultScopeConfig("guild")
	cfg.MinReward, cfg.MaxReward = 70, 70
	cfg.LevelUpNotification.TargetChannel = "announcements"
	svc, db, _, events := newProgression(t, cfg, 70)
	ctx := context.Background()

	_, err := store.NewAccounts(db).Ensure(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.Account{}).Where("user_id = ?", "u1").Update("experience", 95).Error)

	res, err := svc.AwardActivity(ctx, message("u1"))
	require.NoError(t, err)
	require.True(t, res.Awarded)
	require.Equal(t, 2, res.Level)
	require.EqualValues(t, 10, res.Experience)
	require.Equal(t, 1, res.LevelsGained)

	prof, err := svc.Profile(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 2, prof.Level)
	require.EqualValues(t, 10, prof.Experience)
	require.EqualValues(t, 1, prof.LevelUps)
	require.EqualValues(t, 220, prof.NextLevelAt)

	got := events.all()
	require.Len(t, got, 1)
	require.Equal(t, "u1", got[0].UserID)
	require.Equal(t, 2, got[0].NewLevel)
	require.Equal(t, "announcements", got[0].TargetChannel)
	require.Equal(t, models.DefaultLevelUpTemplate, got[0].MessageTemplate)
}

func TestAwardActivityNoEventWhenNotificationsDisabled(t *testing.T) {
	cfg := models.DefaultScopeConfig("guild")
	cfg.MinReward, cfg.MaxReward = 500, 500
	cfg.LevelUpNotification.Enabled = false
	svc, _, _, events := newProgression(t, cfg, 500)

	res, err := svc.AwardActivity(context.Background(), message("u1"))
	require.NoError(t, err)
	require.Greater(t, res.LevelsGained, 0)
	require.Empty(t, events.all())
}

func TestAwardActivityCooldown(t *testing.T) {
	cfg := models.DefaultScopeConfig("guild")
	svc, _, clk, _ := newProgression(t, cfg, 20)
	ctx := context.Background()

	res, err := svc.AwardActivity(ctx, message("u1"))
	require.NoError(t, err)
	require.True(t, res.Awarded)

	clk.Advance(59 * time.Second)
	res, err = svc.AwardActivity(ctx, message("u1"))
	require.NoError(t, err)
	require.False(t, res.Awarded)
	require.Equal(t, SkipCooldown, res.Skipped)
	require.EqualValues(t, 20, res.Experience)

	clk.Advance(time.Second)
	res, err = svc.AwardActivity(ctx, message("u1"))
	require.NoError(t, err)
	require.True(t, res.Awarded)
	require.EqualValues(t, 40, res.Experience)
}

func TestAwardActivityFilters(t *testing.T) {
	cfg := models.DefaultScopeConfig("guild")
	cfg.ChannelBlockList = []string{"bots"}
	svc, db, _, _ := newProgression(t, cfg, 20)
	ctx := context.Background()

	a := message("u1")
	a.ChannelID = "bots"
	res, err := svc.AwardActivity(ctx, a)
	require.NoError(t, err)
	require.Equal(t, SkipChannelFiltered, res.Skipped)

	a = message("u1")
	a.ContentLength = 4
	res, err = svc.AwardActivity(ctx, a)
	require.NoError(t, err)
	require.Equal(t, SkipTooShort, res.Skipped)

	// Filtered events never touch the store.
	_, err = store.NewAccounts(db).Get(ctx, "u1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestAwardActivityAllowListWins(t *testing.T) {
	cfg := models.DefaultScopeConfig("guild")
	cfg.ChannelAllowList = []string{"general"}
	cfg.ChannelBlockList = []string{"general"}
	svc, _, _, _ := newProgression(t, cfg, 20)

	res, err := svc.AwardActivity(context.Background(), message("u1"))
	require.NoError(t, err)
	require.True(t, res.Awarded)

	a := message("u1")
	a.ChannelID = "random"
	res, err = svc.AwardActivity(context.Background(), a)
	require.NoError(t, err)
	require.Equal(t, SkipChannelFiltered, res.Skipped)
}

func TestAwardActivityZeroRewardStillClaimsWindow(t *testing.T) {
	cfg := models.DefaultScopeConfig("guild")
	cfg.RoleMultipliers = []models.Multiplier{{TargetID: "muted", Factor: 0}}
	svc, _, _, _ := newProgression(t, cfg, 20)
	ctx := context.Background()

	a := message("u1")
	a.RoleIDs = []string{"muted"}
	res, err := svc.AwardActivity(ctx, a)
	require.NoError(t, err)
	require.Equal(t, SkipZeroReward, res.Skipped)

	res, err = svc.AwardActivity(ctx, message("u1"))
	require.NoError(t, err)
	require.Equal(t, SkipCooldown, res.Skipped)
}

func TestAwardActivityLevelNeverDecreases(t *testing.T) {
	cfg := models.DefaultScopeConfig("guild")
	cfg.MinReward, cfg.MaxReward = 90, 90
	svc, _, clk, _ := newProgression(t, cfg, 90)
	ctx := context.Background()

	level := 1
	for i := 0; i < 40; i++ {
		res, err := svc.AwardActivity(ctx, message("u1"))
		require.NoError(t, err)
		require.GreaterOrEqual(t, res.Level, level)
		require.Less(t, res.Experience, LevelThreshold(res.Level))
		level = res.Level
		clk.Advance(time.Minute)
	}
	require.Greater(t, level, 1)
}

func TestAwardActivityStoreUnavailable(t *testing.T) {
	svc, db, _, _ := newProgression(t, models.DefaultScopeConfig("guild"), 20)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, err = svc.AwardActivity(context.Background(), message("u1"))
	require.ErrorIs(t, err, ErrStoreUnavailable)
}
