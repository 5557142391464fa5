package services

import (
	"context"
	"log/slog"
	"math"
	"time"

	"reward-engine/metrics"
	"reward-engine/models"
)

// LevelThreshold is the experience needed to advance from level to level+1.
// Strictly increasing in level: 5·level² + 50·level + 100.
func LevelThreshold(level int) int64 {
	l := int64(level)
	return 5*l*l + 50*l + 100
}

// scaleReward applies multiplier to base, saturating at MaxInt64.
func scaleReward(base int64, multiplier float64) int64 {
	scaled := math.Floor(float64(base) * multiplier)
	switch {
	case math.IsNaN(scaled) || scaled <= 0:
		return 0
	case scaled >= math.MaxInt64:
		return math.MaxInt64
	}
	return int64(scaled)
}

// ResolveLevels consumes experience into level-ups until the remainder is
// below the current threshold. It returns the number of levels gained.
func ResolveLevels(acc *models.Account) int {
	if acc.Level < 1 {
		acc.Level = 1
	}
	gained := 0
	for acc.Experience >= LevelThreshold(acc.Level) {
		acc.Experience -= LevelThreshold(acc.Level)
		acc.Level++
		acc.LevelUps++
		gained++
	}
	return gained
}

// ConfigSource resolves the configuration of a scope; it never fails.
type ConfigSource interface {
	Get(ctx context.Context, scopeID string) models.ScopeConfig
}

// Emitter accepts level-up events without blocking.
type Emitter interface {
	Emit(ev models.LevelUpEvent) bool
}

// ProgressionStore is the account surface the XP engine needs.
type ProgressionStore interface {
	Ensure(ctx context.Context, userID string) (*models.Account, error)
	GrantExperience(ctx context.Context, userID string, reward int64, now, cutoff time.Time, resolve func(*models.Account) bool) (*models.Account, bool, error)
}

// Activity is one qualifying-candidate event, typically a chat message.
type Activity struct {
	ScopeID       string   `json:"scope_id"`
	UserID        string   `json:"user_id"`
	ChannelID     string   `json:"channel_id"`
	ContentLength int      `json:"content_length"`
	RoleIDs       []string `json:"role_ids"`
}

// ActivityResult describes what an award did. Callers of the chat pipeline
// ignore it; it exists for the HTTP boundary and tests.
type ActivityResult struct {
	Awarded      bool       `json:"awarded"`
	Skipped      SkipReason `json:"skipped,omitempty"`
	Reward       int64      `json:"reward"`
	Multiplier   float64    `json:"multiplier"`
	Level        int        `json:"level"`
	Experience   int64      `json:"experience"`
	LevelsGained int        `json:"levels_gained"`
}

// Profile is an account with its progress toward the next level.
type Profile struct {
	models.Account
	NextLevelAt int64 `json:"next_level_at"`
}

type ProgressionService struct {
	Accounts ProgressionStore
	Configs  ConfigSource
	Events   Emitter
	Roller   Roller
	Now      func() time.Time

	logger  *slog.Logger
	metrics *metrics.EngineMetrics
}

func NewProgressionService(accounts ProgressionStore, configs ConfigSource, events Emitter, logger *slog.Logger, m *metrics.EngineMetrics) *ProgressionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProgressionService{
		Accounts: accounts,
		Configs:  configs,
		Events:   events,
		Roller:   uniformRoller{},
		Now:      utcNow,
		logger:   logger,
		metrics:  m,
	}
}

// AwardActivity grants experience for a qualifying event at most once per
// cooldown window, resolves level-ups and emits a level-up event when the
// scope wants one.
func (s *ProgressionService) AwardActivity(ctx context.Context, a Activity) (ActivityResult, error) {
	cfg := s.Configs.Get(ctx, a.ScopeID)

	if !cfg.ChannelQualifies(a.ChannelID) {
		return s.skip(ActivityResult{}, SkipChannelFiltered), nil
	}
	if a.ContentLength < cfg.MinContentLength {
		return s.skip(ActivityResult{}, SkipTooShort), nil
	}

	acc, err := s.Accounts.Ensure(ctx, a.UserID)
	if err != nil {
		return ActivityResult{}, unavailable(ctx, s.logger, "XP", a.UserID, err)
	}
	result := ActivityResult{Level: acc.Level, Experience: acc.Experience}

	now := s.Now()
	cooldown := time.Duration(cfg.CooldownSeconds) * time.Second
	if last := acc.LastActionAt(models.ActionXP); last != nil && now.Sub(*last) < cooldown {
		return s.skip(result, SkipCooldown), nil
	}

	base := s.Roller.Between(cfg.MinReward, cfg.MaxReward)
	result.Multiplier = cfg.Multiplier(a.ChannelID, a.RoleIDs)
	reward := scaleReward(base, result.Multiplier)

	var gained int
	updated, matched, err := s.Accounts.GrantExperience(ctx, a.UserID, reward, now, now.Add(-cooldown),
		func(acc *models.Account) bool {
			gained = ResolveLevels(acc)
			return gained > 0
		})
	if err != nil {
		return ActivityResult{}, unavailable(ctx, s.logger, "XP", a.UserID, err)
	}
	if !matched {
		// Another event for this user claimed the window first.
		return s.skip(result, SkipCooldown), nil
	}
	if reward <= 0 {
		return s.skip(result, SkipZeroReward), nil
	}

	result.Awarded = true
	result.Reward = reward
	result.Level = updated.Level
	result.Experience = updated.Experience
	result.LevelsGained = gained
	s.metrics.ObserveXPAward("awarded", reward, gained)

	s.logger.DebugContext(ctx, "[XP] experience awarded",
		"user_id", a.UserID, "scope_id", a.ScopeID, "reward", reward,
		"multiplier", result.Multiplier, "level", updated.Level, "levels_gained", gained)

	if gained > 0 && cfg.LevelUpNotification.Enabled && s.Events != nil {
		s.Events.Emit(models.LevelUpEvent{
			ScopeID:         a.ScopeID,
			UserID:          a.UserID,
			ChannelID:       a.ChannelID,
			NewLevel:        updated.Level,
			LevelsGained:    gained,
			TargetChannel:   cfg.LevelUpNotification.TargetChannel,
			MessageTemplate: cfg.LevelUpNotification.MessageTemplate,
			OccurredAt:      now,
		})
	}
	return result, nil
}

// Profile returns the user's account, creating it on first touch.
func (s *ProgressionService) Profile(ctx context.Context, userID string) (Profile, error) {
	acc, err := s.Accounts.Ensure(ctx, userID)
	if err != nil {
		return Profile{}, unavailable(ctx, s.logger, "XP", userID, err)
	}
	return Profile{Account: *acc, NextLevelAt: LevelThreshold(acc.Level)}, nil
}

func (s *ProgressionService) skip(r ActivityResult, reason SkipReason) ActivityResult {
	r.Skipped = reason
	s.metrics.ObserveXPAward(string(reason), 0, 0)
	return r
}
