package services

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"
)

// Typed failures of the public operations. Driver errors never cross the
// service boundary; they are logged and replaced by ErrStoreUnavailable.
var (
	ErrStoreUnavailable  = errors.New("store unavailable, try again later")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrCapacityExceeded  = errors.New("vault capacity exceeded")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrUnknownJob        = errors.New("unknown job")
	ErrInvalidConfig     = errors.New("invalid scope config")
	ErrConflict          = errors.New("account changed concurrently, try again")
)

// DenyReason explains a work-shift claim that did not pay out.
type DenyReason string

const (
	ReasonNoJob      DenyReason = "no_job"
	ReasonUnknownJob DenyReason = "unknown_job"
	ReasonCooldown   DenyReason = "cooldown"
)

// SkipReason explains an activity event that granted no experience.
type SkipReason string

const (
	SkipChannelFiltered SkipReason = "channel_filtered"
	SkipTooShort        SkipReason = "too_short"
	SkipCooldown        SkipReason = "cooldown"
	SkipZeroReward      SkipReason = "zero_reward"
)

// Roller draws uniformly distributed rewards.
type Roller interface {
	Between(lo, hi int64) int64
}

type uniformRoller struct{}

// Between returns a uniform integer in [lo, hi]; lo when the range is empty.
func (uniformRoller) Between(lo, hi int64) int64 {
	if hi <= lo {
		return lo
	}
	return lo + rand.Int64N(hi-lo+1)
}

func utcNow() time.Time {
	return time.Now().UTC()
}

// unavailable logs a driver failure with its context and hides it from callers.
func unavailable(ctx context.Context, logger *slog.Logger, op, userID string, err error) error {
	logger.ErrorContext(ctx, "["+op+"] store failure", "user_id", userID, "error", err)
	return ErrStoreUnavailable
}
