package services

import (
	"context"
	"log/slog"
	"time"

	"reward-engine/metrics"
	"reward-engine/models"
	"reward-engine/store"
)

// WorkStore is the account surface the work-shift service needs.
type WorkStore interface {
	Get(ctx context.Context, userID string) (*models.Account, error)
	Ensure(ctx context.Context, userID string) (*models.Account, error)
	ClaimAction(ctx context.Context, userID string, action models.ActionType, now, cutoff time.Time, inc store.Increments) (bool, error)
	SetJob(ctx context.Context, userID, jobID string) error
}

// JobCatalog resolves job ids loaded at start-up.
type JobCatalog interface {
	Job(id string) (models.Job, bool)
	Jobs() []models.Job
}

// ClaimResult is the typed outcome of a work-shift claim.
type ClaimResult struct {
	OK         bool          `json:"ok"`
	Job        *models.Job   `json:"job,omitempty"`
	Reward     int64         `json:"reward"`
	Balance    int64         `json:"balance"`
	Reason     DenyReason    `json:"reason,omitempty"`
	RetryAfter time.Duration `json:"-"`
}

// RetryAfterMs is the wait before the next claim can succeed, in milliseconds.
func (r ClaimResult) RetryAfterMs() int64 {
	return r.RetryAfter.Milliseconds()
}

// WorkService pays out work shifts at most once per cooldown window. The
// window is enforced by one conditional update in the store, never by a
// read-then-write in this process.
type WorkService struct {
	Accounts WorkStore
	Catalog  JobCatalog
	Cooldown time.Duration
	Roller   Roller
	Now      func() time.Time

	logger  *slog.Logger
	metrics *metrics.EngineMetrics
}

func NewWorkService(accounts WorkStore, jobs JobCatalog, cooldown time.Duration, logger *slog.Logger, m *metrics.EngineMetrics) *WorkService {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkService{
		Accounts: accounts,
		Catalog:  jobs,
		Cooldown: cooldown,
		Roller:   uniformRoller{},
		Now:      utcNow,
		logger:   logger,
		metrics:  m,
	}
}

// ClaimWorkShift pays the user's current job once per cooldown window.
func (s *WorkService) ClaimWorkShift(ctx context.Context, userID string) (ClaimResult, error) {
	acc, err := s.Accounts.Ensure(ctx, userID)
	if err != nil {
		return ClaimResult{}, unavailable(ctx, s.logger, "WORK", userID, err)
	}

	if acc.CurrentJobID == nil || *acc.CurrentJobID == "" {
		return s.deny(ClaimResult{Reason: ReasonNoJob}), nil
	}
	job, ok := s.Catalog.Job(*acc.CurrentJobID)
	if !ok {
		return s.deny(ClaimResult{Reason: ReasonUnknownJob}), nil
	}

	// Rolled once; the value written is the value reported.
	reward := s.Roller.Between(job.MinReward, job.MaxReward)
	now := s.Now()

	matched, err := s.Accounts.ClaimAction(ctx, userID, models.ActionWork, now, now.Add(-s.Cooldown), store.Increments{
		"balance":          reward,
		"total_earned":     reward,
		"shifts_completed": 1,
	})
	if err != nil {
		// The write may have landed; retrying could pay twice.
		return ClaimResult{}, unavailable(ctx, s.logger, "WORK", userID, err)
	}

	if !matched {
		fresh, err := s.Accounts.Get(ctx, userID)
		if err != nil {
			return ClaimResult{}, unavailable(ctx, s.logger, "WORK", userID, err)
		}
		return s.deny(ClaimResult{Reason: ReasonCooldown, RetryAfter: s.retryAfter(fresh, now)}), nil
	}

	balance := acc.Balance + reward
	if fresh, err := s.Accounts.Get(ctx, userID); err == nil {
		balance = fresh.Balance
	} else {
		s.logger.WarnContext(ctx, "[WORK] claim applied but balance re-read failed", "user_id", userID, "error", err)
	}

	s.metrics.ObserveWorkClaim("paid", reward)
	s.logger.InfoContext(ctx, "[WORK] shift paid", "user_id", userID, "job_id", job.ID, "reward", reward)
	return ClaimResult{OK: true, Job: &job, Reward: reward, Balance: balance}, nil
}

// AssignJob enrolls userID in jobID.
func (s *WorkService) AssignJob(ctx context.Context, userID, jobID string) (models.Job, error) {
	job, ok := s.Catalog.Job(jobID)
	if !ok {
		return models.Job{}, ErrUnknownJob
	}
	if err := s.Accounts.SetJob(ctx, userID, job.ID); err != nil {
		return models.Job{}, unavailable(ctx, s.logger, "WORK", userID, err)
	}
	s.logger.InfoContext(ctx, "[WORK] job assigned", "user_id", userID, "job_id", job.ID)
	return job, nil
}

// Jobs lists the catalog.
func (s *WorkService) Jobs() []models.Job {
	return s.Catalog.Jobs()
}

func (s *WorkService) retryAfter(acc *models.Account, now time.Time) time.Duration {
	last := acc.LastActionAt(models.ActionWork)
	if last == nil {
		return 0
	}
	wait := last.Add(s.Cooldown).Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}

func (s *WorkService) deny(r ClaimResult) ClaimResult {
	s.metrics.ObserveWorkClaim(string(r.Reason), 0)
	return r
}
