package services

import (
	"context"
	"errors"
	"log/slog"
	"math"

	"reward-engine/metrics"
	"reward-engine/models"
)

// MaxUpgradesPerPurchase bounds the count accepted by PurchaseUpgrade.
const MaxUpgradesPerPurchase = 100

// VaultCurve holds the capacity and upgrade-cost constants.
type VaultCurve struct {
	BaseCapacity     int64
	PerLevelCapacity int64
	BaseUpgradeCost  int64
	UpgradeGrowth    float64
}

func DefaultVaultCurve() VaultCurve {
	return VaultCurve{
		BaseCapacity:     50_000,
		PerLevelCapacity: 25_000,
		BaseUpgradeCost:  15_000,
		UpgradeGrowth:    1.5,
	}
}

// Capacity is the vault ceiling at level: base + level × perLevel.
func (c VaultCurve) Capacity(level int) int64 {
	return c.BaseCapacity + int64(level)*c.PerLevelCapacity
}

// UpgradeCost prices the upgrade from level to level+1:
// floor(baseCost × growth^level), at least 1 and saturating at MaxInt64.
func (c VaultCurve) UpgradeCost(level int) int64 {
	cost := math.Floor(float64(c.BaseUpgradeCost) * math.Pow(c.UpgradeGrowth, float64(level)))
	if cost >= math.MaxInt64 || math.IsInf(cost, 1) || math.IsNaN(cost) {
		return math.MaxInt64
	}
	if cost < 1 {
		return 1
	}
	return int64(cost)
}

// TotalUpgradeCost sums UpgradeCost over count consecutive levels from level.
func (c VaultCurve) TotalUpgradeCost(level, count int) int64 {
	var total int64
	for i := 0; i < count; i++ {
		step := c.UpgradeCost(level + i)
		if total > math.MaxInt64-step {
			return math.MaxInt64
		}
		total += step
	}
	return total
}

// VaultStore is the account surface the vault needs.
type VaultStore interface {
	Get(ctx context.Context, userID string) (*models.Account, error)
	Ensure(ctx context.Context, userID string) (*models.Account, error)
	Deposit(ctx context.Context, userID string, amount, base, perLevel int64) (bool, error)
	Withdraw(ctx context.Context, userID string, amount int64) (bool, error)
	UpgradeVault(ctx context.Context, userID string, fromLevel, count int, cost int64) (bool, error)
}

// VaultResult is the account's vault state after an operation.
type VaultResult struct {
	Balance      int64 `json:"balance"`
	VaultBalance int64 `json:"vault_balance"`
	VaultLevel   int   `json:"vault_level"`
	Capacity     int64 `json:"capacity"`
	Cost         int64 `json:"cost,omitempty"`
}

// VaultQuote previews an upgrade purchase.
type VaultQuote struct {
	FromLevel   int   `json:"from_level"`
	ToLevel     int   `json:"to_level"`
	Cost        int64 `json:"cost"`
	NewCapacity int64 `json:"new_capacity"`
	Balance     int64 `json:"balance"`
	CanAfford   bool  `json:"can_afford"`
}

// VaultService moves funds between balance and the capacity-limited vault and
// sells capacity upgrades. Every check that protects an invariant is repeated
// inside the conditional store update.
type VaultService struct {
	Accounts VaultStore
	Curve    VaultCurve

	logger  *slog.Logger
	metrics *metrics.EngineMetrics
}

func NewVaultService(accounts VaultStore, curve VaultCurve, logger *slog.Logger, m *metrics.EngineMetrics) *VaultService {
	if logger == nil {
		logger = slog.Default()
	}
	return &VaultService{Accounts: accounts, Curve: curve, logger: logger, metrics: m}
}

// Deposit moves amount from balance into the vault.
func (s *VaultService) Deposit(ctx context.Context, userID string, amount int64) (VaultResult, error) {
	if amount <= 0 {
		return VaultResult{}, s.fail("deposit", ErrInvalidAmount)
	}
	acc, err := s.Accounts.Ensure(ctx, userID)
	if err != nil {
		return VaultResult{}, unavailable(ctx, s.logger, "VAULT", userID, err)
	}
	if err := s.checkDeposit(acc, amount); err != nil {
		return VaultResult{}, s.fail("deposit", err)
	}

	ok, err := s.Accounts.Deposit(ctx, userID, amount, s.Curve.BaseCapacity, s.Curve.PerLevelCapacity)
	if err != nil {
		return VaultResult{}, unavailable(ctx, s.logger, "VAULT", userID, err)
	}
	if !ok {
		// Lost a race; classify against the state that beat us.
		fresh, err := s.Accounts.Get(ctx, userID)
		if err != nil {
			return VaultResult{}, unavailable(ctx, s.logger, "VAULT", userID, err)
		}
		if err := s.checkDeposit(fresh, amount); err != nil {
			return VaultResult{}, s.fail("deposit", err)
		}
		return VaultResult{}, s.fail("deposit", ErrConflict)
	}

	s.logger.InfoContext(ctx, "[VAULT] deposit", "user_id", userID, "amount", amount)
	known := *acc
	known.Balance -= amount
	known.VaultBalance += amount
	return s.result(ctx, userID, known, 0, "deposit")
}

// Withdraw moves amount from the vault back into balance.
func (s *VaultService) Withdraw(ctx context.Context, userID string, amount int64) (VaultResult, error) {
	if amount <= 0 {
		return VaultResult{}, s.fail("withdraw", ErrInvalidAmount)
	}
	acc, err := s.Accounts.Ensure(ctx, userID)
	if err != nil {
		return VaultResult{}, unavailable(ctx, s.logger, "VAULT", userID, err)
	}
	ok, err := s.Accounts.Withdraw(ctx, userID, amount)
	if err != nil {
		return VaultResult{}, unavailable(ctx, s.logger, "VAULT", userID, err)
	}
	if !ok {
		return VaultResult{}, s.fail("withdraw", ErrInsufficientFunds)
	}

	s.logger.InfoContext(ctx, "[VAULT] withdraw", "user_id", userID, "amount", amount)
	known := *acc
	known.Balance += amount
	known.VaultBalance -= amount
	return s.result(ctx, userID, known, 0, "withdraw")
}

// PurchaseUpgrade buys count capacity levels at the geometric price.
func (s *VaultService) PurchaseUpgrade(ctx context.Context, userID string, count int) (VaultResult, error) {
	if count <= 0 || count > MaxUpgradesPerPurchase {
		return VaultResult{}, s.fail("upgrade", ErrInvalidAmount)
	}
	acc, err := s.Accounts.Ensure(ctx, userID)
	if err != nil {
		return VaultResult{}, unavailable(ctx, s.logger, "VAULT", userID, err)
	}

	// The price depends on the level it was computed at; a concurrent upgrade
	// moves the level, so re-price once from a fresh read.
	for attempt := 0; attempt < 2; attempt++ {
		cost := s.Curve.TotalUpgradeCost(acc.VaultLevel, count)
		if acc.Balance < cost {
			return VaultResult{}, s.fail("upgrade", ErrInsufficientFunds)
		}

		ok, err := s.Accounts.UpgradeVault(ctx, userID, acc.VaultLevel, count, cost)
		if err != nil {
			return VaultResult{}, unavailable(ctx, s.logger, "VAULT", userID, err)
		}
		if ok {
			s.logger.InfoContext(ctx, "[VAULT] upgrade purchased",
				"user_id", userID, "from_level", acc.VaultLevel, "count", count, "cost", cost)
			known := *acc
			known.Balance -= cost
			known.VaultLevel += count
			return s.result(ctx, userID, known, cost, "upgrade")
		}

		if acc, err = s.Accounts.Get(ctx, userID); err != nil {
			return VaultResult{}, unavailable(ctx, s.logger, "VAULT", userID, err)
		}
	}
	if acc.Balance < s.Curve.TotalUpgradeCost(acc.VaultLevel, count) {
		return VaultResult{}, s.fail("upgrade", ErrInsufficientFunds)
	}
	return VaultResult{}, s.fail("upgrade", ErrConflict)
}

// Quote prices count upgrades from the user's current vault level.
func (s *VaultService) Quote(ctx context.Context, userID string, count int) (VaultQuote, error) {
	if count <= 0 || count > MaxUpgradesPerPurchase {
		return VaultQuote{}, ErrInvalidAmount
	}
	acc, err := s.Accounts.Ensure(ctx, userID)
	if err != nil {
		return VaultQuote{}, unavailable(ctx, s.logger, "VAULT", userID, err)
	}
	cost := s.Curve.TotalUpgradeCost(acc.VaultLevel, count)
	return VaultQuote{
		FromLevel:   acc.VaultLevel,
		ToLevel:     acc.VaultLevel + count,
		Cost:        cost,
		NewCapacity: s.Curve.Capacity(acc.VaultLevel + count),
		Balance:     acc.Balance,
		CanAfford:   acc.Balance >= cost,
	}, nil
}

// checkDeposit applies the capacity rule before the funds rule.
func (s *VaultService) checkDeposit(acc *models.Account, amount int64) error {
	if amount > s.Curve.Capacity(acc.VaultLevel)-acc.VaultBalance {
		return ErrCapacityExceeded
	}
	if acc.Balance < amount {
		return ErrInsufficientFunds
	}
	return nil
}

// result reports the committed state. When the re-read fails it falls back to
// known, the state the applied update produced.
func (s *VaultService) result(ctx context.Context, userID string, known models.Account, cost int64, op string) (VaultResult, error) {
	s.metrics.ObserveVault(op, "ok")
	acc, err := s.Accounts.Get(ctx, userID)
	if err != nil {
		s.logger.WarnContext(ctx, "[VAULT] "+op+" applied but re-read failed", "user_id", userID, "error", err)
		acc = &known
	}
	return VaultResult{
		Balance:      acc.Balance,
		VaultBalance: acc.VaultBalance,
		VaultLevel:   acc.VaultLevel,
		Capacity:     s.Curve.Capacity(acc.VaultLevel),
		Cost:         cost,
	}, nil
}

func (s *VaultService) fail(op string, err error) error {
	outcome := "error"
	switch {
	case errors.Is(err, ErrInsufficientFunds):
		outcome = "insufficient_funds"
	case errors.Is(err, ErrCapacityExceeded):
		outcome = "capacity_exceeded"
	case errors.Is(err, ErrInvalidAmount):
		outcome = "invalid_amount"
	case errors.Is(err, ErrConflict):
		outcome = "conflict"
	}
	s.metrics.ObserveVault(op, outcome)
	return err
}
