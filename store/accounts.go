package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reward-engine/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Increments maps an account column to the amount added to it.
type Increments map[string]int64

// Accounts persists models.Account rows. Every mutation that must not race is
// a single conditional UPDATE whose RowsAffected tells whether it applied.
type Accounts struct {
	DB *gorm.DB
}

func NewAccounts(db *gorm.DB) *Accounts {
	return &Accounts{DB: db}
}

// Get returns the account of userID or ErrNotFound.
func (s *Accounts) Get(ctx context.Context, userID string) (*models.Account, error) {
	return getAccount(s.DB.WithContext(ctx), userID)
}

// Ensure returns the account of userID, creating the default record first if
// absent (idempotent under concurrent callers).
func (s *Accounts) Ensure(ctx context.Context, userID string) (*models.Account, error) {
	db := s.DB.WithContext(ctx)
	acc, err := getAccount(db, userID)
	if err == nil {
		return acc, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	fresh := models.NewAccount(userID)
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&fresh).Error; err != nil {
		return nil, fmt.Errorf("create account %s: %w", userID, err)
	}
	return getAccount(db, userID)
}

// ClaimAction stamps action's last claim time to now and applies inc, but only
// if the previous claim is absent or at or before cutoff. It reports whether
// the row matched.
func (s *Accounts) ClaimAction(ctx context.Context, userID string, action models.ActionType, now, cutoff time.Time, inc Increments) (bool, error) {
	return claimAction(s.DB.WithContext(ctx), userID, action, now, cutoff, inc)
}

// GrantExperience claims the XP cooldown window and adds reward to the
// account's experience in one transaction. When the claim matched and reward
// is positive, resolve runs on the updated row; if it reports a change the
// level fields are written back before commit.
func (s *Accounts) GrantExperience(ctx context.Context, userID string, reward int64, now, cutoff time.Time, resolve func(*models.Account) bool) (*models.Account, bool, error) {
	var (
		updated *models.Account
		matched bool
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inc := Increments{}
		if reward > 0 {
			inc["experience"] = reward
			inc["messages_counted"] = 1
		}
		ok, err := claimAction(tx, userID, models.ActionXP, now, cutoff, inc)
		if err != nil {
			return err
		}
		matched = ok
		if !ok || reward <= 0 {
			return nil
		}

		acc, err := getAccount(tx, userID)
		if err != nil {
			return err
		}
		if resolve != nil && resolve(acc) {
			if err := tx.Model(&models.Account{}).
				Where("user_id = ?", userID).
				Updates(map[string]any{
					"experience": acc.Experience,
					"level":      acc.Level,
					"level_ups":  acc.LevelUps,
				}).Error; err != nil {
				return fmt.Errorf("write level for %s: %w", userID, err)
			}
		}
		updated = acc
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return updated, matched, nil
}

// Deposit moves amount from balance into the vault if the balance covers it
// and the vault stays within base + vault_level*perLevel.
func (s *Accounts) Deposit(ctx context.Context, userID string, amount, base, perLevel int64) (bool, error) {
	res := s.DB.WithContext(ctx).Model(&models.Account{}).
		Where("user_id = ?", userID).
		Where("balance >= ?", amount).
		Where("vault_balance + ? <= ? + vault_level * ?", amount, base, perLevel).
		Updates(map[string]any{
			"balance":       gorm.Expr("balance - ?", amount),
			"vault_balance": gorm.Expr("vault_balance + ?", amount),
		})
	if res.Error != nil {
		return false, fmt.Errorf("deposit for %s: %w", userID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Withdraw moves amount from the vault back into balance if the vault holds it.
func (s *Accounts) Withdraw(ctx context.Context, userID string, amount int64) (bool, error) {
	res := s.DB.WithContext(ctx).Model(&models.Account{}).
		Where("user_id = ? AND vault_balance >= ?", userID, amount).
		Updates(map[string]any{
			"balance":       gorm.Expr("balance + ?", amount),
			"vault_balance": gorm.Expr("vault_balance - ?", amount),
		})
	if res.Error != nil {
		return false, fmt.Errorf("withdraw for %s: %w", userID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// UpgradeVault charges cost and raises vault_level by count, provided the
// level is still fromLevel (the level the cost was priced at) and the balance
// covers the cost.
func (s *Accounts) UpgradeVault(ctx context.Context, userID string, fromLevel, count int, cost int64) (bool, error) {
	res := s.DB.WithContext(ctx).Model(&models.Account{}).
		Where("user_id = ? AND vault_level = ? AND balance >= ?", userID, fromLevel, cost).
		Updates(map[string]any{
			"balance":     gorm.Expr("balance - ?", cost),
			"vault_level": gorm.Expr("vault_level + ?", count),
		})
	if res.Error != nil {
		return false, fmt.Errorf("upgrade vault for %s: %w", userID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// SetJob enrolls userID in jobID.
func (s *Accounts) SetJob(ctx context.Context, userID, jobID string) error {
	if _, err := s.Ensure(ctx, userID); err != nil {
		return err
	}
	if err := s.DB.WithContext(ctx).Model(&models.Account{}).
		Where("user_id = ?", userID).
		Update("current_job_id", jobID).Error; err != nil {
		return fmt.Errorf("set job for %s: %w", userID, err)
	}
	return nil
}

func getAccount(db *gorm.DB, userID string) (*models.Account, error) {
	var acc models.Account
	if err := db.Where("user_id = ?", userID).First(&acc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load account %s: %w", userID, err)
	}
	return &acc, nil
}

func claimAction(db *gorm.DB, userID string, action models.ActionType, now, cutoff time.Time, inc Increments) (bool, error) {
	col, ok := models.ActionColumn(action)
	if !ok {
		return false, fmt.Errorf("unknown action type %q", action)
	}

	updates := map[string]any{col: now}
	for column, delta := range inc {
		updates[column] = gorm.Expr(column+" + ?", delta)
	}

	res := db.Model(&models.Account{}).
		Where("user_id = ?", userID).
		Where("("+col+" IS NULL OR "+col+" <= ?)", cutoff).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("claim %s for %s: %w", action, userID, res.Error)
	}
	return res.RowsAffected == 1, nil
}
