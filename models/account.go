package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ActionType identifies a reward-granting action with its own cooldown window.
type ActionType string

const (
	ActionXP   ActionType = "xp"
	ActionWork ActionType = "work"
)

// Account is the single persistent record per user shared by the XP engine,
// the work-shift service and the vault.
type Account struct {
	ID     string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID string `gorm:"uniqueIndex;not null" json:"user_id"` // platform user id

	// Currency
	Balance      int64 `json:"balance" gorm:"not null;default:0"`
	VaultBalance int64 `json:"vault_balance" gorm:"not null;default:0"`
	VaultLevel   int   `json:"vault_level" gorm:"not null;default:0"`

	// Progression
	Experience int64 `json:"experience" gorm:"not null;default:0"` // experience carried into the current level
	Level      int   `json:"level" gorm:"not null;default:1"`
	Prestige   int   `json:"prestige" gorm:"not null;default:0"`

	// Work shifts
	CurrentJobID *string `json:"current_job_id,omitempty"`

	// Counters
	TotalEarned     int64 `json:"total_earned" gorm:"not null;default:0"`
	ShiftsCompleted int64 `json:"shifts_completed" gorm:"not null;default:0"`
	MessagesCounted int64 `json:"messages_counted" gorm:"not null;default:0"`
	LevelUps        int64 `json:"level_ups" gorm:"not null;default:0"`

	// Last successful claim per action type, see ActionColumn
	LastXPAt   *time.Time `json:"last_xp_at,omitempty"`
	LastWorkAt *time.Time `json:"last_work_at,omitempty"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Level < 1 {
		a.Level = 1
	}
	return nil
}

// NewAccount returns the zero-value record created on first touch.
func NewAccount(userID string) Account {
	return Account{UserID: userID, Level: 1}
}

// LastActionAt returns the last successful claim of action, nil when never claimed.
func (a *Account) LastActionAt(action ActionType) *time.Time {
	switch action {
	case ActionXP:
		return a.LastXPAt
	case ActionWork:
		return a.LastWorkAt
	}
	return nil
}

// ActionColumn maps an action type to the column holding its last claim time.
func ActionColumn(action ActionType) (string, bool) {
	switch action {
	case ActionXP:
		return "last_xp_at", true
	case ActionWork:
		return "last_work_at", true
	}
	return "", false
}
