package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Multiplier scales the XP reward when its target (a channel or a role) matches.
type Multiplier struct {
	TargetID string  `json:"target_id"`
	Factor   float64 `json:"factor"`
}

// LevelUpNotification is read by the notifier, never by the engine itself.
type LevelUpNotification struct {
	Enabled         bool   `json:"enabled"`
	TargetChannel   string `json:"target_channel"` // empty: announce where the activity happened
	MessageTemplate string `json:"message_template"`
}

// ScopeConfig is the per-guild XP configuration.
type ScopeConfig struct {
	ID      string `gorm:"primaryKey;type:uuid" json:"id"`
	ScopeID string `gorm:"uniqueIndex;not null" json:"scope_id"`

	MinReward        int64 `json:"min_reward" gorm:"not null"`
	MaxReward        int64 `json:"max_reward" gorm:"not null"`
	CooldownSeconds  int64 `json:"cooldown_seconds" gorm:"not null"`
	MinContentLength int   `json:"min_content_length" gorm:"not null"`

	ChannelAllowList []string `json:"channel_allow_list" gorm:"serializer:json"`
	ChannelBlockList []string `json:"channel_block_list" gorm:"serializer:json"`

	ChannelMultipliers []Multiplier `json:"channel_multipliers" gorm:"serializer:json"`
	RoleMultipliers    []Multiplier `json:"role_multipliers" gorm:"serializer:json"`

	LevelUpNotification LevelUpNotification `json:"level_up_notification" gorm:"embedded;embeddedPrefix:levelup_"`

	Timestamps
}

const DefaultLevelUpTemplate = "{user} reached level {level}!"

// DefaultScopeConfig is the configuration every scope starts with and the
// one served when the store cannot be reached.
func DefaultScopeConfig(scopeID string) ScopeConfig {
	return ScopeConfig{
		ScopeID:            scopeID,
		MinReward:          15,
		MaxReward:          25,
		CooldownSeconds:    60,
		MinContentLength:   5,
		ChannelAllowList:   []string{},
		ChannelBlockList:   []string{},
		ChannelMultipliers: []Multiplier{},
		RoleMultipliers:    []Multiplier{},
		LevelUpNotification: LevelUpNotification{
			Enabled:         true,
			MessageTemplate: DefaultLevelUpTemplate,
		},
	}
}

func (c *ScopeConfig) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// ChannelQualifies applies the allow/block filters. A non-empty allow-list
// wins over the block-list.
func (c *ScopeConfig) ChannelQualifies(channelID string) bool {
	if len(c.ChannelAllowList) > 0 {
		return contains(c.ChannelAllowList, channelID)
	}
	if len(c.ChannelBlockList) > 0 {
		return !contains(c.ChannelBlockList, channelID)
	}
	return true
}

// Multiplier composes the channel factor with every matching role factor.
// Unmatched targets contribute 1.
func (c *ScopeConfig) Multiplier(channelID string, roleIDs []string) float64 {
	m := 1.0
	if f, ok := factorFor(c.ChannelMultipliers, channelID); ok {
		m *= f
	}
	for _, r := range roleIDs {
		if f, ok := factorFor(c.RoleMultipliers, r); ok {
			m *= f
		}
	}
	return m
}

func factorFor(rules []Multiplier, target string) (float64, bool) {
	for _, rule := range rules {
		if rule.TargetID == target {
			return rule.Factor, true
		}
	}
	return 0, false
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
