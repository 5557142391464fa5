package models

import "time"

// LevelUpEvent is handed to the notifier after an award crossed at least one
// level threshold. Rendering and delivery are the notifier's business.
type LevelUpEvent struct {
	ScopeID         string    `json:"scope_id"`
	UserID          string    `json:"user_id"`
	ChannelID       string    `json:"channel_id"`
	NewLevel        int       `json:"new_level"`
	LevelsGained    int       `json:"levels_gained"`
	TargetChannel   string    `json:"target_channel,omitempty"`
	MessageTemplate string    `json:"message_template,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}
