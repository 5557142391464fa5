package models

// Job is a static catalog entry; its reward range drives work-shift payouts.
type Job struct {
	ID        string `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	MinReward int64  `json:"min_reward" yaml:"min_reward"`
	MaxReward int64  `json:"max_reward" yaml:"max_reward"`
}
