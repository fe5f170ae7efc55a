package model

import "time"

// AppSetting represents a key-value pair for global application configuration.
type AppSetting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProctoringMode controls how missing secure-browser headers are handled.
type ProctoringMode string

const (
	ProctoringOff     ProctoringMode = "off"
	ProctoringWarn    ProctoringMode = "warn"
	ProctoringEnforce ProctoringMode = "enforce"
)

// Valid reports whether m is a known mode.
func (m ProctoringMode) Valid() bool {
	return m == ProctoringOff || m == ProctoringWarn || m == ProctoringEnforce
}

// Bounds for the per-question time budget.
const (
	MinTimePerQuestionSec = 30
	MaxTimePerQuestionSec = 300
)

// SystemConfig is the effective runtime exam configuration.
type SystemConfig struct {
	TimePerQuestionSec int            `json:"time_per_question_sec"`
	ProctoringMode     ProctoringMode `json:"proctoring_mode"`
}

// UpdateSettingsRequest is the payload for updating the exam configuration.
// Omitted fields keep their current value.
type UpdateSettingsRequest struct {
	TimePerQuestionSec *int    `json:"time_per_question_sec" binding:"omitempty,min=30,max=300"`
	ProctoringMode     *string `json:"proctoring_mode" binding:"omitempty,oneof=off warn enforce"`
}
