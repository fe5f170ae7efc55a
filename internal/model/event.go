package model

import (
	"time"

	"github.com/google/uuid"
)

// EventName identifies a realtime event pushed to a session room.
type EventName string

const (
	EventSessionStart     EventName = "session:start"
	EventSessionAnswer    EventName = "session:answer"
	EventSessionViolation EventName = "session:violation"
	EventSessionSubmit    EventName = "session:submit"
	EventSessionTimer     EventName = "session:timer"
)

// SessionStartEvent is broadcast when a session is created.
type SessionStartEvent struct {
	SessionID          uuid.UUID `json:"session_id"`
	UserID             uuid.UUID `json:"user_id"`
	Step               int       `json:"step"`
	TotalQuestions     int       `json:"total_questions"`
	TimePerQuestionSec int       `json:"time_per_question_sec"`
	DeadlineAt         time.Time `json:"deadline_at"`
}

// SessionAnswerEvent is broadcast when an answer is saved.
type SessionAnswerEvent struct {
	SessionID     uuid.UUID `json:"session_id"`
	QuestionID    uuid.UUID `json:"question_id"`
	AnsweredCount int       `json:"answered_count"`
}

// SessionViolationEvent is broadcast when a violation is recorded.
type SessionViolationEvent struct {
	SessionID      uuid.UUID     `json:"session_id"`
	Type           ViolationType `json:"type"`
	ViolationCount int           `json:"violation_count"`
}

// SessionSubmitEvent is broadcast when a session is finalized.
type SessionSubmitEvent struct {
	SessionID    uuid.UUID     `json:"session_id"`
	Status       SessionStatus `json:"status"`
	ScorePct     float64       `json:"score_pct"`
	AwardedLevel Level         `json:"awarded_level,omitempty"`
	Reason       SubmitReason  `json:"reason"`
}

// SessionTimerEvent is the periodic countdown snapshot.
type SessionTimerEvent struct {
	SessionID   uuid.UUID     `json:"session_id"`
	Step        int           `json:"step"`
	TimeLeftSec int           `json:"time_left_sec"`
	Status      SessionStatus `json:"status"`
}
