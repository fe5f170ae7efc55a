package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates exam session states.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusSubmitted SessionStatus = "submitted"
	SessionStatusExpired   SessionStatus = "expired"
	SessionStatusAbandoned SessionStatus = "abandoned"
)

// Scored reports whether the session reached a graded terminal state.
func (s SessionStatus) Scored() bool {
	return s == SessionStatusSubmitted || s == SessionStatusExpired
}

// Final reports whether the session can no longer change.
func (s SessionStatus) Final() bool {
	return s != SessionStatusActive
}

// SubmitReason records what triggered finalization.
type SubmitReason string

const (
	SubmitReasonUser SubmitReason = "user"
	SubmitReasonAuto SubmitReason = "auto"
)

// SessionQuestion is one entry of the question list frozen at session start.
type SessionQuestion struct {
	QuestionID   uuid.UUID `json:"question_id"`
	CompetencyID uuid.UUID `json:"competency_id"`
	Level        Level     `json:"level"`
	Order        int       `json:"order"`
}

// SessionAnswer is the answer slot paired with a frozen question.
type SessionAnswer struct {
	QuestionID    uuid.UUID  `json:"question_id"`
	SelectedIndex *int       `json:"selected_index,omitempty"`
	IsCorrect     *bool      `json:"is_correct,omitempty"`
	AnsweredAt    *time.Time `json:"answered_at,omitempty"`
	ElapsedMs     *int64     `json:"elapsed_ms,omitempty"`
}

// ScreenSize is the client viewport reported at session start.
type ScreenSize struct {
	Width  int `json:"width" binding:"required,gt=0"`
	Height int `json:"height" binding:"required,gt=0"`
}

// ClientInfo captures the request context a session was started from.
type ClientInfo struct {
	IP                       string      `json:"ip,omitempty"`
	UserAgent                string      `json:"user_agent,omitempty"`
	Screen                   *ScreenSize `json:"screen,omitempty"`
	ProctoringHeadersPresent bool        `json:"proctoring_headers_present"`
}

// VideoMeta tracks the recording uploaded for a session.
type VideoMeta struct {
	Dir           string     `json:"dir,omitempty"`
	Mime          string     `json:"mime,omitempty"`
	Chunks        int        `json:"chunks,omitempty"`
	AssembledPath string     `json:"assembled_path,omitempty"`
	SizeBytes     int64      `json:"size_bytes,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// ExamSession represents one timed attempt at one step.
type ExamSession struct {
	ID                 uuid.UUID         `json:"id"`
	UserID             uuid.UUID         `json:"user_id"`
	Step               int               `json:"step"`
	Status             SessionStatus     `json:"status"`
	TimePerQuestionSec int               `json:"time_per_question_sec"`
	TotalQuestions     int               `json:"total_questions"`
	Questions          []SessionQuestion `json:"questions"`
	Answers            []SessionAnswer   `json:"answers"`
	Violations         []Violation       `json:"violations"`
	ClientInfo         ClientInfo        `json:"client_info"`
	VideoMeta          VideoMeta         `json:"video_meta"`
	StartAt            time.Time         `json:"start_at"`
	EndAt              *time.Time        `json:"end_at,omitempty"`
	DeadlineAt         time.Time         `json:"deadline_at"`
	ScorePct           *float64          `json:"score_pct,omitempty"`
	AwardedLevel       *Level            `json:"awarded_level,omitempty"`
	SubmitReason       *SubmitReason     `json:"submit_reason,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// AnswerIndex returns the slot index for questionID, or -1 if it is not part of the session.
func (s *ExamSession) AnswerIndex(questionID uuid.UUID) int {
	for i, a := range s.Answers {
		if a.QuestionID == questionID {
			return i
		}
	}
	return -1
}

// AnsweredCount counts slots with a selected option.
func (s *ExamSession) AnsweredCount() int {
	n := 0
	for _, a := range s.Answers {
		if a.SelectedIndex != nil {
			n++
		}
	}
	return n
}

// TimeLeftSec returns whole seconds until the deadline, floored and never negative.
func (s *ExamSession) TimeLeftSec(now time.Time) int {
	return SecondsUntil(s.DeadlineAt, now)
}

// SecondsUntil returns the floored number of seconds from now to deadline, clamped at zero.
func SecondsUntil(deadline, now time.Time) int {
	left := deadline.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(left / time.Second)
}

// SessionRef identifies a session and its owner. DeadlineAt and ID together
// form the sweep cursor.
type SessionRef struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	DeadlineAt time.Time
}

// SweepBatch reports one page of an overdue sweep. Next is the last listed
// ref and is nil when nothing was listed.
type SweepBatch struct {
	Listed    int
	Finalized int
	Next      *SessionRef
}

// TimerState is the minimal projection the realtime ticker needs.
type TimerState struct {
	SessionID  uuid.UUID
	Step       int
	Status     SessionStatus
	DeadlineAt time.Time
}

// ─── Requests ──────────────────────────────────────────────────────────

// StartSessionQuery carries the step as a query parameter.
type StartSessionQuery struct {
	Step int `form:"step" binding:"required,min=1,max=3"`
}

// StartSessionRequest is the optional body sent when starting a session.
type StartSessionRequest struct {
	Screen *ScreenSize `json:"screen" binding:"omitempty"`
}

// AnswerRequest records one answer.
type AnswerRequest struct {
	SessionID     string `json:"session_id" binding:"required,uuid"`
	QuestionID    string `json:"question_id" binding:"required,uuid"`
	SelectedIndex *int   `json:"selected_index" binding:"required,min=0"`
	ElapsedMs     *int64 `json:"elapsed_ms" binding:"omitempty,min=0"`
}

// SubmitRequest finalizes a session on behalf of its owner.
type SubmitRequest struct {
	SessionID string `json:"session_id" binding:"required,uuid"`
}
