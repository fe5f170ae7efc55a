package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/cefr-exam-engine/internal/model"
	"github.com/stemsi/cefr-exam-engine/internal/scoring"
)

// ExamSessionService handles the lifecycle of a timed exam session.
type ExamSessionService struct {
	sessions    SessionStore
	questions   QuestionBank
	users       UserDirectory
	eligibility *EligibilityService
	settings    ConfigProvider
	defaults    model.SystemConfig
	notifier    Notifier
	hooks       HookRunner
	log         zerolog.Logger
	now         func() time.Time
}

// NewExamSessionService creates a new ExamSessionService. notifier and hooks may be nil.
func NewExamSessionService(
	sessions SessionStore,
	questions QuestionBank,
	users UserDirectory,
	settings ConfigProvider,
	defaults model.SystemConfig,
	notifier Notifier,
	hooks HookRunner,
	log zerolog.Logger,
) *ExamSessionService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &ExamSessionService{
		sessions:    sessions,
		questions:   questions,
		users:       users,
		eligibility: NewEligibilityService(users, sessions),
		settings:    settings,
		defaults:    defaults,
		notifier:    notifier,
		hooks:       hooks,
		log:         log.With().Str("component", "exam_session_service").Logger(),
		now:         time.Now,
	}
}

// ─── Start ─────────────────────────────────────────────────────────────

// StartResult is returned to the candidate when a session begins.
type StartResult struct {
	SessionID          uuid.UUID                   `json:"session_id"`
	Step               int                         `json:"step"`
	TimePerQuestionSec int                         `json:"time_per_question_sec"`
	TotalQuestions     int                         `json:"total_questions"`
	DeadlineAt         time.Time                   `json:"deadline_at"`
	Questions          []model.SessionQuestionView `json:"questions"`
}

// Start opens a new session for step after the eligibility gate passes.
// Nothing is persisted when the question bank does not hold exactly two
// active questions per active competency.
func (s *ExamSessionService) Start(ctx context.Context, userID uuid.UUID, step int, client model.ClientInfo) (*StartResult, error) {
	if err := s.eligibility.Check(ctx, userID, step); err != nil {
		return nil, err
	}

	levels, _ := model.LevelsForStep(step)
	questions, err := s.questions.ListActiveByLevels(ctx, levels[:])
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	competencies, err := s.questions.CountActiveCompetencies(ctx)
	if err != nil {
		return nil, fmt.Errorf("count competencies: %w", err)
	}
	expected := competencies * 2
	if expected == 0 || len(questions) != expected {
		return nil, fmt.Errorf("%w: step %d expects %d questions, bank has %d",
			ErrQuestionCountMismatch, step, expected, len(questions))
	}

	if err := shuffle(questions); err != nil {
		return nil, err
	}

	cfg, err := s.settings.SystemConfig(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("using default exam configuration")
		cfg = s.defaults
	}

	now := s.now().UTC()
	total := len(questions)
	sess := &model.ExamSession{
		ID:                 uuid.New(),
		UserID:             userID,
		Step:               step,
		Status:             model.SessionStatusActive,
		TimePerQuestionSec: cfg.TimePerQuestionSec,
		TotalQuestions:     total,
		Questions:          make([]model.SessionQuestion, total),
		Answers:            make([]model.SessionAnswer, total),
		Violations:         []model.Violation{},
		ClientInfo:         client,
		StartAt:            now,
		DeadlineAt:         now.Add(time.Duration(total*cfg.TimePerQuestionSec) * time.Second),
	}
	views := make([]model.SessionQuestionView, total)
	for i, q := range questions {
		sess.Questions[i] = model.SessionQuestion{QuestionID: q.ID, CompetencyID: q.CompetencyID, Level: q.Level, Order: i}
		sess.Answers[i] = model.SessionAnswer{QuestionID: q.ID}
		views[i] = model.SessionQuestionView{
			ID:           q.ID,
			CompetencyID: q.CompetencyID,
			Level:        q.Level,
			Prompt:       q.Prompt,
			Options:      q.Options,
			Order:        i,
		}
	}

	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.log.Info().
		Str("session_id", sess.ID.String()).
		Str("user_id", userID.String()).
		Int("step", step).
		Int("questions", total).
		Msg("session started")

	s.notifier.Notify(sess.ID, model.EventSessionStart, model.SessionStartEvent{
		SessionID:          sess.ID,
		UserID:             userID,
		Step:               step,
		TotalQuestions:     total,
		TimePerQuestionSec: sess.TimePerQuestionSec,
		DeadlineAt:         sess.DeadlineAt,
	})

	return &StartResult{
		SessionID:          sess.ID,
		Step:               step,
		TimePerQuestionSec: sess.TimePerQuestionSec,
		TotalQuestions:     total,
		DeadlineAt:         sess.DeadlineAt,
		Questions:          views,
	}, nil
}

// ─── Answer ────────────────────────────────────────────────────────────

// AnswerInput is the service-level form of model.AnswerRequest.
type AnswerInput struct {
	UserID        uuid.UUID
	SessionID     uuid.UUID
	QuestionID    uuid.UUID
	SelectedIndex int
	ElapsedMs     *int64
}

// AnswerResult acknowledges a saved answer.
type AnswerResult struct {
	Saved bool `json:"saved"`
}

// Answer records or overwrites the answer to one question of an active session.
// An answer arriving after the deadline finalizes the session with reason auto and is rejected.
func (s *ExamSessionService) Answer(ctx context.Context, in AnswerInput) (*AnswerResult, error) {
	sess, err := s.getOwned(ctx, in.SessionID, in.UserID)
	if err != nil {
		return nil, err
	}
	if sess.Status != model.SessionStatusActive {
		return nil, ErrSessionNotActive
	}

	now := s.now().UTC()
	if now.After(sess.DeadlineAt) {
		if _, err := s.finalize(ctx, sess, model.SubmitReasonAuto); err != nil {
			s.log.Error().Err(err).Str("session_id", sess.ID.String()).Msg("failed to expire session on late answer")
		}
		return nil, ErrSessionTimeElapsed
	}

	idx := sess.AnswerIndex(in.QuestionID)
	if idx < 0 {
		return nil, ErrQuestionNotInSession
	}

	q, err := s.questions.GetByID(ctx, in.QuestionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrQuestionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get question: %w", err)
	}
	if in.SelectedIndex < 0 || in.SelectedIndex >= len(q.Options) {
		return nil, ErrOptionOutOfRange
	}
	if in.ElapsedMs != nil && *in.ElapsedMs < 0 {
		return nil, fmt.Errorf("%w: elapsed time must not be negative", ErrValidation)
	}

	selected := in.SelectedIndex
	answer := model.SessionAnswer{
		QuestionID:    in.QuestionID,
		SelectedIndex: &selected,
		AnsweredAt:    &now,
		ElapsedMs:     in.ElapsedMs,
	}
	saved, err := s.sessions.SaveAnswer(ctx, sess.ID, idx, answer)
	if err != nil {
		return nil, fmt.Errorf("save answer: %w", err)
	}
	if !saved {
		return nil, ErrSessionNotActive
	}

	answered := sess.AnsweredCount()
	if sess.Answers[idx].SelectedIndex == nil {
		answered++
	}
	s.notifier.Notify(sess.ID, model.EventSessionAnswer, model.SessionAnswerEvent{
		SessionID:     sess.ID,
		QuestionID:    in.QuestionID,
		AnsweredCount: answered,
	})

	return &AnswerResult{Saved: true}, nil
}

// ─── Violation ─────────────────────────────────────────────────────────

// ViolationResult reports whether the violation was appended.
type ViolationResult struct {
	Saved          bool `json:"saved"`
	ViolationCount int  `json:"violation_count"`
}

// RecordViolation appends a proctoring event to an active session.
// Events for sessions that already ended are acknowledged with saved=false.
func (s *ExamSessionService) RecordViolation(ctx context.Context, in model.ViolationInput) (*ViolationResult, error) {
	if !in.Type.Valid() {
		return nil, ErrInvalidViolationType
	}
	sess, err := s.getOwned(ctx, in.SessionID, in.UserID)
	if err != nil {
		return nil, err
	}
	if sess.Status != model.SessionStatusActive {
		return &ViolationResult{Saved: false, ViolationCount: len(sess.Violations)}, nil
	}

	v := model.Violation{Type: in.Type, OccurredAt: s.now().UTC(), Meta: in.Meta}
	count, saved, err := s.sessions.AppendViolation(ctx, sess.ID, v)
	if err != nil {
		return nil, fmt.Errorf("append violation: %w", err)
	}
	if !saved {
		return &ViolationResult{Saved: false, ViolationCount: len(sess.Violations)}, nil
	}

	s.log.Info().
		Str("session_id", sess.ID.String()).
		Str("type", string(in.Type)).
		Int("count", count).
		Msg("violation recorded")

	s.notifier.Notify(sess.ID, model.EventSessionViolation, model.SessionViolationEvent{
		SessionID:      sess.ID,
		Type:           in.Type,
		ViolationCount: count,
	})

	return &ViolationResult{Saved: true, ViolationCount: count}, nil
}

// ─── Submit ────────────────────────────────────────────────────────────

// SubmitResult is the graded outcome of a session.
type SubmitResult struct {
	SessionID    uuid.UUID           `json:"session_id"`
	Status       model.SessionStatus `json:"status"`
	ScorePct     float64             `json:"score_pct"`
	AwardedLevel model.Level         `json:"awarded_level,omitempty"`
	HighestLevel model.Level         `json:"highest_level,omitempty"`
	ProceedNext  bool                `json:"proceed_next"`
	Already      bool                `json:"already,omitempty"`
}

// SubmitOutcome is handed to post-commit hooks after a session is finalized.
type SubmitOutcome struct {
	SessionID    uuid.UUID
	UserID       uuid.UUID
	Step         int
	Status       model.SessionStatus
	Reason       model.SubmitReason
	ScorePct     float64
	AwardedLevel model.Level
	HighestLevel model.Level
	VideoMime    string
}

// Submit grades and finalizes a session. Submitting an already finalized
// session returns the stored result with Already set and has no side effects.
func (s *ExamSessionService) Submit(ctx context.Context, userID, sessionID uuid.UUID, reason model.SubmitReason) (*SubmitResult, error) {
	sess, err := s.getOwned(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if sess.Status != model.SessionStatusActive {
		return storedResult(sess), nil
	}
	return s.finalize(ctx, sess, reason)
}

func (s *ExamSessionService) finalize(ctx context.Context, sess *model.ExamSession, reason model.SubmitReason) (*SubmitResult, error) {
	now := s.now().UTC()
	status := model.SessionStatusSubmitted
	if now.After(sess.DeadlineAt) {
		status = model.SessionStatusExpired
	}

	ids := make([]uuid.UUID, len(sess.Questions))
	for i, q := range sess.Questions {
		ids[i] = q.QuestionID
	}
	keys, err := s.questions.CorrectIndexes(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load answer key: %w", err)
	}

	correct := 0
	for i := range sess.Answers {
		a := &sess.Answers[i]
		key, ok := keys[a.QuestionID]
		isCorrect := ok && a.SelectedIndex != nil && *a.SelectedIndex == key
		a.IsCorrect = &isCorrect
		if isCorrect {
			correct++
		}
	}
	pct := scoring.ScorePercent(correct, sess.TotalQuestions)
	outcome := scoring.MapScoreToLevel(sess.Step, pct)

	if outcome.LockStep1 {
		if err := s.users.LockFromStep1(ctx, sess.UserID); err != nil {
			return nil, fmt.Errorf("lock step 1: %w", err)
		}
	}

	sess.Status = status
	sess.EndAt = &now
	sess.ScorePct = &pct
	sess.SubmitReason = &reason
	sess.AwardedLevel = nil
	if outcome.Level != "" {
		lv := outcome.Level
		sess.AwardedLevel = &lv
	}

	won, err := s.sessions.Finalize(ctx, sess)
	if err != nil {
		return nil, fmt.Errorf("finalize session: %w", err)
	}
	if !won {
		// A concurrent submit or the sweeper finalized first.
		latest, err := s.sessions.GetByID(ctx, sess.ID)
		if err != nil {
			return nil, fmt.Errorf("reload session: %w", err)
		}
		return storedResult(latest), nil
	}

	highest := s.highestLevel(ctx, sess.UserID, outcome.Level)

	s.log.Info().
		Str("session_id", sess.ID.String()).
		Str("user_id", sess.UserID.String()).
		Str("status", string(status)).
		Str("reason", string(reason)).
		Float64("score_pct", pct).
		Str("awarded_level", string(outcome.Level)).
		Msg("session finalized")

	if s.hooks != nil {
		s.hooks.RunAfterSubmit(ctx, SubmitOutcome{
			SessionID:    sess.ID,
			UserID:       sess.UserID,
			Step:         sess.Step,
			Status:       status,
			Reason:       reason,
			ScorePct:     pct,
			AwardedLevel: outcome.Level,
			HighestLevel: highest,
			VideoMime:    sess.VideoMeta.Mime,
		})
	}

	s.notifier.Notify(sess.ID, model.EventSessionSubmit, model.SessionSubmitEvent{
		SessionID:    sess.ID,
		Status:       status,
		ScorePct:     pct,
		AwardedLevel: outcome.Level,
		Reason:       reason,
	})

	return &SubmitResult{
		SessionID:    sess.ID,
		Status:       status,
		ScorePct:     pct,
		AwardedLevel: outcome.Level,
		HighestLevel: highest,
		ProceedNext:  outcome.ProceedNext,
	}, nil
}

// highestLevel recomputes the user's best level across scored sessions.
// The just-awarded level is always included so a failed read still yields a usable value.
func (s *ExamSessionService) highestLevel(ctx context.Context, userID uuid.UUID, current model.Level) model.Level {
	levels, err := s.sessions.ListAwardedLevels(ctx, userID)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", userID.String()).Msg("failed to list awarded levels")
	}
	return scoring.HighestLevel(append(levels, current)...)
}

func storedResult(sess *model.ExamSession) *SubmitResult {
	res := &SubmitResult{SessionID: sess.ID, Status: sess.Status, Already: true}
	if sess.ScorePct != nil {
		res.ScorePct = *sess.ScorePct
	}
	if sess.AwardedLevel != nil {
		res.AwardedLevel = *sess.AwardedLevel
	}
	if sess.Status.Scored() && sess.ScorePct != nil {
		res.ProceedNext = scoring.MapScoreToLevel(sess.Step, *sess.ScorePct).ProceedNext
	}
	return res
}

// ─── Queries ───────────────────────────────────────────────────────────

// StatusResult is the owner's view of a session's progress.
type StatusResult struct {
	SessionID      uuid.UUID           `json:"session_id"`
	Step           int                 `json:"step"`
	Status         model.SessionStatus `json:"status"`
	TimeLeftSec    int                 `json:"time_left_sec"`
	AnsweredCount  int                 `json:"answered_count"`
	TotalQuestions int                 `json:"total_questions"`
	DeadlineAt     time.Time           `json:"deadline_at"`
	ScorePct       *float64            `json:"score_pct,omitempty"`
	AwardedLevel   *model.Level        `json:"awarded_level,omitempty"`
}

// Status returns progress for a session owned by userID.
func (s *ExamSessionService) Status(ctx context.Context, userID, sessionID uuid.UUID) (*StatusResult, error) {
	sess, err := s.getOwned(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	left := 0
	if sess.Status == model.SessionStatusActive {
		left = sess.TimeLeftSec(s.now())
	}
	return &StatusResult{
		SessionID:      sess.ID,
		Step:           sess.Step,
		Status:         sess.Status,
		TimeLeftSec:    left,
		AnsweredCount:  sess.AnsweredCount(),
		TotalQuestions: sess.TotalQuestions,
		DeadlineAt:     sess.DeadlineAt,
		ScorePct:       sess.ScorePct,
		AwardedLevel:   sess.AwardedLevel,
	}, nil
}

// LatestResult summarizes the most recently finalized session of a user.
type LatestResult struct {
	SessionID    uuid.UUID           `json:"session_id"`
	Step         int                 `json:"step"`
	Status       model.SessionStatus `json:"status"`
	ScorePct     float64             `json:"score_pct"`
	AwardedLevel model.Level         `json:"awarded_level,omitempty"`
	ProceedNext  bool                `json:"proceed_next"`
	EndAt        *time.Time          `json:"end_at,omitempty"`
}

// LatestResult returns nil without error when the user has no finalized session.
func (s *ExamSessionService) LatestResult(ctx context.Context, userID uuid.UUID) (*LatestResult, error) {
	sess, err := s.sessions.LatestFinalized(ctx, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest session: %w", err)
	}
	stored := storedResult(sess)
	return &LatestResult{
		SessionID:    sess.ID,
		Step:         sess.Step,
		Status:       sess.Status,
		ScorePct:     stored.ScorePct,
		AwardedLevel: stored.AwardedLevel,
		ProceedNext:  stored.ProceedNext,
		EndAt:        sess.EndAt,
	}, nil
}

// ExpireOverdue finalizes up to limit overdue sessions listed after the cursor,
// with reason auto. Per-session failures are logged and skipped; the returned
// Next cursor moves past them so the following page reaches later sessions.
func (s *ExamSessionService) ExpireOverdue(ctx context.Context, after *model.SessionRef, limit int) (model.SweepBatch, error) {
	refs, err := s.sessions.ListExpiredActive(ctx, s.now().UTC(), after, limit)
	if err != nil {
		return model.SweepBatch{}, fmt.Errorf("list overdue sessions: %w", err)
	}

	batch := model.SweepBatch{Listed: len(refs)}
	if len(refs) > 0 {
		last := refs[len(refs)-1]
		batch.Next = &last
	}
	for _, ref := range refs {
		if ctx.Err() != nil {
			return batch, ctx.Err()
		}
		res, err := s.Submit(ctx, ref.UserID, ref.ID, model.SubmitReasonAuto)
		if err != nil {
			s.log.Error().Err(err).
				Str("session_id", ref.ID.String()).
				Str("user_id", ref.UserID.String()).
				Msg("auto-submit failed")
			continue
		}
		if !res.Already {
			batch.Finalized++
		}
	}
	return batch, nil
}

func (s *ExamSessionService) getOwned(ctx context.Context, sessionID, userID uuid.UUID) (*model.ExamSession, error) {
	sess, err := s.sessions.GetOwned(ctx, sessionID, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}
