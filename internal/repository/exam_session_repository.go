package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/cefr-exam-engine/internal/model"
)

// ExamSessionRepository handles exam session data access.
// Every transition out of 'active' is a conditional update so concurrent
// finalizers cannot both win.
type ExamSessionRepository struct {
	pool *pgxpool.Pool
}

// NewExamSessionRepository creates a new ExamSessionRepository.
func NewExamSessionRepository(pool *pgxpool.Pool) *ExamSessionRepository {
	return &ExamSessionRepository{pool: pool}
}

const sessionColumns = `id, user_id, step, status, time_per_question_sec, total_questions,
	questions, answers, violations, client_info, video_meta,
	start_at, end_at, deadline_at, score_pct, awarded_level, submit_reason, created_at, updated_at`

func scanSession(row pgx.Row) (*model.ExamSession, error) {
	s := &model.ExamSession{}
	var questions, answers, violations, clientInfo, videoMeta []byte
	var awarded, reason *string

	err := row.Scan(&s.ID, &s.UserID, &s.Step, &s.Status, &s.TimePerQuestionSec, &s.TotalQuestions,
		&questions, &answers, &violations, &clientInfo, &videoMeta,
		&s.StartAt, &s.EndAt, &s.DeadlineAt, &s.ScorePct, &awarded, &reason, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}

	for _, f := range []struct {
		name string
		raw  []byte
		dst  any
	}{
		{"questions", questions, &s.Questions},
		{"answers", answers, &s.Answers},
		{"violations", violations, &s.Violations},
		{"client_info", clientInfo, &s.ClientInfo},
		{"video_meta", videoMeta, &s.VideoMeta},
	} {
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return nil, fmt.Errorf("decode %s of session %s: %w", f.name, s.ID, err)
		}
	}

	if awarded != nil {
		lv := model.Level(*awarded)
		s.AwardedLevel = &lv
	}
	if reason != nil {
		sr := model.SubmitReason(*reason)
		s.SubmitReason = &sr
	}
	return s, nil
}

func marshalJSON(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(b) == "null" {
		// Nil slices still need to satisfy the NOT NULL array columns.
		return []byte("[]"), nil
	}
	return b, nil
}

// Create inserts a new active session.
func (r *ExamSessionRepository) Create(ctx context.Context, s *model.ExamSession) error {
	questions, err := marshalJSON(s.Questions)
	if err != nil {
		return fmt.Errorf("encode questions: %w", err)
	}
	answers, err := marshalJSON(s.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	clientInfo, err := json.Marshal(s.ClientInfo)
	if err != nil {
		return fmt.Errorf("encode client info: %w", err)
	}

	return r.pool.QueryRow(ctx,
		`INSERT INTO exam_sessions (id, user_id, step, status, time_per_question_sec, total_questions,
		                            questions, answers, client_info, start_at, deadline_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8::jsonb, $9::jsonb, $10, $11)
		 RETURNING created_at, updated_at`,
		s.ID, s.UserID, s.Step, s.Status, s.TimePerQuestionSec, s.TotalQuestions,
		questions, answers, clientInfo, s.StartAt, s.DeadlineAt,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
}

// GetByID retrieves a session regardless of owner.
func (r *ExamSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions WHERE id = $1`, id))
}

// GetOwned retrieves a session only if it belongs to userID.
func (r *ExamSessionRepository) GetOwned(ctx context.Context, id, userID uuid.UUID) (*model.ExamSession, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions WHERE id = $1 AND user_id = $2`, id, userID))
}

// SaveAnswer overwrites one answer slot in place. Returns false if the session is no longer active.
func (r *ExamSessionRepository) SaveAnswer(ctx context.Context, id uuid.UUID, index int, answer model.SessionAnswer) (bool, error) {
	payload, err := json.Marshal(answer)
	if err != nil {
		return false, fmt.Errorf("encode answer: %w", err)
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_sessions
		 SET answers = jsonb_set(answers, $2::text[], $3::jsonb, false), updated_at = NOW()
		 WHERE id = $1 AND status = 'active'`,
		id, []string{strconv.Itoa(index)}, payload)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// AppendViolation appends to the violation log of an active session and returns the new count.
// saved is false when the session is not active.
func (r *ExamSessionRepository) AppendViolation(ctx context.Context, id uuid.UUID, v model.Violation) (count int, saved bool, err error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return 0, false, fmt.Errorf("encode violation: %w", err)
	}
	err = r.pool.QueryRow(ctx,
		`UPDATE exam_sessions
		 SET violations = violations || jsonb_build_array($2::jsonb), updated_at = NOW()
		 WHERE id = $1 AND status = 'active'
		 RETURNING jsonb_array_length(violations)`,
		id, payload,
	).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return count, true, nil
}

// Finalize writes the terminal state of s only if the row is still active.
// Returns false when another finalizer already won.
func (r *ExamSessionRepository) Finalize(ctx context.Context, s *model.ExamSession) (bool, error) {
	answers, err := marshalJSON(s.Answers)
	if err != nil {
		return false, fmt.Errorf("encode answers: %w", err)
	}
	var awarded *string
	if s.AwardedLevel != nil {
		v := string(*s.AwardedLevel)
		awarded = &v
	}
	var reason *string
	if s.SubmitReason != nil {
		v := string(*s.SubmitReason)
		reason = &v
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_sessions
		 SET status = $2, end_at = $3, answers = $4::jsonb, score_pct = $5,
		     awarded_level = $6, submit_reason = $7, updated_at = NOW()
		 WHERE id = $1 AND status = 'active'`,
		s.ID, s.Status, s.EndAt, answers, s.ScorePct, awarded, reason)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// RecordChunk merges chunk bookkeeping into video_meta. The chunk count only grows.
func (r *ExamSessionRepository) RecordChunk(ctx context.Context, id uuid.UUID, dir, mime string, chunks int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exam_sessions
		 SET video_meta = video_meta || jsonb_strip_nulls(jsonb_build_object(
		         'dir', $2::text,
		         'mime', NULLIF($3::text, ''),
		         'chunks', GREATEST(COALESCE((video_meta->>'chunks')::int, 0), $4::int))),
		     updated_at = NOW()
		 WHERE id = $1`,
		id, dir, mime, chunks)
	return err
}

// SetAssembledVideo records the assembled recording in video_meta.
func (r *ExamSessionRepository) SetAssembledVideo(ctx context.Context, id uuid.UUID, path string, size int64, chunks int, completedAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exam_sessions
		 SET video_meta = video_meta || jsonb_build_object(
		         'assembled_path', $2::text,
		         'size_bytes', $3::bigint,
		         'chunks', GREATEST(COALESCE((video_meta->>'chunks')::int, 0), $4::int),
		         'completed_at', $5::timestamptz),
		     updated_at = NOW()
		 WHERE id = $1`,
		id, path, size, chunks, completedAt.UTC())
	return err
}

// LatestScoredByStep returns the most recent submitted or expired session of a user for a step.
func (r *ExamSessionRepository) LatestScoredByStep(ctx context.Context, userID uuid.UUID, step int) (*model.ExamSession, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions
		 WHERE user_id = $1 AND step = $2 AND status IN ('submitted', 'expired')
		 ORDER BY created_at DESC LIMIT 1`, userID, step))
}

// LatestFinalized returns the most recently ended session of a user in any terminal state.
func (r *ExamSessionRepository) LatestFinalized(ctx context.Context, userID uuid.UUID) (*model.ExamSession, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions
		 WHERE user_id = $1 AND status IN ('submitted', 'expired', 'abandoned')
		 ORDER BY end_at DESC NULLS LAST, updated_at DESC LIMIT 1`, userID))
}

// ListAwardedLevels returns the awarded level of every scored session of a user.
func (r *ExamSessionRepository) ListAwardedLevels(ctx context.Context, userID uuid.UUID) ([]model.Level, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT awarded_level FROM exam_sessions
		 WHERE user_id = $1 AND status IN ('submitted', 'expired') AND awarded_level IS NOT NULL`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var levels []model.Level
	for rows.Next() {
		var lv string
		if err := rows.Scan(&lv); err != nil {
			return nil, err
		}
		levels = append(levels, model.Level(lv))
	}
	return levels, rows.Err()
}

// ListExpiredActive returns active sessions whose deadline is before now,
// ordered by (deadline_at, id) and strictly after the given cursor. A nil
// cursor starts from the oldest.
func (r *ExamSessionRepository) ListExpiredActive(ctx context.Context, now time.Time, after *model.SessionRef, limit int) ([]model.SessionRef, error) {
	var (
		afterAt time.Time
		afterID uuid.UUID
	)
	if after != nil {
		afterAt, afterID = after.DeadlineAt, after.ID
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, deadline_at FROM exam_sessions
		 WHERE status = 'active' AND deadline_at < $1
		   AND (deadline_at, id) > ($2, $3)
		 ORDER BY deadline_at ASC, id ASC LIMIT $4`, now, afterAt, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []model.SessionRef
	for rows.Next() {
		var ref model.SessionRef
		if err := rows.Scan(&ref.ID, &ref.UserID, &ref.DeadlineAt); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}
