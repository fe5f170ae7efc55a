package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/cefr-exam-engine/internal/model"
)

// QuestionRepository handles question bank data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

const questionColumns = `id, competency_id, level, prompt, options, correct_index, is_active, created_at`

func scanQuestion(row pgx.Row) (*model.Question, error) {
	q := &model.Question{}
	var options []byte
	if err := row.Scan(&q.ID, &q.CompetencyID, &q.Level, &q.Prompt, &options, &q.CorrectIndex, &q.IsActive, &q.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(options, &q.Options); err != nil {
		return nil, fmt.Errorf("decode options of question %s: %w", q.ID, err)
	}
	return q, nil
}

// ListActiveByLevels returns active questions of active competencies at the given levels.
func (r *QuestionRepository) ListActiveByLevels(ctx context.Context, levels []model.Level) ([]model.Question, error) {
	names := make([]string, len(levels))
	for i, lv := range levels {
		names[i] = string(lv)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT q.id, q.competency_id, q.level, q.prompt, q.options, q.correct_index, q.is_active, q.created_at
		 FROM questions q
		 JOIN competencies c ON c.id = q.competency_id
		 WHERE q.is_active AND c.is_active AND q.level = ANY($1::text[])`, names)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, *q)
	}
	return questions, rows.Err()
}

// GetByID retrieves one question including its answer key.
func (r *QuestionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Question, error) {
	return scanQuestion(r.pool.QueryRow(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE id = $1`, id))
}

// CorrectIndexes loads the answer key for the given question ids in one round trip.
func (r *QuestionRepository) CorrectIndexes(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, correct_index FROM questions WHERE id = ANY($1::uuid[])`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make(map[uuid.UUID]int, len(ids))
	for rows.Next() {
		var id uuid.UUID
		var idx int
		if err := rows.Scan(&id, &idx); err != nil {
			return nil, err
		}
		keys[id] = idx
	}
	return keys, rows.Err()
}

// CountActiveCompetencies returns the number of active competencies.
func (r *QuestionRepository) CountActiveCompetencies(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM competencies WHERE is_active`).Scan(&n)
	return n, err
}

// UpsertCompetency creates or renames a competency by code.
func (r *QuestionRepository) UpsertCompetency(ctx context.Context, code, name string) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx,
		`INSERT INTO competencies (code, name) VALUES ($1, $2)
		 ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name, is_active = TRUE
		 RETURNING id`, code, name,
	).Scan(&id)
	return id, err
}

// UpsertQuestion replaces the active question of a competency at a level.
func (r *QuestionRepository) UpsertQuestion(ctx context.Context, q *model.Question) error {
	options, err := json.Marshal(q.Options)
	if err != nil {
		return fmt.Errorf("encode options: %w", err)
	}
	return r.pool.QueryRow(ctx,
		`INSERT INTO questions (competency_id, level, prompt, options, correct_index)
		 VALUES ($1, $2, $3, $4::jsonb, $5)
		 ON CONFLICT (competency_id, level) WHERE is_active DO UPDATE
		 SET prompt = EXCLUDED.prompt, options = EXCLUDED.options, correct_index = EXCLUDED.correct_index
		 RETURNING id, is_active, created_at`,
		q.CompetencyID, q.Level, q.Prompt, options, q.CorrectIndex,
	).Scan(&q.ID, &q.IsActive, &q.CreatedAt)
}
