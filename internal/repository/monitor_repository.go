package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/cefr-exam-engine/internal/model"
)

// MonitorRepository provides the narrow session projections the realtime hub polls.
type MonitorRepository struct {
	pool *pgxpool.Pool
}

// NewMonitorRepository creates a new MonitorRepository.
func NewMonitorRepository(pool *pgxpool.Pool) *MonitorRepository {
	return &MonitorRepository{pool: pool}
}

// GetSessionOwner returns the owner and timer state of one session.
func (r *MonitorRepository) GetSessionOwner(ctx context.Context, id uuid.UUID) (uuid.UUID, *model.TimerState, error) {
	var owner uuid.UUID
	st := &model.TimerState{SessionID: id}
	err := r.pool.QueryRow(ctx,
		`SELECT user_id, step, status, deadline_at FROM exam_sessions WHERE id = $1`, id,
	).Scan(&owner, &st.Step, &st.Status, &st.DeadlineAt)
	if err != nil {
		return uuid.Nil, nil, err
	}
	return owner, st, nil
}

// ListTimerStates returns timer state for every listed session in one query.
func (r *MonitorRepository) ListTimerStates(ctx context.Context, ids []uuid.UUID) ([]model.TimerState, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, step, status, deadline_at FROM exam_sessions WHERE id = ANY($1::uuid[])`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var states []model.TimerState
	for rows.Next() {
		var st model.TimerState
		if err := rows.Scan(&st.SessionID, &st.Step, &st.Status, &st.DeadlineAt); err != nil {
			return nil, err
		}
		states = append(states, st)
	}
	return states, rows.Err()
}
