package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/cefr-exam-engine/internal/model"
)

// RecordingRepository handles recording asset data access.
type RecordingRepository struct {
	pool *pgxpool.Pool
}

// NewRecordingRepository creates a new RecordingRepository.
func NewRecordingRepository(pool *pgxpool.Pool) *RecordingRepository {
	return &RecordingRepository{pool: pool}
}

// Upsert stores the asset keyed by session so reassembly overwrites rather than duplicates.
func (r *RecordingRepository) Upsert(ctx context.Context, a *model.RecordingAsset) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO recording_assets (session_id, user_id, kind, path, mime, size_bytes, chunks)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (session_id) DO UPDATE
		 SET kind = EXCLUDED.kind, path = EXCLUDED.path, mime = EXCLUDED.mime,
		     size_bytes = EXCLUDED.size_bytes, chunks = EXCLUDED.chunks, updated_at = NOW()
		 RETURNING id, created_at, updated_at`,
		a.SessionID, a.UserID, a.Kind, a.Path, a.Mime, a.SizeBytes, a.Chunks,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
}
