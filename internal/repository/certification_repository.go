package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/cefr-exam-engine/internal/model"
)

// CertificationRepository handles certification data access.
type CertificationRepository struct {
	pool *pgxpool.Pool
}

// NewCertificationRepository creates a new CertificationRepository.
func NewCertificationRepository(pool *pgxpool.Pool) *CertificationRepository {
	return &CertificationRepository{pool: pool}
}

// GetByUser retrieves the certification of a user.
func (r *CertificationRepository) GetByUser(ctx context.Context, userID uuid.UUID) (*model.Certification, error) {
	c := &model.Certification{}
	err := r.pool.QueryRow(ctx,
		`SELECT user_id, highest_level, certificate_id, issued_at, updated_at
		 FROM certifications WHERE user_id = $1`, userID,
	).Scan(&c.UserID, &c.HighestLevel, &c.CertificateID, &c.IssuedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// UpsertHighest inserts c, or replaces the stored row only when c carries a strictly higher level.
// Returns true when c was written.
func (r *CertificationRepository) UpsertHighest(ctx context.Context, c *model.Certification) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO certifications (user_id, highest_level, certificate_id, issued_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id) DO UPDATE
		 SET highest_level = EXCLUDED.highest_level, certificate_id = EXCLUDED.certificate_id,
		     issued_at = EXCLUDED.issued_at, updated_at = NOW()
		 WHERE array_position(ARRAY['A1','A2','B1','B2','C1','C2'], EXCLUDED.highest_level::text)
		     > array_position(ARRAY['A1','A2','B1','B2','C1','C2'], certifications.highest_level::text)`,
		c.UserID, c.HighestLevel, c.CertificateID, c.IssuedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
