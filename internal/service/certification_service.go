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
)

// CertificationService keeps each user's certification at their highest awarded level.
type CertificationService struct {
	store CertificationStore
	log   zerolog.Logger
	now   func() time.Time
}

// NewCertificationService creates a new CertificationService.
func NewCertificationService(store CertificationStore, log zerolog.Logger) *CertificationService {
	return &CertificationService{
		store: store,
		log:   log.With().Str("component", "certification_service").Logger(),
		now:   time.Now,
	}
}

// RaiseTo issues or upgrades the certification of userID to level.
// A level at or below the stored one leaves the certification untouched.
func (s *CertificationService) RaiseTo(ctx context.Context, userID uuid.UUID, level model.Level) (*model.Certification, error) {
	if !level.Valid() {
		return nil, fmt.Errorf("%w: invalid level %q", ErrValidation, level)
	}

	existing, err := s.store.GetByUser(ctx, userID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get certification: %w", err)
	}
	if existing != nil && existing.HighestLevel.Rank() >= level.Rank() {
		return existing, nil
	}

	cert := &model.Certification{
		UserID:        userID,
		HighestLevel:  level,
		CertificateID: "CEFR-" + uuid.NewString(),
		IssuedAt:      s.now().UTC(),
	}
	written, err := s.store.UpsertHighest(ctx, cert)
	if err != nil {
		return nil, fmt.Errorf("upsert certification: %w", err)
	}
	if !written {
		// A concurrent writer stored an equal or higher level.
		return s.store.GetByUser(ctx, userID)
	}

	s.log.Info().
		Str("user_id", userID.String()).
		Str("level", string(level)).
		Msg("certification raised")
	return cert, nil
}
