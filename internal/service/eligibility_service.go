package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stemsi/cefr-exam-engine/internal/model"
)

// PassThresholdPct is the score a previous step needs before the next one opens.
const PassThresholdPct = 75

// EligibilityService decides whether a user may start a step.
type EligibilityService struct {
	users    UserDirectory
	sessions SessionStore
}

// NewEligibilityService creates a new EligibilityService.
func NewEligibilityService(users UserDirectory, sessions SessionStore) *EligibilityService {
	return &EligibilityService{users: users, sessions: sessions}
}

// Check returns nil when userID may start step.
func (s *EligibilityService) Check(ctx context.Context, userID uuid.UUID, step int) error {
	if !model.ValidStep(step) {
		return ErrInvalidStep
	}

	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}

	if step == model.StepFirst {
		if user.IsLockedFromStep1 {
			return ErrLockedFromStep1
		}
		return nil
	}

	prev, err := s.sessions.LatestScoredByStep(ctx, userID, step-1)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotEligible
	}
	if err != nil {
		return fmt.Errorf("get previous step session: %w", err)
	}
	if prev.ScorePct == nil || *prev.ScorePct < PassThresholdPct {
		return ErrNotEligible
	}
	return nil
}
