package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/cefr-exam-engine/internal/model"
)

// Storage ports. The pgx repositories implement them; tests use in-memory fakes.

type SessionStore interface {
	Create(ctx context.Context, s *model.ExamSession) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error)
	GetOwned(ctx context.Context, id, userID uuid.UUID) (*model.ExamSession, error)
	SaveAnswer(ctx context.Context, id uuid.UUID, index int, answer model.SessionAnswer) (bool, error)
	AppendViolation(ctx context.Context, id uuid.UUID, v model.Violation) (int, bool, error)
	Finalize(ctx context.Context, s *model.ExamSession) (bool, error)
	LatestScoredByStep(ctx context.Context, userID uuid.UUID, step int) (*model.ExamSession, error)
	LatestFinalized(ctx context.Context, userID uuid.UUID) (*model.ExamSession, error)
	ListAwardedLevels(ctx context.Context, userID uuid.UUID) ([]model.Level, error)
	ListExpiredActive(ctx context.Context, now time.Time, after *model.SessionRef, limit int) ([]model.SessionRef, error)
}

type VideoSessionStore interface {
	GetOwned(ctx context.Context, id, userID uuid.UUID) (*model.ExamSession, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error)
	RecordChunk(ctx context.Context, id uuid.UUID, dir, mime string, chunks int) error
	SetAssembledVideo(ctx context.Context, id uuid.UUID, path string, size int64, chunks int, completedAt time.Time) error
}

type QuestionBank interface {
	ListActiveByLevels(ctx context.Context, levels []model.Level) ([]model.Question, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.Question, error)
	CorrectIndexes(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]int, error)
	CountActiveCompetencies(ctx context.Context) (int, error)
}

type UserDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	LockFromStep1(ctx context.Context, id uuid.UUID) error
}

type RecordingStore interface {
	Upsert(ctx context.Context, a *model.RecordingAsset) error
}

type CertificationStore interface {
	GetByUser(ctx context.Context, userID uuid.UUID) (*model.Certification, error)
	UpsertHighest(ctx context.Context, c *model.Certification) (bool, error)
}

type SettingStore interface {
	GetAll(ctx context.Context) ([]model.AppSetting, error)
	UpsertMany(ctx context.Context, values map[string]string) error
}

// ConfigProvider yields the effective exam configuration.
type ConfigProvider interface {
	SystemConfig(ctx context.Context) (model.SystemConfig, error)
}

// Notifier publishes realtime events to a session room. Implementations must not block.
type Notifier interface {
	Notify(sessionID uuid.UUID, event model.EventName, data any)
}

// HookRunner executes the side effects that follow a successful finalization.
type HookRunner interface {
	RunAfterSubmit(ctx context.Context, out SubmitOutcome)
}

type nopNotifier struct{}

func (nopNotifier) Notify(uuid.UUID, model.EventName, any) {}
