package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/cefr-exam-engine/internal/model"
)

// clone deep-copies through JSON so callers never share slices with the store.
func clone[T any](v T) T {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		panic(err)
	}
	return out
}

type fakeSessions struct {
	mu       sync.Mutex
	rows     map[uuid.UUID]*model.ExamSession
	order    []uuid.UUID
	failList error
	// failOwned makes GetOwned fail for specific sessions.
	failOwned map[uuid.UUID]error
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{rows: make(map[uuid.UUID]*model.ExamSession)}
}

func (f *fakeSessions) put(s *model.ExamSession) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[s.ID]; !ok {
		f.order = append(f.order, s.ID)
	}
	c := clone(*s)
	f.rows[s.ID] = &c
}

func (f *fakeSessions) get(id uuid.UUID) *model.ExamSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.rows[id]
	if !ok {
		return nil
	}
	c := clone(*s)
	return &c
}

func (f *fakeSessions) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

func (f *fakeSessions) Create(_ context.Context, s *model.ExamSession) error {
	s.CreatedAt = time.Now()
	s.UpdatedAt = s.CreatedAt
	f.put(s)
	return nil
}

func (f *fakeSessions) GetByID(_ context.Context, id uuid.UUID) (*model.ExamSession, error) {
	if s := f.get(id); s != nil {
		return s, nil
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeSessions) GetOwned(_ context.Context, id, userID uuid.UUID) (*model.ExamSession, error) {
	if err := f.failOwned[id]; err != nil {
		return nil, err
	}
	if s := f.get(id); s != nil && s.UserID == userID {
		return s, nil
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeSessions) SaveAnswer(_ context.Context, id uuid.UUID, index int, answer model.SessionAnswer) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.rows[id]
	if !ok || s.Status != model.SessionStatusActive {
		return false, nil
	}
	s.Answers[index] = clone(answer)
	return true, nil
}

func (f *fakeSessions) AppendViolation(_ context.Context, id uuid.UUID, v model.Violation) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.rows[id]
	if !ok || s.Status != model.SessionStatusActive {
		return 0, false, nil
	}
	s.Violations = append(s.Violations, v)
	return len(s.Violations), true, nil
}

func (f *fakeSessions) Finalize(_ context.Context, s *model.ExamSession) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.rows[s.ID]
	if !ok || cur.Status != model.SessionStatusActive {
		return false, nil
	}
	c := clone(*s)
	f.rows[s.ID] = &c
	return true, nil
}

func (f *fakeSessions) scored(userID uuid.UUID) []*model.ExamSession {
	var out []*model.ExamSession
	for _, id := range f.order {
		s := f.rows[id]
		if s.UserID == userID && s.Status.Scored() {
			out = append(out, s)
		}
	}
	return out
}

func (f *fakeSessions) LatestScoredByStep(_ context.Context, userID uuid.UUID, step int) (*model.ExamSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *model.ExamSession
	for _, s := range f.scored(userID) {
		if s.Step == step {
			latest = s
		}
	}
	if latest == nil {
		return nil, pgx.ErrNoRows
	}
	c := clone(*latest)
	return &c, nil
}

func (f *fakeSessions) LatestFinalized(_ context.Context, userID uuid.UUID) (*model.ExamSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *model.ExamSession
	for _, id := range f.order {
		s := f.rows[id]
		if s.UserID == userID && s.Status.Final() {
			latest = s
		}
	}
	if latest == nil {
		return nil, pgx.ErrNoRows
	}
	c := clone(*latest)
	return &c, nil
}

func (f *fakeSessions) ListAwardedLevels(_ context.Context, userID uuid.UUID) ([]model.Level, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var levels []model.Level
	for _, s := range f.scored(userID) {
		if s.AwardedLevel != nil {
			levels = append(levels, *s.AwardedLevel)
		}
	}
	return levels, nil
}

func (f *fakeSessions) ListExpiredActive(_ context.Context, now time.Time, after *model.SessionRef, limit int) ([]model.SessionRef, error) {
	if f.failList != nil {
		return nil, f.failList
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var refs []model.SessionRef
	for _, id := range f.order {
		s := f.rows[id]
		if s.Status == model.SessionStatusActive && s.DeadlineAt.Before(now) {
			refs = append(refs, model.SessionRef{ID: s.ID, UserID: s.UserID, DeadlineAt: s.DeadlineAt})
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refBefore(refs[i], refs[j]) })
	if after != nil {
		i := sort.Search(len(refs), func(i int) bool { return refBefore(*after, refs[i]) })
		refs = refs[i:]
	}
	if len(refs) > limit {
		refs = refs[:limit]
	}
	return refs, nil
}

// refBefore orders refs by (deadline, id) the way Postgres compares the row tuple.
func refBefore(a, b model.SessionRef) bool {
	if !a.DeadlineAt.Equal(b.DeadlineAt) {
		return a.DeadlineAt.Before(b.DeadlineAt)
	}
	return bytes.Compare(a.ID[:], b.ID[:]) < 0
}

func (f *fakeSessions) RecordChunk(_ context.Context, id uuid.UUID, dir, mime string, chunks int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.rows[id]
	if !ok {
		return pgx.ErrNoRows
	}
	s.VideoMeta.Dir = dir
	if mime != "" {
		s.VideoMeta.Mime = mime
	}
	if chunks > s.VideoMeta.Chunks {
		s.VideoMeta.Chunks = chunks
	}
	return nil
}

func (f *fakeSessions) SetAssembledVideo(_ context.Context, id uuid.UUID, path string, size int64, chunks int, completedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.rows[id]
	if !ok {
		return pgx.ErrNoRows
	}
	s.VideoMeta.AssembledPath = path
	s.VideoMeta.SizeBytes = size
	if chunks > s.VideoMeta.Chunks {
		s.VideoMeta.Chunks = chunks
	}
	s.VideoMeta.CompletedAt = &completedAt
	return nil
}

type fakeBank struct {
	questions    map[uuid.UUID]model.Question
	competencies int
}

// newFakeBank builds a bank with one question per (competency, level) for every level.
func newFakeBank(competencies, options int) *fakeBank {
	b := &fakeBank{questions: make(map[uuid.UUID]model.Question), competencies: competencies}
	for c := 0; c < competencies; c++ {
		cid := uuid.New()
		for _, lv := range model.Levels {
			opts := make([]string, options)
			for i := range opts {
				opts[i] = string(rune('a' + i))
			}
			q := model.Question{ID: uuid.New(), CompetencyID: cid, Level: lv, Prompt: "prompt", Options: opts, CorrectIndex: 1, IsActive: true}
			b.questions[q.ID] = q
		}
	}
	return b
}

func (b *fakeBank) ListActiveByLevels(_ context.Context, levels []model.Level) ([]model.Question, error) {
	var out []model.Question
	for _, q := range b.questions {
		for _, lv := range levels {
			if q.IsActive && q.Level == lv {
				out = append(out, q)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (b *fakeBank) GetByID(_ context.Context, id uuid.UUID) (*model.Question, error) {
	q, ok := b.questions[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &q, nil
}

func (b *fakeBank) CorrectIndexes(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]int, error) {
	keys := make(map[uuid.UUID]int, len(ids))
	for _, id := range ids {
		if q, ok := b.questions[id]; ok {
			keys[id] = q.CorrectIndex
		}
	}
	return keys, nil
}

func (b *fakeBank) CountActiveCompetencies(context.Context) (int, error) {
	return b.competencies, nil
}

type fakeUsers struct {
	mu    sync.Mutex
	users map[uuid.UUID]*model.User
}

func newFakeUsers(users ...*model.User) *fakeUsers {
	f := &fakeUsers{users: make(map[uuid.UUID]*model.User)}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	c := *u
	return &c, nil
}

func (f *fakeUsers) LockFromStep1(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		u.IsLockedFromStep1 = true
	}
	return nil
}

type fakeConfig struct {
	cfg model.SystemConfig
	err error
}

func (f fakeConfig) SystemConfig(context.Context) (model.SystemConfig, error) {
	return f.cfg, f.err
}

type sentEvent struct {
	sessionID uuid.UUID
	event     model.EventName
	data      any
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []sentEvent
}

func (n *recordingNotifier) Notify(sessionID uuid.UUID, event model.EventName, data any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, sentEvent{sessionID, event, data})
}

func (n *recordingNotifier) names() []model.EventName {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]model.EventName, len(n.events))
	for i, e := range n.events {
		out[i] = e.event
	}
	return out
}

type recordingHooks struct {
	mu   sync.Mutex
	runs []SubmitOutcome
}

func (h *recordingHooks) RunAfterSubmit(_ context.Context, out SubmitOutcome) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs = append(h.runs, out)
}

func (h *recordingHooks) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.runs)
}

type fakeRecordings struct {
	mu     sync.Mutex
	assets map[uuid.UUID]model.RecordingAsset
}

func newFakeRecordings() *fakeRecordings {
	return &fakeRecordings{assets: make(map[uuid.UUID]model.RecordingAsset)}
}

func (f *fakeRecordings) Upsert(_ context.Context, a *model.RecordingAsset) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assets[a.SessionID] = *a
	return nil
}

type fakeCerts struct {
	mu    sync.Mutex
	certs map[uuid.UUID]model.Certification
	err   error
}

func newFakeCerts() *fakeCerts {
	return &fakeCerts{certs: make(map[uuid.UUID]model.Certification)}
}

func (f *fakeCerts) GetByUser(_ context.Context, userID uuid.UUID) (*model.Certification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.certs[userID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &c, nil
}

func (f *fakeCerts) UpsertHighest(_ context.Context, c *model.Certification) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if cur, ok := f.certs[c.UserID]; ok && cur.HighestLevel.Rank() >= c.HighestLevel.Rank() {
		return false, nil
	}
	f.certs[c.UserID] = *c
	return true, nil
}

var errBoom = errors.New("boom")

// ─── Fixture ───────────────────────────────────────────────────────────

type fixture struct {
	svc      *ExamSessionService
	sessions *fakeSessions
	bank     *fakeBank
	users    *fakeUsers
	notifier *recordingNotifier
	hooks    *recordingHooks
	user     *model.User
	clock    time.Time
}

func newFixture(competencies int) *fixture {
	f := &fixture{
		sessions: newFakeSessions(),
		bank:     newFakeBank(competencies, 4),
		notifier: &recordingNotifier{},
		hooks:    &recordingHooks{},
		user:     &model.User{ID: uuid.New(), Role: model.RoleStudent},
		clock:    time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	f.users = newFakeUsers(f.user)
	cfg := model.SystemConfig{TimePerQuestionSec: 90, ProctoringMode: model.ProctoringOff}
	f.svc = NewExamSessionService(f.sessions, f.bank, f.users, fakeConfig{cfg: cfg}, cfg, f.notifier, f.hooks, zerolog.Nop())
	f.svc.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) advance(d time.Duration) { f.clock = f.clock.Add(d) }

// answerAll answers the first n frozen questions correctly and the rest wrong.
func (f *fixture) answerAll(sessionID uuid.UUID, correct int) error {
	sess := f.sessions.get(sessionID)
	for i, q := range sess.Questions {
		key := f.bank.questions[q.QuestionID].CorrectIndex
		sel := key
		if i >= correct {
			sel = (key + 1) % len(f.bank.questions[q.QuestionID].Options)
		}
		if _, err := f.svc.Answer(context.Background(), AnswerInput{
			UserID: f.user.ID, SessionID: sessionID, QuestionID: q.QuestionID, SelectedIndex: sel,
		}); err != nil {
			return err
		}
	}
	return nil
}

// addScored inserts a finalized session with the given step and score for the fixture user.
func (f *fixture) addScored(step int, pct float64, level model.Level) *model.ExamSession {
	end := f.clock
	s := &model.ExamSession{
		ID: uuid.New(), UserID: f.user.ID, Step: step, Status: model.SessionStatusSubmitted,
		StartAt: f.clock.Add(-time.Hour), DeadlineAt: f.clock, EndAt: &end, ScorePct: &pct,
		Questions: []model.SessionQuestion{}, Answers: []model.SessionAnswer{}, Violations: []model.Violation{},
	}
	if level != "" {
		s.AwardedLevel = &level
	}
	f.sessions.put(s)
	return s
}
