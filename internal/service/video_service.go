package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/cefr-exam-engine/internal/model"
)

const (
	chunkPrefix      = "chunk_"
	recordingBase    = "recording"
	defaultVideoExt  = ".webm"
	defaultVideoMime = "video/webm"
)

// VideoService stores recording chunks on disk, one directory per session,
// and concatenates them into a single file when the session ends.
type VideoService struct {
	sessions   VideoSessionStore
	recordings RecordingStore
	root       string
	maxBytes   int64
	log        zerolog.Logger
	now        func() time.Time
}

// NewVideoService creates a new VideoService rooted at dir.
func NewVideoService(sessions VideoSessionStore, recordings RecordingStore, dir string, maxBytes int64, log zerolog.Logger) *VideoService {
	return &VideoService{
		sessions:   sessions,
		recordings: recordings,
		root:       dir,
		maxBytes:   maxBytes,
		log:        log.With().Str("component", "video_service").Logger(),
		now:        time.Now,
	}
}

// Root returns the directory holding per-session recording folders.
func (s *VideoService) Root() string { return s.root }

// SessionDir returns the directory holding the chunks of one session.
func (s *VideoService) SessionDir(sessionID uuid.UUID) string {
	return filepath.Join(s.root, sessionID.String())
}

// ChunkResult acknowledges a stored chunk.
type ChunkResult struct {
	Stored bool  `json:"stored"`
	Index  int   `json:"index"`
	Bytes  int64 `json:"bytes"`
}

// SaveChunk writes chunk index of an active session owned by userID.
// The chunk becomes visible under its final name only after a complete write,
// so a retried upload of the same index replaces it atomically.
func (s *VideoService) SaveChunk(ctx context.Context, userID, sessionID uuid.UUID, index int, mime string, r io.Reader) (*ChunkResult, error) {
	if index < 0 {
		return nil, ErrInvalidChunkIndex
	}

	sess, err := s.sessions.GetOwned(ctx, sessionID, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotActive
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if sess.Status != model.SessionStatusActive {
		return nil, ErrSessionNotActive
	}

	dir := s.SessionDir(sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	name := chunkPrefix + strconv.Itoa(index)
	n, err := s.writeAtomic(dir, name, r)
	if err != nil {
		return nil, err
	}

	if err := s.sessions.RecordChunk(ctx, sessionID, dir, mime, index+1); err != nil {
		s.log.Warn().Err(err).
			Str("session_id", sessionID.String()).
			Int("index", index).
			Msg("failed to update video meta")
	}

	return &ChunkResult{Stored: true, Index: index, Bytes: n}, nil
}

func (s *VideoService) writeAtomic(dir, name string, r io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(dir, name+".tmp.*")
	if err != nil {
		return 0, fmt.Errorf("create temp chunk: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	src := r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, s.maxBytes+1)
	}
	n, err := io.Copy(tmp, src)
	if err != nil {
		cleanup()
		return 0, fmt.Errorf("write chunk: %w", err)
	}
	if s.maxBytes > 0 && n > s.maxBytes {
		cleanup()
		return 0, ErrChunkTooLarge
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return 0, fmt.Errorf("sync chunk: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("close chunk: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("rename chunk: %w", err)
	}
	return n, nil
}

// AssembleResult describes the outcome of concatenating a session's chunks.
type AssembleResult struct {
	Assembled bool   `json:"assembled"`
	Reason    string `json:"reason,omitempty"`
	Path      string `json:"path,omitempty"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
	Chunks    int    `json:"chunks,omitempty"`
}

// AssembleReasonNoChunks is reported when a session has nothing to assemble.
const AssembleReasonNoChunks = "no-chunks"

// Assemble concatenates every chunk of sessionID in ascending numeric index order.
// It is safe to repeat: the output is rebuilt from the chunks each time.
func (s *VideoService) Assemble(ctx context.Context, sessionID uuid.UUID, mime string) (*AssembleResult, error) {
	dir := s.SessionDir(sessionID)
	chunks, err := listChunks(dir)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return &AssembleResult{Assembled: false, Reason: AssembleReasonNoChunks}, nil
	}

	if mime == "" {
		mime = defaultVideoMime
	}
	final := filepath.Join(dir, recordingBase+extensionForMime(mime))

	out, err := os.CreateTemp(dir, filepath.Base(final)+".tmp*")
	if err != nil {
		return nil, fmt.Errorf("create assembly file: %w", err)
	}
	tmpName := out.Name()
	fail := func(err error) (*AssembleResult, error) {
		out.Close()
		os.Remove(tmpName)
		return nil, err
	}

	var size int64
	for _, c := range chunks {
		if ctx.Err() != nil {
			return fail(ctx.Err())
		}
		n, err := appendFile(out, filepath.Join(dir, c.name))
		if err != nil {
			return fail(err)
		}
		size += n
	}
	if err := out.Sync(); err != nil {
		return fail(fmt.Errorf("sync assembly: %w", err))
	}
	if err := out.Close(); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("close assembly: %w", err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("rename assembly: %w", err)
	}

	res := &AssembleResult{Assembled: true, Path: final, SizeBytes: size, Chunks: len(chunks)}
	if err := s.persist(ctx, sessionID, mime, res); err != nil {
		return res, err
	}

	s.log.Info().
		Str("session_id", sessionID.String()).
		Int("chunks", res.Chunks).
		Int64("size_bytes", size).
		Msg("recording assembled")
	return res, nil
}

func (s *VideoService) persist(ctx context.Context, sessionID uuid.UUID, mime string, res *AssembleResult) error {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}
	if err := s.recordings.Upsert(ctx, &model.RecordingAsset{
		SessionID: sessionID,
		UserID:    sess.UserID,
		Kind:      model.RecordingKindVideo,
		Path:      res.Path,
		Mime:      mime,
		SizeBytes: res.SizeBytes,
		Chunks:    res.Chunks,
	}); err != nil {
		return fmt.Errorf("upsert recording asset: %w", err)
	}
	if err := s.sessions.SetAssembledVideo(ctx, sessionID, res.Path, res.SizeBytes, res.Chunks, s.now()); err != nil {
		return fmt.Errorf("update video meta: %w", err)
	}
	return nil
}

type chunkFile struct {
	index int
	name  string
}

// listChunks returns completed chunk files sorted by numeric index. Temp files are ignored.
func listChunks(dir string) ([]chunkFile, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session dir: %w", err)
	}

	var chunks []chunkFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), chunkPrefix) {
			continue
		}
		idx, err := strconv.Atoi(strings.TrimPrefix(e.Name(), chunkPrefix))
		if err != nil || idx < 0 {
			continue
		}
		chunks = append(chunks, chunkFile{index: idx, name: e.Name()})
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].index < chunks[j].index })
	return chunks, nil
}

func appendFile(dst io.Writer, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open chunk: %w", err)
	}
	defer f.Close()
	n, err := io.Copy(dst, f)
	if err != nil {
		return n, fmt.Errorf("copy chunk %s: %w", filepath.Base(path), err)
	}
	return n, nil
}

func extensionForMime(mime string) string {
	base := strings.TrimSpace(strings.SplitN(mime, ";", 2)[0])
	switch base {
	case "video/mp4":
		return ".mp4"
	case "video/x-matroska":
		return ".mkv"
	default:
		return defaultVideoExt
	}
}
