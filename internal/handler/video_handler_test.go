package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/cefr-exam-engine/internal/model"
	"github.com/stemsi/cefr-exam-engine/internal/response"
	"github.com/stemsi/cefr-exam-engine/internal/service"
	"github.com/stemsi/cefr-exam-engine/internal/validator"
)

type stubVideoSessions struct {
	rows map[uuid.UUID]*model.ExamSession
}

func (s *stubVideoSessions) GetOwned(_ context.Context, id, userID uuid.UUID) (*model.ExamSession, error) {
	if sess, ok := s.rows[id]; ok && sess.UserID == userID {
		return sess, nil
	}
	return nil, pgx.ErrNoRows
}

func (s *stubVideoSessions) GetByID(_ context.Context, id uuid.UUID) (*model.ExamSession, error) {
	if sess, ok := s.rows[id]; ok {
		return sess, nil
	}
	return nil, pgx.ErrNoRows
}

func (s *stubVideoSessions) RecordChunk(context.Context, uuid.UUID, string, string, int) error {
	return nil
}

func (s *stubVideoSessions) SetAssembledVideo(context.Context, uuid.UUID, string, int64, int, time.Time) error {
	return nil
}

// chunkForm builds a multipart body with the given file field, or a plain
// text field when field is empty.
func chunkForm(t *testing.T, field string, size int) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field == "" {
		if err := mw.WriteField("note", "no file"); err != nil {
			t.Fatal(err)
		}
	} else {
		fw, err := mw.CreateFormFile(field, "chunk.webm")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write(bytes.Repeat([]byte("v"), size)); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func TestVideoHandler_UploadChunk(t *testing.T) {
	gin.SetMode(gin.TestMode)
	validator.Setup()

	const maxBytes = 1024
	owner := uuid.New()
	active := &model.ExamSession{ID: uuid.New(), UserID: owner, Status: model.SessionStatusActive}
	done := &model.ExamSession{ID: uuid.New(), UserID: owner, Status: model.SessionStatusSubmitted}
	store := &stubVideoSessions{rows: map[uuid.UUID]*model.ExamSession{active.ID: active, done.ID: done}}
	root := t.TempDir()
	svc := service.NewVideoService(store, nil, root, maxBytes, zerolog.Nop())
	h := NewVideoHandler(svc, maxBytes, zerolog.Nop())

	target := func(id uuid.UUID, index string) string {
		return "/video/chunk?sessionId=" + id.String() + "&index=" + index
	}

	tests := []struct {
		name   string
		target string
		field  string
		size   int
		raw    string
		status int
		code   response.ErrCode
	}{
		{"stores chunk", target(active.ID, "0"), "chunk", 512, "", http.StatusOK, ""},
		{"missing session id", "/video/chunk?index=0", "chunk", 10, "", http.StatusBadRequest, response.ErrValidation},
		{"invalid session id", "/video/chunk?sessionId=abc&index=0", "chunk", 10, "", http.StatusBadRequest, response.ErrValidation},
		{"missing index", "/video/chunk?sessionId=" + active.ID.String(), "chunk", 10, "", http.StatusBadRequest, response.ErrValidation},
		{"negative index", target(active.ID, "-1"), "chunk", 10, "", http.StatusBadRequest, response.ErrValidation},
		{"no chunk field", target(active.ID, "1"), "", 0, "", http.StatusBadRequest, response.ErrFileRequired},
		{"wrong field name", target(active.ID, "1"), "video", 10, "", http.StatusBadRequest, response.ErrFileRequired},
		{"not multipart", target(active.ID, "1"), "", 0, `{"chunk":"x"}`, http.StatusBadRequest, response.ErrFileRequired},
		{"chunk over limit", target(active.ID, "1"), "chunk", maxBytes + 1, "", http.StatusRequestEntityTooLarge, response.ErrFileTooLarge},
		{"body over read cap", target(active.ID, "1"), "chunk", maxBytes + multipartOverhead + 4096, "", http.StatusRequestEntityTooLarge, response.ErrFileTooLarge},
		{"finished session", target(done.ID, "0"), "chunk", 10, "", http.StatusForbidden, response.ErrSessionNotActive},
		{"unknown session", target(uuid.New(), "0"), "chunk", 10, "", http.StatusForbidden, response.ErrSessionNotActive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.POST("/video/chunk", asUser(owner), h.UploadChunk)

			var req *http.Request
			if tt.raw != "" {
				req = httptest.NewRequest(http.MethodPost, tt.target, strings.NewReader(tt.raw))
				req.Header.Set("Content-Type", "application/json")
			} else {
				body, ctype := chunkForm(t, tt.field, tt.size)
				req = httptest.NewRequest(http.MethodPost, tt.target, body)
				req.Header.Set("Content-Type", ctype)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.status, w.Body.String())
			}
			if tt.code != "" {
				if got := decodeError(t, w).Code; got != tt.code {
					t.Errorf("code = %s, want %s", got, tt.code)
				}
				return
			}

			var body struct {
				Data service.ChunkResult `json:"data"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if !body.Data.Stored || body.Data.Bytes != int64(tt.size) {
				t.Errorf("result = %+v", body.Data)
			}
			if _, err := os.Stat(filepath.Join(svc.SessionDir(active.ID), "chunk_0")); err != nil {
				t.Errorf("chunk not on disk: %v", err)
			}
		})
	}

	if _, err := os.Stat(filepath.Join(svc.SessionDir(active.ID), "chunk_1")); !os.IsNotExist(err) {
		t.Errorf("rejected uploads left chunk_1 behind: %v", err)
	}
}
