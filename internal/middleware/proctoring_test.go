package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/cefr-exam-engine/internal/model"
)

type staticConfig struct {
	mode model.ProctoringMode
	err  error
}

func (s staticConfig) SystemConfig(context.Context) (model.SystemConfig, error) {
	return model.SystemConfig{ProctoringMode: s.mode}, s.err
}

func TestProctoringGuard(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name        string
		cfg         staticConfig
		withHeader  bool
		wantStatus  int
		wantPresent bool
	}{
		{"enforce without headers", staticConfig{mode: model.ProctoringEnforce}, false, http.StatusForbidden, false},
		{"enforce with headers", staticConfig{mode: model.ProctoringEnforce}, true, http.StatusOK, true},
		{"warn without headers", staticConfig{mode: model.ProctoringWarn}, false, http.StatusOK, false},
		{"off without headers", staticConfig{mode: model.ProctoringOff}, false, http.StatusOK, false},
		{"store failure uses fallback", staticConfig{err: errors.New("down")}, false, http.StatusForbidden, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			var present bool
			r.GET("/x", ProctoringGuard(tt.cfg, model.ProctoringEnforce, zerolog.Nop()), func(c *gin.Context) {
				present = ProctoringHeadersPresent(c)
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			if tt.withHeader {
				req.Header.Set(HeaderRequestHash, "abc123")
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if w.Code == http.StatusOK && present != tt.wantPresent {
				t.Errorf("present = %v, want %v", present, tt.wantPresent)
			}
		})
	}
}
