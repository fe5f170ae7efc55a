package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/cefr-exam-engine/internal/model"
	"github.com/stemsi/cefr-exam-engine/internal/response"
	"github.com/stemsi/cefr-exam-engine/internal/service"
)

// Secure-browser request headers.
const (
	HeaderConfigKeyHash = "X-SafeExamBrowser-ConfigKeyHash"
	HeaderRequestHash   = "X-SafeExamBrowser-RequestHash"
)

// ContextKeyProctoring is the Gin context key holding whether the headers were present.
const ContextKeyProctoring = "proctoring_headers_present"

// ProctoringGuard checks the secure-browser headers according to the configured mode.
// enforce rejects requests without them, warn logs and continues, off only records presence.
func ProctoringGuard(settings service.ConfigProvider, fallback model.ProctoringMode, log zerolog.Logger) gin.HandlerFunc {
	l := log.With().Str("component", "proctoring_guard").Logger()
	return func(c *gin.Context) {
		present := c.GetHeader(HeaderConfigKeyHash) != "" || c.GetHeader(HeaderRequestHash) != ""
		c.Set(ContextKeyProctoring, present)

		mode := fallback
		if cfg, err := settings.SystemConfig(c.Request.Context()); err == nil {
			mode = cfg.ProctoringMode
		} else {
			l.Warn().Err(err).Msg("using fallback proctoring mode")
		}

		if present || mode == model.ProctoringOff {
			c.Next()
			return
		}

		if mode == model.ProctoringEnforce {
			response.AbortFail(c, http.StatusForbidden, response.ErrProctoringHeader)
			return
		}

		evt := l.Warn().Str("path", c.FullPath()).Str("ip", c.ClientIP())
		if claims := GetClaims(c); claims != nil {
			evt = evt.Str("user_id", claims.UserID.String())
		}
		evt.Msg("request without secure-browser headers")
		c.Next()
	}
}

// ProctoringHeadersPresent reports what ProctoringGuard recorded for this request.
func ProctoringHeadersPresent(c *gin.Context) bool {
	return c.GetBool(ContextKeyProctoring)
}
