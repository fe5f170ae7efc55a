package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/cefr-exam-engine/internal/middleware"
	"github.com/stemsi/cefr-exam-engine/internal/model"
	"github.com/stemsi/cefr-exam-engine/internal/response"
	"github.com/stemsi/cefr-exam-engine/internal/service"
	"github.com/stemsi/cefr-exam-engine/internal/validator"
)

// multipartOverhead leaves room for multipart boundaries and headers on top of the chunk itself.
const multipartOverhead = 1 << 20

// VideoHandler handles recording chunk uploads.
type VideoHandler struct {
	videoService *service.VideoService
	maxBytes     int64
	log          zerolog.Logger
}

// NewVideoHandler creates a new VideoHandler.
func NewVideoHandler(videoService *service.VideoService, maxBytes int64, log zerolog.Logger) *VideoHandler {
	return &VideoHandler{
		videoService: videoService,
		maxBytes:     maxBytes,
		log:          log.With().Str("component", "video_handler").Logger(),
	}
}

// UploadChunk godoc
// POST /api/v1/exam/video/chunk?sessionId=&index=
// Accepts one multipart field "chunk".
func (h *VideoHandler) UploadChunk(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var q model.ChunkUploadQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if h.maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+multipartOverhead)
	}
	file, header, err := c.Request.FormFile("chunk")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Fail(c, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge)
			return
		}
		response.Fail(c, http.StatusBadRequest, response.ErrFileRequired)
		return
	}
	defer file.Close()

	if h.maxBytes > 0 && header.Size > h.maxBytes {
		response.Fail(c, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge)
		return
	}

	res, err := h.videoService.SaveChunk(c.Request.Context(), claims.UserID, uuid.MustParse(q.SessionID), *q.Index,
		header.Header.Get("Content-Type"), file)
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}
