package handler

import (
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

// ExamHandler handles the candidate-facing session endpoints.
type ExamHandler struct {
	sessionService *service.ExamSessionService
	log            zerolog.Logger
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(sessionService *service.ExamSessionService, log zerolog.Logger) *ExamHandler {
	return &ExamHandler{
		sessionService: sessionService,
		log:            log.With().Str("component", "exam_handler").Logger(),
	}
}

// StartSession godoc
// POST /api/v1/exam/start?step=N
func (h *ExamHandler) StartSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var q model.StartSessionQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	// The body is optional; an empty body means no screen report.
	var req model.StartSessionRequest
	if c.Request.ContentLength > 0 {
		if fields := validator.Bind(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
	}

	client := model.ClientInfo{
		IP:                       c.ClientIP(),
		UserAgent:                c.Request.UserAgent(),
		Screen:                   req.Screen,
		ProctoringHeadersPresent: middleware.ProctoringHeadersPresent(c),
	}

	res, err := h.sessionService.Start(c.Request.Context(), claims.UserID, q.Step, client)
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusCreated, res)
}

// SubmitAnswer godoc
// POST /api/v1/exam/answer
func (h *ExamHandler) SubmitAnswer(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.AnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.sessionService.Answer(c.Request.Context(), service.AnswerInput{
		UserID:        claims.UserID,
		SessionID:     uuid.MustParse(req.SessionID),
		QuestionID:    uuid.MustParse(req.QuestionID),
		SelectedIndex: *req.SelectedIndex,
		ElapsedMs:     req.ElapsedMs,
	})
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

// RecordViolation godoc
// POST /api/v1/exam/violation
func (h *ExamHandler) RecordViolation(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.ViolationRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.sessionService.RecordViolation(c.Request.Context(), model.ViolationInput{
		UserID:    claims.UserID,
		SessionID: uuid.MustParse(req.SessionID),
		Type:      model.ViolationType(req.Type),
		Meta:      req.Meta,
	})
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

// SubmitSession godoc
// POST /api/v1/exam/submit
func (h *ExamHandler) SubmitSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.SubmitRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.sessionService.Submit(c.Request.Context(), claims.UserID, uuid.MustParse(req.SessionID), model.SubmitReasonUser)
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

// GetStatus godoc
// GET /api/v1/exam/status/:sessionId
func (h *ExamHandler) GetStatus(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, err := uuid.Parse(c.Param("sessionId"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	res, err := h.sessionService.Status(c.Request.Context(), claims.UserID, sessionID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

// GetLatestResult godoc
// GET /api/v1/exam/result/latest
// Returns null data when the caller has no finalized session.
func (h *ExamHandler) GetLatestResult(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	res, err := h.sessionService.LatestResult(c.Request.Context(), claims.UserID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	if res == nil {
		response.Success(c, http.StatusOK, nil)
		return
	}
	response.Success(c, http.StatusOK, res)
}
