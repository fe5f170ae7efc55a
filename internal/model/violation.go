package model

import (
	"time"

	"github.com/google/uuid"
)

// ViolationType enumerates client-reported proctoring events.
type ViolationType string

const (
	ViolationTabBlur        ViolationType = "TAB_BLUR"
	ViolationFullscreenExit ViolationType = "FULLSCREEN_EXIT"
	ViolationCopy           ViolationType = "COPY"
	ViolationPaste          ViolationType = "PASTE"
	ViolationRightClick     ViolationType = "RIGHT_CLICK"
)

// Valid reports whether v is a known violation type.
func (v ViolationType) Valid() bool {
	switch v {
	case ViolationTabBlur, ViolationFullscreenExit, ViolationCopy, ViolationPaste, ViolationRightClick:
		return true
	}
	return false
}

// Violation is one entry of a session's append-only violation log.
type Violation struct {
	Type       ViolationType  `json:"type"`
	OccurredAt time.Time      `json:"occurred_at"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// ViolationRequest reports a proctoring event.
type ViolationRequest struct {
	SessionID string         `json:"session_id" binding:"required,uuid"`
	Type      string         `json:"type" binding:"required,oneof=TAB_BLUR FULLSCREEN_EXIT COPY PASTE RIGHT_CLICK"`
	Meta      map[string]any `json:"meta"`
}

// ViolationInput is the service-level form of ViolationRequest.
type ViolationInput struct {
	UserID    uuid.UUID
	SessionID uuid.UUID
	Type      ViolationType
	Meta      map[string]any
}
