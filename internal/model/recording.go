package model

import (
	"time"

	"github.com/google/uuid"
)

// RecordingKind classifies recording assets.
type RecordingKind string

const RecordingKindVideo RecordingKind = "video"

// RecordingAsset is the assembled recording of a session, one per session.
type RecordingAsset struct {
	ID        uuid.UUID     `json:"id"`
	SessionID uuid.UUID     `json:"session_id"`
	UserID    uuid.UUID     `json:"user_id"`
	Kind      RecordingKind `json:"kind"`
	Path      string        `json:"path"`
	Mime      string        `json:"mime"`
	SizeBytes int64         `json:"size_bytes"`
	Chunks    int           `json:"chunks"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// ChunkUploadQuery identifies a recording chunk upload.
type ChunkUploadQuery struct {
	SessionID string `form:"sessionId" binding:"required,uuid"`
	Index     *int   `form:"index" binding:"required,min=0"`
}
