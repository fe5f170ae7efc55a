package model

import (
	"time"

	"github.com/google/uuid"
)

// Certification holds the highest level a user has been awarded.
type Certification struct {
	UserID        uuid.UUID `json:"user_id"`
	HighestLevel  Level     `json:"highest_level"`
	CertificateID string    `json:"certificate_id"`
	IssuedAt      time.Time `json:"issued_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
