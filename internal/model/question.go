package model

import (
	"time"

	"github.com/google/uuid"
)

// Competency is a skill area; each active one contributes one question per level of a step.
type Competency struct {
	ID       uuid.UUID `json:"id"`
	Code     string    `json:"code"`
	Name     string    `json:"name"`
	IsActive bool      `json:"is_active"`
}

// Question is a multiple-choice question bank entry.
type Question struct {
	ID           uuid.UUID `json:"id"`
	CompetencyID uuid.UUID `json:"competency_id"`
	Level        Level     `json:"level"`
	Prompt       string    `json:"prompt"`
	Options      []string  `json:"options"`
	CorrectIndex int       `json:"-"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// SessionQuestionView is a question as delivered to a candidate, without the answer key.
type SessionQuestionView struct {
	ID           uuid.UUID `json:"id"`
	CompetencyID uuid.UUID `json:"competency_id"`
	Level        Level     `json:"level"`
	Prompt       string    `json:"prompt"`
	Options      []string  `json:"options"`
	Order        int       `json:"order"`
}

// QuestionSeed is one question entry of a seed file.
type QuestionSeed struct {
	Level        string   `yaml:"level" json:"level" binding:"required,oneof=A1 A2 B1 B2 C1 C2"`
	Prompt       string   `yaml:"prompt" json:"prompt" binding:"required,min=1,max=4000"`
	Options      []string `yaml:"options" json:"options" binding:"required,min=2,max=10,dive,required"`
	CorrectIndex int      `yaml:"correct_index" json:"correct_index" binding:"min=0,ltfield=OptionCount"`
	OptionCount  int      `yaml:"-" json:"-"`
}

// CompetencySeed groups the seed questions of one competency.
type CompetencySeed struct {
	Code      string         `yaml:"code" json:"code" binding:"required,max=64"`
	Name      string         `yaml:"name" json:"name" binding:"required,max=255"`
	Questions []QuestionSeed `yaml:"questions" json:"questions" binding:"dive"`
}

// QuestionBankSeed is the document loaded by the seed-questions command.
type QuestionBankSeed struct {
	Competencies []CompetencySeed `yaml:"competencies" json:"competencies" binding:"required,min=1,dive"`
}
