package scoring

import (
	"testing"

	"github.com/stemsi/cefr-exam-engine/internal/model"
)

func TestMapScoreToLevel(t *testing.T) {
	tests := []struct {
		name string
		step int
		pct  float64
		want Outcome
	}{
		{"step1 zero locks", 1, 0, Outcome{LockStep1: true}},
		{"step1 just below 25 locks", 1, 24.99, Outcome{LockStep1: true}},
		{"step1 25 is A1", 1, 25, Outcome{Level: model.LevelA1}},
		{"step1 49.99 is A1", 1, 49.99, Outcome{Level: model.LevelA1}},
		{"step1 50 is A2", 1, 50, Outcome{Level: model.LevelA2}},
		{"step1 74.99 is A2", 1, 74.99, Outcome{Level: model.LevelA2}},
		{"step1 75 proceeds", 1, 75, Outcome{Level: model.LevelA2, ProceedNext: true}},
		{"step1 100 proceeds", 1, 100, Outcome{Level: model.LevelA2, ProceedNext: true}},

		{"step2 low is A2", 2, 10, Outcome{Level: model.LevelA2}},
		{"step2 25 is B1", 2, 25, Outcome{Level: model.LevelB1}},
		{"step2 50 is B2", 2, 50, Outcome{Level: model.LevelB2}},
		{"step2 75 proceeds", 2, 75, Outcome{Level: model.LevelB2, ProceedNext: true}},

		{"step3 low is B2", 3, 24, Outcome{Level: model.LevelB2}},
		{"step3 25 is C1", 3, 25, Outcome{Level: model.LevelC1}},
		{"step3 60 is C1", 3, 60, Outcome{Level: model.LevelC1}},
		{"step3 75 is C2 without proceed", 3, 75, Outcome{Level: model.LevelC2}},

		{"unknown step", 4, 90, Outcome{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MapScoreToLevel(tt.step, tt.pct); got != tt.want {
				t.Errorf("MapScoreToLevel(%d, %v) = %+v, want %+v", tt.step, tt.pct, got, tt.want)
			}
		})
	}
}

func TestScorePercent(t *testing.T) {
	tests := []struct {
		correct, total int
		want           float64
	}{
		{0, 0, 0},
		{0, 44, 0},
		{44, 44, 100},
		{1, 3, 33.33},
		{2, 3, 66.67},
		{11, 44, 25},
	}
	for _, tt := range tests {
		if got := ScorePercent(tt.correct, tt.total); got != tt.want {
			t.Errorf("ScorePercent(%d, %d) = %v, want %v", tt.correct, tt.total, got, tt.want)
		}
	}
}

func TestHighestLevel(t *testing.T) {
	if got := HighestLevel(); got != "" {
		t.Errorf("HighestLevel() = %q, want empty", got)
	}
	if got := HighestLevel(model.LevelA2, model.LevelC1, model.LevelB2); got != model.LevelC1 {
		t.Errorf("got %q, want C1", got)
	}
	if got := HighestLevel("", "Z9", model.LevelA1); got != model.LevelA1 {
		t.Errorf("got %q, want A1", got)
	}
}

func TestMaxLevel(t *testing.T) {
	tests := []struct {
		a, b, want model.Level
	}{
		{model.LevelA1, model.LevelB1, model.LevelB1},
		{model.LevelC2, model.LevelB2, model.LevelC2},
		{"", model.LevelA2, model.LevelA2},
		{model.LevelB1, "", model.LevelB1},
		{"", "", ""},
	}
	for _, tt := range tests {
		if got := MaxLevel(tt.a, tt.b); got != tt.want {
			t.Errorf("MaxLevel(%q, %q) = %q, want %q", tt.a, tt.b, got, tt.want)
		}
	}
}
