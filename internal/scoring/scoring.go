// Package scoring maps step scores to CEFR levels.
package scoring

import (
	"math"

	"github.com/stemsi/cefr-exam-engine/internal/model"
)

// Outcome is the result of grading one step.
type Outcome struct {
	// Level is empty when the score earns no certification.
	Level       model.Level
	ProceedNext bool
	LockStep1   bool
}

// MapScoreToLevel applies the threshold table for a step. Unknown steps yield a zero Outcome.
//
//	step 1: <25 none (lock step 1), 25-49 A1, 50-74 A2, >=75 A2 and proceed
//	step 2: <25 A2, 25-49 B1, 50-74 B2, >=75 B2 and proceed
//	step 3: <25 B2, 25-49 C1, 50-74 C1, >=75 C2
func MapScoreToLevel(step int, pct float64) Outcome {
	switch step {
	case model.StepFirst:
		switch {
		case pct < 25:
			return Outcome{LockStep1: true}
		case pct < 50:
			return Outcome{Level: model.LevelA1}
		case pct < 75:
			return Outcome{Level: model.LevelA2}
		default:
			return Outcome{Level: model.LevelA2, ProceedNext: true}
		}
	case model.StepSecond:
		switch {
		case pct < 25:
			return Outcome{Level: model.LevelA2}
		case pct < 50:
			return Outcome{Level: model.LevelB1}
		case pct < 75:
			return Outcome{Level: model.LevelB2}
		default:
			return Outcome{Level: model.LevelB2, ProceedNext: true}
		}
	case model.StepThird:
		switch {
		case pct < 25:
			return Outcome{Level: model.LevelB2}
		case pct < 75:
			return Outcome{Level: model.LevelC1}
		default:
			return Outcome{Level: model.LevelC2}
		}
	}
	return Outcome{}
}

// ScorePercent returns correct/total as a percentage rounded to two decimals.
func ScorePercent(correct, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(correct)/float64(total)*10000) / 100
}

// MaxLevel returns the higher of a and b. Invalid levels rank below A1.
func MaxLevel(a, b model.Level) model.Level {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// HighestLevel returns the highest valid level in levels, or "" if there is none.
func HighestLevel(levels ...model.Level) model.Level {
	var best model.Level
	for _, lv := range levels {
		best = MaxLevel(best, lv)
	}
	return best
}
