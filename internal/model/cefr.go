package model

// Level is a CEFR proficiency level.
type Level string

const (
	LevelA1 Level = "A1"
	LevelA2 Level = "A2"
	LevelB1 Level = "B1"
	LevelB2 Level = "B2"
	LevelC1 Level = "C1"
	LevelC2 Level = "C2"
)

// Levels lists every CEFR level from lowest to highest.
var Levels = []Level{LevelA1, LevelA2, LevelB1, LevelB2, LevelC1, LevelC2}

// Rank returns the position of l in the CEFR order, or -1 for unknown or empty levels.
func (l Level) Rank() int {
	for i, lv := range Levels {
		if lv == l {
			return i
		}
	}
	return -1
}

// Valid reports whether l is one of the six CEFR levels.
func (l Level) Valid() bool {
	return l.Rank() >= 0
}

// Exam steps. Each step covers two adjacent levels.
const (
	StepFirst  = 1
	StepSecond = 2
	StepThird  = 3
)

var stepLevels = map[int][2]Level{
	StepFirst:  {LevelA1, LevelA2},
	StepSecond: {LevelB1, LevelB2},
	StepThird:  {LevelC1, LevelC2},
}

// LevelsForStep returns the two levels a step draws questions from.
func LevelsForStep(step int) ([2]Level, bool) {
	lv, ok := stepLevels[step]
	return lv, ok
}

// ValidStep reports whether step is 1, 2 or 3.
func ValidStep(step int) bool {
	_, ok := stepLevels[step]
	return ok
}
