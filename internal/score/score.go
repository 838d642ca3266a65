// Package score computes the XP gained or lost on a quiz question.
package score

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/victornm/quizbot/internal/errors"
)

// Float results are rounded to this many decimal places before taking the ceiling,
// so a value like 42.000000000000007 still counts as 42.
const precision = 9

// Win returns the XP earned by a winner.
// n is the number of participants (winners and losers), coef the 1-based arrival rank
// of the winner and level the winner's current level.
func Win(n, coef, level int) (int, error) {
	if level < 1 {
		return 0, errors.InvalidMemberState("level must be at least 1, got %d", level)
	}

	if coef < 1 || n < coef {
		return 0, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("invalid rank %d among %d participants", coef, n))
	}

	v := float64(200+level) * math.Sqrt(float64(n)) / (math.Sqrt(float64(coef)) * float64(level))
	return ceil(v), nil
}

// Lose returns the XP taken from a loser, n being the number of participants.
func Lose(n int) int {
	if n <= 0 {
		return 0
	}

	return ceil(20 * math.Sqrt(float64(n)))
}

func ceil(v float64) int {
	return int(decimal.NewFromFloat(v).Round(precision).Ceil().IntPart())
}
