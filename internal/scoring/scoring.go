package scoring

import (
	"github.com/shopspring/decimal"

	"github.com/quizdash/quizdash/internal/domain"
)

// Result is the outcome of scoring a single submission.
type Result struct {
	IsCorrect bool
	Points    int
}

var (
	half = decimal.NewFromFloat(0.5)
	one  = decimal.NewFromInt(1)
)

// Score maps a submission to awarded points. A correct answer earns at least
// half of the question's base points; the other half scales linearly with the
// time remaining. Pure and deterministic: safe to call on host and player
// clients for optimistic feedback, but only the value the coordinator
// persists is authoritative.
//
// Malformed input never produces an error: an out-of-range answer index is
// simply incorrect, and a zero time limit yields no speed bonus.
func Score(q domain.Question, answerIndex, timeRemaining, timeLimit int) Result {
	if answerIndex < 0 || answerIndex >= len(q.Answers) || !q.Answers[answerIndex].IsCorrect {
		return Result{IsCorrect: false, Points: 0}
	}

	bonus := decimal.Zero
	if timeLimit > 0 {
		bonus = decimal.NewFromInt(int64(timeRemaining)).Div(decimal.NewFromInt(int64(timeLimit)))
		if bonus.LessThan(decimal.Zero) {
			bonus = decimal.Zero
		}
		if bonus.GreaterThan(one) {
			bonus = one
		}
	}

	// points = round(base * (0.5 + 0.5*bonus)), rounded half away from zero.
	points := decimal.NewFromInt(int64(q.Points)).
		Mul(half.Add(half.Mul(bonus))).
		Round(0).
		IntPart()

	return Result{IsCorrect: true, Points: int(points)}
}
