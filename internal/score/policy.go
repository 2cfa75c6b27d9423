package score

import (
	"github.com/shopspring/decimal"
)

const (
	defaultBasePoints       = 1000
	defaultTimeLimitSeconds = 30
)

type Config struct {
	// BasePoints is awarded for an instant correct answer.
	BasePoints int
	// TimeLimitSeconds is the answer window. Answers at or past the limit earn half the base.
	TimeLimitSeconds int
}

// Policy computes the points of an answer when the quiz owner does not supply them.
type Policy struct {
	base  decimal.Decimal
	limit decimal.Decimal
}

func NewPolicy(c Config) *Policy {
	if c.BasePoints <= 0 {
		c.BasePoints = defaultBasePoints
	}
	if c.TimeLimitSeconds <= 0 {
		c.TimeLimitSeconds = defaultTimeLimitSeconds
	}

	return &Policy{
		base:  decimal.NewFromInt(int64(c.BasePoints)),
		limit: decimal.NewFromInt(int64(c.TimeLimitSeconds)),
	}
}

// Points returns round(base * (1 - (taken/limit)/2)) for a correct answer and
// zero otherwise. Time taken is clamped to [0, limit].
func (p *Policy) Points(isCorrect bool, timeTakenSeconds int) int {
	if !isCorrect {
		return 0
	}

	taken := decimal.NewFromInt(int64(max(timeTakenSeconds, 0)))
	if taken.GreaterThan(p.limit) {
		taken = p.limit
	}

	half := decimal.NewFromFloat(0.5)
	factor := decimal.NewFromInt(1).Sub(taken.Div(p.limit).Mul(half))

	return int(p.base.Mul(factor).Round(0).IntPart())
}
