// Package capacity holds the capacity ceiling policy and the days-to-limit
// projection shared by the trend model, the sink and the incident trigger.
package capacity

import (
	"errors"
	"math"
)

// Policy defines the capacity ceiling of one volume.
type Policy struct {
	// Total is the volume size in the unit of the series (usually GB).
	// Must be > 0.
	Total float64

	// Fraction of Total considered the limit, e.g. 0.85 to alert before the
	// volume is full. 0 means 1 (the full volume).
	Fraction float64
}

// Ceiling returns the absolute limit C.
func (p Policy) Ceiling() float64 {
	f := p.Fraction
	if f <= 0 {
		f = 1
	}
	return p.Total * f
}

// Validate checks the policy.
func (p Policy) Validate() error {
	if p.Total <= 0 || math.IsNaN(p.Total) || math.IsInf(p.Total, 0) {
		return errors.New("capacity total must be a positive number")
	}
	if p.Fraction < 0 || p.Fraction > 1 {
		return errors.New("capacity limit fraction must be in [0, 1]")
	}
	return nil
}

// Utilization returns used/ceiling, or 0 when the ceiling is not positive.
func Utilization(used, ceiling float64) float64 {
	if ceiling <= 0 {
		return 0
	}
	return used / ceiling
}

// Project computes the days until a series anchored at anchor and growing
// by rate per day first exceeds ceiling. The result is Unbounded when rate
// is not positive and 0 when the anchor is already above the ceiling.
//
// The count is floor((ceiling-anchor)/rate)+1: with anchor 230, rate 10 and
// ceiling 500 the projection reaches 500 on day 27 and exceeds it on day 28.
func Project(anchor, rate, ceiling float64) DaysToLimit {
	if !(rate > 0) || math.IsInf(rate, 0) {
		return Unbounded()
	}
	if anchor > ceiling {
		return Days(0)
	}
	// Small epsilon so exact integer ratios are not pushed down by rounding.
	d := math.Floor((ceiling-anchor)/rate+1e-9) + 1
	if d > math.MaxInt32 {
		return Unbounded()
	}
	return Days(int(d))
}
