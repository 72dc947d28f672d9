package graph

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/agext/levenshtein"
)

// Range bounds a numeric port. Each limit is optional.
// PRINCIPLES:
// - KISS: a value type, built once when the port is created
type Range struct {
	Start *float64 `json:"start,omitempty"`
	Stop  *float64 `json:"stop,omitempty"`
	Step  *float64 `json:"step,omitempty"`
}

// Between returns the closed interval [start, stop].
func Between(start, stop float64) Range {
	return Range{Start: &start, Stop: &stop}
}

// AtLeast returns the half-open interval [start, +inf).
func AtLeast(start float64) Range {
	return Range{Start: &start}
}

// WithStep returns a copy of r that snaps values to multiples of step.
func (r Range) WithStep(step float64) Range {
	r.Step = &step
	return r
}

// IsZero reports whether r imposes no constraint at all.
func (r Range) IsZero() bool {
	return r.Start == nil && r.Stop == nil && r.Step == nil
}

// Validate checks that the bounds are ordered and the step is positive.
func (r Range) Validate() error {
	if r.Start != nil && r.Stop != nil && *r.Start > *r.Stop {
		return fmt.Errorf("%w: range start %g above stop %g", ErrStructural, *r.Start, *r.Stop)
	}
	if r.Step != nil && !(*r.Step > 0) {
		return fmt.Errorf("%w: range step must be positive, got %g", ErrStructural, *r.Step)
	}
	return nil
}

// Clamp limits v to the range and snaps it onto the step grid anchored at
// the lower bound (or at zero when there is none). Ties round to even. A
// snapped value that lands past the upper bound is pulled back to it.
func (r Range) Clamp(v float64) float64 {
	if r.Stop != nil && v > *r.Stop {
		v = *r.Stop
	}
	if r.Start != nil && v < *r.Start {
		return *r.Start
	}
	if r.Step == nil || !(*r.Step > 0) {
		return v
	}
	var base float64
	if r.Start != nil {
		base = *r.Start
	}
	step := *r.Step
	v = base + math.RoundToEven((v-base)/step)*step
	if r.Stop != nil && v > *r.Stop {
		v = *r.Stop
	}
	return v
}

// Decimals is the number of fractional digits implied by the step: the
// digits of step's fractional part rounded to six places, and at least one.
func (r Range) Decimals() (int, bool) {
	if r.Step == nil {
		return 0, false
	}
	return decimalsForStep(*r.Step), true
}

func decimalsForStep(step float64) int {
	frac := math.Round(math.Mod(step, 1.0)*1e6) / 1e6
	s := strconv.FormatFloat(frac, 'f', -1, 64)
	dot := strings.IndexByte(s, '.')
	if dot < 0 {
		return 1
	}
	return len(s) - dot - 1
}

// Choice restricts a port to a fixed list of options.
type Choice struct {
	Options []any
}

// OneOf builds a Choice from its options.
func OneOf(options ...any) Choice {
	return Choice{Options: options}
}

// Nearest returns the option closest to v. Strings compare by
// case-insensitive edit distance, numbers by absolute difference. The first
// of several equally close options wins.
func (c Choice) Nearest(v any) (any, error) {
	if len(c.Options) == 0 {
		return nil, ErrNoOptions
	}
	var (
		best     any
		bestDist = math.Inf(1)
		found    bool
	)
	for _, opt := range c.Options {
		d, ok := distance(v, opt)
		if !ok {
			continue
		}
		if !found || d < bestDist {
			best, bestDist, found = opt, d, true
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: %v matches none of %v", ErrTypeMismatch, v, c.Options)
	}
	return best, nil
}

func distance(a, b any) (float64, bool) {
	if sa, ok := a.(string); ok {
		sb, ok := b.(string)
		if !ok {
			return 0, false
		}
		return float64(levenshtein.Distance(strings.ToLower(sa), strings.ToLower(sb), nil)), true
	}
	fa, ok := toFloat(a)
	if !ok {
		return 0, false
	}
	fb, ok := toFloat(b)
	if !ok {
		return 0, false
	}
	return math.Abs(fa - fb), true
}
