package grading

import (
	"context"
	"strconv"
	"strings"
)

// numericStrategy matches a number against option ranges.
// Examples:
//
//	"3.14"        // exact value (min = max)
//	"2.5:3.5"     // inclusive range
type numericStrategy struct{}

func (numericStrategy) Grade(_ context.Context, q Q, resp Response) (Result, error) {
	v, ok := parseFloatLoose(resp.Text)
	if !ok {
		return Result{NoAnswer: true, UserAnswer: strings.TrimSpace(resp.Text)}, nil
	}
	raw := strconv.FormatFloat(v, 'f', -1, 64)
	for _, o := range q.Options {
		if strings.TrimSpace(o.Text) == CatchAll {
			continue
		}
		min, max, ok := parseRange(o.Text)
		if !ok {
			continue
		}
		if v >= min && v <= max {
			return Result{OptionID: o.ID, Correct: o.Correct, UserAnswer: raw}, nil
		}
	}
	if o, ok := catchAll(q.Options); ok {
		return Result{OptionID: o.ID, Correct: o.Correct, UserAnswer: raw}, nil
	}
	return Result{NoAnswer: true, UserAnswer: raw}, nil
}

// parseRange reads "min:max" or a bare number. Reversed bounds are swapped.
func parseRange(s string) (min, max float64, ok bool) {
	lo, hi, found := strings.Cut(s, ":")
	if !found {
		v, ok := parseFloatLoose(s)
		return v, v, ok
	}
	min, okLo := parseFloatLoose(lo)
	max, okHi := parseFloatLoose(hi)
	if !okLo || !okHi {
		return 0, 0, false
	}
	if min > max {
		min, max = max, min
	}
	return min, max, true
}

// parseFloatLoose accepts a decimal comma and surrounding space.
func parseFloatLoose(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
