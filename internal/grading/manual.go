package grading

import "math"

// ClampManual bounds a hand-entered essay score to [0, max].
func ClampManual(score, max int) int {
	if score < 0 {
		return 0
	}
	if max >= 0 && score > max {
		return max
	}
	return score
}

// Percent returns earned/total as a percentage rounded to five decimals.
// A zero total yields zero.
func Percent(earned, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return Round(earned*100/total, 5)
}

// Round rounds half away from zero to the given number of decimals.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
