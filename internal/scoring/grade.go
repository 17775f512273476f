package scoring

import (
	"math"

	"family-safety-score/internal/models"
)

// GradeFor maps a score to its letter grade.
func GradeFor(score int) models.Grade {
	switch {
	case score >= 90:
		return models.GradeA
	case score >= 80:
		return models.GradeB
	case score >= 70:
		return models.GradeC
	case score >= 60:
		return models.GradeD
	default:
		return models.GradeF
	}
}

// TrendFor compares two scores with a stability band.
func TrendFor(previous, current int, band float64) models.Trend {
	delta := float64(current - previous)
	switch {
	case math.Abs(delta) < band:
		return models.TrendStable
	case delta > 0:
		return models.TrendUp
	default:
		return models.TrendDown
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
