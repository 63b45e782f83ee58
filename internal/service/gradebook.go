package service

import (
	"math"

	"github.com/lara-bellatin/awd-final/internal/models"
)

// round2 is the shared rounding used for progress percentages and final
// grades. Banker's rounding to two decimals keeps repeated recomputation
// stable.
func round2(v float64) float64 {
	return math.RoundToEven(v*100) / 100
}

// progressPercent computes the fraction of completed course items as a
// percentage in [0, 100]. A course with no items yields 0.
func progressPercent(completed, total int) float64 {
	if total <= 0 {
		return 0
	}
	return round2(100 * float64(completed) / float64(total))
}

// aggregateFinalGrade computes the weighted final grade from per-assignment
// rows. It returns nil when any assignment lacks a graded submission; a
// course with no assignments aggregates to 0, and a graded course can
// legitimately aggregate to zero, so the caller must treat nil and 0
// differently.
func aggregateFinalGrade(grades []models.WeightedGrade) *float64 {
	sum := 0.0
	for _, g := range grades {
		if !g.Submitted || g.Grade == nil {
			return nil
		}
		sum += (g.Weight / 100) * *g.Grade
	}
	final := round2(sum)
	return &final
}
