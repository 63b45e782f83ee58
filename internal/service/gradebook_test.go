package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lara-bellatin/awd-final/internal/models"
)

func ptrFloat(v float64) *float64 {
	return &v
}

func TestProgressPercent(t *testing.T) {
	assert.Equal(t, 0.0, progressPercent(0, 0))
	assert.Equal(t, 0.0, progressPercent(5, 0))
	assert.Equal(t, 0.0, progressPercent(0, 3))
	assert.Equal(t, 66.67, progressPercent(2, 3))
	assert.Equal(t, 100.0, progressPercent(3, 3))
	assert.Equal(t, 33.33, progressPercent(1, 3))
}

func TestProgressPercentBounds(t *testing.T) {
	for completed := 0; completed <= 7; completed++ {
		for total := 1; total <= 7; total++ {
			if completed > total {
				continue
			}
			p := progressPercent(completed, total)
			assert.GreaterOrEqual(t, p, 0.0)
			assert.LessOrEqual(t, p, 100.0)
		}
	}
}

func TestAggregateFinalGradeAllGraded(t *testing.T) {
	grades := []models.WeightedGrade{
		{AssignmentID: "a1", Weight: 60, Submitted: true, Grade: ptrFloat(90)},
		{AssignmentID: "a2", Weight: 40, Submitted: true, Grade: ptrFloat(75)},
	}

	final := aggregateFinalGrade(grades)
	require.NotNil(t, final)
	assert.Equal(t, 84.0, *final)
}

func TestAggregateFinalGradeSingleAssignment(t *testing.T) {
	grades := []models.WeightedGrade{
		{AssignmentID: "a1", Weight: 100, Submitted: true, Grade: ptrFloat(90)},
	}

	final := aggregateFinalGrade(grades)
	require.NotNil(t, final)
	assert.Equal(t, 90.0, *final)
}

func TestAggregateFinalGradeMissingSubmission(t *testing.T) {
	grades := []models.WeightedGrade{
		{AssignmentID: "a1", Weight: 60, Submitted: true, Grade: ptrFloat(90)},
		{AssignmentID: "a2", Weight: 40, Submitted: false},
	}

	assert.Nil(t, aggregateFinalGrade(grades))
}

func TestAggregateFinalGradeUngradedSubmission(t *testing.T) {
	grades := []models.WeightedGrade{
		{AssignmentID: "a1", Weight: 60, Submitted: true, Grade: ptrFloat(90)},
		{AssignmentID: "a2", Weight: 40, Submitted: true},
	}

	assert.Nil(t, aggregateFinalGrade(grades))
}

func TestAggregateFinalGradeZeroIsValid(t *testing.T) {
	grades := []models.WeightedGrade{
		{AssignmentID: "a1", Weight: 100, Submitted: true, Grade: ptrFloat(0)},
	}

	final := aggregateFinalGrade(grades)
	require.NotNil(t, final)
	assert.Equal(t, 0.0, *final)
}

func TestAggregateFinalGradeNoAssignments(t *testing.T) {
	// With no assignments the preconditions hold vacuously and the weighted
	// sum is zero, a valid persistable grade.
	final := aggregateFinalGrade(nil)
	require.NotNil(t, final)
	assert.Equal(t, 0.0, *final)

	final = aggregateFinalGrade([]models.WeightedGrade{})
	require.NotNil(t, final)
	assert.Equal(t, 0.0, *final)
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 66.67, round2(66.666666))
	assert.Equal(t, 0.0, round2(0))
	assert.Equal(t, 100.0, round2(100))
	// Banker's rounding on half cases that are exact in binary.
	assert.Equal(t, 0.12, round2(0.125))
	assert.Equal(t, 0.38, round2(0.375))
}
