package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGradeStatePrecedence(t *testing.T) {
	score := 8.0

	require.Equal(t, GradeStateExcused, GradeState("graded", &score, true, true, true))
	require.Equal(t, GradeStateMissing, GradeState("unsubmitted", nil, true, true, false))
	require.Equal(t, GradeStateLate, GradeState("submitted", nil, true, false, false))
	require.Equal(t, GradeStateGraded, GradeState("submitted", &score, false, false, false))
	require.Equal(t, GradeStateGraded, GradeState("GRADED", nil, false, false, false))
	require.Equal(t, GradeStateSubmitted, GradeState("submitted", nil, false, false, false))
}

func TestLetterGradeBoundaries(t *testing.T) {
	cases := map[float64]string{
		100:  "A+",
		97:   "A+",
		96.9: "A",
		90:   "A-",
		87:   "B+",
		80:   "B-",
		73:   "C",
		60:   "D-",
		59.9: "F",
		0:    "F",
	}
	for percentage, expected := range cases {
		require.Equal(t, expected, LetterGradeFor(percentage), "percentage %v", percentage)
	}
}

func TestGradePercentage(t *testing.T) {
	score, points, zero := 45.0, 50.0, 0.0

	require.Nil(t, Grade{Score: &score}.Percentage())
	require.Nil(t, Grade{Score: &score, PointsPossible: &zero}.Percentage())
	require.InDelta(t, 90.0, *Grade{Score: &score, PointsPossible: &points}.Percentage(), 0.0001)
}
