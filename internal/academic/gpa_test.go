package academic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/univ-academic-api/internal/models"
)

func credits(v int) *int { return &v }

func gradedCourse(semesterID string, points float64, credit int) models.CourseGrade {
	return models.CourseGrade{
		SemesterID: semesterID,
		GradePoint: points,
		Credits:    credits(credit),
		Status:     models.GradeStatusGraded,
	}
}

func TestSGPA(t *testing.T) {
	grades := []models.CourseGrade{
		gradedCourse("s1", 10, 4),
		gradedCourse("s1", 7, 3),
		gradedCourse("s1", 5, 3),
	}
	// (40 + 21 + 15) / 10
	assert.Equal(t, 7.6, SGPA(grades))
}

func TestSGPAZeroCredits(t *testing.T) {
	assert.Equal(t, 0.0, SGPA(nil))
	assert.Equal(t, 0.0, SGPA([]models.CourseGrade{{SemesterID: "s1", GradePoint: 9, Status: models.GradeStatusGraded}}))
}

func TestSGPAExcludesIncompleteAndUnresolvedCredits(t *testing.T) {
	incomplete := gradedCourse("s1", 0, 4)
	incomplete.Status = models.GradeStatusIncomplete
	missingCredits := models.CourseGrade{SemesterID: "s1", GradePoint: 2, Status: models.GradeStatusPublished}
	zeroCredits := gradedCourse("s1", 1, 0)

	grades := []models.CourseGrade{gradedCourse("s1", 8, 3), incomplete, missingCredits, zeroCredits}
	assert.Equal(t, 8.0, SGPA(grades))
}

func TestCGPAWeightsSemestersByCredits(t *testing.T) {
	grades := []models.CourseGrade{
		gradedCourse("sem-1", 10, 4),
		gradedCourse("sem-1", 6, 4),
		gradedCourse("sem-2", 9, 3),
	}
	summary := Summarize("student-1", grades)

	require.Len(t, summary.Semesters, 2)
	assert.Equal(t, models.SemesterGPA{SemesterID: "sem-1", Credits: 8, SGPA: 8}, summary.Semesters[0])
	assert.Equal(t, models.SemesterGPA{SemesterID: "sem-2", Credits: 3, SGPA: 9}, summary.Semesters[1])
	assert.Equal(t, 11, summary.TotalCredits)
	// (8*8 + 9*3) / 11 = 8.2727
	assert.Equal(t, 8.27, summary.CGPA)
	assert.Equal(t, 8.27, CGPA(grades))
	assert.Equal(t, "student-1", summary.StudentID)
}

func TestCGPAOrderIndependent(t *testing.T) {
	grades := []models.CourseGrade{
		gradedCourse("sem-3", 7, 3),
		gradedCourse("sem-1", 10, 4),
		gradedCourse("sem-2", 4, 2),
		gradedCourse("sem-1", 3, 3),
		gradedCourse("sem-3", 9, 4),
	}
	expected := Summarize("s", grades)

	reversed := make([]models.CourseGrade, len(grades))
	for i := range grades {
		reversed[len(grades)-1-i] = grades[i]
	}
	assert.Equal(t, expected, Summarize("s", reversed))

	rotated := append(append([]models.CourseGrade{}, grades[2:]...), grades[:2]...)
	assert.Equal(t, expected, Summarize("s", rotated))
}

func TestSummarizeNoGradedCredits(t *testing.T) {
	summary := Summarize("s", []models.CourseGrade{{SemesterID: "x", Status: models.GradeStatusIncomplete, Credits: credits(3)}})
	assert.Empty(t, summary.Semesters)
	assert.Equal(t, 0.0, summary.CGPA)
	assert.Equal(t, 0, summary.TotalCredits)
}
