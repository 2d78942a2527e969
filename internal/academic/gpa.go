package academic

import (
	"sort"

	"github.com/noah-isme/univ-academic-api/internal/models"
)

// countsTowardGPA filters out ungraded rows and rows whose credits could not be resolved.
func countsTowardGPA(g models.CourseGrade) bool {
	if g.Status == models.GradeStatusIncomplete || g.Status == "" {
		return false
	}
	return g.Credits != nil && *g.Credits > 0
}

// SGPA returns the credit-weighted grade point average of the given grades,
// which are expected to belong to one semester. Grade points are integral on
// the 10 point scale, so the accumulation is exact.
func SGPA(grades []models.CourseGrade) float64 {
	sgpa, _ := semesterAverage(grades)
	return sgpa
}

func semesterAverage(grades []models.CourseGrade) (float64, int) {
	var points float64
	var credits int
	for _, g := range grades {
		if !countsTowardGPA(g) {
			continue
		}
		points += g.GradePoint * float64(*g.Credits)
		credits += *g.Credits
	}
	if credits == 0 {
		return 0, 0
	}
	return Round2(points / float64(credits)), credits
}

// SemesterBreakdown groups grades by semester and computes each SGPA, ordered by
// semester id. Semesters without any countable grade are omitted.
func SemesterBreakdown(grades []models.CourseGrade) []models.SemesterGPA {
	groups := make(map[string][]models.CourseGrade)
	for _, g := range grades {
		groups[g.SemesterID] = append(groups[g.SemesterID], g)
	}
	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	result := make([]models.SemesterGPA, 0, len(ids))
	for _, id := range ids {
		sgpa, credits := semesterAverage(groups[id])
		if credits == 0 {
			continue
		}
		result = append(result, models.SemesterGPA{SemesterID: id, Credits: credits, SGPA: sgpa})
	}
	return result
}

// CGPA weights each semester's SGPA by that semester's graded credits.
func CGPA(grades []models.CourseGrade) float64 {
	summary := Summarize("", grades)
	return summary.CGPA
}

// Summarize builds the full GPA view for a student.
func Summarize(studentID string, grades []models.CourseGrade) models.GPASummary {
	semesters := SemesterBreakdown(grades)
	var weighted float64
	var credits int
	for _, s := range semesters {
		weighted += s.SGPA * float64(s.Credits)
		credits += s.Credits
	}
	summary := models.GPASummary{StudentID: studentID, Semesters: semesters, TotalCredits: credits}
	if credits > 0 {
		summary.CGPA = Round2(weighted / float64(credits))
	}
	return summary
}
