// Package academic holds the grading, enrollment and exam scheduling rules.
// Every function here is pure: callers load records, pass them in as values
// and persist whatever comes back.
package academic

import (
	"math"
	"sort"

	"github.com/noah-isme/univ-academic-api/internal/models"
)

// ScoreResult is the derived part of a grade record.
type ScoreResult struct {
	TotalScore  float64 `json:"total_score"`
	LetterGrade string  `json:"letter_grade"`
	GradePoint  float64 `json:"grade_point"`
	// Complete is true when every component carries a score.
	Complete bool `json:"complete"`
}

type gradeBand struct {
	min    float64
	letter string
	point  float64
}

// Inclusive lower bounds, highest first.
var gradeBands = []gradeBand{
	{90, "A+", 10},
	{85, "A", 9},
	{80, "A-", 8},
	{75, "B+", 7},
	{70, "B", 6},
	{65, "B-", 5},
	{60, "C+", 4},
	{55, "C", 3},
	{50, "C-", 2},
	{40, "D", 1},
}

// AggregateScore turns weighted components into a total score, letter grade and
// grade point.
//
// Percentages of recorded components are accumulated against their weight
// without renormalising by the recorded weight sum, so a grade with only the
// midterm recorded yields a deflated total until the remaining components land.
func AggregateScore(components []models.GradeComponent) ScoreResult {
	var (
		weightedSum float64
		recorded    int
	)
	// Fixed accumulation order keeps the float sum identical for any permutation.
	for _, c := range canonicalOrder(components) {
		if !c.Recorded() || c.MaxScore <= 0 {
			continue
		}
		percentage := *c.Score / c.MaxScore * 100
		weightedSum += percentage * c.Weight / 100
		recorded++
	}

	total := 0.0
	if recorded > 0 {
		total = Round2(weightedSum)
	}
	letter, point := LetterGrade(total)
	return ScoreResult{
		TotalScore:  total,
		LetterGrade: letter,
		GradePoint:  point,
		Complete:    len(components) > 0 && recorded == len(components),
	}
}

// LetterGrade maps a 0-100 total onto the letter and 10-point scale.
func LetterGrade(total float64) (string, float64) {
	for _, band := range gradeBands {
		if total >= band.min {
			return band.letter, band.point
		}
	}
	return "F", 0
}

// roundingSlack absorbs binary representation error, in hundredths. Inputs are
// short decimals, so a true value is never this close below a half-cent.
const roundingSlack = 1e-6

// Round2 rounds half-up to two decimals as decimal arithmetic would: 16.675 and
// 8.415 round up even though their float64 forms sit just below the midpoint.
func Round2(v float64) float64 {
	return math.Floor(v*100+0.5+roundingSlack) / 100
}

func canonicalOrder(components []models.GradeComponent) []models.GradeComponent {
	ordered := make([]models.GradeComponent, len(components))
	copy(ordered, components)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if a.Weight != b.Weight {
			return a.Weight < b.Weight
		}
		return scoreOf(a) < scoreOf(b)
	})
	return ordered
}

func scoreOf(c models.GradeComponent) float64 {
	if c.Score == nil || c.MaxScore <= 0 {
		return -1
	}
	return *c.Score / c.MaxScore
}

// TotalWeight sums the declared weights of all components.
func TotalWeight(components []models.GradeComponent) float64 {
	var sum float64
	for _, c := range components {
		sum += c.Weight
	}
	return sum
}
