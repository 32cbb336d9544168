package grading

// Letter grade bands, inclusive lower bounds.
const (
	thresholdA = 90.0
	thresholdB = 80.0
	thresholdC = 70.0
	thresholdD = 60.0
)

// Letter grades.
const (
	LetterA = "A"
	LetterB = "B"
	LetterC = "C"
	LetterD = "D"
	LetterF = "F"
)

var letters = []string{LetterA, LetterB, LetterC, LetterD, LetterF}

// Letters returns the letter grades from best to worst.
func Letters() []string {
	return append([]string(nil), letters...)
}

// RecordResult is the per-record breakdown of a summary.
type RecordResult struct {
	RecordID             string   `json:"record_id"`
	Category             Category `json:"category"`
	RawScore             float64  `json:"raw_score"`
	MaxScore             float64  `json:"max_score"`
	Weight               float64  `json:"weight"`
	Percentage           float64  `json:"percentage"`
	WeightedContribution float64  `json:"weighted_contribution"`
}

// Summary is the derived grade for one group of score records.
type Summary struct {
	Records            []RecordResult `json:"records"`
	TotalWeightedScore float64        `json:"total_weighted_score"`
	TotalWeight        float64        `json:"total_weight"`
	FinalGrade         float64        `json:"final_grade"`
	LetterGrade        string         `json:"letter_grade"`
}

// EmptySummary is the 0 / F summary of a group without weighted records.
func EmptySummary() Summary {
	return Summary{Records: []RecordResult{}, LetterGrade: LetterF}
}

// ComputePercentage returns raw/max as a percentage rounded to two digits.
func ComputePercentage(r ScoreRecord) (float64, error) {
	if r.MaxScore <= 0 {
		return 0, &ValidationError{RecordID: r.ID, Field: "max_score", Reason: "must be greater than zero"}
	}
	return Round2(r.RawScore / r.MaxScore * 100), nil
}

// ComputeWeightedContribution scales a percentage by its weight. The result
// stays unrounded until the final grade.
func ComputeWeightedContribution(percentage, weight float64) float64 {
	return percentage * weight
}

// LetterGrade maps a final grade onto its letter band.
func LetterGrade(finalGrade float64) string {
	switch {
	case finalGrade >= thresholdA:
		return LetterA
	case finalGrade >= thresholdB:
		return LetterB
	case finalGrade >= thresholdC:
		return LetterC
	case finalGrade >= thresholdD:
		return LetterD
	default:
		return LetterF
	}
}

// Aggregate reduces one already-partitioned group of records into a Summary.
// The whole group is validated first; a single invalid record rejects the
// group and no partial summary is returned. A group whose weights sum to zero
// (including the empty group) yields a 0 / F grade.
func Aggregate(records []ScoreRecord) (Summary, error) {
	for _, r := range records {
		if err := Validate(r); err != nil {
			return Summary{}, err
		}
	}

	summary := EmptySummary()
	summary.Records = make([]RecordResult, 0, len(records))
	for _, r := range records {
		percentage, err := ComputePercentage(r)
		if err != nil {
			return Summary{}, err
		}
		contribution := ComputeWeightedContribution(percentage, r.Weight)
		summary.TotalWeightedScore += contribution
		summary.TotalWeight += r.Weight
		summary.Records = append(summary.Records, RecordResult{
			RecordID:             r.ID,
			Category:             r.Category,
			RawScore:             r.RawScore,
			MaxScore:             r.MaxScore,
			Weight:               r.Weight,
			Percentage:           percentage,
			WeightedContribution: contribution,
		})
	}

	if summary.TotalWeight > 0 {
		summary.FinalGrade = Round2(summary.TotalWeightedScore / summary.TotalWeight)
	}
	summary.LetterGrade = LetterGrade(summary.FinalGrade)
	return summary, nil
}

// Partition groups items by key, returning the keys in first-seen order.
func Partition[T any](items []T, key func(T) string) ([]string, map[string][]T) {
	order := make([]string, 0)
	groups := make(map[string][]T)
	for _, item := range items {
		k := key(item)
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], item)
	}
	return order, groups
}
