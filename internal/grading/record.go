// Package grading turns score records into weighted grade summaries.
//
// Everything in this package is a pure function of its arguments: there is no
// shared state, no I/O and no locking, so summaries can be computed from any
// number of goroutines at once. Callers fetch a consistent snapshot of score
// records, partition it by the view they need (subject for a report card,
// student for a gradebook) and aggregate each group independently.
package grading

import (
	"fmt"
	"math"
)

// Category tags the kind of assessment a score belongs to.
type Category string

// Supported assessment categories.
const (
	CategoryHomework      Category = "homework"
	CategoryQuiz          Category = "quiz"
	CategoryMidterm       Category = "midterm"
	CategoryFinal         Category = "final"
	CategoryProject       Category = "project"
	CategoryParticipation Category = "participation"
)

var categories = []Category{
	CategoryHomework,
	CategoryQuiz,
	CategoryMidterm,
	CategoryFinal,
	CategoryProject,
	CategoryParticipation,
}

// Categories returns every supported category in display order.
func Categories() []Category {
	return append([]Category(nil), categories...)
}

// Valid reports whether c is one of the supported categories.
func (c Category) Valid() bool {
	for _, known := range categories {
		if c == known {
			return true
		}
	}
	return false
}

// ScoreRecord is a single graded assessment entry.
type ScoreRecord struct {
	ID       string   `json:"id"`
	Category Category `json:"category"`
	RawScore float64  `json:"raw_score"`
	MaxScore float64  `json:"max_score"`
	Weight   float64  `json:"weight"`
}

// ValidationError describes a score record that cannot take part in a grade.
type ValidationError struct {
	RecordID string
	Field    string
	Reason   string
}

func (e *ValidationError) Error() string {
	if e.RecordID != "" {
		return fmt.Sprintf("score record %s: %s %s", e.RecordID, e.Field, e.Reason)
	}
	return fmt.Sprintf("score record: %s %s", e.Field, e.Reason)
}

// NewScoreRecord builds a validated ScoreRecord.
func NewScoreRecord(id string, category Category, rawScore, maxScore, weight float64) (ScoreRecord, error) {
	record := ScoreRecord{ID: id, Category: category, RawScore: rawScore, MaxScore: maxScore, Weight: weight}
	if err := Validate(record); err != nil {
		return ScoreRecord{}, err
	}
	return record, nil
}

// Validate checks the arithmetic preconditions of a record. The category is
// not inspected here; it never takes part in the computation.
func Validate(r ScoreRecord) error {
	switch {
	case math.IsNaN(r.MaxScore) || math.IsInf(r.MaxScore, 0) || r.MaxScore <= 0:
		return &ValidationError{RecordID: r.ID, Field: "max_score", Reason: "must be greater than zero"}
	case math.IsNaN(r.RawScore) || math.IsInf(r.RawScore, 0) || r.RawScore < 0:
		return &ValidationError{RecordID: r.ID, Field: "raw_score", Reason: "must not be negative"}
	case math.IsNaN(r.Weight) || r.Weight < 0 || r.Weight > 1:
		return &ValidationError{RecordID: r.ID, Field: "weight", Reason: "must be between 0 and 1"}
	}
	return nil
}

// Round2 rounds to two fractional digits, half away from zero. All values in
// this package are non-negative, so this is round-half-up.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
