package models

import (
	"time"

	"github.com/noah-isme/school-admin-api/internal/grading"
)

// Score is one persisted assessment result.
type Score struct {
	ID         string           `db:"id" json:"id"`
	StudentID  string           `db:"student_id" json:"student_id"`
	SubjectID  string           `db:"subject_id" json:"subject_id"`
	ClassID    string           `db:"class_id" json:"class_id"`
	SemesterID string           `db:"semester_id" json:"semester_id"`
	Category   grading.Category `db:"category" json:"category"`
	Title      string           `db:"title" json:"title"`
	RawScore   float64          `db:"raw_score" json:"raw_score"`
	MaxScore   float64          `db:"max_score" json:"max_score"`
	Weight     float64          `db:"weight" json:"weight"`
	RecordedBy string           `db:"recorded_by" json:"recorded_by"`
	CreatedAt  time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time        `db:"updated_at" json:"updated_at"`
}

// Record converts the row into the grading input.
func (s Score) Record() grading.ScoreRecord {
	return grading.ScoreRecord{
		ID:       s.ID,
		Category: s.Category,
		RawScore: s.RawScore,
		MaxScore: s.MaxScore,
		Weight:   s.Weight,
	}
}

// ScoreDetail joins a score with the names needed by reports.
type ScoreDetail struct {
	Score
	SubjectCode   string `db:"subject_code" json:"subject_code"`
	SubjectName   string `db:"subject_name" json:"subject_name"`
	StudentNumber string `db:"student_number" json:"student_number"`
	StudentName   string `db:"student_name" json:"student_name"`
}

// ScoreFilter narrows score listings and report snapshots.
type ScoreFilter struct {
	StudentID  string
	SubjectID  string
	ClassID    string
	SemesterID string
	Category   grading.Category
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
