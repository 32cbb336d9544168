package models

import (
	"time"

	"github.com/noah-isme/school-admin-api/internal/grading"
)

// Grade report views.
const (
	GradeViewReportCard = "report_card"
	GradeViewGradebook  = "gradebook"
)

// StudentRef identifies a student in reports.
type StudentRef struct {
	ID            string `db:"id" json:"id"`
	StudentNumber string `db:"student_number" json:"student_number"`
	FullName      string `db:"full_name" json:"full_name"`
}

// NamedRef identifies a class, subject or semester in reports.
type NamedRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SubjectGrade is the summary of one subject on a report card.
type SubjectGrade struct {
	SubjectID   string `json:"subject_id"`
	SubjectCode string `json:"subject_code"`
	SubjectName string `json:"subject_name"`
	grading.Summary
}

// ReportCard is the per-student view grouped by subject.
type ReportCard struct {
	Student        StudentRef     `json:"student"`
	Semester       NamedRef       `json:"semester"`
	Subjects       []SubjectGrade `json:"subjects"`
	OverallAverage float64        `json:"overall_average"`
	OverallLetter  string         `json:"overall_letter"`
	GeneratedAt    time.Time      `json:"generated_at"`
}

// StudentGrade is the summary of one student in a gradebook.
type StudentGrade struct {
	StudentRef
	grading.Summary
}

// GradebookStats aggregates final grades across a class.
type GradebookStats struct {
	StudentCount int            `json:"student_count"`
	Average      float64        `json:"average"`
	Highest      float64        `json:"highest"`
	Lowest       float64        `json:"lowest"`
	Distribution map[string]int `json:"distribution"`
}

// Gradebook is the per-class view of one subject grouped by student.
type Gradebook struct {
	Class       NamedRef       `json:"class"`
	Subject     NamedRef       `json:"subject"`
	Semester    NamedRef       `json:"semester"`
	Students    []StudentGrade `json:"students"`
	Statistics  GradebookStats `json:"statistics"`
	GeneratedAt time.Time      `json:"generated_at"`
}
