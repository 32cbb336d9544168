package models

import "time"

// Class represents a class group within an academic year.
type Class struct {
	ID                string    `db:"id" json:"id"`
	Name              string    `db:"name" json:"name"`
	GradeLevelID      string    `db:"grade_level_id" json:"grade_level_id"`
	AcademicYearID    string    `db:"academic_year_id" json:"academic_year_id"`
	HomeroomTeacherID *string   `db:"homeroom_teacher_id" json:"homeroom_teacher_id,omitempty"`
	Capacity          int       `db:"capacity" json:"capacity"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// ClassDetail extends Class with display names and the current headcount.
type ClassDetail struct {
	Class
	GradeLevelName      string  `db:"grade_level_name" json:"grade_level_name"`
	AcademicYearName    string  `db:"academic_year_name" json:"academic_year_name"`
	HomeroomTeacherName *string `db:"homeroom_teacher_name" json:"homeroom_teacher_name,omitempty"`
	ActiveEnrollments   int     `db:"active_enrollments" json:"active_enrollments"`
}

// ClassFilter defines filter criteria for listing classes.
type ClassFilter struct {
	AcademicYearID string
	GradeLevelID   string
	Search         string
	Page           int
	PageSize       int
	SortBy         string
	SortOrder      string
}
