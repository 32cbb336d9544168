package models

import "time"

// Subject represents an academic subject.
type Subject struct {
	ID           string    `db:"id" json:"id"`
	Code         string    `db:"code" json:"code"`
	Name         string    `db:"name" json:"name"`
	GradeLevelID *string   `db:"grade_level_id" json:"grade_level_id,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// SubjectFilter captures supported filters for listing subjects.
type SubjectFilter struct {
	GradeLevelID string
	Search       string
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}
