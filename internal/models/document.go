package models

import "time"

// DocumentScope constrains document visibility.
type DocumentScope string

const (
	DocumentScopeGeneral DocumentScope = "GENERAL"
	DocumentScopeClass   DocumentScope = "CLASS"
	DocumentScopeStudent DocumentScope = "STUDENT"
)

// Document is the metadata row of an uploaded file.
type Document struct {
	ID         string        `db:"id" json:"id"`
	Title      string        `db:"title" json:"title"`
	Category   string        `db:"category" json:"category"`
	Scope      DocumentScope `db:"scope" json:"scope"`
	RefID      *string       `db:"ref_id" json:"ref_id,omitempty"`
	FileName   string        `db:"file_name" json:"file_name"`
	FilePath   string        `db:"file_path" json:"-"`
	MimeType   string        `db:"mime_type" json:"mime_type"`
	SizeBytes  int64         `db:"size_bytes" json:"size_bytes"`
	Checksum   string        `db:"checksum" json:"checksum"`
	UploadedBy string        `db:"uploaded_by" json:"uploaded_by"`
	UploadedAt time.Time     `db:"uploaded_at" json:"uploaded_at"`
	DeletedAt  *time.Time    `db:"deleted_at" json:"deleted_at,omitempty"`
}

// DocumentFilter narrows listing queries. VisibleStudentID restricts results
// to GENERAL documents plus STUDENT documents of that student.
type DocumentFilter struct {
	Scope            DocumentScope
	Category         string
	RefID            string
	VisibleStudentID string
	Page             int
	PageSize         int
}

// DocumentDownload is a signed, expiring link to a document.
type DocumentDownload struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}
