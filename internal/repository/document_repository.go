package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-admin-api/internal/models"
)

const documentColumns = `id, title, category, scope, ref_id, file_name, file_path, mime_type, size_bytes, checksum, uploaded_by, uploaded_at, deleted_at`

// DocumentRepository stores document metadata.
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository constructs the repository.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create stores metadata for an uploaded file.
func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now().UTC()
	}
	const query = `INSERT INTO documents (` + documentColumns + `)
VALUES (:id, :title, :category, :scope, :ref_id, :file_name, :file_path, :mime_type, :size_bytes, :checksum, :uploaded_by, :uploaded_at, :deleted_at)`
	if _, err := r.db.NamedExecContext(ctx, query, doc); err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

// FindByID retrieves a live document.
func (r *DocumentRepository) FindByID(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	if err := r.db.GetContext(ctx, &doc, `SELECT `+documentColumns+` FROM documents WHERE id = $1 AND deleted_at IS NULL`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find document: %w", err)
	}
	return &doc, nil
}

// List returns live documents, newest first.
func (r *DocumentRepository) List(ctx context.Context, filter models.DocumentFilter) ([]models.Document, int, error) {
	conds := conditions{clauses: []string{"deleted_at IS NULL"}}
	if filter.Scope != "" {
		conds.add("scope = $%d", filter.Scope)
	}
	if filter.Category != "" {
		conds.add("category = $%d", filter.Category)
	}
	if filter.RefID != "" {
		conds.add("ref_id = $%d", filter.RefID)
	}
	if filter.VisibleStudentID != "" {
		conds.add("(scope = 'GENERAL' OR (scope = 'STUDENT' AND ref_id = $%d))", filter.VisibleStudentID)
	}
	base := "FROM documents" + conds.where("WHERE")
	limit, offset := paginate(filter.Page, filter.PageSize)

	var docs []models.Document
	query := fmt.Sprintf("SELECT %s %s ORDER BY uploaded_at DESC LIMIT %d OFFSET %d", documentColumns, base, limit, offset)
	if err := r.db.SelectContext(ctx, &docs, query, conds.args...); err != nil {
		return nil, 0, fmt.Errorf("list documents: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, conds.args...); err != nil {
		return nil, 0, fmt.Errorf("count documents: %w", err)
	}
	return docs, total, nil
}

// SoftDelete marks a document as deleted.
func (r *DocumentRepository) SoftDelete(ctx context.Context, id string, deletedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE documents SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL`, id, deletedAt)
	if err != nil {
		return fmt.Errorf("soft delete document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check document delete rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
