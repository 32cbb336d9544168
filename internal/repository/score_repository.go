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

const scoreColumns = `sc.id, sc.student_id, sc.subject_id, sc.class_id, sc.semester_id, sc.category, sc.title, sc.raw_score, sc.max_score, sc.weight, sc.recorded_by, sc.created_at, sc.updated_at`

const scoreDetailFrom = `FROM scores sc
JOIN subjects sub ON sub.id = sc.subject_id
JOIN students st ON st.id = sc.student_id`

// ScoreRepository persists score records.
type ScoreRepository struct {
	db *sqlx.DB
}

// NewScoreRepository constructs a score repository.
func NewScoreRepository(db *sqlx.DB) *ScoreRepository {
	return &ScoreRepository{db: db}
}

func scoreConditions(filter models.ScoreFilter) conditions {
	var conds conditions
	if filter.StudentID != "" {
		conds.add("sc.student_id = $%d", filter.StudentID)
	}
	if filter.SubjectID != "" {
		conds.add("sc.subject_id = $%d", filter.SubjectID)
	}
	if filter.ClassID != "" {
		conds.add("sc.class_id = $%d", filter.ClassID)
	}
	if filter.SemesterID != "" {
		conds.add("sc.semester_id = $%d", filter.SemesterID)
	}
	if filter.Category != "" {
		conds.add("sc.category = $%d", filter.Category)
	}
	return conds
}

// List returns a page of scores with subject and student names.
func (r *ScoreRepository) List(ctx context.Context, filter models.ScoreFilter) ([]models.ScoreDetail, int, error) {
	conds := scoreConditions(filter)
	base := scoreDetailFrom + conds.where("WHERE")
	order := orderBy(map[string]string{
		"created_at":   "sc.created_at",
		"title":        "sc.title",
		"subject_name": "sub.name",
		"student_name": "st.full_name",
	}, filter.SortBy, filter.SortOrder, "created_at", "DESC")
	limit, offset := paginate(filter.Page, filter.PageSize)

	query := fmt.Sprintf(`SELECT %s, sub.code AS subject_code, sub.name AS subject_name, st.student_number, st.full_name AS student_name %s ORDER BY %s LIMIT %d OFFSET %d`,
		scoreColumns, base, order, limit, offset)
	var scores []models.ScoreDetail
	if err := r.db.SelectContext(ctx, &scores, query, conds.args...); err != nil {
		return nil, 0, fmt.Errorf("list scores: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, conds.args...); err != nil {
		return nil, 0, fmt.Errorf("count scores: %w", err)
	}
	return scores, total, nil
}

// Snapshot returns every score matching the filter in a single statement so
// that a report is computed from one consistent read. Rows are ordered by
// subject name, student name and creation time.
func (r *ScoreRepository) Snapshot(ctx context.Context, filter models.ScoreFilter) ([]models.ScoreDetail, error) {
	conds := scoreConditions(filter)
	query := fmt.Sprintf(`SELECT %s, sub.code AS subject_code, sub.name AS subject_name, st.student_number, st.full_name AS student_name %s%s ORDER BY sub.name, st.full_name, sc.created_at, sc.id`,
		scoreColumns, scoreDetailFrom, conds.where("WHERE"))
	var scores []models.ScoreDetail
	if err := r.db.SelectContext(ctx, &scores, query, conds.args...); err != nil {
		return nil, fmt.Errorf("snapshot scores: %w", err)
	}
	return scores, nil
}

// FindByID returns a score.
func (r *ScoreRepository) FindByID(ctx context.Context, id string) (*models.Score, error) {
	var score models.Score
	if err := r.db.GetContext(ctx, &score, `SELECT `+scoreColumns+` FROM scores sc WHERE sc.id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find score: %w", err)
	}
	return &score, nil
}

// Create inserts a score.
func (r *ScoreRepository) Create(ctx context.Context, score *models.Score) error {
	if score.ID == "" {
		score.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	score.CreatedAt, score.UpdatedAt = now, now
	const query = `INSERT INTO scores (id, student_id, subject_id, class_id, semester_id, category, title, raw_score, max_score, weight, recorded_by, created_at, updated_at)
VALUES (:id, :student_id, :subject_id, :class_id, :semester_id, :category, :title, :raw_score, :max_score, :weight, :recorded_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, score); err != nil {
		return fmt.Errorf("create score: %w", err)
	}
	return nil
}

// Update rewrites the assessment fields of a score.
func (r *ScoreRepository) Update(ctx context.Context, score *models.Score) error {
	score.UpdatedAt = time.Now().UTC()
	const query = `UPDATE scores SET category = :category, title = :title, raw_score = :raw_score, max_score = :max_score, weight = :weight, recorded_by = :recorded_by, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, score); err != nil {
		return fmt.Errorf("update score: %w", err)
	}
	return nil
}

// Delete removes a score.
func (r *ScoreRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM scores WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete score: %w", err)
	}
	return nil
}
