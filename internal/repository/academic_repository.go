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

// AcademicYearRepository persists academic years.
type AcademicYearRepository struct {
	db *sqlx.DB
}

// NewAcademicYearRepository constructs the repository.
func NewAcademicYearRepository(db *sqlx.DB) *AcademicYearRepository {
	return &AcademicYearRepository{db: db}
}

const academicYearColumns = `id, name, start_date, end_date, is_active, created_at, updated_at`

// List returns academic years matching the filter.
func (r *AcademicYearRepository) List(ctx context.Context, filter models.AcademicYearFilter) ([]models.AcademicYear, int, error) {
	var conds conditions
	if filter.IsActive != nil {
		conds.add("is_active = $%d", *filter.IsActive)
	}
	if filter.Search != "" {
		conds.add("LOWER(name) LIKE $%d", likePattern(filter.Search))
	}
	base := "FROM academic_years" + conds.where("WHERE")
	order := orderBy(map[string]string{
		"name":       "name",
		"start_date": "start_date",
		"created_at": "created_at",
	}, filter.SortBy, filter.SortOrder, "start_date", "DESC")
	limit, offset := paginate(filter.Page, filter.PageSize)

	var years []models.AcademicYear
	query := fmt.Sprintf("SELECT %s %s ORDER BY %s LIMIT %d OFFSET %d", academicYearColumns, base, order, limit, offset)
	if err := r.db.SelectContext(ctx, &years, query, conds.args...); err != nil {
		return nil, 0, fmt.Errorf("list academic years: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, conds.args...); err != nil {
		return nil, 0, fmt.Errorf("count academic years: %w", err)
	}
	return years, total, nil
}

// FindByID returns an academic year.
func (r *AcademicYearRepository) FindByID(ctx context.Context, id string) (*models.AcademicYear, error) {
	var year models.AcademicYear
	if err := r.db.GetContext(ctx, &year, `SELECT `+academicYearColumns+` FROM academic_years WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find academic year: %w", err)
	}
	return &year, nil
}

// ExistsByName reports whether another year already uses name.
func (r *AcademicYearRepository) ExistsByName(ctx context.Context, name, excludeID string) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM academic_years WHERE LOWER(name) = LOWER($1) AND id <> $2)`, name, excludeID); err != nil {
		return false, fmt.Errorf("check academic year name: %w", err)
	}
	return exists, nil
}

// Create inserts an academic year.
func (r *AcademicYearRepository) Create(ctx context.Context, year *models.AcademicYear) error {
	if year.ID == "" {
		year.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	year.CreatedAt, year.UpdatedAt = now, now
	const query = `INSERT INTO academic_years (id, name, start_date, end_date, is_active, created_at, updated_at) VALUES (:id, :name, :start_date, :end_date, :is_active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, year); err != nil {
		return fmt.Errorf("create academic year: %w", err)
	}
	return nil
}

// Update modifies an academic year.
func (r *AcademicYearRepository) Update(ctx context.Context, year *models.AcademicYear) error {
	year.UpdatedAt = time.Now().UTC()
	const query = `UPDATE academic_years SET name = :name, start_date = :start_date, end_date = :end_date, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, year); err != nil {
		return fmt.Errorf("update academic year: %w", err)
	}
	return nil
}

// Delete removes an academic year.
func (r *AcademicYearRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM academic_years WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete academic year: %w", err)
	}
	return nil
}

// HasClasses reports whether classes still reference the year.
func (r *AcademicYearRepository) HasClasses(ctx context.Context, id string) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM classes WHERE academic_year_id = $1)`, id); err != nil {
		return false, fmt.Errorf("check academic year classes: %w", err)
	}
	return exists, nil
}

// Activate makes id the only active academic year.
func (r *AcademicYearRepository) Activate(ctx context.Context, id string) error {
	return activateExclusive(ctx, r.db, "academic_years", id)
}

// SemesterRepository persists semesters.
type SemesterRepository struct {
	db *sqlx.DB
}

// NewSemesterRepository constructs the repository.
func NewSemesterRepository(db *sqlx.DB) *SemesterRepository {
	return &SemesterRepository{db: db}
}

const semesterColumns = `id, academic_year_id, name, number, start_date, end_date, is_active, created_at, updated_at`

// List returns semesters matching the filter.
func (r *SemesterRepository) List(ctx context.Context, filter models.SemesterFilter) ([]models.Semester, int, error) {
	var conds conditions
	if filter.AcademicYearID != "" {
		conds.add("academic_year_id = $%d", filter.AcademicYearID)
	}
	if filter.IsActive != nil {
		conds.add("is_active = $%d", *filter.IsActive)
	}
	base := "FROM semesters" + conds.where("WHERE")
	order := orderBy(map[string]string{
		"start_date": "start_date",
		"number":     "number",
		"name":       "name",
	}, filter.SortBy, filter.SortOrder, "start_date", "DESC")
	limit, offset := paginate(filter.Page, filter.PageSize)

	var semesters []models.Semester
	query := fmt.Sprintf("SELECT %s %s ORDER BY %s LIMIT %d OFFSET %d", semesterColumns, base, order, limit, offset)
	if err := r.db.SelectContext(ctx, &semesters, query, conds.args...); err != nil {
		return nil, 0, fmt.Errorf("list semesters: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, conds.args...); err != nil {
		return nil, 0, fmt.Errorf("count semesters: %w", err)
	}
	return semesters, total, nil
}

// FindByID returns a semester.
func (r *SemesterRepository) FindByID(ctx context.Context, id string) (*models.Semester, error) {
	var semester models.Semester
	if err := r.db.GetContext(ctx, &semester, `SELECT `+semesterColumns+` FROM semesters WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find semester: %w", err)
	}
	return &semester, nil
}

// ExistsNumber reports whether the year already has a semester with number.
func (r *SemesterRepository) ExistsNumber(ctx context.Context, academicYearID string, number int, excludeID string) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM semesters WHERE academic_year_id = $1 AND number = $2 AND id <> $3)`, academicYearID, number, excludeID); err != nil {
		return false, fmt.Errorf("check semester number: %w", err)
	}
	return exists, nil
}

// Create inserts a semester.
func (r *SemesterRepository) Create(ctx context.Context, semester *models.Semester) error {
	if semester.ID == "" {
		semester.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	semester.CreatedAt, semester.UpdatedAt = now, now
	const query = `INSERT INTO semesters (id, academic_year_id, name, number, start_date, end_date, is_active, created_at, updated_at) VALUES (:id, :academic_year_id, :name, :number, :start_date, :end_date, :is_active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, semester); err != nil {
		return fmt.Errorf("create semester: %w", err)
	}
	return nil
}

// Update modifies a semester.
func (r *SemesterRepository) Update(ctx context.Context, semester *models.Semester) error {
	semester.UpdatedAt = time.Now().UTC()
	const query = `UPDATE semesters SET name = :name, number = :number, start_date = :start_date, end_date = :end_date, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, semester); err != nil {
		return fmt.Errorf("update semester: %w", err)
	}
	return nil
}

// Delete removes a semester.
func (r *SemesterRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM semesters WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete semester: %w", err)
	}
	return nil
}

// HasScores reports whether scores reference the semester.
func (r *SemesterRepository) HasScores(ctx context.Context, id string) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM scores WHERE semester_id = $1)`, id); err != nil {
		return false, fmt.Errorf("check semester scores: %w", err)
	}
	return exists, nil
}

// Activate makes id the only active semester.
func (r *SemesterRepository) Activate(ctx context.Context, id string) error {
	return activateExclusive(ctx, r.db, "semesters", id)
}

// GradeLevelRepository persists grade levels.
type GradeLevelRepository struct {
	db *sqlx.DB
}

// NewGradeLevelRepository constructs the repository.
func NewGradeLevelRepository(db *sqlx.DB) *GradeLevelRepository {
	return &GradeLevelRepository{db: db}
}

// List returns every grade level ordered by level.
func (r *GradeLevelRepository) List(ctx context.Context) ([]models.GradeLevel, error) {
	var levels []models.GradeLevel
	if err := r.db.SelectContext(ctx, &levels, `SELECT id, name, level, created_at, updated_at FROM grade_levels ORDER BY level ASC`); err != nil {
		return nil, fmt.Errorf("list grade levels: %w", err)
	}
	return levels, nil
}

// FindByID returns a grade level.
func (r *GradeLevelRepository) FindByID(ctx context.Context, id string) (*models.GradeLevel, error) {
	var level models.GradeLevel
	if err := r.db.GetContext(ctx, &level, `SELECT id, name, level, created_at, updated_at FROM grade_levels WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find grade level: %w", err)
	}
	return &level, nil
}

// ExistsLevel reports whether another grade level uses the numeric level.
func (r *GradeLevelRepository) ExistsLevel(ctx context.Context, level int, excludeID string) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM grade_levels WHERE level = $1 AND id <> $2)`, level, excludeID); err != nil {
		return false, fmt.Errorf("check grade level: %w", err)
	}
	return exists, nil
}

// Create inserts a grade level.
func (r *GradeLevelRepository) Create(ctx context.Context, level *models.GradeLevel) error {
	if level.ID == "" {
		level.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	level.CreatedAt, level.UpdatedAt = now, now
	const query = `INSERT INTO grade_levels (id, name, level, created_at, updated_at) VALUES (:id, :name, :level, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, level); err != nil {
		return fmt.Errorf("create grade level: %w", err)
	}
	return nil
}

// Update modifies a grade level.
func (r *GradeLevelRepository) Update(ctx context.Context, level *models.GradeLevel) error {
	level.UpdatedAt = time.Now().UTC()
	const query = `UPDATE grade_levels SET name = :name, level = :level, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, level); err != nil {
		return fmt.Errorf("update grade level: %w", err)
	}
	return nil
}

// Delete removes a grade level.
func (r *GradeLevelRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM grade_levels WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete grade level: %w", err)
	}
	return nil
}

// InUse reports whether classes or subjects reference the grade level.
func (r *GradeLevelRepository) InUse(ctx context.Context, id string) (bool, error) {
	var exists bool
	const query = `SELECT EXISTS(SELECT 1 FROM classes WHERE grade_level_id = $1) OR EXISTS(SELECT 1 FROM subjects WHERE grade_level_id = $1)`
	if err := r.db.GetContext(ctx, &exists, query, id); err != nil {
		return false, fmt.Errorf("check grade level usage: %w", err)
	}
	return exists, nil
}

// activateExclusive flips is_active so that only id is active in table.
func activateExclusive(ctx context.Context, db *sqlx.DB, table, id string) (err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin activate %s: %w", table, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	if _, err = tx.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET is_active = FALSE, updated_at = $2 WHERE is_active = TRUE AND id <> $1`, table), id, now); err != nil {
		return fmt.Errorf("deactivate %s: %w", table, err)
	}
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET is_active = TRUE, updated_at = $2 WHERE id = $1`, table), id, now)
	if err != nil {
		return fmt.Errorf("activate %s: %w", table, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		err = sql.ErrNoRows
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit activate %s: %w", table, err)
	}
	return nil
}
