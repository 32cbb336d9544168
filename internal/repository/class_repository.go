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

const classDetailSelect = `SELECT c.id, c.name, c.grade_level_id, c.academic_year_id, c.homeroom_teacher_id, c.capacity, c.created_at, c.updated_at,
gl.name AS grade_level_name, ay.name AS academic_year_name, u.full_name AS homeroom_teacher_name,
(SELECT COUNT(*) FROM enrollments e WHERE e.class_id = c.id AND e.status = 'ACTIVE') AS active_enrollments`

const classDetailFrom = `FROM classes c
JOIN grade_levels gl ON gl.id = c.grade_level_id
JOIN academic_years ay ON ay.id = c.academic_year_id
LEFT JOIN users u ON u.id = c.homeroom_teacher_id`

// ClassRepository manages persistence for classes.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs a new class repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// List returns classes with display names and headcount.
func (r *ClassRepository) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, int, error) {
	var conds conditions
	if filter.AcademicYearID != "" {
		conds.add("c.academic_year_id = $%d", filter.AcademicYearID)
	}
	if filter.GradeLevelID != "" {
		conds.add("c.grade_level_id = $%d", filter.GradeLevelID)
	}
	if filter.Search != "" {
		conds.add("LOWER(c.name) LIKE $%d", likePattern(filter.Search))
	}
	where := conds.where("WHERE")
	order := orderBy(map[string]string{
		"name":        "c.name",
		"grade_level": "gl.level",
		"capacity":    "c.capacity",
		"created_at":  "c.created_at",
	}, filter.SortBy, filter.SortOrder, "name", "ASC")
	limit, offset := paginate(filter.Page, filter.PageSize)

	query := fmt.Sprintf("%s %s%s ORDER BY %s LIMIT %d OFFSET %d", classDetailSelect, classDetailFrom, where, order, limit, offset)
	var classes []models.ClassDetail
	if err := r.db.SelectContext(ctx, &classes, query, conds.args...); err != nil {
		return nil, 0, fmt.Errorf("list classes: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM classes c"+where, conds.args...); err != nil {
		return nil, 0, fmt.Errorf("count classes: %w", err)
	}
	return classes, total, nil
}

// FindByID returns a class record by ID.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.Class, error) {
	const query = `SELECT id, name, grade_level_id, academic_year_id, homeroom_teacher_id, capacity, created_at, updated_at FROM classes WHERE id = $1`
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find class: %w", err)
	}
	return &class, nil
}

// FindDetailByID returns a class with joined names.
func (r *ClassRepository) FindDetailByID(ctx context.Context, id string) (*models.ClassDetail, error) {
	query := classDetailSelect + " " + classDetailFrom + " WHERE c.id = $1"
	var detail models.ClassDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find class detail: %w", err)
	}
	return &detail, nil
}

// ExistsByName checks for a same-named class in the academic year.
func (r *ClassRepository) ExistsByName(ctx context.Context, academicYearID, name, excludeID string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM classes WHERE academic_year_id = $1 AND LOWER(name) = LOWER($2) AND id <> $3)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, academicYearID, name, excludeID); err != nil {
		return false, fmt.Errorf("check class name: %w", err)
	}
	return exists, nil
}

// Create inserts a class.
func (r *ClassRepository) Create(ctx context.Context, class *models.Class) error {
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	class.CreatedAt, class.UpdatedAt = now, now
	const query = `INSERT INTO classes (id, name, grade_level_id, academic_year_id, homeroom_teacher_id, capacity, created_at, updated_at) VALUES (:id, :name, :grade_level_id, :academic_year_id, :homeroom_teacher_id, :capacity, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	return nil
}

// Update modifies a class. The academic year is immutable once created.
func (r *ClassRepository) Update(ctx context.Context, class *models.Class) error {
	class.UpdatedAt = time.Now().UTC()
	const query = `UPDATE classes SET name = :name, grade_level_id = :grade_level_id, homeroom_teacher_id = :homeroom_teacher_id, capacity = :capacity, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("update class: %w", err)
	}
	return nil
}

// Delete removes a class.
func (r *ClassRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM classes WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete class: %w", err)
	}
	return nil
}

// CountActiveEnrollments returns the number of ACTIVE enrollments of a class.
func (r *ClassRepository) CountActiveEnrollments(ctx context.Context, id string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM enrollments WHERE class_id = $1 AND status = 'ACTIVE'`, id); err != nil {
		return 0, fmt.Errorf("count class enrollments: %w", err)
	}
	return count, nil
}
