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

const enrollmentColumns = `e.id, e.student_id, e.class_id, e.academic_year_id, e.status, e.enrolled_at, e.withdrawn_at`

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	var conds conditions
	if filter.StudentID != "" {
		conds.add("e.student_id = $%d", filter.StudentID)
	}
	if filter.ClassID != "" {
		conds.add("e.class_id = $%d", filter.ClassID)
	}
	if filter.AcademicYearID != "" {
		conds.add("e.academic_year_id = $%d", filter.AcademicYearID)
	}
	if filter.Status != "" {
		conds.add("e.status = $%d", filter.Status)
	}
	base := `FROM enrollments e
JOIN students s ON s.id = e.student_id
JOIN classes c ON c.id = e.class_id` + conds.where("WHERE")
	order := orderBy(map[string]string{
		"enrolled_at":  "e.enrolled_at",
		"student_name": "s.full_name",
		"class_name":   "c.name",
	}, filter.SortBy, filter.SortOrder, "enrolled_at", "DESC")
	limit, offset := paginate(filter.Page, filter.PageSize)

	query := fmt.Sprintf(`SELECT %s, s.full_name AS student_name, s.student_number, c.name AS class_name %s ORDER BY %s LIMIT %d OFFSET %d`,
		enrollmentColumns, base, order, limit, offset)
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, conds.args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, conds.args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, `SELECT `+enrollmentColumns+` FROM enrollments e WHERE e.id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find enrollment: %w", err)
	}
	return &enrollment, nil
}

// ExistsActiveInClass reports whether the student is actively enrolled in the class.
func (r *EnrollmentRepository) ExistsActiveInClass(ctx context.Context, studentID, classID string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM enrollments WHERE student_id = $1 AND class_id = $2 AND status = 'ACTIVE')`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, studentID, classID); err != nil {
		return false, fmt.Errorf("check active enrollment: %w", err)
	}
	return exists, nil
}

// ListActiveStudents returns the students actively enrolled in a class,
// ordered by name.
func (r *EnrollmentRepository) ListActiveStudents(ctx context.Context, classID string) ([]models.StudentRef, error) {
	const query = `SELECT s.id, s.student_number, s.full_name FROM enrollments e
JOIN students s ON s.id = e.student_id
WHERE e.class_id = $1 AND e.status = 'ACTIVE'
ORDER BY s.full_name, s.student_number`
	var students []models.StudentRef
	if err := r.db.SelectContext(ctx, &students, query, classID); err != nil {
		return nil, fmt.Errorf("list class students: %w", err)
	}
	return students, nil
}

// Enroll inserts an ACTIVE enrollment after locking the class row and
// re-checking uniqueness within the academic year and the class capacity.
func (r *EnrollmentRepository) Enroll(ctx context.Context, enrollment *models.Enrollment) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin enroll tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	yearID, err := lockClassSeat(ctx, tx, enrollment.ClassID, enrollment.StudentID, "")
	if err != nil {
		return err
	}

	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	enrollment.AcademicYearID = yearID
	enrollment.Status = models.EnrollmentStatusActive
	enrollment.EnrolledAt = time.Now().UTC()
	enrollment.WithdrawnAt = nil
	const insert = `INSERT INTO enrollments (id, student_id, class_id, academic_year_id, status, enrolled_at, withdrawn_at)
VALUES (:id, :student_id, :class_id, :academic_year_id, :status, :enrolled_at, :withdrawn_at)`
	if _, err = tx.NamedExecContext(ctx, insert, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit enroll tx: %w", err)
	}
	return nil
}

// Transfer moves an ACTIVE enrollment to another class under the same
// guards as Enroll. The target class must belong to the same academic year.
func (r *EnrollmentRepository) Transfer(ctx context.Context, id, targetClassID string) (enrollment *models.Enrollment, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transfer tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current models.Enrollment
	if err = tx.GetContext(ctx, &current, `SELECT `+enrollmentColumns+` FROM enrollments e WHERE e.id = $1 FOR UPDATE`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("lock enrollment: %w", err)
	}
	if current.Status != models.EnrollmentStatusActive {
		return nil, ErrStateConflict
	}

	yearID, err := lockClassSeat(ctx, tx, targetClassID, current.StudentID, current.ID)
	if err != nil {
		return nil, err
	}
	if yearID != current.AcademicYearID {
		err = ErrStateConflict
		return nil, err
	}

	if _, err = tx.ExecContext(ctx, `UPDATE enrollments SET class_id = $2 WHERE id = $1`, id, targetClassID); err != nil {
		return nil, fmt.Errorf("transfer enrollment: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transfer tx: %w", err)
	}
	current.ClassID = targetClassID
	return &current, nil
}

// Withdraw flips an ACTIVE enrollment to WITHDRAWN. It returns
// ErrStateConflict when the enrollment is not active.
func (r *EnrollmentRepository) Withdraw(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE enrollments SET status = $2, withdrawn_at = $3 WHERE id = $1 AND status = $4`,
		id, models.EnrollmentStatusWithdrawn, at, models.EnrollmentStatusActive)
	if err != nil {
		return fmt.Errorf("withdraw enrollment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("withdraw enrollment: %w", err)
	}
	if affected == 0 {
		return ErrStateConflict
	}
	return nil
}

// lockClassSeat locks the class row, then checks that the student holds no
// other ACTIVE enrollment in the class's academic year and that a seat is
// free. It returns the class's academic year.
func lockClassSeat(ctx context.Context, tx *sqlx.Tx, classID, studentID, excludeEnrollmentID string) (string, error) {
	var class struct {
		AcademicYearID string `db:"academic_year_id"`
		Capacity       int    `db:"capacity"`
	}
	if err := tx.GetContext(ctx, &class, `SELECT academic_year_id, capacity FROM classes WHERE id = $1 FOR UPDATE`, classID); err != nil {
		if err == sql.ErrNoRows {
			return "", err
		}
		return "", fmt.Errorf("lock class: %w", err)
	}

	var duplicate bool
	const dupQuery = `SELECT EXISTS(SELECT 1 FROM enrollments WHERE student_id = $1 AND academic_year_id = $2 AND status = 'ACTIVE' AND id <> $3)`
	if err := tx.GetContext(ctx, &duplicate, dupQuery, studentID, class.AcademicYearID, excludeEnrollmentID); err != nil {
		return "", fmt.Errorf("check enrollment uniqueness: %w", err)
	}
	if duplicate {
		return "", ErrDuplicate
	}

	if class.Capacity > 0 {
		var active int
		if err := tx.GetContext(ctx, &active, `SELECT COUNT(*) FROM enrollments WHERE class_id = $1 AND status = 'ACTIVE'`, classID); err != nil {
			return "", fmt.Errorf("count class enrollments: %w", err)
		}
		if active >= class.Capacity {
			return "", ErrCapacity
		}
	}
	return class.AcademicYearID, nil
}
