package service

import (
	"database/sql"
	"errors"

	"github.com/noah-isme/school-admin-api/internal/grading"
	appErrors "github.com/noah-isme/school-admin-api/pkg/errors"
)

// lookupError maps a repository lookup failure to NotFound or Internal.
func lookupError(err error, notFound, failed string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	return appErrors.WrapAs(appErrors.ErrInternal, err, failed)
}

func internalError(err error, message string) error {
	return appErrors.WrapAs(appErrors.ErrInternal, err, message)
}

func validationError(err error, message string) error {
	return appErrors.WrapAs(appErrors.ErrValidation, err, message)
}

// gradingError surfaces a grading rejection as a 400 carrying its reason and
// the offending field.
func gradingError(err error) error {
	var vErr *grading.ValidationError
	if errors.As(err, &vErr) {
		details := map[string]string{"field": vErr.Field}
		if vErr.RecordID != "" {
			details["record_id"] = vErr.RecordID
		}
		return appErrors.WrapAs(appErrors.ErrValidation, err, vErr.Error()).WithDetails(details)
	}
	return internalError(err, "failed to compute grade")
}
