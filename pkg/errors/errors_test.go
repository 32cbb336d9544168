package errors

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloneKeepsIdentity(t *testing.T) {
	err := Clone(ErrNotFound, "student not found")
	assert.Equal(t, "student not found", err.Message)
	assert.Equal(t, "resource not found", ErrNotFound.Message)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrConflict))
}

func TestWrapUnwraps(t *testing.T) {
	err := Wrap(sql.ErrNoRows, ErrInternal.Code, ErrInternal.Status, "failed to load")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.True(t, errors.Is(fmt.Errorf("outer: %w", err), ErrInternal))
	assert.Equal(t, "failed to load: sql: no rows in result set", err.Error())
}

func TestFromError(t *testing.T) {
	assert.Nil(t, FromError(nil))

	typed := FromError(fmt.Errorf("ctx: %w", ErrCapacityExceeded))
	assert.Equal(t, http.StatusConflict, typed.Status)
	assert.Equal(t, "CAPACITY_EXCEEDED", typed.Code)

	plain := FromError(errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, plain.Status)

	timeout := FromError(fmt.Errorf("query: %w", context.DeadlineExceeded))
	assert.Equal(t, http.StatusGatewayTimeout, timeout.Status)
	assert.True(t, errors.Is(timeout, context.DeadlineExceeded))
}

func TestWithDetailsCopies(t *testing.T) {
	base := Clone(ErrValidation, "bad score")
	detailed := base.WithDetails(map[string]string{"field": "weight"})
	assert.Equal(t, "weight", detailed.Details["field"])
	assert.Nil(t, base.Details)
	assert.True(t, errors.Is(detailed, ErrValidation))

	more := detailed.WithDetails(map[string]string{"record_id": "s1"})
	assert.Len(t, more.Details, 2)
	assert.Len(t, detailed.Details, 1)
}
