package errors

import (
	"database/sql"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromErrorKeepsTypedErrors(t *testing.T) {
	wrapped := Wrap(sql.ErrNoRows, ErrNotFound.Code, ErrNotFound.Status, "conflict not found")

	got := FromError(wrapped)
	assert.Equal(t, "NOT_FOUND", got.Code)
	assert.Equal(t, http.StatusNotFound, got.Status)
	assert.True(t, errors.Is(got, sql.ErrNoRows))
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	got := FromError(errors.New("boom"))
	assert.Equal(t, ErrInternal.Code, got.Code)
	assert.Equal(t, "internal server error: boom", got.Error())
	assert.Nil(t, FromError(nil))
}

func TestCloneOverridesMessageOnly(t *testing.T) {
	clone := Clone(ErrActivePlanNotFound, "")
	assert.Equal(t, "active plan not found", clone.Message)
	assert.NotSame(t, ErrActivePlanNotFound, clone)

	custom := Clone(ErrValidation, "suggestion index out of range")
	assert.Equal(t, "suggestion index out of range", custom.Message)
	assert.Equal(t, ErrValidation.Status, custom.Status)
}
