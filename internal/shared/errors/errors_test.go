package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		err    *AppError
		status int
		code   string
		target error
	}{
		{"not found", NotFound("patient", "abc"), http.StatusNotFound, "NOT_FOUND", ErrNotFound},
		{"bad request", BadRequest("bad"), http.StatusBadRequest, "BAD_REQUEST", ErrBadRequest},
		{"validation", Validation("invalid", nil), http.StatusUnprocessableEntity, "VALIDATION_ERROR", ErrValidation},
		{"conflict", Conflict("dup"), http.StatusConflict, "CONFLICT", ErrConflict},
		{"forbidden", Forbidden("no"), http.StatusForbidden, "FORBIDDEN", ErrForbidden},
		{"unauthorized", Unauthorized("who"), http.StatusUnauthorized, "UNAUTHORIZED", ErrUnauthorized},
		{"device conflict", DeviceConflict("iud", nil), http.StatusConflict, "CONFLICTING_ACTIVE_DEVICE", ErrDeviceConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.err.HTTPStatus)
			assert.Equal(t, tt.code, tt.err.Code)
			assert.True(t, Is(tt.err, tt.target))
		})
	}
}

func TestDeviceConflictCarriesActiveType(t *testing.T) {
	err := DeviceConflict("implant", []FieldDetail{{Field: "insertion_occurred", Code: "conflicting_active_device"}})
	assert.Equal(t, "implant", err.Details["active_device"])
	assert.Len(t, err.Fields, 1)
	assert.Contains(t, err.Message, "implant")
}

func TestWrapKeepsAppErrorClassification(t *testing.T) {
	orig := NotFound("patient", "abc")
	wrapped := Wrap(orig, "loading history")

	assert.Equal(t, http.StatusNotFound, wrapped.HTTPStatus)
	assert.Equal(t, "loading history: patient not found", wrapped.Message)
	assert.Equal(t, "patient not found", orig.Message, "original must not be mutated")

	plain := Wrap(stderrors.New("connection reset"), "failed to save")
	assert.Equal(t, http.StatusInternalServerError, plain.HTTPStatus)
	assert.Contains(t, plain.Error(), "connection reset")
}

func TestAs(t *testing.T) {
	chained := fmt.Errorf("outer: %w", Conflict("dup"))
	appErr, ok := As(chained)
	require.True(t, ok)
	assert.Equal(t, "CONFLICT", appErr.Code)

	_, ok = As(stderrors.New("plain"))
	assert.False(t, ok)
}
