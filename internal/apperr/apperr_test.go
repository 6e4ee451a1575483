package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		want   Kind
		status int
	}{
		{name: "plain error", err: errors.New("boom"), want: Internal, status: http.StatusInternalServerError},
		{name: "validation", err: Invalid("bad"), want: Validation, status: http.StatusBadRequest},
		{name: "conflict", err: Duplicate("dup"), want: Conflict, status: http.StatusBadRequest},
		{name: "unauthenticated", err: Unauthorized("who"), want: Unauthenticated, status: http.StatusUnauthorized},
		{name: "forbidden", err: Denied("no"), want: Forbidden, status: http.StatusForbidden},
		{name: "not found", err: Missing("gone"), want: NotFound, status: http.StatusNotFound},
		{name: "wrapped", err: fmt.Errorf("ctx: %w", Missing("gone")), want: NotFound, status: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
			assert.Equal(t, tt.status, Status(KindOf(tt.err)))
		})
	}
}

func TestError_Message(t *testing.T) {
	cause := errors.New("driver exploded")
	err := Wrap(Internal, cause, "")
	assert.Equal(t, "driver exploded", err.Error())
	assert.ErrorIs(t, err, cause)

	assert.Equal(t, "Student not found", Missing("Student not found").Error())
	assert.Nil(t, Wrap(Validation, nil, "x"))
}
