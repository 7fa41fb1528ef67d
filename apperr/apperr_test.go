package apperr_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/chatlinkhq/chatlink/server/apperr"
	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{apperr.Validation("bad input"), http.StatusBadRequest},
		{apperr.Unauthenticated("no"), http.StatusUnauthorized},
		{apperr.Forbidden("no"), http.StatusForbidden},
		{apperr.NotFound("missing"), http.StatusNotFound},
		{apperr.Conflict("dup"), http.StatusConflict},
		{apperr.Internal("broken", nil), http.StatusInternalServerError},
		{errors.New("unclassified"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, apperr.HTTPStatus(tc.err), "%v", tc.err)
	}
}

func TestMessageOfHidesInternalCause(t *testing.T) {
	err := apperr.Internal("db exploded", errors.New("connection refused: 10.0.0.5"))
	assert.Equal(t, "internal error", apperr.MessageOf(err))
	assert.Equal(t, "internal error", apperr.MessageOf(errors.New("raw")))

	assert.Equal(t, "dup", apperr.MessageOf(apperr.Conflict("dup")))
}

func TestUnwrapPreservesCause(t *testing.T) {
	cause := errors.New("root cause")
	err := apperr.Internal("wrapper", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "root cause")
}

func TestCodeOfWrappedError(t *testing.T) {
	err := fmt.Errorf("outer: %w", apperr.NotFound("gone"))
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}
