package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesOnCode(t *testing.T) {
	err := fmt.Errorf("handler: %w", InvalidMessage("body or attachments required"))
	assert.ErrorIs(t, err, ErrInvalidMessage)
	assert.NotErrorIs(t, err, ErrDeliveryFailed)
	assert.Equal(t, CodeInvalidMessage, CodeOf(err))
	assert.Equal(t, "body or attachments required", MessageOf(err))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := DeliveryFailed(cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestPlainErrors(t *testing.T) {
	err := errors.New("boom")
	assert.Equal(t, CodeUnknown, CodeOf(err))
	assert.Equal(t, "internal error", MessageOf(err))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(err))
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{Unauthenticated("no token", nil), http.StatusUnauthorized},
		{Forbidden("admins only"), http.StatusForbidden},
		{InvalidMessage("empty"), http.StatusBadRequest},
		{InvalidArgument("limit"), http.StatusBadRequest},
		{NotFound("token"), http.StatusNotFound},
		{Conflict("running"), http.StatusConflict},
		{RateLimited("slow down"), http.StatusTooManyRequests},
		{DeliveryFailed(errors.New("x")), http.StatusInternalServerError},
		{DispatchPartialFailure(1, 3, errors.New("x")), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, HTTPStatus(tc.err), tc.err.Error())
	}
}
