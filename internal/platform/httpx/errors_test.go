package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-catering/internal/shared"
)

type teapotError struct{}

func (teapotError) Error() string   { return "short and stout" }
func (teapotError) StatusCode() int { return http.StatusTeapot }

func TestStatusOfMatchesResponse(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("order 9: %w", shared.ErrNotFound), http.StatusNotFound},
		{shared.ErrInvalidQuantity, http.StatusBadRequest},
		{shared.ErrUnprocessable, http.StatusUnprocessableEntity},
		{shared.ErrConcurrentModification, http.StatusConflict},
		{shared.ErrIdempotencyConflict, http.StatusConflict},
		{shared.ErrConflict, http.StatusConflict},
		{shared.ErrLockUnavailable, http.StatusServiceUnavailable},
		{teapotError{}, http.StatusTeapot},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, StatusOf(tc.err), tc.err.Error())
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		require.Equal(t, tc.want, rec.Code, tc.err.Error())
	}
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, errors.New("pq: password authentication failed"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "password")
}
