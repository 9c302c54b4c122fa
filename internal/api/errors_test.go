package api

import (
	"net/http"
	"testing"

	"machrent/internal/domain"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"SessionNotFound", domain.ErrSessionNotFound, http.StatusNotFound},
		{"SessionClosed", domain.ErrSessionClosed, http.StatusGone},
		{"Busy", domain.ErrBusy, http.StatusConflict},
		{"Stale", domain.ErrStaleResult, http.StatusConflict},
		{"WrongStep", errors.Wrap(domain.ErrWrongStep, "summary"), http.StatusConflict},
		{"Local", domain.LocalValidation(domain.ErrPeriodTooShort), http.StatusUnprocessableEntity},
		{"CustomerMissing", domain.Rejection(domain.ErrNotFound), http.StatusNotFound},
		{"Forbidden", domain.Rejection(domain.ErrForbidden), http.StatusForbidden},
		{"Overlap", domain.Rejection(&domain.OverlapError{}), http.StatusConflict},
		{"Conflict", domain.Rejection(domain.ErrConflict), http.StatusConflict},
		{"InvalidPrice", domain.Rejection(domain.ErrInvalidPrice), http.StatusUnprocessableEntity},
		{"Transport", domain.Transport(domain.ErrTransport), http.StatusBadGateway},
		{"Unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
