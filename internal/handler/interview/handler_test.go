package interview

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-interview/backend/internal/config"
	model "github.com/zhouzirui/z-interview/backend/internal/model/interview"
	interviewService "github.com/zhouzirui/z-interview/backend/internal/service/interview"
)

func TestErrorStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{model.ErrMissingRespondent, http.StatusBadRequest},
		{ErrInvalidLogin, http.StatusUnauthorized},
		{interviewService.ErrSessionNotFound, http.StatusNotFound},
		{interviewService.ErrEmptyMessage, http.StatusBadRequest},
		{interviewService.ErrSessionCompleted, http.StatusConflict},
		{interviewService.ErrTurnInProgress, http.StatusConflict},
		{interviewService.ErrNotStarted, http.StatusConflict},
		{interviewService.ErrAlreadyStarted, http.StatusConflict},
		{&interviewService.TurnError{SessionID: "s", Err: errors.New("boom")}, http.StatusBadGateway},
		{fmt.Errorf("wrapped: %w", interviewService.ErrSessionNotFound), http.StatusNotFound},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		status, message := ErrorStatus(tc.err)
		assert.Equal(t, tc.want, status, tc.err.Error())
		assert.NotEmpty(t, message)
	}

	_, message := ErrorStatus(model.ErrMissingRespondent)
	assert.Equal(t, "Missing required respondent information. Please ensure all fields are passed.", message)
	_, message = ErrorStatus(errors.New("disk on fire"))
	assert.Equal(t, "internal error", message)
}

func TestAuthenticateWithoutLogins(t *testing.T) {
	h := New(nil, config.DefaultInterview())

	user, err := h.authenticate("whoever", "whatever")
	require.NoError(t, err)
	assert.Equal(t, config.DefaultTestAccount, user)
}

func TestAuthenticateWithLogins(t *testing.T) {
	cfg := config.DefaultInterview()
	cfg.Logins = true
	cfg.Passwords = map[string]string{"alice": "s3cret"}
	h := New(nil, cfg)

	user, err := h.authenticate(" alice ", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "alice", user)

	_, err = h.authenticate("alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidLogin)
	_, err = h.authenticate("bob", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidLogin)
	_, err = h.authenticate("", "")
	assert.ErrorIs(t, err, ErrInvalidLogin)
}
