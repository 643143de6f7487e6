package http

import (
	"errors"
	"net/http"

	"perk-quiz-service/internal/domain"
)

type errorResponse struct {
	Error   string               `json:"error"`
	Message string               `json:"message"`
	Result  *domain.SubmitResult `json:"result,omitempty"`
}

var errorCodes = []struct {
	err    error
	status int
	code   string
}{
	{domain.ErrUnknownQuiz, http.StatusBadRequest, "unknown_quiz"},
	{domain.ErrInvalidEmail, http.StatusBadRequest, "invalid_email"},
	{domain.ErrInvalidScore, http.StatusBadRequest, "invalid_score"},
	{domain.ErrSessionNotFound, http.StatusNotFound, "session_not_found"},
	{domain.ErrInvalidSessionState, http.StatusConflict, "invalid_session_state"},
	{domain.ErrRewardDispatchFailed, http.StatusBadGateway, "reward_dispatch_failed"},
}

// classify maps a use-case error to an HTTP status and a stable error code.
func classify(err error) (int, string) {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.status, e.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

func errorBody(err error) errorResponse {
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "Internal server error"
	}
	return errorResponse{Error: code, Message: msg}
}
