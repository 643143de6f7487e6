package domain

import "errors"

var (
	// ErrUnknownQuiz is returned when a quiz ID has no catalog entry.
	ErrUnknownQuiz = errors.New("unknown quiz")
	// ErrInvalidEmail is returned when a participant email is missing or malformed.
	ErrInvalidEmail = errors.New("invalid email")
	// ErrSessionNotFound is returned for unknown, evicted or expired sessions.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrInvalidSessionState indicates the session is not open for submission.
	ErrInvalidSessionState = errors.New("invalid session state")
	// ErrInvalidScore indicates a submitted score outside [0, question count].
	ErrInvalidScore = errors.New("invalid score")
	// ErrRewardDispatchFailed wraps transport or auth failures from the rewards API.
	ErrRewardDispatchFailed = errors.New("reward dispatch failed")
	// ErrInvalidQuiz indicates a catalog entry that violates its own rules.
	ErrInvalidQuiz = errors.New("invalid quiz definition")
)
