package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Unlimited is the MaxCompletions value for quizzes that may be rewarded any number of times.
const Unlimited = 0

// QuizDefinition holds the static rules for a single quiz.
type QuizDefinition struct {
	ID              string `json:"id" yaml:"id"`
	Name            string `json:"name" yaml:"name"`
	QuestionCount   int    `json:"question_count" yaml:"question_count"`
	RequiredCorrect int    `json:"required_correct" yaml:"required_correct"`
	Points          int    `json:"points" yaml:"points"`
	MaxCompletions  int    `json:"max_completions_per_user" yaml:"max_completions_per_user"`
	ActionTitle     string `json:"action_title,omitempty" yaml:"action_title"`
}

// Validate checks the definition against its own invariants.
func (q QuizDefinition) Validate() error {
	switch {
	case strings.TrimSpace(q.ID) == "":
		return fmt.Errorf("%w: empty id", ErrInvalidQuiz)
	case q.QuestionCount <= 0:
		return fmt.Errorf("%w: %s: question_count must be positive", ErrInvalidQuiz, q.ID)
	case q.RequiredCorrect < 0 || q.RequiredCorrect > q.QuestionCount:
		return fmt.Errorf("%w: %s: required_correct must be within [0, %d]", ErrInvalidQuiz, q.ID, q.QuestionCount)
	case q.Points <= 0:
		return fmt.Errorf("%w: %s: points must be positive", ErrInvalidQuiz, q.ID)
	case q.MaxCompletions < 0:
		return fmt.Errorf("%w: %s: max_completions_per_user must not be negative", ErrInvalidQuiz, q.ID)
	}
	return nil
}

// Limited reports whether rewards for this quiz are capped per user.
func (q QuizDefinition) Limited() bool {
	return q.MaxCompletions != Unlimited
}

// RewardTitle is the action title reported to the rewards partner.
func (q QuizDefinition) RewardTitle() string {
	if q.ActionTitle != "" {
		return q.ActionTitle
	}
	return q.ID + " completion"
}

// SessionStatus is the lifecycle state of a quiz session.
type SessionStatus string

const (
	SessionOpen      SessionStatus = "open"
	SessionSubmitted SessionStatus = "submitted"
	SessionExpired   SessionStatus = "expired"
)

// Session binds one participant email to one quiz attempt.
type Session struct {
	ID          string        `json:"session_id"`
	QuizID      string        `json:"quiz_id"`
	Email       string        `json:"email"`
	CreatedAt   time.Time     `json:"created_at"`
	SubmittedAt time.Time     `json:"submitted_at"`
	Status      SessionStatus `json:"status"`
}

// ExpiredAt reports whether the session has outlived ttl at the given instant.
func (s Session) ExpiredAt(now time.Time, ttl time.Duration) bool {
	return ttl > 0 && !now.Before(s.CreatedAt.Add(ttl))
}

// CompletionRecord tracks rewarded completions per (email, quiz).
type CompletionRecord struct {
	Email             string    `json:"email"`
	QuizID            string    `json:"quiz_id"`
	CompletionCount   int       `json:"completion_count"`
	LastCompletedAt   time.Time `json:"last_completed_at"`
	LastAwardedPoints int       `json:"last_awarded_points"`
}

// ValidationResult is the grading outcome of a single submission.
type ValidationResult struct {
	Passed       bool           `json:"passed"`
	CorrectCount int            `json:"correct_count"`
	Quiz         QuizDefinition `json:"-"`
}

// OutcomeKind classifies a reward dispatch.
type OutcomeKind string

const (
	OutcomeAwarded OutcomeKind = "awarded"
	OutcomeSkipped OutcomeKind = "skipped"
	OutcomeFailed  OutcomeKind = "failed"
)

// SkipReason explains why no reward call was made.
type SkipReason string

const (
	SkipNotPassed    SkipReason = "not_passed"
	SkipLimitReached SkipReason = "limit_reached"
)

// DispatchOutcome is the result of trying to reward a submission.
type DispatchOutcome struct {
	Kind   OutcomeKind
	Points int
	Reason SkipReason
	Err    error
}

// Awarded builds a successful outcome.
func Awarded(points int) DispatchOutcome {
	return DispatchOutcome{Kind: OutcomeAwarded, Points: points}
}

// Skipped builds an outcome for which no external call was made.
func Skipped(reason SkipReason) DispatchOutcome {
	return DispatchOutcome{Kind: OutcomeSkipped, Reason: reason}
}

// Failed builds an outcome for a reward call that did not succeed.
func Failed(err error) DispatchOutcome {
	return DispatchOutcome{Kind: OutcomeFailed, Err: err}
}

// PointsAward is the payload sent to the rewards partner.
type PointsAward struct {
	Email           string `json:"email"`
	Points          int    `json:"points"`
	ActionTitle     string `json:"action_title"`
	ActionSource    string `json:"action_source,omitempty"`
	CompletionLimit int    `json:"action_completion_limit,omitempty"`
}

// StartResult is returned to clients opening a quiz session.
type StartResult struct {
	SessionID       string `json:"session_id"`
	QuizID          string `json:"quiz_id"`
	Name            string `json:"name,omitempty"`
	QuestionCount   int    `json:"question_count"`
	Points          int    `json:"points"`
	RequiredCorrect int    `json:"required_correct"`
}

// SubmitRequest carries a client's answers for an open session.
type SubmitRequest struct {
	SessionID string         `json:"session_id"`
	QuizID    string         `json:"quiz_id"`
	Score     int            `json:"score"`
	Answers   map[string]int `json:"answers"`
}

// SubmitResult summarizes grading and reward delivery for a submission.
type SubmitResult struct {
	Passed        bool   `json:"passed"`
	PointsAwarded int    `json:"points_awarded"`
	Message       string `json:"message"`
	Score         int    `json:"score"`
	PassingScore  int    `json:"passing_score"`
	QuestionCount int    `json:"question_count"`
}

// Remaining is a completion allowance that is either a count or unlimited.
type Remaining struct {
	Count     int
	Unlimited bool
}

// MarshalJSON renders the allowance as a number or the string "unlimited".
func (r Remaining) MarshalJSON() ([]byte, error) {
	if r.Unlimited {
		return []byte(`"unlimited"`), nil
	}
	return []byte(strconv.Itoa(r.Count)), nil
}

// UnmarshalJSON accepts both forms produced by MarshalJSON.
func (r *Remaining) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != "unlimited" {
			return fmt.Errorf("invalid remaining value %q", s)
		}
		*r = Remaining{Unlimited: true}
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*r = Remaining{Count: n}
	return nil
}

// CompletionStatus answers "has this user completed this quiz" for status queries.
type CompletionStatus struct {
	QuizID               string    `json:"quiz_id"`
	Completed            bool      `json:"completed"`
	CompletionsUsed      int       `json:"completions_used"`
	CompletionsRemaining Remaining `json:"completions_remaining"`
}
