package app

import (
	"context"
	"time"

	"perk-quiz-service/internal/domain"
)

// CompletionTracker enforces per-user completion limits on top of a CompletionRepository.
type CompletionTracker struct {
	repo CompletionRepository
	now  func() time.Time
}

func NewCompletionTracker(repo CompletionRepository, now func() time.Time) *CompletionTracker {
	if now == nil {
		now = time.Now
	}
	return &CompletionTracker{repo: repo, now: now}
}

// CompletionsFor returns how many rewarded completions exist; zero when none.
func (t *CompletionTracker) CompletionsFor(ctx context.Context, email, quizID string) (int, error) {
	record, ok, err := t.repo.Get(ctx, email, quizID)
	if err != nil || !ok {
		return 0, err
	}
	return record.CompletionCount, nil
}

// RecordCompletion counts one rewarded completion. Only call it after the reward was granted.
func (t *CompletionTracker) RecordCompletion(ctx context.Context, email, quizID string, points int) (domain.CompletionRecord, error) {
	return t.repo.Increment(ctx, email, quizID, points, t.now())
}

func (t *CompletionTracker) HasCompleted(ctx context.Context, email, quizID string) (bool, error) {
	n, err := t.CompletionsFor(ctx, email, quizID)
	return n > 0, err
}

// CompletionsRemaining derives the remaining allowance from the quiz's limit.
func (t *CompletionTracker) CompletionsRemaining(ctx context.Context, email string, quiz domain.QuizDefinition) (domain.Remaining, error) {
	n, err := t.CompletionsFor(ctx, email, quiz.ID)
	if err != nil {
		return domain.Remaining{}, err
	}
	return remaining(quiz, n), nil
}

// Status bundles the status-query view for a single quiz.
func (t *CompletionTracker) Status(ctx context.Context, email string, quiz domain.QuizDefinition) (domain.CompletionStatus, error) {
	n, err := t.CompletionsFor(ctx, email, quiz.ID)
	if err != nil {
		return domain.CompletionStatus{}, err
	}
	return domain.CompletionStatus{
		QuizID:               quiz.ID,
		Completed:            n > 0,
		CompletionsUsed:      n,
		CompletionsRemaining: remaining(quiz, n),
	}, nil
}

func remaining(quiz domain.QuizDefinition, used int) domain.Remaining {
	if !quiz.Limited() {
		return domain.Remaining{Unlimited: true}
	}
	left := quiz.MaxCompletions - used
	if left < 0 {
		left = 0
	}
	return domain.Remaining{Count: left}
}
