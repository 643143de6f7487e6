package app

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"perk-quiz-service/internal/domain"
	"perk-quiz-service/internal/logger"
)

// Dispatcher credits points for passing submissions within the completion limit.
type Dispatcher struct {
	tracker      *CompletionTracker
	rewards      RewardsClient
	actionSource string
	locks        *keyedMutex
	log          *zap.Logger
}

func NewDispatcher(tracker *CompletionTracker, rewards RewardsClient, actionSource string, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		tracker:      tracker,
		rewards:      rewards,
		actionSource: actionSource,
		locks:        newKeyedMutex(),
		log:          log,
	}
}

// Dispatch decides whether to reward and, if so, calls the rewards API.
// Completions are recorded only after the partner confirmed the award.
func (d *Dispatcher) Dispatch(ctx context.Context, email string, quiz domain.QuizDefinition, result domain.ValidationResult) domain.DispatchOutcome {
	if !result.Passed {
		return domain.Skipped(domain.SkipNotPassed)
	}

	// Serialize per (email, quiz) so concurrent sessions of one user cannot both pass the limit check.
	unlock := d.locks.Lock(email + "\x00" + quiz.ID)
	defer unlock()

	if quiz.Limited() {
		used, err := d.tracker.CompletionsFor(ctx, email, quiz.ID)
		if err != nil {
			return domain.Failed(fmt.Errorf("%w: read completions: %w", domain.ErrRewardDispatchFailed, err))
		}
		if used >= quiz.MaxCompletions {
			d.log.Info("completion limit reached, reward skipped",
				zap.String("quiz_id", quiz.ID),
				logger.Email(email),
				zap.Int("completions", used),
			)
			return domain.Skipped(domain.SkipLimitReached)
		}
	}

	award := domain.PointsAward{
		Email:           email,
		Points:          quiz.Points,
		ActionTitle:     quiz.RewardTitle(),
		ActionSource:    d.actionSource,
		CompletionLimit: quiz.MaxCompletions,
	}
	if err := d.rewards.AwardPoints(ctx, award); err != nil {
		d.log.Error("failed to award points",
			zap.String("quiz_id", quiz.ID),
			logger.Email(email),
			zap.Error(err),
		)
		return domain.Failed(fmt.Errorf("%w: %w", domain.ErrRewardDispatchFailed, err))
	}

	record, err := d.tracker.RecordCompletion(ctx, email, quiz.ID, quiz.Points)
	if err != nil {
		// Points were credited; only the bookkeeping failed.
		d.log.Error("points awarded but completion not recorded",
			zap.String("quiz_id", quiz.ID),
			logger.Email(email),
			zap.Error(err),
		)
		return domain.Awarded(quiz.Points)
	}

	d.log.Info("points awarded",
		zap.String("quiz_id", quiz.ID),
		logger.Email(email),
		zap.Int("points", quiz.Points),
		zap.Int("completions", record.CompletionCount),
	)
	return domain.Awarded(quiz.Points)
}

// keyedMutex hands out one mutex per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedEntry)}
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &keyedEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
