package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"perk-quiz-service/internal/domain"
	"perk-quiz-service/internal/infra/memory"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	locks := newKeyedMutex()

	var (
		wg      sync.WaitGroup
		inside  int32
		overlap int32
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("a@b.com\x00quiz")
			if atomic.AddInt32(&inside, 1) > 1 {
				atomic.StoreInt32(&overlap, 1)
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	if overlap != 0 {
		t.Fatalf("two holders were inside the same key")
	}
	if n := locks.size(); n != 0 {
		t.Fatalf("expected released keys to be forgotten, got %d", n)
	}
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	locks := newKeyedMutex()
	unlockA := locks.Lock("a")
	done := make(chan struct{})
	go func() {
		unlockB := locks.Lock("b")
		unlockB()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("lock on b blocked behind a")
	}
	if n := locks.size(); n != 1 {
		t.Fatalf("expected one held key, got %d", n)
	}
	unlockA()
}

func TestDispatchSkipsFailedAttempt(t *testing.T) {
	rewards := &countingRewards{}
	d := NewDispatcher(NewCompletionTracker(memory.NewCompletionStore(), nil), rewards, "", nil)

	out := d.Dispatch(context.Background(), "a@b.com", testQuiz(1), domain.ValidationResult{Passed: false})
	if out.Kind != domain.OutcomeSkipped || out.Reason != domain.SkipNotPassed {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if rewards.n != 0 {
		t.Fatalf("rewards called for failed attempt")
	}
}

func TestDispatchAwardsAndRecords(t *testing.T) {
	store := memory.NewCompletionStore()
	rewards := &countingRewards{}
	d := NewDispatcher(NewCompletionTracker(store, nil), rewards, "Interactive Quiz", nil)

	out := d.Dispatch(context.Background(), "a@b.com", testQuiz(2), domain.ValidationResult{Passed: true})
	if out.Kind != domain.OutcomeAwarded || out.Points != 10 {
		t.Fatalf("unexpected outcome %+v", out)
	}
	rec, ok, err := store.Get(context.Background(), "a@b.com", "test")
	if err != nil || !ok || rec.CompletionCount != 1 || rec.LastAwardedPoints != 10 {
		t.Fatalf("unexpected record %+v ok=%v err=%v", rec, ok, err)
	}
}

func TestDispatchRewardErrorIsWrapped(t *testing.T) {
	store := memory.NewCompletionStore()
	cause := errors.New("upstream 503")
	d := NewDispatcher(NewCompletionTracker(store, nil), &countingRewards{err: cause}, "", nil)

	out := d.Dispatch(context.Background(), "a@b.com", testQuiz(1), domain.ValidationResult{Passed: true})
	if out.Kind != domain.OutcomeFailed {
		t.Fatalf("expected failed outcome, got %+v", out)
	}
	if !errors.Is(out.Err, domain.ErrRewardDispatchFailed) || !errors.Is(out.Err, cause) {
		t.Fatalf("expected error chain with both sentinel and cause, got %v", out.Err)
	}
	if _, ok, _ := store.Get(context.Background(), "a@b.com", "test"); ok {
		t.Fatalf("failed dispatch was recorded")
	}
}

func TestDispatchRecordFailureStillAwarded(t *testing.T) {
	repo := &brokenCompletions{}
	d := NewDispatcher(NewCompletionTracker(repo, nil), &countingRewards{}, "", nil)

	out := d.Dispatch(context.Background(), "a@b.com", testQuiz(domain.Unlimited), domain.ValidationResult{Passed: true})
	if out.Kind != domain.OutcomeAwarded {
		t.Fatalf("expected awarded outcome after credit, got %+v", out)
	}
}

func TestValidatorLeavesSessionOpenOnInvalidScore(t *testing.T) {
	ctx := context.Background()
	quizzes := map[string]domain.QuizDefinition{"test": testQuiz(1)}
	catalog := memory.NewQuizCatalog(memory.NewStaticQuizLoader(quizzes), 0)
	sessions := memory.NewSessionStore(time.Hour)
	session := domain.Session{ID: "s1", QuizID: "test", Email: "a@b.com", CreatedAt: time.Now(), Status: domain.SessionOpen}
	if err := sessions.Create(ctx, session); err != nil {
		t.Fatalf("create: %v", err)
	}
	v := NewValidator(catalog, sessions, nil)

	if _, err := v.Validate(ctx, session, 4, nil); !errors.Is(err, domain.ErrInvalidScore) {
		t.Fatalf("expected invalid score, got %v", err)
	}
	stored, _ := sessions.Get(ctx, "s1")
	if stored.Status != domain.SessionOpen {
		t.Fatalf("session should stay open, got %s", stored.Status)
	}

	result, err := v.Validate(ctx, session, 2, map[string]int{"q1": 0, "q2": 1})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !result.Passed || result.CorrectCount != 2 || result.Quiz.ID != "test" {
		t.Fatalf("unexpected result %+v", result)
	}
	stored, _ = sessions.Get(ctx, "s1")
	if stored.Status != domain.SessionSubmitted {
		t.Fatalf("session should be submitted, got %s", stored.Status)
	}

	stored.Status = domain.SessionSubmitted
	if _, err := v.Validate(ctx, stored, 2, nil); !errors.Is(err, domain.ErrInvalidSessionState) {
		t.Fatalf("expected invalid session state, got %v", err)
	}
}

func testQuiz(limit int) domain.QuizDefinition {
	return domain.QuizDefinition{ID: "test", QuestionCount: 3, RequiredCorrect: 2, Points: 10, MaxCompletions: limit}
}

type countingRewards struct {
	n   int
	err error
}

func (r *countingRewards) AwardPoints(context.Context, domain.PointsAward) error {
	r.n++
	return r.err
}

type brokenCompletions struct{}

func (brokenCompletions) Get(context.Context, string, string) (domain.CompletionRecord, bool, error) {
	return domain.CompletionRecord{}, false, nil
}

func (brokenCompletions) Increment(context.Context, string, string, int, time.Time) (domain.CompletionRecord, error) {
	return domain.CompletionRecord{}, errors.New("store down")
}
