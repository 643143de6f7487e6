package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"perk-quiz-service/internal/domain"
)

func TestSessionStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore(time.Hour)

	if err := store.Create(ctx, openSession("s1", time.Now())); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, openSession("s1", time.Now())); err == nil {
		t.Fatalf("expected duplicate id to be rejected")
	}

	got, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.SessionOpen || got.QuizID != "skin_type" {
		t.Fatalf("unexpected session %+v", got)
	}

	if err := store.MarkSubmitted(ctx, "s1"); err != nil {
		t.Fatalf("mark submitted: %v", err)
	}
	if err := store.MarkSubmitted(ctx, "s1"); !errors.Is(err, domain.ErrInvalidSessionState) {
		t.Fatalf("expected invalid state on replay, got %v", err)
	}

	got, err = store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("submitted session should stay readable: %v", err)
	}
	if got.Status != domain.SessionSubmitted || got.SubmittedAt.IsZero() {
		t.Fatalf("expected submitted status, got %+v", got)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := store.MarkSubmitted(ctx, "missing"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSessionStorePassiveExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store := NewSessionStore(time.Hour)
	store.clock = func() time.Time { return now }

	_ = store.Create(ctx, openSession("s1", now))
	now = now.Add(2 * time.Hour)

	if _, err := store.Get(ctx, "s1"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected expired session to read as not found, got %v", err)
	}
	if err := store.MarkSubmitted(ctx, "s1"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected expired session to refuse submission as not found, got %v", err)
	}
}

func TestSessionStoreExpiresBetweenGetAndSubmit(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store := NewSessionStore(time.Hour)
	store.clock = func() time.Time { return now }

	_ = store.Create(ctx, openSession("s1", now))
	now = now.Add(59 * time.Minute)
	if _, err := store.Get(ctx, "s1"); err != nil {
		t.Fatalf("session should still be live: %v", err)
	}

	now = now.Add(2 * time.Minute)
	if err := store.MarkSubmitted(ctx, "s1"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found once the TTL passed, got %v", err)
	}
	if err := store.MarkSubmitted(ctx, "s1"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("flagged session must keep reading as not found, got %v", err)
	}
}

func TestSessionStoreSweep(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store := NewSessionStore(time.Hour)
	store.clock = func() time.Time { return now }

	_ = store.Create(ctx, openSession("old", now))
	now = now.Add(30 * time.Minute)
	_ = store.Create(ctx, openSession("fresh", now))
	now = now.Add(45 * time.Minute)

	if removed := store.Sweep(); removed != 1 {
		t.Fatalf("expected one session swept, got %d", removed)
	}
	if store.Len() != 1 {
		t.Fatalf("expected fresh session retained, len=%d", store.Len())
	}

	// Create sweeps on its own once the interval has elapsed.
	now = now.Add(2 * time.Hour)
	_ = store.Create(ctx, openSession("newest", now))
	if store.Len() != 1 {
		t.Fatalf("expected create to sweep stale sessions, len=%d", store.Len())
	}
}

func TestSessionStoreConcurrentSubmitOnlyOnce(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore(time.Hour)
	_ = store.Create(ctx, openSession("s1", time.Now()))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.MarkSubmitted(ctx, "s1"); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one successful transition, got %d", wins)
	}
}

func openSession(id string, created time.Time) domain.Session {
	return domain.Session{
		ID:        id,
		QuizID:    "skin_type",
		Email:     "a@x.com",
		CreatedAt: created,
		Status:    domain.SessionOpen,
	}
}
