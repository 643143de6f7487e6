package memory

import (
	"context"
	"sync"
	"time"

	"perk-quiz-service/internal/domain"
)

type completionKey struct {
	email  string
	quizID string
}

// CompletionStore is an in-memory implementation of app.CompletionRepository.
type CompletionStore struct {
	mu      sync.RWMutex
	records map[completionKey]domain.CompletionRecord
}

func NewCompletionStore() *CompletionStore {
	return &CompletionStore{records: make(map[completionKey]domain.CompletionRecord)}
}

func (s *CompletionStore) Get(_ context.Context, email, quizID string) (domain.CompletionRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[completionKey{email: email, quizID: quizID}]
	return record, ok, nil
}

func (s *CompletionStore) Increment(_ context.Context, email, quizID string, points int, at time.Time) (domain.CompletionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := completionKey{email: email, quizID: quizID}
	record, ok := s.records[key]
	if !ok {
		record = domain.CompletionRecord{Email: email, QuizID: quizID}
	}
	record.CompletionCount++
	record.LastCompletedAt = at
	record.LastAwardedPoints = points
	s.records[key] = record
	return record, nil
}
