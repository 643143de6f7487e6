package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"perk-quiz-service/internal/domain"
)

// CompletionStore persists rewarded completions in quiz_completions.
// Increments are a single upsert, so concurrent writers never lose a count.
type CompletionStore struct {
	pool *pgxpool.Pool
}

func NewCompletionStore(pool *pgxpool.Pool) *CompletionStore {
	return &CompletionStore{pool: pool}
}

func (s *CompletionStore) Get(ctx context.Context, email, quizID string) (domain.CompletionRecord, bool, error) {
	record := domain.CompletionRecord{Email: email, QuizID: quizID}
	err := s.pool.QueryRow(ctx,
		`SELECT completion_count, last_completed_at, last_awarded_points
		   FROM quiz_completions WHERE email=$1 AND quiz_id=$2`,
		email, quizID,
	).Scan(&record.CompletionCount, &record.LastCompletedAt, &record.LastAwardedPoints)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.CompletionRecord{}, false, nil
	}
	if err != nil {
		return domain.CompletionRecord{}, false, fmt.Errorf("get completion: %w", err)
	}
	return record, true, nil
}

func (s *CompletionStore) Increment(ctx context.Context, email, quizID string, points int, at time.Time) (domain.CompletionRecord, error) {
	record := domain.CompletionRecord{Email: email, QuizID: quizID}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO quiz_completions (email, quiz_id, completion_count, last_completed_at, last_awarded_points)
		 VALUES ($1, $2, 1, $3, $4)
		 ON CONFLICT (email, quiz_id) DO UPDATE SET
		   completion_count    = quiz_completions.completion_count + 1,
		   last_completed_at   = EXCLUDED.last_completed_at,
		   last_awarded_points = EXCLUDED.last_awarded_points
		 RETURNING completion_count, last_completed_at, last_awarded_points`,
		email, quizID, at, points,
	).Scan(&record.CompletionCount, &record.LastCompletedAt, &record.LastAwardedPoints)
	if err != nil {
		return domain.CompletionRecord{}, fmt.Errorf("record completion: %w", err)
	}
	return record, nil
}
