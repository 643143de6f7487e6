package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"perk-quiz-service/internal/domain"
)

// CompletionStore tracks rewarded completions in Redis:
//
//	HINCRBY quiz:completion:{quizID}:{email} count 1
//	HSET    quiz:completion:{quizID}:{email} last_completed_at .. last_points ..
//
// Records never expire.
type CompletionStore struct {
	client *redis.Client
}

func NewCompletionStore(client *redis.Client) *CompletionStore {
	return &CompletionStore{client: client}
}

func (s *CompletionStore) Get(ctx context.Context, email, quizID string) (domain.CompletionRecord, bool, error) {
	fields, err := s.client.HGetAll(ctx, s.key(email, quizID)).Result()
	if err != nil {
		return domain.CompletionRecord{}, false, fmt.Errorf("get completion: %w", err)
	}
	if len(fields) == 0 {
		return domain.CompletionRecord{}, false, nil
	}
	return recordFromFields(email, quizID, fields), true, nil
}

func (s *CompletionStore) Increment(ctx context.Context, email, quizID string, points int, at time.Time) (domain.CompletionRecord, error) {
	key := s.key(email, quizID)
	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.HIncrBy(ctx, key, "count", 1)
		pipe.HSet(ctx, key,
			"last_completed_at", strconv.FormatInt(at.UnixNano(), 10),
			"last_points", points,
		)
		return nil
	})
	if err != nil {
		return domain.CompletionRecord{}, fmt.Errorf("record completion: %w", err)
	}
	return domain.CompletionRecord{
		Email:             email,
		QuizID:            quizID,
		CompletionCount:   int(incr.Val()),
		LastCompletedAt:   at,
		LastAwardedPoints: points,
	}, nil
}

func (s *CompletionStore) key(email, quizID string) string {
	return "quiz:completion:" + quizID + ":" + email
}

func recordFromFields(email, quizID string, fields map[string]string) domain.CompletionRecord {
	count, _ := strconv.Atoi(fields["count"])
	points, _ := strconv.Atoi(fields["last_points"])
	return domain.CompletionRecord{
		Email:             email,
		QuizID:            quizID,
		CompletionCount:   count,
		LastCompletedAt:   parseNanos(fields["last_completed_at"]),
		LastAwardedPoints: points,
	}
}
