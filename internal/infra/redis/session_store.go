package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"perk-quiz-service/internal/domain"
)

// createSessionScript inserts a session hash unless the key already exists.
var createSessionScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], 'quiz_id', ARGV[1], 'email', ARGV[2], 'created_at', ARGV[3], 'status', ARGV[4])
local ttl = tonumber(ARGV[5])
if ttl > 0 then
	redis.call('PEXPIRE', KEYS[1], ttl)
end
return 1
`)

// markSubmittedScript performs the open -> submitted compare-and-set atomically.
// Returns -1 when the session is missing, 0 when it is not open, 1 on success.
var markSubmittedScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if not status then
	return -1
end
if status ~= 'open' then
	return 0
end
redis.call('HSET', KEYS[1], 'status', 'submitted', 'submitted_at', ARGV[1])
return 1
`)

// SessionStore keeps quiz sessions in Redis hashes:
//
//	HSET quiz:session:{sessionID} quiz_id .. email .. created_at .. status ..
//
// Keys carry the session TTL, so expired sessions disappear on their own; submitted
// sessions keep the remaining TTL to keep answering duplicate submissions.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
	clock  func() time.Time
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl, clock: time.Now}
}

func (s *SessionStore) Create(ctx context.Context, session domain.Session) error {
	created, err := createSessionScript.Run(ctx, s.client, []string{s.key(session.ID)},
		session.QuizID,
		session.Email,
		strconv.FormatInt(session.CreatedAt.UnixNano(), 10),
		string(session.Status),
		s.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if created == 0 {
		return fmt.Errorf("session %s already exists", session.ID)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, sessionID string) (domain.Session, error) {
	fields, err := s.client.HGetAll(ctx, s.key(sessionID)).Result()
	if err != nil {
		return domain.Session{}, fmt.Errorf("get session: %w", err)
	}
	if len(fields) == 0 || fields["status"] == "" {
		return domain.Session{}, domain.ErrSessionNotFound
	}

	session := domain.Session{
		ID:        sessionID,
		QuizID:    fields["quiz_id"],
		Email:     fields["email"],
		CreatedAt: parseNanos(fields["created_at"]),
		Status:    domain.SessionStatus(fields["status"]),
	}
	if raw := fields["submitted_at"]; raw != "" {
		session.SubmittedAt = parseNanos(raw)
	}
	if session.Status == domain.SessionOpen && session.ExpiredAt(s.clock(), s.ttl) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return session, nil
}

func (s *SessionStore) MarkSubmitted(ctx context.Context, sessionID string) error {
	res, err := markSubmittedScript.Run(ctx, s.client, []string{s.key(sessionID)},
		strconv.FormatInt(s.clock().UnixNano(), 10),
	).Int()
	if err != nil {
		return fmt.Errorf("mark session submitted: %w", err)
	}
	switch res {
	case -1:
		return domain.ErrSessionNotFound
	case 0:
		return fmt.Errorf("%w: session already closed", domain.ErrInvalidSessionState)
	}
	return nil
}

func (s *SessionStore) key(sessionID string) string {
	return "quiz:session:" + sessionID
}

func parseNanos(raw string) time.Time {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
