package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"perk-quiz-service/internal/app"
	"perk-quiz-service/internal/domain"
	"perk-quiz-service/internal/infra/memory"
	"perk-quiz-service/internal/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestStartSubmitStatusFlow(t *testing.T) {
	rewards := &stubRewards{}
	router := newTestRouter(rewards, RouterOptions{})

	rec := doJSON(t, router, http.MethodPost, "/api/quiz/start", map[string]any{"quiz_id": "skin_type", "email": "a@b.com"})
	if rec.Code != http.StatusOK {
		t.Fatalf("start: expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var started domain.StartResult
	decode(t, rec, &started)
	if started.SessionID == "" || started.QuestionCount != 6 {
		t.Fatalf("unexpected start body %+v", started)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/quiz/submit", map[string]any{
		"session_id": started.SessionID,
		"quiz_id":    "skin_type",
		"score":      6,
		"answers":    map[string]int{"q1": 1},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("submit: expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var submitted domain.SubmitResult
	decode(t, rec, &submitted)
	if !submitted.Passed || submitted.PointsAwarded != 30 || submitted.PassingScore != 6 {
		t.Fatalf("unexpected submit body %+v", submitted)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/quiz/submit", map[string]any{"session_id": started.SessionID, "score": 6})
	assertError(t, rec, http.StatusConflict, "invalid_session_state")

	rec = doJSON(t, router, http.MethodGet, "/api/quiz/status?email=a@b.com&quiz_id=skin_type", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: expected 200, got %d", rec.Code)
	}
	var raw map[string]any
	decode(t, rec, &raw)
	if raw["completed"] != true || raw["completions_used"] != float64(1) || raw["completions_remaining"] != float64(0) {
		t.Fatalf("unexpected status body %v", raw)
	}
}

func TestStatusWithoutQuizListsCatalog(t *testing.T) {
	router := newTestRouter(&stubRewards{}, RouterOptions{})

	rec := doJSON(t, router, http.MethodGet, "/api/quiz/status?email=A@B.com", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var body statusAllResponse
	decode(t, rec, &body)
	if body.Email != "a@b.com" || len(body.Quizzes) != 3 || body.Quizzes[0].QuizID != "grooming_mastery" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestErrorResponses(t *testing.T) {
	router := newTestRouter(&stubRewards{}, RouterOptions{})

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"unknown quiz", http.MethodPost, "/api/quiz/start", map[string]any{"quiz_id": "nope", "email": "a@b.com"}, http.StatusBadRequest, "unknown_quiz"},
		{"missing quiz", http.MethodPost, "/api/quiz/start", map[string]any{"email": "a@b.com"}, http.StatusBadRequest, "unknown_quiz"},
		{"bad email", http.MethodPost, "/api/quiz/start", map[string]any{"quiz_id": "skin_type", "email": "nope"}, http.StatusBadRequest, "invalid_email"},
		{"missing score", http.MethodPost, "/api/quiz/submit", map[string]any{"session_id": "x"}, http.StatusBadRequest, "invalid_request"},
		{"unknown session", http.MethodPost, "/api/quiz/submit", map[string]any{"session_id": "x", "score": 1}, http.StatusNotFound, "session_not_found"},
		{"status without email", http.MethodGet, "/api/quiz/status", nil, http.StatusBadRequest, "invalid_email"},
		{"status unknown quiz", http.MethodGet, "/api/quiz/status?email=a@b.com&quiz_id=nope", nil, http.StatusBadRequest, "unknown_quiz"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, router, tc.method, tc.path, tc.body)
			assertError(t, rec, tc.status, tc.code)
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/quiz/start", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assertError(t, rec, http.StatusBadRequest, "invalid_request")
}

func TestInvalidScoreResponse(t *testing.T) {
	router := newTestRouter(&stubRewards{}, RouterOptions{})
	sessionID := startSession(t, router, "grooming_mastery")

	rec := doJSON(t, router, http.MethodPost, "/api/quiz/submit", map[string]any{"session_id": sessionID, "score": 9})
	assertError(t, rec, http.StatusBadRequest, "invalid_score")
}

func TestRewardFailureReturnsBadGatewayWithResult(t *testing.T) {
	router := newTestRouter(&stubRewards{err: errors.New("partner down")}, RouterOptions{})
	sessionID := startSession(t, router, "product_knowledge")

	rec := doJSON(t, router, http.MethodPost, "/api/quiz/submit", map[string]any{"session_id": sessionID, "score": 4})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", rec.Code, rec.Body)
	}
	var body errorResponse
	decode(t, rec, &body)
	if body.Error != "reward_dispatch_failed" || body.Result == nil || !body.Result.Passed || body.Result.PointsAwarded != 0 {
		t.Fatalf("unexpected body %+v", body)
	}
	if body.Message != "Failed to award points. Please contact support." {
		t.Fatalf("unexpected message %q", body.Message)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	m := metrics.New()
	router := newTestRouter(&stubRewards{}, RouterOptions{Metrics: m})

	rec := doJSON(t, router, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health: expected 200, got %d", rec.Code)
	}
	var health healthResponse
	decode(t, rec, &health)
	if health.Status != "healthy" || len(health.QuizzesAvailable) != 3 {
		t.Fatalf("unexpected health %+v", health)
	}

	rec = doJSON(t, router, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz: got %d %q", rec.Code, rec.Body)
	}

	rec = doJSON(t, router, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte("http_requests_total")) {
		t.Fatalf("metrics: expected request counter, got %d", rec.Code)
	}
}

func newTestRouter(rewards app.RewardsClient, opts RouterOptions) *gin.Engine {
	catalog := memory.NewQuizCatalog(memory.NewStaticQuizLoader(domain.DefaultQuizzes()), time.Minute)
	service := app.NewQuizService(catalog, memory.NewSessionStore(time.Hour), memory.NewCompletionStore(), rewards, app.Options{})
	return NewRouter(service, opts)
}

func startSession(t *testing.T, router http.Handler, quizID string) string {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/quiz/start", map[string]any{"quiz_id": quizID, "email": "a@b.com"})
	if rec.Code != http.StatusOK {
		t.Fatalf("start: expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var started domain.StartResult
	decode(t, rec, &started)
	return started.SessionID
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rec.Code, rec.Body)
	}
	var body errorResponse
	decode(t, rec, &body)
	if body.Error != code {
		t.Fatalf("expected error code %q, got %q", code, body.Error)
	}
}

type stubRewards struct {
	mu  sync.Mutex
	err error
	n   int
}

func (s *stubRewards) AwardPoints(context.Context, domain.PointsAward) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return s.err
}
