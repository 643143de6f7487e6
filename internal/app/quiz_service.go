package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"perk-quiz-service/internal/domain"
	"perk-quiz-service/internal/logger"
)

// QuizCatalog resolves quiz rules (static config, cache, backing store).
type QuizCatalog interface {
	Lookup(ctx context.Context, quizID string) (domain.QuizDefinition, error)
	List(ctx context.Context) ([]domain.QuizDefinition, error)
}

// SessionRepository abstracts how quiz sessions are stored (in-memory, Redis, etc).
type SessionRepository interface {
	Create(ctx context.Context, session domain.Session) error
	Get(ctx context.Context, sessionID string) (domain.Session, error)
	// MarkSubmitted moves an open session to submitted and fails for any other state.
	MarkSubmitted(ctx context.Context, sessionID string) error
}

// CompletionRepository stores rewarded completions keyed by (email, quiz).
type CompletionRepository interface {
	Get(ctx context.Context, email, quizID string) (domain.CompletionRecord, bool, error)
	Increment(ctx context.Context, email, quizID string, points int, at time.Time) (domain.CompletionRecord, error)
}

// RewardsClient credits points through the external rewards partner.
type RewardsClient interface {
	AwardPoints(ctx context.Context, award domain.PointsAward) error
}

// Observer receives use-case events, typically for metrics.
type Observer interface {
	SessionStarted(quizID string)
	Submitted(quizID string, passed bool)
	Dispatched(quizID string, outcome domain.DispatchOutcome)
}

type nopObserver struct{}

func (nopObserver) SessionStarted(string)                     {}
func (nopObserver) Submitted(string, bool)                    {}
func (nopObserver) Dispatched(string, domain.DispatchOutcome) {}

// Options carries optional collaborators for QuizService.
type Options struct {
	Logger       *zap.Logger
	Observer     Observer
	ActionSource string
	Clock        func() time.Time
}

// QuizService contains the core quiz use cases.
type QuizService struct {
	catalog    QuizCatalog
	sessions   SessionRepository
	tracker    *CompletionTracker
	validator  *Validator
	dispatcher *Dispatcher
	observer   Observer
	log        *zap.Logger
	now        func() time.Time
	newID      func() string
}

func NewQuizService(catalog QuizCatalog, sessions SessionRepository, completions CompletionRepository, rewards RewardsClient, opts Options) *QuizService {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	observer := opts.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	tracker := NewCompletionTracker(completions, now)
	return &QuizService{
		catalog:    catalog,
		sessions:   sessions,
		tracker:    tracker,
		validator:  NewValidator(catalog, sessions, log),
		dispatcher: NewDispatcher(tracker, rewards, opts.ActionSource, log),
		observer:   observer,
		log:        log,
		now:        now,
		newID:      uuid.NewString,
	}
}

// Start opens a session for the given quiz and participant.
func (s *QuizService) Start(ctx context.Context, quizID, email string) (domain.StartResult, error) {
	quiz, err := s.catalog.Lookup(ctx, quizID)
	if err != nil {
		return domain.StartResult{}, err
	}
	normalized, err := domain.NormalizeEmail(email)
	if err != nil {
		return domain.StartResult{}, err
	}

	session := domain.Session{
		ID:        s.newID(),
		QuizID:    quiz.ID,
		Email:     normalized,
		CreatedAt: s.now(),
		Status:    domain.SessionOpen,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return domain.StartResult{}, fmt.Errorf("create session: %w", err)
	}

	s.observer.SessionStarted(quiz.ID)
	s.log.Info("quiz session started",
		zap.String("quiz_id", quiz.ID),
		zap.String("session_id", session.ID),
		logger.Email(normalized),
	)
	return domain.StartResult{
		SessionID:       session.ID,
		QuizID:          quiz.ID,
		Name:            quiz.Name,
		QuestionCount:   quiz.QuestionCount,
		Points:          quiz.Points,
		RequiredCorrect: quiz.RequiredCorrect,
	}, nil
}

// Submit grades a session once and dispatches the reward when earned.
// A reward failure is returned alongside a populated result: the grade is final.
func (s *QuizService) Submit(ctx context.Context, req domain.SubmitRequest) (domain.SubmitResult, error) {
	session, err := s.sessions.Get(ctx, req.SessionID)
	if err != nil {
		return domain.SubmitResult{}, err
	}
	if req.QuizID != "" && req.QuizID != session.QuizID {
		if _, err := s.catalog.Lookup(ctx, req.QuizID); err != nil {
			return domain.SubmitResult{}, err
		}
		return domain.SubmitResult{}, fmt.Errorf("%w: session belongs to quiz %s", domain.ErrInvalidSessionState, session.QuizID)
	}

	result, err := s.validator.Validate(ctx, session, req.Score, req.Answers)
	if err != nil {
		return domain.SubmitResult{}, err
	}
	s.observer.Submitted(session.QuizID, result.Passed)

	// The session is already closed; a caller hanging up must not strand the award.
	// The rewards client bounds the call with its own per-attempt timeout.
	quiz := result.Quiz
	outcome := s.dispatcher.Dispatch(context.WithoutCancel(ctx), session.Email, quiz, result)
	s.observer.Dispatched(quiz.ID, outcome)

	out := domain.SubmitResult{
		Passed:        result.Passed,
		Score:         result.CorrectCount,
		PassingScore:  quiz.RequiredCorrect,
		QuestionCount: quiz.QuestionCount,
	}
	switch outcome.Kind {
	case domain.OutcomeAwarded:
		out.PointsAwarded = outcome.Points
		out.Message = fmt.Sprintf("Congratulations! You earned %d points!", outcome.Points)
	case domain.OutcomeSkipped:
		if outcome.Reason == domain.SkipLimitReached {
			out.Message = "You have already completed this quiz."
		} else {
			out.Message = fmt.Sprintf("You scored %d/%d. You need %d to pass. Try again!", result.CorrectCount, quiz.QuestionCount, quiz.RequiredCorrect)
		}
	case domain.OutcomeFailed:
		out.Message = "Failed to award points. Please contact support."
		return out, outcome.Err
	}
	return out, nil
}

// Status reports completion progress for one quiz.
func (s *QuizService) Status(ctx context.Context, email, quizID string) (domain.CompletionStatus, error) {
	quiz, err := s.catalog.Lookup(ctx, quizID)
	if err != nil {
		return domain.CompletionStatus{}, err
	}
	normalized, err := domain.NormalizeEmail(email)
	if err != nil {
		return domain.CompletionStatus{}, err
	}
	return s.tracker.Status(ctx, normalized, quiz)
}

// StatusAll reports completion progress for every catalog quiz, ordered by quiz ID.
func (s *QuizService) StatusAll(ctx context.Context, email string) ([]domain.CompletionStatus, error) {
	normalized, err := domain.NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	quizzes, err := s.catalog.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(quizzes, func(i, j int) bool { return quizzes[i].ID < quizzes[j].ID })

	out := make([]domain.CompletionStatus, 0, len(quizzes))
	for _, quiz := range quizzes {
		status, err := s.tracker.Status(ctx, normalized, quiz)
		if err != nil {
			return nil, err
		}
		out = append(out, status)
	}
	return out, nil
}

// Quizzes lists the catalog, ordered by quiz ID.
func (s *QuizService) Quizzes(ctx context.Context) ([]domain.QuizDefinition, error) {
	quizzes, err := s.catalog.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(quizzes, func(i, j int) bool { return quizzes[i].ID < quizzes[j].ID })
	return quizzes, nil
}

// IsClientError reports whether err belongs to the caller-visible taxonomy.
func IsClientError(err error) bool {
	for _, target := range []error{
		domain.ErrUnknownQuiz,
		domain.ErrInvalidEmail,
		domain.ErrSessionNotFound,
		domain.ErrInvalidSessionState,
		domain.ErrInvalidScore,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
