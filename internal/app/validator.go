package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"perk-quiz-service/internal/domain"
)

// Validator grades a submission and closes the session.
type Validator struct {
	catalog  QuizCatalog
	sessions SessionRepository
	log      *zap.Logger
}

func NewValidator(catalog QuizCatalog, sessions SessionRepository, log *zap.Logger) *Validator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Validator{catalog: catalog, sessions: sessions, log: log}
}

// Validate checks the session and score, then transitions the session to submitted
// whether or not the attempt passed. An out-of-range score leaves the session open.
//
// The submitted score is trusted as the correct-answer count; answers are kept for audit only.
func (v *Validator) Validate(ctx context.Context, session domain.Session, score int, answers map[string]int) (domain.ValidationResult, error) {
	if session.Status != domain.SessionOpen {
		return domain.ValidationResult{}, fmt.Errorf("%w: session is %s", domain.ErrInvalidSessionState, session.Status)
	}

	quiz, err := v.catalog.Lookup(ctx, session.QuizID)
	if err != nil {
		return domain.ValidationResult{}, err
	}

	if score < 0 || score > quiz.QuestionCount {
		return domain.ValidationResult{}, fmt.Errorf("%w: %d not within [0, %d]", domain.ErrInvalidScore, score, quiz.QuestionCount)
	}
	if len(answers) > quiz.QuestionCount {
		v.log.Warn("submission carries more answers than questions",
			zap.String("session_id", session.ID),
			zap.Int("answers", len(answers)),
			zap.Int("questions", quiz.QuestionCount),
		)
	}

	result := domain.ValidationResult{
		Passed:       score >= quiz.RequiredCorrect,
		CorrectCount: score,
		Quiz:         quiz,
	}

	// The compare-and-set here is what stops a replayed submission from dispatching twice.
	if err := v.sessions.MarkSubmitted(ctx, session.ID); err != nil {
		return domain.ValidationResult{}, err
	}

	v.log.Info("quiz submission graded",
		zap.String("session_id", session.ID),
		zap.String("quiz_id", quiz.ID),
		zap.Int("score", score),
		zap.Int("required", quiz.RequiredCorrect),
		zap.Bool("passed", result.Passed),
		zap.Any("answers", answers),
	)
	return result, nil
}
