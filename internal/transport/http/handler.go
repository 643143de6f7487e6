package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"perk-quiz-service/internal/app"
	"perk-quiz-service/internal/domain"
)

// Handler exposes the quiz use cases as JSON endpoints.
type Handler struct {
	service *app.QuizService
	log     *zap.Logger
	now     func() time.Time
}

func NewHandler(service *app.QuizService, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{service: service, log: log, now: time.Now}
}

type startRequest struct {
	QuizID string `json:"quiz_id"`
	Email  string `json:"email"`
}

type submitRequest struct {
	SessionID string         `json:"session_id"`
	QuizID    string         `json:"quiz_id"`
	Score     *int           `json:"score"`
	Answers   map[string]int `json:"answers"`
}

type statusAllResponse struct {
	Email   string                    `json:"email"`
	Quizzes []domain.CompletionStatus `json:"quizzes"`
}

type healthResponse struct {
	Status           string    `json:"status"`
	Timestamp        time.Time `json:"timestamp"`
	QuizzesAvailable []string  `json:"quizzes_available"`
}

// Start handles POST /api/quiz/start.
func (h *Handler) Start(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid JSON body")
		return
	}
	if req.QuizID == "" {
		h.fail(c, domain.ErrUnknownQuiz)
		return
	}

	result, err := h.service.Start(c.Request.Context(), req.QuizID, req.Email)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Submit handles POST /api/quiz/submit.
func (h *Handler) Submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid JSON body")
		return
	}
	if req.SessionID == "" || req.Score == nil {
		badRequest(c, "Missing required fields")
		return
	}

	result, err := h.service.Submit(c.Request.Context(), domain.SubmitRequest{
		SessionID: req.SessionID,
		QuizID:    req.QuizID,
		Score:     *req.Score,
		Answers:   req.Answers,
	})
	if err != nil {
		body := errorBody(err)
		status, _ := classify(err)
		if status == http.StatusBadGateway {
			body.Message = result.Message
			body.Result = &result
		}
		h.logFailure(c, status, err)
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Status handles GET /api/quiz/status?email=&quiz_id=.
// Without quiz_id every catalog quiz is reported.
func (h *Handler) Status(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		h.fail(c, domain.ErrInvalidEmail)
		return
	}

	quizID := c.Query("quiz_id")
	if quizID == "" {
		statuses, err := h.service.StatusAll(c.Request.Context(), email)
		if err != nil {
			h.fail(c, err)
			return
		}
		normalized, _ := domain.NormalizeEmail(email)
		c.JSON(http.StatusOK, statusAllResponse{Email: normalized, Quizzes: statuses})
		return
	}

	status, err := h.service.Status(c.Request.Context(), email, quizID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// Health handles GET /health.
func (h *Handler) Health(c *gin.Context) {
	quizzes, err := h.service.Quizzes(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	ids := make([]string, 0, len(quizzes))
	for _, quiz := range quizzes {
		ids = append(ids, quiz.ID)
	}
	c.JSON(http.StatusOK, healthResponse{
		Status:           "healthy",
		Timestamp:        h.now().UTC(),
		QuizzesAvailable: ids,
	})
}

func (h *Handler) fail(c *gin.Context, err error) {
	status, _ := classify(err)
	h.logFailure(c, status, err)
	c.JSON(status, errorBody(err))
}

func (h *Handler) logFailure(c *gin.Context, status int, err error) {
	if app.IsClientError(err) {
		h.log.Debug("request rejected", zap.String("path", c.FullPath()), zap.Int("status", status), zap.Error(err))
		return
	}
	h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Int("status", status), zap.Error(err))
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: msg})
}
