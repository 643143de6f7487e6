package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"perk-quiz-service/internal/app"
	"perk-quiz-service/internal/metrics"
)

// RouterOptions wires optional middleware into the router.
type RouterOptions struct {
	Logger          *zap.Logger
	Metrics         *metrics.Metrics
	RateLimit       int
	RateLimitWindow time.Duration
}

// NewRouter mounts the REST, websocket and operational endpoints.
func NewRouter(service *app.QuizService, opts RouterOptions) *gin.Engine {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log))
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware())
		r.GET("/metrics", opts.Metrics.Handler())
	}

	handler := NewHandler(service, log)
	ws := NewWSHandler(service, log, opts.RateLimit, opts.RateLimitWindow)

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/health", handler.Health)
	r.GET("/ws", RateLimiter(opts.RateLimit, opts.RateLimitWindow), gin.WrapF(ws.ServeWS))

	api := r.Group("/api/quiz", RateLimiter(opts.RateLimit, opts.RateLimitWindow))
	api.POST("/start", handler.Start)
	api.POST("/submit", handler.Submit)
	api.GET("/status", handler.Status)
	return r
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
