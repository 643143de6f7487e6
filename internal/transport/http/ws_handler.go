package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"perk-quiz-service/internal/app"
	"perk-quiz-service/internal/domain"
)

// WSHandler serves the quiz operations over a single websocket per embedded widget.
type WSHandler struct {
	service     *app.QuizService
	log         *zap.Logger
	upgrader    websocket.Upgrader
	maxMessages int
	window      time.Duration
}

// NewWSHandler limits each connection to maxMessages per window; zero disables the limit.
func NewWSHandler(service *app.QuizService, log *zap.Logger, maxMessages int, window time.Duration) *WSHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WSHandler{
		service:     service,
		log:         log,
		maxMessages: maxMessages,
		window:      window,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type statusPayload struct {
	Email  string `json:"email"`
	QuizID string `json:"quiz_id"`
}

// ServeWS upgrades HTTP requests to websockets and answers one message per operation.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx := r.Context()
	limiter := newLimiter(h.maxMessages, h.window)
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			return
		}

		reply := outboundMessage{Type: "error", Payload: errorResponse{Error: "rate_limited", Message: "too many requests"}}
		if limiter == nil || limiter.Allow() {
			reply = h.handle(ctx, inbound)
		}
		if err := conn.WriteJSON(reply); err != nil {
			h.log.Debug("ws write error", zap.Error(err))
			return
		}
	}
}

func (h *WSHandler) handle(ctx context.Context, inbound inboundMessage) outboundMessage {
	switch inbound.Type {
	case "start":
		var payload startRequest
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return invalidPayload("invalid start payload")
		}
		result, err := h.service.Start(ctx, payload.QuizID, payload.Email)
		return replyFor("started", result, err)
	case "submit":
		var payload submitRequest
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.SessionID == "" || payload.Score == nil {
			return invalidPayload("invalid submit payload")
		}
		result, err := h.service.Submit(ctx, domain.SubmitRequest{
			SessionID: payload.SessionID,
			QuizID:    payload.QuizID,
			Score:     *payload.Score,
			Answers:   payload.Answers,
		})
		if err != nil {
			body := errorBody(err)
			if status, _ := classify(err); status == http.StatusBadGateway {
				body.Message = result.Message
				body.Result = &result
			}
			return outboundMessage{Type: "error", Payload: body}
		}
		return outboundMessage{Type: "submitted", Payload: result}
	case "status":
		var payload statusPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return invalidPayload("invalid status payload")
		}
		if payload.QuizID == "" {
			statuses, err := h.service.StatusAll(ctx, payload.Email)
			if err != nil {
				return replyFor("status", nil, err)
			}
			normalized, _ := domain.NormalizeEmail(payload.Email)
			return replyFor("status", statusAllResponse{Email: normalized, Quizzes: statuses}, nil)
		}
		result, err := h.service.Status(ctx, payload.Email, payload.QuizID)
		return replyFor("status", result, err)
	default:
		return invalidPayload("unsupported message type")
	}
}

func replyFor(typ string, payload any, err error) outboundMessage {
	if err != nil {
		return outboundMessage{Type: "error", Payload: errorBody(err)}
	}
	return outboundMessage{Type: typ, Payload: payload}
}

func invalidPayload(msg string) outboundMessage {
	return outboundMessage{Type: "error", Payload: errorResponse{Error: "invalid_request", Message: msg}}
}
