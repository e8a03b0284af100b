// Visitor chat HTTP handlers.
//
// This file exposes the endpoints the embedded widget talks to:
//   - GET  /chat/config     (public widget config)
//   - POST /chat/session    (start a visitor session)
//   - POST /chat/message    (send a visitor message, idempotent with a key)
//   - GET  /chat/messages   (poll for messages after a cursor)
//   - GET  /chat/debug      (store self-check)
//
// Every response, including errors, is served with a wildcard CORS origin by
// middleware.ChatCORS.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/tbourn/go-livechat-backend/internal/chatapi"
	"github.com/tbourn/go-livechat-backend/internal/domain"
	"github.com/tbourn/go-livechat-backend/internal/http/middleware"
	"github.com/tbourn/go-livechat-backend/internal/repo"
	"github.com/tbourn/go-livechat-backend/internal/services"
)

// GetConfig godoc
// @ID          getChatConfig
// @Summary     Resolve a widget config
// @Description Returns the public display configuration of a chatbot.
// @Tags        Chat
// @Produce     json
// @Param       chatbot_id  query  string  true  "Public chatbot id"
// @Success     200  {object}  chatapi.Config
// @Failure     400  {object}  handlers.ErrorResponse  "Missing chatbot_id"
// @Failure     404  {object}  handlers.ErrorResponse  "Chatbot not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Store failure"
// @Router      /chat/config [get]
func (h *Handlers) GetConfig(c *gin.Context) {
	pub, err := h.configs.Resolve(c.Request.Context(), c.Query(chatapi.ParamChatbotID))
	if err != nil {
		serviceError(c, err, ErrCodeConfigFailed, "failed to load config")
		return
	}
	ok(c, http.StatusOK, chatapi.FromPublicConfig(pub))
}

// StartSession godoc
// @ID          startChatSession
// @Summary     Start a visitor session
// @Description Resolves the chatbot's owner and creates an active session.
// @Tags        Chat
// @Accept      json
// @Produce     json
// @Param       body  body  chatapi.StartSessionRequest  true  "Chatbot and optional visitor details"
// @Success     200  {object}  chatapi.StartSessionResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Missing chatbot_id"
// @Failure     404  {object}  handlers.ErrorResponse  "Chatbot not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Store failure, with detail"
// @Router      /chat/session [post]
func (h *Handlers) StartSession(c *gin.Context) {
	var req chatapi.StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	s, err := h.sessions.Start(c.Request.Context(), services.StartSessionInput{
		ChatbotID:    req.ChatbotID,
		VisitorName:  req.VisitorName,
		VisitorEmail: req.VisitorEmail,
		UserAgent:    c.Request.UserAgent(),
		Referrer:     c.Request.Referer(),
	})
	if err != nil {
		serviceError(c, err, ErrCodeSessionFailed, "failed to create session")
		return
	}
	ok(c, http.StatusOK, chatapi.StartSessionResponse{SessionID: s.ID})
}

// PostMessage godoc
// @ID          postChatMessage
// @Summary     Send a visitor message
// @Description Stores a visitor message. A repeated Idempotency-Key for the same
// @Description session returns the original message and sets Idempotency-Replayed.
// @Tags        Chat
// @Accept      json
// @Produce     json
// @Param       Idempotency-Key  header  string  false  "Retry key"
// @Param       body  body  chatapi.SendMessageRequest  true  "Message"
// @Success     200  {object}  chatapi.SendMessageResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Missing field or empty content"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Store failure"
// @Router      /chat/message [post]
func (h *Handlers) PostMessage(c *gin.Context) {
	var req chatapi.SendMessageRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	// Staff and bot messages go through the admin API.
	if req.SenderType != "" && req.SenderType != domain.SenderVisitor {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, services.ErrInvalidSenderRole.Error())
		return
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "missing session_id")
		return
	}

	if prev := h.replay(c, sessionID); prev != nil {
		ok(c, http.StatusOK, chatapi.SendMessageResponse{MessageID: prev.ID, CreatedAt: prev.CreatedAt})
		return
	}

	m, err := h.messages.Send(c.Request.Context(), services.SendInput{
		SessionID: sessionID,
		Content:   req.Content,
		Sender:    domain.SenderVisitor,
	})
	if err != nil {
		serviceError(c, err, ErrCodeSendFailed, "failed to send message")
		return
	}
	h.remember(c, sessionID, m.ID)
	ok(c, http.StatusOK, chatapi.SendMessageResponse{MessageID: m.ID, CreatedAt: m.CreatedAt})
}

// ListMessages godoc
// @ID          pollChatMessages
// @Summary     Poll for new messages
// @Description Returns up to 50 messages strictly after `after`, oldest first.
// @Description An unknown cursor yields an empty list.
// @Tags        Chat
// @Produce     json
// @Param       session_id  query  string  true   "Session id"
// @Param       after       query  string  false  "Last message id already seen"
// @Success     200  {array}   chatapi.Message
// @Failure     400  {object}  handlers.ErrorResponse  "Missing session_id"
// @Failure     500  {object}  handlers.ErrorResponse  "Store failure"
// @Router      /chat/messages [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	items, err := h.messages.FetchNewSince(c.Request.Context(),
		c.Query(chatapi.ParamSessionID), c.Query(chatapi.ParamAfter))
	if err != nil {
		serviceError(c, err, ErrCodeListFailed, "failed to fetch messages")
		return
	}
	ok(c, http.StatusOK, chatapi.FromMessages(items))
}

// Debug godoc
// @ID          chatDebug
// @Summary     Store self-check
// @Description Reports whether the chat tables can be read and written. No secrets.
// @Tags        Chat
// @Produce     json
// @Success     200  {object}  repo.Diagnostics
// @Failure     503  {object}  handlers.ErrorResponse  "No store configured"
// @Router      /chat/debug [get]
func (h *Handlers) Debug(c *gin.Context) {
	if h.db == nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeInternal, "store not configured")
		return
	}
	ok(c, http.StatusOK, repo.Diagnose(c.Request.Context(), h.db))
}

// MessageScope returns the session an idempotent send belongs to: the :id
// route param on admin routes, or session_id from the JSON body on the
// visitor route. The body is cached so the handler can bind it again.
func MessageScope(c *gin.Context) string {
	if id := c.Param("id"); id != "" {
		return id
	}
	var req chatapi.SendMessageRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		return ""
	}
	return strings.TrimSpace(req.SessionID)
}

// replay returns the message previously stored under the request's
// Idempotency-Key for sessionID, marking the response as replayed.
func (h *Handlers) replay(c *gin.Context, sessionID string) *domain.Message {
	key, has := middleware.GetIdempotencyKey(c)
	if !has || h.db == nil {
		return nil
	}
	ctx := c.Request.Context()
	rec, err := repo.GetIdempotency(ctx, h.db, sessionID, key, h.now())
	if err != nil {
		return nil
	}
	prev, err := repo.GetMessage(ctx, h.db, rec.MessageID)
	if err != nil {
		return nil
	}
	c.Header(chatapi.HeaderIdempotencyReplayed, "true")
	return prev
}

// remember records messageID under the request's Idempotency-Key. Losing a
// concurrent race for the same key is fine: the first writer wins.
func (h *Handlers) remember(c *gin.Context, sessionID, messageID string) {
	key, has := middleware.GetIdempotencyKey(c)
	if !has || h.db == nil {
		return
	}
	_, err := repo.CreateIdempotency(c.Request.Context(), h.db, sessionID, key, messageID, http.StatusOK, h.idemTTL)
	if err != nil && !errors.Is(err, repo.ErrDuplicate) {
		lg := middleware.LoggerFrom(c)
		lg.Warn().Err(err).Str("session_id", sessionID).Msg("idempotency record not stored")
	}
}
