// Admin HTTP handlers.
//
// All routes here sit behind middleware.AdminAuth; the authenticated admin id
// scopes every query, so a foreign resource id is reported as not found.
//
//   - GET/PUT  /admin/config
//   - GET      /admin/sessions                  (paginated, status filter, ETag)
//   - PATCH    /admin/sessions/{id}             (close or reopen)
//   - DELETE   /admin/sessions/{id}             (cascades messages)
//   - GET/POST /admin/sessions/{id}/messages
//   - POST     /admin/sessions/{id}/read
//   - GET/POST /admin/responses, DELETE /admin/responses/{id}
//   - GET      /admin/analytics
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/tbourn/go-livechat-backend/internal/domain"
	"github.com/tbourn/go-livechat-backend/internal/repo"
	"github.com/tbourn/go-livechat-backend/internal/services"
)

//
// DTOs
//

// ListSessionsResponse wraps a page of sessions.
type ListSessionsResponse struct {
	Sessions   []domain.Session `json:"sessions"`
	Pagination Pagination       `json:"pagination"`
}

// ListAdminMessagesResponse wraps a page of a session's thread.
type ListAdminMessagesResponse struct {
	Messages   []domain.Message `json:"messages"`
	Pagination Pagination       `json:"pagination"`
}

// ReplyRequest is an admin reply.
type ReplyRequest struct {
	Content string `json:"content" binding:"required" example:"Happy to help!"`
}

// UpdateSessionRequest changes a session's status.
type UpdateSessionRequest struct {
	Status string `json:"status" binding:"required" example:"closed"`
}

// MarkReadResponse reports how many visitor messages were marked read.
type MarkReadResponse struct {
	Updated int64 `json:"updated"`
}

// CreateCannedRequest is a new saved reply.
type CreateCannedRequest struct {
	Title    string `json:"title" binding:"required" example:"Opening hours"`
	Content  string `json:"content" binding:"required" example:"We are online Monday to Friday, 9 to 5."`
	Shortcut string `json:"shortcut" example:"/hours"`
	Category string `json:"category" example:"general"`
}

//
// Config
//

// GetAdminConfig godoc
// @ID          getAdminConfig
// @Summary     Get the admin's chatbot config
// @Description Returns the config, creating it with defaults on first use.
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  domain.ChatbotConfig
// @Failure     401  {object}  handlers.ErrorResponse
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /admin/config [get]
func (h *Handlers) GetAdminConfig(c *gin.Context) {
	cfg, err := h.configs.EnsureForAdmin(c.Request.Context(), adminID(c))
	if err != nil {
		serviceError(c, err, ErrCodeConfigFailed, "failed to load config")
		return
	}
	ok(c, http.StatusOK, cfg)
}

// UpdateAdminConfig godoc
// @ID          updateAdminConfig
// @Summary     Update the admin's chatbot config
// @Description Applies a partial update; omitted fields are unchanged.
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body  services.ConfigPatch  true  "Fields to change"
// @Success     200  {object}  domain.ChatbotConfig
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     401  {object}  handlers.ErrorResponse
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /admin/config [put]
func (h *Handlers) UpdateAdminConfig(c *gin.Context) {
	var patch services.ConfigPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	cfg, err := h.configs.Update(c.Request.Context(), adminID(c), patch)
	if err != nil {
		serviceError(c, err, ErrCodeUpdateFailed, "failed to update config")
		return
	}
	ok(c, http.StatusOK, cfg)
}

//
// Sessions
//

// ListSessions godoc
// @ID          listSessions
// @Summary     List sessions
// @Description Most recently active first. Supports If-None-Match.
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
// @Param       status     query  string  false  "active or closed"
// @Param       page       query  int     false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListSessionsResponse
// @Success     304  "Not modified"
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     401  {object}  handlers.ErrorResponse
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /admin/sessions [get]
func (h *Handlers) ListSessions(c *gin.Context) {
	ctx := c.Request.Context()
	admin := adminID(c)
	status := strings.TrimSpace(c.Query("status"))
	if status != "" && !domain.ValidStatus(status) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, services.ErrInvalidStatus.Error())
		return
	}

	if h.db != nil {
		if count, last, err := repo.SessionsStats(ctx, h.db, admin, status); err == nil {
			if notModified(c, "sessions", admin+":"+status, count, last) {
				return
			}
		}
	}

	page, pageSize := clampPagination(c, 20)
	items, total, err := h.sessions.ListPage(ctx, admin, status, page, pageSize)
	if err != nil {
		serviceError(c, err, ErrCodeListFailed, "failed to list sessions")
		return
	}
	ok(c, http.StatusOK, ListSessionsResponse{Sessions: items, Pagination: newPagination(page, pageSize, total)})
}

// UpdateSession godoc
// @ID          updateSession
// @Summary     Close or reopen a session
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  string                         true  "Session id"
// @Param       body  body  handlers.UpdateSessionRequest  true  "New status"
// @Success     200  {object}  domain.Session
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /admin/sessions/{id} [patch]
func (h *Handlers) UpdateSession(c *gin.Context) {
	var req UpdateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status required")
		return
	}
	s, err := h.sessions.SetStatus(c.Request.Context(), adminID(c), c.Param("id"), strings.TrimSpace(req.Status))
	if err != nil {
		serviceError(c, err, ErrCodeUpdateFailed, "failed to update session")
		return
	}
	ok(c, http.StatusOK, s)
}

// DeleteSession godoc
// @ID          deleteSession
// @Summary     Delete a session and its messages
// @Tags        Admin
// @Security    BearerAuth
// @Param       id  path  string  true  "Session id"
// @Success     204  "Deleted"
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /admin/sessions/{id} [delete]
func (h *Handlers) DeleteSession(c *gin.Context) {
	if err := h.sessions.Delete(c.Request.Context(), adminID(c), c.Param("id")); err != nil {
		serviceError(c, err, ErrCodeInternal, "failed to delete session")
		return
	}
	noContent(c)
}

// ListSessionMessages godoc
// @ID          listSessionMessages
// @Summary     Read a session's thread
// @Description Oldest first, paginated. Supports If-None-Match.
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
// @Param       id         path   string  true   "Session id"
// @Param       page       query  int     false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int     false  "Items per page"  minimum(1) maximum(100) default(50)
// @Success     200  {object}  handlers.ListAdminMessagesResponse
// @Success     304  "Not modified"
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /admin/sessions/{id}/messages [get]
func (h *Handlers) ListSessionMessages(c *gin.Context) {
	ctx := c.Request.Context()
	admin, sessionID := adminID(c), c.Param("id")

	// Ownership first so the ETag never leaks a foreign thread's size.
	if _, err := h.sessions.Get(ctx, admin, sessionID); err != nil {
		serviceError(c, err, ErrCodeListFailed, "failed to list messages")
		return
	}
	if h.db != nil {
		if count, last, err := repo.MessagesStats(ctx, h.db, sessionID); err == nil {
			if notModified(c, "messages", sessionID, count, last) {
				return
			}
		}
	}

	page, pageSize := clampPagination(c, 50)
	items, total, err := h.messages.ListForAdmin(ctx, admin, sessionID, page, pageSize)
	if err != nil {
		serviceError(c, err, ErrCodeListFailed, "failed to list messages")
		return
	}
	ok(c, http.StatusOK, ListAdminMessagesResponse{Messages: items, Pagination: newPagination(page, pageSize, total)})
}

// ReplyToSession godoc
// @ID          replyToSession
// @Summary     Send an admin reply
// @Description The widget picks the reply up on its next poll. Idempotent with a key.
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       Idempotency-Key  header  string  false  "Retry key"
// @Param       id    path  string                 true  "Session id"
// @Param       body  body  handlers.ReplyRequest  true  "Reply"
// @Success     201  {object}  domain.Message
// @Success     200  {object}  domain.Message  "Replayed"
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /admin/sessions/{id}/messages [post]
func (h *Handlers) ReplyToSession(c *gin.Context) {
	var req ReplyRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}
	sessionID := c.Param("id")
	if prev := h.replay(c, sessionID); prev != nil {
		ok(c, http.StatusOK, prev)
		return
	}
	m, err := h.messages.Reply(c.Request.Context(), adminID(c), sessionID, req.Content)
	if err != nil {
		serviceError(c, err, ErrCodeSendFailed, "failed to send reply")
		return
	}
	h.remember(c, sessionID, m.ID)
	ok(c, http.StatusCreated, m)
}

// MarkSessionRead godoc
// @ID          markSessionRead
// @Summary     Mark visitor messages read
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Session id"
// @Success     200  {object}  handlers.MarkReadResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /admin/sessions/{id}/read [post]
func (h *Handlers) MarkSessionRead(c *gin.Context) {
	n, err := h.messages.MarkRead(c.Request.Context(), adminID(c), c.Param("id"))
	if err != nil {
		serviceError(c, err, ErrCodeUpdateFailed, "failed to mark read")
		return
	}
	ok(c, http.StatusOK, MarkReadResponse{Updated: n})
}

//
// Canned responses
//

// ListCanned godoc
// @ID          listCanned
// @Summary     List canned responses
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
// @Success     200  {array}   domain.CannedResponse
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /admin/responses [get]
func (h *Handlers) ListCanned(c *gin.Context) {
	items, err := h.canned.List(c.Request.Context(), adminID(c))
	if err != nil {
		serviceError(c, err, ErrCodeListFailed, "failed to list responses")
		return
	}
	ok(c, http.StatusOK, items)
}

// CreateCanned godoc
// @ID          createCanned
// @Summary     Create a canned response
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body  handlers.CreateCannedRequest  true  "Saved reply"
// @Success     201  {object}  domain.CannedResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /admin/responses [post]
func (h *Handlers) CreateCanned(c *gin.Context) {
	var req CreateCannedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "title and content required")
		return
	}
	cr, err := h.canned.Create(c.Request.Context(), adminID(c), services.CannedInput{
		Title:    req.Title,
		Content:  req.Content,
		Shortcut: req.Shortcut,
		Category: req.Category,
	})
	if err != nil {
		serviceError(c, err, ErrCodeCreateFailed, "failed to create response")
		return
	}
	ok(c, http.StatusCreated, cr)
}

// DeleteCanned godoc
// @ID          deleteCanned
// @Summary     Delete a canned response
// @Tags        Admin
// @Security    BearerAuth
// @Param       id  path  string  true  "Canned response id"
// @Success     204  "Deleted"
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /admin/responses/{id} [delete]
func (h *Handlers) DeleteCanned(c *gin.Context) {
	if err := h.canned.Delete(c.Request.Context(), adminID(c), c.Param("id")); err != nil {
		serviceError(c, err, ErrCodeInternal, "failed to delete response")
		return
	}
	noContent(c)
}

//
// Analytics
//

// GetAnalytics godoc
// @ID          getAnalytics
// @Summary     Dashboard analytics
// @Description Totals, week-over-week change, a 30-day series, response-time
// @Description distribution, peak hours and top referrer pages.
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  services.AnalyticsSummary
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /admin/analytics [get]
func (h *Handlers) GetAnalytics(c *gin.Context) {
	sum, err := h.analytics.Summary(c.Request.Context(), adminID(c), h.now())
	if err != nil {
		serviceError(c, err, ErrCodeInternal, "failed to compute analytics")
		return
	}
	ok(c, http.StatusOK, sum)
}
