package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/autoschool-chat/internal/domain"
	"github.com/weiawesome/autoschool-chat/internal/repository"
	"github.com/weiawesome/autoschool-chat/internal/service"
	"github.com/weiawesome/autoschool-chat/pkg/middleware"
	"github.com/weiawesome/autoschool-chat/pkg/response"
)

const scopeAssigned = "assigned"

type HTTPHandler struct {
	messaging     service.MessagingService
	conversations service.ConversationService
}

func NewHTTPHandler(messaging service.MessagingService, conversations service.ConversationService) *HTTPHandler {
	return &HTTPHandler{
		messaging:     messaging,
		conversations: conversations,
	}
}

func (h *HTTPHandler) RegisterRoutes(r *gin.Engine, auth *middleware.AuthMiddleware) {
	api := r.Group("/api/v1")
	api.Use(auth.RequireAuth())
	{
		api.POST("/messages", h.SendMessage)
		api.GET("/messages", h.Inbox)
		api.GET("/messages/:userId", h.History)
		api.PUT("/messages/:id/status", h.UpdateStatus)

		api.GET("/conversations", h.Conversations)
		api.GET("/conversations/unread-count", h.UnreadCount)
		api.PUT("/conversations/:userId/read", h.MarkRead)
	}

	r.GET("/health", h.HealthCheck)
}

func (h *HTTPHandler) SendMessage(c *gin.Context) {
	var req domain.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}

	userID := middleware.GetUserID(c)
	msg, err := h.messaging.SendMessage(c.Request.Context(), domain.Origin{UserID: userID}, userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Created(c, msg)
}

// Inbox lists messages addressed to the caller, filtered by ?status=a,b.
func (h *HTTPHandler) Inbox(c *gin.Context) {
	var statuses []domain.Status
	if raw := c.Query("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			st, ok := domain.ParseStatus(part)
			if !ok {
				response.ValidationFailed(c, "status", "unknown status "+strings.TrimSpace(part))
				return
			}
			statuses = append(statuses, st)
		}
	}

	messages, err := h.messaging.Inbox(c.Request.Context(), middleware.GetUserID(c), statuses)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, messages)
}

func (h *HTTPHandler) History(c *gin.Context) {
	order := repository.ParseSortOrder(c.DefaultQuery("order", string(repository.SortAsc)))

	messages, err := h.messaging.History(c.Request.Context(), middleware.GetUserID(c), c.Param("userId"), order)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, messages)
}

func (h *HTTPHandler) UpdateStatus(c *gin.Context) {
	var req domain.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationFailed(c, "status", "status is required")
		return
	}

	status, ok := domain.ParseStatus(req.Status)
	if !ok {
		response.ValidationFailed(c, "status", "status must be one of sent, delivered, read")
		return
	}

	msg, err := h.messaging.UpdateStatus(c.Request.Context(), c.Param("id"), status)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, msg)
}

func (h *HTTPHandler) Conversations(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var (
		convs []domain.Conversation
		err   error
	)
	if c.Query("scope") == scopeAssigned {
		convs, err = h.conversations.ListAssigned(c.Request.Context(), userID)
	} else {
		convs, err = h.conversations.List(c.Request.Context(), userID)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, convs)
}

func (h *HTTPHandler) UnreadCount(c *gin.Context) {
	n, err := h.conversations.UnreadCount(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, domain.UnreadCount{Count: n})
}

// MarkRead marks everything :userId sent to the caller as read.
func (h *HTTPHandler) MarkRead(c *gin.Context) {
	readerID := middleware.GetUserID(c)
	counterpartID := c.Param("userId")

	n, err := h.messaging.MarkRead(c.Request.Context(), domain.Origin{UserID: readerID}, readerID, counterpartID)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, domain.MarkReadResult{
		ReaderID:       readerID,
		ConversationID: counterpartID,
		Updated:        n,
	})
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}
