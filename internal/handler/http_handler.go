package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/domain"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/inbox"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/service"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/pkg/log"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/pkg/middleware"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/pkg/response"
)

// Handler handles the REST API.
type Handler struct {
	authService    service.AuthService
	chatService    service.ChatService
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler creates a new HTTP handler.
func NewHandler(authService service.AuthService, chatService service.ChatService, authMiddleware *middleware.AuthMiddleware) *Handler {
	return &Handler{
		authService:    authService,
		chatService:    chatService,
		authMiddleware: authMiddleware,
	}
}

// SendMessageRequest is the body of POST /conversations/:id/messages.
type SendMessageRequest struct {
	Content   string `json:"content"`
	ClientRef string `json:"client_ref"`
}

// RegisterRoutes registers all routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		// Public routes
		auth := api.Group("/auth")
		{
			auth.POST("/register", h.Register)
			auth.POST("/login", h.Login)
		}

		// Protected routes
		users := api.Group("/users")
		users.Use(h.authMiddleware.RequireAuth())
		{
			users.GET("", h.ListUsers)
			users.GET("/me", h.GetMe)
		}

		convs := api.Group("/conversations")
		convs.Use(h.authMiddleware.RequireAuth())
		{
			convs.POST("", h.CreateConversation)
			convs.GET("", h.ListConversations)
			convs.GET("/:id/messages", h.ListMessages)
			convs.POST("/:id/messages", h.SendMessage)
			convs.POST("/:id/read", h.MarkRead)
		}
	}
}

// Register handles user registration.
func (h *Handler) Register(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	var req domain.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid register request")
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.authService.Register(ctx, &req)
	if err != nil {
		h.handleError(c, err, "failed to register user")
		return
	}

	response.Created(c, result)
}

// Login exchanges credentials for tokens.
func (h *Handler) Login(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	var req domain.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid login request")
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.authService.Authenticate(ctx, &req)
	if err != nil {
		h.handleError(c, err, "failed to login")
		return
	}

	response.Success(c, result)
}

// GetMe returns current user info.
func (h *Handler) GetMe(c *gin.Context) {
	userID, ok := h.requireUser(c)
	if !ok {
		return
	}

	user, err := h.authService.GetUser(c.Request.Context(), userID)
	if err != nil {
		h.handleError(c, err, "failed to get user")
		return
	}

	response.Success(c, user)
}

// ListUsers returns every user except the caller.
func (h *Handler) ListUsers(c *gin.Context) {
	userID, ok := h.requireUser(c)
	if !ok {
		return
	}

	users, err := h.chatService.ListOtherUsers(c.Request.Context(), userID)
	if err != nil {
		h.handleError(c, err, "failed to list users")
		return
	}

	response.List(c, users, len(users))
}

// CreateConversation returns the conversation with participant_id,
// creating it on first use.
func (h *Handler) CreateConversation(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	userID, ok := h.requireUser(c)
	if !ok {
		return
	}

	var req domain.CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid create conversation request")
		response.BadRequest(c, err.Error())
		return
	}

	conv, err := h.chatService.CreateConversation(ctx, userID, req.ParticipantID)
	if err != nil {
		h.handleError(c, err, "failed to create conversation")
		return
	}

	response.Created(c, conv)
}

// ListConversations returns the caller's conversations, most recent
// first, optionally filtered by ?q=.
func (h *Handler) ListConversations(c *gin.Context) {
	userID, ok := h.requireUser(c)
	if !ok {
		return
	}

	convs, err := h.chatService.ListConversations(c.Request.Context(), userID)
	if err != nil {
		h.handleError(c, err, "failed to list conversations")
		return
	}

	inbox.Sort(convs)
	convs = inbox.FilterList(convs, c.Query("q"))
	response.List(c, convs, len(convs))
}

// ListMessages returns a conversation's history.
func (h *Handler) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()
	userID, ok := h.requireUser(c)
	if !ok {
		return
	}
	convID := c.Param("id")

	if _, err := h.chatService.GetConversation(ctx, convID, userID); err != nil {
		h.handleError(c, err, "failed to get conversation")
		return
	}

	msgs, err := h.chatService.ListMessages(ctx, convID)
	if err != nil {
		h.handleError(c, err, "failed to list messages")
		return
	}

	response.List(c, msgs, len(msgs))
}

// SendMessage stores a message from the caller.
func (h *Handler) SendMessage(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	userID, ok := h.requireUser(c)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid send message request")
		response.BadRequest(c, err.Error())
		return
	}

	msg, err := h.chatService.CreateMessage(ctx, domain.CreateMessageInput{
		ConversationID: c.Param("id"),
		SenderID:       userID,
		Content:        req.Content,
		ClientRef:      req.ClientRef,
	})
	if err != nil {
		h.handleError(c, err, "failed to send message")
		return
	}

	response.Created(c, msg)
}

// MarkRead flags the conversation's incoming messages as read.
func (h *Handler) MarkRead(c *gin.Context) {
	ctx := c.Request.Context()
	userID, ok := h.requireUser(c)
	if !ok {
		return
	}
	convID := c.Param("id")

	if _, err := h.chatService.GetConversation(ctx, convID, userID); err != nil {
		h.handleError(c, err, "failed to get conversation")
		return
	}

	if err := h.chatService.MarkRead(ctx, convID, userID); err != nil {
		h.handleError(c, err, "failed to mark conversation read")
		return
	}

	response.Success(c, gin.H{"conversation_id": convID})
}

func (h *Handler) requireUser(c *gin.Context) (string, bool) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		response.Unauthorized(c, "unauthorized")
		return "", false
	}
	return userID, true
}

// handleError maps domain errors to responses. Anything unrecognised is
// logged and reported as msg with a 500.
func (h *Handler) handleError(c *gin.Context, err error, msg string) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		response.Unprocessable(c, ve.Error())
	case errors.Is(err, domain.ErrSelfConversation):
		response.Unprocessable(c, err.Error())
	case errors.Is(err, domain.ErrNotParticipant):
		response.Forbidden(c, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		response.NotFound(c, "not found")
	case errors.Is(err, domain.ErrEmailExists), errors.Is(err, domain.ErrUsernameExists):
		response.Conflict(c, err.Error())
	case errors.Is(err, domain.ErrInvalidCredentials):
		response.Unauthorized(c, "invalid email or password")
	default:
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Msg(msg)
		response.InternalError(c, msg)
	}
}
