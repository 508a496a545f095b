package handlers

import (
	"net/http"

	"aprenda/internal/observability"
	"aprenda/internal/services"

	"github.com/gin-gonic/gin"
)

// UserHandler serves user account endpoints
type UserHandler struct {
	users  services.UserService
	logger *observability.Logger
}

// NewUserHandler creates a new user handler
func NewUserHandler(users services.UserService, logger *observability.Logger) *UserHandler {
	return &UserHandler{
		users:  users,
		logger: logger,
	}
}

// CreateUserRequest is the payload for user registration
type CreateUserRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password"`
}

// CreateUser registers a new learner
func (h *UserHandler) CreateUser(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "create_user")
	var err error
	defer observability.FinishSpan(span, &err)

	var req CreateUserRequest
	if bindErr := c.ShouldBindJSON(&req); bindErr != nil {
		HandleValidationError(c, "request body", "", bindErr.Error())
		return
	}

	user, err := h.users.CreateUser(ctx, req.Name, req.Email, req.Password)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, user)
}

// GetCurrentUser returns the calling user's account
func (h *UserHandler) GetCurrentUser(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_current_user")
	var err error
	defer observability.FinishSpan(span, &err)

	user, err := h.users.GetUserByID(ctx, currentUserID(c))
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}
