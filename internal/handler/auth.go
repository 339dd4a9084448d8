package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"Go_Drop/internal/dto"
	"Go_Drop/internal/service"
)

type AuthHandler struct {
	users *service.UserService
}

func NewAuthHandler(users *service.UserService) *AuthHandler {
	return &AuthHandler{users: users}
}

// Register creates an account, or a pending one awaiting email activation.
func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	user, err := h.users.Register(c.Request.Context(), req.Username, req.Password, req.Email)
	if err != nil {
		writeError(c, err)
		return
	}
	if user == nil {
		c.JSON(http.StatusAccepted, dto.RegisterResponse{PendingActivation: true})
		return
	}
	c.JSON(http.StatusCreated, dto.RegisterResponse{User: user})
}

// Activate consumes the token from an activation mail.
func (h *AuthHandler) Activate(c *gin.Context) {
	user, err := h.users.Activate(c.Request.Context(), c.Query("token"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.RegisterResponse{User: user})
}

// Login authenticates a user and returns a token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	user, token, err := h.users.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.LoginResponse{Token: token, User: user})
}

func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.users.GetUser(c.Request.Context(), currentUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
