package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kanbanlab/kanban-client/internal/identity"
	"github.com/kanbanlab/kanban-client/internal/identity/service"
)

type RegisterRequest struct {
	Email       string `json:"email" binding:"required"`
	Password    string `json:"password" binding:"required"`
	DisplayName string `json:"display_name"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthHandler exposes the session operations over HTTP.
type AuthHandler struct {
	session *service.Session
	google  *identity.GoogleOAuth
}

func NewAuthHandler(session *service.Session, google *identity.GoogleOAuth) *AuthHandler {
	return &AuthHandler{session: session, google: google}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	res := h.session.Register(c.Request.Context(), req.Email, req.Password, req.DisplayName)
	c.JSON(statusFor(res), res)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	res := h.session.Login(c.Request.Context(), req.Email, req.Password)
	c.JSON(statusFor(res), res)
}

// GoogleLogin redirects the browser to the Google consent screen,
// standing in for the popup the web client opens.
func (h *AuthHandler) GoogleLogin(c *gin.Context) {
	state := uuid.New().String()
	c.SetCookie("oauth_state", state, 300, "/", "", false, true)
	c.Redirect(http.StatusTemporaryRedirect, h.google.LoginURL(state))
}

// GoogleCallback receives the authorization code, exchanges it for a
// Google ID token and signs the session in with it.
func (h *AuthHandler) GoogleCallback(c *gin.Context) {
	state, err := c.Cookie("oauth_state")
	if err != nil || state == "" || state != c.Query("state") {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid oauth state"})
		return
	}

	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "missing authorization code"})
		return
	}

	idToken, err := h.google.ExchangeCode(c.Request.Context(), code)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": "code exchange failed"})
		return
	}

	res := h.session.LoginWithGoogle(c.Request.Context(), idToken)
	c.JSON(statusFor(res), res)
}

func (h *AuthHandler) Logout(c *gin.Context) {
	res := h.session.Logout(c.Request.Context())
	c.JSON(statusFor(res), res)
}

// SessionInfo reports the current session snapshot for the view layer.
func (h *AuthHandler) SessionInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"loading":       h.session.Loading(),
		"authenticated": h.session.IsAuthenticated(),
		"user":          h.session.CurrentUser(),
		"profile":       h.session.Profile(),
		"user_name":     h.session.UserName(),
	})
}

func (h *AuthHandler) RegisterRoutes(r gin.IRouter) {
	r.POST("/auth/register", h.Register)
	r.POST("/auth/login", h.Login)
	r.GET("/auth/google/login", h.GoogleLogin)
	r.GET("/auth/google/callback", h.GoogleCallback)
	r.POST("/auth/logout", h.Logout)
	r.GET("/auth/session", h.SessionInfo)
}

func statusFor(res service.Result) int {
	if res.Success {
		return http.StatusOK
	}
	return http.StatusUnprocessableEntity
}
