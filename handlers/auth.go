package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/webaffe/webaffe/backend/console/internal/authstate"
	"github.com/webaffe/webaffe/backend/console/internal/identity"
	"github.com/webaffe/webaffe/backend/console/internal/models"
	"github.com/webaffe/webaffe/backend/console/pkg/logger"
)

// AuthProvider is the identity provider surface the console exposes.
type AuthProvider interface {
	SignInWithPassword(ctx context.Context, email, password string) (*models.Identity, error)
	SignUpWithPassword(ctx context.Context, email, password string) (*models.Identity, error)
	BeginPopupSignIn(ctx context.Context) (string, error)
	CompletePopupSignIn(ctx context.Context, state, code, errParam string) (*models.Identity, error)
	SendPasswordlessLink(ctx context.Context, email string) error
	CompleteLinkSignIn(ctx context.Context, token, email string) (*models.Identity, error)
	SessionToken(ctx context.Context) (string, error)
	SignOut(ctx context.Context) error
	GoogleEnabled() bool
}

// SessionSource is the read side of the session store.
type SessionSource interface {
	Snapshot() authstate.State
	Subscribe(fn func(authstate.State)) func()
}

type credentialsRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthHandler holds dependencies
type AuthHandler struct {
	provider AuthProvider
	session  SessionSource
}

func NewAuthHandler(p AuthProvider, s SessionSource) *AuthHandler {
	return &AuthHandler{provider: p, session: s}
}

// Register mounts /auth/* and the session endpoints.
func (h *AuthHandler) Register(r gin.IRouter) {
	a := r.Group("/auth")
	a.POST("/login", h.Login)
	a.POST("/signup", h.Signup)
	a.GET("/google/start", h.GoogleStart)
	a.GET("/google/callback", h.GoogleCallback)
	a.POST("/magic-link", h.SendMagicLink)
	a.GET("/magic-link/complete", h.CompleteMagicLink)
	a.POST("/magic-link/complete", h.CompleteMagicLink)
	a.POST("/logout", h.Logout)

	r.GET("/api/session", h.Session)
	r.GET("/api/session/events", h.SessionEvents)
}

// statusFor maps identity errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, identity.ErrTooManyRequests):
		return http.StatusTooManyRequests
	case errors.Is(err, identity.ErrEmailInUse):
		return http.StatusConflict
	case errors.Is(err, identity.ErrInvalidCredential),
		errors.Is(err, identity.ErrUserNotFound),
		errors.Is(err, identity.ErrInvalidLink):
		return http.StatusUnauthorized
	case errors.Is(err, identity.ErrWeakPassword),
		errors.Is(err, identity.ErrInvalidEmail),
		errors.Is(err, identity.ErrMissingEmail),
		errors.Is(err, identity.ErrPopupClosed),
		errors.Is(err, identity.ErrOperationNotAllowed):
		return http.StatusBadRequest
	case errors.Is(err, identity.ErrNetwork):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeAuthError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Errorf("auth %s: %v", c.FullPath(), err)
	} else {
		logger.Debugf("auth %s rejected: %v", c.FullPath(), err)
	}
	code := string(identity.ErrorCode(err))
	if code == "" {
		code = "internal"
	}
	c.JSON(status, gin.H{"error": code, "message": identity.Message(err)})
}

// signedIn answers a successful sign-in with the identity and the bearer
// token the gated routes expect.
func (h *AuthHandler) signedIn(c *gin.Context, status int, id *models.Identity) {
	token, err := h.provider.SessionToken(c.Request.Context())
	if err != nil {
		writeAuthError(c, err)
		return
	}
	c.JSON(status, gin.H{"identity": id, "token": token})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := h.provider.SignInWithPassword(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeAuthError(c, err)
		return
	}
	h.signedIn(c, http.StatusOK, id)
}

func (h *AuthHandler) Signup(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := h.provider.SignUpWithPassword(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeAuthError(c, err)
		return
	}
	h.signedIn(c, http.StatusCreated, id)
}

// GoogleStart redirects the popup to Google's consent page.
func (h *AuthHandler) GoogleStart(c *gin.Context) {
	u, err := h.provider.BeginPopupSignIn(c.Request.Context())
	if err != nil {
		writeAuthError(c, err)
		return
	}
	c.Redirect(http.StatusFound, u)
}

func (h *AuthHandler) GoogleCallback(c *gin.Context) {
	id, err := h.provider.CompletePopupSignIn(c.Request.Context(), c.Query("state"), c.Query("code"), c.Query("error"))
	if err != nil {
		writeAuthError(c, err)
		return
	}
	h.signedIn(c, http.StatusOK, id)
}

func (h *AuthHandler) SendMagicLink(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.provider.SendPasswordlessLink(c.Request.Context(), req.Email); err != nil {
		writeAuthError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "sign-in link sent"})
}

// CompleteMagicLink accepts the link itself (GET ?token=) or a JSON body
// carrying the token and, optionally, the email it was sent to.
func (h *AuthHandler) CompleteMagicLink(c *gin.Context) {
	var req struct {
		Token string `json:"token"`
		Email string `json:"email"`
	}
	if c.Request.Method == http.MethodPost {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	} else {
		req.Token, req.Email = c.Query("token"), c.Query("email")
	}
	if req.Token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token required"})
		return
	}
	id, err := h.provider.CompleteLinkSignIn(c.Request.Context(), req.Token, req.Email)
	if err != nil {
		writeAuthError(c, err)
		return
	}
	h.signedIn(c, http.StatusOK, id)
}

func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.provider.SignOut(c.Request.Context()); err != nil {
		writeAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Session returns the current session with its derived fields.
func (h *AuthHandler) Session(c *gin.Context) {
	c.JSON(http.StatusOK, h.session.Snapshot().View())
}

// SessionEvents streams the session as Server-Sent Events: the current value
// first, then every replacement. A slow reader only ever misses intermediate
// values, never the latest one.
func (h *AuthHandler) SessionEvents(c *gin.Context) {
	ch := make(chan authstate.State, 8)
	unsubscribe := h.session.Subscribe(func(st authstate.State) {
		for {
			select {
			case ch <- st:
				return
			default:
			}
			select {
			case <-ch:
			default:
			}
		}
	})
	defer unsubscribe()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("session", h.session.Snapshot().View())
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case st := <-ch:
			c.SSEvent("session", st.View())
			return true
		}
	})
}
