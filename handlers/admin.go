package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/webaffe/webaffe/backend/console/internal/models"
	"github.com/webaffe/webaffe/backend/console/internal/users"
	"github.com/webaffe/webaffe/backend/console/pkg/logger"
)

// Refresher re-runs the session transition after an admin edit.
type Refresher interface {
	Refresh()
}

// AdminHandler serves user management and settings. Mount it behind
// middleware.RequireAdmin.
type AdminHandler struct {
	users   *users.Service
	refresh Refresher
}

func NewAdminHandler(u *users.Service, r Refresher) *AdminHandler {
	return &AdminHandler{users: u, refresh: r}
}

func (h *AdminHandler) Register(r gin.IRouter) {
	r.GET("/users", h.ListUsers)
	r.GET("/users/stats", h.Stats)
	r.GET("/users/:uid", h.GetUser)
	r.PATCH("/users/:uid", h.UpdateUser)
	r.POST("/users/:uid/approve", h.action(h.users.Approve))
	r.POST("/users/:uid/promote", h.action(h.users.Promote))
	r.POST("/users/:uid/demote", h.action(h.users.Demote))
	r.POST("/users/:uid/revoke", h.action(h.users.Revoke))
	r.GET("/settings", h.GetSettings)
	r.PUT("/settings", h.UpdateSettings)
}

func writeUsersError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, users.ErrProfileNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
	case errors.Is(err, users.ErrProtectedAccount):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, users.ErrNotApproved):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, users.ErrInvalidRole):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logger.Errorf("admin %s: %v", c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "profile store unavailable"})
	}
}

func (h *AdminHandler) changed() {
	if h.refresh != nil {
		h.refresh.Refresh()
	}
}

func (h *AdminHandler) ListUsers(c *gin.Context) {
	f, ok := users.ParseFilter(c.Query("filter"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown filter"})
		return
	}
	list, err := h.users.ListProfiles(c.Request.Context(), f, c.Query("search"))
	if err != nil {
		writeUsersError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *AdminHandler) Stats(c *gin.Context) {
	st, err := h.users.Stats(c.Request.Context())
	if err != nil {
		writeUsersError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *AdminHandler) GetUser(c *gin.Context) {
	p, err := h.users.GetProfile(c.Request.Context(), c.Param("uid"))
	if err != nil {
		writeUsersError(c, err)
		return
	}
	if p == nil {
		writeUsersError(c, users.ErrProfileNotFound)
		return
	}
	c.JSON(http.StatusOK, p)
}

// UpdateUser applies a partial profile update. Role and approval changes get
// the same checks as the dedicated actions.
func (h *AdminHandler) UpdateUser(c *gin.Context) {
	var upd models.ProfileUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if upd.Empty() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no fields to update"})
		return
	}
	uid := c.Param("uid")
	if err := h.users.UpdateProfile(c.Request.Context(), uid, upd); err != nil {
		writeUsersError(c, err)
		return
	}
	h.changed()
	c.JSON(http.StatusOK, gin.H{"uid": uid})
}

func (h *AdminHandler) action(fn func(ctx context.Context, uid string) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := c.Param("uid")
		if err := fn(c.Request.Context(), uid); err != nil {
			writeUsersError(c, err)
			return
		}
		h.changed()
		c.JSON(http.StatusOK, gin.H{"uid": uid})
	}
}

func (h *AdminHandler) GetSettings(c *gin.Context) {
	cfg, err := h.users.GetGlobalConfig(c.Request.Context())
	if err != nil {
		writeUsersError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (h *AdminHandler) UpdateSettings(c *gin.Context) {
	var upd models.ConfigUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.users.SetGlobalConfig(c.Request.Context(), upd); err != nil {
		writeUsersError(c, err)
		return
	}
	h.changed()
	cfg, err := h.users.GetGlobalConfig(c.Request.Context())
	if err != nil {
		writeUsersError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}
