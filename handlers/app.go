package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/webaffe/webaffe/backend/console/pkg/middleware"
)

// RegisterAppRoutes mounts the approved-user endpoints. Mount behind
// middleware.RequireApproved.
func RegisterAppRoutes(r gin.IRouter) {
	r.GET("/me", func(c *gin.Context) {
		st, _ := middleware.SessionFrom(c)
		c.JSON(http.StatusOK, gin.H{"identity": st.Identity, "profile": st.Profile})
	})
	r.GET("/config", func(c *gin.Context) {
		st, _ := middleware.SessionFrom(c)
		c.JSON(http.StatusOK, st.Config)
	})
}
