package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/webaffe/webaffe/backend/console/internal/board"
	"github.com/webaffe/webaffe/backend/console/internal/board/service"
)

type createRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	Severity    string `json:"severity"`
	Steps       string `json:"steps"`
	Subject     string `json:"subject"`
	Message     string `json:"message"`
	Author      string `json:"author"`
	AuthorEmail string `json:"authorEmail"`
}

// RegisterBoardRoutes mounts the board endpoints under /boards on r.
func RegisterBoardRoutes(r gin.IRouter, svc service.Service) {
	g := r.Group("/boards/:kind", kindParam)

	g.GET("", func(c *gin.Context) {
		list, err := svc.List(c.Request.Context(), kindOf(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list items"})
			return
		}
		c.JSON(http.StatusOK, list)
	})

	g.GET("/columns", func(c *gin.Context) {
		cols, err := svc.Columns(c.Request.Context(), kindOf(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load board"})
			return
		}
		c.JSON(http.StatusOK, cols)
	})

	g.GET("/counts", func(c *gin.Context) {
		counts, err := svc.Counts(c.Request.Context(), kindOf(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count items"})
			return
		}
		c.JSON(http.StatusOK, counts)
	})

	g.POST("", func(c *gin.Context) {
		var req createRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		it := &board.Item{
			Title:       req.Title,
			Description: req.Description,
			Priority:    req.Priority,
			Severity:    req.Severity,
			Steps:       req.Steps,
			Subject:     req.Subject,
			Message:     req.Message,
			Author:      req.Author,
			AuthorEmail: req.AuthorEmail,
		}
		id, err := svc.Create(c.Request.Context(), kindOf(c), it)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"id": id, "status": it.Status})
	})

	g.GET("/items/:id", func(c *gin.Context) {
		it, err := svc.Get(c.Request.Context(), kindOf(c), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, it)
	})

	g.PATCH("/items/:id/status", func(c *gin.Context) {
		var req struct {
			Status string `json:"status" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		id := c.Param("id")
		if err := svc.MoveStatus(c.Request.Context(), kindOf(c), id, req.Status); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": id, "status": req.Status})
	})
}

func kindParam(c *gin.Context) {
	k, ok := board.ParseKind(c.Param("kind"))
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown board"})
		return
	}
	c.Set("boardKind", k)
	c.Next()
}

func kindOf(c *gin.Context) board.Kind {
	return c.MustGet("boardKind").(board.Kind)
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, service.ErrInvalidStatus), errors.Is(err, service.ErrInvalidItem):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
