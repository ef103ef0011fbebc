package handlers

import (
	"context"
	"net/http"
	"strconv"

	"example.com/lifeline/agent/internal/repositories"
	"example.com/lifeline/agent/internal/sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// SyncHandler exposes the operator-facing sync views: aggregate status,
// the event queue with error detail, per-event retry/dismiss, and an
// on-demand cycle trigger. Unresolved rejections are operator-actionable
// data, so this read path is first-class.
type SyncHandler struct {
	queue  *repositories.QueueRepository
	engine *sync.Engine
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(queue *repositories.QueueRepository, engine *sync.Engine) *SyncHandler {
	return &SyncHandler{
		queue:  queue,
		engine: engine,
	}
}

// RegisterRoutes registers the sync routes
func (h *SyncHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/sync/status", h.GetStatus)
	router.POST("/sync/run", h.RunNow)
	router.GET("/sync/queue", h.ListQueue)
	router.POST("/sync/queue/:id/retry", h.RetryEvent)
	router.DELETE("/sync/queue/:id", h.DismissEvent)
}

// GetStatus returns the engine's aggregate status
func (h *SyncHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Status())
}

// RunNow triggers a synchronization cycle without waiting for the timer.
// The cycle runs in the background; if one is already in flight the request
// is still accepted and the trigger is a no-op.
func (h *SyncHandler) RunNow(c *gin.Context) {
	// Detached from the request context: the cycle outlives the response.
	go h.engine.RunCycle(context.Background())
	c.JSON(http.StatusAccepted, gin.H{"message": "sync cycle triggered"})
}

// ListQueue returns queue events, optionally filtered by status
func (h *SyncHandler) ListQueue(c *gin.Context) {
	status := c.Query("status")

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	events, err := h.queue.List(c.Request.Context(), status, limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list queue events")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list queue events"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": events})
}

// RetryEvent resets a rejected event for another delivery attempt
func (h *SyncHandler) RetryEvent(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	if err := h.queue.Retry(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "event queued for retry"})
}

// DismissEvent permanently removes an event from the queue
func (h *SyncHandler) DismissEvent(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	if err := h.queue.Dismiss(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "event dismissed"})
}
