package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/coursebeat/coursebeat/internal/curriculum"
	"github.com/coursebeat/coursebeat/internal/scheduler"
)

type stepKeyRequest struct {
	Day       int `json:"day" binding:"min=0"`
	StepIndex int `json:"step_index" binding:"min=0"`
}

type startStepRequest struct {
	stepKeyRequest
	DurationSec int64  `json:"duration_sec" binding:"required,gt=0"`
	StepTitle   string `json:"step_title"`
	URL         string `json:"url"`
}

// StartStep arms the countdown notification for a timed training step.
func (h *Handlers) StartStep(c *gin.Context) {
	var req startStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	n, err := h.scheduler.Create(c.Request.Context(), scheduler.CreateParams{
		UserID:    currentUserID(c),
		Day:       req.Day,
		StepIndex: req.StepIndex,
		Duration:  time.Duration(req.DurationSec) * time.Second,
		StepTitle: req.StepTitle,
		URL:       req.URL,
	})
	if err != nil {
		h.respondSchedulerError(c, err)
		return
	}

	c.JSON(http.StatusCreated, n)
}

func (h *Handlers) PauseStep(c *gin.Context) {
	var req struct {
		stepKeyRequest
		RemainingSec *int64 `json:"remaining_sec"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.scheduler.Pause(c.Request.Context(), currentUserID(c), req.Day, req.StepIndex, req.RemainingSec); err != nil {
		h.respondSchedulerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"paused": true})
}

func (h *Handlers) ResumeStep(c *gin.Context) {
	var req struct {
		stepKeyRequest
		FallbackDurationSec int64  `json:"fallback_duration_sec" binding:"min=0"`
		CourseDayID         string `json:"course_day_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	n, err := h.scheduler.Resume(
		c.Request.Context(),
		currentUserID(c),
		req.Day,
		req.StepIndex,
		time.Duration(req.FallbackDurationSec)*time.Second,
		req.CourseDayID,
	)
	if err != nil {
		h.respondSchedulerError(c, err)
		return
	}
	if n == nil {
		// Elapsed while paused; discarded rather than fired late.
		c.JSON(http.StatusOK, gin.H{"resumed": false, "reason": "elapsed"})
		return
	}

	c.JSON(http.StatusOK, n)
}

func (h *Handlers) ResetStep(c *gin.Context) {
	var req stepKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.scheduler.Reset(c.Request.Context(), currentUserID(c), req.Day, req.StepIndex); err != nil {
		h.respondSchedulerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reset": true})
}

func (h *Handlers) ToggleStepPause(c *gin.Context) {
	var req struct {
		stepKeyRequest
		Pause *bool `json:"pause" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.scheduler.ToggleLevelPause(c.Request.Context(), currentUserID(c), req.Day, req.StepIndex, *req.Pause); err != nil {
		h.respondSchedulerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"paused": *req.Pause})
}

func (h *Handlers) DeleteStepOnPause(c *gin.Context) {
	var req struct {
		stepKeyRequest
		Deleted *bool `json:"deleted" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.scheduler.DeleteOnPause(c.Request.Context(), currentUserID(c), req.Day, req.StepIndex, *req.Deleted); err != nil {
		h.respondSchedulerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// SendImmediate queues a zero-delay push for the current user.
func (h *Handlers) SendImmediate(c *gin.Context) {
	var req struct {
		Title string `json:"title" binding:"required"`
		Body  string `json:"body" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.scheduler.CreateImmediate(c.Request.Context(), currentUserID(c), req.Title, req.Body)
	if err != nil && !errors.Is(err, scheduler.ErrNoSubscriptions) && !errors.Is(err, scheduler.ErrQueue) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue notification"})
		return
	}
	// Queueing outcomes, including failures, are reported in the body so the
	// caller can act on the orphaned record id.
	c.JSON(http.StatusOK, result)
}

func (h *Handlers) respondSchedulerError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, scheduler.ErrNoSubscriptions):
		c.JSON(http.StatusConflict, gin.H{"error": "no push subscriptions registered"})
	case errors.Is(err, scheduler.ErrNotFound), errors.Is(err, curriculum.ErrStepNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
	case errors.Is(err, scheduler.ErrDeletedOnPause):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, scheduler.ErrQueue):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to schedule delivery"})
	default:
		h.logger.Error("scheduler operation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
