package handler

import (
	"errors"
	"net/http"

	"github.com/apimgr/weatherdash/src/scheduler"
	"github.com/gin-gonic/gin"
)

// SchedulerHandler exposes the background task list
type SchedulerHandler struct {
	Scheduler *scheduler.Scheduler
}

// NewSchedulerHandler creates a new scheduler handler
func NewSchedulerHandler(s *scheduler.Scheduler) *SchedulerHandler {
	return &SchedulerHandler{Scheduler: s}
}

// GetAllTasks returns all tasks with their status and recent runs
func (h *SchedulerHandler) GetAllTasks(c *gin.Context) {
	tasks := h.Scheduler.Tasks()
	c.JSON(http.StatusOK, gin.H{
		"tasks": tasks,
		"count": len(tasks),
	})
}

// EnableTask enables a specific task
func (h *SchedulerHandler) EnableTask(c *gin.Context) {
	h.toggle(c, true)
}

// DisableTask disables a specific task
func (h *SchedulerHandler) DisableTask(c *gin.Context) {
	h.toggle(c, false)
}

func (h *SchedulerHandler) toggle(c *gin.Context, enabled bool) {
	taskName := c.Param("name")

	var err error
	if enabled {
		err = h.Scheduler.EnableTask(taskName)
	} else {
		err = h.Scheduler.DisableTask(taskName)
	}
	if err != nil {
		RespondError(c, http.StatusNotFound, ErrNotFound, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":        true,
		"task_name": taskName,
		"enabled":   enabled,
	})
}

// TriggerTask runs a task immediately and reports its outcome
func (h *SchedulerHandler) TriggerTask(c *gin.Context) {
	taskName := c.Param("name")

	err := h.Scheduler.RunNow(c.Request.Context(), taskName)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"ok": true, "task_name": taskName})
	case errors.Is(err, scheduler.ErrTaskNotFound):
		RespondError(c, http.StatusNotFound, ErrNotFound, err.Error())
	case errors.Is(err, scheduler.ErrTaskRunning):
		Conflict(c, err.Error())
	default:
		c.JSON(http.StatusOK, gin.H{"ok": false, "task_name": taskName, "error": err.Error()})
	}
}
