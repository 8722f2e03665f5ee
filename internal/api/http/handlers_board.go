package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kanbanlab/kanban-client/internal/board/repository"
	"github.com/kanbanlab/kanban-client/internal/board/store"
)

// BoardHandler exposes the project/task sync operations over HTTP.
// Each GET refreshes the mirror with a one-shot load before reading
// it; live subscriptions are a library concern, not an HTTP one.
type BoardHandler struct {
	store *store.Store
}

func NewBoardHandler(s *store.Store) *BoardHandler {
	return &BoardHandler{store: s}
}

type TaskUpdateRequest struct {
	Title        *string    `json:"title"`
	Description  *string    `json:"description"`
	DueDate      *time.Time `json:"due_date"`
	ClearDueDate bool       `json:"clear_due_date"`
	Status       *string    `json:"status"`
}

type StatusUpdateRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *BoardHandler) ListProjects(c *gin.Context) {
	if res := h.store.LoadProjects(c.Request.Context()); !res.Success {
		c.JSON(http.StatusBadGateway, res)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "projects": h.store.Projects()})
}

func (h *BoardHandler) CreateProject(c *gin.Context) {
	var input store.ProjectInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	res := h.store.CreateProject(c.Request.Context(), input)
	c.JSON(boardStatus(res, http.StatusCreated), res)
}

func (h *BoardHandler) UpdateProject(c *gin.Context) {
	var input store.ProjectInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	res := h.store.UpdateProject(c.Request.Context(), c.Param("id"), input)
	c.JSON(boardStatus(res, http.StatusOK), res)
}

// DeleteProject requires confirm=true; without it the operation is
// cancelled before any network call, mirroring the interactive
// confirmation step of the web client.
func (h *BoardHandler) DeleteProject(c *gin.Context) {
	if !confirmed(c) {
		c.JSON(http.StatusOK, store.Result{Success: false, Error: "cancelled by user"})
		return
	}

	res := h.store.DeleteProject(c.Request.Context(), c.Param("id"))
	c.JSON(boardStatus(res, http.StatusOK), res)
}

func (h *BoardHandler) ListTasks(c *gin.Context) {
	if res := h.store.LoadTasks(c.Request.Context(), c.Param("id")); !res.Success {
		c.JSON(http.StatusBadGateway, res)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"tasks":   h.store.Tasks(),
		"todo":    h.store.TodoTasks(),
		"doing":   h.store.DoingTasks(),
		"done":    h.store.DoneTasks(),
	})
}

func (h *BoardHandler) CreateTask(c *gin.Context) {
	var input store.TaskInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	res := h.store.CreateTask(c.Request.Context(), c.Param("id"), input)
	c.JSON(boardStatus(res, http.StatusCreated), res)
}

func (h *BoardHandler) UpdateTask(c *gin.Context) {
	var req TaskUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	patch := repository.TaskPatch{
		Title:        req.Title,
		Description:  req.Description,
		DueDate:      req.DueDate,
		ClearDueDate: req.ClearDueDate,
		Status:       req.Status,
	}

	res := h.store.UpdateTask(c.Request.Context(), c.Param("id"), c.Param("taskId"), patch)
	c.JSON(boardStatus(res, http.StatusOK), res)
}

func (h *BoardHandler) UpdateTaskStatus(c *gin.Context) {
	var req StatusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	res := h.store.UpdateTaskStatus(c.Request.Context(), c.Param("id"), c.Param("taskId"), req.Status)
	c.JSON(boardStatus(res, http.StatusOK), res)
}

func (h *BoardHandler) DeleteTask(c *gin.Context) {
	if !confirmed(c) {
		c.JSON(http.StatusOK, store.Result{Success: false, Error: "cancelled by user"})
		return
	}

	res := h.store.DeleteTask(c.Request.Context(), c.Param("id"), c.Param("taskId"))
	c.JSON(boardStatus(res, http.StatusOK), res)
}

func (h *BoardHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/projects", h.ListProjects)
	r.POST("/projects", h.CreateProject)
	r.PUT("/projects/:id", h.UpdateProject)
	r.DELETE("/projects/:id", h.DeleteProject)

	r.GET("/projects/:id/tasks", h.ListTasks)
	r.POST("/projects/:id/tasks", h.CreateTask)
	r.PATCH("/projects/:id/tasks/:taskId", h.UpdateTask)
	r.PATCH("/projects/:id/tasks/:taskId/status", h.UpdateTaskStatus)
	r.DELETE("/projects/:id/tasks/:taskId", h.DeleteTask)
}

func confirmed(c *gin.Context) bool {
	return c.Query("confirm") == "true"
}

func boardStatus(res store.Result, okStatus int) int {
	if res.Success {
		return okStatus
	}
	return http.StatusUnprocessableEntity
}
