package job

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/joshu-sajeev/catalogjobs/common"
	"github.com/joshu-sajeev/catalogjobs/internal/dto"
	"github.com/joshu-sajeev/catalogjobs/middleware"
)

type JobHandler struct {
	service JobServiceInterface
}

func NewJobHandler(s JobServiceInterface) *JobHandler {
	return &JobHandler{service: s}
}

var _ JobHandlerInterface = (*JobHandler)(nil)

// RegisterRoutes mounts the job endpoints on r.
func (h *JobHandler) RegisterRoutes(r gin.IRouter) {
	r.POST("/jobs", h.Create)
	r.GET("/jobs", h.List)
	r.DELETE("/jobs", h.DeleteMany)
	r.GET("/jobs/:id", h.Get)
	r.DELETE("/jobs/:id", h.Delete)
	r.GET("/jobs/:id/logs", h.Logs)
	r.GET("/jobs/:id/result", h.Result)
	r.GET("/jobs/:id/artifact", h.Artifact)
	r.POST("/jobs/:id/cancel", h.Cancel)
}

func jobID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 0)
	if err != nil || id < 1 {
		c.Error(common.Errf(http.StatusBadRequest, "invalid ID"))
		return 0, false
	}
	return uint(id), true
}

// Create enqueues a job and returns its id with HTTP 201.
func (h *JobHandler) Create(c *gin.Context) {
	var req dto.JobCreateDTO
	if !middleware.Bind(c, &req) {
		c.Abort()
		return
	}

	created, err := h.service.CreateJob(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		c.Abort()
		return
	}

	c.JSON(http.StatusCreated, created)
}

func (h *JobHandler) Get(c *gin.Context) {
	id, ok := jobID(c)
	if !ok {
		return
	}

	resp, err := h.service.GetJobByID(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// List returns the jobs matching the query filters.
func (h *JobHandler) List(c *gin.Context) {
	var f dto.JobFilter
	if !middleware.BindQuery(c, &f) {
		return
	}

	resp, err := h.service.ListJobs(c.Request.Context(), f)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *JobHandler) Logs(c *gin.Context) {
	id, ok := jobID(c)
	if !ok {
		return
	}

	logs, err := h.service.GetLogs(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, logs)
}

func (h *JobHandler) Result(c *gin.Context) {
	id, ok := jobID(c)
	if !ok {
		return
	}

	resp, err := h.service.GetResult(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *JobHandler) Cancel(c *gin.Context) {
	id, ok := jobID(c)
	if !ok {
		return
	}

	resp, err := h.service.CancelJob(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Delete removes one terminal job and returns HTTP 204.
func (h *JobHandler) Delete(c *gin.Context) {
	id, ok := jobID(c)
	if !ok {
		return
	}

	if err := h.service.DeleteJob(c.Request.Context(), id); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

// DeleteMany removes every job matching the query filters, or none.
func (h *JobHandler) DeleteMany(c *gin.Context) {
	var f dto.JobFilter
	if !middleware.BindQuery(c, &f) {
		return
	}

	resp, err := h.service.DeleteJobs(c.Request.Context(), f)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Artifact streams the job's file, or returns a signed link to it.
func (h *JobHandler) Artifact(c *gin.Context) {
	id, ok := jobID(c)
	if !ok {
		return
	}

	dl, err := h.service.GetArtifact(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	if dl.Link != nil {
		c.JSON(http.StatusOK, dl.Link)
		return
	}
	defer dl.Body.Close()

	c.DataFromReader(http.StatusOK, dl.Size, dl.ContentType, dl.Body, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", dl.Name),
	})
}
