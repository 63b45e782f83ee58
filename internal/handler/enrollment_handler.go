package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/lara-bellatin/awd-final/internal/models"
	"github.com/lara-bellatin/awd-final/internal/service"
	appErrors "github.com/lara-bellatin/awd-final/pkg/errors"
	"github.com/lara-bellatin/awd-final/pkg/response"
)

// EnrollmentHandler exposes enrollment and progress endpoints.
type EnrollmentHandler struct {
	enrollments *service.EnrollmentService
	lifecycle   *service.LifecycleService
	progress    *service.ProgressService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments *service.EnrollmentService, lifecycle *service.LifecycleService, progress *service.ProgressService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments, lifecycle: lifecycle, progress: progress}
}

type markLessonRequest struct {
	Completed *bool `json:"completed" binding:"required"`
}

// Enroll godoc
// @Summary Enroll in a course
// @Tags Enrollments
// @Produce json
// @Param id path string true "Course ID"
// @Success 201 {object} response.Envelope
// @Router /courses/{id}/enrollments [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	enrollment, err := h.enrollments.Enroll(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// Cancel godoc
// @Summary Cancel an active enrollment
// @Tags Enrollments
// @Produce json
// @Param id path string true "Course ID"
// @Success 204 {object} nil
// @Router /courses/{id}/enrollments [delete]
func (h *EnrollmentHandler) Cancel(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.enrollments.Cancel(c.Request.Context(), claims.UserID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// List godoc
// @Summary List enrollments
// @Tags Enrollments
// @Produce json
// @Param studentId query string false "Filter by student"
// @Param courseId query string false "Filter by course"
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /enrollments [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	var filter models.EnrollmentFilter
	filter.StudentID = c.Query("studentId")
	filter.CourseID = c.Query("courseId")
	filter.Status = models.EnrollmentStatus(c.Query("status"))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	enrollments, pagination, err := h.enrollments.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, pagination)
}

// Progress godoc
// @Summary Get the caller's progress in a course
// @Tags Enrollments
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/progress [get]
func (h *EnrollmentHandler) Progress(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	snapshot, err := h.lifecycle.Progress(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, snapshot, nil)
}

// MarkLesson godoc
// @Summary Mark a lesson complete or incomplete
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Lesson ID"
// @Param payload body markLessonRequest true "Completion payload"
// @Success 200 {object} response.Envelope
// @Router /lessons/{id}/progress [put]
func (h *EnrollmentHandler) MarkLesson(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req markLessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	snapshot, err := h.progress.MarkLesson(c.Request.Context(), claims.UserID, c.Param("id"), *req.Completed)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, snapshot, nil)
}

// PostStatusUpdate godoc
// @Summary Post a status update on a course
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body service.PostStatusUpdateRequest true "Status update payload"
// @Success 201 {object} response.Envelope
// @Router /status-updates [post]
func (h *EnrollmentHandler) PostStatusUpdate(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.PostStatusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	update, err := h.progress.PostStatusUpdate(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, update)
}

// ListStatusUpdates godoc
// @Summary List the caller's status updates for a course
// @Tags Enrollments
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/status-updates [get]
func (h *EnrollmentHandler) ListStatusUpdates(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	updates, err := h.progress.ListStatusUpdates(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, updates, nil)
}
