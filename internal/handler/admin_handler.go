package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lara-bellatin/awd-final/internal/service"
	"github.com/lara-bellatin/awd-final/pkg/response"
)

// AdminHandler exposes operational endpoints restricted to administrators.
type AdminHandler struct {
	lifecycle *service.LifecycleService
}

// NewAdminHandler constructs AdminHandler.
func NewAdminHandler(lifecycle *service.LifecycleService) *AdminHandler {
	return &AdminHandler{lifecycle: lifecycle}
}

// RunDeadlineSweep godoc
// @Summary Trigger the deadline-reminder sweep immediately
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/sweep [post]
func (h *AdminHandler) RunDeadlineSweep(c *gin.Context) {
	result, err := h.lifecycle.RunDeadlineSweep(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
