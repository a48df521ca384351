package handlers

import (
	"errors"
	"net/http"

	"github.com/alibot/reviewdash/internal/services"
	"github.com/alibot/reviewdash/pkg/response"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type AnalyzeHandler struct {
	submissionService *services.SubmissionService
}

func NewAnalyzeHandler(db *gorm.DB, queue services.TaskQueue) *AnalyzeHandler {
	return &AnalyzeHandler{
		submissionService: services.NewSubmissionService(db, queue),
	}
}

// Submit accepts code for analysis and returns immediately; the analysis
// itself runs on the task queue.
// POST /api/analyze
func (h *AnalyzeHandler) Submit(c *gin.Context) {
	var req services.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.submissionService.Submit(c.Request.Context(), &req)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Status reports analysis progress for a review.
// GET /api/analyze/status/:id?user_id=
func (h *AnalyzeHandler) Status(c *gin.Context) {
	reviewID := c.Param("id")
	userID := c.Query("user_id")
	if userID == "" {
		response.BadRequest(c, "user_id is required")
		return
	}

	resp, err := h.submissionService.Status(c.Request.Context(), reviewID, userID)
	switch {
	case errors.Is(err, services.ErrReviewNotFound):
		response.NotFound(c, "review not found")
	case errors.Is(err, services.ErrReviewForbidden):
		response.Forbidden(c, "access denied")
	case err != nil:
		response.ServerError(c, err.Error())
	default:
		c.JSON(http.StatusOK, resp)
	}
}
