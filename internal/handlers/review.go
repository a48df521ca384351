package handlers

import (
	"errors"
	"net/http"

	"github.com/alibot/reviewdash/internal/services"
	"github.com/alibot/reviewdash/pkg/response"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type ReviewHandler struct {
	reviewService *services.ReviewService
}

func NewReviewHandler(db *gorm.DB) *ReviewHandler {
	return &ReviewHandler{
		reviewService: services.NewReviewService(db),
	}
}

// GetByID returns the aggregated detailed-review view.
// GET /dashboard/review/:id?user_id=
func (h *ReviewHandler) GetByID(c *gin.Context) {
	reviewID := c.Param("id")
	userID := c.Query("user_id")
	if userID == "" {
		response.BadRequest(c, "user_id is required")
		return
	}

	detail, err := h.reviewService.Get(c.Request.Context(), reviewID, userID)
	switch {
	case errors.Is(err, services.ErrReviewNotFound):
		response.NotFound(c, "review not found")
	case errors.Is(err, services.ErrReviewForbidden):
		response.Forbidden(c, "access denied")
	case err != nil:
		response.ServerError(c, err.Error())
	default:
		c.JSON(http.StatusOK, detail)
	}
}
