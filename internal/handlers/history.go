package handlers

import (
	"net/http"

	"github.com/alibot/reviewdash/internal/services"
	"github.com/alibot/reviewdash/pkg/response"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type HistoryHandler struct {
	historyService *services.HistoryService
}

func NewHistoryHandler(db *gorm.DB) *HistoryHandler {
	return &HistoryHandler{
		historyService: services.NewHistoryService(db),
	}
}

// List returns a user's review history, filtered and paginated.
// GET /dashboard/history?user_id=&page=&limit=&language=&status=&search=&sort=
func (h *HistoryHandler) List(c *gin.Context) {
	var req services.HistoryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.historyService.List(c.Request.Context(), &req)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	c.JSON(http.StatusOK, resp)
}
