package v1

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"fintherapy-backend/internal/delivery/http/response"
	"fintherapy-backend/internal/domain"
	"fintherapy-backend/pkg/apperror"
)

type AdminHandler struct {
	orphanUC domain.OrphanUsecase
}

// NewAdminHandler registers routes on a group already restricted to super admins
func NewAdminHandler(admin *gin.RouterGroup, orphanUC domain.OrphanUsecase) {
	handler := &AdminHandler{orphanUC: orphanUC}

	admin.GET("/orphans", handler.ListOrphans)
	admin.POST("/orphans/:id/retry", handler.RetryOrphan)
}

// ListOrphans godoc
// @Summary      List orphaned identities
// @Description  Remote accounts whose signup was rolled back but could not be deleted
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        limit  query     int  false  "Max rows (default 100, max 500)"
// @Success      200    {object}  response.Response{data=[]domain.OrphanedIdentity}
// @Failure      403    {object}  response.Response
// @Router       /admin/orphans [get]
func (h *AdminHandler) ListOrphans(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit < 1 {
		c.Error(apperror.BadRequest("limit must be a positive integer"))
		return
	}
	orphans, err := h.orphanUC.ListUnresolved(c.Request.Context(), limit)
	if err != nil {
		c.Error(err)
		return
	}
	if orphans == nil {
		orphans = []domain.OrphanedIdentity{}
	}
	response.Success(c, http.StatusOK, "Unresolved orphaned identities", orphans)
}

// RetryOrphan godoc
// @Summary      Retry remote deletion
// @Description  Deletes the remote account again and resolves the record on success
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Orphan ID"
// @Success      200  {object}  response.Response{data=domain.OrphanedIdentity}
// @Failure      404  {object}  response.Response
// @Failure      502  {object}  response.Response
// @Router       /admin/orphans/{id}/retry [post]
func (h *AdminHandler) RetryOrphan(c *gin.Context) {
	orphan, err := h.orphanUC.Retry(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Orphaned identity resolved", orphan)
}
