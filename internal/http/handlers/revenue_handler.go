// Revenue attribution HTTP handler.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Revenue godoc
// @ID          revenueReport
// @Summary     Attribute stored orders to client pharmacies
// @Description Matches every cached order against records with commercial status "client" by normalized name (exact or bounded containment) and returns per-client totals plus the unmatched remainder.
// @Tags        Revenue
// @Produce     json
//
// @Success     200  {object} services.RevenueReport
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /revenue [get]
func (h *Handlers) Revenue(c *gin.Context) {
	report, err := h.revenueSvc.Report(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, report)
}
