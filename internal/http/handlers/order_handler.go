// Order feed HTTP handlers.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/saludmaps/go-pharma-backend/internal/domain"
	"github.com/saludmaps/go-pharma-backend/internal/services"
)

// RefreshOrdersResponse reports the size of the refreshed feed.
type RefreshOrdersResponse struct {
	Fetched int `json:"fetched"`
}

// ListOrdersResponse wraps a page of cached orders.
type ListOrdersResponse struct {
	Orders     []domain.Order `json:"orders"`
	Pagination Pagination     `json:"pagination"`
}

// RefreshOrders godoc
// @ID          refreshOrders
// @Summary     Refresh the cached order store from the remote shop feed
// @Description Bypasses the feed cache, pulls every order page, and upserts the batch keyed by remote order id.
// @Tags        Orders
// @Produce     json
//
// @Success     200  {object} handlers.RefreshOrdersResponse
// @Failure     502  {object} handlers.ErrorResponse "Feed unconfigured or unreachable"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /orders/refresh [post]
func (h *Handlers) RefreshOrders(c *gin.Context) {
	n, err := h.orderSvc.Refresh(c.Request.Context())
	if err != nil {
		if errors.Is(err, services.ErrFeedUnavailable) {
			fail(c, http.StatusBadGateway, ErrCodeFeedUnavailable, err.Error())
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, RefreshOrdersResponse{Fetched: n})
}

// ListOrders godoc
// @ID          listOrders
// @Summary     List cached orders (paginated, newest first)
// @Tags        Orders
// @Produce     json
//
// @Param       page       query  int  false "Page number"    minimum(1) default(1)
// @Param       page_size  query  int  false "Items per page" minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListOrdersResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /orders [get]
func (h *Handlers) ListOrders(c *gin.Context) {
	page, pageSize := clampPagination(c)
	items, total, err := h.orderSvc.List(c.Request.Context(), (page-1)*pageSize, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	if items == nil {
		items = []domain.Order{}
	}
	ok(c, http.StatusOK, ListOrdersResponse{
		Orders:     items,
		Pagination: paginationMeta(page, pageSize, total),
	})
}
