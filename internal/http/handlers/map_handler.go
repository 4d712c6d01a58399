// GeoJSON map feed handlers.
//
// The dashboard map consumes two FeatureCollections: one for geocoded
// pharmacy records, one for geocoded orders. Coordinates follow the GeoJSON
// convention (longitude first); records carrying the (0,0) "ungeocoded"
// sentinel are excluded at the query level and never appear here.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/saludmaps/go-pharma-backend/internal/domain"
)

// MapService defines the geocoded-population queries behind the map feeds.
type MapService interface {
	GeocodedPharmacies(ctx context.Context) ([]domain.Pharmacy, error)
	GeocodedOrders(ctx context.Context) ([]domain.Order, error)
}

// PharmaciesGeoJSON godoc
// @ID          pharmaciesGeoJSON
// @Summary     Geocoded pharmacy records as a GeoJSON FeatureCollection
// @Tags        Map
// @Produce     json
//
// @Success     200  {object} geojson.FeatureCollection
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /map/pharmacies [get]
func (h *Handlers) PharmaciesGeoJSON(c *gin.Context) {
	items, err := h.mapSvc.GeocodedPharmacies(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	fc := geojson.NewFeatureCollection()
	for i := range items {
		p := &items[i]
		f := geojson.NewFeature(orb.Point{p.Longitude, p.Latitude})
		f.ID = p.ID
		f.Properties = geojson.Properties{
			"name":              p.Name,
			"city":              p.City,
			"address":           p.Address,
			"commercial_status": p.CommercialStatus,
			"client_type":       p.ClientType,
			"saved":             p.Saved(),
		}
		fc.Append(f)
	}
	ok(c, http.StatusOK, fc)
}

// OrdersGeoJSON godoc
// @ID          ordersGeoJSON
// @Summary     Geocoded orders as a GeoJSON FeatureCollection
// @Tags        Map
// @Produce     json
//
// @Success     200  {object} geojson.FeatureCollection
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /map/orders [get]
func (h *Handlers) OrdersGeoJSON(c *gin.Context) {
	items, err := h.mapSvc.GeocodedOrders(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	fc := geojson.NewFeatureCollection()
	for i := range items {
		o := &items[i]
		f := geojson.NewFeature(orb.Point{o.Longitude, o.Latitude})
		f.ID = o.ID
		f.Properties = geojson.Properties{
			"number":        o.Number,
			"customer_name": o.CustomerName,
			"city":          o.City,
			"total":         o.Total,
			"currency":      o.Currency,
			"status":        o.Status,
		}
		fc.Append(f)
	}
	ok(c, http.StatusOK, fc)
}
