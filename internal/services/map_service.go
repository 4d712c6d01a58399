// Map feed queries. Only geocoded rows are served; the (0,0) sentinel never
// reaches the map.
package services

import (
	"context"

	"gorm.io/gorm"

	"github.com/saludmaps/go-pharma-backend/internal/domain"
	"github.com/saludmaps/go-pharma-backend/internal/repo"
)

// MapService serves the geocoded populations behind the GeoJSON feeds.
type MapService struct {
	DB *gorm.DB
}

// GeocodedPharmacies returns every record with a usable position.
func (s *MapService) GeocodedPharmacies(ctx context.Context) ([]domain.Pharmacy, error) {
	return repo.ListGeocodedPharmacies(ctx, s.DB)
}

// GeocodedOrders returns every cached order with a usable position.
func (s *MapService) GeocodedOrders(ctx context.Context) ([]domain.Order, error) {
	return repo.ListGeocodedOrders(ctx, s.DB)
}
