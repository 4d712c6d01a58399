// Order feed refresh and listing.
package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/saludmaps/go-pharma-backend/internal/domain"
	"github.com/saludmaps/go-pharma-backend/internal/orders"
	"github.com/saludmaps/go-pharma-backend/internal/repo"
)

// OrderFeed is the remote shop contract. orders.Client is the production
// implementation.
type OrderFeed interface {
	Configured() bool
	FetchOrders(ctx context.Context) ([]domain.Order, error)
	Invalidate()
}

// OrderService refreshes the local order store from the remote feed and
// serves it to the dashboard.
type OrderService struct {
	DB   *gorm.DB
	Feed OrderFeed
}

// Refresh bypasses the feed cache, pulls the full feed, and upserts it into
// the store keyed by remote order id. It returns the number of orders
// fetched. An unconfigured or unreachable feed yields ErrFeedUnavailable.
func (s *OrderService) Refresh(ctx context.Context) (int, error) {
	if s.Feed == nil || !s.Feed.Configured() {
		return 0, ErrFeedUnavailable
	}
	s.Feed.Invalidate()
	batch, err := s.Feed.FetchOrders(ctx)
	if err != nil {
		if errors.Is(err, orders.ErrNotConfigured) {
			return 0, ErrFeedUnavailable
		}
		return 0, fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
	}
	if err := repo.UpsertOrders(ctx, s.DB, batch); err != nil {
		return 0, err
	}
	return len(batch), nil
}

// List returns one page of stored orders plus the total count.
func (s *OrderService) List(ctx context.Context, offset, limit int) ([]domain.Order, int64, error) {
	total, err := repo.CountOrders(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	items, err := repo.ListOrdersPage(ctx, s.DB, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
