// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for cached orders
// pulled from the remote e-commerce feed.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/saludmaps/go-pharma-backend/internal/domain"
)

// UpsertOrders inserts or refreshes a batch of orders keyed by their remote
// feed id. Existing rows keep their primary key; feed-owned fields are
// overwritten. Missing UUIDs are generated before insert.
func UpsertOrders(ctx context.Context, db *gorm.DB, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range orders {
		if orders[i].ID == "" {
			orders[i].ID = uuid.NewString()
		}
		if orders[i].CreatedAt.IsZero() {
			orders[i].CreatedAt = now
		}
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "remote_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"number", "customer_name", "city", "country",
				"latitude", "longitude", "total", "currency",
				"status", "ordered_at", "updated_at",
			}),
		}).
		Create(&orders).Error
}

// CountOrders returns the total number of cached orders.
func CountOrders(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.Order{}).Count(&total).Error
	return total, err
}

// ListOrdersPage returns a paginated slice of cached orders, most recent
// order date first.
func ListOrdersPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Order, error) {
	var out []domain.Order
	err := db.WithContext(ctx).
		Order("ordered_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListAllOrders returns every cached order, oldest first. The revenue
// matcher re-derives attribution from this full set.
func ListAllOrders(ctx context.Context, db *gorm.DB) ([]domain.Order, error) {
	var out []domain.Order
	err := db.WithContext(ctx).Order("ordered_at asc").Find(&out).Error
	return out, err
}

// ListGeocodedOrders returns cached orders with a usable position, excluding
// the (0,0) sentinel. Feeds the map layer.
func ListGeocodedOrders(ctx context.Context, db *gorm.DB) ([]domain.Order, error) {
	var out []domain.Order
	err := db.WithContext(ctx).
		Where("NOT (latitude = 0 AND longitude = 0)").
		Order("ordered_at asc").
		Find(&out).Error
	return out, err
}
