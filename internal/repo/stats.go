// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// for the dashboard stats endpoint and for conditional responses (ETag
// generation) in the HTTP layer. Each function is context-aware and safe to
// call from services or handlers.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/saludmaps/go-pharma-backend/internal/domain"
)

// PharmaciesStats returns aggregate metadata for the pharmacy table: the
// total number of rows and the maximum UpdatedAt timestamp among those rows.
//
// It executes two lightweight queries. When the table is empty, the returned
// count is 0 and maxUpdatedAt is nil.
//
// Return values:
//   - count:        total pharmacy rows
//   - maxUpdatedAt: pointer to the greatest UpdatedAt, or nil if no rows
//   - err:          database error, if any
func PharmaciesStats(ctx context.Context, db *gorm.DB) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Pharmacy{})

	// Count
	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}

// DashboardStats aggregates the counters shown on the Operations dashboard.
type DashboardStats struct {
	Total        int64 `json:"total"`
	NotContacted int64 `json:"not_contacted"`
	Contacted    int64 `json:"contacted"`
	Clients      int64 `json:"clients"`
	Saved        int64 `json:"saved"`
	Geocoded     int64 `json:"geocoded"`
	Orders       int64 `json:"orders"`
}

// CollectDashboardStats computes record counts by commercial status plus
// saved/geocoded totals and the cached order count.
func CollectDashboardStats(ctx context.Context, db *gorm.DB) (DashboardStats, error) {
	var s DashboardStats
	type pair struct {
		CommercialStatus string
		N                int64
	}
	var rows []pair
	err := db.WithContext(ctx).
		Model(&domain.Pharmacy{}).
		Select("commercial_status, COUNT(*) as n").
		Group("commercial_status").
		Scan(&rows).Error
	if err != nil {
		return s, err
	}
	for _, r := range rows {
		s.Total += r.N
		switch r.CommercialStatus {
		case domain.StatusNotContacted:
			s.NotContacted = r.N
		case domain.StatusContacted:
			s.Contacted = r.N
		case domain.StatusClient:
			s.Clients = r.N
		}
	}
	if err := db.WithContext(ctx).Model(&domain.Pharmacy{}).
		Where("saved_at IS NOT NULL").Count(&s.Saved).Error; err != nil {
		return s, err
	}
	if err := db.WithContext(ctx).Model(&domain.Pharmacy{}).
		Where("NOT (latitude = 0 AND longitude = 0)").Count(&s.Geocoded).Error; err != nil {
		return s, err
	}
	if err := db.WithContext(ctx).Model(&domain.Order{}).Count(&s.Orders).Error; err != nil {
		return s, err
	}
	return s, nil
}
