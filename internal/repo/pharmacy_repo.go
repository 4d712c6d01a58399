// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Pharmacy
// model — the cached record store behind the search orchestrator and the
// Operations workflow.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition. In particular the fuzzy lookup only
// applies the store's matching rule (city equality + name containment); which
// probe to use and how to merge fields is decided by the service layer.
//
// Error semantics:
//   - When a record is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated. Use IsDuplicate to detect unique
//     constraint violations on insert.
package repo

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/saludmaps/go-pharma-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// IsDuplicate reports whether err is a unique-constraint violation. The pure
// Go SQLite driver does not expose a typed error for this, so the check is
// on the driver message.
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed: UNIQUE")
}

// CreatePharmacy inserts a new Pharmacy row. A UUID primary key is generated
// when p.ID is empty, and CreatedAt is set to UTC. The caller keeps ownership
// of p; on success it carries the persisted identity.
func CreatePharmacy(ctx context.Context, db *gorm.DB, p *domain.Pharmacy) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(p).Error
}

// SavePharmacy persists all fields of an existing record (full update by
// primary key).
func SavePharmacy(ctx context.Context, db *gorm.DB, p *domain.Pharmacy) error {
	return db.WithContext(ctx).Save(p).Error
}

// GetPharmacy fetches a single record by its primary key. If the record does
// not exist, it returns ErrNotFound.
func GetPharmacy(ctx context.Context, db *gorm.DB, id string) (*domain.Pharmacy, error) {
	var p domain.Pharmacy
	if err := db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// FindPharmacyByExternalID fetches the record linked to the given provider
// place id. If no record is linked, it returns ErrNotFound.
func FindPharmacyByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*domain.Pharmacy, error) {
	var p domain.Pharmacy
	err := db.WithContext(ctx).
		Where("external_id = ?", externalID).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FindFuzzyUnlinked looks for a merge candidate among records that are not
// yet linked to a provider place (external_id IS NULL): the city must match
// exactly (case-insensitive) and the name must contain the probe anywhere
// (case-insensitive). The oldest matching row wins. Returns ErrNotFound when
// no candidate exists.
func FindFuzzyUnlinked(ctx context.Context, db *gorm.DB, city, nameProbe string) (*domain.Pharmacy, error) {
	probe := "%" + strings.ToLower(strings.TrimSpace(nameProbe)) + "%"
	var p domain.Pharmacy
	err := db.WithContext(ctx).
		Where("external_id IS NULL").
		Where("LOWER(city) = LOWER(?)", strings.TrimSpace(city)).
		Where("LOWER(name) LIKE ?", probe).
		Order("created_at asc").
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ExistsPharmacyByNameCity reports whether a record with the given name and
// city already exists (case-insensitive). Used by the bulk importer to skip
// duplicates.
func ExistsPharmacyByNameCity(ctx context.Context, db *gorm.DB, name, city string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Pharmacy{}).
		Where("LOWER(name) = LOWER(?) AND LOWER(city) = LOWER(?)", strings.TrimSpace(name), strings.TrimSpace(city)).
		Count(&n).Error
	return n > 0, err
}

// PharmacyFilter narrows list/count queries. Zero values mean "no filter".
type PharmacyFilter struct {
	Status     string // commercial_status equality
	ClientType string // client_type equality
	SavedOnly  bool   // saved_at IS NOT NULL
	Query      string // case-insensitive substring on name or city
}

func applyPharmacyFilter(q *gorm.DB, f PharmacyFilter) *gorm.DB {
	if f.Status != "" {
		q = q.Where("commercial_status = ?", f.Status)
	}
	if f.ClientType != "" {
		q = q.Where("client_type = ?", f.ClientType)
	}
	if f.SavedOnly {
		q = q.Where("saved_at IS NOT NULL")
	}
	if s := strings.TrimSpace(f.Query); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.Where("LOWER(name) LIKE ? OR LOWER(city) LIKE ?", like, like)
	}
	return q
}

// CountPharmacies returns the number of records matching the filter.
func CountPharmacies(ctx context.Context, db *gorm.DB, f PharmacyFilter) (int64, error) {
	var total int64
	err := applyPharmacyFilter(db.WithContext(ctx).Model(&domain.Pharmacy{}), f).
		Count(&total).Error
	return total, err
}

// ListPharmaciesPage returns a paginated slice of records matching the
// filter, ordered by creation time descending. Use CountPharmacies to obtain
// the total for pagination metadata.
func ListPharmaciesPage(ctx context.Context, db *gorm.DB, f PharmacyFilter, offset, limit int) ([]domain.Pharmacy, error) {
	var out []domain.Pharmacy
	err := applyPharmacyFilter(db.WithContext(ctx), f).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListGeocodedPharmacies returns every record with a usable position,
// excluding the (0,0) "ungeocoded" sentinel. Feeds the map layer.
func ListGeocodedPharmacies(ctx context.Context, db *gorm.DB) ([]domain.Pharmacy, error) {
	var out []domain.Pharmacy
	err := db.WithContext(ctx).
		Where("NOT (latitude = 0 AND longitude = 0)").
		Order("created_at asc").
		Find(&out).Error
	return out, err
}

// ListClientPharmacies returns all records with commercial_status = client,
// the only population eligible for revenue matching.
func ListClientPharmacies(ctx context.Context, db *gorm.DB) ([]domain.Pharmacy, error) {
	var out []domain.Pharmacy
	err := db.WithContext(ctx).
		Where("commercial_status = ?", domain.StatusClient).
		Find(&out).Error
	return out, err
}

// MarkPharmaciesSaved stamps saved_at = now on the given ids where it is
// still NULL. Rows already promoted are left untouched (saved_at is
// monotonic). It returns the number of rows actually updated.
func MarkPharmaciesSaved(ctx context.Context, db *gorm.DB, ids []string, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).
		Model(&domain.Pharmacy{}).
		Where("id IN ? AND saved_at IS NULL", ids).
		Update("saved_at", now.UTC())
	return res.RowsAffected, res.Error
}

// UpdatePharmacyFields applies a partial update to a record. If no row is
// affected (record missing), it returns ErrNotFound.
func UpdatePharmacyFields(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	res := db.WithContext(ctx).
		Model(&domain.Pharmacy{}).
		Where("id = ?", id).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
