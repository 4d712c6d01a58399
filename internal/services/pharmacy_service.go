// Operations workflow over the record store: lookups, partial edits with
// enum validation, promotion into the saved set, and dashboard aggregates.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/saludmaps/go-pharma-backend/internal/domain"
	"github.com/saludmaps/go-pharma-backend/internal/repo"
)

// PharmacyService implements the Operations workflow over stored records.
type PharmacyService struct {
	DB *gorm.DB
}

// PharmacyUpdate is a partial edit. Nil fields are left untouched; empty
// strings are written (clearing a field is a legitimate edit).
type PharmacyUpdate struct {
	CommercialStatus *string `json:"commercial_status"`
	ClientType       *string `json:"client_type"`
	Notes            *string `json:"notes"`
	Phone            *string `json:"phone"`
	SecondaryPhone   *string `json:"secondary_phone"`
	Email            *string `json:"email"`
	Website          *string `json:"website"`
}

// Get fetches one record by id.
func (s *PharmacyService) Get(ctx context.Context, id string) (*domain.Pharmacy, error) {
	p, err := repo.GetPharmacy(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrPharmacyNotFound
	}
	return p, err
}

// Update applies a partial edit after validating the enum fields, then
// returns the refreshed record.
func (s *PharmacyService) Update(ctx context.Context, id string, u PharmacyUpdate) (*domain.Pharmacy, error) {
	fields := map[string]any{}
	if u.CommercialStatus != nil {
		v := strings.TrimSpace(*u.CommercialStatus)
		switch v {
		case domain.StatusNotContacted, domain.StatusContacted, domain.StatusClient:
			fields["commercial_status"] = v
		default:
			return nil, ErrInvalidStatus
		}
	}
	if u.ClientType != nil {
		v := strings.TrimSpace(*u.ClientType)
		switch v {
		case domain.ClientTypePharmacy, domain.ClientTypeHerbalist:
			fields["client_type"] = v
		default:
			return nil, ErrInvalidClientType
		}
	}
	if u.Notes != nil {
		fields["notes"] = *u.Notes
	}
	if u.Phone != nil {
		fields["phone"] = strings.TrimSpace(*u.Phone)
	}
	if u.SecondaryPhone != nil {
		fields["secondary_phone"] = strings.TrimSpace(*u.SecondaryPhone)
	}
	if u.Email != nil {
		fields["email"] = strings.TrimSpace(*u.Email)
	}
	if u.Website != nil {
		fields["website"] = strings.TrimSpace(*u.Website)
	}

	if len(fields) > 0 {
		if err := repo.UpdatePharmacyFields(ctx, s.DB, id, fields); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, ErrPharmacyNotFound
			}
			return nil, err
		}
	}
	return s.Get(ctx, id)
}

// List returns one page of records plus the unfiltered-within-filter total.
func (s *PharmacyService) List(ctx context.Context, f repo.PharmacyFilter, offset, limit int) ([]domain.Pharmacy, int64, error) {
	total, err := repo.CountPharmacies(ctx, s.DB, f)
	if err != nil {
		return nil, 0, err
	}
	items, err := repo.ListPharmaciesPage(ctx, s.DB, f, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// MarkSaved promotes the given records into the Operations workflow and
// returns how many rows were newly stamped. Records already saved keep their
// original timestamp.
func (s *PharmacyService) MarkSaved(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, ErrNoIDs
	}
	return repo.MarkPharmaciesSaved(ctx, s.DB, ids, time.Now())
}

// Stats returns the dashboard aggregates.
func (s *PharmacyService) Stats(ctx context.Context) (repo.DashboardStats, error) {
	return repo.CollectDashboardStats(ctx, s.DB)
}
