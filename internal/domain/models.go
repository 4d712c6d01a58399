// Package domain defines the persistence models for cached pharmacies and
// imported orders. These types are mapped with GORM and form the core data
// layer of the prospecting application.
package domain

import (
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Commercial status values a pharmacy can be in. The lifecycle is
// not_contacted → contacted → client; only clients participate in
// revenue matching.
const (
	StatusNotContacted = "not_contacted"
	StatusContacted    = "contacted"
	StatusClient       = "client"
)

// Client types distinguishing the two prospecting categories.
const (
	ClientTypePharmacy  = "pharmacy"
	ClientTypeHerbalist = "herbalist"
)

// Pharmacy is a cached location record. Rows are created either by the
// search orchestrator (with a provider ExternalID and raw payload) or by
// bulk import (ExternalID nil). A later search may link an imported row to
// a provider place without changing its identity.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - ExternalID: the provider's place identifier; unique when present,
//     nil for manually imported rows.
//   - Name / Address / City / Region / Country: flattened location fields.
//   - Phone / SecondaryPhone / Email / Website: contact details.
//   - OpeningHours: ordered list of weekday strings as reported by the provider.
//   - Latitude / Longitude: WGS84 position. (0,0) means "ungeocoded" and is
//     excluded from the map feed, never treated as a real position.
//   - CommercialStatus: not_contacted | contacted | client (DB constraint).
//   - ClientType: pharmacy | herbalist (DB constraint).
//   - Notes: free-form sales notes.
//   - RawProviderPayload: opaque provider response, preserved for later use
//     (e.g. photo references); never parsed by the orchestrator.
//   - SavedAt: set when the record is promoted to the Operations workflow.
//     Monotonic: once set, the search/import flow never clears it.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//   - DeletedAt: soft deletion marker (the core never hard-deletes).
type Pharmacy struct {
	ID                 string                      `json:"id"                gorm:"type:char(36);primaryKey"`
	ExternalID         *string                     `json:"external_id"       gorm:"type:varchar(128);uniqueIndex:ux_pharmacies_external_id"`
	Name               string                      `json:"name"              gorm:"type:varchar(255);not null;index:idx_pharmacies_name"`
	Address            string                      `json:"address"           gorm:"type:varchar(512)"`
	City               string                      `json:"city"              gorm:"type:varchar(128);index:idx_pharmacies_city"`
	Region             string                      `json:"region"            gorm:"type:varchar(128)"`
	Country            string                      `json:"country"           gorm:"type:varchar(128)"`
	Phone              string                      `json:"phone"             gorm:"type:varchar(64)"`
	SecondaryPhone     string                      `json:"secondary_phone"   gorm:"type:varchar(64)"`
	Email              string                      `json:"email"             gorm:"type:varchar(255)"`
	Website            string                      `json:"website"           gorm:"type:varchar(512)"`
	OpeningHours       datatypes.JSONSlice[string] `json:"opening_hours"`
	Latitude           float64                     `json:"latitude"`
	Longitude          float64                     `json:"longitude"`
	CommercialStatus   string                      `json:"commercial_status" gorm:"type:varchar(16);not null;default:'not_contacted';check:commercial_status IN ('not_contacted','contacted','client')"`
	ClientType         string                      `json:"client_type"       gorm:"type:varchar(16);not null;default:'pharmacy';check:client_type IN ('pharmacy','herbalist')"`
	Notes              string                      `json:"notes"             gorm:"type:text"`
	RawProviderPayload datatypes.JSON              `json:"raw_provider_payload,omitempty"`
	SavedAt            *time.Time                  `json:"saved_at"`
	CreatedAt          time.Time                   `json:"created_at"`
	UpdatedAt          time.Time                   `json:"updated_at"`
	DeletedAt          gorm.DeletedAt              `json:"-"                 gorm:"index"`
}

// TableName returns the database table name for Pharmacy.
func (Pharmacy) TableName() string { return "pharmacies" }

// Geocoded reports whether the record carries a usable position.
// (0,0) is the "ungeocoded" sentinel produced by imports without coordinates.
func (p *Pharmacy) Geocoded() bool {
	return !(p.Latitude == 0 && p.Longitude == 0)
}

// Saved reports whether the record has been promoted to the Operations
// workflow.
func (p *Pharmacy) Saved() bool { return p.SavedAt != nil }

// Linked reports whether the record is bound to a provider place.
func (p *Pharmacy) Linked() bool {
	return p.ExternalID != nil && strings.TrimSpace(*p.ExternalID) != ""
}

// Order is a cached sales order pulled from the remote e-commerce feed.
// Orders are upserted by remote id on refresh; they exist to drive the map
// view and revenue attribution, not as a system of record.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - RemoteID: the feed's numeric order id; unique.
//   - Number: human-facing order number.
//   - CustomerName: billing company when present, otherwise first+last name.
//   - City / Country: billing location used for the map feed.
//   - Latitude / Longitude: geocoded billing position, (0,0) when unknown.
//   - Total / Currency: order value.
//   - Status: feed status string (completed, processing, …).
//   - OrderedAt: order creation time in the feed.
type Order struct {
	ID           string         `json:"id"            gorm:"type:char(36);primaryKey"`
	RemoteID     int64          `json:"remote_id"     gorm:"not null;uniqueIndex:ux_orders_remote_id"`
	Number       string         `json:"number"        gorm:"type:varchar(64);not null"`
	CustomerName string         `json:"customer_name" gorm:"type:varchar(255);not null;index:idx_orders_customer"`
	City         string         `json:"city"          gorm:"type:varchar(128)"`
	Country      string         `json:"country"       gorm:"type:varchar(128)"`
	Latitude     float64        `json:"latitude"`
	Longitude    float64        `json:"longitude"`
	Total        float64        `json:"total"`
	Currency     string         `json:"currency"      gorm:"type:varchar(8)"`
	Status       string         `json:"status"        gorm:"type:varchar(32)"`
	OrderedAt    time.Time      `json:"ordered_at"    gorm:"index"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"-"             gorm:"index"`
}

// TableName returns the database table name for Order.
func (Order) TableName() string { return "orders" }
