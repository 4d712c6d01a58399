// Package services defines the business logic for prospecting search, record
// edits, imports, and revenue attribution. This file centralizes common
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler/controller layer.
package services

import "errors"

var (
	// ErrNoGeographicFilter is returned when a search is requested without
	// any geographic term (country, province, or city). No network call is
	// made in that case.
	ErrNoGeographicFilter = errors.New("at least one geographic filter is required")

	// ErrSearchRunning is returned when a second search is started while the
	// previous one has not yet acknowledged cancellation.
	ErrSearchRunning = errors.New("a search is already starting")

	// ErrPharmacyNotFound indicates the requested pharmacy record does not
	// exist.
	ErrPharmacyNotFound = errors.New("pharmacy not found")

	// ErrInvalidStatus is returned when a status edit uses a value outside
	// the commercial-status enumeration.
	ErrInvalidStatus = errors.New("commercial status must be not_contacted, contacted or client")

	// ErrInvalidClientType is returned when an edit uses a value outside the
	// client-type enumeration.
	ErrInvalidClientType = errors.New("client type must be pharmacy or herbalist")

	// ErrNoIDs is returned when a bulk save request carries an empty id list.
	ErrNoIDs = errors.New("no pharmacy ids provided")

	// ErrEmptyWorkbook is returned when an imported workbook has no data
	// rows beneath the header.
	ErrEmptyWorkbook = errors.New("workbook contains no data rows")

	// ErrMissingColumns is returned when an imported workbook lacks the
	// required name/city columns.
	ErrMissingColumns = errors.New("workbook must contain name and city columns")

	// ErrFeedUnavailable wraps failures of the remote order feed.
	ErrFeedUnavailable = errors.New("order feed unavailable")
)
