// Package handlers defines the HTTP endpoints of the public API.
//
// This file holds the stable error-code taxonomy carried in every
// ErrorResponse. Generic codes mirror HTTP status semantics; the
// domain-specific ones name the operation that failed (search, import, feed
// refresh) so clients can react without parsing messages.
package handlers

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"

	// Domain-specific:
	ErrCodeSearchFailed    = "search_failed"
	ErrCodeImportFailed    = "import_failed"
	ErrCodeListFailed      = "list_failed"
	ErrCodeUpdateFailed    = "update_failed"
	ErrCodeFeedUnavailable = "feed_unavailable"
	ErrCodeRelayFailed     = "relay_failed"

	ErrCodeMethodNotAllowed = "method_not_allowed"
)
