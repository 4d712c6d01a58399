// Package handlers provides HTTP handler implementations for the public API.
//
// This file carries the response helpers every endpoint goes through, so
// success and failure bodies stay uniform. Failures always serialize as an
// ErrorResponse with a stable code from errors.go; 5xx failures are
// additionally logged with the request-scoped logger. The relay façade is
// the one deliberate exception: its flat error envelope lives in
// relay_handler.go.
//
// Example error response:
//
//	HTTP/1.1 404 Not Found
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "not_found",
//	  "message": "pharmacy not found"
//	}
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/saludmaps/go-pharma-backend/internal/http/middleware"
)

// ErrorResponse is the error envelope returned by all API endpoints. The
// request id echoes X-Request-ID so a client report can be matched to the
// server logs.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_found"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"pharmacy not found"`
}

// fail aborts the request with a structured error. Server errors (>= 500)
// are logged before the response is written; client errors are the caller's
// problem and only appear in the access log.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	})
}

// Fail exposes fail to the router package for NoRoute/NoMethod fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// ok writes a success JSON response with the given status code.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// noContent writes an HTTP 204 No Content response.
func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
