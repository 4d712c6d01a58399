// Pharmacy record HTTP handlers.
//
// This file exposes REST endpoints for the record store and the Operations
// workflow:
//   - GET    /pharmacies          (list, paginated, filtered, ETag support)
//   - GET    /pharmacies/{id}     (fetch one)
//   - PATCH  /pharmacies/{id}     (partial edit: status, notes, contacts)
//   - POST   /pharmacies/save     (bulk promotion into the saved set)
//   - GET    /pharmacies/stats    (dashboard aggregates)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses (including conditional responses).
package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/saludmaps/go-pharma-backend/internal/domain"
	"github.com/saludmaps/go-pharma-backend/internal/repo"
	"github.com/saludmaps/go-pharma-backend/internal/services"
	"github.com/saludmaps/go-pharma-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// PharmacyService defines the record-store operations consumed by HTTP
// handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type PharmacyService interface {
	// Get fetches one record by id.
	Get(ctx context.Context, id string) (*domain.Pharmacy, error)
	// Update applies a partial edit and returns the refreshed record.
	Update(ctx context.Context, id string, u services.PharmacyUpdate) (*domain.Pharmacy, error)
	// List returns a page of records matching the filter plus the total count.
	List(ctx context.Context, f repo.PharmacyFilter, offset, limit int) ([]domain.Pharmacy, int64, error)
	// MarkSaved promotes records into the Operations workflow.
	MarkSaved(ctx context.Context, ids []string) (int64, error)
	// Stats returns the dashboard aggregates.
	Stats(ctx context.Context) (repo.DashboardStats, error)
}

// SearchService defines the prospecting search operations consumed by the
// SSE endpoint.
type SearchService interface {
	// Search starts an asynchronous run and returns its record channel.
	Search(ctx context.Context, f services.SearchFilters) (<-chan domain.Pharmacy, *services.SearchRun, error)
	// Cancel stops the in-flight run, if any.
	Cancel()
}

// RevenueService defines revenue attribution.
type RevenueService interface {
	Report(ctx context.Context) (*services.RevenueReport, error)
}

// ImportService defines XLSX workbook ingestion.
type ImportService interface {
	ImportWorkbook(ctx context.Context, r io.Reader) (*services.ImportResult, error)
}

// OrderService defines order-feed refresh and listing.
type OrderService interface {
	Refresh(ctx context.Context) (int, error)
	List(ctx context.Context, offset, limit int) ([]domain.Order, int64, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints for records, search, orders, revenue,
// imports, and the map feeds. It depends on abstract service interfaces to
// keep transport concerns separate from business logic.
type Handlers struct {
	pharmacySvc PharmacyService
	searchSvc   SearchService
	revenueSvc  RevenueService
	importSvc   ImportService
	orderSvc    OrderService
	mapSvc      MapService
}

// New constructs a Handlers instance bound to the given services.
func New(pharmacySvc PharmacyService, searchSvc SearchService, revenueSvc RevenueService, importSvc ImportService, orderSvc OrderService, mapSvc MapService) *Handlers {
	return &Handlers{
		pharmacySvc: pharmacySvc,
		searchSvc:   searchSvc,
		revenueSvc:  revenueSvc,
		importSvc:   importSvc,
		orderSvc:    orderSvc,
		mapSvc:      mapSvc,
	}
}

//
// DTOs
//

// SavePharmaciesRequest is the JSON payload for the bulk promotion endpoint.
type SavePharmaciesRequest struct {
	// IDs of the records to promote.
	IDs []string `json:"ids" binding:"required,min=1"`
}

// SavePharmaciesResponse reports how many records were newly promoted.
type SavePharmaciesResponse struct {
	Saved int64 `json:"saved"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListPharmaciesResponse wraps a page of records and pagination information.
type ListPharmaciesResponse struct {
	Pharmacies []domain.Pharmacy `json:"pharmacies"`
	Pagination Pagination        `json:"pagination"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

func paginationMeta(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

//
// Handlers
//

// ListPharmacies godoc
// @ID          listPharmacies
// @Summary     List pharmacy records (paginated)
// @Description Returns a page of cached records. Supports status/client_type/saved/q filters and weak ETag via If-None-Match.
// @Tags        Pharmacies
// @Produce     json
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"abc123\")
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"               minimum(1) maximum(100) default(20)
// @Param       status         query   string  false "Commercial status filter"     Enums(not_contacted, contacted, client)
// @Param       client_type    query   string  false "Client type filter"           Enums(pharmacy, herbalist)
// @Param       saved          query   bool    false "Only promoted records"
// @Param       q              query   string  false "Substring match on name or city"
//
// @Success     200  {object} handlers.ListPharmaciesResponse
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /pharmacies [get]
func (h *Handlers) ListPharmacies(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)
	filter := repo.PharmacyFilter{
		Status:     strings.TrimSpace(c.Query("status")),
		ClientType: strings.TrimSpace(c.Query("client_type")),
		SavedOnly:  c.Query("saved") == "true",
		Query:      c.Query("q"),
	}

	// ETag pre-check (best effort).
	var db *gorm.DB
	if svc, isGorm := h.pharmacySvc.(*services.PharmacyService); isGorm {
		db = svc.DB
	}
	if db != nil {
		count, maxTS, err := repo.PharmaciesStats(ctx, db)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"pharmacies:%d:%d"`, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, total, err := h.pharmacySvc.List(ctx, filter, (page-1)*pageSize, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	if items == nil {
		items = []domain.Pharmacy{}
	}
	ok(c, http.StatusOK, ListPharmaciesResponse{
		Pharmacies: items,
		Pagination: paginationMeta(page, pageSize, total),
	})
}

// GetPharmacy godoc
// @ID          getPharmacy
// @Summary     Fetch one pharmacy record
// @Tags        Pharmacies
// @Produce     json
//
// @Param       id  path  string  true  "Pharmacy ID (UUID)"  format(uuid)
//
// @Success     200  {object} domain.Pharmacy
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Pharmacy not found"
// @Router      /pharmacies/{id} [get]
func (h *Handlers) GetPharmacy(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "pharmacy id must be a UUID")
		return
	}
	p, err := h.pharmacySvc.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrPharmacyNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "pharmacy not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, p)
}

// UpdatePharmacy godoc
// @ID          updatePharmacy
// @Summary     Edit a pharmacy record
// @Description Applies a partial edit (status, client type, notes, contact fields). Omitted fields are untouched.
// @Tags        Pharmacies
// @Accept      json
// @Produce     json
//
// @Param       id    path  string                    true  "Pharmacy ID (UUID)"  format(uuid)
// @Param       body  body  services.PharmacyUpdate   true  "Partial edit payload"
//
// @Success     200  {object} domain.Pharmacy
// @Failure     400  {object} handlers.ErrorResponse "Bad request / invalid enum value"
// @Failure     404  {object} handlers.ErrorResponse "Pharmacy not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /pharmacies/{id} [patch]
func (h *Handlers) UpdatePharmacy(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "pharmacy id must be a UUID")
		return
	}
	var req services.PharmacyUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	p, err := h.pharmacySvc.Update(c.Request.Context(), id, req)
	switch {
	case err == nil:
		ok(c, http.StatusOK, p)
	case errors.Is(err, services.ErrInvalidStatus), errors.Is(err, services.ErrInvalidClientType):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrPharmacyNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "pharmacy not found")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeUpdateFailed, err.Error())
	}
}

// SavePharmacies godoc
// @ID          savePharmacies
// @Summary     Promote records into the Operations workflow
// @Description Stamps saved_at on the given records. Records already promoted keep their original timestamp.
// @Tags        Pharmacies
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.SavePharmaciesRequest  true  "Record ids"
//
// @Success     200  {object} handlers.SavePharmaciesResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /pharmacies/save [post]
func (h *Handlers) SavePharmacies(c *gin.Context) {
	var req SavePharmaciesRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.IDs) == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "ids required")
		return
	}
	n, err := h.pharmacySvc.MarkSaved(c.Request.Context(), req.IDs)
	if err != nil {
		if errors.Is(err, services.ErrNoIDs) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "ids required")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeUpdateFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, SavePharmaciesResponse{Saved: n})
}

// PharmacyStats godoc
// @ID          pharmacyStats
// @Summary     Dashboard aggregates
// @Tags        Pharmacies
// @Produce     json
//
// @Success     200  {object} repo.DashboardStats
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /pharmacies/stats [get]
func (h *Handlers) PharmacyStats(c *gin.Context) {
	s, err := h.pharmacySvc.Stats(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, s)
}
