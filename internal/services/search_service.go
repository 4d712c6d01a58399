// Package services – SearchService
//
// This file implements the prospecting search orchestrator. Given a set of
// geographic filters it builds a locale-appropriate search phrase, walks the
// provider's paginated text search sequentially, resolves every candidate to
// a full detail record, and merges each one into the record store without
// creating duplicates. Records are emitted on a channel as soon as they are
// durably stored; Found/Cached counters are observable mid-flight.
//
// Sequencing is strict: at most one unresolved provider call at a time, a
// fixed delay before following a page token (the provider needs time to
// activate it), and a short spacing between detail fetches. Per-candidate
// failures are logged and skipped; only a failure of the very first search
// call, or cancellation, aborts the run.
//
// Observability: Search is OpenTelemetry-instrumented and run outcomes are
// counted in Prometheus.
package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/saludmaps/go-pharma-backend/internal/domain"
	"github.com/saludmaps/go-pharma-backend/internal/places"
	"github.com/saludmaps/go-pharma-backend/internal/repo"
)

// fuzzyProbeTokens is how many leading words of the detail name form the
// containment probe used for the unlinked-record merge lookup.
const fuzzyProbeTokens = 3

var (
	searchRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prospect_search_runs_total",
			Help: "Completed prospecting search runs by outcome.",
		},
		[]string{"outcome"},
	)
	searchCandidates = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "prospect_search_candidates_total",
			Help: "Candidates discovered across all search runs.",
		},
	)
	searchCached = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "prospect_search_cached_total",
			Help: "Records resolved and merged into the store.",
		},
	)
	searchItemErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "prospect_search_item_errors_total",
			Help: "Per-candidate failures that were skipped.",
		},
	)
)

func init() {
	prometheus.MustRegister(searchRuns, searchCandidates, searchCached, searchItemErrors)
}

// SearchFilters describes one prospecting search. At least one geographic
// term must be non-empty; Category selects the localized keyword and the
// client type of newly created records.
type SearchFilters struct {
	Country  string `json:"country"`
	Province string `json:"province"`
	City     string `json:"city"`
	Category string `json:"category"` // "pharmacy" (default) or "herbalist"
}

// HasGeographicTerm reports whether any of country/province/city is set.
func (f SearchFilters) HasGeographicTerm() bool {
	return strings.TrimSpace(f.Country) != "" ||
		strings.TrimSpace(f.Province) != "" ||
		strings.TrimSpace(f.City) != ""
}

// clientType maps the filter category onto a stored client type.
func (f SearchFilters) clientType() string {
	if strings.EqualFold(strings.TrimSpace(f.Category), "herbalist") {
		return domain.ClientTypeHerbalist
	}
	return domain.ClientTypePharmacy
}

// SearchOutcome classifies how a run ended.
type SearchOutcome string

// Run outcomes. NoResults (zero candidates discovered) is reported
// distinctly from Completed with zero cached records (candidates found but
// none could be resolved).
const (
	OutcomeCompleted SearchOutcome = "completed"
	OutcomeNoResults SearchOutcome = "no_results"
	OutcomeCancelled SearchOutcome = "cancelled"
	OutcomeFailed    SearchOutcome = "failed"
)

// SearchRun exposes the live progress of one search invocation. Counters
// are monotonic for the lifetime of the run; Outcome is valid once the
// result channel has been closed.
type SearchRun struct {
	found  atomic.Int64
	cached atomic.Int64

	mu      sync.Mutex
	outcome SearchOutcome
	err     error
}

// Found returns the number of candidates discovered so far.
func (r *SearchRun) Found() int64 { return r.found.Load() }

// Cached returns the number of records resolved and merged so far.
func (r *SearchRun) Cached() int64 { return r.cached.Load() }

// Outcome returns the terminal state and, for OutcomeFailed, the cause.
func (r *SearchRun) Outcome() (SearchOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcome, r.err
}

func (r *SearchRun) finish(o SearchOutcome, err error) {
	r.mu.Lock()
	r.outcome, r.err = o, err
	r.mu.Unlock()
	searchRuns.WithLabelValues(string(o)).Inc()
}

// PlacesGateway is the provider contract the orchestrator depends on.
type PlacesGateway interface {
	// TextSearch returns one page of candidates; pageToken "" starts a search.
	TextSearch(ctx context.Context, query, pageToken string) (*places.Page, error)
	// Details resolves one candidate to its full record.
	Details(ctx context.Context, externalID string) (*places.Detail, error)
}

// ProspectRepo is the record-store contract the orchestrator depends on.
// GormProspectRepo is the production implementation.
type ProspectRepo interface {
	// FindByExternalID returns the record linked to a provider place, or
	// repo.ErrNotFound.
	FindByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*domain.Pharmacy, error)
	// FindFuzzyUnlinked returns an unlinked merge candidate by city + name
	// probe, or repo.ErrNotFound.
	FindFuzzyUnlinked(ctx context.Context, db *gorm.DB, city, nameProbe string) (*domain.Pharmacy, error)
	// Create inserts a new record.
	Create(ctx context.Context, db *gorm.DB, p *domain.Pharmacy) error
	// Save persists all fields of an existing record.
	Save(ctx context.Context, db *gorm.DB, p *domain.Pharmacy) error
}

// GormProspectRepo adapts the repo package to the ProspectRepo interface.
type GormProspectRepo struct{}

func (GormProspectRepo) FindByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*domain.Pharmacy, error) {
	return repo.FindPharmacyByExternalID(ctx, db, externalID)
}

func (GormProspectRepo) FindFuzzyUnlinked(ctx context.Context, db *gorm.DB, city, nameProbe string) (*domain.Pharmacy, error) {
	return repo.FindFuzzyUnlinked(ctx, db, city, nameProbe)
}

func (GormProspectRepo) Create(ctx context.Context, db *gorm.DB, p *domain.Pharmacy) error {
	return repo.CreatePharmacy(ctx, db, p)
}

func (GormProspectRepo) Save(ctx context.Context, db *gorm.DB, p *domain.Pharmacy) error {
	return repo.SavePharmacy(ctx, db, p)
}

// SearchService drives prospecting searches. At most one search is active
// per service instance: starting a new one cancels the previous run.
type SearchService struct {
	DB      *gorm.DB
	Gateway PlacesGateway
	Repo    ProspectRepo

	// PageDelay is the wait before following a page token (provider
	// contract, empirically 2s). ItemDelay spaces detail fetches.
	PageDelay time.Duration
	ItemDelay time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	gen    uint64 // identifies the run that owns s.cancel
}

// Search validates the filters and starts an asynchronous run. It returns a
// channel of records (each already durably merged into the store when it
// arrives) and the live SearchRun. The channel is closed when the run ends;
// inspect run.Outcome() afterwards. A validation failure returns an error
// immediately and performs no I/O.
func (s *SearchService) Search(ctx context.Context, f SearchFilters) (<-chan domain.Pharmacy, *SearchRun, error) {
	tr := otel.Tracer("services/SearchService")
	ctx, span := tr.Start(ctx, "Search",
		trace.WithAttributes(
			attribute.String("filters.country", f.Country),
			attribute.String("filters.province", f.Province),
			attribute.String("filters.city", f.City),
			attribute.String("filters.category", f.Category),
		),
	)

	if !f.HasGeographicTerm() {
		span.End()
		return nil, nil, ErrNoGeographicFilter
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel() // implicit cancellation of the in-flight search
	}
	s.cancel = cancel
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	run := &SearchRun{}
	out := make(chan domain.Pharmacy)
	go func() {
		defer span.End()
		defer close(out)
		s.run(runCtx, f, out, run)

		s.mu.Lock()
		if s.gen == gen {
			s.cancel = nil
		}
		s.mu.Unlock()
		cancel()
	}()
	return out, run, nil
}

// Cancel stops the in-flight search, if any. Safe to call at any time.
func (s *SearchService) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// run executes the two phases: pagination (accumulate candidates) and
// resolution (merge each candidate into the store, emitting as it goes).
func (s *SearchService) run(ctx context.Context, f SearchFilters, out chan<- domain.Pharmacy, run *SearchRun) {
	phrase := BuildSearchPhrase(f)
	lg := log.With().Str("phrase", phrase).Logger()

	// --- Phase 1: pagination ---
	var candidates []places.Candidate
	pageToken := ""
	for {
		if ctx.Err() != nil {
			run.finish(OutcomeCancelled, nil)
			return
		}
		page, err := s.Gateway.TextSearch(ctx, phrase, pageToken)
		if err != nil {
			if ctx.Err() != nil {
				run.finish(OutcomeCancelled, nil)
				return
			}
			if pageToken == "" {
				// Initial call failed: nothing to work with, abort the run.
				lg.Error().Err(err).Msg("search: initial text search failed")
				run.finish(OutcomeFailed, err)
				return
			}
			// A follow-up page failed; resolve what we already have.
			lg.Warn().Err(err).Msg("search: pagination aborted, continuing with accumulated candidates")
			break
		}
		candidates = append(candidates, page.Candidates...)
		run.found.Add(int64(len(page.Candidates)))
		searchCandidates.Add(float64(len(page.Candidates)))

		if page.NextPageToken == "" {
			break
		}
		// The provider needs a beat before a freshly issued token is valid.
		if err := sleepCtx(ctx, s.PageDelay); err != nil {
			run.finish(OutcomeCancelled, nil)
			return
		}
		pageToken = page.NextPageToken
	}

	if len(candidates) == 0 {
		run.finish(OutcomeNoResults, nil)
		return
	}

	// --- Phase 2: resolution, in discovery order ---
	for i := range candidates {
		if ctx.Err() != nil {
			run.finish(OutcomeCancelled, nil)
			return
		}
		rec, fetched := s.resolve(ctx, &candidates[i], f)
		if rec != nil {
			select {
			case out <- *rec:
				run.cached.Add(1)
				searchCached.Inc()
			case <-ctx.Done():
				run.finish(OutcomeCancelled, nil)
				return
			}
		}
		if fetched && i < len(candidates)-1 {
			if err := sleepCtx(ctx, s.ItemDelay); err != nil {
				run.finish(OutcomeCancelled, nil)
				return
			}
		}
	}
	run.finish(OutcomeCompleted, nil)
}

// resolve merges one candidate into the store and returns the stored record,
// or nil when the candidate had to be skipped. fetched reports whether a
// provider detail call was made (the caller paces those). All per-candidate
// errors are contained here.
func (s *SearchService) resolve(ctx context.Context, cand *places.Candidate, f SearchFilters) (rec *domain.Pharmacy, fetched bool) {
	// Fast path: already cached by external id, no detail fetch needed.
	existing, err := s.Repo.FindByExternalID(ctx, s.DB, cand.ExternalID)
	if err == nil {
		return existing, false
	}
	if !errors.Is(err, repo.ErrNotFound) {
		s.skip(cand, "store lookup failed", err)
		return nil, false
	}

	if ctx.Err() != nil {
		return nil, false
	}
	detail, err := s.Gateway.Details(ctx, cand.ExternalID)
	if err != nil {
		s.skip(cand, "detail fetch failed", err)
		return nil, true
	}

	// Re-check: a concurrent search may have resolved this place meanwhile.
	existing, err = s.Repo.FindByExternalID(ctx, s.DB, cand.ExternalID)
	if err == nil {
		return existing, true
	}
	if !errors.Is(err, repo.ErrNotFound) {
		s.skip(cand, "store re-check failed", err)
		return nil, true
	}

	// Fuzzy merge: an unlinked (manually imported) record in the same city
	// whose name contains the leading words of the detail name.
	if city := strings.TrimSpace(detail.City); city != "" {
		fuzzy, err := s.Repo.FindFuzzyUnlinked(ctx, s.DB, city, probeFromName(detail.Name))
		if err == nil {
			mergeDetail(fuzzy, detail)
			if err := s.Repo.Save(ctx, s.DB, fuzzy); err != nil {
				s.skip(cand, "merge save failed", err)
				return nil, true
			}
			return fuzzy, true
		}
		if !errors.Is(err, repo.ErrNotFound) {
			s.skip(cand, "fuzzy lookup failed", err)
			return nil, true
		}
	}

	// Brand-new record.
	p := newPharmacyFromDetail(detail, f.clientType())
	if err := s.Repo.Create(ctx, s.DB, p); err != nil {
		if repo.IsDuplicate(err) {
			// A concurrent insert raced us on the same external id; surface
			// whatever now exists instead of failing the candidate.
			if won, ferr := s.Repo.FindByExternalID(ctx, s.DB, cand.ExternalID); ferr == nil {
				return won, true
			}
		}
		s.skip(cand, "insert failed", err)
		return nil, true
	}
	return p, true
}

// skip logs and counts a contained per-candidate failure.
func (s *SearchService) skip(cand *places.Candidate, msg string, err error) {
	searchItemErrors.Inc()
	log.Warn().Err(err).
		Str("external_id", cand.ExternalID).
		Str("name", cand.Name).
		Msg("search: skipping candidate: " + msg)
}

// probeFromName returns the first three whitespace-delimited words of a
// detail name, the containment probe for the fuzzy lookup.
func probeFromName(name string) string {
	fields := strings.Fields(name)
	if len(fields) > fuzzyProbeTokens {
		fields = fields[:fuzzyProbeTokens]
	}
	return strings.Join(fields, " ")
}

// mergeDetail links an unlinked record to a provider place and backfills
// provider fields. The merge is non-destructive: stored values are only
// replaced where the detail supplies a non-empty one.
func mergeDetail(p *domain.Pharmacy, d *places.Detail) {
	ext := d.ExternalID
	p.ExternalID = &ext
	if d.Phone != "" {
		p.Phone = d.Phone
	}
	if d.Website != "" {
		p.Website = d.Website
	}
	if len(d.OpeningHours) > 0 {
		p.OpeningHours = d.OpeningHours
	}
	if !(d.Latitude == 0 && d.Longitude == 0) {
		p.Latitude = d.Latitude
		p.Longitude = d.Longitude
	}
	if d.Address != "" {
		p.Address = d.Address
	}
	if len(d.Raw) > 0 {
		p.RawProviderPayload = []byte(d.Raw)
	}
}

// newPharmacyFromDetail builds a fresh record for an unseen place.
func newPharmacyFromDetail(d *places.Detail, clientType string) *domain.Pharmacy {
	ext := d.ExternalID
	return &domain.Pharmacy{
		ExternalID:         &ext,
		Name:               d.Name,
		Address:            d.Address,
		City:               d.City,
		Region:             d.Region,
		Country:            d.Country,
		Phone:              d.Phone,
		Website:            d.Website,
		OpeningHours:       d.OpeningHours,
		Latitude:           d.Latitude,
		Longitude:          d.Longitude,
		CommercialStatus:   domain.StatusNotContacted,
		ClientType:         clientType,
		RawProviderPayload: []byte(d.Raw),
	}
}

// sleepCtx waits for d unless the context ends first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
