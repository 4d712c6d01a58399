package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/saludmaps/go-pharma-backend/internal/domain"
	"github.com/saludmaps/go-pharma-backend/internal/places"
	"github.com/saludmaps/go-pharma-backend/internal/repo"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:search_svc_%s_%d?mode=memory&cache=shared", t.Name(), time.Now().UnixNano())
	db, err := repo.OpenSQLite(dsn)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return db
}

// fakeGateway scripts provider responses for the orchestrator.
type fakeGateway struct {
	mu          sync.Mutex
	pages       []*places.Page // served in order of TextSearch calls
	pageErrs    []error        // parallel to pages; nil entry = success
	details     map[string]*places.Detail
	detailErrs  map[string]error
	searchCalls []string // page tokens seen
	detailCalls []string // external ids seen

	firstSearchDone chan struct{} // closed after the first TextSearch returns
}

func (g *fakeGateway) TextSearch(ctx context.Context, query, pageToken string) (*places.Page, error) {
	g.mu.Lock()
	n := len(g.searchCalls)
	g.searchCalls = append(g.searchCalls, pageToken)
	g.mu.Unlock()

	defer func() {
		if n == 0 && g.firstSearchDone != nil {
			close(g.firstSearchDone)
		}
	}()
	if n < len(g.pageErrs) && g.pageErrs[n] != nil {
		return nil, g.pageErrs[n]
	}
	if n >= len(g.pages) {
		return &places.Page{}, nil
	}
	return g.pages[n], nil
}

func (g *fakeGateway) Details(ctx context.Context, externalID string) (*places.Detail, error) {
	g.mu.Lock()
	g.detailCalls = append(g.detailCalls, externalID)
	g.mu.Unlock()
	if err, ok := g.detailErrs[externalID]; ok {
		return nil, err
	}
	d, ok := g.details[externalID]
	if !ok {
		return nil, &places.StatusError{Status: "ZERO_RESULTS"}
	}
	cp := *d
	return &cp, nil
}

func newSearchService(db *gorm.DB, gw *fakeGateway) *SearchService {
	return &SearchService{
		DB:        db,
		Gateway:   gw,
		Repo:      GormProspectRepo{},
		PageDelay: time.Millisecond,
		ItemDelay: 0,
	}
}

func detailFor(id, name, city string) *places.Detail {
	return &places.Detail{
		ExternalID: id,
		Name:       name,
		Address:    "Calle Mayor 1",
		City:       city,
		Region:     "Sevilla",
		Country:    "Spain",
		Phone:      "+34 954 000 000",
		Latitude:   37.39,
		Longitude:  -5.99,
		Raw:        json.RawMessage(`{"place_id":"` + id + `"}`),
	}
}

func candidateFor(id, name string) places.Candidate {
	return places.Candidate{ExternalID: id, Name: name, Latitude: 37.39, Longitude: -5.99}
}

func drain(t *testing.T, ch <-chan domain.Pharmacy) []domain.Pharmacy {
	t.Helper()
	var out []domain.Pharmacy
	for p := range ch {
		out = append(out, p)
	}
	return out
}

func TestSearchRequiresGeographicFilter(t *testing.T) {
	gw := &fakeGateway{}
	svc := newSearchService(newTestDB(t), gw)

	_, _, err := svc.Search(context.Background(), SearchFilters{Category: "pharmacy"})
	if !errors.Is(err, ErrNoGeographicFilter) {
		t.Fatalf("err = %v, want ErrNoGeographicFilter", err)
	}
	if len(gw.searchCalls) != 0 {
		t.Fatalf("gateway called %d times before validation", len(gw.searchCalls))
	}
}

func TestSearchWalksAllPagesInOrder(t *testing.T) {
	gw := &fakeGateway{
		pages: []*places.Page{
			{Candidates: []places.Candidate{candidateFor("pA", "Farmacia A")}, NextPageToken: "tok1"},
			{Candidates: []places.Candidate{candidateFor("pB", "Farmacia B")}, NextPageToken: "tok2"},
			{Candidates: []places.Candidate{candidateFor("pC", "Farmacia C")}},
		},
		details: map[string]*places.Detail{
			"pA": detailFor("pA", "Farmacia A", "Sevilla"),
			"pB": detailFor("pB", "Farmacia B", "Sevilla"),
			"pC": detailFor("pC", "Farmacia C", "Sevilla"),
		},
	}
	svc := newSearchService(newTestDB(t), gw)

	ch, run, err := svc.Search(context.Background(), SearchFilters{City: "Sevilla"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	got := drain(t, ch)

	if want := []string{"", "tok1", "tok2"}; len(gw.searchCalls) != 3 ||
		gw.searchCalls[0] != want[0] || gw.searchCalls[1] != want[1] || gw.searchCalls[2] != want[2] {
		t.Fatalf("searchCalls = %v, want %v", gw.searchCalls, want)
	}
	if run.Found() != 3 || run.Cached() != 3 {
		t.Fatalf("found=%d cached=%d, want 3/3", run.Found(), run.Cached())
	}
	if o, _ := run.Outcome(); o != OutcomeCompleted {
		t.Fatalf("outcome = %s, want completed", o)
	}
	// Discovery order is preserved in the emission order.
	if len(got) != 3 || got[0].Name != "Farmacia A" || got[1].Name != "Farmacia B" || got[2].Name != "Farmacia C" {
		t.Fatalf("emitted order wrong: %+v", got)
	}
}

func TestSearchZeroResults(t *testing.T) {
	gw := &fakeGateway{pages: []*places.Page{{}}}
	svc := newSearchService(newTestDB(t), gw)

	ch, run, err := svc.Search(context.Background(), SearchFilters{Country: "Spain"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got := drain(t, ch); len(got) != 0 {
		t.Fatalf("emitted %d records from empty search", len(got))
	}
	if o, _ := run.Outcome(); o != OutcomeNoResults {
		t.Fatalf("outcome = %s, want no_results", o)
	}
	if len(gw.detailCalls) != 0 {
		t.Fatalf("detail fetched for empty search: %v", gw.detailCalls)
	}
}

func TestSearchInitialFailureAborts(t *testing.T) {
	boom := errors.New("over quota")
	gw := &fakeGateway{pageErrs: []error{boom}}
	svc := newSearchService(newTestDB(t), gw)

	ch, run, err := svc.Search(context.Background(), SearchFilters{Country: "Spain"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	drain(t, ch)
	o, cause := run.Outcome()
	if o != OutcomeFailed || !errors.Is(cause, boom) {
		t.Fatalf("outcome = %s (%v), want failed(over quota)", o, cause)
	}
}

func TestSearchPaginationFailureKeepsAccumulated(t *testing.T) {
	gw := &fakeGateway{
		pages: []*places.Page{
			{Candidates: []places.Candidate{candidateFor("pA", "Farmacia A")}, NextPageToken: "tok1"},
		},
		pageErrs: []error{nil, errors.New("token expired")},
		details:  map[string]*places.Detail{"pA": detailFor("pA", "Farmacia A", "Sevilla")},
	}
	svc := newSearchService(newTestDB(t), gw)

	ch, run, _ := svc.Search(context.Background(), SearchFilters{City: "Sevilla"})
	got := drain(t, ch)
	if o, _ := run.Outcome(); o != OutcomeCompleted {
		t.Fatalf("outcome = %s, want completed", o)
	}
	if len(got) != 1 || run.Cached() != 1 {
		t.Fatalf("expected page-1 candidate to be resolved, got %d", len(got))
	}
}

func TestSearchFastPathSkipsDetailFetch(t *testing.T) {
	db := newTestDB(t)
	ext := "pKnown"
	seed := &domain.Pharmacy{
		ExternalID:       &ext,
		Name:             "Farmacia Conocida",
		City:             "Sevilla",
		CommercialStatus: domain.StatusClient,
		ClientType:       domain.ClientTypePharmacy,
	}
	if err := repo.CreatePharmacy(context.Background(), db, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	gw := &fakeGateway{
		pages: []*places.Page{{Candidates: []places.Candidate{candidateFor(ext, "Farmacia Conocida")}}},
	}
	svc := newSearchService(db, gw)

	ch, run, _ := svc.Search(context.Background(), SearchFilters{City: "Sevilla"})
	got := drain(t, ch)

	if len(gw.detailCalls) != 0 {
		t.Fatalf("detail fetched despite cached record: %v", gw.detailCalls)
	}
	if len(got) != 1 || got[0].ID != seed.ID {
		t.Fatalf("expected the cached record back, got %+v", got)
	}
	// The rerun must not touch the stored status.
	if got[0].CommercialStatus != domain.StatusClient {
		t.Fatalf("status clobbered on rerun: %s", got[0].CommercialStatus)
	}
	if run.Cached() != 1 {
		t.Fatalf("cached = %d, want 1", run.Cached())
	}
}

func TestSearchFuzzyMergeNonDestructive(t *testing.T) {
	db := newTestDB(t)
	manual := &domain.Pharmacy{
		Name:             "Farmacia San Juan Bautista",
		City:             "Sevilla",
		Phone:            "456",
		Notes:            "visited in May",
		CommercialStatus: domain.StatusContacted,
		ClientType:       domain.ClientTypePharmacy,
	}
	if err := repo.CreatePharmacy(context.Background(), db, manual); err != nil {
		t.Fatalf("seed: %v", err)
	}

	d := detailFor("pSJB", "Farmacia San Juan Bautista de la Cruz", "sevilla")
	d.Phone = "" // provider has no phone: the stored one must survive
	d.Website = "https://sjb.example"
	gw := &fakeGateway{
		pages:   []*places.Page{{Candidates: []places.Candidate{candidateFor("pSJB", d.Name)}}},
		details: map[string]*places.Detail{"pSJB": d},
	}
	svc := newSearchService(db, gw)

	ch, _, _ := svc.Search(context.Background(), SearchFilters{City: "Sevilla"})
	got := drain(t, ch)
	if len(got) != 1 {
		t.Fatalf("emitted %d records, want 1", len(got))
	}
	merged := got[0]
	if merged.ID != manual.ID {
		t.Fatalf("a new record was created instead of merging into %s", manual.ID)
	}
	if merged.ExternalID == nil || *merged.ExternalID != "pSJB" {
		t.Fatalf("external id not linked: %v", merged.ExternalID)
	}
	if merged.Phone != "456" {
		t.Fatalf("stored phone overwritten with empty provider value: %q", merged.Phone)
	}
	if merged.Website != "https://sjb.example" {
		t.Fatalf("empty website not backfilled: %q", merged.Website)
	}
	if merged.Notes != "visited in May" || merged.CommercialStatus != domain.StatusContacted {
		t.Fatalf("workflow fields clobbered by merge: %+v", merged)
	}

	// The store must hold the merge durably.
	stored, err := repo.FindPharmacyByExternalID(context.Background(), db, "pSJB")
	if err != nil {
		t.Fatalf("lookup after merge: %v", err)
	}
	if stored.ID != manual.ID || stored.Phone != "456" {
		t.Fatalf("merge not persisted: %+v", stored)
	}
}

func TestSearchFuzzyMergeRequiresNameContainment(t *testing.T) {
	db := newTestDB(t)
	other := &domain.Pharmacy{
		Name:             "Farmacia Europa",
		City:             "Sevilla",
		CommercialStatus: domain.StatusNotContacted,
		ClientType:       domain.ClientTypePharmacy,
	}
	if err := repo.CreatePharmacy(context.Background(), db, other); err != nil {
		t.Fatalf("seed: %v", err)
	}

	gw := &fakeGateway{
		pages:   []*places.Page{{Candidates: []places.Candidate{candidateFor("pSJB", "Farmacia San Juan Bautista")}}},
		details: map[string]*places.Detail{"pSJB": detailFor("pSJB", "Farmacia San Juan Bautista", "Sevilla")},
	}
	svc := newSearchService(db, gw)

	ch, _, _ := svc.Search(context.Background(), SearchFilters{City: "Sevilla"})
	got := drain(t, ch)
	if len(got) != 1 {
		t.Fatalf("emitted %d records, want 1", len(got))
	}
	if got[0].ID == other.ID {
		t.Fatal("merged into an unrelated record")
	}
	var n int64
	db.Model(&domain.Pharmacy{}).Count(&n)
	if n != 2 {
		t.Fatalf("store has %d records, want 2", n)
	}
}

func TestSearchNewRecordCarriesCategory(t *testing.T) {
	gw := &fakeGateway{
		pages:   []*places.Page{{Candidates: []places.Candidate{candidateFor("pH", "Herbolario Luz")}}},
		details: map[string]*places.Detail{"pH": detailFor("pH", "Herbolario Luz", "Sevilla")},
	}
	svc := newSearchService(newTestDB(t), gw)

	ch, _, _ := svc.Search(context.Background(), SearchFilters{City: "Sevilla", Category: "herbalist"})
	got := drain(t, ch)
	if len(got) != 1 {
		t.Fatalf("emitted %d records, want 1", len(got))
	}
	p := got[0]
	if p.ClientType != domain.ClientTypeHerbalist {
		t.Fatalf("client type = %s, want herbalist", p.ClientType)
	}
	if p.CommercialStatus != domain.StatusNotContacted {
		t.Fatalf("new record status = %s, want not_contacted", p.CommercialStatus)
	}
	if p.ID == "" || p.ExternalID == nil || *p.ExternalID != "pH" {
		t.Fatalf("record identity incomplete: %+v", p)
	}
}

func TestSearchSkipsFailingCandidate(t *testing.T) {
	gw := &fakeGateway{
		pages: []*places.Page{{Candidates: []places.Candidate{
			candidateFor("pBad", "Farmacia Rota"),
			candidateFor("pOK", "Farmacia Sana"),
		}}},
		details:    map[string]*places.Detail{"pOK": detailFor("pOK", "Farmacia Sana", "Sevilla")},
		detailErrs: map[string]error{"pBad": errors.New("detail timeout")},
	}
	svc := newSearchService(newTestDB(t), gw)

	ch, run, _ := svc.Search(context.Background(), SearchFilters{City: "Sevilla"})
	got := drain(t, ch)
	if o, _ := run.Outcome(); o != OutcomeCompleted {
		t.Fatalf("outcome = %s, want completed (item errors are contained)", o)
	}
	if len(got) != 1 || got[0].Name != "Farmacia Sana" {
		t.Fatalf("expected only the healthy candidate, got %+v", got)
	}
	if run.Found() != 2 || run.Cached() != 1 {
		t.Fatalf("found=%d cached=%d, want 2/1", run.Found(), run.Cached())
	}
}

func TestSearchCancellationStopsPagination(t *testing.T) {
	gw := &fakeGateway{
		pages: []*places.Page{
			{Candidates: []places.Candidate{candidateFor("pA", "Farmacia A")}, NextPageToken: "tok1"},
			{Candidates: []places.Candidate{candidateFor("pB", "Farmacia B")}},
		},
		firstSearchDone: make(chan struct{}),
	}
	svc := newSearchService(newTestDB(t), gw)
	svc.PageDelay = 30 * time.Second // cancellation must interrupt the wait

	ctx, cancel := context.WithCancel(context.Background())
	ch, run, err := svc.Search(ctx, SearchFilters{City: "Sevilla"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	<-gw.firstSearchDone
	cancel()

	drain(t, ch)
	if o, _ := run.Outcome(); o != OutcomeCancelled {
		t.Fatalf("outcome = %s, want cancelled", o)
	}
	if len(gw.searchCalls) != 1 {
		t.Fatalf("pagination continued after cancel: %v", gw.searchCalls)
	}
	if len(gw.detailCalls) != 0 {
		t.Fatalf("resolution started after cancel: %v", gw.detailCalls)
	}
}

func TestSearchNewRunCancelsPrevious(t *testing.T) {
	// Call 1 belongs to the first run (leaves it waiting on the page delay),
	// call 2 to the second run (empty result set).
	gw := &fakeGateway{
		pages: []*places.Page{
			{Candidates: []places.Candidate{candidateFor("pA", "Farmacia A")}, NextPageToken: "tok1"},
			{},
		},
		firstSearchDone: make(chan struct{}),
	}
	svc := newSearchService(newTestDB(t), gw)
	svc.PageDelay = 30 * time.Second

	ch1, run1, err := svc.Search(context.Background(), SearchFilters{City: "Sevilla"})
	if err != nil {
		t.Fatalf("first Search: %v", err)
	}
	<-gw.firstSearchDone

	// Starting a second search implicitly cancels the first.
	ch2, run2, err := svc.Search(context.Background(), SearchFilters{City: "Madrid"})
	if err != nil {
		t.Fatalf("second Search: %v", err)
	}

	drain(t, ch1)
	if o, _ := run1.Outcome(); o != OutcomeCancelled {
		t.Fatalf("first run outcome = %s, want cancelled", o)
	}
	drain(t, ch2)
	if o, _ := run2.Outcome(); o != OutcomeNoResults {
		t.Fatalf("second run outcome = %s, want no_results", o)
	}
}

func TestProbeFromName(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Farmacia San Juan Bautista de la Cruz", "Farmacia San Juan"},
		{"Farmacia Europa", "Farmacia Europa"},
		{"  Farmacia   Central  ", "Farmacia Central"},
		{"", ""},
	}
	for _, c := range cases {
		if got := probeFromName(c.in); got != c.want {
			t.Errorf("probeFromName(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
