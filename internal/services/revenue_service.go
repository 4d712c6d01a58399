// Revenue attribution.
//
// Orders from the shop feed carry free-text customer names; client records
// carry trade names captured from the provider or manual imports. The two
// rarely agree byte-for-byte ("Farmacia San Juan" vs "Farmacia San Juan
// Bautista S.L."), so attribution works on normalized names with a bounded
// containment rule rather than exact identity.
//
// Only records with commercial status "client" participate: matching a
// prospect would credit revenue to a pharmacy that never bought anything.
package services

import (
	"context"
	"sort"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/saludmaps/go-pharma-backend/internal/domain"
	"github.com/saludmaps/go-pharma-backend/internal/repo"
)

// containmentRatio is the minimum share of the longer name the shorter one
// must cover for a containment match. Below it, "Farmacia" would match every
// pharmacy in the store.
const containmentRatio = 0.8

// ClientRevenue is the attribution line for one client.
type ClientRevenue struct {
	Pharmacy   domain.Pharmacy `json:"pharmacy"`
	Orders     []domain.Order  `json:"orders"`
	OrderCount int             `json:"order_count"`
	Total      float64         `json:"total"`
}

// RevenueReport is the full attribution result: one line per client that
// received at least one order, plus the orders no client could claim.
type RevenueReport struct {
	Clients         []ClientRevenue `json:"clients"`
	MatchedTotal    float64         `json:"matched_total"`
	UnmatchedOrders []domain.Order  `json:"unmatched_orders"`
	UnmatchedTotal  float64         `json:"unmatched_total"`
}

// RevenueService attributes stored orders to client pharmacies.
type RevenueService struct {
	DB *gorm.DB
}

// Report loads the client population and the order store and attributes
// every order. Pure assembly; the matching itself is in MatchOrders.
func (s *RevenueService) Report(ctx context.Context) (*RevenueReport, error) {
	clients, err := repo.ListClientPharmacies(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	orders, err := repo.ListAllOrders(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	return MatchOrders(clients, orders), nil
}

// MatchOrders attributes each order to at most one client. An exact match on
// the normalized name always wins; otherwise the first client whose
// normalized name contains (or is contained by) the customer name matches,
// provided the shorter of the two covers at least containmentRatio of the
// longer. Clients are reported by total descending.
func MatchOrders(clients []domain.Pharmacy, orders []domain.Order) *RevenueReport {
	norm := make([]string, len(clients))
	for i := range clients {
		norm[i] = normalizeName(clients[i].Name)
	}

	lines := make(map[int]*ClientRevenue)
	report := &RevenueReport{}
	for _, o := range orders {
		idx := matchClient(norm, normalizeName(o.CustomerName))
		if idx < 0 {
			report.UnmatchedOrders = append(report.UnmatchedOrders, o)
			report.UnmatchedTotal += o.Total
			continue
		}
		line, ok := lines[idx]
		if !ok {
			line = &ClientRevenue{Pharmacy: clients[idx]}
			lines[idx] = line
		}
		line.Orders = append(line.Orders, o)
		line.OrderCount++
		line.Total += o.Total
		report.MatchedTotal += o.Total
	}

	report.Clients = make([]ClientRevenue, 0, len(lines))
	for _, line := range lines {
		report.Clients = append(report.Clients, *line)
	}
	sort.Slice(report.Clients, func(i, j int) bool {
		if report.Clients[i].Total != report.Clients[j].Total {
			return report.Clients[i].Total > report.Clients[j].Total
		}
		return report.Clients[i].Pharmacy.Name < report.Clients[j].Pharmacy.Name
	})
	return report
}

// matchClient returns the index of the client owning the customer name, or
// -1. Exact beats containment; ties go to the earlier client.
func matchClient(normalizedClients []string, customer string) int {
	if customer == "" {
		return -1
	}
	contained := -1
	for i, cl := range normalizedClients {
		if cl == "" {
			continue
		}
		if cl == customer {
			return i
		}
		if contained < 0 && namesContained(cl, customer) {
			contained = i
		}
	}
	return contained
}

// namesContained reports whether one normalized name contains the other and
// the shorter covers at least containmentRatio of the longer.
func namesContained(a, b string) bool {
	shorter, longer := a, b
	if utf8.RuneCountInString(shorter) > utf8.RuneCountInString(longer) {
		shorter, longer = longer, shorter
	}
	if !strings.Contains(longer, shorter) {
		return false
	}
	ls, ll := utf8.RuneCountInString(shorter), utf8.RuneCountInString(longer)
	return float64(ls) >= containmentRatio*float64(ll)
}

// normalizeName lower-cases, trims, and collapses internal whitespace.
func normalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
