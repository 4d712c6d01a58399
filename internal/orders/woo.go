// Package orders implements the client for the remote WooCommerce order
// feed. The feed is read-only for this application: orders are fetched,
// normalized into domain.Order, and cached in memory so dashboard refreshes
// don't hammer the shop API.
package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"

	"github.com/saludmaps/go-pharma-backend/internal/domain"
)

// ErrNotConfigured is returned when the feed credentials are missing.
var ErrNotConfigured = errors.New("orders: WooCommerce feed not configured")

// perPage is the feed page size. 100 is the WooCommerce REST maximum.
const perPage = 100

// cacheKey is the single cache entry for the normalized feed.
const cacheKey = "orders"

// wooOrder is the wire shape of one order in the feed. Only the fields we
// consume are declared.
type wooOrder struct {
	ID          int64  `json:"id"`
	Number      string `json:"number"`
	Status      string `json:"status"`
	Currency    string `json:"currency"`
	Total       string `json:"total"`
	DateCreated string `json:"date_created_gmt"`
	Billing     struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Company   string `json:"company"`
		City      string `json:"city"`
		Country   string `json:"country"`
	} `json:"billing"`
}

// Client pulls and normalizes the order feed. Safe for concurrent use.
type Client struct {
	baseURL string
	key     string
	secret  string
	httpc   *http.Client
	cache   *gocache.Cache
}

// NewClient constructs a feed client. cacheTTL bounds how stale the cached
// feed may be; 0 disables caching.
func NewClient(baseURL, consumerKey, consumerSecret string, timeout, cacheTTL time.Duration) *Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		key:     consumerKey,
		secret:  consumerSecret,
		httpc:   &http.Client{Timeout: timeout},
		cache:   gocache.New(cacheTTL, 10*time.Minute),
	}
}

// Configured reports whether feed credentials are present.
func (c *Client) Configured() bool {
	return c.baseURL != "" && c.key != "" && c.secret != ""
}

// FetchOrders returns the normalized order feed, serving from cache when a
// fresh copy exists. Pagination is walked sequentially until a short page.
func (c *Client) FetchOrders(ctx context.Context) ([]domain.Order, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	if v, ok := c.cache.Get(cacheKey); ok {
		return v.([]domain.Order), nil
	}

	var out []domain.Order
	for page := 1; ; page++ {
		batch, err := c.fetchPage(ctx, page)
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
		if len(batch) < perPage {
			break
		}
	}
	c.cache.SetDefault(cacheKey, out)
	return out, nil
}

// Invalidate drops the cached feed so the next fetch hits the shop API.
func (c *Client) Invalidate() { c.cache.Delete(cacheKey) }

func (c *Client) fetchPage(ctx context.Context, page int) ([]domain.Order, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))
	q.Set("status", "any")

	endpoint := c.baseURL + "/wp-json/wc/v3/orders?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.key, c.secret)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("orders: request failed: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("orders: close response body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("orders: feed returned HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("orders: read response: %w", err)
	}
	var raw []wooOrder
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("orders: decode response: %w", err)
	}

	out := make([]domain.Order, 0, len(raw))
	for i := range raw {
		out = append(out, normalize(&raw[i]))
	}
	return out, nil
}

// normalize maps a feed order onto the domain model. The customer name
// prefers the billing company (pharmacies order under their trade name);
// individual names are the fallback.
func normalize(w *wooOrder) domain.Order {
	name := w.Billing.Company
	if name == "" {
		name = w.Billing.FirstName + " " + w.Billing.LastName
	}
	total, err := strconv.ParseFloat(w.Total, 64)
	if err != nil {
		log.Warn().Str("order", w.Number).Str("total", w.Total).Msg("orders: unparsable total, storing 0")
		total = 0
	}
	orderedAt, err := time.Parse("2006-01-02T15:04:05", w.DateCreated)
	if err != nil {
		orderedAt = time.Time{}
	}
	return domain.Order{
		RemoteID:     w.ID,
		Number:       w.Number,
		CustomerName: name,
		City:         w.Billing.City,
		Country:      w.Billing.Country,
		Total:        total,
		Currency:     w.Currency,
		Status:       w.Status,
		OrderedAt:    orderedAt,
	}
}
