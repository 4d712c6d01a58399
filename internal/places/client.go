// Package places implements the client for the third-party places provider
// (Google Places API, legacy JSON endpoints). It is the only component that
// knows the provider credential; everything else — the search orchestrator
// and the HTTP relay façade — goes through this client.
//
// Provider statuses are normalized: "OK" is success, "ZERO_RESULTS" is an
// empty success (not an error), and anything else (auth failure, quota,
// malformed request) surfaces as a *StatusError.
package places

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
)

// Provider status strings we branch on. Any other value is an error.
const (
	statusOK          = "OK"
	statusZeroResults = "ZERO_RESULTS"
)

// Detail fields requested from the provider. Kept minimal to limit quota
// cost; the raw result is preserved verbatim for later use (photos).
const detailFields = "place_id,name,formatted_address,address_components,geometry,formatted_phone_number,international_phone_number,website,opening_hours,photos"

// StatusError is returned when the provider reports a non-OK, non-empty
// status (e.g. OVER_QUERY_LIMIT, REQUEST_DENIED, INVALID_REQUEST).
type StatusError struct {
	Status  string
	Message string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("places: provider status %s: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("places: provider status %s", e.Status)
}

// ErrMissingAPIKey is returned by client calls when no credential is
// configured.
var ErrMissingAPIKey = errors.New("places: API key not configured")

// Candidate is a search hit: the minimal, ephemeral shape returned by
// text/nearby search before a detail lookup.
type Candidate struct {
	ExternalID string  `json:"external_id"`
	Name       string  `json:"name"`
	Address    string  `json:"address"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
}

// Page is one page of search results plus the provider's continuation token
// (empty when the result set is exhausted).
type Page struct {
	Candidates    []Candidate `json:"candidates"`
	NextPageToken string      `json:"next_page_token"`
}

// Detail is the full, ephemeral record for a single place. Address
// components are flattened to the city/region/country fields used by the
// record store; Raw preserves the provider result untouched.
type Detail struct {
	ExternalID   string          `json:"external_id"`
	Name         string          `json:"name"`
	Address      string          `json:"address"`
	City         string          `json:"city"`
	Region       string          `json:"region"`
	Country      string          `json:"country"`
	Phone        string          `json:"phone"`
	Website      string          `json:"website"`
	OpeningHours []string        `json:"opening_hours"`
	Latitude     float64         `json:"latitude"`
	Longitude    float64         `json:"longitude"`
	Raw          json.RawMessage `json:"raw,omitempty"`
}

// Client talks to the places provider. Safe for concurrent use.
type Client struct {
	apiKey  string
	baseURL string
	httpc   *http.Client

	// photoCache memoizes signed photo URLs for an hour so repeated detail
	// panels don't burn photo quota.
	photoCache *gocache.Cache
}

// NewClient constructs a Client for the given credential and base URL
// (e.g. "https://maps.googleapis.com/maps/api/place").
func NewClient(apiKey, baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpc:      &http.Client{Timeout: timeout},
		photoCache: gocache.New(1*time.Hour, 10*time.Minute),
	}
}

// TextSearch runs a free-text search. pageToken continues a previous search;
// pass "" for the first page. A ZERO_RESULTS status yields an empty Page,
// not an error.
func (c *Client) TextSearch(ctx context.Context, query, pageToken string) (*Page, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	q := url.Values{}
	if pageToken != "" {
		q.Set("pagetoken", pageToken)
	} else {
		q.Set("query", query)
	}
	return c.searchPage(ctx, c.baseURL+"/textsearch/json", q)
}

// NearbySearch runs a location+radius search for pharmacies. radius is in
// meters; values <= 0 fall back to 5000.
func (c *Client) NearbySearch(ctx context.Context, lat, lng float64, radius int, pageToken string) (*Page, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if radius <= 0 {
		radius = 5000
	}
	q := url.Values{}
	if pageToken != "" {
		q.Set("pagetoken", pageToken)
	} else {
		q.Set("location", fmt.Sprintf("%f,%f", lat, lng))
		q.Set("radius", strconv.Itoa(radius))
		q.Set("type", "pharmacy")
	}
	return c.searchPage(ctx, c.baseURL+"/nearbysearch/json", q)
}

// Details fetches the full record for one place id.
func (c *Client) Details(ctx context.Context, externalID string) (*Detail, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	q := url.Values{}
	q.Set("place_id", externalID)
	q.Set("fields", detailFields)

	var body struct {
		Status       string          `json:"status"`
		ErrorMessage string          `json:"error_message"`
		Result       json.RawMessage `json:"result"`
	}
	if err := c.get(ctx, c.baseURL+"/details/json", q, &body); err != nil {
		return nil, err
	}
	switch body.Status {
	case statusOK:
	case statusZeroResults:
		return nil, &StatusError{Status: statusZeroResults}
	default:
		return nil, &StatusError{Status: body.Status, Message: body.ErrorMessage}
	}

	var res placeResult
	if err := json.Unmarshal(body.Result, &res); err != nil {
		return nil, fmt.Errorf("places: decode detail result: %w", err)
	}
	d := res.toDetail()
	d.Raw = body.Result
	return d, nil
}

// PhotoURL builds the provider URL serving the given photo reference at the
// requested width. The URL embeds the credential, which is acceptable here:
// the relay only hands it to authenticated dashboard users, mirroring the
// provider's own redirect behavior. Results are cached for an hour.
func (c *Client) PhotoURL(photoReference string, maxWidth int) (string, error) {
	if c.apiKey == "" {
		return "", ErrMissingAPIKey
	}
	if maxWidth <= 0 {
		maxWidth = 400
	}
	key := photoReference + "#" + strconv.Itoa(maxWidth)
	if v, ok := c.photoCache.Get(key); ok {
		return v.(string), nil
	}
	q := url.Values{}
	q.Set("photoreference", photoReference)
	q.Set("maxwidth", strconv.Itoa(maxWidth))
	q.Set("key", c.apiKey)
	u := c.baseURL + "/photo?" + q.Encode()
	c.photoCache.SetDefault(key, u)
	return u, nil
}

// searchPage performs one search call (text or nearby) and normalizes the
// provider response into a Page.
func (c *Client) searchPage(ctx context.Context, endpoint string, q url.Values) (*Page, error) {
	var body struct {
		Status        string        `json:"status"`
		ErrorMessage  string        `json:"error_message"`
		NextPageToken string        `json:"next_page_token"`
		Results       []placeResult `json:"results"`
	}
	if err := c.get(ctx, endpoint, q, &body); err != nil {
		return nil, err
	}
	switch body.Status {
	case statusOK:
	case statusZeroResults:
		return &Page{}, nil
	default:
		return nil, &StatusError{Status: body.Status, Message: body.ErrorMessage}
	}

	page := &Page{
		Candidates:    make([]Candidate, 0, len(body.Results)),
		NextPageToken: body.NextPageToken,
	}
	for i := range body.Results {
		r := &body.Results[i]
		page.Candidates = append(page.Candidates, Candidate{
			ExternalID: r.PlaceID,
			Name:       r.Name,
			Address:    r.FormattedAddress,
			Latitude:   r.Geometry.Location.Lat,
			Longitude:  r.Geometry.Location.Lng,
		})
	}
	return page, nil
}

// get issues one GET with the credential attached and decodes the JSON body.
// Non-2xx responses are errors before any status inspection.
func (c *Client) get(ctx context.Context, endpoint string, q url.Values, out any) error {
	q.Set("key", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("places: request failed: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("places: close response body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("places: provider returned HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("places: read response: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("places: decode response: %w", err)
	}
	return nil
}
