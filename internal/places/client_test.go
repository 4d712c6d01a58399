package places

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBaseURL = "https://places.test/maps/api/place"

func newMockedClient(t *testing.T) *Client {
	t.Helper()
	c := NewClient("test-key", testBaseURL, 5*time.Second)
	httpmock.ActivateNonDefault(c.httpc)
	t.Cleanup(httpmock.DeactivateAndReset)
	return c
}

func TestTextSearchFirstPage(t *testing.T) {
	c := newMockedClient(t)
	httpmock.RegisterResponder(http.MethodGet, `=~^https://places\.test/maps/api/place/textsearch/json`,
		func(req *http.Request) (*http.Response, error) {
			q := req.URL.Query()
			assert.Equal(t, "farmacia en Sevilla", q.Get("query"))
			assert.Equal(t, "test-key", q.Get("key"))
			assert.Empty(t, q.Get("pagetoken"))
			return httpmock.NewJsonResponse(http.StatusOK, map[string]any{
				"status":          "OK",
				"next_page_token": "tok-2",
				"results": []map[string]any{
					{
						"place_id":          "p1",
						"name":              "Farmacia Central",
						"formatted_address": "Calle Mayor 1, Sevilla",
						"geometry":          map[string]any{"location": map[string]any{"lat": 37.39, "lng": -5.99}},
					},
				},
			})
		})

	page, err := c.TextSearch(context.Background(), "farmacia en Sevilla", "")
	require.NoError(t, err)
	require.Len(t, page.Candidates, 1)
	assert.Equal(t, "p1", page.Candidates[0].ExternalID)
	assert.Equal(t, "Farmacia Central", page.Candidates[0].Name)
	assert.Equal(t, 37.39, page.Candidates[0].Latitude)
	assert.Equal(t, "tok-2", page.NextPageToken)
}

func TestTextSearchPageTokenReplacesQuery(t *testing.T) {
	c := newMockedClient(t)
	httpmock.RegisterResponder(http.MethodGet, `=~^https://places\.test/maps/api/place/textsearch/json`,
		func(req *http.Request) (*http.Response, error) {
			q := req.URL.Query()
			assert.Equal(t, "tok-2", q.Get("pagetoken"))
			assert.Empty(t, q.Get("query"))
			return httpmock.NewJsonResponse(http.StatusOK, map[string]any{"status": "OK"})
		})

	_, err := c.TextSearch(context.Background(), "ignored", "tok-2")
	require.NoError(t, err)
}

func TestTextSearchZeroResultsIsEmptySuccess(t *testing.T) {
	c := newMockedClient(t)
	httpmock.RegisterResponder(http.MethodGet, `=~^https://places\.test/.*`,
		httpmock.NewStringResponder(http.StatusOK, `{"status":"ZERO_RESULTS"}`))

	page, err := c.TextSearch(context.Background(), "farmacia en Nergal", "")
	require.NoError(t, err)
	assert.Empty(t, page.Candidates)
	assert.Empty(t, page.NextPageToken)
}

func TestTextSearchProviderStatusError(t *testing.T) {
	c := newMockedClient(t)
	httpmock.RegisterResponder(http.MethodGet, `=~^https://places\.test/.*`,
		httpmock.NewStringResponder(http.StatusOK,
			`{"status":"OVER_QUERY_LIMIT","error_message":"quota exceeded"}`))

	_, err := c.TextSearch(context.Background(), "farmacia", "")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "OVER_QUERY_LIMIT", se.Status)
	assert.Contains(t, se.Error(), "quota exceeded")
}

func TestTextSearchHTTPError(t *testing.T) {
	c := newMockedClient(t)
	httpmock.RegisterResponder(http.MethodGet, `=~^https://places\.test/.*`,
		httpmock.NewStringResponder(http.StatusBadGateway, "upstream down"))

	_, err := c.TextSearch(context.Background(), "farmacia", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 502")
}

func TestTextSearchMissingKey(t *testing.T) {
	c := NewClient("", testBaseURL, time.Second)
	_, err := c.TextSearch(context.Background(), "farmacia", "")
	assert.True(t, errors.Is(err, ErrMissingAPIKey))
}

func TestDetailsFlattensComponents(t *testing.T) {
	c := newMockedClient(t)
	httpmock.RegisterResponder(http.MethodGet, `=~^https://places\.test/maps/api/place/details/json`,
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "p1", req.URL.Query().Get("place_id"))
			assert.NotEmpty(t, req.URL.Query().Get("fields"))
			return httpmock.NewJsonResponse(http.StatusOK, map[string]any{
				"status": "OK",
				"result": map[string]any{
					"place_id":               "p1",
					"name":                   "Farmacia Central",
					"formatted_address":      "Calle Mayor 1, Sevilla",
					"formatted_phone_number": "954 11 22 33",
					"website":                "https://central.example",
					"geometry":               map[string]any{"location": map[string]any{"lat": 37.39, "lng": -5.99}},
					"opening_hours":          map[string]any{"weekday_text": []string{"Monday: 9:00–20:00"}},
					"address_components": []map[string]any{
						{"long_name": "Sevilla", "types": []string{"locality"}},
						{"long_name": "Sevilla", "types": []string{"administrative_area_level_2"}},
						{"long_name": "Andalucía", "types": []string{"administrative_area_level_1"}},
						{"long_name": "Spain", "types": []string{"country"}},
					},
				},
			})
		})

	d, err := c.Details(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "Sevilla", d.City)
	assert.Equal(t, "Sevilla", d.Region) // level 2 preferred over level 1
	assert.Equal(t, "Spain", d.Country)
	assert.Equal(t, "954 11 22 33", d.Phone)
	assert.Equal(t, []string{"Monday: 9:00–20:00"}, d.OpeningHours)
	assert.NotEmpty(t, d.Raw, "raw provider payload must be preserved")
}

func TestDetailsZeroResultsIsError(t *testing.T) {
	c := newMockedClient(t)
	httpmock.RegisterResponder(http.MethodGet, `=~^https://places\.test/.*`,
		httpmock.NewStringResponder(http.StatusOK, `{"status":"ZERO_RESULTS"}`))

	_, err := c.Details(context.Background(), "gone")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "ZERO_RESULTS", se.Status)
}

func TestNearbySearchDefaults(t *testing.T) {
	c := newMockedClient(t)
	httpmock.RegisterResponder(http.MethodGet, `=~^https://places\.test/maps/api/place/nearbysearch/json`,
		func(req *http.Request) (*http.Response, error) {
			q := req.URL.Query()
			assert.Equal(t, "5000", q.Get("radius"))
			assert.Equal(t, "pharmacy", q.Get("type"))
			assert.NotEmpty(t, q.Get("location"))
			return httpmock.NewJsonResponse(http.StatusOK, map[string]any{"status": "OK"})
		})

	_, err := c.NearbySearch(context.Background(), 37.39, -5.99, 0, "")
	require.NoError(t, err)
}

func TestPhotoURLCached(t *testing.T) {
	c := NewClient("test-key", testBaseURL, time.Second)
	u1, err := c.PhotoURL("ref-1", 0)
	require.NoError(t, err)
	assert.Contains(t, u1, "maxwidth=400")
	assert.Contains(t, u1, "photoreference=ref-1")

	u2, err := c.PhotoURL("ref-1", 0)
	require.NoError(t, err)
	assert.Equal(t, u1, u2)
}

func TestFlattenComponentsPostalTownFallback(t *testing.T) {
	city, region, country := flattenComponents([]addressComponent{
		{LongName: "Croydon", Types: []string{"postal_town"}},
		{LongName: "Greater London", Types: []string{"administrative_area_level_1"}},
		{LongName: "United Kingdom", Types: []string{"country"}},
	})
	assert.Equal(t, "Croydon", city)
	assert.Equal(t, "Greater London", region) // level 1 fallback
	assert.Equal(t, "United Kingdom", country)
}
