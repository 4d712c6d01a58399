// Places relay façade.
//
// The legacy dashboard never talks to the places provider directly; it POSTs
// an action envelope to /functions/places and the relay, which holds the
// provider credential, performs the call. The wire contract is fixed by the
// existing frontend and differs from the rest of the API on purpose:
//
//   - request:  { "action": "textSearch"|"search"|"details"|"photo", ... }
//   - success:  action-specific JSON ({pharmacies, nextPageToken} for the
//     search actions, {pharmacy} for details, {photoUrl} for photo)
//   - failure:  { "error": "<message>" } with a non-200 status
//   - CORS is wide open (ACAO: *) and OPTIONS preflight answers 200 with an
//     empty body, not 204.
//
// When a relay token is configured, requests must carry it as a bearer
// credential; preflight requests are exempt.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/saludmaps/go-pharma-backend/internal/places"
)

// PlacesRelay is the provider surface exposed through the relay.
type PlacesRelay interface {
	TextSearch(ctx context.Context, query, pageToken string) (*places.Page, error)
	NearbySearch(ctx context.Context, lat, lng float64, radius int, pageToken string) (*places.Page, error)
	Details(ctx context.Context, externalID string) (*places.Detail, error)
	PhotoURL(photoReference string, maxWidth int) (string, error)
}

// RelayHandler serves the /functions/places action endpoint.
type RelayHandler struct {
	Places PlacesRelay
	// Token, when non-empty, is required as "Authorization: Bearer <Token>".
	Token string
}

// relayRequest is the action envelope. Only the fields of the selected
// action are read.
type relayRequest struct {
	Action    string `json:"action"`
	Query     string `json:"query"`
	PageToken string `json:"pageToken"`
	Location  *struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"location"`
	Radius         int    `json:"radius"`
	PlaceID        string `json:"placeId"`
	PhotoReference string `json:"photoReference"`
	MaxWidth       int    `json:"maxWidth"`
}

// relaySearchResponse is the payload of the textSearch and search actions.
// NextPageToken is null (not omitted) when the result set is exhausted; the
// frontend checks for null explicitly.
type relaySearchResponse struct {
	Pharmacies    []places.Candidate `json:"pharmacies"`
	NextPageToken *string            `json:"nextPageToken"`
}

// relayError writes the relay's flat error envelope. Deliberately not the
// ErrorResponse used by the rest of the API.
func relayError(c *gin.Context, status int, msg string) {
	if status >= http.StatusInternalServerError {
		log.Error().Int("status", status).Str("message", msg).Msg("relay error")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// Preflight answers the CORS preflight with 200 and an empty body.
func (rh *RelayHandler) Preflight(c *gin.Context) {
	rh.corsHeaders(c)
	c.Status(http.StatusOK)
}

func (rh *RelayHandler) corsHeaders(c *gin.Context) {
	h := c.Writer.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Headers", "authorization, content-type")
	h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
}

// Dispatch handles POST /functions/places.
func (rh *RelayHandler) Dispatch(c *gin.Context) {
	rh.corsHeaders(c)

	if rh.Token != "" {
		auth := c.GetHeader("Authorization")
		if auth != "Bearer "+rh.Token {
			relayError(c, http.StatusUnauthorized, "Unauthorized")
			return
		}
	}

	var req relayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		relayError(c, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ctx := c.Request.Context()
	switch req.Action {
	case "textSearch":
		if strings.TrimSpace(req.Query) == "" && req.PageToken == "" {
			relayError(c, http.StatusBadRequest, "query required")
			return
		}
		page, err := rh.Places.TextSearch(ctx, req.Query, req.PageToken)
		if err != nil {
			relayProviderError(c, err)
			return
		}
		c.JSON(http.StatusOK, searchResponse(page))

	case "search": // nearby
		if req.Location == nil {
			relayError(c, http.StatusBadRequest, "location required")
			return
		}
		page, err := rh.Places.NearbySearch(ctx, req.Location.Lat, req.Location.Lng, req.Radius, req.PageToken)
		if err != nil {
			relayProviderError(c, err)
			return
		}
		c.JSON(http.StatusOK, searchResponse(page))

	case "details":
		if req.PlaceID == "" {
			relayError(c, http.StatusBadRequest, "placeId required")
			return
		}
		d, err := rh.Places.Details(ctx, req.PlaceID)
		if err != nil {
			relayProviderError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"pharmacy": d})

	case "photo":
		if req.PhotoReference == "" {
			relayError(c, http.StatusBadRequest, "photoReference required")
			return
		}
		u, err := rh.Places.PhotoURL(req.PhotoReference, req.MaxWidth)
		if err != nil {
			relayProviderError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"photoUrl": u})

	default:
		relayError(c, http.StatusBadRequest, "unknown action")
	}
}

func searchResponse(page *places.Page) relaySearchResponse {
	resp := relaySearchResponse{Pharmacies: page.Candidates}
	if resp.Pharmacies == nil {
		resp.Pharmacies = []places.Candidate{}
	}
	if page.NextPageToken != "" {
		tok := page.NextPageToken
		resp.NextPageToken = &tok
	}
	return resp
}

// relayProviderError maps provider failures onto the relay envelope: a
// provider status (quota, auth, invalid token) is an upstream problem, the
// rest is internal.
func relayProviderError(c *gin.Context, err error) {
	var se *places.StatusError
	switch {
	case errors.Is(err, places.ErrMissingAPIKey):
		relayError(c, http.StatusServiceUnavailable, "places provider not configured")
	case errors.As(err, &se):
		relayError(c, http.StatusBadGateway, se.Error())
	default:
		relayError(c, http.StatusInternalServerError, err.Error())
	}
}
