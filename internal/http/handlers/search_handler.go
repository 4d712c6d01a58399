// Prospecting search HTTP handlers (Server-Sent Events).
//
// POST /search starts a run and streams it: one "result" event per record as
// it is merged into the store, interleaved "progress" events with the live
// Found/Cached counters, and a final "done" event with the run outcome.
// Closing the connection cancels the run (the handler context is the run's
// parent). DELETE /search cancels explicitly.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/saludmaps/go-pharma-backend/internal/services"
)

// SearchProgress is the payload of "progress" events.
type SearchProgress struct {
	Found  int64 `json:"found"`
	Cached int64 `json:"cached"`
}

// SearchDone is the payload of the terminal "done" event.
type SearchDone struct {
	Outcome string `json:"outcome"`
	Found   int64  `json:"found"`
	Cached  int64  `json:"cached"`
	Error   string `json:"error,omitempty"`
}

// StartSearch godoc
// @ID          startSearch
// @Summary     Run a prospecting search (SSE)
// @Description Starts a provider search for the given filters and streams result/progress/done events. At least one of country/province/city is required. Starting a new search cancels the previous one.
// @Tags        Search
// @Accept      json
// @Produce     text/event-stream
//
// @Param       body  body  services.SearchFilters  true  "Geographic filters and category"
//
// @Success     200  {string} string "SSE stream"
// @Failure     400  {object} handlers.ErrorResponse "No geographic filter"
// @Router      /search [post]
func (h *Handlers) StartSearch(c *gin.Context) {
	var req services.SearchFilters
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	ch, run, err := h.searchSvc.Search(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, services.ErrNoGeographicFilter) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeSearchFailed, err.Error())
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // disable proxy buffering

	flusher, _ := c.Writer.(http.Flusher)
	flush := func() {
		if flusher != nil {
			flusher.Flush()
		}
	}

	for p := range ch {
		c.SSEvent("result", p)
		c.SSEvent("progress", SearchProgress{Found: run.Found(), Cached: run.Cached()})
		flush()
	}

	outcome, cause := run.Outcome()
	done := SearchDone{
		Outcome: string(outcome),
		Found:   run.Found(),
		Cached:  run.Cached(),
	}
	if cause != nil {
		done.Error = cause.Error()
	}
	c.SSEvent("done", done)
	flush()
}

// CancelSearch godoc
// @ID          cancelSearch
// @Summary     Cancel the in-flight prospecting search
// @Tags        Search
//
// @Success     204  {string} string "No Content"
// @Router      /search [delete]
func (h *Handlers) CancelSearch(c *gin.Context) {
	h.searchSvc.Cancel()
	noContent(c)
}
