// XLSX import HTTP handler.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/saludmaps/go-pharma-backend/internal/services"
)

// maxImportBytes caps uploaded workbooks at 10 MiB; prospect lists are a few
// thousand rows at most.
const maxImportBytes = 10 << 20

// ImportPharmacies godoc
// @ID          importPharmacies
// @Summary     Import pharmacy records from an XLSX workbook
// @Description Reads the "file" part of a multipart upload. Columns are matched by header name; name and city columns are required. Existing name+city pairs are skipped; per-row failures are reported without aborting the import.
// @Tags        Pharmacies
// @Accept      multipart/form-data
// @Produce     json
//
// @Param       file  formData  file  true  "XLSX workbook"
//
// @Success     200  {object} services.ImportResult
// @Failure     400  {object} handlers.ErrorResponse "Missing file / unusable workbook"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /pharmacies/import [post]
func (h *Handlers) ImportPharmacies(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImportBytes)

	fh, err := c.FormFile("file")
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "multipart field 'file' required")
		return
	}
	f, err := fh.Open()
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "cannot read uploaded file")
		return
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("import: close upload")
		}
	}()

	res, err := h.importSvc.ImportWorkbook(c.Request.Context(), f)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmptyWorkbook), errors.Is(err, services.ErrMissingColumns):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeImportFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, res)
}
