// Bulk import of pharmacy records from XLSX workbooks.
//
// Sales people keep prospect lists in spreadsheets; the importer turns the
// first sheet of a workbook into unlinked records (ExternalID nil) that a
// later search can merge with provider data. Columns are matched by header
// name, not position, so the sheets can be in any layout.
package services

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/saludmaps/go-pharma-backend/internal/domain"
	"github.com/saludmaps/go-pharma-backend/internal/repo"
)

// ImportResult summarizes one workbook import.
type ImportResult struct {
	Imported int        `json:"imported"`
	Skipped  int        `json:"skipped"`
	Failed   int        `json:"failed"`
	Errors   []RowError `json:"errors,omitempty"`
}

// RowError records why one data row could not be imported. Row is the
// 1-based sheet row number.
type RowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// ImportService ingests XLSX prospect lists into the record store.
type ImportService struct {
	DB *gorm.DB
}

// titler normalizes city capitalization ("sevilla" → "Sevilla"). Und keeps
// it language-agnostic; the sheets mix Spanish and Portuguese towns.
var titler = cases.Title(language.Und)

// ImportWorkbook reads the first sheet of an XLSX workbook and creates one
// record per data row. Rows whose name+city already exist in the store are
// skipped; rows without a name fail individually without aborting the rest.
// A workbook without both a name and a city column is rejected outright.
func (s *ImportService) ImportWorkbook(ctx context.Context, r io.Reader) (*ImportResult, error) {
	wb, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("import: open workbook: %w", err)
	}
	defer func() {
		if cerr := wb.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("import: close workbook")
		}
	}()

	sheet := wb.GetSheetName(0)
	if sheet == "" {
		return nil, ErrEmptyWorkbook
	}
	rows, err := wb.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("import: read sheet %q: %w", sheet, err)
	}
	if len(rows) < 2 {
		return nil, ErrEmptyWorkbook
	}

	cols := headerIndex(rows[0])
	if _, ok := cols["name"]; !ok {
		return nil, ErrMissingColumns
	}
	if _, ok := cols["city"]; !ok {
		return nil, ErrMissingColumns
	}

	res := &ImportResult{}
	for i, row := range rows[1:] {
		rowNum := i + 2 // 1-based, after the header
		if err := ctx.Err(); err != nil {
			return res, err
		}
		p, err := recordFromRow(row, cols)
		if err != nil {
			res.Failed++
			res.Errors = append(res.Errors, RowError{Row: rowNum, Reason: err.Error()})
			continue
		}
		exists, err := repo.ExistsPharmacyByNameCity(ctx, s.DB, p.Name, p.City)
		if err != nil {
			res.Failed++
			res.Errors = append(res.Errors, RowError{Row: rowNum, Reason: err.Error()})
			continue
		}
		if exists {
			res.Skipped++
			continue
		}
		if err := repo.CreatePharmacy(ctx, s.DB, p); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, RowError{Row: rowNum, Reason: err.Error()})
			continue
		}
		res.Imported++
	}
	log.Info().
		Int("imported", res.Imported).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Msg("import: workbook processed")
	return res, nil
}

// headerIndex maps lower-cased, trimmed header names to column positions.
func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if key != "" {
			if _, dup := idx[key]; !dup {
				idx[key] = i
			}
		}
	}
	return idx
}

// recordFromRow builds an unlinked record from one sheet row.
func recordFromRow(row []string, cols map[string]int) (*domain.Pharmacy, error) {
	cell := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	name := cell("name")
	if name == "" {
		return nil, fmt.Errorf("missing name")
	}
	p := &domain.Pharmacy{
		Name:             name,
		Address:          cell("address"),
		City:             titler.String(strings.ToLower(cell("city"))),
		Region:           cell("region"),
		Country:          cell("country"),
		Phone:            cell("phone"),
		SecondaryPhone:   cell("secondary_phone"),
		Email:            cell("email"),
		Website:          cell("website"),
		Notes:            cell("notes"),
		CommercialStatus: domain.StatusNotContacted,
		ClientType:       domain.ClientTypePharmacy,
	}
	if v := cell("status"); v != "" {
		switch strings.ToLower(v) {
		case domain.StatusNotContacted, domain.StatusContacted, domain.StatusClient:
			p.CommercialStatus = strings.ToLower(v)
		default:
			return nil, fmt.Errorf("invalid status %q", v)
		}
	}
	if v := cell("latitude"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid latitude %q", v)
		}
		p.Latitude = f
	}
	if v := cell("longitude"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid longitude %q", v)
		}
		p.Longitude = f
	}
	return p, nil
}
