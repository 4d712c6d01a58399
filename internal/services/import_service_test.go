package services

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/saludmaps/go-pharma-backend/internal/domain"
	"github.com/saludmaps/go-pharma-backend/internal/repo"
)

// workbookOf builds an in-memory XLSX with the given header and rows.
func workbookOf(t *testing.T, header []string, rows [][]string) *bytes.Buffer {
	t.Helper()
	wb := excelize.NewFile()
	sheet := wb.GetSheetName(0)
	all := append([][]string{header}, rows...)
	for r, row := range all {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				t.Fatalf("cell name: %v", err)
			}
			if err := wb.SetCellStr(sheet, cell, v); err != nil {
				t.Fatalf("set cell: %v", err)
			}
		}
	}
	buf, err := wb.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf
}

func TestImportWorkbook(t *testing.T) {
	db := newTestDB(t)
	svc := &ImportService{DB: db}

	buf := workbookOf(t,
		[]string{"Name", "City", "Phone", "Latitude", "Longitude"},
		[][]string{
			{"Farmacia Central", "sevilla", "954111222", "37.39", "-5.99"},
			{"Farmacia Norte", "SEVILLA", "", "", ""},
			{"", "Huelva", "", "", ""}, // no name: fails, rest continues
		},
	)
	res, err := svc.ImportWorkbook(context.Background(), buf)
	if err != nil {
		t.Fatalf("ImportWorkbook: %v", err)
	}
	if res.Imported != 2 || res.Skipped != 0 || res.Failed != 1 {
		t.Fatalf("result = %+v, want 2/0/1", res)
	}
	if len(res.Errors) != 1 || res.Errors[0].Row != 4 {
		t.Fatalf("row error wrong: %+v", res.Errors)
	}

	var got domain.Pharmacy
	if err := db.Where("name = ?", "Farmacia Central").First(&got).Error; err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.City != "Sevilla" {
		t.Fatalf("city not normalized: %q", got.City)
	}
	if got.ExternalID != nil {
		t.Fatal("imported record must be unlinked")
	}
	if got.CommercialStatus != domain.StatusNotContacted {
		t.Fatalf("status = %s, want not_contacted", got.CommercialStatus)
	}
	if got.Latitude != 37.39 || got.Longitude != -5.99 {
		t.Fatalf("coordinates wrong: %v,%v", got.Latitude, got.Longitude)
	}
}

func TestImportWorkbookSkipsExisting(t *testing.T) {
	db := newTestDB(t)
	svc := &ImportService{DB: db}
	if err := repo.CreatePharmacy(context.Background(), db, &domain.Pharmacy{
		Name:             "Farmacia Central",
		City:             "Sevilla",
		CommercialStatus: domain.StatusContacted,
		ClientType:       domain.ClientTypePharmacy,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	buf := workbookOf(t,
		[]string{"name", "city"},
		[][]string{{"FARMACIA CENTRAL", "sevilla"}},
	)
	res, err := svc.ImportWorkbook(context.Background(), buf)
	if err != nil {
		t.Fatalf("ImportWorkbook: %v", err)
	}
	if res.Imported != 0 || res.Skipped != 1 {
		t.Fatalf("result = %+v, want skip", res)
	}
}

func TestImportWorkbookMissingColumns(t *testing.T) {
	svc := &ImportService{DB: newTestDB(t)}
	buf := workbookOf(t, []string{"name", "phone"}, [][]string{{"Farmacia", "954"}})
	if _, err := svc.ImportWorkbook(context.Background(), buf); !errors.Is(err, ErrMissingColumns) {
		t.Fatalf("err = %v, want ErrMissingColumns", err)
	}
}

func TestImportWorkbookEmpty(t *testing.T) {
	svc := &ImportService{DB: newTestDB(t)}
	buf := workbookOf(t, []string{"name", "city"}, nil)
	if _, err := svc.ImportWorkbook(context.Background(), buf); !errors.Is(err, ErrEmptyWorkbook) {
		t.Fatalf("err = %v, want ErrEmptyWorkbook", err)
	}
}

func TestImportWorkbookInvalidStatus(t *testing.T) {
	svc := &ImportService{DB: newTestDB(t)}
	buf := workbookOf(t,
		[]string{"name", "city", "status"},
		[][]string{
			{"Farmacia Buena", "Sevilla", "client"},
			{"Farmacia Mala", "Sevilla", "vip"},
		},
	)
	res, err := svc.ImportWorkbook(context.Background(), buf)
	if err != nil {
		t.Fatalf("ImportWorkbook: %v", err)
	}
	if res.Imported != 1 || res.Failed != 1 {
		t.Fatalf("result = %+v, want 1 imported / 1 failed", res)
	}
}
