package reports

import (
	"bytes"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/ricemill_stock/inventory"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

func TestExportBifurcationExcel(t *testing.T) {
	rows := []inventory.BreakdownRow{
		{Location: "DL-1", CanonicalVariety: "SUM25 RNR STEAM", ProductType: "Rice", PackagingBrand: "MI GREEN",
			BagSizeKg: decimal.NewFromInt(50), Bags: 6, Quintals: decimal.NewFromInt(3), IsDirectLoad: true},
		{Location: "O2", CanonicalVariety: "SUM25 RNR STEAM", ProductType: "Rice", PackagingBrand: "MI GREEN",
			BagSizeKg: decimal.NewFromInt(30), Bags: 40, Quintals: decimal.NewFromInt(12)},
	}
	report := &inventory.Breakdown{
		AsOf:    time.Date(2026, 1, 11, 0, 0, 0, 0, time.UTC),
		Variety: "SUM25 RNR STEAM",
		Rows:    rows,
		Totals:  inventory.TotalsOf(rows),
	}

	var buf bytes.Buffer
	if err := ExportBifurcationExcel(&buf, report); err != nil {
		t.Fatalf("ExportBifurcationExcel: %v", err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()

	got, err := f.GetRows(bifurcationSheet)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("expected title, heading, 2 rows and totals, got %d rows: %v", len(got), got)
	}
	if got[0][0] != "Stock bifurcation as of 2026-01-11 - SUM25 RNR STEAM" {
		t.Fatalf("title=%q", got[0][0])
	}
	if got[1][0] != "Location" || got[2][0] != "DL-1" || got[2][7] != "Yes" || got[3][7] != "No" {
		t.Fatalf("rows=%v", got)
	}
	if got[4][0] != "Total" || got[4][5] != "46" || got[4][6] != "15" {
		t.Fatalf("totals=%v", got[4])
	}
}
