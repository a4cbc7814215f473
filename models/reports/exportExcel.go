package reports

import (
	"fmt"
	"io"

	"bitbucket.org/mmdatafocus/ricemill_stock/inventory"
	"bitbucket.org/mmdatafocus/ricemill_stock/utils"
	"github.com/xuri/excelize/v2"
)

const bifurcationSheet = "Bifurcation"

var bifurcationHeadings = []string{"Location", "Variety", "Product Type", "Packaging", "Bag Size (kg)", "Bags", "Quintals", "Direct Load"}

func bifurcationCells(r inventory.BreakdownRow) []interface{} {
	direct := "No"
	if r.IsDirectLoad {
		direct = "Yes"
	}
	return []interface{}{
		r.Location,
		r.CanonicalVariety,
		r.ProductType,
		r.PackagingBrand,
		r.BagSizeKg.InexactFloat64(),
		r.Bags,
		r.Quintals.InexactFloat64(),
		direct,
	}
}

// ExportBifurcationExcel writes the breakdown rows followed by a totals row as an xlsx workbook.
func ExportBifurcationExcel(w io.Writer, report *inventory.Breakdown) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", bifurcationSheet); err != nil {
		return err
	}

	title := "Stock bifurcation as of " + report.AsOf.Format(utils.DateLayout)
	if report.Variety != "" {
		title += " - " + report.Variety
	}
	if err := f.SetCellValue(bifurcationSheet, "A1", title); err != nil {
		return err
	}

	col := 'A'
	for _, h := range bifurcationHeadings {
		if err := f.SetCellValue(bifurcationSheet, string(col)+"2", h); err != nil {
			return err
		}
		col++
	}

	rowNo := 3
	for _, r := range report.Rows {
		col := 'A'
		for _, value := range bifurcationCells(r) {
			if err := f.SetCellValue(bifurcationSheet, string(col)+fmt.Sprint(rowNo), value); err != nil {
				return err
			}
			col++
		}
		rowNo++
	}

	totals := map[string]interface{}{
		"A": "Total",
		"F": report.Totals.TotalBags,
		"G": report.Totals.TotalQtls.InexactFloat64(),
	}
	for c, v := range totals {
		if err := f.SetCellValue(bifurcationSheet, c+fmt.Sprint(rowNo), v); err != nil {
			return err
		}
	}
	return f.Write(w)
}
