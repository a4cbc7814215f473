package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"bitbucket.org/mmdatafocus/ricemill_stock/config"
	"bitbucket.org/mmdatafocus/ricemill_stock/models/reports"
	"bitbucket.org/mmdatafocus/ricemill_stock/utils"
	"bitbucket.org/mmdatafocus/ricemill_stock/workflow"
)

// opening-balance prints the opening stock of every bucket on a date: all approved movement
// before that date, with direct-load locations left out.
//
// Example:
//
//	go run ./cmd/opening-balance/ -date=2026-01-29
//	go run ./cmd/opening-balance/ -date=2026-01-29 -json
func main() {
	date := flag.String("date", "", "Date (YYYY-MM-DD); defaults to today")
	asJSON := flag.Bool("json", false, "Print the report as JSON")
	flag.Parse()

	asOf, err := utils.ParseDate(*date)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	report, err := reports.GetOpeningBalanceReport(context.Background(), workflow.NewEngine(db), asOf)
	if err != nil {
		fmt.Fprintln(os.Stderr, "opening balance:", err)
		os.Exit(1)
	}

	if *asJSON {
		if err := utils.WriteIndentedJSON(os.Stdout, report); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	fmt.Printf("opening balance as of %s\n", report.AsOf.Format(utils.DateLayout))
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "LOCATION\tVARIETY\tPRODUCT\tPACKAGING\tKG\tBAGS\tQTLS\tSOURCE")
	for _, row := range report.Rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			row.Location, row.Variety, row.ProductType, row.PackagingBrand,
			row.BagSizeKg.String(), row.Bags, row.Quintals.StringFixed(2), row.VarietySource)
	}
	_ = w.Flush()
	fmt.Printf("total bags=%d qtls=%s locations=%d\n",
		report.Totals.TotalBags, report.Totals.TotalQtls.StringFixed(2), report.Totals.UniqueLocations)
}
