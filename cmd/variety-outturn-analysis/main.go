package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"

	"bitbucket.org/mmdatafocus/ricemill_stock/config"
	"bitbucket.org/mmdatafocus/ricemill_stock/inventory"
	"bitbucket.org/mmdatafocus/ricemill_stock/models"
	"bitbucket.org/mmdatafocus/ricemill_stock/utils"
)

type match struct {
	Variety     string  `json:"variety"`
	OutturnId   int     `json:"outturn_id,omitempty"`
	OutturnCode string  `json:"outturn_code,omitempty"`
	OutturnText string  `json:"outturn_text,omitempty"`
	Score       float64 `json:"score"`
}

type analysis struct {
	AutoMap    []match `json:"auto_map"`
	Review     []match `json:"review"`
	NewOutturn []match `json:"new_outturn"`
}

func analyse(varieties []string, outturns []inventory.Outturn) analysis {
	var out analysis
	for _, v := range varieties {
		best, ok := inventory.BestOutturnMatch(v, outturns)
		m := match{Variety: v, Score: best.Score}
		if ok {
			m.OutturnId = best.Outturn.Id
			m.OutturnCode = best.Outturn.Code
			m.OutturnText = best.CanonicalText
		}
		switch best.Class {
		case inventory.MappingAutoMap:
			out.AutoMap = append(out.AutoMap, m)
		case inventory.MappingReview:
			out.Review = append(out.Review, m)
		default:
			out.NewOutturn = append(out.NewOutturn, m)
		}
	}
	for _, group := range [][]match{out.AutoMap, out.Review, out.NewOutturn} {
		sort.SliceStable(group, func(i, j int) bool { return group[i].Score > group[j].Score })
	}
	return out
}

// variety-outturn-analysis matches every free-text variety still on the ledger against the
// outturn master and groups the results into auto-map, review and new-outturn. Read-only; it
// reports, it does not relink rows.
//
// Example:
//
//	go run ./cmd/variety-outturn-analysis/
//	go run ./cmd/variety-outturn-analysis/ -json
func main() {
	asJSON := flag.Bool("json", false, "Print the analysis as JSON")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	ctx := context.Background()
	store := models.NewLedgerStore(db)
	varieties, err := store.DistinctVarietyTexts(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	outturns, err := store.ListOutturns(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	result := analyse(varieties, outturns)
	if *asJSON {
		if err := utils.WriteIndentedJSON(os.Stdout, result); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	printGroup := func(title string, rows []match) {
		fmt.Printf("%s (%d)\n", title, len(rows))
		for _, m := range rows {
			if m.OutturnCode == "" {
				fmt.Printf("  %-40s %.3f\n", m.Variety, m.Score)
				continue
			}
			fmt.Printf("  %-40s %.3f  -> %s (%s)\n", m.Variety, m.Score, m.OutturnCode, m.OutturnText)
		}
	}
	printGroup("auto-map", result.AutoMap)
	printGroup("review", result.Review)
	printGroup("new-outturn", result.NewOutturn)
	fmt.Printf("%d varieties checked against %d outturns\n", len(varieties), len(outturns))
}
