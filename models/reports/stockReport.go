package reports

import (
	"context"
	"sort"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/ricemill_stock/inventory"
	"bitbucket.org/mmdatafocus/ricemill_stock/utils"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("bitbucket.org/mmdatafocus/ricemill_stock/models/reports")

type OpeningBalanceReport struct {
	AsOf   time.Time                  `json:"as_of"`
	Rows   []inventory.OpeningBalance `json:"rows"`
	Totals inventory.BreakdownTotals  `json:"totals"`
}

func selectorKey(sel inventory.VarietySelector) string {
	if sel.OutturnId != nil && *sel.OutturnId > 0 {
		return "OUTTURN#" + strconv.Itoa(*sel.OutturnId)
	}
	return inventory.NormalizeText(sel.Text)
}

func breakdownKey(kind string, q inventory.BreakdownQuery) string {
	return utils.ReportCacheKey(kind, selectorKey(q.Variety), q.ProductType, q.AsOf.Format(utils.DateLayout))
}

// GetBifurcationReport is the cached flat breakdown for report screens.
func GetBifurcationReport(ctx context.Context, engine *inventory.Engine, q inventory.BreakdownQuery) (*inventory.Breakdown, error) {
	ctx, span := tracer.Start(ctx, "reports.GetBifurcationReport")
	defer span.End()
	q.AsOf = inventory.DateOnly(q.AsOf)
	span.SetAttributes(attribute.String("report.as_of", q.AsOf.Format(utils.DateLayout)))

	start := time.Now()
	defer logSlowReport(ctx, "bifurcation_report", start, map[string]any{
		"variety":      selectorKey(q.Variety),
		"product_type": q.ProductType,
	})
	return readThrough(breakdownKey("bifurcation", q), func() (*inventory.Breakdown, error) {
		return engine.GetBifurcation(ctx, q)
	})
}

func GetHierarchicalBifurcationReport(ctx context.Context, engine *inventory.Engine, q inventory.BreakdownQuery) (*inventory.HierarchicalBreakdown, error) {
	ctx, span := tracer.Start(ctx, "reports.GetHierarchicalBifurcationReport")
	defer span.End()
	q.AsOf = inventory.DateOnly(q.AsOf)

	start := time.Now()
	defer logSlowReport(ctx, "bifurcation_hierarchy_report", start, map[string]any{
		"variety":      selectorKey(q.Variety),
		"product_type": q.ProductType,
	})
	return readThrough(breakdownKey("bifurcation_hierarchy", q), func() (*inventory.HierarchicalBreakdown, error) {
		return engine.GetHierarchicalBifurcation(ctx, q)
	})
}

// GetOpeningBalanceReport lists carried-forward stock before asOf, sorted by grouping key.
func GetOpeningBalanceReport(ctx context.Context, engine *inventory.Engine, asOf time.Time) (*OpeningBalanceReport, error) {
	ctx, span := tracer.Start(ctx, "reports.GetOpeningBalanceReport")
	defer span.End()
	asOf = inventory.DateOnly(asOf)

	start := time.Now()
	defer logSlowReport(ctx, "opening_balance_report", start, map[string]any{
		"as_of": asOf.Format(utils.DateLayout),
	})
	return readThrough(utils.ReportCacheKey("opening", asOf.Format(utils.DateLayout)), func() (*OpeningBalanceReport, error) {
		balances, err := engine.GetOpeningBalances(ctx, asOf)
		if err != nil {
			return nil, err
		}
		return openingReport(asOf, balances), nil
	})
}

func openingReport(asOf time.Time, balances map[string]inventory.OpeningBalance) *OpeningBalanceReport {
	keys := make([]string, 0, len(balances))
	for k := range balances {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	report := &OpeningBalanceReport{AsOf: asOf, Rows: make([]inventory.OpeningBalance, 0, len(keys))}
	rows := make([]inventory.BreakdownRow, 0, len(keys))
	for _, k := range keys {
		b := balances[k]
		report.Rows = append(report.Rows, b)
		rows = append(rows, inventory.BreakdownRow{Location: b.Location, Bags: b.Bags, Quintals: b.Quintals})
	}
	// opening balances never include direct-load buckets
	report.Totals = inventory.TotalsOf(rows)
	return report
}
