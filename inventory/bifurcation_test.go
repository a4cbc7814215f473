package inventory

import (
	"context"
	"testing"
)

func bifurcationStore() *MemoryStore {
	return newTestStore().Append(
		purchase(1, "2026-01-10", "O2", steam, pkgMiGreen30, 40, "12"),
		purchase(2, "2026-01-10", "O1", steam, pkgMiGreen30, 10, "3"),
		purchase(3, "2026-01-10", "O1", steam, pkgMiBlue30, 25, "7.5"),
		purchase(4, "2026-01-11", "DL-1", steam, pkgMiGreen50, 6, "3"),
		purchase(5, "2026-01-10", "O1", "SUM25 RNR RAW", pkgMiGreen30, 70, "21"),
		purchase(6, "2026-01-10", "O2", steam, pkgMiBlue30, 5, "1.5"),
		sale(7, "2026-01-11", "O2", steam, pkgMiBlue30, 5, "1.5"),
	)
}

func TestGetBifurcationRowsSortedPositiveAndTotalled(t *testing.T) {
	e := NewEngine(bifurcationStore())
	got, err := e.GetBifurcation(context.Background(), BreakdownQuery{
		Variety:     VarietySelector{Text: "sum25 rnr steam"},
		ProductType: "RICE",
		AsOf:        day("2026-01-11"),
	})
	if err != nil {
		t.Fatalf("GetBifurcation: %v", err)
	}
	if len(got.Rows) != 4 {
		t.Fatalf("expected 4 rows, got %+v", got.Rows)
	}
	wantOrder := []string{
		"DL-1|SUM25 RNR STEAM|Rice|MI GREEN|50",
		"O1|SUM25 RNR STEAM|Rice|MI BLUE|30",
		"O1|SUM25 RNR STEAM|Rice|MI GREEN|30",
		"O2|SUM25 RNR STEAM|Rice|MI GREEN|30",
	}
	var sum int64
	seen := map[string]bool{}
	for i, row := range got.Rows {
		if row.GroupingKey != wantOrder[i] {
			t.Fatalf("row %d key=%q want %q", i, row.GroupingKey, wantOrder[i])
		}
		if row.Bags <= 0 && !row.Quintals.IsPositive() {
			t.Fatalf("row %d has no stock", i)
		}
		if seen[row.GroupingKey] {
			t.Fatalf("duplicate key %s", row.GroupingKey)
		}
		seen[row.GroupingKey] = true
		sum += row.Bags
	}
	if got.Totals.TotalBags != sum || sum != 81 {
		t.Fatalf("total bags=%d sum=%d", got.Totals.TotalBags, sum)
	}
	if !got.Totals.TotalQtls.Equal(qtl("25.5")) {
		t.Fatalf("total qtls=%s", got.Totals.TotalQtls)
	}
	if got.Totals.DirectLoadLocations+got.Totals.RegularLocations != len(got.Rows) {
		t.Fatalf("location split %+v does not cover %d rows", got.Totals, len(got.Rows))
	}
	if got.Totals.DirectLoadLocations != 1 || got.Totals.UniqueLocations != 3 {
		t.Fatalf("totals=%+v", got.Totals)
	}
	if got.CalculationMethod != MethodVarietyString || got.Variety != "SUM25 RNR STEAM" {
		t.Fatalf("method=%s variety=%s", got.CalculationMethod, got.Variety)
	}
}

func TestGetBifurcationExactModeDoesNotExpandAbbreviations(t *testing.T) {
	store := newTestStore().Append(
		purchase(1, "2026-01-10", "O1", "SUM25 R.N.R STEAM", pkgMiGreen30, 10, "3"),
		purchase(2, "2026-01-10", "O1", steam, pkgMiGreen30, 4, "1.2"),
	)
	got, err := NewEngine(store).GetBifurcation(context.Background(), BreakdownQuery{
		Variety: VarietySelector{Text: steam},
		AsOf:    day("2026-01-10"),
	})
	if err != nil {
		t.Fatalf("GetBifurcation: %v", err)
	}
	if len(got.Rows) != 1 || got.Rows[0].Bags != 4 {
		t.Fatalf("exact breakdown should only hold the exact spelling, got %+v", got.Rows)
	}
}

func TestGetBifurcationAllVarieties(t *testing.T) {
	got, err := NewEngine(bifurcationStore()).GetBifurcation(context.Background(), BreakdownQuery{AsOf: day("2026-01-10")})
	if err != nil {
		t.Fatalf("GetBifurcation: %v", err)
	}
	// Direct-load stock from jan 11 is out of window; raw and steam are separate rows.
	if len(got.Rows) != 5 {
		t.Fatalf("expected 5 rows, got %+v", got.Rows)
	}
	for i := 1; i < len(got.Rows); i++ {
		a, b := got.Rows[i-1], got.Rows[i]
		if a.Location > b.Location || (a.Location == b.Location && a.Bags < b.Bags) {
			t.Fatalf("rows out of order at %d: %+v then %+v", i, a, b)
		}
	}
	if got.Rows[0].Location != "O1" || got.Rows[0].Bags != 70 {
		t.Fatalf("first row should be the largest O1 bucket, got %+v", got.Rows[0])
	}
}

func TestGetHierarchicalBifurcation(t *testing.T) {
	store := newTestStore().Append(
		purchase(1, "2026-01-10", "O2", steam, pkgMiGreen30, 150, "45"),
		Palti{
			Id: 2, Date: day("2026-01-12"), Status: StatusApproved,
			SourceLocation: "O2", Variety: VarietyRef{Text: steam}, ProductType: "Rice",
			SourcePackagingId: pkgMiGreen30, TargetPackagingId: pkgMiBlue30,
			SourceBags: 60, Bags: 60, Quintals: qtl("18"), ShortageKg: qtl("30"), ShortageBags: 1,
		},
		Palti{
			Id: 3, Date: day("2026-01-14"), Status: StatusApproved,
			SourceLocation: "O2", Variety: VarietyRef{Text: steam}, ProductType: "Rice",
			SourcePackagingId: pkgMiGreen30, TargetPackagingId: pkgMiBlue30,
			SourceBags: 20, Bags: 20, Quintals: qtl("6"),
		},
		Palti{
			Id: 4, Date: day("2026-01-14"), Status: StatusPending,
			SourceLocation: "O2", Variety: VarietyRef{Text: steam}, ProductType: "Rice",
			SourcePackagingId: pkgMiGreen30, TargetPackagingId: pkgMiBlue30,
			SourceBags: 5, Bags: 5, Quintals: qtl("1.5"),
		},
	)
	got, err := NewEngine(store).GetHierarchicalBifurcation(context.Background(), BreakdownQuery{
		Variety: VarietySelector{Text: steam},
		AsOf:    day("2026-01-14"),
	})
	if err != nil {
		t.Fatalf("GetHierarchicalBifurcation: %v", err)
	}
	if len(got.Sources) != 1 {
		t.Fatalf("sources=%+v", got.Sources)
	}
	src := got.Sources[0]
	if src.GroupingKey != "O2|SUM25 RNR STEAM|Rice|MI GREEN|30" {
		t.Fatalf("source key=%s", src.GroupingKey)
	}
	if src.Remaining.Bags != 69 {
		t.Fatalf("remaining=%d want 69", src.Remaining.Bags)
	}
	if len(src.Conversions) != 1 {
		t.Fatalf("conversions=%+v", src.Conversions)
	}
	c := src.Conversions[0]
	if c.ConversionCount != 2 || c.Bags != 80 || c.ShortageBags != 1 || !c.LastConversionDate.Equal(day("2026-01-14")) {
		t.Fatalf("conversion=%+v", c)
	}
	if c.TargetPackagingBrand != "MI BLUE" || c.TargetLocation != "O2" {
		t.Fatalf("target=%s at %s", c.TargetPackagingBrand, c.TargetLocation)
	}
	if got.Totals.TotalBags != 149 {
		t.Fatalf("flat totals=%d", got.Totals.TotalBags)
	}
}

func TestHierarchicalRemainingMatchesFlatRowAcrossTextAndOutturnRows(t *testing.T) {
	store := newTestStore().Append(
		purchase(1, "2026-01-10", "O2", steam, pkgMiGreen30, 100, "30"),
		Production{Id: 2, Date: day("2026-01-10"), Status: StatusApproved, Location: "O2", OutturnId: outturnSteam,
			ProductType: "Rice", PackagingId: pkgMiGreen30, Bags: 50, Quintals: qtl("15")},
		Palti{
			Id: 3, Date: day("2026-01-12"), Status: StatusApproved,
			SourceLocation: "O2", Variety: VarietyRef{OutturnId: intPtr(outturnSteam)}, ProductType: "Rice",
			SourcePackagingId: pkgMiGreen30, TargetPackagingId: pkgMiBlue30,
			SourceBags: 10, Bags: 10, Quintals: qtl("3"),
		},
	)
	got, err := NewEngine(store).GetHierarchicalBifurcation(context.Background(), BreakdownQuery{
		Variety: VarietySelector{Text: steam},
		AsOf:    day("2026-01-12"),
	})
	if err != nil {
		t.Fatalf("GetHierarchicalBifurcation: %v", err)
	}
	if len(got.Sources) != 1 {
		t.Fatalf("sources=%+v", got.Sources)
	}
	src := got.Sources[0]
	var flat *BreakdownRow
	for i := range got.Rows {
		if got.Rows[i].GroupingKey == src.GroupingKey {
			flat = &got.Rows[i]
		}
	}
	if flat == nil {
		t.Fatalf("no flat row for %s in %+v", src.GroupingKey, got.Rows)
	}
	if flat.Bags != 140 || src.Remaining.Bags != flat.Bags {
		t.Fatalf("flat=%d remaining=%d, want both 140", flat.Bags, src.Remaining.Bags)
	}
}
