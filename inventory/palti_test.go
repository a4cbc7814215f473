package inventory

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// sameDayPaltiStore is 150 bags of SUM25 RNR STEAM in MI GREEN 30kg at O2, all converted
// to MI BLUE on 2026-01-29.
func sameDayPaltiStore() *MemoryStore {
	return newTestStore().Append(
		purchase(1, "2026-01-20", "O2", steam, pkgMiGreen30, 150, "45"),
		Palti{
			Id: 2, Date: day("2026-01-29"), Status: StatusApproved,
			SourceLocation: "O2", TargetLocation: "O2",
			Variety: VarietyRef{Text: steam}, ProductType: "Rice",
			SourcePackagingId: pkgMiGreen30, TargetPackagingId: pkgMiBlue30,
			SourceBags: 150, Bags: 150, Quintals: qtl("45"),
		},
	)
}

func TestSaleAfterSameDayPaltiRejected(t *testing.T) {
	rec := &countingRecorder{}
	e := NewEngine(sameDayPaltiStore(), WithRecorder(rec))
	res, err := e.ValidateSaleAfterPalti(context.Background(), textBucket("O2", steam, "Rice", pkgMiGreen30), 100, day("2026-01-29"))
	if err != nil {
		t.Fatalf("ValidateSaleAfterPalti: %v", err)
	}
	if res.IsValid {
		t.Fatalf("sale after a full same-day palti must be rejected")
	}
	if res.RemainingStock.Bags != 0 || res.Shortfall != 100 {
		t.Fatalf("remaining=%d shortfall=%d", res.RemainingStock.Bags, res.Shortfall)
	}
	if res.OpeningStock.Bags != 150 || res.PaltiDeductions.Bags != 150 {
		t.Fatalf("opening=%d deductions=%d", res.OpeningStock.Bags, res.PaltiDeductions.Bags)
	}
	var insufficient *InsufficientStockError
	if err := res.Err(); !errors.As(err, &insufficient) || insufficient.Shortfall.Bags != 100 {
		t.Fatalf("Err()=%v", err)
	}
	if rec.rejects["sale_after_palti"] != 1 {
		t.Fatalf("rejects=%v", rec.rejects)
	}
}

func TestSaleAfterPaltiSuggestsConvertedStock(t *testing.T) {
	e := NewEngine(sameDayPaltiStore())
	res, err := e.ValidateSaleAfterPalti(context.Background(), textBucket("O2", steam, "Rice", pkgMiGreen30), 100, day("2026-01-29"))
	if err != nil {
		t.Fatalf("ValidateSaleAfterPalti: %v", err)
	}
	if len(res.Suggestions) == 0 {
		t.Fatalf("expected a suggestion pointing at the MI BLUE bucket")
	}
	if !strings.Contains(res.Suggestions[0], "MI BLUE") {
		t.Fatalf("suggestions=%v", res.Suggestions)
	}
}

func TestSaleAfterPaltiCountsPendingPalti(t *testing.T) {
	store := newTestStore().Append(
		purchase(1, "2026-01-20", "O2", steam, pkgMiGreen30, 150, "45"),
		Palti{
			Id: 2, Date: day("2026-01-29"), Status: StatusPending,
			SourceLocation: "O2", Variety: VarietyRef{Text: steam}, ProductType: "Rice",
			SourcePackagingId: pkgMiGreen30, TargetPackagingId: pkgMiBlue30,
			SourceBags: 100, Bags: 100, Quintals: qtl("30"), ShortageKg: qtl("90"), ShortageBags: 3,
		},
	)
	res, err := NewEngine(store).ValidateSaleAfterPalti(context.Background(), textBucket("O2", steam, "Rice", pkgMiGreen30), 47, day("2026-01-29"))
	if err != nil {
		t.Fatalf("ValidateSaleAfterPalti: %v", err)
	}
	if !res.IsValid || res.RemainingStock.Bags != 47 {
		t.Fatalf("valid=%v remaining=%d", res.IsValid, res.RemainingStock.Bags)
	}
	if !res.PaltiDeductions.Quintals.Equal(qtl("30.9")) {
		t.Fatalf("deductions=%s", res.PaltiDeductions.Quintals)
	}

	res, err = NewEngine(store).ValidateSaleAfterPalti(context.Background(), textBucket("O2", steam, "Rice", pkgMiGreen30), 48, day("2026-01-29"))
	if err != nil {
		t.Fatalf("ValidateSaleAfterPalti: %v", err)
	}
	if res.IsValid || res.Shortfall != 1 {
		t.Fatalf("valid=%v shortfall=%d", res.IsValid, res.Shortfall)
	}
}

func TestSaleAfterPaltiNextDayUsesOpening(t *testing.T) {
	res, err := NewEngine(sameDayPaltiStore()).ValidateSaleAfterPalti(context.Background(), textBucket("O2", steam, "Rice", pkgMiBlue30), 150, day("2026-01-30"))
	if err != nil {
		t.Fatalf("ValidateSaleAfterPalti: %v", err)
	}
	if !res.IsValid || res.OpeningStock.Bags != 150 || !res.PaltiDeductions.IsZero() {
		t.Fatalf("result=%+v", res)
	}
}

func TestSaleAfterPaltiRequiresAllDimensions(t *testing.T) {
	b := textBucket("O2", steam, "", pkgMiGreen30)
	_, err := NewEngine(sameDayPaltiStore()).ValidateSaleAfterPalti(context.Background(), b, 1, day("2026-01-29"))
	var verr *ValidationError
	if !errors.As(err, &verr) || len(verr.Missing) != 1 || verr.Missing[0] != "product_type" {
		t.Fatalf("expected missing product_type, got %v", err)
	}
}

func TestValidatePaltiSufficiency(t *testing.T) {
	store := newTestStore().Append(
		purchase(1, "2026-01-20", "O2", steam, pkgMiGreen30, 150, "45"),
		purchase(2, "2026-01-20", "O1", steam, pkgMiGreen30, 300, "90"),
	)
	e := NewEngine(store)
	ctx := context.Background()
	source := textBucket("O2", steam, "Rice", pkgMiGreen30)

	ok, err := e.ValidatePaltiSufficiency(ctx, PaltiRequest{
		Source:            source,
		TargetProductType: "Sella",
		Requested:         Quantity{Bags: 150, Quintals: qtl("45")},
		Date:              day("2026-01-29"),
	})
	if err != nil {
		t.Fatalf("ValidatePaltiSufficiency: %v", err)
	}
	if !ok.IsValid || ok.Err() != nil || !ok.Shortfall.IsZero() {
		t.Fatalf("exact fit should pass, got %+v", ok)
	}

	short, err := e.ValidatePaltiSufficiency(ctx, PaltiRequest{
		Source:    source,
		Requested: Quantity{Bags: 200, Quintals: qtl("60")},
		Date:      day("2026-01-29"),
	})
	if err != nil {
		t.Fatalf("ValidatePaltiSufficiency: %v", err)
	}
	if short.IsValid || short.Shortfall.Bags != 50 || !short.Shortfall.Quintals.Equal(qtl("15")) {
		t.Fatalf("result=%+v", short)
	}
	if short.Available.Bags != 150 || short.Requested.Bags != 200 {
		t.Fatalf("available=%d requested=%d", short.Available.Bags, short.Requested.Bags)
	}
	if len(short.Suggestions) < 2 {
		t.Fatalf("suggestions=%v", short.Suggestions)
	}
	if short.Suggestions[0] != "reduce quantity to 150 bags or less" {
		t.Fatalf("first suggestion=%q", short.Suggestions[0])
	}
	found := false
	for _, s := range short.Suggestions {
		if strings.Contains(s, "at O1") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected the O1 bucket to be suggested, got %v", short.Suggestions)
	}
	if !errors.Is(short.Err(), ErrInsufficientStock) {
		t.Fatalf("Err()=%v", short.Err())
	}
}

func TestValidatePaltiRejectsCrossCategoryRegardlessOfStock(t *testing.T) {
	store := newTestStore().Append(purchase(1, "2026-01-20", "O2", steam, pkgMiGreen30, 1000, "300"))
	rec := &countingRecorder{}
	_, err := NewEngine(store, WithRecorder(rec)).ValidatePaltiSufficiency(context.Background(), PaltiRequest{
		Source:            textBucket("O2", steam, "Rice", pkgMiGreen30),
		TargetProductType: "Bran",
		Requested:         Quantity{Bags: 1},
		Date:              day("2026-01-29"),
	})
	if !errors.Is(err, ErrInvalidTypeConversion) {
		t.Fatalf("expected InvalidTypeConversion, got %v", err)
	}
	var conv *InvalidTypeConversionError
	if !errors.As(err, &conv) || conv.FromCategory != CategoryRice || conv.ToCategory != CategoryBran {
		t.Fatalf("err=%+v", err)
	}
	if rec.rejects["invalid_type_conversion"] != 1 {
		t.Fatalf("rejects=%v", rec.rejects)
	}
}

func TestCheckPaltiConversionFamilies(t *testing.T) {
	e := NewEngine(NewMemoryStore())
	allowed := [][2]string{
		{"Rice", "Sella"},
		{"RJ Rice", "unpolish"},
		{"Broken", "Sizer Broken"},
		{"0 broken", "RJ Broken"},
		{"Bran", "rice bran"},
		{"Faram", "Faram"},
	}
	for _, p := range allowed {
		if err := e.CheckPaltiConversion(p[0], p[1]); err != nil {
			t.Fatalf("%s -> %s: %v", p[0], p[1], err)
		}
	}
	denied := [][2]string{
		{"Rice", "Bran"},
		{"Broken", "Rice"},
		{"Bran", "Faram"},
	}
	for _, p := range denied {
		if err := e.CheckPaltiConversion(p[0], p[1]); !errors.Is(err, ErrInvalidTypeConversion) {
			t.Fatalf("%s -> %s should be rejected, got %v", p[0], p[1], err)
		}
	}
}

func TestValidatePaltiRejectsNonPositiveRequest(t *testing.T) {
	_, err := NewEngine(newTestStore()).ValidatePaltiSufficiency(context.Background(), PaltiRequest{
		Source: textBucket("O2", steam, "Rice", pkgMiGreen30),
		Date:   day("2026-01-29"),
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
