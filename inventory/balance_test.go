package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

const steam = "SUM25 RNR STEAM"

type countingRecorder struct {
	mu        sync.Mutex
	negatives []string
	rejects   map[string]int
	observed  int
}

func (r *countingRecorder) ObserveBalance(CalculationMethod, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observed++
}

func (r *countingRecorder) NegativeAggregate(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.negatives = append(r.negatives, key)
}

func (r *countingRecorder) ValidationRejected(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rejects == nil {
		r.rejects = map[string]int{}
	}
	r.rejects[reason]++
}

func TestGetBalanceSignConventions(t *testing.T) {
	store := newTestStore().Append(
		purchase(1, "2026-01-10", "O1", steam, pkgMiGreen30, 100, "30"),
		sale(2, "2026-01-12", "o-1", steam, pkgMiGreen30, 30, "9"),
	)
	e := NewEngine(store)
	bal, err := e.GetBalance(context.Background(), textBucket("O1", steam, "Rice", pkgMiGreen30), day("2026-01-12"))
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if bal.Bags != 70 || !bal.Quintals.Equal(qtl("21")) {
		t.Fatalf("expected 70 bags / 21 qtl, got %d / %s", bal.Bags, bal.Quintals)
	}
	if bal.GroupingKey != "O1|SUM25 RNR STEAM|Rice|MI GREEN|30" {
		t.Fatalf("grouping key=%q", bal.GroupingKey)
	}
	if bal.CalculationMethod != MethodVarietyString {
		t.Fatalf("method=%s", bal.CalculationMethod)
	}

	before, err := e.GetBalance(context.Background(), textBucket("O1", steam, "Rice", pkgMiGreen30), day("2026-01-11"))
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if before.Bags != 100 {
		t.Fatalf("sale dated after asOf must not count, got %d bags", before.Bags)
	}
}

func TestGetBalanceNeverNegative(t *testing.T) {
	store := newTestStore().Append(
		purchase(1, "2026-01-10", "O1", steam, pkgMiGreen30, 10, "3"),
		sale(2, "2026-01-11", "O1", steam, pkgMiGreen30, 25, "7.5"),
	)
	logger, hook := test.NewNullLogger()
	rec := &countingRecorder{}
	e := NewEngine(store, WithLogger(logger), WithRecorder(rec))

	bal, err := e.GetBalance(context.Background(), textBucket("O1", steam, "Rice", pkgMiGreen30), day("2026-01-11"))
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if bal.Bags != 0 || !bal.Quintals.IsZero() {
		t.Fatalf("expected clamp to zero, got %d / %s", bal.Bags, bal.Quintals)
	}
	last := hook.LastEntry()
	if last == nil || last.Level != logrus.WarnLevel {
		t.Fatalf("expected a warning before clamping, got %+v", last)
	}
	if last.Data["raw_bags"] != int64(-15) {
		t.Fatalf("raw_bags=%v", last.Data["raw_bags"])
	}
	if len(rec.negatives) != 1 || rec.negatives[0] != bal.GroupingKey {
		t.Fatalf("negatives=%v", rec.negatives)
	}
	if rec.observed != 1 {
		t.Fatalf("observed=%d", rec.observed)
	}
}

func TestGetBalanceIdempotent(t *testing.T) {
	store := newTestStore().Append(
		purchase(1, "2026-01-10", "O1", steam, pkgMiGreen30, 100, "30.25"),
		sale(2, "2026-01-11", "O1", steam, pkgMiGreen30, 3, "0.9"),
		purchase(3, "2026-01-11", "O1", "sum25-rnr-steam", pkgMiGreen30, 7, "2.1"),
	)
	e := NewEngine(store)
	b := textBucket("O1", steam, "Rice", pkgMiGreen30)
	first, err := e.GetBalance(context.Background(), b, day("2026-01-11"))
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	second, err := e.GetBalance(context.Background(), b, day("2026-01-11"))
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if first.Bags != second.Bags || first.Quintals.String() != second.Quintals.String() ||
		first.GroupingKey != second.GroupingKey || first.CalculationMethod != second.CalculationMethod {
		t.Fatalf("results differ: %+v vs %+v", first, second)
	}
	if first.Bags != 104 || first.Quintals.String() != "31.45" {
		t.Fatalf("unexpected balance %d / %s", first.Bags, first.Quintals)
	}
}

func TestGetBalanceRawNeverIncludesSteam(t *testing.T) {
	store := newTestStore().Append(
		purchase(1, "2026-01-10", "O1", "SUM25 RNR STEAM", pkgMiGreen30, 100, "30"),
		purchase(2, "2026-01-10", "O1", "SUM25 RNR RAW", pkgMiGreen30, 40, "12"),
		purchase(3, "2026-01-10", "O1", "SUM25 RNR", pkgMiGreen30, 5, "1.5"),
	)
	e := NewEngine(store)
	ctx := context.Background()
	raw, err := e.GetBalance(ctx, textBucket("O1", "sum25 rnr raw", "Rice", pkgMiGreen30), day("2026-01-10"))
	if err != nil {
		t.Fatalf("GetBalance raw: %v", err)
	}
	st, err := e.GetBalance(ctx, textBucket("O1", "SUM 25 R.N.R Steam", "Rice", pkgMiGreen30), day("2026-01-10"))
	if err != nil {
		t.Fatalf("GetBalance steam: %v", err)
	}
	if raw.Bags != 40 {
		t.Fatalf("raw bags=%d", raw.Bags)
	}
	if st.Bags != 100 {
		t.Fatalf("steam bags=%d", st.Bags)
	}
}

func TestGetBalanceIgnoresPendingAndRejected(t *testing.T) {
	pending := purchase(2, "2026-01-10", "O1", steam, pkgMiGreen30, 50, "15")
	pending.Status = StatusPending
	rejected := sale(3, "2026-01-10", "O1", steam, pkgMiGreen30, 80, "24")
	rejected.Status = StatusRejected
	store := newTestStore().Append(
		purchase(1, "2026-01-10", "O1", steam, pkgMiGreen30, 100, "30"),
		pending,
		rejected,
	)
	bal, err := NewEngine(store).GetBalance(context.Background(), textBucket("O1", steam, "Rice", pkgMiGreen30), day("2026-01-10"))
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if bal.Bags != 100 {
		t.Fatalf("bags=%d", bal.Bags)
	}
}

func TestGetBalanceOutturnAndTextRows(t *testing.T) {
	store := newTestStore().Append(
		Production{Id: 1, Date: day("2026-01-10"), Status: StatusApproved, Location: "O1", OutturnId: outturnSteam,
			ProductType: "rice", PackagingId: pkgMiGreen30, Bags: 50, Quintals: qtl("15")},
		purchase(2, "2026-01-10", "O1", steam, pkgMiGreen30, 100, "30"),
	)
	e := NewEngine(store)
	ctx := context.Background()

	byOutturn, err := e.GetBalance(ctx, Bucket{
		Location:    "O1",
		Variety:     VarietySelector{OutturnId: intPtr(outturnSteam)},
		ProductType: "Rice",
		Packaging:   PackagingQuery{Id: intPtr(pkgMiGreen30)},
	}, day("2026-01-10"))
	if err != nil {
		t.Fatalf("GetBalance outturn: %v", err)
	}
	if byOutturn.Bags != 50 || byOutturn.CalculationMethod != MethodOutturn {
		t.Fatalf("outturn balance=%d method=%s", byOutturn.Bags, byOutturn.CalculationMethod)
	}

	byText, err := e.GetBalance(ctx, textBucket("O1", steam, "Rice", pkgMiGreen30), day("2026-01-10"))
	if err != nil {
		t.Fatalf("GetBalance text: %v", err)
	}
	if byText.Bags != 150 {
		t.Fatalf("text balance should include outturn rows by canonical text, got %d", byText.Bags)
	}
}

func TestGetBalanceBrandOnlySumsAcrossSizes(t *testing.T) {
	store := newTestStore().Append(
		purchase(1, "2026-01-10", "O1", steam, pkgMiGreen30, 10, "3"),
		purchase(2, "2026-01-10", "O1", steam, pkgMiGreen50, 5, "2.5"),
		purchase(3, "2026-01-10", "O1", steam, pkgMiBlue30, 99, "29.7"),
	)
	bal, err := NewEngine(store).GetBalance(context.Background(), Bucket{
		Location:    "O1",
		Variety:     VarietySelector{Text: steam},
		ProductType: "Rice",
		Packaging:   PackagingQuery{Brand: "mi green"},
	}, day("2026-01-10"))
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if bal.Bags != 15 || !bal.Quintals.Equal(qtl("5.5")) {
		t.Fatalf("expected 15 bags / 5.5 qtl, got %d / %s", bal.Bags, bal.Quintals)
	}
	if bal.BagSizeKg != nil {
		t.Fatalf("brand-only balance should not pin a bag size")
	}
	if len(bal.BySize) != 2 || bal.BySize[0].Bags != 10 || bal.BySize[1].Bags != 5 {
		t.Fatalf("by size=%+v", bal.BySize)
	}
}

func TestGetBalanceMissingDimensions(t *testing.T) {
	_, err := NewEngine(newTestStore()).GetBalance(context.Background(), Bucket{}, day("2026-01-10"))
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	var verr *ValidationError
	if !errors.As(err, &verr) || len(verr.Missing) != 5 {
		t.Fatalf("expected all five dimensions reported, got %v", err)
	}
}

func TestGetBalanceUnknownPackaging(t *testing.T) {
	_, err := NewEngine(newTestStore()).GetBalance(context.Background(), textBucket("O1", steam, "Rice", 404), day("2026-01-10"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestDirectLoadCountsOnlySameDay(t *testing.T) {
	store := newTestStore().Append(
		purchase(1, "2026-01-10", "DL1", steam, pkgMiGreen30, 50, "15"),
		purchase(2, "2026-01-11", "dl-1", steam, pkgMiGreen30, 20, "6"),
	)
	e := NewEngine(store)
	ctx := context.Background()
	b := textBucket("DL 1", steam, "Rice", pkgMiGreen30)

	onDay, err := e.GetBalance(ctx, b, day("2026-01-10"))
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if onDay.Bags != 50 || !onDay.IsDirectLoad {
		t.Fatalf("jan 10: bags=%d direct=%v", onDay.Bags, onDay.IsDirectLoad)
	}
	next, err := e.GetBalance(ctx, b, day("2026-01-11"))
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if next.Bags != 20 {
		t.Fatalf("jan 11 should only count jan 11 movements, got %d", next.Bags)
	}
	later, err := e.GetBalance(ctx, b, day("2026-01-12"))
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if later.Bags != 0 {
		t.Fatalf("direct-load stock carried forward: %d", later.Bags)
	}
}

func TestOpeningBalancesExcludeDirectLoadAndSameDay(t *testing.T) {
	store := newTestStore().Append(
		purchase(1, "2026-01-10", "O1", steam, pkgMiGreen30, 100, "30"),
		Production{Id: 2, Date: day("2026-01-10"), Status: StatusApproved, Location: "O1", OutturnId: outturnSteam,
			ProductType: "Rice", PackagingId: pkgMiGreen30, Bags: 10, Quintals: qtl("3")},
		purchase(3, "2026-01-10", "DL-1", steam, pkgMiGreen30, 50, "15"),
		purchase(4, "2026-01-11", "O2", steam, pkgMiGreen30, 5, "1.5"),
		purchase(5, "2026-01-09", "O2", steam, pkgMiBlue30, 8, "2.4"),
		sale(6, "2026-01-10", "O2", steam, pkgMiBlue30, 8, "2.4"),
	)
	e := NewEngine(store)
	for _, asOf := range []string{"2026-01-10", "2026-01-11", "2026-01-12"} {
		got, err := e.GetOpeningBalances(context.Background(), day(asOf))
		if err != nil {
			t.Fatalf("GetOpeningBalances(%s): %v", asOf, err)
		}
		for k, ob := range got {
			if NormalizeLocationCode(ob.Location) == "DL1" {
				t.Fatalf("%s: direct-load bucket %s in opening balances", asOf, k)
			}
			if ob.Bags == 0 && ob.Quintals.IsZero() {
				t.Fatalf("%s: zero bucket %s emitted", asOf, k)
			}
		}
	}

	got, err := e.GetOpeningBalances(context.Background(), day("2026-01-11"))
	if err != nil {
		t.Fatalf("GetOpeningBalances: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one bucket, got %v", got)
	}
	ob, ok := got["O1|SUM25 RNR STEAM|Rice|MI GREEN|30"]
	if !ok {
		t.Fatalf("missing O1 bucket in %v", got)
	}
	if ob.Bags != 110 || ob.VarietySource != VarietySourceMixed {
		t.Fatalf("bags=%d source=%s", ob.Bags, ob.VarietySource)
	}

	first, err := e.GetOpeningBalances(context.Background(), day("2026-01-10"))
	if err != nil {
		t.Fatalf("GetOpeningBalances: %v", err)
	}
	if _, ok := first["O2|SUM25 RNR STEAM|Rice|MI BLUE|30"]; !ok || len(first) != 1 {
		t.Fatalf("opening on jan 10 should only hold the jan 9 purchase, got %v", first)
	}
}

func TestConservationUnderPalti(t *testing.T) {
	store := newTestStore().Append(
		purchase(1, "2026-01-10", "O1", steam, pkgMiGreen30, 100, "30"),
		Palti{
			Id: 2, Date: day("2026-01-15"), Status: StatusApproved,
			SourceLocation: "O1", TargetLocation: "O2",
			Variety: VarietyRef{Text: steam}, ProductType: "Rice",
			SourcePackagingId: pkgMiGreen30, TargetPackagingId: pkgMiBlue30,
			SourceBags: 50, Bags: 50, Quintals: qtl("15"),
			ShortageKg: qtl("60"), ShortageBags: 2,
		},
	)
	e := NewEngine(store)
	ctx := context.Background()
	src := textBucket("O1", steam, "Rice", pkgMiGreen30)
	dst := textBucket("O2", steam, "Rice", pkgMiBlue30)

	srcBefore, _ := e.GetBalance(ctx, src, day("2026-01-14"))
	srcAfter, err := e.GetBalance(ctx, src, day("2026-01-15"))
	if err != nil {
		t.Fatalf("GetBalance source: %v", err)
	}
	if srcBefore.Bags-srcAfter.Bags != 52 {
		t.Fatalf("source must lose sourceBags+shortageBags, lost %d", srcBefore.Bags-srcAfter.Bags)
	}
	if !srcBefore.Quintals.Sub(srcAfter.Quintals).Equal(qtl("15.6")) {
		t.Fatalf("source must lose quintals+shortage, lost %s", srcBefore.Quintals.Sub(srcAfter.Quintals))
	}

	dstBefore, _ := e.GetBalance(ctx, dst, day("2026-01-14"))
	dstAfter, err := e.GetBalance(ctx, dst, day("2026-01-15"))
	if err != nil {
		t.Fatalf("GetBalance target: %v", err)
	}
	if dstAfter.Bags-dstBefore.Bags != 50 || !dstAfter.Quintals.Equal(qtl("15")) {
		t.Fatalf("target gained %d bags / %s qtl", dstAfter.Bags-dstBefore.Bags, dstAfter.Quintals)
	}
}

func TestGetBalanceUnknownLocation(t *testing.T) {
	e := NewEngine(newTestStore().Append(purchase(1, "2026-01-10", "O1", steam, pkgMiGreen30, 10, "3")))
	ctx := context.Background()

	_, err := e.GetBalance(ctx, textBucket("O9", steam, "Rice", pkgMiGreen30), day("2026-01-10"))
	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.Resource != "location" || nf.Key != "O9" {
		t.Fatalf("expected location NotFound, got %v", err)
	}

	if _, err := e.ValidateSaleAfterPalti(ctx, textBucket("O9", steam, "Rice", pkgMiGreen30), 5, day("2026-01-10")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("sale validation on unknown location: %v", err)
	}
}
