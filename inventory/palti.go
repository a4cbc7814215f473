package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const maxSuggestions = 3

type PaltiRequest struct {
	Source            Bucket    `json:"source"`
	TargetProductType string    `json:"target_product_type"`
	Requested         Quantity  `json:"requested"`
	Date              time.Time `json:"date"`
}

type SufficiencyResult struct {
	IsValid           bool              `json:"is_valid"`
	GroupingKey       string            `json:"grouping_key"`
	Available         Quantity          `json:"available"`
	Requested         Quantity          `json:"requested"`
	Shortfall         Quantity          `json:"shortfall"`
	Suggestions       []string          `json:"suggestions"`
	CalculationMethod CalculationMethod `json:"calculation_method"`
}

// Err is nil when the request fits, otherwise an *InsufficientStockError with the same numbers.
func (r *SufficiencyResult) Err() error {
	if r == nil || r.IsValid {
		return nil
	}
	return &InsufficientStockError{
		GroupingKey: r.GroupingKey,
		Available:   r.Available,
		Requested:   r.Requested,
		Shortfall:   r.Shortfall,
		Suggestions: r.Suggestions,
	}
}

// CheckPaltiConversion enforces that a palti stays within one product category.
func (e *Engine) CheckPaltiConversion(sourceProductType, targetProductType string) error {
	if targetProductType == "" {
		return nil
	}
	from, to := e.catalog.Category(sourceProductType), e.catalog.Category(targetProductType)
	if from != to {
		e.recorder.ValidationRejected("invalid_type_conversion")
		return &InvalidTypeConversionError{
			From:         e.catalog.ProductType(sourceProductType),
			To:           e.catalog.ProductType(targetProductType),
			FromCategory: from,
			ToCategory:   to,
		}
	}
	return nil
}

// ValidatePaltiSufficiency checks the source bucket holds the requested amount (converted
// bags plus shortage) as of the palti date. A category mismatch fails before any stock is read.
func (e *Engine) ValidatePaltiSufficiency(ctx context.Context, req PaltiRequest) (*SufficiencyResult, error) {
	if err := ValidateDimensionsPresent(req.Source); err != nil {
		return nil, err
	}
	if req.Requested.Bags < 0 || req.Requested.Quintals.IsNegative() || req.Requested.IsZero() {
		return nil, &ValidationError{Reason: "requested quantity must be positive"}
	}
	if err := e.CheckPaltiConversion(req.Source.ProductType, req.TargetProductType); err != nil {
		return nil, err
	}
	bal, err := e.GetBalance(ctx, req.Source, req.Date)
	if err != nil {
		return nil, err
	}
	available := bal.Quantity()
	res := &SufficiencyResult{
		GroupingKey:       bal.GroupingKey,
		Available:         available,
		Requested:         req.Requested,
		Shortfall:         shortfallOf(req.Requested, available),
		CalculationMethod: bal.CalculationMethod,
		Suggestions:       []string{},
	}
	res.IsValid = res.Shortfall.IsZero()
	if !res.IsValid {
		e.recorder.ValidationRejected("insufficient_stock")
		res.Suggestions, err = e.suggest(ctx, req.Source, bal.Location, bal.GroupingKey, available, req.Requested, req.Date)
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

type SaleAfterPaltiResult struct {
	IsValid         bool     `json:"is_valid"`
	GroupingKey     string   `json:"grouping_key"`
	OpeningStock    Quantity `json:"opening_stock"`
	PaltiDeductions Quantity `json:"palti_deductions"`
	RemainingStock  Quantity `json:"remaining_stock"`
	RequestedBags   int64    `json:"requested_bags"`
	Shortfall       int64    `json:"shortfall"`
	Suggestions     []string `json:"suggestions"`
}

func (r *SaleAfterPaltiResult) Err() error {
	if r == nil || r.IsValid {
		return nil
	}
	return &InsufficientStockError{
		GroupingKey: r.GroupingKey,
		Available:   r.RemainingStock,
		Requested:   Quantity{Bags: r.RequestedBags},
		Shortfall:   Quantity{Bags: r.Shortfall},
		Suggestions: r.Suggestions,
	}
}

// ValidateSaleAfterPalti validates a sale against opening stock (strictly before the sale day)
// minus every palti drawn from the same bucket on the sale day, pending ones included.
// Same-day palti is treated as having happened before the sale.
func (e *Engine) ValidateSaleAfterPalti(ctx context.Context, b Bucket, requestedBags int64, saleDate time.Time) (*SaleAfterPaltiResult, error) {
	if err := ValidateDimensionsPresent(b); err != nil {
		return nil, err
	}
	if requestedBags <= 0 {
		return nil, &ValidationError{Reason: "requested bags must be positive"}
	}
	rb, err := e.resolveBucket(ctx, b, MatchFuzzy)
	if err != nil {
		return nil, err
	}
	opening, err := e.openingStock(ctx, rb, saleDate)
	if err != nil {
		return nil, err
	}
	deductions, err := e.sameDayPaltiDeductions(ctx, rb, saleDate)
	if err != nil {
		return nil, err
	}

	remaining := Quantity{
		Bags:     opening.Bags - deductions.Bags,
		Quintals: opening.Quintals.Sub(deductions.Quintals),
	}
	if remaining.Bags < 0 {
		remaining.Bags = 0
	}
	if remaining.Quintals.IsNegative() {
		remaining.Quintals = decimal.Zero
	}

	gk := rb.key().GroupingKey()
	res := &SaleAfterPaltiResult{
		GroupingKey:     gk,
		OpeningStock:    opening,
		PaltiDeductions: deductions,
		RemainingStock:  remaining,
		RequestedBags:   requestedBags,
		Suggestions:     []string{},
	}
	if requestedBags > remaining.Bags {
		res.Shortfall = requestedBags - remaining.Bags
	}
	res.IsValid = res.Shortfall == 0
	if !res.IsValid {
		e.recorder.ValidationRejected("sale_after_palti")
		res.Suggestions, err = e.suggest(ctx, b, rb.location, gk, remaining, Quantity{Bags: requestedBags}, saleDate)
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

// SameDayPaltiDeductions is what palti on day has drawn from bucket b.
// Pending palti counts too, as a reservation against the source.
func (e *Engine) SameDayPaltiDeductions(ctx context.Context, b Bucket, day time.Time) (Quantity, error) {
	if err := ValidateDimensionsPresent(b); err != nil {
		return Quantity{}, err
	}
	rb, err := e.resolveBucket(ctx, b, MatchFuzzy)
	if err != nil {
		return Quantity{}, err
	}
	return e.sameDayPaltiDeductions(ctx, rb, day)
}

func (e *Engine) sameDayPaltiDeductions(ctx context.Context, rb *resolvedBucket, day time.Time) (Quantity, error) {
	entries, err := e.approvedEntries(ctx, EntryFilter{
		Through:  day,
		Statuses: []ApprovalStatus{StatusApproved, StatusPending},
		Location: rb.location,
		Types:    []MovementType{MovementTypePalti},
	})
	if err != nil {
		return Quantity{}, err
	}
	view := e.newView()
	var total Quantity
	for _, entry := range entries {
		p, ok := entry.(Palti)
		if !ok || !sameDay(p.Date, day) {
			continue
		}
		f, err := view.facts(ctx, entry, p.SourceLeg())
		if err != nil {
			return Quantity{}, err
		}
		if !rb.matches(e.catalog, f) {
			continue
		}
		total.Bags -= f.leg.Bags
		total.Quintals = total.Quintals.Sub(f.leg.Quintals)
	}
	return total, nil
}

// suggest lists concrete alternatives: a smaller quantity, and other buckets of the same
// variety and product type holding enough stock.
func (e *Engine) suggest(ctx context.Context, b Bucket, location, groupingKey string, available, requested Quantity, asOf time.Time) ([]string, error) {
	out := []string{}
	if available.Bags > 0 && requested.Bags > available.Bags {
		out = append(out, fmt.Sprintf("reduce quantity to %d bags or less", available.Bags))
	}
	if available.Quintals.IsPositive() && requested.Quintals.GreaterThan(available.Quintals) {
		out = append(out, fmt.Sprintf("reduce quantity to %s quintals or less", available.Quintals.String()))
	}

	breakdown, err := e.GetBifurcation(ctx, BreakdownQuery{Variety: b.Variety, ProductType: b.ProductType, AsOf: asOf})
	if err != nil {
		return nil, err
	}
	for _, row := range breakdown.Rows {
		if len(out) >= maxSuggestions {
			break
		}
		if row.GroupingKey == groupingKey || row.Bags < requested.Bags {
			continue
		}
		where := "at " + row.Location
		if NormalizeLocationCode(row.Location) == NormalizeLocationCode(location) {
			where = "at this location"
		}
		out = append(out, fmt.Sprintf("%d bags of %s %s kg available %s", row.Bags, row.PackagingBrand, row.BagSizeKg.String(), where))
	}
	if len(out) == 0 && available.IsZero() {
		out = append(out, "no stock in this bucket; choose another location or packaging")
	}
	return out, nil
}
