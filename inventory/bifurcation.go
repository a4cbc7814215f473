package inventory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type BreakdownQuery struct {
	// Variety left empty means every variety.
	Variety     VarietySelector `json:"variety"`
	ProductType string          `json:"product_type" form:"product_type"`
	AsOf        time.Time       `json:"as_of"`
}

type BreakdownRow struct {
	Location         string          `json:"location"`
	CanonicalVariety string          `json:"canonical_variety"`
	ProductType      string          `json:"product_type"`
	PackagingBrand   string          `json:"packaging_brand"`
	BagSizeKg        decimal.Decimal `json:"bag_size_kg"`
	Bags             int64           `json:"bags"`
	Quintals         decimal.Decimal `json:"quintals"`
	IsDirectLoad     bool            `json:"is_direct_load"`
	GroupingKey      string          `json:"grouping_key"`
}

type BreakdownTotals struct {
	TotalBags           int64           `json:"total_bags"`
	TotalQtls           decimal.Decimal `json:"total_qtls"`
	UniqueLocations     int             `json:"unique_locations"`
	DirectLoadLocations int             `json:"direct_load_locations"`
	RegularLocations    int             `json:"regular_locations"`
}

type Breakdown struct {
	AsOf              time.Time         `json:"as_of"`
	Variety           string            `json:"variety,omitempty"`
	ProductType       string            `json:"product_type,omitempty"`
	CalculationMethod CalculationMethod `json:"calculation_method,omitempty"`
	Rows              []BreakdownRow    `json:"rows"`
	Totals            BreakdownTotals   `json:"totals"`
}

type breakdownFilter struct {
	predicate   VarietyPredicate
	productType string
}

func (e *Engine) breakdownFilter(ctx context.Context, q BreakdownQuery) (*breakdownFilter, error) {
	f := &breakdownFilter{}
	if !q.Variety.IsEmpty() {
		pred, err := e.BuildVarietyPredicate(ctx, q.Variety, MatchExact)
		if err != nil {
			return nil, err
		}
		f.predicate = pred
	}
	if strings.TrimSpace(q.ProductType) != "" {
		f.productType = e.catalog.ProductType(q.ProductType)
	}
	return f, nil
}

func (f *breakdownFilter) keeps(c *Catalog, leg Leg, canonical string) bool {
	if f.predicate != nil && !f.predicate.Matches(leg.Variety, canonical) {
		return false
	}
	return f.productType == "" || c.ProductType(leg.ProductType) == f.productType
}

// GetBifurcation breaks a variety's stock (or all stock) down by bucket as of q.AsOf.
// Rows carry positive stock only and are ordered by location, then bags descending.
func (e *Engine) GetBifurcation(ctx context.Context, q BreakdownQuery) (*Breakdown, error) {
	filter, err := e.breakdownFilter(ctx, q)
	if err != nil {
		return nil, err
	}
	entries, err := e.approvedEntries(ctx, EntryFilter{Through: q.AsOf})
	if err != nil {
		return nil, err
	}
	view := e.newView()
	aggs, keys, err := view.aggregate(ctx, entries, func(f legFacts) bool {
		return asOfRule(q.AsOf, f.direct)(f.entry.EntryDate()) && filter.keeps(e.catalog, f.leg, f.canonical)
	})
	if err != nil {
		return nil, err
	}

	out := &Breakdown{
		AsOf:        DateOnly(q.AsOf),
		ProductType: filter.productType,
		Rows:        make([]BreakdownRow, 0, len(keys)),
	}
	if filter.predicate != nil {
		out.Variety = filter.predicate.Label()
		out.CalculationMethod = filter.predicate.Method()
	}
	for _, k := range keys {
		agg := aggs[k]
		qty := e.clamp(k, agg.raw)
		if qty.Bags <= 0 && !qty.Quintals.IsPositive() {
			continue
		}
		out.Rows = append(out.Rows, BreakdownRow{
			Location:         agg.key.Location,
			CanonicalVariety: agg.key.Variety,
			ProductType:      agg.key.ProductType,
			PackagingBrand:   agg.key.PackagingBrand,
			BagSizeKg:        agg.key.BagSizeKg,
			Bags:             qty.Bags,
			Quintals:         qty.Quintals,
			IsDirectLoad:     agg.isDirectLoad,
			GroupingKey:      k,
		})
	}
	SortBreakdownRows(out.Rows)
	out.Totals = TotalsOf(out.Rows)
	return out, nil
}

// SortBreakdownRows orders by location ascending, bags descending, then grouping key.
func SortBreakdownRows(rows []BreakdownRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Location != rows[j].Location {
			return rows[i].Location < rows[j].Location
		}
		if rows[i].Bags != rows[j].Bags {
			return rows[i].Bags > rows[j].Bags
		}
		return rows[i].GroupingKey < rows[j].GroupingKey
	})
}

// TotalsOf counts direct-load and regular rows so the two always add up to len(rows).
func TotalsOf(rows []BreakdownRow) BreakdownTotals {
	t := BreakdownTotals{TotalQtls: decimal.Zero}
	locations := make(map[string]struct{})
	for _, r := range rows {
		t.TotalBags += r.Bags
		t.TotalQtls = t.TotalQtls.Add(r.Quintals)
		locations[r.Location] = struct{}{}
		if r.IsDirectLoad {
			t.DirectLoadLocations++
		} else {
			t.RegularLocations++
		}
	}
	t.UniqueLocations = len(locations)
	return t
}

type PaltiConversion struct {
	TargetVariety        string          `json:"target_variety"`
	TargetLocation       string          `json:"target_location"`
	TargetProductType    string          `json:"target_product_type"`
	TargetPackagingBrand string          `json:"target_packaging_brand"`
	TargetBagSizeKg      decimal.Decimal `json:"target_bag_size_kg"`
	Bags                 int64           `json:"bags"`
	Quintals             decimal.Decimal `json:"quintals"`
	SourceBags           int64           `json:"source_bags"`
	ShortageKg           decimal.Decimal `json:"shortage_kg"`
	ShortageBags         int64           `json:"shortage_bags"`
	ConversionCount      int             `json:"conversion_count"`
	LastConversionDate   time.Time       `json:"last_conversion_date"`
}

type PaltiSource struct {
	BucketKey
	GroupingKey string            `json:"grouping_key"`
	Remaining   Quantity          `json:"remaining"`
	Conversions []PaltiConversion `json:"conversions"`
	selector    VarietySelector
	packagingId int
}

type HierarchicalBreakdown struct {
	Breakdown
	Sources []PaltiSource `json:"sources"`
}

// GetHierarchicalBifurcation adds, under every bucket that has been a palti source, the
// conversions out of it and the source's remaining stock.
func (e *Engine) GetHierarchicalBifurcation(ctx context.Context, q BreakdownQuery) (*HierarchicalBreakdown, error) {
	flat, err := e.GetBifurcation(ctx, q)
	if err != nil {
		return nil, err
	}
	filter, err := e.breakdownFilter(ctx, q)
	if err != nil {
		return nil, err
	}
	entries, err := e.approvedEntries(ctx, EntryFilter{Through: q.AsOf, Types: []MovementType{MovementTypePalti}})
	if err != nil {
		return nil, err
	}

	day := DateOnly(q.AsOf)
	view := e.newView()
	sources := make(map[string]*PaltiSource)
	conversions := make(map[string]map[string]*PaltiConversion)
	for _, entry := range entries {
		p, ok := entry.(Palti)
		if !ok || DateOnly(p.Date).After(day) {
			continue
		}
		src, err := view.facts(ctx, entry, p.SourceLeg())
		if err != nil {
			return nil, err
		}
		if !filter.keeps(e.catalog, src.leg, src.canonical) {
			continue
		}
		dst, err := view.facts(ctx, entry, p.TargetLeg())
		if err != nil {
			return nil, err
		}
		srcKey := BucketKey{
			Location:       src.location,
			Variety:        src.canonical,
			ProductType:    e.catalog.ProductType(src.leg.ProductType),
			PackagingBrand: src.packaging.BrandName,
			BagSizeKg:      src.packaging.KgPerBag,
		}
		sk := srcKey.GroupingKey()
		node, ok := sources[sk]
		if !ok {
			node = &PaltiSource{
				BucketKey:   srcKey,
				GroupingKey: sk,
				selector:    VarietySelector{Text: src.canonical},
				packagingId: src.leg.PackagingId,
			}
			sources[sk] = node
			conversions[sk] = make(map[string]*PaltiConversion)
		}
		dstKey := BucketKey{
			Location:       dst.location,
			Variety:        dst.canonical,
			ProductType:    e.catalog.ProductType(dst.leg.ProductType),
			PackagingBrand: dst.packaging.BrandName,
			BagSizeKg:      dst.packaging.KgPerBag,
		}
		conv, ok := conversions[sk][dstKey.GroupingKey()]
		if !ok {
			conv = &PaltiConversion{
				TargetVariety:        dstKey.Variety,
				TargetLocation:       dstKey.Location,
				TargetProductType:    dstKey.ProductType,
				TargetPackagingBrand: dstKey.PackagingBrand,
				TargetBagSizeKg:      dstKey.BagSizeKg,
			}
			conversions[sk][dstKey.GroupingKey()] = conv
		}
		conv.Bags += p.Bags
		conv.Quintals = conv.Quintals.Add(p.Quintals)
		conv.SourceBags += p.SourceBags
		conv.ShortageKg = conv.ShortageKg.Add(p.ShortageKg)
		conv.ShortageBags += p.ShortageBags
		conv.ConversionCount++
		if d := DateOnly(p.Date); d.After(conv.LastConversionDate) {
			conv.LastConversionDate = d
		}
	}

	out := &HierarchicalBreakdown{Breakdown: *flat, Sources: make([]PaltiSource, 0, len(sources))}
	keys := make([]string, 0, len(sources))
	for k := range sources {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		node := sources[k]
		for _, c := range conversions[k] {
			node.Conversions = append(node.Conversions, *c)
		}
		sort.Slice(node.Conversions, func(i, j int) bool {
			a, b := node.Conversions[i], node.Conversions[j]
			if a.TargetLocation != b.TargetLocation {
				return a.TargetLocation < b.TargetLocation
			}
			if a.TargetVariety != b.TargetVariety {
				return a.TargetVariety < b.TargetVariety
			}
			return a.TargetPackagingBrand+a.TargetBagSizeKg.String() < b.TargetPackagingBrand+b.TargetBagSizeKg.String()
		})
		if _, known, err := e.locations.Lookup(ctx, node.Location); err != nil {
			return nil, err
		} else if !known {
			// Legacy rows at a location since removed from the directory.
			node.Remaining = flatRemaining(flat, k)
		} else if node.packagingId > 0 && !node.selector.IsEmpty() {
			pid := node.packagingId
			bal, err := e.balance(ctx, Bucket{
				Location:    node.Location,
				Variety:     node.selector,
				ProductType: node.ProductType,
				Packaging:   PackagingQuery{Id: &pid},
			}, q.AsOf, MatchExact)
			if err != nil {
				return nil, err
			}
			node.Remaining = bal.Quantity()
		}
		out.Sources = append(out.Sources, *node)
	}
	return out, nil
}

func flatRemaining(flat *Breakdown, groupingKey string) Quantity {
	for _, row := range flat.Rows {
		if row.GroupingKey == groupingKey {
			return Quantity{Bags: row.Bags, Quintals: row.Quintals}
		}
	}
	return Quantity{}
}
