package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Bucket identifies one stock bucket as a caller describes it.
type Bucket struct {
	Location    string          `json:"location" form:"location"`
	Variety     VarietySelector `json:"variety"`
	ProductType string          `json:"product_type" form:"product_type"`
	Packaging   PackagingQuery  `json:"packaging"`
}

// BucketKey is the resolved five-dimension key stock is grouped by.
type BucketKey struct {
	Location       string          `json:"location"`
	Variety        string          `json:"variety"`
	ProductType    string          `json:"product_type"`
	PackagingBrand string          `json:"packaging_brand"`
	BagSizeKg      decimal.Decimal `json:"bag_size_kg"`
}

// GroupingKey is location|variety|productType|packagingBrand|bagSizeKg.
func (k BucketKey) GroupingKey() string {
	return strings.Join([]string{k.Location, k.Variety, k.ProductType, k.PackagingBrand, k.BagSizeKg.String()}, "|")
}

// ValidateDimensionsPresent fails fast, listing every missing dimension, instead of defaulting.
func ValidateDimensionsPresent(b Bucket) error {
	var missing []string
	if strings.TrimSpace(b.Location) == "" {
		missing = append(missing, "location")
	}
	if b.Variety.IsEmpty() {
		missing = append(missing, "variety")
	}
	if strings.TrimSpace(b.ProductType) == "" {
		missing = append(missing, "product_type")
	}
	if b.Packaging.Id == nil || *b.Packaging.Id <= 0 {
		if strings.TrimSpace(b.Packaging.Brand) == "" {
			missing = append(missing, "packaging_brand")
		}
		if b.Packaging.KgPerBag == nil || !b.Packaging.KgPerBag.IsPositive() {
			missing = append(missing, "bag_size_kg")
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	return nil
}

// validateBalanceDimensions is ValidateDimensionsPresent minus bag size, which a balance
// query may leave open to sum across every size of a brand.
func validateBalanceDimensions(b Bucket) error {
	err := ValidateDimensionsPresent(b)
	if err == nil {
		return nil
	}
	verr := err.(*ValidationError)
	var missing []string
	for _, m := range verr.Missing {
		if m == "bag_size_kg" && strings.TrimSpace(b.Packaging.Brand) != "" {
			continue
		}
		missing = append(missing, m)
	}
	if len(missing) == 0 {
		return nil
	}
	return &ValidationError{Missing: missing}
}

type SizeBalance struct {
	BagSizeKg decimal.Decimal `json:"bag_size_kg"`
	Bags      int64           `json:"bags"`
	Quintals  decimal.Decimal `json:"quintals"`
}

type Balance struct {
	GroupingKey       string            `json:"grouping_key"`
	Location          string            `json:"location"`
	Variety           string            `json:"variety"`
	ProductType       string            `json:"product_type"`
	PackagingBrand    string            `json:"packaging_brand"`
	BagSizeKg         *decimal.Decimal  `json:"bag_size_kg,omitempty"`
	Bags              int64             `json:"bags"`
	Quintals          decimal.Decimal   `json:"quintals"`
	CalculationMethod CalculationMethod `json:"calculation_method"`
	IsDirectLoad      bool              `json:"is_direct_load"`
	AsOf              time.Time         `json:"as_of"`
	// BySize is filled when the packaging was resolved by brand only.
	BySize []SizeBalance `json:"by_size,omitempty"`
}

func (b *Balance) Quantity() Quantity {
	return Quantity{Bags: b.Bags, Quintals: b.Quintals}
}

type OpeningBalance struct {
	BucketKey
	Bags          int64           `json:"bags"`
	Quintals      decimal.Decimal `json:"quintals"`
	VarietySource string          `json:"variety_source"`
}

const (
	VarietySourceOutturn = "outturn"
	VarietySourceString  = "variety-string"
	VarietySourceMixed   = "mixed"
)

// resolvedBucket is a Bucket after every dimension has been looked up.
type resolvedBucket struct {
	location     string
	normLocation string
	isDirectLoad bool
	predicate    VarietyPredicate
	productType  string
	packaging    *PackagingMatch
}

func (r *resolvedBucket) key() BucketKey {
	k := BucketKey{
		Location:       r.location,
		Variety:        r.predicate.Label(),
		ProductType:    r.productType,
		PackagingBrand: r.packaging.Brand,
	}
	if r.packaging.SizeConstrained {
		k.BagSizeKg = r.packaging.KgPerBag
	}
	return k
}

func (e *Engine) resolveBucket(ctx context.Context, b Bucket, mode MatchMode) (*resolvedBucket, error) {
	loc, ok, err := e.locations.Lookup(ctx, b.Location)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &NotFoundError{Resource: "location", Key: b.Location}
	}
	pred, err := e.BuildVarietyPredicate(ctx, b.Variety, mode)
	if err != nil {
		return nil, err
	}
	pack, err := e.packaging.Resolve(ctx, b.Packaging)
	if err != nil {
		return nil, err
	}
	return &resolvedBucket{
		location:     loc.Code,
		normLocation: NormalizeLocationCode(loc.Code),
		isDirectLoad: loc.IsDirectLoad,
		predicate:    pred,
		productType:  e.catalog.ProductType(b.ProductType),
		packaging:    pack,
	}, nil
}

// ledgerView carries per-computation lookup caches.
type ledgerView struct {
	e        *Engine
	packs    *packagingCache
	outturns map[int]string
}

func (e *Engine) newView() *ledgerView {
	return &ledgerView{e: e, packs: newPackagingCache(e.store), outturns: make(map[int]string)}
}

// canonicalVariety is the outturn's canonical text for outturn rows, else the normalized text.
func (v *ledgerView) canonicalVariety(ctx context.Context, ref VarietyRef) (string, error) {
	if !ref.IsOutturn() {
		return NormalizeText(ref.Text), nil
	}
	id := *ref.OutturnId
	if text, ok := v.outturns[id]; ok {
		return text, nil
	}
	o, err := v.e.store.OutturnById(ctx, id)
	if err != nil {
		err = wrapStoreError("outturn lookup", err)
		if !isNotFound(err) {
			return "", err
		}
		// Dangling reference: fall back to whatever text the row carries.
		text := NormalizeText(ref.Text)
		if text == "" {
			text = fmt.Sprintf("OUTTURN #%d", id)
		}
		v.outturns[id] = text
		return text, nil
	}
	v.outturns[id] = o.CanonicalText()
	return v.outturns[id], nil
}

type legFacts struct {
	entry     Entry
	leg       Leg
	location  string
	direct    bool
	canonical string
	packaging Packaging
}

type bucketAgg struct {
	key          BucketKey
	isDirectLoad bool
	raw          Quantity
	outturnLegs  int
	textLegs     int
}

func (a *bucketAgg) add(f legFacts) {
	a.raw.Bags += f.leg.Bags
	a.raw.Quintals = a.raw.Quintals.Add(f.leg.Quintals)
	if f.leg.Variety.IsOutturn() {
		a.outturnLegs++
	} else {
		a.textLegs++
	}
}

func (a *bucketAgg) varietySource() string {
	switch {
	case a.outturnLegs > 0 && a.textLegs > 0:
		return VarietySourceMixed
	case a.outturnLegs > 0:
		return VarietySourceOutturn
	default:
		return VarietySourceString
	}
}

// aggregate groups every kept leg by its bucket key. Keys are returned sorted.
func (v *ledgerView) aggregate(ctx context.Context, entries []Entry, keep func(legFacts) bool) (map[string]*bucketAgg, []string, error) {
	aggs := make(map[string]*bucketAgg)
	for _, entry := range entries {
		for _, leg := range entry.Legs() {
			f, err := v.facts(ctx, entry, leg)
			if err != nil {
				return nil, nil, err
			}
			if !keep(f) {
				continue
			}
			k := BucketKey{
				Location:       f.location,
				Variety:        f.canonical,
				ProductType:    v.e.catalog.ProductType(leg.ProductType),
				PackagingBrand: f.packaging.BrandName,
				BagSizeKg:      f.packaging.KgPerBag,
			}
			gk := k.GroupingKey()
			agg, ok := aggs[gk]
			if !ok {
				agg = &bucketAgg{key: k, isDirectLoad: f.direct}
				aggs[gk] = agg
			}
			agg.add(f)
		}
	}
	keys := make([]string, 0, len(aggs))
	for k := range aggs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return aggs, keys, nil
}

func (v *ledgerView) facts(ctx context.Context, entry Entry, leg Leg) (legFacts, error) {
	location, err := v.e.locations.Canonical(ctx, leg.Location)
	if err != nil {
		return legFacts{}, err
	}
	direct, err := v.e.locations.IsDirectLoad(ctx, leg.Location)
	if err != nil {
		return legFacts{}, err
	}
	canonical, err := v.canonicalVariety(ctx, leg.Variety)
	if err != nil {
		return legFacts{}, err
	}
	pack, err := v.packs.get(ctx, leg.PackagingId)
	if err != nil {
		return legFacts{}, err
	}
	return legFacts{
		entry:     entry,
		leg:       leg,
		location:  location,
		direct:    direct,
		canonical: canonical,
		packaging: pack,
	}, nil
}

func (r *resolvedBucket) matches(c *Catalog, f legFacts) bool {
	return NormalizeLocationCode(f.location) == r.normLocation &&
		c.ProductType(f.leg.ProductType) == r.productType &&
		r.predicate.Matches(f.leg.Variety, f.canonical) &&
		r.packaging.Matches(f.packaging)
}

// asOfRule is date <= asOf, or date == asOf for direct-load locations.
func asOfRule(asOf time.Time, direct bool) func(time.Time) bool {
	day := DateOnly(asOf)
	if direct {
		return func(d time.Time) bool { return DateOnly(d).Equal(day) }
	}
	return func(d time.Time) bool { return !DateOnly(d).After(day) }
}

func (e *Engine) approvedEntries(ctx context.Context, filter EntryFilter) ([]Entry, error) {
	if len(filter.Statuses) == 0 {
		filter.Statuses = []ApprovalStatus{StatusApproved}
	}
	entries, err := e.store.Entries(ctx, filter)
	if err != nil {
		return nil, wrapStoreError("ledger read", err)
	}
	out := entries[:0:0]
	for _, en := range entries {
		if hasStatus(filter.Statuses, en.EntryStatus()) {
			out = append(out, en)
		}
	}
	// Store order is not trusted; sum in a fixed order so results are reproducible.
	sort.SliceStable(out, func(i, j int) bool {
		di, dj := DateOnly(out[i].EntryDate()), DateOnly(out[j].EntryDate())
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		if out[i].EntryType() != out[j].EntryType() {
			return out[i].EntryType() < out[j].EntryType()
		}
		return out[i].EntryId() < out[j].EntryId()
	})
	return out, nil
}

// clamp floors raw at zero per dimension, logging and counting any negative aggregate first.
func (e *Engine) clamp(groupingKey string, raw Quantity) Quantity {
	if raw.Bags >= 0 && !raw.Quintals.IsNegative() {
		return raw
	}
	e.logger.WithFields(logrus.Fields{
		"module":       "inventory",
		"grouping_key": groupingKey,
		"raw_bags":     raw.Bags,
		"raw_quintals": raw.Quintals.String(),
	}).Warn("negative stock aggregate clamped to zero")
	e.recorder.NegativeAggregate(groupingKey)
	out := raw
	if out.Bags < 0 {
		out.Bags = 0
	}
	if out.Quintals.IsNegative() {
		out.Quintals = decimal.Zero
	}
	return out
}

// GetBalance returns the stock of one bucket as of asOf using the forgiving variety match.
func (e *Engine) GetBalance(ctx context.Context, b Bucket, asOf time.Time) (*Balance, error) {
	return e.balance(ctx, b, asOf, MatchFuzzy)
}

func (e *Engine) balance(ctx context.Context, b Bucket, asOf time.Time, mode MatchMode) (*Balance, error) {
	started := time.Now()
	if err := validateBalanceDimensions(b); err != nil {
		return nil, err
	}
	rb, err := e.resolveBucket(ctx, b, mode)
	if err != nil {
		return nil, err
	}
	entries, err := e.approvedEntries(ctx, EntryFilter{Through: asOf, Location: rb.location})
	if err != nil {
		return nil, err
	}
	inWindow := asOfRule(asOf, rb.isDirectLoad)
	view := e.newView()
	aggs, keys, err := view.aggregate(ctx, entries, func(f legFacts) bool {
		return inWindow(f.entry.EntryDate()) && rb.matches(e.catalog, f)
	})
	if err != nil {
		return nil, err
	}

	key := rb.key()
	var raw Quantity
	sizes := make(map[string]*SizeBalance)
	var sizeOrder []string
	for _, k := range keys {
		agg := aggs[k]
		raw.Bags += agg.raw.Bags
		raw.Quintals = raw.Quintals.Add(agg.raw.Quintals)
		sk := agg.key.BagSizeKg.String()
		s, ok := sizes[sk]
		if !ok {
			s = &SizeBalance{BagSizeKg: agg.key.BagSizeKg}
			sizes[sk] = s
			sizeOrder = append(sizeOrder, sk)
		}
		s.Bags += agg.raw.Bags
		s.Quintals = s.Quintals.Add(agg.raw.Quintals)
	}

	total := e.clamp(key.GroupingKey(), raw)
	result := &Balance{
		GroupingKey:       key.GroupingKey(),
		Location:          key.Location,
		Variety:           key.Variety,
		ProductType:       key.ProductType,
		PackagingBrand:    key.PackagingBrand,
		Bags:              total.Bags,
		Quintals:          total.Quintals,
		CalculationMethod: rb.predicate.Method(),
		IsDirectLoad:      rb.isDirectLoad,
		AsOf:              DateOnly(asOf),
	}
	if rb.packaging.SizeConstrained {
		kg := rb.packaging.KgPerBag
		result.BagSizeKg = &kg
	} else {
		sort.Slice(sizeOrder, func(i, j int) bool {
			return sizes[sizeOrder[i]].BagSizeKg.LessThan(sizes[sizeOrder[j]].BagSizeKg)
		})
		for _, sk := range sizeOrder {
			s := sizes[sk]
			q := e.clamp(key.GroupingKey()+"@"+sk, Quantity{Bags: s.Bags, Quintals: s.Quintals})
			result.BySize = append(result.BySize, SizeBalance{BagSizeKg: s.BagSizeKg, Bags: q.Bags, Quintals: q.Quintals})
		}
	}
	e.recorder.ObserveBalance(result.CalculationMethod, time.Since(started))
	return result, nil
}

// GetOpeningBalances is every bucket's stock strictly before asOf. Direct-load buckets are
// dropped from the result entirely; they never carry forward.
func (e *Engine) GetOpeningBalances(ctx context.Context, asOf time.Time) (map[string]OpeningBalance, error) {
	entries, err := e.approvedEntries(ctx, EntryFilter{Through: asOf, Before: true})
	if err != nil {
		return nil, err
	}
	day := DateOnly(asOf)
	view := e.newView()
	aggs, keys, err := view.aggregate(ctx, entries, func(f legFacts) bool {
		return !f.direct && DateOnly(f.entry.EntryDate()).Before(day)
	})
	if err != nil {
		return nil, err
	}
	out := make(map[string]OpeningBalance, len(keys))
	for _, k := range keys {
		agg := aggs[k]
		q := e.clamp(k, agg.raw)
		if q.IsZero() {
			continue
		}
		out[k] = OpeningBalance{
			BucketKey:     agg.key,
			Bags:          q.Bags,
			Quintals:      q.Quintals,
			VarietySource: agg.varietySource(),
		}
	}
	return out, nil
}

// openingStock is the bucket's balance strictly before day, zero for direct-load locations.
func (e *Engine) openingStock(ctx context.Context, rb *resolvedBucket, day time.Time) (Quantity, error) {
	if rb.isDirectLoad {
		return Quantity{}, nil
	}
	entries, err := e.approvedEntries(ctx, EntryFilter{Through: day, Before: true, Location: rb.location})
	if err != nil {
		return Quantity{}, err
	}
	d := DateOnly(day)
	view := e.newView()
	aggs, keys, err := view.aggregate(ctx, entries, func(f legFacts) bool {
		return DateOnly(f.entry.EntryDate()).Before(d) && rb.matches(e.catalog, f)
	})
	if err != nil {
		return Quantity{}, err
	}
	var raw Quantity
	for _, k := range keys {
		raw.Bags += aggs[k].raw.Bags
		raw.Quintals = raw.Quintals.Add(aggs[k].raw.Quintals)
	}
	return e.clamp(rb.key().GroupingKey(), raw), nil
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
