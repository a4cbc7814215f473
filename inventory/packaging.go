package inventory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

type PackagingQuery struct {
	Id       *int             `json:"packaging_id,omitempty" form:"packaging_id"`
	Brand    string           `json:"brand,omitempty" form:"brand"`
	KgPerBag *decimal.Decimal `json:"kg,omitempty" form:"kg"`
}

func (q PackagingQuery) IsEmpty() bool {
	return (q.Id == nil || *q.Id <= 0) && strings.TrimSpace(q.Brand) == ""
}

// PackagingMatch is a resolved packaging. When SizeConstrained is false the caller asked by
// brand only and every bag size of the brand matches; Sizes lists them for display.
type PackagingMatch struct {
	Id              int             `json:"id"`
	Brand           string          `json:"brand"`
	KgPerBag        decimal.Decimal `json:"kg"`
	SizeConstrained bool            `json:"size_constrained"`
	Sizes           []Packaging     `json:"sizes,omitempty"`
}

func (m PackagingMatch) Matches(p Packaging) bool {
	if normalizeBrand(p.BrandName) != normalizeBrand(m.Brand) {
		return false
	}
	return !m.SizeConstrained || p.KgPerBag.Equal(m.KgPerBag)
}

func normalizeBrand(s string) string {
	return NormalizeText(s)
}

type PackagingResolver struct {
	store Store
}

func NewPackagingResolver(store Store) *PackagingResolver {
	return &PackagingResolver{store: store}
}

func (r *PackagingResolver) Resolve(ctx context.Context, q PackagingQuery) (*PackagingMatch, error) {
	if q.Id != nil && *q.Id > 0 {
		p, err := r.store.PackagingById(ctx, *q.Id)
		if err != nil {
			return nil, wrapStoreError("packaging lookup", err)
		}
		if b := strings.TrimSpace(q.Brand); b != "" && normalizeBrand(b) != normalizeBrand(p.BrandName) {
			return nil, &ValidationError{Reason: fmt.Sprintf("packaging %d belongs to brand %q, not %q", p.Id, p.BrandName, b)}
		}
		if q.KgPerBag != nil && !q.KgPerBag.Equal(p.KgPerBag) {
			return nil, &ValidationError{Reason: fmt.Sprintf("packaging %d is %s kg, not %s kg", p.Id, p.KgPerBag, q.KgPerBag)}
		}
		return &PackagingMatch{
			Id:              p.Id,
			Brand:           p.BrandName,
			KgPerBag:        p.KgPerBag,
			SizeConstrained: true,
			Sizes:           []Packaging{*p},
		}, nil
	}

	brand := strings.TrimSpace(q.Brand)
	if brand == "" {
		return nil, &ValidationError{Missing: []string{"packaging"}}
	}
	candidates, err := r.store.PackagingsByBrand(ctx, brand)
	if err != nil {
		return nil, wrapStoreError("packaging lookup", err)
	}
	var sizes []Packaging
	for _, p := range candidates {
		if normalizeBrand(p.BrandName) == normalizeBrand(brand) {
			sizes = append(sizes, p)
		}
	}
	sort.Slice(sizes, func(i, j int) bool { return sizes[i].Id < sizes[j].Id })
	if len(sizes) == 0 {
		return nil, &NotFoundError{Resource: "packaging", Key: brand}
	}

	if q.KgPerBag != nil {
		for _, p := range sizes {
			if p.KgPerBag.Equal(*q.KgPerBag) {
				return &PackagingMatch{
					Id:              p.Id,
					Brand:           p.BrandName,
					KgPerBag:        p.KgPerBag,
					SizeConstrained: true,
					Sizes:           []Packaging{p},
				}, nil
			}
		}
		return nil, &NotFoundError{Resource: "packaging", Key: fmt.Sprintf("%s %s kg", brand, q.KgPerBag.String())}
	}

	first := sizes[0]
	return &PackagingMatch{
		Id:              first.Id,
		Brand:           first.BrandName,
		KgPerBag:        first.KgPerBag,
		SizeConstrained: false,
		Sizes:           sizes,
	}, nil
}

// packagingCache memoizes id lookups for the duration of one computation.
type packagingCache struct {
	store Store
	byId  map[int]Packaging
}

func newPackagingCache(store Store) *packagingCache {
	return &packagingCache{store: store, byId: make(map[int]Packaging)}
}

// get returns a zero Packaging for id 0 so unpackaged legacy rows still group.
func (c *packagingCache) get(ctx context.Context, id int) (Packaging, error) {
	if id <= 0 {
		return Packaging{}, nil
	}
	if p, ok := c.byId[id]; ok {
		return p, nil
	}
	p, err := c.store.PackagingById(ctx, id)
	if err != nil {
		return Packaging{}, wrapStoreError("packaging lookup", err)
	}
	c.byId[id] = *p
	return *p, nil
}
