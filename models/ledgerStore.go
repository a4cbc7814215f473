package models

import (
	"context"
	"errors"
	"strconv"

	"bitbucket.org/mmdatafocus/ricemill_stock/config"
	"bitbucket.org/mmdatafocus/ricemill_stock/inventory"
	"gorm.io/gorm"
)

// LedgerStore implements inventory.Store over MySQL. Built on a transaction it reads that
// transaction's view, which is how the write path validates under its bucket locks.
type LedgerStore struct {
	db *gorm.DB
}

// NewLedgerStore with a nil db reads through config.GetDB() on every call, so it can be
// built before the connection is up.
func NewLedgerStore(db *gorm.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

func (s *LedgerStore) DB() *gorm.DB {
	if s.db != nil {
		return s.db
	}
	return config.GetDB()
}

func wantsType(types []inventory.MovementType, t inventory.MovementType) bool {
	if len(types) == 0 {
		return true
	}
	for _, v := range types {
		if v == t {
			return true
		}
	}
	return false
}

func (s *LedgerStore) scoped(ctx context.Context, model any, filter inventory.EntryFilter) *gorm.DB {
	q := s.DB().WithContext(ctx).Model(model)
	if !filter.Through.IsZero() {
		day := inventory.DateOnly(filter.Through)
		if filter.Before {
			q = q.Where("date < ?", day)
		} else {
			q = q.Where("date <= ?", day)
		}
	}
	if len(filter.Statuses) > 0 {
		q = q.Where("status IN ?", filter.Statuses)
	}
	return q
}

// Entries returns movements and productions. Location codes are stored canonical, so the location
// filter is an equality on either side of a palti.
func (s *LedgerStore) Entries(ctx context.Context, filter inventory.EntryFilter) ([]inventory.Entry, error) {
	var out []inventory.Entry

	var movementTypes []inventory.MovementType
	for _, t := range []inventory.MovementType{inventory.MovementTypePurchase, inventory.MovementTypeSale, inventory.MovementTypePalti} {
		if wantsType(filter.Types, t) {
			movementTypes = append(movementTypes, t)
		}
	}
	if len(movementTypes) > 0 {
		var movements []Movement
		q := s.scoped(ctx, &Movement{}, filter).Where("movement_type IN ?", movementTypes)
		if filter.Location != "" {
			q = q.Where("location = ? OR target_location = ?", filter.Location, filter.Location)
		}
		if err := q.Order("date, id").Find(&movements).Error; err != nil {
			return nil, dbError("list movements", err)
		}
		for _, m := range movements {
			e, err := m.ToEntry()
			if err != nil {
				return nil, dbError("decode movement", err)
			}
			out = append(out, e)
		}
	}

	if wantsType(filter.Types, inventory.MovementTypeProduction) {
		var productions []Production
		q := s.scoped(ctx, &Production{}, filter)
		if filter.Location != "" {
			q = q.Where("location = ?", filter.Location)
		}
		if err := q.Order("date, id").Find(&productions).Error; err != nil {
			return nil, dbError("list productions", err)
		}
		for _, p := range productions {
			out = append(out, p.ToEntry())
		}
	}
	return out, nil
}

func (s *LedgerStore) OutturnById(ctx context.Context, id int) (*inventory.Outturn, error) {
	var o Outturn
	if err := s.DB().WithContext(ctx).First(&o, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &inventory.NotFoundError{Resource: "outturn", Key: strconv.Itoa(id)}
		}
		return nil, dbError("outturn lookup", err)
	}
	result := o.toInventory()
	return &result, nil
}

// OutturnsByIds returns the outturns found; missing ids are simply absent.
func (s *LedgerStore) OutturnsByIds(ctx context.Context, ids []int) (map[int]inventory.Outturn, error) {
	var rows []Outturn
	if err := s.DB().WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, dbError("outturn lookup", err)
	}
	out := make(map[int]inventory.Outturn, len(rows))
	for _, o := range rows {
		out[o.ID] = o.toInventory()
	}
	return out, nil
}

func (s *LedgerStore) ListOutturns(ctx context.Context) ([]inventory.Outturn, error) {
	var rows []Outturn
	if err := s.DB().WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, dbError("list outturns", err)
	}
	out := make([]inventory.Outturn, 0, len(rows))
	for _, o := range rows {
		out = append(out, o.toInventory())
	}
	return out, nil
}

func (s *LedgerStore) PackagingById(ctx context.Context, id int) (*inventory.Packaging, error) {
	var p Packaging
	if err := s.DB().WithContext(ctx).First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &inventory.NotFoundError{Resource: "packaging", Key: strconv.Itoa(id)}
		}
		return nil, dbError("packaging lookup", err)
	}
	result := p.toInventory()
	return &result, nil
}

func (s *LedgerStore) PackagingsByIds(ctx context.Context, ids []int) (map[int]inventory.Packaging, error) {
	var rows []Packaging
	if err := s.DB().WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, dbError("packaging lookup", err)
	}
	out := make(map[int]inventory.Packaging, len(rows))
	for _, p := range rows {
		out[p.ID] = p.toInventory()
	}
	return out, nil
}

// PackagingsByBrand compares brands after text normalization, which SQL collation alone cannot
// do ("MI-GREEN" vs "Mi Green"), so the small reference table is filtered here.
func (s *LedgerStore) PackagingsByBrand(ctx context.Context, brand string) ([]inventory.Packaging, error) {
	var rows []Packaging
	if err := s.DB().WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, dbError("packaging lookup", err)
	}
	want := inventory.NormalizeText(brand)
	var out []inventory.Packaging
	for _, p := range rows {
		if inventory.NormalizeText(p.BrandName) == want {
			out = append(out, p.toInventory())
		}
	}
	return out, nil
}

func (s *LedgerStore) ListLocations(ctx context.Context) ([]inventory.Location, error) {
	var rows []Location
	if err := s.DB().WithContext(ctx).Order("code").Find(&rows).Error; err != nil {
		return nil, dbError("list locations", err)
	}
	out := make([]inventory.Location, 0, len(rows))
	for _, l := range rows {
		out = append(out, l.toInventory())
	}
	return out, nil
}

// DistinctVarietyTexts lists the free-text varieties still on ledger rows without an outturn.
func (s *LedgerStore) DistinctVarietyTexts(ctx context.Context) ([]string, error) {
	var texts []string
	err := s.DB().WithContext(ctx).Model(&Movement{}).
		Where("outturn_id IS NULL AND variety <> ''").
		Distinct("variety").Order("variety").
		Pluck("variety", &texts).Error
	if err != nil {
		return nil, dbError("list varieties", err)
	}
	return texts, nil
}

var _ inventory.Store = (*LedgerStore)(nil)
