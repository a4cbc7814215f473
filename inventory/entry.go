package inventory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type MovementType string

const (
	MovementTypePurchase   MovementType = "purchase"
	MovementTypeSale       MovementType = "sale"
	MovementTypePalti      MovementType = "palti"
	MovementTypeProduction MovementType = "production"
)

type ApprovalStatus string

const (
	StatusPending  ApprovalStatus = "pending"
	StatusApproved ApprovalStatus = "approved"
	StatusRejected ApprovalStatus = "rejected"
)

// CanTransition reports whether a movement in status s may move to next.
// Only pending movements are mutable; approved and rejected are terminal.
func (s ApprovalStatus) CanTransition(next ApprovalStatus) bool {
	return s == StatusPending && (next == StatusApproved || next == StatusRejected)
}

// VarietyRef is the variety identity carried by a ledger row.
// OutturnId is authoritative when set; Text is the legacy free-text value.
type VarietyRef struct {
	OutturnId *int   `json:"outturn_id,omitempty"`
	Text      string `json:"text,omitempty"`
}

func (v VarietyRef) IsOutturn() bool {
	return v.OutturnId != nil && *v.OutturnId > 0
}

type LegSide string

const (
	LegIn  LegSide = "in"
	LegOut LegSide = "out"
)

// Leg is one signed contribution of a ledger entry to a single bucket.
type Leg struct {
	Side        LegSide
	Location    string
	Variety     VarietyRef
	ProductType string
	PackagingId int
	// Bags and Quintals are signed: negative for outflows.
	Bags     int64
	Quintals decimal.Decimal
}

// Entry is one row of the append-only ledger expressed as its bucket legs.
type Entry interface {
	EntryId() int
	EntryType() MovementType
	EntryDate() time.Time
	EntryStatus() ApprovalStatus
	Legs() []Leg
}

type Purchase struct {
	Id          int
	Date        time.Time
	Status      ApprovalStatus
	Location    string
	Variety     VarietyRef
	ProductType string
	PackagingId int
	Bags        int64
	Quintals    decimal.Decimal
}

func (p Purchase) EntryId() int                { return p.Id }
func (p Purchase) EntryType() MovementType     { return MovementTypePurchase }
func (p Purchase) EntryDate() time.Time        { return p.Date }
func (p Purchase) EntryStatus() ApprovalStatus { return p.Status }

func (p Purchase) Legs() []Leg {
	return []Leg{{
		Side:        LegIn,
		Location:    p.Location,
		Variety:     p.Variety,
		ProductType: p.ProductType,
		PackagingId: p.PackagingId,
		Bags:        p.Bags,
		Quintals:    p.Quintals,
	}}
}

type Sale struct {
	Id          int
	Date        time.Time
	Status      ApprovalStatus
	Location    string
	Variety     VarietyRef
	ProductType string
	PackagingId int
	Bags        int64
	Quintals    decimal.Decimal
}

func (s Sale) EntryId() int                { return s.Id }
func (s Sale) EntryType() MovementType     { return MovementTypeSale }
func (s Sale) EntryDate() time.Time        { return s.Date }
func (s Sale) EntryStatus() ApprovalStatus { return s.Status }

func (s Sale) Legs() []Leg {
	return []Leg{{
		Side:        LegOut,
		Location:    s.Location,
		Variety:     s.Variety,
		ProductType: s.ProductType,
		PackagingId: s.PackagingId,
		Bags:        -s.Bags,
		Quintals:    s.Quintals.Neg(),
	}}
}

// Production is milling output; its variety always comes from an outturn.
type Production struct {
	Id          int
	Date        time.Time
	Status      ApprovalStatus
	Location    string
	OutturnId   int
	ProductType string
	PackagingId int
	Bags        int64
	Quintals    decimal.Decimal
}

func (p Production) EntryId() int                { return p.Id }
func (p Production) EntryType() MovementType     { return MovementTypeProduction }
func (p Production) EntryDate() time.Time        { return p.Date }
func (p Production) EntryStatus() ApprovalStatus { return p.Status }

func (p Production) Legs() []Leg {
	id := p.OutturnId
	return []Leg{{
		Side:        LegIn,
		Location:    p.Location,
		Variety:     VarietyRef{OutturnId: &id},
		ProductType: p.ProductType,
		PackagingId: p.PackagingId,
		Bags:        p.Bags,
		Quintals:    p.Quintals,
	}}
}

// Palti converts SourceBags of the source packaging into Bags of the target packaging.
// Quintals is the converted quantity; the shortage is lost material deducted from the source
// on top of what was converted.
type Palti struct {
	Id                int
	Date              time.Time
	Status            ApprovalStatus
	SourceLocation    string
	TargetLocation    string
	Variety           VarietyRef
	TargetVariety     VarietyRef
	ProductType       string
	TargetProductType string
	SourcePackagingId int
	TargetPackagingId int
	SourceBags        int64
	Bags              int64
	Quintals          decimal.Decimal
	ShortageKg        decimal.Decimal
	ShortageBags      int64
}

func (p Palti) EntryId() int                { return p.Id }
func (p Palti) EntryType() MovementType     { return MovementTypePalti }
func (p Palti) EntryDate() time.Time        { return p.Date }
func (p Palti) EntryStatus() ApprovalStatus { return p.Status }

// ShortageQuintals converts the kg shortage to quintals (100 kg).
func (p Palti) ShortageQuintals() decimal.Decimal {
	return p.ShortageKg.Div(decimal.NewFromInt(100))
}

func (p Palti) targetLocation() string {
	if p.TargetLocation == "" {
		return p.SourceLocation
	}
	return p.TargetLocation
}

func (p Palti) targetVariety() VarietyRef {
	if !p.TargetVariety.IsOutturn() && p.TargetVariety.Text == "" {
		return p.Variety
	}
	return p.TargetVariety
}

func (p Palti) targetProductType() string {
	if p.TargetProductType == "" {
		return p.ProductType
	}
	return p.TargetProductType
}

// SourceLeg is the deduction taken from the source packaging side.
func (p Palti) SourceLeg() Leg {
	return Leg{
		Side:        LegOut,
		Location:    p.SourceLocation,
		Variety:     p.Variety,
		ProductType: p.ProductType,
		PackagingId: p.SourcePackagingId,
		Bags:        -(p.SourceBags + p.ShortageBags),
		Quintals:    p.Quintals.Add(p.ShortageQuintals()).Neg(),
	}
}

func (p Palti) TargetLeg() Leg {
	return Leg{
		Side:        LegIn,
		Location:    p.targetLocation(),
		Variety:     p.targetVariety(),
		ProductType: p.targetProductType(),
		PackagingId: p.TargetPackagingId,
		Bags:        p.Bags,
		Quintals:    p.Quintals,
	}
}

func (p Palti) Legs() []Leg {
	return []Leg{p.SourceLeg(), p.TargetLeg()}
}

// EntryFilter narrows what a Store returns. Stores may return a superset;
// the engine re-applies every condition per leg.
type EntryFilter struct {
	// Through is inclusive by calendar day unless Before is set.
	Through  time.Time
	Before   bool
	Statuses []ApprovalStatus
	// Location, when set, limits to entries with a leg at that location.
	Location string
	Types    []MovementType
}

type Outturn struct {
	Id              int    `json:"id"`
	Code            string `json:"code"`
	AllottedVariety string `json:"allotted_variety"`
	Type            string `json:"type"`
}

// CanonicalText is uppercase(allottedVariety + " " + type).
func (o Outturn) CanonicalText() string {
	return CanonicalOutturnText(o.AllottedVariety, o.Type)
}

type Packaging struct {
	Id        int             `json:"id"`
	BrandName string          `json:"brand_name"`
	KgPerBag  decimal.Decimal `json:"kg_per_bag"`
}

type Location struct {
	Code         string `json:"code"`
	Name         string `json:"name"`
	IsDirectLoad bool   `json:"is_direct_load"`
}

// Store is everything the engine reads. Lookups return *NotFoundError when absent.
type Store interface {
	Entries(ctx context.Context, filter EntryFilter) ([]Entry, error)
	OutturnById(ctx context.Context, id int) (*Outturn, error)
	ListOutturns(ctx context.Context) ([]Outturn, error)
	PackagingById(ctx context.Context, id int) (*Packaging, error)
	PackagingsByBrand(ctx context.Context, brand string) ([]Packaging, error)
	ListLocations(ctx context.Context) ([]Location, error)
}

// DateOnly truncates t to its calendar day in UTC.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func sameDay(a, b time.Time) bool {
	return DateOnly(a).Equal(DateOnly(b))
}

func hasStatus(statuses []ApprovalStatus, s ApprovalStatus) bool {
	for _, v := range statuses {
		if v == s {
			return true
		}
	}
	return false
}
