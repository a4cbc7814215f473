package models

import (
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/ricemill_stock/inventory"
	"bitbucket.org/mmdatafocus/ricemill_stock/utils"
	"github.com/shopspring/decimal"
)

// Movement is one purchase, sale or palti row of the append-only ledger.
// For palti, Location/PackagingId/Bags describe the source side before conversion is applied:
// SourceBags leave the source packaging and Bags arrive in the target packaging.
type Movement struct {
	ID             int                      `gorm:"primary_key" json:"id"`
	IdempotencyKey *string                  `gorm:"size:64;uniqueIndex" json:"idempotency_key,omitempty"`
	Date           time.Time                `gorm:"type:date;not null;index:idx_movement_date_status,priority:1" json:"date"`
	MovementType   inventory.MovementType   `gorm:"size:20;not null;index" json:"movement_type"`
	Status         inventory.ApprovalStatus `gorm:"size:20;not null;index:idx_movement_date_status,priority:2" json:"status"`
	ProductType    string                   `gorm:"size:50;not null" json:"product_type"`
	Variety        string                   `gorm:"size:150" json:"variety"`
	OutturnId      *int                     `gorm:"index" json:"outturn_id"`
	Outturn        *Outturn                 `gorm:"foreignKey:OutturnId;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
	Location       string                   `gorm:"size:50;not null;index" json:"location"`
	PackagingId    int                      `gorm:"not null;index" json:"packaging_id"`
	Bags           int64                    `gorm:"not null;default:0" json:"bags"`
	Quintals       decimal.Decimal          `gorm:"type:decimal(20,4);not null;default:0" json:"quintals"`

	TargetLocation    string          `gorm:"size:50;index" json:"target_location,omitempty"`
	TargetPackagingId *int            `json:"target_packaging_id,omitempty"`
	TargetVariety     string          `gorm:"size:150" json:"target_variety,omitempty"`
	TargetOutturnId   *int            `gorm:"index" json:"target_outturn_id,omitempty"`
	TargetOutturn     *Outturn        `gorm:"foreignKey:TargetOutturnId;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
	TargetProductType string          `gorm:"size:50" json:"target_product_type,omitempty"`
	SourceBags        int64           `gorm:"not null;default:0" json:"source_bags"`
	ShortageKg        decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"shortage_kg"`
	ShortageBags      int64           `gorm:"not null;default:0" json:"shortage_bags"`

	CreatedBy  string     `gorm:"size:100" json:"created_by"`
	ApprovedBy string     `gorm:"size:100" json:"approved_by,omitempty"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func varietyRef(outturnId *int, text string) inventory.VarietyRef {
	ref := inventory.VarietyRef{Text: text}
	if outturnId != nil && *outturnId > 0 {
		id := *outturnId
		ref.OutturnId = &id
	}
	return ref
}

// ToEntry converts the row to its tagged ledger variant.
func (m Movement) ToEntry() (inventory.Entry, error) {
	date := inventory.DateOnly(m.Date)
	switch m.MovementType {
	case inventory.MovementTypePurchase:
		return inventory.Purchase{
			Id:          m.ID,
			Date:        date,
			Status:      m.Status,
			Location:    m.Location,
			Variety:     varietyRef(m.OutturnId, m.Variety),
			ProductType: m.ProductType,
			PackagingId: m.PackagingId,
			Bags:        m.Bags,
			Quintals:    m.Quintals,
		}, nil
	case inventory.MovementTypeSale:
		return inventory.Sale{
			Id:          m.ID,
			Date:        date,
			Status:      m.Status,
			Location:    m.Location,
			Variety:     varietyRef(m.OutturnId, m.Variety),
			ProductType: m.ProductType,
			PackagingId: m.PackagingId,
			Bags:        m.Bags,
			Quintals:    m.Quintals,
		}, nil
	case inventory.MovementTypePalti:
		return inventory.Palti{
			Id:                m.ID,
			Date:              date,
			Status:            m.Status,
			SourceLocation:    m.Location,
			TargetLocation:    m.TargetLocation,
			Variety:           varietyRef(m.OutturnId, m.Variety),
			TargetVariety:     varietyRef(m.TargetOutturnId, m.TargetVariety),
			ProductType:       m.ProductType,
			TargetProductType: m.TargetProductType,
			SourcePackagingId: m.PackagingId,
			TargetPackagingId: utils.DereferencePtr(m.TargetPackagingId),
			SourceBags:        m.SourceBags,
			Bags:              m.Bags,
			Quintals:          m.Quintals,
			ShortageKg:        m.ShortageKg,
			ShortageBags:      m.ShortageBags,
		}, nil
	}
	return nil, fmt.Errorf("movement %d has unknown type %q", m.ID, m.MovementType)
}

// Production is milling output. Its variety always comes from the outturn.
type Production struct {
	ID             int                      `gorm:"primary_key" json:"id"`
	IdempotencyKey *string                  `gorm:"size:64;uniqueIndex" json:"idempotency_key,omitempty"`
	Date           time.Time                `gorm:"type:date;not null;index:idx_production_date_status,priority:1" json:"date"`
	Status         inventory.ApprovalStatus `gorm:"size:20;not null;index:idx_production_date_status,priority:2" json:"status"`
	Location       string                   `gorm:"size:50;not null;index" json:"location"`
	OutturnId      int                      `gorm:"not null;index" json:"outturn_id"`
	Outturn        *Outturn                 `gorm:"foreignKey:OutturnId;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
	ProductType    string                   `gorm:"size:50;not null" json:"product_type"`
	PackagingId    int                      `gorm:"not null;index" json:"packaging_id"`
	Bags           int64                    `gorm:"not null;default:0" json:"bags"`
	Quintals       decimal.Decimal          `gorm:"type:decimal(20,4);not null;default:0" json:"quintals"`
	CreatedBy      string                   `gorm:"size:100" json:"created_by"`
	ApprovedBy     string                   `gorm:"size:100" json:"approved_by,omitempty"`
	ApprovedAt     *time.Time               `json:"approved_at,omitempty"`
	CreatedAt      time.Time                `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time                `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p Production) ToEntry() inventory.Entry {
	return inventory.Production{
		Id:          p.ID,
		Date:        inventory.DateOnly(p.Date),
		Status:      p.Status,
		Location:    p.Location,
		OutturnId:   p.OutturnId,
		ProductType: p.ProductType,
		PackagingId: p.PackagingId,
		Bags:        p.Bags,
		Quintals:    p.Quintals,
	}
}
