package models

import (
	"context"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/ricemill_stock/config"
	"bitbucket.org/mmdatafocus/ricemill_stock/inventory"
	"bitbucket.org/mmdatafocus/ricemill_stock/utils"
	"github.com/shopspring/decimal"
)

// Packaging is immutable reference data: a brand in one bag size.
type Packaging struct {
	ID        int             `gorm:"primary_key" json:"id"`
	BrandName string          `gorm:"size:100;not null;index:idx_packaging_brand_kg,unique" json:"brand_name"`
	KgPerBag  decimal.Decimal `gorm:"type:decimal(10,2);not null;index:idx_packaging_brand_kg,unique" json:"kg_per_bag"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type NewPackaging struct {
	BrandName string          `json:"brand_name" validate:"required,max=100"`
	KgPerBag  decimal.Decimal `json:"kg_per_bag"`
}

func (p Packaging) toInventory() inventory.Packaging {
	return inventory.Packaging{Id: p.ID, BrandName: p.BrandName, KgPerBag: p.KgPerBag}
}

func CreatePackaging(ctx context.Context, input *NewPackaging) (*Packaging, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if !input.KgPerBag.IsPositive() {
		return nil, &inventory.ValidationError{Reason: "kg_per_bag must be positive"}
	}
	packaging := Packaging{
		BrandName: strings.ToUpper(strings.TrimSpace(input.BrandName)),
		KgPerBag:  input.KgPerBag,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&packaging).Error; err != nil {
		if isDuplicateKeyErr(err) {
			return nil, &inventory.ValidationError{Reason: "packaging " + packaging.BrandName + " " + packaging.KgPerBag.String() + " kg already exists"}
		}
		return nil, dbError("create packaging", err)
	}
	return &packaging, nil
}
