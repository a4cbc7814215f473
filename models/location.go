package models

import (
	"context"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/ricemill_stock/config"
	"bitbucket.org/mmdatafocus/ricemill_stock/inventory"
	"bitbucket.org/mmdatafocus/ricemill_stock/utils"
)

type Location struct {
	ID           int       `gorm:"primary_key" json:"id"`
	Code         string    `gorm:"size:50;not null;uniqueIndex" json:"code"`
	Name         string    `gorm:"size:100;not null" json:"name"`
	IsDirectLoad *bool     `gorm:"not null;default:false" json:"is_direct_load"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewLocation struct {
	Code         string `json:"code" validate:"required,max=50"`
	Name         string `json:"name" validate:"required,max=100"`
	IsDirectLoad bool   `json:"is_direct_load"`
}

func (l Location) toInventory() inventory.Location {
	return inventory.Location{
		Code:         l.Code,
		Name:         l.Name,
		IsDirectLoad: utils.DereferencePtr(l.IsDirectLoad),
	}
}

func CreateLocation(ctx context.Context, input *NewLocation) (*Location, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	location := Location{
		Code:         strings.ToUpper(strings.TrimSpace(input.Code)),
		Name:         strings.TrimSpace(input.Name),
		IsDirectLoad: &input.IsDirectLoad,
	}

	// reject codes that collide after separator normalization (DL-1 vs DL_1)
	existing, err := NewLedgerStore(config.GetDB()).ListLocations(ctx)
	if err != nil {
		return nil, err
	}
	for _, l := range existing {
		if inventory.NormalizeLocationCode(l.Code) == inventory.NormalizeLocationCode(location.Code) {
			return nil, &inventory.ValidationError{Reason: "duplicate location code " + l.Code}
		}
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&location).Error; err != nil {
		return nil, dbError("create location", err)
	}
	return &location, nil
}
