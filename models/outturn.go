package models

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/ricemill_stock/config"
	"bitbucket.org/mmdatafocus/ricemill_stock/inventory"
	"bitbucket.org/mmdatafocus/ricemill_stock/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Outturn is a milling batch; it owns the canonical variety text of everything produced from it.
type Outturn struct {
	ID              int       `gorm:"primary_key" json:"id"`
	Code            string    `gorm:"size:50;not null;uniqueIndex" json:"code"`
	AllottedVariety string    `gorm:"size:150;not null" json:"allotted_variety"`
	Type            string    `gorm:"size:10;not null" json:"type"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewOutturn struct {
	Code            string `json:"code" validate:"required,max=50"`
	AllottedVariety string `json:"allotted_variety" validate:"required,max=150"`
	Type            string `json:"type" validate:"required,oneof=Raw Steam raw steam RAW STEAM"`
}

func (o Outturn) toInventory() inventory.Outturn {
	return inventory.Outturn{Id: o.ID, Code: o.Code, AllottedVariety: o.AllottedVariety, Type: o.Type}
}

func CreateOutturn(ctx context.Context, input *NewOutturn) (*Outturn, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	processing := "Raw"
	if strings.EqualFold(input.Type, "steam") {
		processing = "Steam"
	}
	outturn := Outturn{
		Code:            strings.TrimSpace(input.Code),
		AllottedVariety: strings.TrimSpace(input.AllottedVariety),
		Type:            processing,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&outturn).Error; err != nil {
		if isDuplicateKeyErr(err) {
			return nil, &inventory.ValidationError{Reason: "duplicate outturn code " + outturn.Code}
		}
		return nil, dbError("create outturn", err)
	}
	return &outturn, nil
}

// DeleteOutturn refuses while any movement or production still references the outturn.
func DeleteOutturn(ctx context.Context, id int) (*Outturn, error) {
	db := config.GetDB()
	var result Outturn
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&result, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &inventory.NotFoundError{Resource: "outturn", Key: strconv.Itoa(id)}
			}
			return dbError("load outturn", err)
		}
		var refs int64
		if err := tx.Model(&Movement{}).
			Where("outturn_id = ? OR target_outturn_id = ?", id, id).
			Count(&refs).Error; err != nil {
			return dbError("count outturn references", err)
		}
		var produced int64
		if err := tx.Model(&Production{}).Where("outturn_id = ?", id).Count(&produced).Error; err != nil {
			return dbError("count outturn references", err)
		}
		if refs+produced > 0 {
			return &inventory.ValidationError{
				Reason: "outturn " + result.Code + " is referenced by " + strconv.FormatInt(refs+produced, 10) + " ledger rows",
			}
		}
		if err := tx.Delete(&result).Error; err != nil {
			return dbError("delete outturn", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}
