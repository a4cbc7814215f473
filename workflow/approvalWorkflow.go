package workflow

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/ricemill_stock/config"
	"bitbucket.org/mmdatafocus/ricemill_stock/inventory"
	"bitbucket.org/mmdatafocus/ricemill_stock/models"
	"bitbucket.org/mmdatafocus/ricemill_stock/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func loadMovement(db *gorm.DB, id int, forUpdate bool) (*models.Movement, error) {
	var m models.Movement
	q := db
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := q.First(&m, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &inventory.NotFoundError{Resource: "movement", Key: idKey(id)}
		}
		return nil, dbError("load movement", err)
	}
	return &m, nil
}

func movementLockKeys(m *models.Movement) []string {
	catalog := inventory.DefaultCatalog()
	src, tgt := movementBuckets(*m)
	return []string{
		BucketLockKey(catalog, src.Location, src.ProductType),
		BucketLockKey(catalog, tgt.Location, tgt.ProductType),
	}
}

func requirePending(resource string, id int, status inventory.ApprovalStatus, next inventory.ApprovalStatus) error {
	if !status.CanTransition(next) {
		return &inventory.ValidationError{Reason: resource + " " + idKey(id) + " is " + string(status) + "; only pending rows can be " + string(next)}
	}
	return nil
}

// revalidateOutflow re-checks a sale or palti against approved stock at approval time.
func revalidateOutflow(ctx context.Context, engine *inventory.Engine, m *models.Movement) error {
	src, tgt := movementBuckets(*m)
	switch m.MovementType {
	case inventory.MovementTypeSale:
		return validateOutflow(ctx, engine, src, inventory.Quantity{Bags: m.Bags, Quintals: m.Quintals}, m.Date)
	case inventory.MovementTypePalti:
		check, err := engine.ValidatePaltiSufficiency(ctx, inventory.PaltiRequest{
			Source:            src,
			TargetProductType: tgt.ProductType,
			Requested: inventory.Quantity{
				Bags:     m.SourceBags + m.ShortageBags,
				Quintals: m.Quintals.Add(m.ShortageKg.Div(decimal.NewFromInt(100))),
			},
			Date: m.Date,
		})
		if err != nil {
			return err
		}
		return check.Err()
	}
	return nil
}

// ApproveMovement moves a pending movement to approved. Outflows are validated again first
// because stock may have changed since the row was created.
func ApproveMovement(ctx context.Context, id int) (*models.Movement, error) {
	return transitionMovement(ctx, id, inventory.StatusApproved, "ApproveMovement")
}

func RejectMovement(ctx context.Context, id int) (*models.Movement, error) {
	return transitionMovement(ctx, id, inventory.StatusRejected, "RejectMovement")
}

func transitionMovement(ctx context.Context, id int, next inventory.ApprovalStatus, funcName string) (*models.Movement, error) {
	ctx, span := tracer.Start(ctx, "workflow."+funcName)
	defer span.End()

	current, err := loadMovement(config.GetDB().WithContext(ctx), id, false)
	if err != nil {
		return nil, err
	}
	if err := requirePending("movement", id, current.Status, next); err != nil {
		return nil, err
	}

	var movement *models.Movement
	err = withBucketLocks(ctx, movementLockKeys(current), funcName, func(tx *gorm.DB) error {
		m, err := loadMovement(tx, id, true)
		if err != nil {
			return err
		}
		if err := requirePending("movement", id, m.Status, next); err != nil {
			return err
		}
		if next == inventory.StatusApproved {
			if err := revalidateOutflow(ctx, NewEngine(tx), m); err != nil {
				return err
			}
		}
		updates := map[string]interface{}{"status": next}
		if next == inventory.StatusApproved {
			now := time.Now().UTC()
			updates["approved_by"] = utils.ActorFromContext(ctx)
			updates["approved_at"] = &now
		}
		if err := tx.Model(m).Updates(updates).Error; err != nil {
			return dbError("update movement status", err)
		}
		m.Status = next
		movement = m
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	afterCommit(ctx, funcName, movementEvent(movement.ID, movement.MovementType, movement.Status, movement.Date, movementLockKeys(movement)))
	return movement, nil
}

func ApproveProduction(ctx context.Context, id int) (*models.Production, error) {
	return transitionProduction(ctx, id, inventory.StatusApproved, "ApproveProduction")
}

func RejectProduction(ctx context.Context, id int) (*models.Production, error) {
	return transitionProduction(ctx, id, inventory.StatusRejected, "RejectProduction")
}

// Production only adds stock, so approving it needs no stock check and no bucket lock.
func transitionProduction(ctx context.Context, id int, next inventory.ApprovalStatus, funcName string) (*models.Production, error) {
	var production models.Production
	err := config.GetDB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&production, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &inventory.NotFoundError{Resource: "production", Key: idKey(id)}
			}
			return dbError("load production", err)
		}
		if err := requirePending("production", id, production.Status, next); err != nil {
			return err
		}
		updates := map[string]interface{}{"status": next}
		if next == inventory.StatusApproved {
			now := time.Now().UTC()
			updates["approved_by"] = utils.ActorFromContext(ctx)
			updates["approved_at"] = &now
		}
		if err := tx.Model(&production).Updates(updates).Error; err != nil {
			return dbError("update production status", err)
		}
		production.Status = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	afterCommit(ctx, funcName, movementEvent(production.ID, inventory.MovementTypeProduction, production.Status, production.Date, nil))
	return &production, nil
}
