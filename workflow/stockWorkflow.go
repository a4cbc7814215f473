package workflow

import (
	"context"
	"errors"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/ricemill_stock/config"
	"bitbucket.org/mmdatafocus/ricemill_stock/events"
	"bitbucket.org/mmdatafocus/ricemill_stock/inventory"
	"bitbucket.org/mmdatafocus/ricemill_stock/metrics"
	"bitbucket.org/mmdatafocus/ricemill_stock/models"
	"bitbucket.org/mmdatafocus/ricemill_stock/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

const moduleName = "workflow"

var tracer = otel.Tracer("bitbucket.org/mmdatafocus/ricemill_stock/workflow")

// NewEngine builds an engine reading through db, which may be a transaction.
func NewEngine(db *gorm.DB) *inventory.Engine {
	return inventory.NewEngine(models.NewLedgerStore(db),
		inventory.WithLogger(config.GetLogger()),
		inventory.WithRecorder(metrics.Default()),
	)
}

func initialStatus() inventory.ApprovalStatus {
	if config.AutoApproveMovements() {
		return inventory.StatusApproved
	}
	return inventory.StatusPending
}

// resolvedLeg is one side of a write with every dimension checked against reference data.
type resolvedLeg struct {
	location    string
	variety     string
	outturnId   *int
	productType string
	packaging   *inventory.PackagingMatch
}

func (l *resolvedLeg) bucket() inventory.Bucket {
	id := l.packaging.Id
	return inventory.Bucket{
		Location:    l.location,
		Variety:     inventory.VarietySelector{OutturnId: l.outturnId, Text: l.variety},
		ProductType: l.productType,
		Packaging:   inventory.PackagingQuery{Id: &id},
	}
}

func resolveLeg(ctx context.Context, engine *inventory.Engine, store *models.LedgerStore, b inventory.Bucket) (*resolvedLeg, error) {
	leg := &resolvedLeg{productType: engine.Catalog().ProductType(b.ProductType)}

	locations, err := store.ListLocations(ctx)
	if err != nil {
		return nil, err
	}
	for _, l := range locations {
		if inventory.NormalizeLocationCode(l.Code) == inventory.NormalizeLocationCode(b.Location) {
			leg.location = l.Code
			break
		}
	}
	if leg.location == "" {
		return nil, &inventory.NotFoundError{Resource: "location", Key: b.Location}
	}

	if b.Variety.OutturnId != nil && *b.Variety.OutturnId > 0 {
		o, err := store.OutturnById(ctx, *b.Variety.OutturnId)
		if err != nil {
			return nil, err
		}
		id := o.Id
		leg.outturnId = &id
		leg.variety = o.CanonicalText()
	} else {
		leg.variety = inventory.NormalizeText(b.Variety.Text)
	}

	pkg, err := engine.ResolvePackaging(ctx, b.Packaging)
	if err != nil {
		return nil, err
	}
	if !pkg.SizeConstrained {
		return nil, &inventory.ValidationError{Missing: []string{"bag_size_kg"}}
	}
	leg.packaging = pkg
	return leg, nil
}

// validateOutflow checks a sale against the live balance as of its date, then, when a palti has
// drawn on the bucket that day, against opening stock minus those palti deductions.
func validateOutflow(ctx context.Context, engine *inventory.Engine, b inventory.Bucket, requested inventory.Quantity, date time.Time) error {
	live, err := engine.ValidatePaltiSufficiency(ctx, inventory.PaltiRequest{Source: b, Requested: requested, Date: date})
	if err != nil {
		return err
	}
	if !live.IsValid {
		return live.Err()
	}
	deductions, err := engine.SameDayPaltiDeductions(ctx, b, date)
	if err != nil {
		return err
	}
	if deductions.IsZero() {
		return nil
	}
	afterPalti, err := engine.ValidateSaleAfterPalti(ctx, b, requested.Bags, date)
	if err != nil {
		return err
	}
	return afterPalti.Err()
}

// afterCommit drops cached reports and publishes the change.
func afterCommit(ctx context.Context, funcName string, e events.MovementEvent) {
	utils.ClearReportCache(ctx, moduleName, funcName)
	e.Actor = utils.ActorFromContext(ctx)
	e.CorrelationId, _ = utils.GetCorrelationIdFromContext(ctx)
	events.Emit(ctx, e)
}

func movementEvent(id int, kind inventory.MovementType, status inventory.ApprovalStatus, date time.Time, keys []string) events.MovementEvent {
	return events.MovementEvent{
		Id:           id,
		MovementType: kind,
		Status:       status,
		Date:         date.Format(utils.DateLayout),
		LockKeys:     keys,
	}
}

func recordFailure(ctx context.Context, handlerName, requestKey, funcName string, input any, err error) {
	if errors.Is(err, ErrIdempotencyInProgress) {
		return
	}
	if ferr := MarkIdempotencyFailed(config.GetDB().WithContext(ctx), handlerName, requestKey, err); ferr != nil {
		config.LogError(config.GetLogger(), moduleName, funcName, "marking idempotency failed", requestKey, ferr)
	}
	var dbErr *inventory.DatabaseError
	if errors.As(err, &dbErr) {
		config.LogError(config.GetLogger(), moduleName, funcName, "ledger write failed", input, err)
	}
}

func CreatePurchase(ctx context.Context, input *NewStockMovement) (*models.Movement, error) {
	return createMovement(ctx, inventory.MovementTypePurchase, input, "CreatePurchase")
}

// CreateSale validates the bucket under its lock and inserts in the same transaction.
func CreateSale(ctx context.Context, input *NewStockMovement) (*models.Movement, error) {
	return createMovement(ctx, inventory.MovementTypeSale, input, "CreateSale")
}

func createMovement(ctx context.Context, kind inventory.MovementType, input *NewStockMovement, funcName string) (*models.Movement, error) {
	ctx, span := tracer.Start(ctx, "workflow."+funcName)
	defer span.End()

	if err := input.validate(); err != nil {
		return nil, err
	}
	catalog := inventory.DefaultCatalog()
	keys := []string{BucketLockKey(catalog, input.Location, input.ProductType)}
	span.SetAttributes(attribute.String("stock.lock_key", keys[0]))

	var (
		movement models.Movement
		replayed bool
	)
	err := withBucketLocks(ctx, keys, funcName, func(tx *gorm.DB) error {
		existingId, err := BeginIdempotency(tx, funcName, input.IdempotencyKey)
		if err != nil {
			return dbError("idempotency", err)
		}
		if existingId > 0 {
			replayed = true
			return dbError("load movement", tx.First(&movement, existingId).Error)
		}

		store := models.NewLedgerStore(tx)
		engine := NewEngine(tx)
		leg, err := resolveLeg(ctx, engine, store, input.bucket())
		if err != nil {
			return err
		}
		date := inventory.DateOnly(input.Date)
		if kind == inventory.MovementTypeSale {
			requested := inventory.Quantity{Bags: input.Bags, Quintals: input.Quintals}
			if err := validateOutflow(ctx, engine, leg.bucket(), requested, date); err != nil {
				return err
			}
		}

		movement = models.Movement{
			IdempotencyKey: utils.NilIfEmpty(input.IdempotencyKey),
			Date:           date,
			MovementType:   kind,
			Status:         initialStatus(),
			ProductType:    leg.productType,
			Variety:        leg.variety,
			OutturnId:      leg.outturnId,
			Location:       leg.location,
			PackagingId:    leg.packaging.Id,
			Bags:           input.Bags,
			Quintals:       input.Quintals,
			CreatedBy:      utils.ActorFromContext(ctx),
		}
		stampApproval(ctx, movement.Status, &movement.ApprovedBy, &movement.ApprovedAt)
		if err := tx.Create(&movement).Error; err != nil {
			return dbError("insert movement", err)
		}
		return dbError("idempotency", MarkIdempotencySucceeded(tx, funcName, input.IdempotencyKey, movement.ID))
	})
	if err != nil {
		span.RecordError(err)
		recordFailure(ctx, funcName, input.IdempotencyKey, funcName, input, err)
		return nil, err
	}
	if !replayed {
		metrics.Default().MovementRecorded(kind)
		afterCommit(ctx, funcName, movementEvent(movement.ID, kind, movement.Status, movement.Date, keys))
	}
	return &movement, nil
}

func CreateProduction(ctx context.Context, input *NewProduction) (*models.Production, error) {
	const funcName = "CreateProduction"
	ctx, span := tracer.Start(ctx, "workflow."+funcName)
	defer span.End()

	if err := input.validate(); err != nil {
		return nil, err
	}
	keys := []string{BucketLockKey(inventory.DefaultCatalog(), input.Location, input.ProductType)}

	var (
		production models.Production
		replayed   bool
	)
	err := withBucketLocks(ctx, keys, funcName, func(tx *gorm.DB) error {
		existingId, err := BeginIdempotency(tx, funcName, input.IdempotencyKey)
		if err != nil {
			return dbError("idempotency", err)
		}
		if existingId > 0 {
			replayed = true
			return dbError("load production", tx.First(&production, existingId).Error)
		}

		leg, err := resolveLeg(ctx, NewEngine(tx), models.NewLedgerStore(tx), input.bucket())
		if err != nil {
			return err
		}
		production = models.Production{
			IdempotencyKey: utils.NilIfEmpty(input.IdempotencyKey),
			Date:           inventory.DateOnly(input.Date),
			Status:         initialStatus(),
			Location:       leg.location,
			OutturnId:      *leg.outturnId,
			ProductType:    leg.productType,
			PackagingId:    leg.packaging.Id,
			Bags:           input.Bags,
			Quintals:       input.Quintals,
			CreatedBy:      utils.ActorFromContext(ctx),
		}
		stampApproval(ctx, production.Status, &production.ApprovedBy, &production.ApprovedAt)
		if err := tx.Create(&production).Error; err != nil {
			return dbError("insert production", err)
		}
		return dbError("idempotency", MarkIdempotencySucceeded(tx, funcName, input.IdempotencyKey, production.ID))
	})
	if err != nil {
		span.RecordError(err)
		recordFailure(ctx, funcName, input.IdempotencyKey, funcName, input, err)
		return nil, err
	}
	if !replayed {
		metrics.Default().MovementRecorded(inventory.MovementTypeProduction)
		afterCommit(ctx, funcName, movementEvent(production.ID, inventory.MovementTypeProduction, production.Status, production.Date, keys))
	}
	return &production, nil
}

type PaltiResult struct {
	Movement      *models.Movement   `json:"movement"`
	SourceBalance *inventory.Balance `json:"source_balance"`
	TargetBalance *inventory.Balance `json:"target_balance"`
}

// RecordPalti validates category and source sufficiency, inserts the palti and then reads both
// buckets again. The read happens after commit and is not part of the write.
func RecordPalti(ctx context.Context, input *NewPalti) (*PaltiResult, error) {
	const funcName = "RecordPalti"
	ctx, span := tracer.Start(ctx, "workflow."+funcName)
	defer span.End()

	if err := input.validate(); err != nil {
		return nil, err
	}
	catalog := inventory.DefaultCatalog()
	source, target := input.sourceBucket(), input.targetBucket()
	keys := []string{
		BucketLockKey(catalog, source.Location, source.ProductType),
		BucketLockKey(catalog, target.Location, target.ProductType),
	}

	var (
		movement       models.Movement
		replayed       bool
		srcLeg, tgtLeg *resolvedLeg
	)
	err := withBucketLocks(ctx, keys, funcName, func(tx *gorm.DB) error {
		existingId, err := BeginIdempotency(tx, funcName, input.IdempotencyKey)
		if err != nil {
			return dbError("idempotency", err)
		}
		if existingId > 0 {
			replayed = true
			return dbError("load movement", tx.First(&movement, existingId).Error)
		}

		store := models.NewLedgerStore(tx)
		engine := NewEngine(tx)
		if err := engine.CheckPaltiConversion(source.ProductType, target.ProductType); err != nil {
			return err
		}
		if srcLeg, err = resolveLeg(ctx, engine, store, source); err != nil {
			return err
		}
		if tgtLeg, err = resolveLeg(ctx, engine, store, target); err != nil {
			return err
		}

		shortageBags := input.shortageBags(srcLeg.packaging.KgPerBag)
		requested := inventory.Quantity{
			Bags:     input.SourceBags + shortageBags,
			Quintals: input.Quintals.Add(input.ShortageKg.Div(decimal.NewFromInt(100))),
		}
		date := inventory.DateOnly(input.Date)
		check, err := engine.ValidatePaltiSufficiency(ctx, inventory.PaltiRequest{
			Source:            srcLeg.bucket(),
			TargetProductType: tgtLeg.productType,
			Requested:         requested,
			Date:              date,
		})
		if err != nil {
			return err
		}
		if !check.IsValid {
			return check.Err()
		}

		targetPackagingId := tgtLeg.packaging.Id
		movement = models.Movement{
			IdempotencyKey:    utils.NilIfEmpty(input.IdempotencyKey),
			Date:              date,
			MovementType:      inventory.MovementTypePalti,
			Status:            initialStatus(),
			ProductType:       srcLeg.productType,
			Variety:           srcLeg.variety,
			OutturnId:         srcLeg.outturnId,
			Location:          srcLeg.location,
			PackagingId:       srcLeg.packaging.Id,
			Bags:              input.Bags,
			Quintals:          input.Quintals,
			TargetLocation:    tgtLeg.location,
			TargetPackagingId: &targetPackagingId,
			TargetVariety:     tgtLeg.variety,
			TargetOutturnId:   tgtLeg.outturnId,
			TargetProductType: tgtLeg.productType,
			SourceBags:        input.SourceBags,
			ShortageKg:        input.ShortageKg,
			ShortageBags:      shortageBags,
			CreatedBy:         utils.ActorFromContext(ctx),
		}
		stampApproval(ctx, movement.Status, &movement.ApprovedBy, &movement.ApprovedAt)
		if err := tx.Create(&movement).Error; err != nil {
			return dbError("insert palti", err)
		}
		return dbError("idempotency", MarkIdempotencySucceeded(tx, funcName, input.IdempotencyKey, movement.ID))
	})
	if err != nil {
		span.RecordError(err)
		recordFailure(ctx, funcName, input.IdempotencyKey, funcName, input, err)
		return nil, err
	}
	if !replayed {
		metrics.Default().MovementRecorded(inventory.MovementTypePalti)
		afterCommit(ctx, funcName, movementEvent(movement.ID, inventory.MovementTypePalti, movement.Status, movement.Date, keys))
	}

	result := &PaltiResult{Movement: &movement}
	engine := NewEngine(config.GetDB().WithContext(ctx))
	src, tgt := movementBuckets(movement)
	if result.SourceBalance, err = engine.GetBalance(ctx, src, movement.Date); err != nil {
		return nil, err
	}
	if result.TargetBalance, err = engine.GetBalance(ctx, tgt, movement.Date); err != nil {
		return nil, err
	}
	config.GetLogger().WithFields(logrus.Fields{
		"module":      moduleName,
		"funcName":    funcName,
		"movement_id": movement.ID,
		"source":      result.SourceBalance.GroupingKey,
		"target":      result.TargetBalance.GroupingKey,
	}).Info("palti recorded")
	return result, nil
}

// movementBuckets rebuilds the source and target buckets of a stored row.
// For purchase and sale both are the row's single bucket.
func movementBuckets(m models.Movement) (inventory.Bucket, inventory.Bucket) {
	sourcePackaging := m.PackagingId
	source := inventory.Bucket{
		Location:    m.Location,
		Variety:     inventory.VarietySelector{OutturnId: m.OutturnId, Text: m.Variety},
		ProductType: m.ProductType,
		Packaging:   inventory.PackagingQuery{Id: &sourcePackaging},
	}
	if m.MovementType != inventory.MovementTypePalti {
		return source, source
	}
	target := inventory.Bucket{
		Location:    utils.DereferencePtr(utils.NilIfEmpty(m.TargetLocation), m.Location),
		Variety:     inventory.VarietySelector{OutturnId: m.TargetOutturnId, Text: m.TargetVariety},
		ProductType: utils.DereferencePtr(utils.NilIfEmpty(m.TargetProductType), m.ProductType),
		Packaging:   inventory.PackagingQuery{Id: m.TargetPackagingId},
	}
	if target.Variety.IsEmpty() {
		target.Variety = source.Variety
	}
	return source, target
}

func stampApproval(ctx context.Context, status inventory.ApprovalStatus, by *string, at **time.Time) {
	if status != inventory.StatusApproved {
		return
	}
	now := time.Now().UTC()
	*by = utils.ActorFromContext(ctx)
	*at = &now
}

func dbError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &inventory.NotFoundError{Resource: op, Key: "-"}
	}
	if errors.Is(err, ErrIdempotencyInProgress) || errors.Is(err, inventory.ErrDatabase) {
		return err
	}
	return &inventory.DatabaseError{Op: op, Err: err}
}

func idKey(id int) string { return strconv.Itoa(id) }
