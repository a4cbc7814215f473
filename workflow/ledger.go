package workflow

import (
	"context"

	"bitbucket.org/mmdatafocus/ricemill_stock/models"
)

// Ledger exposes the write operations as methods so the HTTP layer can take them as an interface.
type Ledger struct{}

func (Ledger) CreatePurchase(ctx context.Context, input *NewStockMovement) (*models.Movement, error) {
	return CreatePurchase(ctx, input)
}

func (Ledger) CreateSale(ctx context.Context, input *NewStockMovement) (*models.Movement, error) {
	return CreateSale(ctx, input)
}

func (Ledger) CreateProduction(ctx context.Context, input *NewProduction) (*models.Production, error) {
	return CreateProduction(ctx, input)
}

func (Ledger) RecordPalti(ctx context.Context, input *NewPalti) (*PaltiResult, error) {
	return RecordPalti(ctx, input)
}

func (Ledger) ApproveMovement(ctx context.Context, id int) (*models.Movement, error) {
	return ApproveMovement(ctx, id)
}

func (Ledger) RejectMovement(ctx context.Context, id int) (*models.Movement, error) {
	return RejectMovement(ctx, id)
}

func (Ledger) ApproveProduction(ctx context.Context, id int) (*models.Production, error) {
	return ApproveProduction(ctx, id)
}

func (Ledger) RejectProduction(ctx context.Context, id int) (*models.Production, error) {
	return RejectProduction(ctx, id)
}
