package workflow

import (
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/ricemill_stock/inventory"
	"bitbucket.org/mmdatafocus/ricemill_stock/utils"
	"github.com/shopspring/decimal"
)

type PackagingInput struct {
	PackagingId *int             `json:"packaging_id" validate:"omitempty,gt=0"`
	Brand       string           `json:"brand" validate:"max=100"`
	KgPerBag    *decimal.Decimal `json:"kg"`
}

func (p PackagingInput) query() inventory.PackagingQuery {
	return inventory.PackagingQuery{Id: p.PackagingId, Brand: p.Brand, KgPerBag: p.KgPerBag}
}

// NewStockMovement is the input for a purchase or a sale.
type NewStockMovement struct {
	IdempotencyKey string          `json:"idempotency_key" validate:"omitempty,max=64"`
	Date           time.Time       `json:"date"`
	Location       string          `json:"location" validate:"max=50"`
	Variety        string          `json:"variety" validate:"max=150"`
	OutturnId      *int            `json:"outturn_id" validate:"omitempty,gt=0"`
	ProductType    string          `json:"product_type" validate:"max=50"`
	Packaging      PackagingInput  `json:"packaging"`
	Bags           int64           `json:"bags" validate:"gte=0"`
	Quintals       decimal.Decimal `json:"quintals"`
}

func (input *NewStockMovement) bucket() inventory.Bucket {
	return inventory.Bucket{
		Location:    input.Location,
		Variety:     inventory.VarietySelector{OutturnId: input.OutturnId, Text: input.Variety},
		ProductType: input.ProductType,
		Packaging:   input.Packaging.query(),
	}
}

func (input *NewStockMovement) validate() error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if err := requireDimensions(input.bucket(), input.Date); err != nil {
		return err
	}
	return requirePositive(input.Bags, input.Quintals)
}

// NewProduction records milling output. The variety always comes from the outturn.
type NewProduction struct {
	IdempotencyKey string          `json:"idempotency_key" validate:"omitempty,max=64"`
	Date           time.Time       `json:"date"`
	Location       string          `json:"location" validate:"max=50"`
	OutturnId      int             `json:"outturn_id" validate:"required,gt=0"`
	ProductType    string          `json:"product_type" validate:"max=50"`
	Packaging      PackagingInput  `json:"packaging"`
	Bags           int64           `json:"bags" validate:"gte=0"`
	Quintals       decimal.Decimal `json:"quintals"`
}

func (input *NewProduction) bucket() inventory.Bucket {
	id := input.OutturnId
	return inventory.Bucket{
		Location:    input.Location,
		Variety:     inventory.VarietySelector{OutturnId: &id},
		ProductType: input.ProductType,
		Packaging:   input.Packaging.query(),
	}
}

func (input *NewProduction) validate() error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if err := requireDimensions(input.bucket(), input.Date); err != nil {
		return err
	}
	return requirePositive(input.Bags, input.Quintals)
}

// NewPalti converts SourceBags of the source packaging into Bags of the target packaging.
// Target location, variety and product type default to the source values.
type NewPalti struct {
	IdempotencyKey    string          `json:"idempotency_key" validate:"omitempty,max=64"`
	Date              time.Time       `json:"date"`
	SourceLocation    string          `json:"source_location" validate:"max=50"`
	TargetLocation    string          `json:"target_location" validate:"max=50"`
	Variety           string          `json:"variety" validate:"max=150"`
	OutturnId         *int            `json:"outturn_id" validate:"omitempty,gt=0"`
	TargetVariety     string          `json:"target_variety" validate:"max=150"`
	TargetOutturnId   *int            `json:"target_outturn_id" validate:"omitempty,gt=0"`
	ProductType       string          `json:"product_type" validate:"max=50"`
	TargetProductType string          `json:"target_product_type" validate:"max=50"`
	SourcePackaging   PackagingInput  `json:"source_packaging"`
	TargetPackaging   PackagingInput  `json:"target_packaging"`
	SourceBags        int64           `json:"source_bags" validate:"gte=0"`
	Bags              int64           `json:"bags" validate:"gte=0"`
	Quintals          decimal.Decimal `json:"quintals"`
	ShortageKg        decimal.Decimal `json:"shortage_kg"`
	// ShortageBags defaults to the whole source bags the kg shortage amounts to.
	ShortageBags *int64 `json:"shortage_bags" validate:"omitempty,gte=0"`
}

func (input *NewPalti) sourceBucket() inventory.Bucket {
	return inventory.Bucket{
		Location:    input.SourceLocation,
		Variety:     inventory.VarietySelector{OutturnId: input.OutturnId, Text: input.Variety},
		ProductType: input.ProductType,
		Packaging:   input.SourcePackaging.query(),
	}
}

func (input *NewPalti) targetBucket() inventory.Bucket {
	b := inventory.Bucket{
		Location:    input.TargetLocation,
		Variety:     inventory.VarietySelector{OutturnId: input.TargetOutturnId, Text: input.TargetVariety},
		ProductType: input.TargetProductType,
		Packaging:   input.TargetPackaging.query(),
	}
	if strings.TrimSpace(b.Location) == "" {
		b.Location = input.SourceLocation
	}
	if b.Variety.IsEmpty() {
		b.Variety = inventory.VarietySelector{OutturnId: input.OutturnId, Text: input.Variety}
	}
	if strings.TrimSpace(b.ProductType) == "" {
		b.ProductType = input.ProductType
	}
	return b
}

func (input *NewPalti) validate() error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if err := requireDimensions(input.sourceBucket(), input.Date); err != nil {
		return err
	}
	if err := inventory.ValidateDimensionsPresent(input.targetBucket()); err != nil {
		verr := err.(*inventory.ValidationError)
		missing := make([]string, 0, len(verr.Missing))
		for _, m := range verr.Missing {
			missing = append(missing, "target_"+m)
		}
		return &inventory.ValidationError{Missing: missing}
	}
	if input.SourceBags <= 0 || input.Bags <= 0 {
		return &inventory.ValidationError{Reason: "source_bags and bags must be positive"}
	}
	if !input.Quintals.IsPositive() {
		return &inventory.ValidationError{Reason: "quintals must be positive"}
	}
	if input.ShortageKg.IsNegative() {
		return &inventory.ValidationError{Reason: "shortage_kg cannot be negative"}
	}
	return nil
}

// shortageBags derives the bag equivalent of the kg shortage when the caller left it out.
func (input *NewPalti) shortageBags(sourceKgPerBag decimal.Decimal) int64 {
	if input.ShortageBags != nil {
		return *input.ShortageBags
	}
	if !sourceKgPerBag.IsPositive() || !input.ShortageKg.IsPositive() {
		return 0
	}
	return input.ShortageKg.Div(sourceKgPerBag).IntPart()
}

// requireDimensions lists every missing bucket dimension plus the date in one error.
func requireDimensions(b inventory.Bucket, date time.Time) error {
	var missing []string
	if err := inventory.ValidateDimensionsPresent(b); err != nil {
		missing = append(missing, err.(*inventory.ValidationError).Missing...)
	}
	if date.IsZero() {
		missing = append(missing, "date")
	}
	if len(missing) > 0 {
		return &inventory.ValidationError{Missing: missing}
	}
	return nil
}

func requirePositive(bags int64, quintals decimal.Decimal) error {
	if bags < 0 || quintals.IsNegative() {
		return &inventory.ValidationError{Reason: "bags and quintals cannot be negative"}
	}
	if bags == 0 && quintals.IsZero() {
		return &inventory.ValidationError{Reason: "quantity must be positive"}
	}
	return nil
}
