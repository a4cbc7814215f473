package controllers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"bitbucket.org/mmdatafocus/ricemill_stock/config"
	"bitbucket.org/mmdatafocus/ricemill_stock/inventory"
	"bitbucket.org/mmdatafocus/ricemill_stock/middlewares"
	"bitbucket.org/mmdatafocus/ricemill_stock/models"
	"bitbucket.org/mmdatafocus/ricemill_stock/utils"
	"bitbucket.org/mmdatafocus/ricemill_stock/workflow"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const moduleName = "controllers"

// Writer is the ledger write path.
type Writer interface {
	CreatePurchase(ctx context.Context, input *workflow.NewStockMovement) (*models.Movement, error)
	CreateSale(ctx context.Context, input *workflow.NewStockMovement) (*models.Movement, error)
	CreateProduction(ctx context.Context, input *workflow.NewProduction) (*models.Production, error)
	RecordPalti(ctx context.Context, input *workflow.NewPalti) (*workflow.PaltiResult, error)
	ApproveMovement(ctx context.Context, id int) (*models.Movement, error)
	RejectMovement(ctx context.Context, id int) (*models.Movement, error)
	ApproveProduction(ctx context.Context, id int) (*models.Production, error)
	RejectProduction(ctx context.Context, id int) (*models.Production, error)
}

// Directory maintains locations, packagings and outturns.
type Directory interface {
	CreateLocation(ctx context.Context, input *models.NewLocation) (*models.Location, error)
	CreatePackaging(ctx context.Context, input *models.NewPackaging) (*models.Packaging, error)
	CreateOutturn(ctx context.Context, input *models.NewOutturn) (*models.Outturn, error)
	DeleteOutturn(ctx context.Context, id int) (*models.Outturn, error)
}

type Handler struct {
	store     inventory.Store
	ledger    Writer
	directory Directory
	logger    *logrus.Logger
	recorder  inventory.Recorder
}

func NewHandler(store inventory.Store, ledger Writer, directory Directory, recorder inventory.Recorder) *Handler {
	return &Handler{
		store:     store,
		ledger:    ledger,
		directory: directory,
		logger:    config.GetLogger(),
		recorder:  recorder,
	}
}

// engine reads through the request's loaders when LoaderMiddleware ran.
func (h *Handler) engine(ctx context.Context) *inventory.Engine {
	return inventory.NewEngine(middlewares.StoreFor(ctx, h.store),
		inventory.WithLogger(h.logger),
		inventory.WithRecorder(h.recorder),
	)
}

// respondError maps the error taxonomy onto HTTP status codes.
func (h *Handler) respondError(c *gin.Context, funcName string, err error) {
	var (
		insufficient *inventory.InsufficientStockError
		conversion   *inventory.InvalidTypeConversionError
		validation   *inventory.ValidationError
		notFound     *inventory.NotFoundError
		database     *inventory.DatabaseError
	)
	switch {
	case errors.As(err, &insufficient):
		c.JSON(http.StatusConflict, gin.H{
			"error":        err.Error(),
			"grouping_key": insufficient.GroupingKey,
			"available":    insufficient.Available,
			"requested":    insufficient.Requested,
			"shortfall":    insufficient.Shortfall,
			"suggestions":  insufficient.Suggestions,
		})
	case errors.As(err, &conversion):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":         err.Error(),
			"from_category": conversion.FromCategory,
			"to_category":   conversion.ToCategory,
		})
	case errors.As(err, &validation):
		body := gin.H{"error": err.Error()}
		if len(validation.Missing) > 0 {
			body["missing"] = validation.Missing
		}
		c.JSON(http.StatusBadRequest, body)
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, workflow.ErrIdempotencyInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": "a request with this idempotency key is still in progress"})
	case errors.As(err, &database):
		config.LogError(h.logger, moduleName, funcName, "database unavailable", nil, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database unavailable, retry later"})
	default:
		config.LogError(h.logger, moduleName, funcName, "unexpected error", nil, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func optionalInt(c *gin.Context, key string) (*int, error) {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return nil, errors.New(key + " must be a positive integer")
	}
	return &n, nil
}

func idParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		badRequest(c, "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func varietyFromQuery(c *gin.Context) (inventory.VarietySelector, error) {
	outturnId, err := optionalInt(c, "outturn_id")
	if err != nil {
		return inventory.VarietySelector{}, err
	}
	return inventory.VarietySelector{OutturnId: outturnId, Text: c.Query("variety")}, nil
}

func packagingFromQuery(c *gin.Context) (inventory.PackagingQuery, error) {
	id, err := optionalInt(c, "packaging_id")
	if err != nil {
		return inventory.PackagingQuery{}, err
	}
	q := inventory.PackagingQuery{Id: id, Brand: c.Query("brand")}
	if kg := strings.TrimSpace(c.Query("kg")); kg != "" {
		d, err := utils.ParseDecimal(kg)
		if err != nil {
			return q, errors.New("kg must be a number")
		}
		q.KgPerBag = &d
	}
	return q, nil
}

func bucketFromQuery(c *gin.Context) (inventory.Bucket, error) {
	variety, err := varietyFromQuery(c)
	if err != nil {
		return inventory.Bucket{}, err
	}
	packaging, err := packagingFromQuery(c)
	if err != nil {
		return inventory.Bucket{}, err
	}
	return inventory.Bucket{
		Location:    c.Query("location"),
		Variety:     variety,
		ProductType: c.Query("product_type"),
		Packaging:   packaging,
	}, nil
}

func breakdownFromQuery(c *gin.Context) (inventory.BreakdownQuery, error) {
	variety, err := varietyFromQuery(c)
	if err != nil {
		return inventory.BreakdownQuery{}, err
	}
	asOf, err := utils.ParseDate(c.Query("date"))
	if err != nil {
		return inventory.BreakdownQuery{}, err
	}
	return inventory.BreakdownQuery{Variety: variety, ProductType: c.Query("product_type"), AsOf: asOf}, nil
}
