package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/ricemill_stock/config"
	"bitbucket.org/mmdatafocus/ricemill_stock/inventory"
	"bitbucket.org/mmdatafocus/ricemill_stock/models"
	"bitbucket.org/mmdatafocus/ricemill_stock/utils"
	"bitbucket.org/mmdatafocus/ricemill_stock/workflow"
	"github.com/shopspring/decimal"
)

var (
	jan20 = time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC)
	jan29 = time.Date(2026, 1, 29, 0, 0, 0, 0, time.UTC)
)

func qtl(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func intPtr(i int) *int { return &i }

// setupLedger starts MySQL and Redis in docker, migrates and seeds reference data.
func setupLedger(t *testing.T) (ctx context.Context, miGreen, miBlue int) {
	t.Helper()
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}
	ctx = utils.SetUsernameInContext(context.Background(), "operator@test.local")

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	// Wire env for config.Connect* helpers.
	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "ricemill_test")
	t.Setenv("AUTO_APPROVE_MOVEMENTS", "true")
	t.Setenv("ENABLE_REPORT_CACHE", "true")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	for _, l := range []models.NewLocation{
		{Code: "O1", Name: "Godown 1"},
		{Code: "O2", Name: "Godown 2"},
		{Code: "DL-1", Name: "Direct load", IsDirectLoad: true},
	} {
		l := l
		if _, err := models.CreateLocation(ctx, &l); err != nil {
			t.Fatalf("CreateLocation(%s): %v", l.Code, err)
		}
	}
	green, err := models.CreatePackaging(ctx, &models.NewPackaging{BrandName: "MI GREEN", KgPerBag: qtl("30")})
	if err != nil {
		t.Fatalf("CreatePackaging: %v", err)
	}
	blue, err := models.CreatePackaging(ctx, &models.NewPackaging{BrandName: "MI BLUE", KgPerBag: qtl("30")})
	if err != nil {
		t.Fatalf("CreatePackaging: %v", err)
	}
	return ctx, green.ID, blue.ID
}

func steamPurchase(packagingId int, bags int64, quintals string, key string) *workflow.NewStockMovement {
	return &workflow.NewStockMovement{
		IdempotencyKey: key,
		Date:           jan20,
		Location:       "o-2",
		Variety:        "sum25 rnr steam",
		ProductType:    "rice",
		Packaging:      workflow.PackagingInput{PackagingId: intPtr(packagingId)},
		Bags:           bags,
		Quintals:       qtl(quintals),
	}
}

func TestSameDayPaltiBlocksSaleEndToEnd(t *testing.T) {
	ctx, green, blue := setupLedger(t)

	purchase, err := workflow.CreatePurchase(ctx, steamPurchase(green, 150, "45", "purchase-1"))
	if err != nil {
		t.Fatalf("CreatePurchase: %v", err)
	}
	if purchase.Location != "O2" || purchase.Variety != "SUM25 RNR STEAM" || purchase.ProductType != "Rice" {
		t.Fatalf("purchase not stored canonically: %+v", purchase)
	}
	if purchase.Status != inventory.StatusApproved || purchase.CreatedBy != "operator@test.local" {
		t.Fatalf("purchase status=%s created_by=%s", purchase.Status, purchase.CreatedBy)
	}

	// retrying with the same key returns the first row
	again, err := workflow.CreatePurchase(ctx, steamPurchase(green, 150, "45", "purchase-1"))
	if err != nil || again.ID != purchase.ID {
		t.Fatalf("idempotent replay: id=%v err=%v (first %d)", again, err, purchase.ID)
	}

	thirty := qtl("30")
	res, err := workflow.RecordPalti(ctx, &workflow.NewPalti{
		Date:            jan29,
		SourceLocation:  "O2",
		Variety:         "SUM25 RNR STEAM",
		ProductType:     "Rice",
		SourcePackaging: workflow.PackagingInput{PackagingId: intPtr(green)},
		TargetPackaging: workflow.PackagingInput{Brand: "mi blue", KgPerBag: &thirty},
		SourceBags:      150,
		Bags:            150,
		Quintals:        qtl("45"),
	})
	if err != nil {
		t.Fatalf("RecordPalti: %v", err)
	}
	if res.SourceBalance.Bags != 0 || res.TargetBalance.Bags != 150 {
		t.Fatalf("post-palti balances source=%d target=%d", res.SourceBalance.Bags, res.TargetBalance.Bags)
	}
	if *res.Movement.TargetPackagingId != blue {
		t.Fatalf("target packaging=%d want %d", *res.Movement.TargetPackagingId, blue)
	}

	sale := steamPurchase(green, 100, "30", "")
	sale.Date = jan29
	_, err = workflow.CreateSale(ctx, sale)
	var insufficient *inventory.InsufficientStockError
	if !errors.As(err, &insufficient) || insufficient.Shortfall.Bags != 100 {
		t.Fatalf("expected the same-day sale to be short by 100 bags, got %v", err)
	}

	sale.Packaging = workflow.PackagingInput{PackagingId: intPtr(blue)}
	if _, err := workflow.CreateSale(ctx, sale); err != nil {
		t.Fatalf("sale of converted stock: %v", err)
	}
}

func TestConcurrentSalesAreSerializedByBucketLocks(t *testing.T) {
	ctx, green, _ := setupLedger(t)
	if _, err := workflow.CreatePurchase(ctx, steamPurchase(green, 100, "30", "")); err != nil {
		t.Fatalf("CreatePurchase: %v", err)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sale := steamPurchase(green, 10, "3", "")
			sale.Date = jan29
			if _, err := workflow.CreateSale(ctx, sale); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			} else if !errors.Is(err, inventory.ErrInsufficientStock) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if accepted != 10 {
		t.Fatalf("accepted %d sales of 10 bags from 100", accepted)
	}
}

func TestApprovalRevalidatesAndOutturnDeleteIsRestricted(t *testing.T) {
	ctx, green, _ := setupLedger(t)
	outturn, err := models.CreateOutturn(ctx, &models.NewOutturn{Code: "OT-7", AllottedVariety: "SUM25 RNR", Type: "steam"})
	if err != nil {
		t.Fatalf("CreateOutturn: %v", err)
	}
	if _, err := workflow.CreateProduction(ctx, &workflow.NewProduction{
		Date: jan20, Location: "O1", OutturnId: outturn.ID, ProductType: "Rice",
		Packaging: workflow.PackagingInput{PackagingId: intPtr(green)}, Bags: 40, Quintals: qtl("12"),
	}); err != nil {
		t.Fatalf("CreateProduction: %v", err)
	}

	t.Setenv("AUTO_APPROVE_MOVEMENTS", "false")
	first, err := workflow.CreateSale(ctx, &workflow.NewStockMovement{
		Date: jan29, Location: "O1", OutturnId: intPtr(outturn.ID), ProductType: "Rice",
		Packaging: workflow.PackagingInput{PackagingId: intPtr(green)}, Bags: 30, Quintals: qtl("9"),
	})
	if err != nil || first.Status != inventory.StatusPending {
		t.Fatalf("pending sale: %+v err=%v", first, err)
	}
	second, err := workflow.CreateSale(ctx, &workflow.NewStockMovement{
		Date: jan29, Location: "O1", OutturnId: intPtr(outturn.ID), ProductType: "Rice",
		Packaging: workflow.PackagingInput{PackagingId: intPtr(green)}, Bags: 30, Quintals: qtl("9"),
	})
	if err != nil {
		t.Fatalf("second pending sale: %v", err)
	}

	if _, err := workflow.ApproveMovement(ctx, first.ID); err != nil {
		t.Fatalf("ApproveMovement: %v", err)
	}
	if _, err := workflow.ApproveMovement(ctx, second.ID); !errors.Is(err, inventory.ErrInsufficientStock) {
		t.Fatalf("second approval should be short, got %v", err)
	}
	if _, err := workflow.RejectMovement(ctx, second.ID); err != nil {
		t.Fatalf("RejectMovement: %v", err)
	}
	if _, err := workflow.ApproveMovement(ctx, second.ID); !errors.Is(err, inventory.ErrValidation) {
		t.Fatalf("rejected is terminal, got %v", err)
	}

	if _, err := models.DeleteOutturn(ctx, outturn.ID); !errors.Is(err, inventory.ErrValidation) {
		t.Fatalf("referenced outturn must not be deletable, got %v", err)
	}
}
