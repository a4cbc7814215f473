package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	pkgMiGreen30 = 1
	pkgMiBlue30  = 2
	pkgMiGreen50 = 3
	pkgJute50    = 4
	outturnSteam = 7
	outturnRaw   = 8
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func qtl(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func intPtr(i int) *int { return &i }

func kgPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func newTestStore() *MemoryStore {
	return NewMemoryStore().
		AddLocation(Location{Code: "O1", Name: "Godown 1"}).
		AddLocation(Location{Code: "O2", Name: "Godown 2"}).
		AddLocation(Location{Code: "DL-1", Name: "Truck bay", IsDirectLoad: true}).
		AddPackaging(Packaging{Id: pkgMiGreen30, BrandName: "MI GREEN", KgPerBag: qtl("30")}).
		AddPackaging(Packaging{Id: pkgMiBlue30, BrandName: "MI BLUE", KgPerBag: qtl("30")}).
		AddPackaging(Packaging{Id: pkgMiGreen50, BrandName: "MI GREEN", KgPerBag: qtl("50")}).
		AddPackaging(Packaging{Id: pkgJute50, BrandName: "Mi Jute Fiber", KgPerBag: qtl("50")}).
		AddOutturn(Outturn{Id: outturnSteam, Code: "OT-007", AllottedVariety: "SUM25 RNR", Type: "Steam"}).
		AddOutturn(Outturn{Id: outturnRaw, Code: "OT-008", AllottedVariety: "SUM25 RNR", Type: "Raw"})
}

func textBucket(location, variety, productType string, packagingId int) Bucket {
	return Bucket{
		Location:    location,
		Variety:     VarietySelector{Text: variety},
		ProductType: productType,
		Packaging:   PackagingQuery{Id: intPtr(packagingId)},
	}
}

func purchase(id int, date, location, variety string, packagingId int, bags int64, quintals string) Purchase {
	return Purchase{
		Id:          id,
		Date:        day(date),
		Status:      StatusApproved,
		Location:    location,
		Variety:     VarietyRef{Text: variety},
		ProductType: "Rice",
		PackagingId: packagingId,
		Bags:        bags,
		Quintals:    qtl(quintals),
	}
}

func sale(id int, date, location, variety string, packagingId int, bags int64, quintals string) Sale {
	return Sale{
		Id:          id,
		Date:        day(date),
		Status:      StatusApproved,
		Location:    location,
		Variety:     VarietyRef{Text: variety},
		ProductType: "Rice",
		PackagingId: packagingId,
		Bags:        bags,
		Quintals:    qtl(quintals),
	}
}
