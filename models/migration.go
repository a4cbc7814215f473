package models

import (
	"log"

	"bitbucket.org/mmdatafocus/ricemill_stock/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Location{}, &Packaging{}, &Outturn{},
		&Movement{}, &Production{},
		&IdempotencyKey{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
