package models

import (
	"errors"

	"bitbucket.org/mmdatafocus/ricemill_stock/inventory"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// IsDuplicateKeyErr reports a MySQL unique-index violation (1062).
func IsDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

func isDuplicateKeyErr(err error) bool { return IsDuplicateKeyErr(err) }

// dbError converts gorm failures into the inventory error taxonomy.
func dbError(op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		notFound   *inventory.NotFoundError
		validation *inventory.ValidationError
		dbErr      *inventory.DatabaseError
	)
	if errors.As(err, &notFound) || errors.As(err, &validation) || errors.As(err, &dbErr) {
		return err
	}
	return &inventory.DatabaseError{Op: op, Err: err}
}
