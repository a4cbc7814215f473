package workflow

import (
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/ricemill_stock/models"
	"gorm.io/gorm"
)

var ErrIdempotencyInProgress = errors.New("idempotency in progress")

// BeginIdempotency inserts STARTED. If SUCCEEDED exists it returns the id the first attempt
// created, meaning "return that instead of writing again".
func BeginIdempotency(tx *gorm.DB, handlerName, requestKey string) (existingId int, err error) {
	if requestKey == "" {
		return 0, nil
	}
	key := models.IdempotencyKey{
		HandlerName: handlerName,
		RequestKey:  requestKey,
		Status:      models.IdempotencyStatusStarted,
	}
	if err := tx.Create(&key).Error; err == nil {
		return 0, nil
	} else if !models.IsDuplicateKeyErr(err) {
		return 0, err
	}

	var existing models.IdempotencyKey
	if err := tx.Where("handler_name = ? AND request_key = ?", handlerName, requestKey).
		First(&existing).Error; err != nil {
		return 0, err
	}

	switch existing.Status {
	case models.IdempotencyStatusSucceeded:
		return existing.ResultId, nil
	case models.IdempotencyStatusStarted:
		// a concurrent attempt is still running; a stale one is taken over
		if time.Since(existing.UpdatedAt) < 5*time.Minute {
			return 0, ErrIdempotencyInProgress
		}
	}
	return 0, tx.Model(&models.IdempotencyKey{}).
		Where("id = ?", existing.ID).
		Updates(map[string]interface{}{"status": models.IdempotencyStatusStarted, "last_error": nil}).Error
}

func MarkIdempotencySucceeded(tx *gorm.DB, handlerName, requestKey string, resultId int) error {
	if requestKey == "" {
		return nil
	}
	return tx.Model(&models.IdempotencyKey{}).
		Where("handler_name = ? AND request_key = ?", handlerName, requestKey).
		Updates(map[string]interface{}{"status": models.IdempotencyStatusSucceeded, "result_id": resultId, "last_error": nil}).Error
}

// MarkIdempotencyFailed runs outside the rolled-back transaction so the failure is kept.
func MarkIdempotencyFailed(db *gorm.DB, handlerName, requestKey string, err error) error {
	if requestKey == "" {
		return nil
	}
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	key := models.IdempotencyKey{
		HandlerName: handlerName,
		RequestKey:  requestKey,
		Status:      models.IdempotencyStatusFailed,
		LastError:   &msg,
	}
	if cerr := db.Create(&key).Error; cerr == nil || !models.IsDuplicateKeyErr(cerr) {
		return cerr
	}
	return db.Model(&models.IdempotencyKey{}).
		Where("handler_name = ? AND request_key = ? AND status <> ?", handlerName, requestKey, models.IdempotencyStatusSucceeded).
		Updates(map[string]interface{}{"status": models.IdempotencyStatusFailed, "last_error": &msg}).Error
}
