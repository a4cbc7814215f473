package models

import "time"

type IdempotencyStatus string

const (
	IdempotencyStatusStarted   IdempotencyStatus = "STARTED"
	IdempotencyStatusSucceeded IdempotencyStatus = "SUCCEEDED"
	IdempotencyStatusFailed    IdempotencyStatus = "FAILED"
)

// IdempotencyKey makes ledger writes safe to retry.
// Unique constraint: (handler_name, request_key). ResultId is the row the first attempt created.
type IdempotencyKey struct {
	ID          int               `gorm:"primary_key" json:"id"`
	HandlerName string            `gorm:"size:100;not null;index:uniq_idem,unique" json:"handler_name"`
	RequestKey  string            `gorm:"size:64;not null;index:uniq_idem,unique" json:"request_key"`
	Status      IdempotencyStatus `gorm:"size:20;not null;index" json:"status"`
	ResultId    int               `json:"result_id"`
	LastError   *string           `gorm:"type:text" json:"last_error"`
	CreatedAt   time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}
