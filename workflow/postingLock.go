package workflow

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"

	"bitbucket.org/mmdatafocus/ricemill_stock/config"
	"bitbucket.org/mmdatafocus/ricemill_stock/inventory"
	"bitbucket.org/mmdatafocus/ricemill_stock/utils"
	"gorm.io/gorm"
)

// BucketLockKey is the serialization unit for writes: one location and product type.
// Coarser than the five-dimension bucket because a brand-only balance spans sizes.
func BucketLockKey(catalog *inventory.Catalog, location, productType string) string {
	return inventory.NormalizeLocationCode(location) + "|" + inventory.NormalizeText(catalog.ProductType(productType))
}

// MySQL caps lock names at 64 characters.
func advisoryLockName(key string) string {
	sum := sha1.Sum([]byte(key))
	return "stock:" + hex.EncodeToString(sum[:])
}

// AcquireBucketLocks takes MySQL advisory locks on every key in sorted order.
// NOTE: GET_LOCK is connection-scoped, so conn must be the pinned connection the transaction runs on.
func AcquireBucketLocks(conn *gorm.DB, keys []string) ([]string, error) {
	keys = utils.UniqueSlice(keys)
	sort.Strings(keys)
	timeout := int(config.BucketLockTimeout().Seconds())
	held := make([]string, 0, len(keys))
	for _, key := range keys {
		var ok *int
		if err := conn.Raw("SELECT GET_LOCK(?, ?)", advisoryLockName(key), timeout).Scan(&ok).Error; err != nil {
			ReleaseBucketLocks(conn, held)
			return nil, &inventory.DatabaseError{Op: "acquire bucket lock", Err: err}
		}
		if ok == nil || *ok != 1 {
			ReleaseBucketLocks(conn, held)
			return nil, &inventory.DatabaseError{Op: "acquire bucket lock", Err: fmt.Errorf("timed out waiting for lock on %s", key)}
		}
		held = append(held, key)
	}
	return held, nil
}

func ReleaseBucketLocks(conn *gorm.DB, keys []string) {
	for i := len(keys) - 1; i >= 0; i-- {
		var _ok *int
		_ = conn.Raw("SELECT RELEASE_LOCK(?)", advisoryLockName(keys[i])).Scan(&_ok).Error
	}
}

// withBucketLocks runs fn in one transaction while holding the redis lock (best effort) and the
// advisory locks for keys. The advisory locks are released only after commit so the next writer's
// snapshot includes this write.
func withBucketLocks(ctx context.Context, keys []string, funcName string, fn func(tx *gorm.DB) error) error {
	release, err := utils.BucketLock(ctx, keys, moduleName, funcName)
	if err != nil {
		return &inventory.DatabaseError{Op: "acquire bucket lock", Err: err}
	}
	defer release()

	db := config.GetDB()
	return db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		held, err := AcquireBucketLocks(conn, keys)
		if err != nil {
			return err
		}
		defer ReleaseBucketLocks(conn, held)
		return conn.Transaction(fn)
	})
}
