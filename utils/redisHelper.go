package utils

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/ricemill_stock/config"
	"github.com/bsm/redislock"
)

const ReportCachePrefix = "report:"

// ReportCacheKey joins parts under the report prefix; empty parts become "-".
func ReportCacheKey(kind string, parts ...string) string {
	var b strings.Builder
	b.WriteString(ReportCachePrefix)
	b.WriteString(kind)
	for _, p := range parts {
		b.WriteByte(':')
		if p == "" {
			p = "-"
		}
		b.WriteString(strings.ToUpper(strings.TrimSpace(p)))
	}
	return b.String()
}

// ClearReportCache drops every cached report. Call after a ledger write commits.
func ClearReportCache(ctx context.Context, moduleName string, functionName string) {
	if _, err := config.RemoveRedisPattern(ctx, ReportCachePrefix+"*"); err != nil {
		config.LogError(config.GetLogger(), moduleName, functionName, "clearing report cache", nil, err)
	}
}

// BucketLock takes a redis lock per key, in sorted order, and returns a release func.
// Without redis it is a no-op; the MySQL advisory lock taken inside the transaction is the one
// that serializes writers.
func BucketLock(ctx context.Context, keys []string, moduleName string, functionName string) (func(), error) {
	logger := config.GetLogger()
	locker := config.GetRedisLock()
	if locker == nil {
		return func() {}, nil
	}
	keys = UniqueSlice(keys)
	sort.Strings(keys)

	ttl := config.BucketLockTimeout()
	opts := &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), int(ttl/(100*time.Millisecond))),
	}
	held := make([]*redislock.Lock, 0, len(keys))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			_ = held[i].Release(context.Background())
		}
	}
	for _, key := range keys {
		lock, err := locker.Obtain(ctx, "stock:"+key, ttl, opts)
		if errors.Is(err, redislock.ErrNotObtained) {
			config.LogError(logger, moduleName, functionName, "Could not obtain bucket lock", key, err)
			release()
			return nil, errors.New("could not obtain lock for " + key)
		} else if err != nil {
			// redis unreachable: fall back to the advisory lock alone
			config.LogError(logger, moduleName, functionName, "Error obtaining bucket lock", key, err)
			continue
		}
		held = append(held, lock)
	}
	return release, nil
}
