package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

func envBool(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// AutoApproveMovements records new movements directly as approved instead of pending.
//
// Set via env:
// - AUTO_APPROVE_MOVEMENTS=true
func AutoApproveMovements() bool {
	return envBool("AUTO_APPROVE_MOVEMENTS")
}

// ReportCacheEnabled turns on the redis read-through cache for report endpoints.
// Validation never reads through it.
//
// Set via env:
// - ENABLE_REPORT_CACHE=true
func ReportCacheEnabled() bool {
	return envBool("ENABLE_REPORT_CACHE")
}

// ReportCacheTTL defaults to 120s.
//
// Set via env:
// - REPORT_CACHE_TTL_SECONDS=300
func ReportCacheTTL() time.Duration {
	return secondsFromEnv("REPORT_CACHE_TTL_SECONDS", 120)
}

// BucketLockTimeout bounds how long a write waits for its bucket locks. Default 30s.
//
// Set via env:
// - BUCKET_LOCK_TIMEOUT_SECONDS=10
func BucketLockTimeout() time.Duration {
	return secondsFromEnv("BUCKET_LOCK_TIMEOUT_SECONDS", 30)
}

func secondsFromEnv(key string, def int) time.Duration {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil || n <= 0 {
		n = def
	}
	return time.Duration(n) * time.Second
}
