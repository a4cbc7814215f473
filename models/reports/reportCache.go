package reports

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/ricemill_stock/config"
	"bitbucket.org/mmdatafocus/ricemill_stock/metrics"
	"bitbucket.org/mmdatafocus/ricemill_stock/utils"
	"github.com/sirupsen/logrus"
)

func reportSlowMs() int64 {
	// Env: REPORT_SLOW_MS (default 500ms)
	ms := int64(500)
	if v := strings.TrimSpace(os.Getenv("REPORT_SLOW_MS")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			ms = n
		}
	}
	return ms
}

func logSlowReport(ctx context.Context, name string, started time.Time, extra map[string]any) {
	d := time.Since(started)
	if d.Milliseconds() < reportSlowMs() {
		return
	}
	cid, _ := utils.GetCorrelationIdFromContext(ctx)
	config.GetLogger().WithFields(logrus.Fields{
		"report":         name,
		"ms":             d.Milliseconds(),
		"correlation_id": cid,
		"extra":          extra,
	}).Warn("slow_report")
}

// readThrough serves key from redis when the report cache is on, otherwise or on a miss it
// runs load and stores the result. Cache failures only cost a recomputation.
func readThrough[T any](key string, load func() (*T, error)) (*T, error) {
	if !config.ReportCacheEnabled() {
		return load()
	}
	var cached T
	ok, err := config.GetRedisObject(key, &cached)
	if err != nil {
		config.LogWarn(config.GetLogger(), "reports", "readThrough", "reading report cache", key)
	}
	metrics.Default().CacheLookup(ok)
	if ok {
		return &cached, nil
	}
	v, err := load()
	if err != nil {
		return nil, err
	}
	if err := config.SetRedisObject(key, v, config.ReportCacheTTL()); err != nil {
		config.LogWarn(config.GetLogger(), "reports", "readThrough", "writing report cache", key)
	}
	return v, nil
}
