package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/ricemill_stock/config"
	"bitbucket.org/mmdatafocus/ricemill_stock/controllers"
	"bitbucket.org/mmdatafocus/ricemill_stock/events"
	"bitbucket.org/mmdatafocus/ricemill_stock/metrics"
	"bitbucket.org/mmdatafocus/ricemill_stock/middlewares"
	"bitbucket.org/mmdatafocus/ricemill_stock/models"
	"bitbucket.org/mmdatafocus/ricemill_stock/workflow"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

// Define a struct to represent the rate limiter.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

// readinessGate answers the startup probe and holds API traffic until MySQL is connected.
// Redis is optional: locks and the report cache degrade without it.
func readinessGate() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.URL.Path {
		case "/healthz":
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		case "/metrics":
			c.Next()
			return
		}
		if config.GetDB() == nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "database not ready"})
			return
		}
		c.Next()
	}
}

func corsConfig() cors.Config {
	cfg := cors.DefaultConfig()
	// In production, require explicit allowlist via CORS_ALLOWED_ORIGINS (comma-separated).
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			cfg.AllowOrigins = []string{}
		} else {
			cfg.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		cfg.AllowAllOrigins = true
	}
	cfg.AddAllowMethods("GET", "POST", "DELETE", "OPTIONS")
	cfg.AddAllowHeaders("Origin", "Content-Type", middlewares.HeaderUser, middlewares.HeaderCorrelationId)
	cfg.AddExposeHeaders("Content-Length", "Content-Disposition", middlewares.HeaderCorrelationId)
	return cfg
}

func newRouter(logger *logrus.Logger) *gin.Engine {
	store := models.NewLedgerStore(nil)

	r := gin.New()
	r.Use(middlewares.CorrelationMiddleware())
	r.Use(readinessGate())
	r.Use(cors.New(corsConfig()))

	// Optional rate limiting.
	// Env:
	// - RATE_LIMIT_ENABLED=true
	// - RATE_LIMIT_WINDOW_SECONDS=60
	// - RATE_LIMIT_MAX_REQUESTS=600
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		limit := int64Env("RATE_LIMIT_MAX_REQUESTS", 600)
		window := time.Duration(int64Env("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second
		r.Use(NewRateLimiter(limit, window).RateLimitMiddleware)
	}

	r.Use(middlewares.SessionMiddleware())
	r.Use(middlewares.LoaderMiddleware(store))
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	r.GET("/metrics", gin.WrapH(metrics.Default().Handler()))
	controllers.RegisterRoutes(r, controllers.NewHandler(store, workflow.Ledger{}, models.Directory{}, metrics.Default()))
	r.NoRoute(customNotFoundHandler)
	return r
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start listening before dependencies connect; the readiness gate returns 503 until then.
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: newRouter(logger),
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate runs DDL; allow running it as a separate job instead.
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	events.Connect()

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on :", port)
	log.Println("Server started successfully")

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if err := events.Close(); err != nil {
		logger.WithFields(logrus.Fields{"field": "events"}).Warn("closing publisher: " + err.Error())
	}
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

// NewRateLimiter counts requests per client IP in Redis. Without a Redis connection it lets
// everything through.
func NewRateLimiter(limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:  limit,
		window: window,
	}
}

func (rl *RateLimiter) conn() *redis.Client {
	if rl.client != nil {
		return rl.client
	}
	return config.GetRedisDB()
}

func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	client := rl.conn()
	if client == nil {
		c.Next()
		return
	}
	key := "ratelimit:" + c.ClientIP()

	count, err := client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		// Redis trouble must not take the API down.
		config.LogWarn(config.GetLogger(), "server.go", "RateLimitMiddleware", "redis incr failed: "+err.Error(), key)
		c.Next()
		return
	}
	if count == 1 {
		client.Expire(c.Request.Context(), key, rl.window)
	}

	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}

func int64Env(key string, def int64) int64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
