package config

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"time"

	"github.com/bsm/redislock"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

var (
	rdb    *redis.Client
	locker *redislock.Client
)
var ctx = context.Background()

func GetRedisDB() *redis.Client {
	return rdb
}

func GetRedisLock() *redislock.Client {
	return locker
}

// SetRedisClient installs c (and a lock client over it). Tests point this at a throwaway server.
func SetRedisClient(c *redis.Client) {
	rdb = c
	if c == nil {
		locker = nil
		return
	}
	locker = redislock.New(c)
}

func GetRedisObject(key string, dest interface{}) (bool, error) {
	if rdb == nil {
		return false, nil
	}
	val, err := rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return false, err
	}
	return true, nil
}

func SetRedisObject(key string, obj interface{}, exp time.Duration) error {
	if rdb == nil {
		return nil
	}
	objInByte, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	return rdb.Set(ctx, key, objInByte, exp).Err()
}

// RemoveRedisPattern deletes every key matching pattern using SCAN, never KEYS.
func RemoveRedisPattern(c context.Context, pattern string) (int, error) {
	if rdb == nil {
		return 0, nil
	}
	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := rdb.Scan(c, cursor, pattern, 200).Result()
		if err != nil {
			return removed, err
		}
		if len(keys) > 0 {
			n, err := rdb.Del(c, keys...).Result()
			if err != nil {
				return removed, err
			}
			removed += int(n)
		}
		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

func init() {
	// Load env from .env
	godotenv.Load()
}

// ConnectRedisWithRetry connects and sets the global Redis client + lock client.
// Call this from main() AFTER the HTTP server is listening.
func ConnectRedisWithRetry() {
	redisAddr := os.Getenv("REDIS_ADDRESS")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
		log.Printf("REDIS_ADDRESS not set; defaulting to %s", redisAddr)
	}

	var attempt int
	for {
		attempt++
		client := redis.NewClient(&redis.Options{
			Addr:     redisAddr,
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       0,
			PoolSize: 100,
		})
		if err := client.Ping(ctx).Err(); err == nil {
			SetRedisClient(client)
			log.Printf("connected to redis (attempt=%d addr=%s)", attempt, redisAddr)
			return
		} else {
			_ = client.Close()
			sleep := backoff(attempt)
			log.Printf("failed to connect redis (attempt=%d addr=%s): %v; retrying in %s", attempt, redisAddr, err, sleep)
			time.Sleep(sleep)
		}
	}
}
