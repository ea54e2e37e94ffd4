package jobqueue

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/ReportFox/internal/pkg/env"
)

// testRedisDB keeps queue tests away from the application's DB 0.
const testRedisDB = 14

// newTestRedis returns a flushed client on testRedisDB, or skips the test
// when no Redis answers on CACHE_HOST, "cache" or localhost.
func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	port := env.GetEnv("CACHE_PORT", "6379")
	password := env.GetEnv("CACHE_PASSWORD", "")

	var lastErr error
	for _, host := range []string{env.GetEnv("CACHE_HOST", ""), "cache", "localhost"} {
		if host == "" {
			continue
		}
		client := redis.NewClient(&redis.Options{
			Addr:     net.JoinHostPort(host, port),
			Password: password,
			DB:       testRedisDB,
		})

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		err := client.Ping(ctx).Err()
		if err == nil {
			err = client.FlushDB(ctx).Err()
		}
		cancel()
		if err != nil {
			_ = client.Close()
			lastErr = err
			continue
		}

		t.Cleanup(func() {
			_ = client.FlushDB(context.Background()).Err()
			_ = client.Close()
		})
		return client
	}

	t.Skipf("Skipping Redis-dependent test: no reachable Redis (%v)", lastErr)
	return nil
}
