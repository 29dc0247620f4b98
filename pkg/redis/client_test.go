package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/pkg/config"
)

func TestIsNilError(t *testing.T) {
	if !IsNilError(Nil) {
		t.Error("IsNilError(Nil) = false")
	}
	if IsNilError(context.Canceled) {
		t.Error("IsNilError(context.Canceled) = true")
	}
}

func TestClientAgainstServer(t *testing.T) {
	addr := os.Getenv("ITS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("ITS_TEST_REDIS_ADDR not set")
	}
	c, err := NewClient(config.RedisConfig{Addr: addr, PoolSize: 2})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "its-test:a", []byte("1"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, err := c.Get(ctx, "its-test:a"); err != nil || v != "1" {
		t.Fatalf("Get = %q, %v", v, err)
	}
	n, err := c.FlushByPattern(ctx, "its-test:*")
	if err != nil || n < 1 {
		t.Fatalf("FlushByPattern = %d, %v", n, err)
	}
	if _, err := c.Get(ctx, "its-test:a"); !IsNilError(err) {
		t.Errorf("Get after flush error = %v, want Nil", err)
	}
}
