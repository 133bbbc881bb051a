package allowlist

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"betIndexer/internal/codec"
	"betIndexer/internal/model"
)

// Redis reads contracts from a hash mapping address to an active flag ("1", "true", "active").
type Redis struct {
	client redis.Cmdable
	key    string
}

func NewRedis(client redis.Cmdable, key string) *Redis {
	return &Redis{client: client, key: key}
}

// DialRedis connects to addr and verifies the connection.
func DialRedis(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func (r *Redis) Load(ctx context.Context) ([]model.TrackedContract, error) {
	entries, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("read allowlist hash %s: %w", r.key, err)
	}

	// hash iteration order is random
	addrs := make([]string, 0, len(entries))
	for addr := range entries {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	out := make([]model.TrackedContract, 0, len(addrs))
	for _, raw := range addrs {
		addr, err := codec.ParseFelt(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid contract address %q in %s: %w", raw, r.key, err)
		}
		out = append(out, model.TrackedContract{Address: addr, Active: isActive(entries[raw])})
	}
	return out, nil
}

func isActive(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "active", "yes":
		return true
	}
	return false
}
