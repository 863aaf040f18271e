package persist

import (
	"context"
	"fmt"

	"Storefront/internal/config"
)

// Open builds the bridge selected by cfg.BridgeDriver.
func Open(ctx context.Context, cfg config.Storefront) (Bridge, error) {
	switch cfg.BridgeDriver {
	case "", "memory":
		return NewMemBridge(), nil
	case "sqlite":
		return OpenSQLite(cfg.SQLitePath)
	case "redis":
		return ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	case "postgres":
		return ConnectPostgres(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown bridge driver %q", cfg.BridgeDriver)
	}
}
