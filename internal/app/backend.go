package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/procuredesk/internal/platform/cache"
	"github.com/odyssey-erp/procuredesk/internal/platform/db"
	"github.com/odyssey-erp/procuredesk/internal/platform/slot"
)

// Backend is the opened durable slot and the connections behind it.
type Backend struct {
	Slot   slot.Slot
	Redis  *redis.Client
	closer []func()
}

// OpenBackend connects the slot selected by SLOT_DRIVER. The Postgres slot
// migrates its tables on open.
func OpenBackend(ctx context.Context, cfg *Config, logger *slog.Logger) (*Backend, error) {
	b := &Backend{}
	switch cfg.SlotDriver {
	case slot.DriverRedis:
		client, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			return nil, err
		}
		b.Redis = client
		b.closer = append(b.closer, func() {
			if err := client.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		})
		b.Slot = slot.NewRedis(client, cfg.SlotPrefix)
	case slot.DriverPostgres:
		pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
		if err != nil {
			return nil, err
		}
		b.closer = append(b.closer, pool.Close)
		pg := slot.NewPostgres(pool, cfg.SlotPrefix)
		if err := pg.Migrate(ctx); err != nil {
			b.Close()
			return nil, err
		}
		b.Slot = pg
	case slot.DriverMemory:
		b.Slot = slot.NewMemory()
	default:
		return nil, fmt.Errorf("%w: %q", slot.ErrUnknownDriver, cfg.SlotDriver)
	}
	logger.Info("slot opened", slog.String("driver", cfg.SlotDriver), slog.String("prefix", cfg.SlotPrefix))
	return b, nil
}

// Close releases every connection in reverse order of opening.
func (b *Backend) Close() {
	if b == nil {
		return
	}
	for i := len(b.closer) - 1; i >= 0; i-- {
		b.closer[i]()
	}
	b.closer = nil
}
