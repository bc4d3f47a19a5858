// Package slot provides the durable key/value slots that mirror record
// collections: process memory, Redis, or Postgres.
package slot

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Supported drivers.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// ErrUnknownDriver is returned for an unsupported driver name.
var ErrUnknownDriver = errors.New("slot: unknown driver")

// Slot stores one encoded collection per key and can copy every key under a
// snapshot label.
type Slot interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, value []byte) error
	Snapshot(ctx context.Context, label string) (int, error)
}

// ParseDriver normalises a configured driver name.
func ParseDriver(name string) (string, error) {
	switch driver := strings.ToLower(strings.TrimSpace(name)); driver {
	case "", DriverMemory:
		return DriverMemory, nil
	case DriverRedis, DriverPostgres:
		return driver, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDriver, name)
	}
}

func requireKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("slot: empty key")
	}
	return nil
}
