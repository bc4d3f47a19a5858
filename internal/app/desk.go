package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/odyssey-erp/procuredesk/internal/procurement"
	"github.com/odyssey-erp/procuredesk/internal/records"
)

// OpenDesk opens the procurement desk over slot. With SEED_DEMO the demo
// data fills collections the slot does not hold yet.
func OpenDesk(ctx context.Context, cfg *Config, slot records.Slot, logger *slog.Logger, observer records.Observer) (*procurement.Desk, error) {
	var seed *procurement.Seed
	if cfg.SeedDemo {
		seed = procurement.DemoSeed(time.Now())
	}
	return procurement.OpenDesk(ctx, procurement.DeskConfig{
		Slot:            slot,
		Seed:            seed,
		Logger:          logger,
		Observer:        observer,
		EnforceAssignee: cfg.ApprovalEnforceAssignee,
	})
}
