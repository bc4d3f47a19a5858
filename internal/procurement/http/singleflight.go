package procurementhttp

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// summaryGroup coalesces concurrent summary builds over the same desk.
var summaryGroup singleflight.Group

func singleflightBuild(ctx context.Context, key string, fn func() (any, error)) (any, error) {
	resultChan := summaryGroup.DoChan(key, fn)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultChan:
		return res.Val, res.Err
	}
}
