package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jward/fffauto/internal/fakes"
)

// Cache computes which records of a run were not emitted by the previous
// run for the same target. Compute and Commit are separate so that a run
// only records its snapshot once its output was written.
type Cache struct {
	Snapshots SnapshotStore
	Logger    *zap.Logger
}

func (c Cache) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// Compute returns the records of current that differ from the saved
// snapshot of target. A snapshot that cannot be loaded counts as empty.
// Nothing is saved.
func (c Cache) Compute(ctx context.Context, target string, current *fakes.Set) (*fakes.Set, error) {
	logger := c.logger()

	prior, err := c.Snapshots.Load(ctx, target)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn("ignoring unreadable fake cache", zap.String("target", target), zap.Error(err))
		prior = fakes.NewSet()
	}

	diff := current.Difference(prior)
	logger.Debug("fake cache diff",
		zap.String("target", target),
		zap.Int("prior", prior.Len()),
		zap.Int("current", current.Len()),
		zap.Int("new", diff.Len()))
	return diff, nil
}

// Commit saves current as the snapshot of target, replacing the previous
// one wholesale.
func (c Cache) Commit(ctx context.Context, target string, current *fakes.Set) error {
	if err := c.Snapshots.Save(ctx, target, current); err != nil {
		return fmt.Errorf("store: saving snapshot for %s: %w", target, err)
	}
	c.logger().Debug("fake cache saved", zap.String("target", target), zap.Int("count", current.Len()))
	return nil
}
