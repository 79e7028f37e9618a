package engine

import (
	"context"
	"fmt"

	"github.com/stackform-io/stackform/internal/logging"
	"github.com/stackform-io/stackform/internal/provider"
)

// Refresh re-reads every tracked resource from its provider and commits the
// observed attributes back to state. Resources the provider no longer knows
// about are pruned, so the next plan recreates them.
func (e *Engine) Refresh(ctx context.Context, store StateStore) error {
	snap := store.Snapshot()
	for _, rs := range snap.Resources {
		handler, err := e.registry.Get(rs.Kind)
		if err != nil {
			return fmt.Errorf("cannot refresh %s: %w", rs.Addr(), err)
		}

		var observed map[string]any
		err = RetryWithBackoff(ctx, e.Retry, func() error {
			opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultTimeout)
			defer cancel()
			var readErr error
			observed, readErr = handler.Read(opCtx, rs.ID)
			return readErr
		})
		if provider.IsNotFound(err) {
			logging.Info("resource gone, pruning from state", "addr", rs.Addr())
			if err := store.Remove(ctx, rs.Addr()); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("refreshing %s: %w", rs.Addr(), err)
		}

		updated := *rs
		updated.Attributes = observed
		if err := store.Commit(ctx, &updated); err != nil {
			return err
		}
	}
	return nil
}
