package services

import (
	"context"
	"errors"
	"time"

	"github.com/kendall-kelly/repairshop-api/workflow"
	"go.uber.org/zap"
)

// SnapshotReconciler keeps cached snapshots in line with the database, both
// periodically and whenever the change feed reports a write.
type SnapshotReconciler struct {
	cache  SnapshotCache
	repo   *OrderRepository
	logger *zap.Logger
}

func NewSnapshotReconciler(cache SnapshotCache, repo *OrderRepository, logger *zap.Logger) *SnapshotReconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotReconciler{cache: cache, repo: repo, logger: logger}
}

// ReconcileAll refreshes every cached order and returns how many snapshots
// were replaced. Orders that no longer exist are evicted.
func (r *SnapshotReconciler) ReconcileAll(ctx context.Context) (int, error) {
	ids, err := r.cache.IDs(ctx)
	if err != nil {
		return 0, err
	}
	replaced := 0
	for _, id := range ids {
		ok, err := r.reconcile(ctx, id)
		if err != nil {
			r.logger.Warn("Failed to reconcile snapshot", zap.String("order_id", id), zap.Error(err))
			continue
		}
		if ok {
			replaced++
		}
	}
	return replaced, nil
}

func (r *SnapshotReconciler) reconcile(ctx context.Context, id string) (bool, error) {
	fresh, err := r.repo.GetOrder(ctx, id)
	if errors.Is(err, workflow.ErrNotFound) {
		return false, r.cache.Delete(ctx, id)
	}
	if err != nil {
		return false, err
	}
	return ReconcileSnapshot(ctx, r.cache, fresh)
}

// Job adapts ReconcileAll for the scheduler.
func (r *SnapshotReconciler) Job(timeout time.Duration) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		n, err := r.ReconcileAll(ctx)
		if err != nil {
			r.logger.Error("Snapshot reconciliation failed", zap.Error(err))
			return
		}
		if n > 0 {
			r.logger.Info("Reconciled order snapshots", zap.Int("replaced", n))
		}
	}
}

// Watch reconciles cached orders as changes arrive, until ctx is done.
func (r *SnapshotReconciler) Watch(ctx context.Context, feed ChangeFeed) {
	changes, unsubscribe := feed.Subscribe("")
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			cached, found, err := r.cache.Get(ctx, change.OrderID)
			if err != nil || !found || cached.UpdatedAt.Equal(change.UpdatedAt) {
				continue
			}
			if _, err := r.reconcile(ctx, change.OrderID); err != nil {
				r.logger.Warn("Failed to reconcile snapshot", zap.String("order_id", change.OrderID), zap.Error(err))
			}
		}
	}
}
