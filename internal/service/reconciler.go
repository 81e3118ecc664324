package service

import (
	"context"
	"slices"
	"time"

	"socialfeed/internal/middleware"
	"socialfeed/internal/models"
	"socialfeed/internal/observability"
	"socialfeed/internal/repository"
)

const reconcileBatch = 100

// ReconcileStats counts the repairs made by one pass.
type ReconcileStats struct {
	Users    int
	Dropped  int
	Relinked int
}

// Reconciler repairs users' postIds lists when a two-step write was interrupted.
type Reconciler struct {
	store    repository.Store
	interval time.Duration
}

func NewReconciler(store repository.Store, interval time.Duration) *Reconciler {
	return &Reconciler{store: store, interval: interval}
}

// Run sweeps every interval until ctx is cancelled. A zero interval disables it.
func (r *Reconciler) Run(ctx context.Context) {
	if r.interval <= 0 {
		middleware.Logger.Info("post reference reconciler disabled")
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := r.RunOnce(ctx)
			if err != nil {
				middleware.Logger.ErrorContext(ctx, "post reference reconcile failed", "error", err)
				continue
			}
			middleware.Logger.InfoContext(ctx, "post reference reconcile finished",
				"users", stats.Users, "dropped", stats.Dropped, "relinked", stats.Relinked)
		}
	}
}

// RunOnce performs a single pass over all users.
func (r *Reconciler) RunOnce(ctx context.Context) (stats ReconcileStats, err error) {
	ctx, finish := observability.StartServiceSpan(ctx, "Reconciler", "RunOnce")
	defer func() { finish(err) }()

	for offset := 0; ; offset += reconcileBatch {
		users, err := r.store.Users().List(ctx, reconcileBatch, offset)
		if err != nil {
			return stats, err
		}
		for _, u := range users {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			dropped, relinked, err := r.repair(ctx, u)
			if err != nil {
				return stats, err
			}
			stats.Users++
			stats.Dropped += dropped
			stats.Relinked += relinked
		}
		if len(users) < reconcileBatch {
			return stats, nil
		}
	}
}

// repair re-reads the listed user inside a transaction so a stale copy from the listing
// never overwrites newer data, and only rewrites post_ids.
func (r *Reconciler) repair(ctx context.Context, listed *models.User) (dropped, relinked int, err error) {
	err = r.store.InTx(ctx, func(tx repository.Store) error {
		u, err := tx.Users().FindByIDForUpdate(ctx, listed.ID)
		if err != nil {
			if models.HasCode(err, models.CodeNotFound) {
				return nil
			}
			return err
		}
		existing, err := tx.Posts().ExistingIDs(ctx, u.PostIDs)
		if err != nil {
			return err
		}
		authored, err := tx.Posts().IDsByCreator(ctx, u.ID)
		if err != nil {
			return err
		}

		kept := make([]string, 0, len(u.PostIDs))
		for _, id := range u.PostIDs {
			// Only ids that resolve to a post this user created stay linked.
			if slices.Contains(existing, id) && slices.Contains(authored, id) && !slices.Contains(kept, id) {
				kept = append(kept, id)
			} else {
				dropped++
			}
		}
		for _, id := range authored {
			if !slices.Contains(kept, id) {
				kept = append(kept, id)
				relinked++
			}
		}

		if dropped == 0 && relinked == 0 {
			return nil
		}
		return tx.Users().SetPostIDs(ctx, u.ID, kept)
	})
	if err != nil {
		return 0, 0, err
	}
	if dropped == 0 && relinked == 0 {
		return 0, 0, nil
	}

	observability.ReconcileRepairsTotal.WithLabelValues("dropped").Add(float64(dropped))
	observability.ReconcileRepairsTotal.WithLabelValues("relinked").Add(float64(relinked))
	middleware.Logger.WarnContext(ctx, "repaired post references",
		"user_id", listed.ID, "dropped", dropped, "relinked", relinked)
	return dropped, relinked, nil
}
