package service

import (
	"context"
	"time"

	"github.com/golang/glog"

	"Community_Sync/internal/repository/mysql"
)

// MemberCountRepo is what the reconciler needs from storage.
type MemberCountRepo interface {
	ReconcileList(ctx context.Context, batchSize int, lastID string) ([]mysql.CountPair, string, error)
	RealMembers(ctx context.Context, communityID string) (int64, error)
	FixMemberCount(ctx context.Context, communityID string, n int64) error
}

// MemberCountReconciler recounts snippets per community and repairs
// numberOfMembers where it drifted.
type MemberCountReconciler struct {
	repo      MemberCountRepo
	batchSize int
	interval  time.Duration
}

func NewMemberCountReconciler(repo MemberCountRepo, batchSize int, interval time.Duration) *MemberCountReconciler {
	if batchSize <= 0 {
		batchSize = 500
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &MemberCountReconciler{repo: repo, batchSize: batchSize, interval: interval}
}

func (r *MemberCountReconciler) ReconcilerRun(ctx context.Context) {
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := r.reconcileOnce(ctx); err != nil {
				glog.Errorf("reconcile: %v", err)
			}
		}
	}
}

// reconcileOnce walks every community once and returns how many counters it fixed.
func (r *MemberCountReconciler) reconcileOnce(ctx context.Context) (int, error) {
	fixed := 0
	lastID := ""
	for {
		list, next, err := r.repo.ReconcileList(ctx, r.batchSize, lastID)
		if err != nil {
			return fixed, err
		}
		if len(list) == 0 {
			return fixed, nil
		}
		for _, c := range list {
			n, err := r.repo.RealMembers(ctx, c.ID)
			if err != nil {
				glog.Warningf("reconcile: count members of %s: %v", c.ID, err)
				continue
			}
			if n == c.NumberOfMembers {
				continue
			}
			if err := r.repo.FixMemberCount(ctx, c.ID, n); err != nil {
				glog.Warningf("reconcile: fix %s (%d -> %d): %v", c.ID, c.NumberOfMembers, n, err)
				continue
			}
			glog.Infof("reconcile: %s numberOfMembers %d -> %d", c.ID, c.NumberOfMembers, n)
			fixed++
		}
		if len(list) < r.batchSize || ctx.Err() != nil {
			return fixed, ctx.Err()
		}
		lastID = next
	}
}
