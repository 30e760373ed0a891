package core

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"governa.ai/boardroom/internal/provider"
)

type ReconcileReport struct {
	Checked int `json:"checked"`
	Deleted int `json:"deleted"`
	Failed  int `json:"failed"`
}

// Reconciler removes provider files that were uploaded but never tracked.
type Reconciler struct {
	store  OrphanStore
	files  FileAPI
	logger *zap.Logger
}

func NewReconciler(store OrphanStore, files FileAPI, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{store: store, files: files, logger: logger}
}

// Sweep tries each recorded orphan once. A provider 404 counts as deleted.
// Orphans that still fail stay recorded for the next sweep.
func (r *Reconciler) Sweep(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport

	orphans, err := r.store.ListOrphans(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list orphans: %w", err)
	}

	for _, o := range orphans {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++

		err := r.files.DeleteFile(ctx, o.FileID)
		if err != nil && !provider.IsNotFound(err) {
			report.Failed++
			orphansSwept.WithLabelValues("failed").Inc()
			r.logger.Warn("orphan still present", zap.String("file_id", o.FileID), zap.Error(err))
			continue
		}
		if err := r.store.RemoveOrphan(ctx, o.FileID); err != nil {
			return report, err
		}
		report.Deleted++
		orphansSwept.WithLabelValues("deleted").Inc()
	}

	if report.Checked > 0 {
		r.logger.Info("reconciliation sweep finished",
			zap.Int("checked", report.Checked), zap.Int("deleted", report.Deleted), zap.Int("failed", report.Failed))
	}
	return report, nil
}

// Schedule runs Sweep every interval, starting immediately. Overlapping runs
// are skipped. The caller shuts the returned scheduler down.
func (r *Reconciler) Schedule(interval time.Duration) (gocron.Scheduler, error) {
	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			defer cancel()
			if _, err := r.Sweep(ctx); err != nil {
				r.logger.Error("reconciliation sweep failed", zap.Error(err))
			}
		}),
		gocron.WithName("reconcile_orphans"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		scheduler.Shutdown()
		return nil, fmt.Errorf("failed to schedule reconciliation: %w", err)
	}

	scheduler.Start()
	return scheduler, nil
}
