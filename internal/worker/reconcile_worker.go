package worker

import (
	"context"
	"sync"
	"time"

	"github.com/Umairakbar1/business-backend-sub000/internal/dto"
	"github.com/Umairakbar1/business-backend-sub000/internal/service"
	"github.com/Umairakbar1/business-backend-sub000/pkg/logger"
)

// ReconcileWorkerConfig holds configuration for the reconcile worker
type ReconcileWorkerConfig struct {
	// Interval is the time between reconcile passes (default: 1 minute)
	Interval            time.Duration
	// RefundRetryLimit caps pending refunds retried per pass (default: 50, negative disables)
	RefundRetryLimit    int
	// RefundRetryInterval spaces refund sweeps out; zero sweeps on every pass
	RefundRetryInterval time.Duration
}

// DefaultReconcileWorkerConfig returns default configuration
func DefaultReconcileWorkerConfig() *ReconcileWorkerConfig {
	return &ReconcileWorkerConfig{
		Interval:         time.Minute,
		RefundRetryLimit: 50,
	}
}

// RefundRetrier is the slice of the boost service the worker needs
type RefundRetrier interface {
	RetryPendingRefunds(ctx context.Context, limit int) (*service.RefundRetrySummary, error)
}

// ReconcileWorker advances boost queues on a ticker and retries refunds the
// payment gateway rejected earlier
type ReconcileWorker struct {
	config     *ReconcileWorkerConfig
	reconciler service.Reconciler
	refunds    RefundRetrier
	log        *logger.Logger

	mu            sync.Mutex
	passes        int64
	totalExpired  int64
	totalActivate int64
	lastRunTime   time.Time
	lastSummary   *dto.ReconcileResponse
	lastSweep     time.Time
}

// NewReconcileWorker creates a new reconcile worker; refunds may be nil
func NewReconcileWorker(
	cfg *ReconcileWorkerConfig,
	reconciler service.Reconciler,
	refunds RefundRetrier,
	log *logger.Logger,
) *ReconcileWorker {
	if cfg == nil {
		cfg = DefaultReconcileWorkerConfig()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.RefundRetryLimit == 0 {
		cfg.RefundRetryLimit = 50
	}
	if log == nil {
		log = logger.Get()
	}

	return &ReconcileWorker{
		config:     cfg,
		reconciler: reconciler,
		refunds:    refunds,
		log:        log,
	}
}

// Start runs a pass immediately and then on every tick until ctx is done
func (w *ReconcileWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	w.log.Info("reconcile worker started", "interval", w.config.Interval.String())

	w.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			w.log.Info("reconcile worker stopping")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs one reconcile pass followed by a pending refund sweep
func (w *ReconcileWorker) RunOnce(ctx context.Context) *dto.ReconcileResponse {
	summary := w.reconciler.ReconcileAll(ctx)

	w.mu.Lock()
	w.passes++
	w.totalExpired += int64(summary.Expired)
	w.totalActivate += int64(summary.Activated)
	w.lastRunTime = time.Now()
	w.lastSummary = summary
	w.mu.Unlock()

	if summary.Expired > 0 || summary.Activated > 0 || summary.Failed > 0 {
		w.log.Info("reconcile pass finished",
			"categories", summary.Categories,
			"expired", summary.Expired,
			"activated", summary.Activated,
			"failed", summary.Failed,
			"duration", summary.Duration,
		)
	}

	w.retryRefunds(ctx)
	return summary
}

func (w *ReconcileWorker) retryRefunds(ctx context.Context) {
	if w.refunds == nil || w.config.RefundRetryLimit < 0 || ctx.Err() != nil {
		return
	}
	w.mu.Lock()
	if !w.lastSweep.IsZero() && time.Since(w.lastSweep) < w.config.RefundRetryInterval {
		w.mu.Unlock()
		return
	}
	w.lastSweep = time.Now()
	w.mu.Unlock()

	result, err := w.refunds.RetryPendingRefunds(ctx, w.config.RefundRetryLimit)
	if err != nil {
		w.log.Error("failed to retry pending refunds", "error", err)
		return
	}
	if result.Attempted > 0 {
		w.log.Info("retried pending refunds",
			"attempted", result.Attempted,
			"succeeded", result.Succeeded,
			"failed", result.Failed,
			"review", result.Review,
		)
	}
}

// WorkerMetrics is a snapshot of the worker's counters
type WorkerMetrics struct {
	Passes         int64
	TotalExpired   int64
	TotalActivated int64
	LastRunTime    time.Time
	LastSummary    *dto.ReconcileResponse
}

// GetMetrics returns current worker metrics
func (w *ReconcileWorker) GetMetrics() WorkerMetrics {
	w.mu.Lock()
	defer w.mu.Unlock()
	return WorkerMetrics{
		Passes:         w.passes,
		TotalExpired:   w.totalExpired,
		TotalActivated: w.totalActivate,
		LastRunTime:    w.lastRunTime,
		LastSummary:    w.lastSummary,
	}
}
