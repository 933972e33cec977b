package metrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Umairakbar1/business-backend-sub000/internal/domain"
	"github.com/Umairakbar1/business-backend-sub000/pkg/telemetry"
)

var (
	// Transition counters
	BoostsAdmitted  *telemetry.Counter
	BoostsActivated *telemetry.Counter
	BoostsExpired   *telemetry.Counter
	BoostsCanceled  *telemetry.Counter

	// Payment counters
	RefundsIssued     *telemetry.Counter
	RefundsFailed     *telemetry.Counter
	RefundAmountTotal *telemetry.Counter

	// Error tracking counters
	ConflictRetries *telemetry.Counter
	ReconcileErrors *telemetry.Counter

	// Histograms
	ReconcileDuration *telemetry.Histogram
	QueueWaitTime     *telemetry.Histogram

	// Gauges
	ActiveSlots  *telemetry.UpDownCounter
	PendingDepth *telemetry.UpDownCounter

	initOnce sync.Once
	initErr  error
)

// Init initializes all boost metrics
func Init() error {
	initOnce.Do(func() {
		initErr = initMetrics()
	})
	return initErr
}

func initMetrics() error {
	counters := []struct {
		target **telemetry.Counter
		opts   telemetry.MetricOpts
	}{
		{&BoostsAdmitted, telemetry.MetricOpts{Name: "boost_admitted_total", Description: "Paid boosts admitted to a category queue", Unit: "1"}},
		{&BoostsActivated, telemetry.MetricOpts{Name: "boost_activated_total", Description: "Boosts that took the category slot", Unit: "1"}},
		{&BoostsExpired, telemetry.MetricOpts{Name: "boost_expired_total", Description: "Boosts whose window elapsed", Unit: "1"}},
		{&BoostsCanceled, telemetry.MetricOpts{Name: "boost_canceled_total", Description: "Boosts canceled by their owner", Unit: "1"}},
		{&RefundsIssued, telemetry.MetricOpts{Name: "boost_refunds_issued_total", Description: "Refunds or voids completed", Unit: "1"}},
		{&RefundsFailed, telemetry.MetricOpts{Name: "boost_refunds_failed_total", Description: "Refund attempts that failed at the gateway", Unit: "1"}},
		{&RefundAmountTotal, telemetry.MetricOpts{Name: "boost_refund_amount_total", Description: "Refunded amount in minor units", Unit: "{minor_unit}"}},
		{&ConflictRetries, telemetry.MetricOpts{Name: "boost_conflict_retries_total", Description: "Category mutations retried after a version conflict", Unit: "1"}},
		{&ReconcileErrors, telemetry.MetricOpts{Name: "boost_reconcile_errors_total", Description: "Category reconcile failures", Unit: "1"}},
	}
	for _, c := range counters {
		counter, err := telemetry.NewCounter(c.opts)
		if err != nil {
			return err
		}
		*c.target = counter
	}

	var err error
	ReconcileDuration, err = telemetry.NewHistogram(telemetry.MetricOpts{
		Name:        "boost_reconcile_duration_seconds",
		Description: "Duration of a full reconcile pass",
		Unit:        "s",
	})
	if err != nil {
		return err
	}

	QueueWaitTime, err = telemetry.NewHistogramWithBuckets(telemetry.MetricOpts{
		Name:        "boost_queue_wait_seconds",
		Description: "Time a boost spent pending before activation",
		Unit:        "s",
	}, []float64{0, 60, 3600, 6 * 3600, 24 * 3600, 3 * 24 * 3600, 7 * 24 * 3600})
	if err != nil {
		return err
	}

	ActiveSlots, err = telemetry.NewUpDownCounter(telemetry.MetricOpts{
		Name:        "boost_active_slots",
		Description: "Categories with an active boost",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	PendingDepth, err = telemetry.NewUpDownCounter(telemetry.MetricOpts{
		Name:        "boost_pending_entries",
		Description: "Boosts waiting in category queues",
		Unit:        "1",
	})
	return err
}

// RecordAdmission records a newly admitted boost
func RecordAdmission(ctx context.Context, category string, activated bool) {
	BoostsAdmitted.Inc(ctx, attribute.String("category", category), attribute.Bool("immediate", activated))
	if activated {
		BoostsActivated.Inc(ctx, attribute.String("category", category))
		ActiveSlots.Inc(ctx)
		QueueWaitTime.Record(ctx, 0, attribute.String("category", category))
		return
	}
	PendingDepth.Inc(ctx)
}

// RecordActivation records a pending boost taking the slot
func RecordActivation(ctx context.Context, entry *domain.QueueEntry, category string) {
	BoostsActivated.Inc(ctx, attribute.String("category", category))
	ActiveSlots.Inc(ctx)
	PendingDepth.Dec(ctx)
	if entry != nil && entry.BoostStartTime != nil {
		QueueWaitTime.Record(ctx, entry.BoostStartTime.Sub(entry.EnqueuedAt).Seconds(), attribute.String("category", category))
	}
}

// RecordExpiration records an elapsed boost
func RecordExpiration(ctx context.Context, category string) {
	BoostsExpired.Inc(ctx, attribute.String("category", category))
	ActiveSlots.Dec(ctx)
}

// RecordCancellation records a canceled boost by its status before cancellation
func RecordCancellation(ctx context.Context, category string, prev domain.BoostStatus) {
	BoostsCanceled.Inc(ctx, attribute.String("category", category), attribute.String("previous_status", string(prev)))
	if prev == domain.BoostActive {
		ActiveSlots.Dec(ctx)
	} else {
		PendingDepth.Dec(ctx)
	}
}

// RecordRefund records a completed refund or void
func RecordRefund(ctx context.Context, percent int, amount int64) {
	RefundsIssued.Inc(ctx, attribute.Int("percent", percent))
	RefundAmountTotal.Add(ctx, amount)
}

// RecordRefundFailure records a gateway failure while refunding
func RecordRefundFailure(ctx context.Context, op string) {
	RefundsFailed.Inc(ctx, attribute.String("op", op))
}

// RecordConflictRetry records a retried category mutation
func RecordConflictRetry(ctx context.Context, category string) {
	ConflictRetries.Inc(ctx, attribute.String("category", category))
}

// RecordReconcile records a reconcile pass
func RecordReconcile(ctx context.Context, durationSeconds float64, failed int) {
	ReconcileDuration.Record(ctx, durationSeconds)
	if failed > 0 {
		ReconcileErrors.Add(ctx, int64(failed))
	}
}
