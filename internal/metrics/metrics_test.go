package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Umairakbar1/business-backend-sub000/internal/domain"
)

func TestInit_Idempotent(t *testing.T) {
	require.NoError(t, Init())
	require.NoError(t, Init())
	assert.NotNil(t, BoostsAdmitted)
	assert.NotNil(t, ReconcileDuration)
	assert.NotNil(t, PendingDepth)
}

func TestRecorders(t *testing.T) {
	require.NoError(t, Init())
	ctx := context.Background()

	start := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	entry := domain.NewQueueEntry("b", "o", "s")
	entry.EnqueuedAt = start.Add(-time.Hour)
	entry.BoostStartTime = &start

	assert.NotPanics(t, func() {
		RecordAdmission(ctx, "cafes", true)
		RecordAdmission(ctx, "cafes", false)
		RecordActivation(ctx, entry, "cafes")
		RecordActivation(ctx, nil, "cafes")
		RecordExpiration(ctx, "cafes")
		RecordCancellation(ctx, "cafes", domain.BoostActive)
		RecordCancellation(ctx, "cafes", domain.BoostPending)
		RecordRefund(ctx, 50, 1500)
		RecordRefundFailure(ctx, "refund")
		RecordConflictRetry(ctx, "cafes")
		RecordReconcile(ctx, 0.25, 2)
	})
}
