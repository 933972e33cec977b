package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Umairakbar1/business-backend-sub000/internal/domain"
)

func TestQueries(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{"x", "y", "z"} {
		f.addBusiness(t, id, cafes)
	}
	ctx := context.Background()

	x := f.purchase(t, "x", cafes)
	y := f.purchase(t, "y", cafes)
	f.purchase(t, "z", cafes)

	t.Run("position", func(t *testing.T) {
		pos, err := f.svc.GetQueuePosition(ctx, "z", "Cafes")
		require.NoError(t, err)
		assert.True(t, pos.InQueue)
		assert.Equal(t, 2, pos.Position)
		assert.Equal(t, 2, pos.TotalPending)
		assert.Equal(t, cafes, pos.Category)

		pos, err = f.svc.GetQueuePosition(ctx, "x", cafes)
		require.NoError(t, err)
		assert.False(t, pos.InQueue, "the active business is not queued")
	})

	t.Run("estimate", func(t *testing.T) {
		est, err := f.svc.GetEstimate(ctx, "z", cafes)
		require.NoError(t, err)
		assert.Equal(t, x.BoostEndTime.Add(boostDay), est.EstimatedStartTime)
		assert.Equal(t, x.BoostEndTime.Add(2*boostDay), est.EstimatedEndTime)
		assert.False(t, est.IsActive)

		est, err = f.svc.GetEstimate(ctx, "x", cafes)
		require.NoError(t, err)
		assert.Equal(t, *x.BoostStartTime, est.EstimatedStartTime)
		assert.Equal(t, *x.BoostEndTime, est.EstimatedEndTime)
		assert.True(t, est.IsActive)

		_, err = f.svc.GetEstimate(ctx, "nobody", cafes)
		assert.ErrorIs(t, err, domain.ErrEntryNotFound)
	})

	t.Run("active", func(t *testing.T) {
		active, err := f.svc.IsBusinessActive(ctx, "x", cafes)
		require.NoError(t, err)
		assert.True(t, active.IsActive)

		active, err = f.svc.IsBusinessActive(ctx, "y", cafes)
		require.NoError(t, err)
		assert.False(t, active.IsActive)

		active, err = f.svc.IsBusinessActive(ctx, "x", "bars")
		require.NoError(t, err)
		assert.False(t, active.IsActive)
	})

	t.Run("status", func(t *testing.T) {
		status, err := f.svc.GetQueueStatus(ctx, "y", cafes)
		require.NoError(t, err)
		assert.Equal(t, y.EntryID, status.EntryID)
		assert.Equal(t, domain.BoostPending, status.Status)
		assert.Equal(t, 1, status.Position)
		assert.Equal(t, 2, status.TotalPending)
		require.NotNil(t, status.CurrentlyActive)
		assert.Equal(t, "x", status.CurrentlyActive.BusinessID)

		_, err = f.svc.GetQueueStatus(ctx, "nobody", cafes)
		assert.ErrorIs(t, err, domain.ErrEntryNotFound)

		_, err = f.svc.GetQueueStatus(ctx, "x", "bars")
		assert.ErrorIs(t, err, domain.ErrCategoryNotFound)
	})

	t.Run("category", func(t *testing.T) {
		snapshot, err := f.svc.GetCategoryQueue(ctx, cafes)
		require.NoError(t, err)
		assert.Equal(t, 2, snapshot.PendingCount)
		assert.Len(t, snapshot.Entries, 3)
		require.NotNil(t, snapshot.NextTransitionAt)
		assert.Equal(t, *x.BoostEndTime, *snapshot.NextTransitionAt)
	})
}

func TestQueries_ReflectDueTransitionsWithoutWriting(t *testing.T) {
	f := newFixture(t)
	f.addBusiness(t, "x", cafes)
	f.addBusiness(t, "y", cafes)
	ctx := context.Background()

	f.purchase(t, "x", cafes)
	f.purchase(t, "y", cafes)
	version := f.queue(t, cafes).Version

	f.clock.Advance(boostDay + time.Minute)

	active, err := f.svc.IsBusinessActive(ctx, "y", cafes)
	require.NoError(t, err)
	assert.True(t, active.IsActive)

	status, err := f.svc.GetQueueStatus(ctx, "x", cafes)
	require.NoError(t, err)
	assert.Equal(t, domain.BoostExpired, status.Status)

	assert.Equal(t, version, f.queue(t, cafes).Version, "reads never persist")
}
