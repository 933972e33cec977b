package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Umairakbar1/business-backend-sub000/internal/di"
	"github.com/Umairakbar1/business-backend-sub000/internal/domain"
	"github.com/Umairakbar1/business-backend-sub000/internal/dto"
)

// seeded returns an opener over an in-memory container with one active
// boost in cafes whose window has elapsed and one business waiting behind it
func seeded(t *testing.T) opener {
	t.Helper()
	ctx := context.Background()
	clock := domain.NewManualClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	c := di.NewContainer(&di.ContainerConfig{Clock: clock})

	for _, id := range []string{"biz-a", "biz-b"} {
		owner := "owner-" + id
		require.NoError(t, c.BusinessRepo.Upsert(ctx, &domain.Business{ID: id, OwnerID: owner}))
		co, err := c.BoostService.Checkout(ctx, owner, &dto.CheckoutRequest{BusinessID: id, Category: "cafes"})
		require.NoError(t, err)
		_, err = c.BoostService.ConfirmPurchase(ctx, owner, co.SubscriptionID)
		require.NoError(t, err)
	}
	clock.Advance(25 * time.Hour)

	return func(context.Context) (*di.Container, error) { return c, nil }
}

func TestRun_Reconcile(t *testing.T) {
	open := seeded(t)
	var out bytes.Buffer

	require.NoError(t, run(context.Background(), []string{"reconcile", "--category", "Cafes"}, &out, open))

	var summary dto.ReconcileResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &summary))
	assert.Equal(t, dto.ReconcileResponse{Categories: 1, Expired: 1, Activated: 1}, summary)
}

func TestRun_Queue(t *testing.T) {
	open := seeded(t)
	var out bytes.Buffer

	require.NoError(t, run(context.Background(), []string{"queue", "--category=cafes"}, &out, open))

	var snapshot dto.CategoryQueueResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &snapshot))
	assert.Equal(t, "cafes", snapshot.Category)
	assert.Len(t, snapshot.Entries, 2)
}

func TestRun_RetryRefunds(t *testing.T) {
	open := seeded(t)
	var out bytes.Buffer

	require.NoError(t, run(context.Background(), []string{"retry-refunds"}, &out, open))
	assert.JSONEq(t, `{"attempted":0,"succeeded":0,"failed":0}`, out.String())
}

func TestRun_Errors(t *testing.T) {
	open := seeded(t)
	var out bytes.Buffer

	assert.Error(t, run(context.Background(), nil, &out, open))
	assert.Error(t, run(context.Background(), []string{"explode"}, &out, open))
	assert.Error(t, run(context.Background(), []string{"queue"}, &out, open))
	assert.Error(t, run(context.Background(), []string{"retry-refunds", "--limit=0"}, &out, open))
	assert.Error(t, run(context.Background(), []string{"queue", "--category=bakeries"}, &out, open))
}
