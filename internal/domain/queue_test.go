package domain

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newEntry(business string) *QueueEntry {
	return NewQueueEntry(business, "owner-"+business, "sub-"+business)
}

func admit(t *testing.T, q *CategoryQueue, business string, now time.Time) (*QueueEntry, bool) {
	t.Helper()
	e, activated, err := q.Admit(newEntry(business), now)
	require.NoError(t, err)
	require.NoError(t, q.Validate())
	return e, activated
}

func countActive(q *CategoryQueue) int {
	n := 0
	for _, e := range q.Entries {
		if e.Status == BoostActive {
			n++
		}
	}
	return n
}

func TestBoostStatus_Transitions(t *testing.T) {
	assert.True(t, BoostPending.CanTransitionTo(BoostActive))
	assert.True(t, BoostPending.CanTransitionTo(BoostCanceled))
	assert.True(t, BoostActive.CanTransitionTo(BoostExpired))
	assert.True(t, BoostActive.CanTransitionTo(BoostCanceled))
	assert.False(t, BoostPending.CanTransitionTo(BoostExpired))
	assert.False(t, BoostExpired.CanTransitionTo(BoostActive))
	assert.False(t, BoostCanceled.CanTransitionTo(BoostPending))
	assert.True(t, BoostExpired.IsTerminal())
	assert.False(t, BoostStatus("paused").Valid())
}

func TestAdmit_FirstOccupantActivatesImmediately(t *testing.T) {
	q := NewCategoryQueue("cafes", DefaultBoostDuration, t0)

	x, activated := admit(t, q, "x", t0)

	assert.True(t, activated)
	assert.Equal(t, BoostActive, x.Status)
	assert.Equal(t, t0, *x.BoostStartTime)
	assert.Equal(t, 24*time.Hour, x.BoostEndTime.Sub(*x.BoostStartTime))
	require.NotNil(t, q.CurrentlyActive)
	assert.Equal(t, "x", q.CurrentlyActive.BusinessID)
	assert.True(t, q.IsBusinessActive("x"))
}

func TestAdmit_SecondBusinessQueuesBehindActive(t *testing.T) {
	q := NewCategoryQueue("cafes", DefaultBoostDuration, t0)
	x, _ := admit(t, q, "x", t0)

	y, activated := admit(t, q, "y", t0.Add(time.Hour))

	assert.False(t, activated)
	assert.Equal(t, BoostPending, y.Status)
	assert.Equal(t, 1, y.Position)
	assert.Equal(t, *x.BoostEndTime, *y.EstimatedStartTime)
	assert.Equal(t, x.BoostEndTime.Add(24*time.Hour), *y.EstimatedEndTime)

	z, _ := admit(t, q, "z", t0.Add(2*time.Hour))
	assert.Equal(t, 2, z.Position)
	assert.Equal(t, *y.EstimatedEndTime, *z.EstimatedStartTime)
}

func TestAdmit_DuplicateRejectedWithoutMutation(t *testing.T) {
	q := NewCategoryQueue("cafes", DefaultBoostDuration, t0)
	admit(t, q, "x", t0)
	admit(t, q, "y", t0)
	before := q.Clone()

	_, _, err := q.Admit(newEntry("x"), t0.Add(time.Minute))
	assert.ErrorIs(t, err, ErrDuplicateEntry)
	_, _, err = q.Admit(newEntry("y"), t0.Add(time.Minute))
	assert.ErrorIs(t, err, ErrDuplicateEntry)

	if diff := cmp.Diff(before, q); diff != "" {
		t.Fatalf("queue mutated on duplicate (-before +after):\n%s", diff)
	}
}

func TestAdmit_AfterTerminalEntryCreatesNewEntry(t *testing.T) {
	q := NewCategoryQueue("cafes", DefaultBoostDuration, t0)
	first, _ := admit(t, q, "x", t0)
	q.Reconcile(t0.Add(24 * time.Hour))
	require.Equal(t, BoostExpired, first.Status)

	second, activated := admit(t, q, "x", t0.Add(25*time.Hour))
	assert.True(t, activated)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Len(t, q.Entries, 2)
}

func TestAdmit_InvalidEntry(t *testing.T) {
	q := NewCategoryQueue("cafes", DefaultBoostDuration, t0)
	_, _, err := q.Admit(NewQueueEntry("", "owner", "sub"), t0)
	assert.ErrorIs(t, err, ErrInvalidBusinessID)
	_, _, err = q.Admit(NewQueueEntry("b", "", "sub"), t0)
	assert.ErrorIs(t, err, ErrInvalidOwnerID)
}

func TestActivateNext_NoopWhenOccupiedOrEmpty(t *testing.T) {
	q := NewCategoryQueue("cafes", DefaultBoostDuration, t0)
	assert.Nil(t, q.ActivateNext(t0))

	admit(t, q, "x", t0)
	admit(t, q, "y", t0)
	assert.Nil(t, q.ActivateNext(t0.Add(time.Hour)))
	assert.Equal(t, 1, countActive(q))
}

func TestExpireCurrentBoost_DoesNotPromote(t *testing.T) {
	q := NewCategoryQueue("cafes", DefaultBoostDuration, t0)
	x, _ := admit(t, q, "x", t0)
	y, _ := admit(t, q, "y", t0)

	expired := q.ExpireCurrentBoost(t0.Add(24 * time.Hour))

	assert.Equal(t, x, expired)
	assert.Equal(t, BoostExpired, x.Status)
	assert.Nil(t, q.CurrentlyActive)
	assert.Equal(t, BoostPending, y.Status)
	assert.Nil(t, q.ExpireCurrentBoost(t0.Add(24*time.Hour)))
	require.NoError(t, q.Validate())
}

func TestReconcile_ExpiryTriggersPromotion(t *testing.T) {
	q := NewCategoryQueue("cafes", DefaultBoostDuration, t0)
	x, _ := admit(t, q, "x", t0)
	y, _ := admit(t, q, "y", t0.Add(time.Minute))

	tick := t0.Add(24*time.Hour + 30*time.Second)
	result := q.Reconcile(tick)

	assert.Equal(t, x, result.Expired)
	assert.Equal(t, y, result.Activated)
	assert.Equal(t, BoostExpired, x.Status)
	assert.Equal(t, BoostActive, y.Status)
	assert.Equal(t, tick, *y.BoostStartTime)
	assert.Equal(t, tick.Add(24*time.Hour), *y.BoostEndTime)
	assert.Equal(t, 0, y.Position)
	require.NoError(t, q.Validate())
}

func TestReconcile_Idempotent(t *testing.T) {
	q := NewCategoryQueue("cafes", DefaultBoostDuration, t0)
	admit(t, q, "x", t0)
	admit(t, q, "y", t0)
	admit(t, q, "z", t0)

	tick := t0.Add(24 * time.Hour)
	first := q.Reconcile(tick)
	require.True(t, first.Changed())
	snapshot := q.Clone()

	second := q.Reconcile(tick)
	assert.False(t, second.Changed())
	if diff := cmp.Diff(snapshot, q); diff != "" {
		t.Fatalf("second reconcile changed state:\n%s", diff)
	}
}

func TestReconcile_BeforeWindowEndsDoesNothing(t *testing.T) {
	q := NewCategoryQueue("cafes", DefaultBoostDuration, t0)
	admit(t, q, "x", t0)
	admit(t, q, "y", t0)

	result := q.Reconcile(t0.Add(23 * time.Hour))
	assert.False(t, result.Changed())
}

func TestReconcile_IdleSlotActivatesDueHead(t *testing.T) {
	q := NewCategoryQueue("cafes", DefaultBoostDuration, t0)
	admit(t, q, "x", t0)
	y, _ := admit(t, q, "y", t0)
	q.ExpireCurrentBoost(t0.Add(24 * time.Hour))
	require.Nil(t, q.CurrentlyActive)

	result := q.Reconcile(t0.Add(24*time.Hour + time.Minute))

	assert.Nil(t, result.Expired)
	assert.Equal(t, y, result.Activated)
}

func TestFIFOOrderAcrossManyExpiries(t *testing.T) {
	q := NewCategoryQueue("cafes", DefaultBoostDuration, t0)
	names := []string{"a", "b", "c", "d", "e"}
	for i, n := range names {
		admit(t, q, n, t0.Add(time.Duration(i)*time.Minute))
	}

	now := t0
	var order []string
	order = append(order, q.CurrentlyActive.BusinessID)
	for range names[1:] {
		now = q.CurrentlyActive.BoostEndTime
		r := q.Reconcile(now)
		require.NotNil(t, r.Activated)
		order = append(order, r.Activated.BusinessID)
		require.NoError(t, q.Validate())
		assert.LessOrEqual(t, countActive(q), 1)
	}
	assert.Equal(t, names, order)
}

func TestRemoveFromQueue_Pending(t *testing.T) {
	q := NewCategoryQueue("cafes", DefaultBoostDuration, t0)
	x, _ := admit(t, q, "x", t0)
	y, _ := admit(t, q, "y", t0)
	z, _ := admit(t, q, "z", t0)

	removed, prev, err := q.RemoveFromQueue("y", t0.Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, BoostPending, prev)
	assert.Equal(t, y, removed)
	assert.Equal(t, BoostCanceled, y.Status)
	assert.Equal(t, 1, z.Position)
	assert.Equal(t, *x.BoostEndTime, *z.EstimatedStartTime)
	_, ok := q.GetQueuePosition("y")
	assert.False(t, ok)
	require.NoError(t, q.Validate())
}

func TestRemoveFromQueue_ActiveFreesSlot(t *testing.T) {
	q := NewCategoryQueue("cafes", DefaultBoostDuration, t0)
	admit(t, q, "x", t0)
	y, _ := admit(t, q, "y", t0)

	_, prev, err := q.RemoveFromQueue("x", t0.Add(12*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, BoostActive, prev)
	assert.Nil(t, q.CurrentlyActive)

	next := q.ActivateNext(t0.Add(12 * time.Hour))
	assert.Equal(t, y, next)
	require.NoError(t, q.Validate())
}

func TestRemoveFromQueue_Errors(t *testing.T) {
	q := NewCategoryQueue("cafes", DefaultBoostDuration, t0)
	_, _, err := q.RemoveFromQueue("ghost", t0)
	assert.ErrorIs(t, err, ErrEntryNotFound)

	admit(t, q, "x", t0)
	_, _, err = q.RemoveFromQueue("x", t0.Add(time.Hour))
	require.NoError(t, err)
	_, _, err = q.RemoveFromQueue("x", t0.Add(2*time.Hour))
	assert.ErrorIs(t, err, ErrAlreadyTerminal)
}

func TestReadProjections(t *testing.T) {
	q := NewCategoryQueue("cafes", DefaultBoostDuration, t0)
	x, _ := admit(t, q, "x", t0)
	admit(t, q, "y", t0)

	pos, ok := q.GetQueuePosition("y")
	assert.True(t, ok)
	assert.Equal(t, 1, pos)
	_, ok = q.GetQueuePosition("x")
	assert.False(t, ok, "active entries have no queue position")

	start, ok := q.GetEstimatedStartTime("x", t0)
	assert.True(t, ok)
	assert.Equal(t, *x.BoostStartTime, start)

	start, ok = q.GetEstimatedStartTime("y", t0)
	assert.True(t, ok)
	assert.Equal(t, *x.BoostEndTime, start)

	end, ok := q.GetEstimatedEndTime("y", t0)
	assert.True(t, ok)
	assert.Equal(t, x.BoostEndTime.Add(24*time.Hour), end)

	_, ok = q.GetEstimatedStartTime("nobody", t0)
	assert.False(t, ok)
	assert.False(t, q.IsBusinessActive("y"))
}

func TestValidate_DetectsViolations(t *testing.T) {
	q := NewCategoryQueue("cafes", DefaultBoostDuration, t0)
	x, _ := admit(t, q, "x", t0)

	broken := q.Clone()
	broken.CurrentlyActive = nil
	assert.ErrorIs(t, broken.Validate(), ErrInvariantViolation)

	broken = q.Clone()
	end := x.BoostEndTime.Add(time.Hour)
	broken.Entries[0].BoostEndTime = &end
	assert.ErrorIs(t, broken.Validate(), ErrInvariantViolation)

	broken = q.Clone()
	dup := newEntry("x")
	dup.Status = BoostPending
	broken.Entries = append(broken.Entries, dup)
	assert.ErrorIs(t, broken.Validate(), ErrInvariantViolation)

	broken = q.Clone()
	second := newEntry("y")
	start, stop := t0, t0.Add(24*time.Hour)
	second.Status, second.BoostStartTime, second.BoostEndTime = BoostActive, &start, &stop
	broken.Entries = append(broken.Entries, second)
	assert.ErrorIs(t, broken.Validate(), ErrInvariantViolation)
}

func TestNextTransitionAt(t *testing.T) {
	q := NewCategoryQueue("cafes", DefaultBoostDuration, t0)
	_, ok := q.NextTransitionAt()
	assert.False(t, ok)

	x, _ := admit(t, q, "x", t0)
	at, ok := q.NextTransitionAt()
	assert.True(t, ok)
	assert.Equal(t, *x.BoostEndTime, at)
}

func TestNormalizeCategory(t *testing.T) {
	c, err := NormalizeCategory("  Restaurants ")
	require.NoError(t, err)
	assert.Equal(t, "restaurants", c)

	_, err = NormalizeCategory("   ")
	assert.ErrorIs(t, err, ErrInvalidCategory)
}

func TestEndToEnd_PurchaseQueueAndHandOff(t *testing.T) {
	clock := NewManualClock(t0)
	q := NewCategoryQueue("c", DefaultBoostDuration, clock.Now())

	x, activated := admit(t, q, "x", clock.Now())
	require.True(t, activated)
	y, activated := admit(t, q, "y", clock.Now())
	require.False(t, activated)
	require.Equal(t, 1, y.Position)
	require.Equal(t, *x.BoostEndTime, *y.EstimatedStartTime)

	clock.Advance(24 * time.Hour)
	q.Reconcile(clock.Now())

	assert.Equal(t, BoostExpired, x.Status)
	assert.Equal(t, BoostActive, y.Status)
	assert.Equal(t, clock.Now(), *y.BoostStartTime)
	assert.Equal(t, 24*time.Hour, y.BoostEndTime.Sub(*y.BoostStartTime))
}
