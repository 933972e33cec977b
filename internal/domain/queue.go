package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultBoostDuration is the fixed length of an active boost window
const DefaultBoostDuration = 24 * time.Hour

// BoostStatus is the lifecycle state of a queue entry and its boost subscription
type BoostStatus string

const (
	BoostPending  BoostStatus = "pending"
	BoostActive   BoostStatus = "active"
	BoostExpired  BoostStatus = "expired"
	BoostCanceled BoostStatus = "canceled"
)

// Valid reports whether s is one of the four known states
func (s BoostStatus) Valid() bool {
	switch s {
	case BoostPending, BoostActive, BoostExpired, BoostCanceled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible
func (s BoostStatus) IsTerminal() bool {
	return s == BoostExpired || s == BoostCanceled
}

// CanTransitionTo reports whether s -> next is an allowed transition
func (s BoostStatus) CanTransitionTo(next BoostStatus) bool {
	switch s {
	case BoostPending:
		return next == BoostActive || next == BoostCanceled
	case BoostActive:
		return next == BoostExpired || next == BoostCanceled
	}
	return false
}

// QueueEntry is one business's request for the category slot
type QueueEntry struct {
	ID             string      `json:"id"`
	BusinessID     string      `json:"business_id"`
	OwnerID        string      `json:"owner_id"`
	SubscriptionID string      `json:"subscription_id"`
	Status         BoostStatus `json:"status"`
	// Position is the 1-based rank among pending entries; zero once the entry leaves the pending list
	Position           int        `json:"position"`
	EnqueuedAt         time.Time  `json:"enqueued_at"`
	BoostStartTime     *time.Time `json:"boost_start_time,omitempty"`
	BoostEndTime       *time.Time `json:"boost_end_time,omitempty"`
	EstimatedStartTime *time.Time `json:"estimated_start_time,omitempty"`
	EstimatedEndTime   *time.Time `json:"estimated_end_time,omitempty"`
	ClosedAt           *time.Time `json:"closed_at,omitempty"`
}

// NewQueueEntry creates an entry that has not yet been admitted
func NewQueueEntry(businessID, ownerID, subscriptionID string) *QueueEntry {
	return &QueueEntry{
		ID:             uuid.NewString(),
		BusinessID:     businessID,
		OwnerID:        ownerID,
		SubscriptionID: subscriptionID,
	}
}

// Validate validates the requester identity of an entry
func (e *QueueEntry) Validate() error {
	if strings.TrimSpace(e.BusinessID) == "" {
		return ErrInvalidBusinessID
	}
	if strings.TrimSpace(e.OwnerID) == "" {
		return ErrInvalidOwnerID
	}
	return nil
}

// Clone returns a deep copy
func (e *QueueEntry) Clone() *QueueEntry {
	c := *e
	c.BoostStartTime = cloneTime(e.BoostStartTime)
	c.BoostEndTime = cloneTime(e.BoostEndTime)
	c.EstimatedStartTime = cloneTime(e.EstimatedStartTime)
	c.EstimatedEndTime = cloneTime(e.EstimatedEndTime)
	c.ClosedAt = cloneTime(e.ClosedAt)
	return &c
}

func (e *QueueEntry) transition(next BoostStatus) error {
	if !e.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.Status, next)
	}
	e.Status = next
	return nil
}

func (e *QueueEntry) activate(now time.Time, duration time.Duration) error {
	if err := e.transition(BoostActive); err != nil {
		return err
	}
	start := now
	end := now.Add(duration)
	e.BoostStartTime = &start
	e.BoostEndTime = &end
	e.Position = 0
	e.EstimatedStartTime = nil
	e.EstimatedEndTime = nil
	return nil
}

func (e *QueueEntry) close(status BoostStatus, now time.Time) error {
	if err := e.transition(status); err != nil {
		return err
	}
	closed := now
	e.ClosedAt = &closed
	e.Position = 0
	e.EstimatedStartTime = nil
	e.EstimatedEndTime = nil
	return nil
}

// ActiveSlot is the single occupancy right of a category
type ActiveSlot struct {
	EntryID        string    `json:"entry_id"`
	BusinessID     string    `json:"business_id"`
	SubscriptionID string    `json:"subscription_id"`
	BoostStartTime time.Time `json:"boost_start_time"`
	BoostEndTime   time.Time `json:"boost_end_time"`
}

// CategoryQueue is the per-category FIFO of boost requests plus the active occupant.
// All methods are pure over the supplied time; callers serialize mutations per category.
type CategoryQueue struct {
	Category        string        `json:"category"`
	Entries         []*QueueEntry `json:"entries"`
	CurrentlyActive *ActiveSlot   `json:"currently_active,omitempty"`
	BoostDuration   time.Duration `json:"boost_duration"`
	Version         int64         `json:"version"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// NewCategoryQueue creates an empty queue
func NewCategoryQueue(category string, duration time.Duration, now time.Time) *CategoryQueue {
	if duration <= 0 {
		duration = DefaultBoostDuration
	}
	return &CategoryQueue{
		Category:      category,
		Entries:       []*QueueEntry{},
		BoostDuration: duration,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// NormalizeCategory canonicalizes a category key
func NormalizeCategory(category string) (string, error) {
	c := strings.ToLower(strings.TrimSpace(category))
	if c == "" {
		return "", ErrInvalidCategory
	}
	return c, nil
}

// Clone returns a deep copy
func (q *CategoryQueue) Clone() *CategoryQueue {
	c := *q
	c.Entries = make([]*QueueEntry, len(q.Entries))
	for i, e := range q.Entries {
		c.Entries[i] = e.Clone()
	}
	if q.CurrentlyActive != nil {
		slot := *q.CurrentlyActive
		c.CurrentlyActive = &slot
	}
	return &c
}

func (q *CategoryQueue) duration() time.Duration {
	if q.BoostDuration <= 0 {
		return DefaultBoostDuration
	}
	return q.BoostDuration
}

// PendingEntries returns pending entries in arrival order
func (q *CategoryQueue) PendingEntries() []*QueueEntry {
	pending := make([]*QueueEntry, 0, len(q.Entries))
	for _, e := range q.Entries {
		if e.Status == BoostPending {
			pending = append(pending, e)
		}
	}
	return pending
}

// ActiveEntry returns the entry occupying the slot, or nil
func (q *CategoryQueue) ActiveEntry() *QueueEntry {
	if q.CurrentlyActive == nil {
		return nil
	}
	return q.EntryByID(q.CurrentlyActive.EntryID)
}

// EntryByID finds an entry by its ID
func (q *CategoryQueue) EntryByID(id string) *QueueEntry {
	for _, e := range q.Entries {
		if e.ID == id {
			return e
		}
	}
	return nil
}

// EntryBySubscription finds the entry created for a subscription
func (q *CategoryQueue) EntryBySubscription(subscriptionID string) *QueueEntry {
	for _, e := range q.Entries {
		if e.SubscriptionID == subscriptionID {
			return e
		}
	}
	return nil
}

// OpenEntry returns the business's pending or active entry, or nil
func (q *CategoryQueue) OpenEntry(businessID string) *QueueEntry {
	for _, e := range q.Entries {
		if e.BusinessID == businessID && !e.Status.IsTerminal() {
			return e
		}
	}
	return nil
}

// LatestEntry returns the most recent entry of the business in any state, or nil
func (q *CategoryQueue) LatestEntry(businessID string) *QueueEntry {
	for i := len(q.Entries) - 1; i >= 0; i-- {
		if q.Entries[i].BusinessID == businessID {
			return q.Entries[i]
		}
	}
	return nil
}

// Admit places a paid entry: straight into the slot when the category is idle,
// otherwise at the tail of the pending list. The returned bool reports immediate activation.
func (q *CategoryQueue) Admit(entry *QueueEntry, now time.Time) (*QueueEntry, bool, error) {
	if err := entry.Validate(); err != nil {
		return nil, false, err
	}
	if q.OpenEntry(entry.BusinessID) != nil {
		return nil, false, ErrDuplicateEntry
	}

	if q.CurrentlyActive == nil && len(q.PendingEntries()) == 0 {
		entry.Status = BoostPending
		entry.EnqueuedAt = now
		if err := entry.activate(now, q.duration()); err != nil {
			return nil, false, err
		}
		q.Entries = append(q.Entries, entry)
		q.occupy(entry)
		q.touch(now)
		return entry, true, nil
	}

	added, err := q.AddToQueue(entry, now)
	return added, false, err
}

// AddToQueue appends entry as pending with its position and estimated window
func (q *CategoryQueue) AddToQueue(entry *QueueEntry, now time.Time) (*QueueEntry, error) {
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	if q.OpenEntry(entry.BusinessID) != nil {
		return nil, ErrDuplicateEntry
	}

	entry.Status = BoostPending
	entry.EnqueuedAt = now
	entry.BoostStartTime = nil
	entry.BoostEndTime = nil
	entry.ClosedAt = nil
	q.Entries = append(q.Entries, entry)
	q.RecomputeEstimates(now)
	q.touch(now)
	return entry, nil
}

// ActivateNext promotes the head of the pending list. It returns nil when the
// slot is occupied or nothing is pending.
func (q *CategoryQueue) ActivateNext(now time.Time) *QueueEntry {
	if q.CurrentlyActive != nil {
		return nil
	}
	pending := q.PendingEntries()
	if len(pending) == 0 {
		return nil
	}

	head := pending[0]
	if err := head.activate(now, q.duration()); err != nil {
		return nil
	}
	q.occupy(head)
	q.RecomputeEstimates(now)
	q.touch(now)
	return head
}

// ExpireCurrentBoost marks the active entry expired and frees the slot.
// It does not promote the next entry.
func (q *CategoryQueue) ExpireCurrentBoost(now time.Time) *QueueEntry {
	if q.CurrentlyActive == nil {
		return nil
	}
	active := q.ActiveEntry()
	q.CurrentlyActive = nil
	if active != nil {
		if err := active.close(BoostExpired, now); err != nil {
			active = nil
		}
	}
	q.RecomputeEstimates(now)
	q.touch(now)
	return active
}

// RemoveFromQueue cancels the business's open entry. Cancelling the active
// entry frees the slot; the caller promotes the next entry. The returned
// status is the one the entry held before cancellation.
func (q *CategoryQueue) RemoveFromQueue(businessID string, now time.Time) (*QueueEntry, BoostStatus, error) {
	entry := q.OpenEntry(businessID)
	if entry == nil {
		if q.LatestEntry(businessID) != nil {
			return nil, "", ErrAlreadyTerminal
		}
		return nil, "", ErrEntryNotFound
	}

	prev := entry.Status
	if prev == BoostActive {
		q.CurrentlyActive = nil
	}
	if err := entry.close(BoostCanceled, now); err != nil {
		return nil, "", err
	}
	q.RecomputeEstimates(now)
	q.touch(now)
	return entry, prev, nil
}

// RecomputeEstimates renumbers pending positions and projects their windows:
// the first pending entry starts when the active window ends (or now when
// the slot is free or overdue) and each later one a full duration after.
func (q *CategoryQueue) RecomputeEstimates(now time.Time) {
	cursor := now
	if q.CurrentlyActive != nil && q.CurrentlyActive.BoostEndTime.After(now) {
		cursor = q.CurrentlyActive.BoostEndTime
	}

	position := 0
	for _, e := range q.Entries {
		if e.Status != BoostPending {
			continue
		}
		position++
		start := cursor
		end := cursor.Add(q.duration())
		e.Position = position
		e.EstimatedStartTime = &start
		e.EstimatedEndTime = &end
		cursor = end
	}
}

// GetQueuePosition returns the 1-based pending position of the business
func (q *CategoryQueue) GetQueuePosition(businessID string) (int, bool) {
	position := 0
	for _, e := range q.Entries {
		if e.Status != BoostPending {
			continue
		}
		position++
		if e.BusinessID == businessID {
			return position, true
		}
	}
	return 0, false
}

// GetEstimatedStartTime returns the projected start of a pending entry, or
// the actual start of the active one
func (q *CategoryQueue) GetEstimatedStartTime(businessID string, now time.Time) (time.Time, bool) {
	entry := q.OpenEntry(businessID)
	if entry == nil {
		return time.Time{}, false
	}
	if entry.Status == BoostActive && entry.BoostStartTime != nil {
		return *entry.BoostStartTime, true
	}

	view := q.Clone()
	view.RecomputeEstimates(now)
	if e := view.EntryByID(entry.ID); e != nil && e.EstimatedStartTime != nil {
		return *e.EstimatedStartTime, true
	}
	return time.Time{}, false
}

// GetEstimatedEndTime mirrors GetEstimatedStartTime for the window end
func (q *CategoryQueue) GetEstimatedEndTime(businessID string, now time.Time) (time.Time, bool) {
	entry := q.OpenEntry(businessID)
	if entry == nil {
		return time.Time{}, false
	}
	if entry.Status == BoostActive && entry.BoostEndTime != nil {
		return *entry.BoostEndTime, true
	}

	view := q.Clone()
	view.RecomputeEstimates(now)
	if e := view.EntryByID(entry.ID); e != nil && e.EstimatedEndTime != nil {
		return *e.EstimatedEndTime, true
	}
	return time.Time{}, false
}

// IsBusinessActive reports whether the business currently holds the slot
func (q *CategoryQueue) IsBusinessActive(businessID string) bool {
	return q.CurrentlyActive != nil && q.CurrentlyActive.BusinessID == businessID
}

// ReconcileResult lists the transitions a reconcile pass performed
type ReconcileResult struct {
	Expired   *QueueEntry
	Activated *QueueEntry
}

// Changed reports whether any transition happened
func (r ReconcileResult) Changed() bool {
	return r.Expired != nil || r.Activated != nil
}

// Reconcile advances time-driven transitions: an elapsed active window
// expires and hands the slot to the head of the queue; an idle slot is
// filled by the head once its estimated start has arrived. Running it twice
// at the same instant performs no further transitions.
func (q *CategoryQueue) Reconcile(now time.Time) ReconcileResult {
	var result ReconcileResult

	if q.CurrentlyActive != nil {
		if now.Before(q.CurrentlyActive.BoostEndTime) {
			return result
		}
		result.Expired = q.ExpireCurrentBoost(now)
		result.Activated = q.ActivateNext(now)
		return result
	}

	pending := q.PendingEntries()
	if len(pending) == 0 {
		return result
	}
	head := pending[0]
	if head.EstimatedStartTime == nil || !head.EstimatedStartTime.After(now) {
		result.Activated = q.ActivateNext(now)
	}
	return result
}

// NextTransitionAt returns when the next time-driven transition is due, if any
func (q *CategoryQueue) NextTransitionAt() (time.Time, bool) {
	if q.CurrentlyActive != nil {
		return q.CurrentlyActive.BoostEndTime, true
	}
	pending := q.PendingEntries()
	if len(pending) > 0 && pending[0].EstimatedStartTime != nil {
		return *pending[0].EstimatedStartTime, true
	}
	return time.Time{}, false
}

// Validate checks the structural invariants: at most one active entry and it
// matches the slot, exact window length, one open entry per business, and
// FIFO (no pending entry enqueued before the active one).
func (q *CategoryQueue) Validate() error {
	var active *QueueEntry
	open := make(map[string]bool, len(q.Entries))

	for i, e := range q.Entries {
		if !e.Status.Valid() {
			return fmt.Errorf("%w: entry %s has unknown status %q", ErrInvariantViolation, e.ID, e.Status)
		}
		if !e.Status.IsTerminal() {
			if open[e.BusinessID] {
				return fmt.Errorf("%w: business %s has more than one open entry", ErrInvariantViolation, e.BusinessID)
			}
			open[e.BusinessID] = true
		}
		if e.Status != BoostActive {
			continue
		}
		if active != nil {
			return fmt.Errorf("%w: more than one active entry", ErrInvariantViolation)
		}
		active = e
		if e.BoostStartTime == nil || e.BoostEndTime == nil || e.BoostEndTime.Sub(*e.BoostStartTime) != q.duration() {
			return fmt.Errorf("%w: entry %s window is not exactly %s", ErrInvariantViolation, e.ID, q.duration())
		}
		for _, earlier := range q.Entries[:i] {
			if earlier.Status == BoostPending {
				return fmt.Errorf("%w: entry %s active ahead of earlier pending entry %s", ErrInvariantViolation, e.ID, earlier.ID)
			}
		}
	}

	switch {
	case active == nil && q.CurrentlyActive != nil:
		return fmt.Errorf("%w: slot points at %s but no entry is active", ErrInvariantViolation, q.CurrentlyActive.EntryID)
	case active != nil && q.CurrentlyActive == nil:
		return fmt.Errorf("%w: entry %s is active but the slot is free", ErrInvariantViolation, active.ID)
	case active != nil && (q.CurrentlyActive.EntryID != active.ID || q.CurrentlyActive.BusinessID != active.BusinessID):
		return fmt.Errorf("%w: slot does not match active entry %s", ErrInvariantViolation, active.ID)
	}
	return nil
}

func (q *CategoryQueue) occupy(e *QueueEntry) {
	q.CurrentlyActive = &ActiveSlot{
		EntryID:        e.ID,
		BusinessID:     e.BusinessID,
		SubscriptionID: e.SubscriptionID,
		BoostStartTime: *e.BoostStartTime,
		BoostEndTime:   *e.BoostEndTime,
	}
}

func (q *CategoryQueue) touch(now time.Time) {
	q.UpdatedAt = now
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
