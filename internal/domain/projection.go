package domain

import (
	"sort"
	"time"
)

// ProjectSubscription rebuilds the subscription's derived status and queue
// snapshot from its authoritative entry
func ProjectSubscription(sub *Subscription, entry *QueueEntry, category string, now time.Time) {
	sub.Status = entry.Status
	sub.UpdatedAt = now

	info := &BoostQueueInfo{
		QueueID:  entry.ID,
		Category: category,
	}
	switch entry.Status {
	case BoostPending:
		info.QueuePosition = entry.Position
		info.EstimatedStartTime = cloneTime(entry.EstimatedStartTime)
		info.EstimatedEndTime = cloneTime(entry.EstimatedEndTime)
	case BoostActive:
		info.IsCurrentlyActive = true
		info.BoostStartTime = cloneTime(entry.BoostStartTime)
		info.BoostEndTime = cloneTime(entry.BoostEndTime)
	default:
		info.BoostStartTime = cloneTime(entry.BoostStartTime)
		info.BoostEndTime = cloneTime(entry.BoostEndTime)
	}
	sub.BoostQueueInfo = info
}

// ProjectBusiness sets or clears the business boost flags for the category
// the entry belongs to. Clearing leaves flags owned by another category
// untouched; callers restore a boost the business still holds elsewhere with
// RestoreBusinessBoost.
func ProjectBusiness(biz *Business, entry *QueueEntry, category string, now time.Time) {
	switch entry.Status {
	case BoostActive:
		biz.IsBoosted = true
		biz.IsBoostActive = true
		biz.BoostCategory = category
		biz.BoostExpiryAt = cloneTime(entry.BoostEndTime)
	case BoostPending:
		// queued businesses are not boosted yet
		return
	default:
		if biz.BoostCategory != "" && biz.BoostCategory != category {
			return
		}
		biz.IsBoosted = false
		biz.IsBoostActive = false
		biz.BoostCategory = ""
		biz.BoostExpiryAt = nil
	}
	biz.UpdatedAt = now
}

// RestoreBusinessBoost points cleared boost flags at a slot the business still
// occupies in another category. slots maps category to the business's active
// slot; windows already over at now are ignored and the latest ending one
// wins. It reports whether a boost was restored.
func RestoreBusinessBoost(biz *Business, slots map[string]*ActiveSlot, now time.Time) bool {
	categories := make([]string, 0, len(slots))
	for category, slot := range slots {
		if slot == nil || slot.BusinessID != biz.ID || !slot.BoostEndTime.After(now) {
			continue
		}
		categories = append(categories, category)
	}
	if len(categories) == 0 {
		return false
	}
	sort.Slice(categories, func(i, j int) bool {
		a, b := slots[categories[i]], slots[categories[j]]
		if !a.BoostEndTime.Equal(b.BoostEndTime) {
			return a.BoostEndTime.After(b.BoostEndTime)
		}
		return categories[i] < categories[j]
	})

	slot := slots[categories[0]]
	end := slot.BoostEndTime
	biz.IsBoosted = true
	biz.IsBoostActive = true
	biz.BoostCategory = categories[0]
	biz.BoostExpiryAt = &end
	biz.UpdatedAt = now
	return true
}
