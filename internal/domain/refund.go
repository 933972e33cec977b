package domain

import (
	"sort"
	"time"
)

// RefundTier refunds Percent of the amount paid when usage is strictly below Below
type RefundTier struct {
	Below   float64 `json:"below"`
	Percent int     `json:"percent"`
}

// RefundPolicy maps the elapsed fraction of an active boost to a refund percentage.
// Usage at or beyond the last tier refunds nothing.
type RefundPolicy struct {
	Tiers []RefundTier
}

// DefaultRefundPolicy refunds 50% below half usage, 25% below three quarters, nothing after
func DefaultRefundPolicy() RefundPolicy {
	return RefundPolicy{Tiers: []RefundTier{
		{Below: 0.5, Percent: 50},
		{Below: 0.75, Percent: 25},
	}}
}

// NewRefundPolicy sorts tiers by threshold; an empty table falls back to the default
func NewRefundPolicy(tiers []RefundTier) RefundPolicy {
	if len(tiers) == 0 {
		return DefaultRefundPolicy()
	}
	sorted := append([]RefundTier(nil), tiers...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Below < sorted[j].Below })
	return RefundPolicy{Tiers: sorted}
}

// PercentFor returns the refund percentage for a usage fraction in [0,1]
func (p RefundPolicy) PercentFor(usage float64) int {
	for _, tier := range p.Tiers {
		if usage < tier.Below {
			return tier.Percent
		}
	}
	return 0
}

// RefundQuote is the refund owed for cancelling an entry
type RefundQuote struct {
	EntryStatus   BoostStatus `json:"entry_status"`
	UsageFraction float64     `json:"usage_fraction"`
	Percent       int         `json:"percent"`
	Amount        int64       `json:"amount"`
	Currency      string      `json:"currency"`
}

// IsRefund reports whether any money is owed
func (r RefundQuote) IsRefund() bool {
	return r.Amount > 0
}

// UsageFraction is the clamped elapsed share of an active window
func UsageFraction(start, end, now time.Time) float64 {
	window := end.Sub(start)
	if window <= 0 {
		return 1
	}
	f := float64(now.Sub(start)) / float64(window)
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

// CalculateRefund prices the cancellation of entry at now. Pending entries are
// refunded in full; active entries follow the tier table; terminal entries
// return ErrAlreadyTerminal with a zero quote.
func CalculateRefund(entry *QueueEntry, amountPaid int64, currency string, now time.Time, policy RefundPolicy) (RefundQuote, error) {
	quote := RefundQuote{EntryStatus: entry.Status, Currency: currency}

	switch entry.Status {
	case BoostPending:
		quote.Percent = 100
	case BoostActive:
		if entry.BoostStartTime == nil || entry.BoostEndTime == nil {
			return quote, ErrInvalidTransition
		}
		quote.UsageFraction = UsageFraction(*entry.BoostStartTime, *entry.BoostEndTime, now)
		quote.Percent = policy.PercentFor(quote.UsageFraction)
	default:
		return quote, ErrAlreadyTerminal
	}

	if amountPaid > 0 {
		quote.Amount = amountPaid * int64(quote.Percent) / 100
	}
	return quote, nil
}
