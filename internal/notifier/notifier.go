package notifier

import (
	"context"
	"time"

	"github.com/Umairakbar1/business-backend-sub000/internal/domain"
	"github.com/Umairakbar1/business-backend-sub000/pkg/logger"
)

// Notifier delivers boost events to the business owner
type Notifier interface {
	// Notify hands event off for delivery to recipient
	Notify(ctx context.Context, recipient string, event *domain.BoostEvent) error

	// Close releases the underlying transport
	Close() error
}

// Dispatcher wraps a Notifier so delivery failures are logged and never
// reach the caller. Queue state is already committed when it runs.
type Dispatcher struct {
	notifier Notifier
	timeout  time.Duration
}

// NewDispatcher creates a fire-and-forget dispatcher; nil falls back to NoOp
func NewDispatcher(n Notifier, timeout time.Duration) *Dispatcher {
	if n == nil {
		n = NewNoOpNotifier()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{notifier: n, timeout: timeout}
}

// Dispatch sends the event and logs any failure
func (d *Dispatcher) Dispatch(ctx context.Context, event *domain.BoostEvent) {
	if event == nil {
		return
	}
	// detach from the request so a finished request does not abort delivery
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	if err := d.notifier.Notify(sendCtx, event.OwnerID, event); err != nil {
		logger.Get().Warn("failed to dispatch boost notification",
			"event_type", string(event.Type),
			"category", event.Category,
			"business_id", event.BusinessID,
			"error", err,
		)
	}
}

// Close closes the wrapped notifier
func (d *Dispatcher) Close() error {
	return d.notifier.Close()
}

// NoOpNotifier drops every event
type NoOpNotifier struct{}

// NewNoOpNotifier creates a new no-op notifier
func NewNoOpNotifier() *NoOpNotifier {
	return &NoOpNotifier{}
}

// Notify is a no-op
func (n *NoOpNotifier) Notify(ctx context.Context, recipient string, event *domain.BoostEvent) error {
	return nil
}

// Close is a no-op
func (n *NoOpNotifier) Close() error {
	return nil
}
