package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/Umairakbar1/business-backend-sub000/internal/domain"
	"github.com/Umairakbar1/business-backend-sub000/pkg/logger"
)

// TypeBoostNotify is the asynq task type for owner notifications
const TypeBoostNotify = "boost:notify"

// NotifyPayload is the task payload
type NotifyPayload struct {
	Recipient string             `json:"recipient"`
	Event     *domain.BoostEvent `json:"event"`
}

// AsynqNotifier enqueues one task per event for an asynq worker to deliver
type AsynqNotifier struct {
	client *asynq.Client
	queue  string
}

// NewAsynqNotifier creates an asynq-backed notifier
func NewAsynqNotifier(redisOpt asynq.RedisClientOpt, queue string) *AsynqNotifier {
	if queue == "" {
		queue = "notifications"
	}
	return &AsynqNotifier{
		client: asynq.NewClient(redisOpt),
		queue:  queue,
	}
}

// NewNotifyTask builds the task for an event
func NewNotifyTask(recipient string, event *domain.BoostEvent) (*asynq.Task, error) {
	payload, err := json.Marshal(NotifyPayload{Recipient: recipient, Event: event})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notify payload: %w", err)
	}
	return asynq.NewTask(TypeBoostNotify, payload), nil
}

// Notify enqueues the event; the task ID is the event ID so a retried call is deduplicated
func (n *AsynqNotifier) Notify(ctx context.Context, recipient string, event *domain.BoostEvent) error {
	task, err := NewNotifyTask(recipient, event)
	if err != nil {
		return err
	}

	_, err = n.client.EnqueueContext(ctx, task,
		asynq.Queue(n.queue),
		asynq.TaskID(event.ID),
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue %s notification: %w", event.Type, err)
	}
	return nil
}

// Close closes the asynq client
func (n *AsynqNotifier) Close() error {
	return n.client.Close()
}

// Delivery sends a decoded notification to the owner's channel
type Delivery func(ctx context.Context, recipient string, event *domain.BoostEvent) error

// LogDelivery records the notification; push delivery is handled outside this service
func LogDelivery(ctx context.Context, recipient string, event *domain.BoostEvent) error {
	logger.Get().InfoContext(ctx, "boost notification delivered",
		"recipient", recipient,
		"event_type", string(event.Type),
		"category", event.Category,
		"business_id", event.BusinessID,
	)
	return nil
}

// NewNotifyHandler returns the asynq handler for TypeBoostNotify tasks
func NewNotifyHandler(deliver Delivery) asynq.HandlerFunc {
	if deliver == nil {
		deliver = LogDelivery
	}
	return func(ctx context.Context, t *asynq.Task) error {
		var p NotifyPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			// malformed payloads will never succeed
			return fmt.Errorf("decode notify payload: %v: %w", err, asynq.SkipRetry)
		}
		if p.Event == nil {
			return fmt.Errorf("notify payload has no event: %w", asynq.SkipRetry)
		}
		return deliver(ctx, p.Recipient, p.Event)
	}
}

// NewNotifyServer builds the asynq server that consumes notification tasks
func NewNotifyServer(redisOpt asynq.RedisClientOpt, queue string, concurrency int, deliver Delivery) (*asynq.Server, *asynq.ServeMux) {
	if queue == "" {
		queue = "notifications"
	}
	if concurrency <= 0 {
		concurrency = 5
	}
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queue: 1},
	})
	mux := asynq.NewServeMux()
	mux.Handle(TypeBoostNotify, NewNotifyHandler(deliver))
	return srv, mux
}
