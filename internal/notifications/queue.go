package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/charlesng35/accessdesk/pkg/logger"
)

// TypeDeliver is the asynq task type carrying one notification.
const TypeDeliver = "notification:deliver"

// QueueName is the asynq queue used for notification delivery.
const QueueName = "notifications"

type deliveryPayload struct {
	Recipient string  `json:"recipient"`
	Message   Message `json:"message"`
}

// Enqueuer is the subset of asynq.Client used by QueueNotifier.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueNotifier defers delivery to an asynq worker so slow channels never
// hold up an access decision.
type QueueNotifier struct {
	client   Enqueuer
	maxRetry int
	timeout  time.Duration
}

// NewQueueNotifier constructs a QueueNotifier.
func NewQueueNotifier(client Enqueuer) (*QueueNotifier, error) {
	if client == nil {
		return nil, errors.New("notifications: queue client is required")
	}
	return &QueueNotifier{client: client, maxRetry: 5, timeout: time.Minute}, nil
}

func (q *QueueNotifier) Notify(ctx context.Context, recipient string, msg Message) error {
	task, err := NewDeliveryTask(recipient, msg)
	if err != nil {
		return err
	}
	_, err = q.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueName),
		asynq.MaxRetry(q.maxRetry),
		asynq.Timeout(q.timeout),
	)
	if err != nil {
		return fmt.Errorf("notifications: enqueue: %w", err)
	}
	return nil
}

// NewDeliveryTask encodes a notification as an asynq task.
func NewDeliveryTask(recipient string, msg Message) (*asynq.Task, error) {
	if strings.TrimSpace(recipient) == "" {
		return nil, errNoRecipient
	}
	payload, err := json.Marshal(deliveryPayload{Recipient: recipient, Message: msg})
	if err != nil {
		return nil, fmt.Errorf("notifications: encode task: %w", err)
	}
	return asynq.NewTask(TypeDeliver, payload), nil
}

// NewDeliveryHandler returns the worker side handler that hands queued
// notifications to target.
func NewDeliveryHandler(target Notifier) asynq.HandlerFunc {
	log := logger.WithModule("notification_worker")
	return func(ctx context.Context, task *asynq.Task) error {
		var payload deliveryPayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			// Malformed payloads will never succeed.
			return fmt.Errorf("notifications: decode task: %v: %w", err, asynq.SkipRetry)
		}
		if err := target.Notify(ctx, payload.Recipient, payload.Message); err != nil {
			log.Warn("queued notification failed",
				zap.String("recipient", payload.Recipient),
				zap.String("kind", payload.Message.Kind),
				zap.Error(err),
			)
			return err
		}
		return nil
	}
}

// WorkerConfig configures the background delivery worker.
type WorkerConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Concurrency   int
}

// RedisOpt returns the asynq connection options for cfg.
func (cfg WorkerConfig) RedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
}

// Worker runs queued deliveries.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

// NewWorker builds a worker that delivers queued notifications to target.
func NewWorker(cfg WorkerConfig, target Notifier) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	server := asynq.NewServer(cfg.RedisOpt(), asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{QueueName: 1},
	})
	mux := asynq.NewServeMux()
	mux.Handle(TypeDeliver, NewDeliveryHandler(target))
	return &Worker{server: server, mux: mux}
}

// Start begins processing in the background.
func (w *Worker) Start() error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("notifications: start worker: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight deliveries and stops the worker.
func (w *Worker) Shutdown() {
	w.server.Shutdown()
}
