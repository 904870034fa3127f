package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/voxloop/feedback-platform/pkg/logging"
)

// Deliverer drains the outbox: it polls for pending messages and hands each
// to the transport matching its topic. Failed messages stay pending and are
// retried on the next pass.
type Deliverer struct {
	outbox    *OutboxStore
	email     EmailSender
	queue     QueuePublisher
	logger    *logging.Logger
	interval  time.Duration
	batchSize int
}

// DelivererParams collects Deliverer dependencies.
type DelivererParams struct {
	Outbox    *OutboxStore
	Email     EmailSender
	Queue     QueuePublisher
	Logger    *logging.Logger
	Interval  time.Duration
	BatchSize int
}

// NewDeliverer creates an outbox deliverer.
func NewDeliverer(p DelivererParams) *Deliverer {
	if p.Outbox == nil {
		panic("notify: outbox required")
	}
	if p.Logger == nil {
		p.Logger = logging.Default()
	}
	if p.Interval <= 0 {
		p.Interval = 2 * time.Second
	}
	if p.BatchSize <= 0 {
		p.BatchSize = 25
	}
	return &Deliverer{
		outbox:    p.Outbox,
		email:     p.Email,
		queue:     p.Queue,
		logger:    p.Logger.WithComponent("outbox_deliverer"),
		interval:  p.Interval,
		batchSize: p.BatchSize,
	}
}

// Start blocks, draining the outbox every interval until ctx is canceled.
func (d *Deliverer) Start(ctx context.Context) {
	d.logger.Info("outbox deliverer started", "interval", d.interval.String())
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("outbox deliverer stopping")
			return
		case <-ticker.C:
			if _, err := d.DeliverPending(ctx); err != nil {
				d.logger.Error("outbox pass failed", "error", err)
			}
		}
	}
}

// DeliverPending processes one batch and returns how many messages were
// delivered. Per-message failures are recorded and skipped.
func (d *Deliverer) DeliverPending(ctx context.Context) (int, error) {
	msgs, err := d.outbox.FetchPending(ctx, d.batchSize)
	if err != nil {
		return 0, err
	}
	delivered := 0
	for _, msg := range msgs {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}
		if err := d.deliver(ctx, msg); err != nil {
			d.logger.Error("delivery failed",
				"message_id", msg.ID, "topic", msg.Topic, "attempts", msg.Attempts+1, "error", err)
			if markErr := d.outbox.MarkFailed(ctx, msg.ID, err.Error()); markErr != nil {
				d.logger.Error("marking failure failed", "message_id", msg.ID, "error", markErr)
			}
			continue
		}
		if err := d.outbox.MarkDelivered(ctx, msg.ID); err != nil {
			d.logger.Error("marking delivery failed", "message_id", msg.ID, "error", err)
			continue
		}
		delivered++
	}
	return delivered, nil
}

func (d *Deliverer) deliver(ctx context.Context, msg Message) error {
	switch msg.Topic {
	case TopicEmail:
		if d.email == nil {
			return fmt.Errorf("notify: no email sender configured")
		}
		var email EmailMessage
		if err := json.Unmarshal(msg.Payload, &email); err != nil {
			return fmt.Errorf("notify: decode email payload: %w", err)
		}
		return d.email.Send(ctx, email)
	case TopicQueue:
		if d.queue == nil {
			return fmt.Errorf("notify: no queue publisher configured")
		}
		return d.queue.Publish(ctx, msg.Payload)
	default:
		return fmt.Errorf("notify: unknown outbox topic %q", msg.Topic)
	}
}
