package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/community-events/internal/config"
)

// Bindings are the routing key patterns the notifications queue receives.
var Bindings = []string{"registration.*", "event.*"}

// errMalformed marks deliveries that can never be processed.
var errMalformed = errors.New("malformed job")

// Consumer drains the notifications queue into a Notifier.
type Consumer struct {
	cfg      config.AMQPConfig
	notifier Notifier
	log      *zap.Logger
}

func NewConsumer(cfg config.AMQPConfig, n Notifier, log *zap.Logger) *Consumer {
	return &Consumer{cfg: cfg, notifier: n, log: log}
}

// Run connects to RabbitMQ, declares the exchange and durable queue and
// consumes until ctx is cancelled.  Broker failures are retried with
// exponential backoff capped at 30s; Run returns nil on cancellation.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return nil
		}
		conn, err := amqp.Dial(c.cfg.URL)
		if err != nil {
			c.log.Warn("notification consumer: dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return nil
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		c.log.Warn("notification consumer: consume loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return nil
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		c.log.Warn("notification consumer: set QoS failed", zap.Error(err))
	}
	if err := ch.ExchangeDeclare(c.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("exchange declare: %w", err)
	}
	q, err := ch.QueueDeclare(c.cfg.Queue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	for _, key := range Bindings {
		if err := ch.QueueBind(q.Name, key, c.cfg.Exchange, false, nil); err != nil {
			return fmt.Errorf("queue bind %s: %w", key, err)
		}
	}
	msgs, err := ch.ConsumeWithContext(ctx, q.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	c.log.Info("notification consumer: consuming", zap.String("queue", q.Name))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.handleDelivery(ctx, d)
		}
	}
}

// handleDelivery acks processed jobs.  Malformed jobs are rejected outright;
// a failed notification is requeued once and dropped on redelivery.
func (c *Consumer) handleDelivery(ctx context.Context, d amqp.Delivery) {
	err := c.Handle(ctx, d.RoutingKey, d.Body)
	if err == nil {
		_ = d.Ack(false)
		return
	}
	requeue := !errors.Is(err, errMalformed) && !d.Redelivered
	c.log.Error("notification consumer: handle failed",
		zap.String("routing_key", d.RoutingKey), zap.Bool("requeue", requeue), zap.Error(err))
	_ = d.Nack(false, requeue)
}

// Handle decodes one job and passes it to the notifier.  Unknown job types
// are skipped.
func (c *Consumer) Handle(ctx context.Context, jobType string, body []byte) error {
	n, err := Decode(jobType, body)
	if err != nil {
		return err
	}
	if n == nil {
		c.log.Debug("notification consumer: skip unknown job", zap.String("job_type", jobType))
		return nil
	}
	return c.notifier.Notify(ctx, *n)
}

// Decode turns a job body into a Notification.  It returns nil for job
// types it does not know.
func Decode(jobType string, body []byte) (*Notification, error) {
	switch jobType {
	case JobRegistrationConfirmed, JobRegistrationPending, JobRegistrationCancelled, JobStatusChanged:
		var j RegistrationJob
		if err := json.Unmarshal(body, &j); err != nil {
			return nil, fmt.Errorf("%w: %v", errMalformed, err)
		}
		return &Notification{
			Type:    jobType,
			UserID:  j.UserID,
			EventID: j.EventID,
			At:      j.OccurredAt,
			Text:    registrationText(jobType, j),
		}, nil
	case JobEventReminder, JobEventCancelled:
		var j EventJob
		if err := json.Unmarshal(body, &j); err != nil {
			return nil, fmt.Errorf("%w: %v", errMalformed, err)
		}
		return &Notification{
			Type:    jobType,
			UserID:  j.UserID,
			EventID: j.EventID,
			At:      j.OccurredAt,
			Text:    eventText(jobType, j),
		}, nil
	}
	return nil, nil
}

func registrationText(jobType string, j RegistrationJob) string {
	starts := j.StartsAt.UTC().Format(time.RFC3339)
	switch jobType {
	case JobRegistrationConfirmed:
		return fmt.Sprintf("Registration confirmed for %q starting %s", j.EventTitle, starts)
	case JobRegistrationPending:
		return fmt.Sprintf("Registration received for %q, awaiting confirmation", j.EventTitle)
	case JobRegistrationCancelled:
		return fmt.Sprintf("Registration for %q cancelled", j.EventTitle)
	}
	return fmt.Sprintf("Registration for %q is now %s", j.EventTitle, j.Status)
}

func eventText(jobType string, j EventJob) string {
	if jobType == JobEventCancelled {
		return fmt.Sprintf("Event %q has been cancelled", j.EventTitle)
	}
	return fmt.Sprintf("Reminder: %q starts %s", j.EventTitle, j.StartsAt.UTC().Format(time.RFC3339))
}

// sleep waits for d or until ctx is done, reporting whether d elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
