// Package events publishes finished generation jobs to RabbitMQ so other
// services can react without polling the API.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"charagen/internal/domain"
	"charagen/internal/infra"
)

// DefaultQueue receives events when no queue is configured.
const DefaultQueue = "generation_events"

const (
	publishAttempts = 3
	publishTimeout  = 10 * time.Second
	appID           = "charagen"
)

// JobFinished is the message body published for every terminal job.
type JobFinished struct {
	EventID    string           `json:"event_id"`
	UserID     string           `json:"user_id"`
	JobID      string           `json:"job_id"`
	Status     domain.JobStatus `json:"status"`
	OutputURLs []string         `json:"output_urls,omitempty"`
	Error      string           `json:"error,omitempty"`
	FinishedAt time.Time        `json:"finished_at"`
}

// Channel is the subset of *amqp.Channel the publisher needs.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends JobFinished messages to a durable queue through the
// default exchange.
type Publisher struct {
	ch     Channel
	queue  string
	logger infra.Logger
	newID  func() string
	sleep  func(context.Context, time.Duration) error
}

// Dial connects to url, declares queue and returns a publisher owning the
// connection.
func Dial(url, queue string, logger *infra.Logger) (*Publisher, *amqp.Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("events: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("events: open channel: %w", err)
	}
	queue = queueName(queue)
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("events: declare queue %s: %w", queue, err)
	}
	return NewPublisher(ch, queue, logger), conn, nil
}

// NewPublisher wraps an already configured channel.
func NewPublisher(ch Channel, queue string, logger *infra.Logger) *Publisher {
	return &Publisher{
		ch:     ch,
		queue:  queueName(queue),
		logger: infra.LoggerOrDiscard(logger),
		newID:  uuid.NewString,
		sleep:  sleepCtx,
	}
}

// Record publishes job. It satisfies generation.Recorder.
func (p *Publisher) Record(ctx context.Context, userID string, job domain.GenerationJob) error {
	if !job.Status.Terminal() {
		return fmt.Errorf("events: job %s is not terminal (%s)", job.ID, job.Status)
	}
	event := JobFinished{
		EventID:    p.newID(),
		UserID:     userID,
		JobID:      job.ID,
		Status:     job.Status,
		OutputURLs: job.OutputURLs,
		Error:      job.ErrorMessage,
		FinishedAt: time.Now().UTC(),
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("events: marshal %s: %w", job.ID, err)
	}
	return p.publish(ctx, event.EventID, body)
}

func (p *Publisher) publish(ctx context.Context, messageID string, body []byte) error {
	if p.ch == nil {
		return errors.New("events: channel not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	var err error
	for attempt := 1; attempt <= publishAttempts; attempt++ {
		err = p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    messageID,
			Timestamp:    time.Now(),
			AppId:        appID,
			Body:         body,
		})
		if err == nil {
			p.logger.Debug().Str("queue", p.queue).Str("message_id", messageID).Int("attempt", attempt).Msg("events: published")
			return nil
		}
		p.logger.Warn().Err(err).Str("queue", p.queue).Int("attempt", attempt).Msg("events: publish failed")
		if attempt == publishAttempts {
			break
		}
		if werr := p.sleep(ctx, time.Duration(attempt)*100*time.Millisecond); werr != nil {
			err = errors.Join(err, werr)
			break
		}
	}
	return fmt.Errorf("events: publish to %s: %w", p.queue, err)
}

// sleepCtx waits d or until ctx ends, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (p *Publisher) Close() error {
	if p.ch == nil {
		return nil
	}
	return p.ch.Close()
}

func queueName(q string) string {
	if q = strings.TrimSpace(q); q != "" {
		return q
	}
	return DefaultQueue
}
