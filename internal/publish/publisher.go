// Package publish forwards accepted messages to an AMQP queue for
// downstream consumers.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"tg_ingest/internal/model"
)

const (
	timeLayout     = "2006-01-02T15:04:05Z"
	publishTimeout = 5 * time.Second
)

// Publisher writes accepted messages to a durable queue, one JSON
// document per message.
type Publisher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

type messagePayload struct {
	ProviderMessageID int64    `json:"provider_message_id"`
	SourceID          string   `json:"source_id"`
	SourceType        string   `json:"source_type"`
	Text              string   `json:"text"`
	Sender            string   `json:"sender,omitempty"`
	SentAt            string   `json:"sent_at"`
	IngestedAt        string   `json:"ingested_at"`
	MatchedKeywords   []string `json:"matched_keywords,omitempty"`
}

// New connects to the broker at url and declares the queue.
func New(url, queue string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if _, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false,
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	return &Publisher{conn: conn, ch: ch, queue: queue}, nil
}

// PublishMessages sends each message as its own document to the
// queue. The first failure stops the batch.
func (p *Publisher) PublishMessages(ctx context.Context, msgs []model.Message) error {
	cctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	for _, m := range msgs {
		body, err := json.Marshal(payload(m))
		if err != nil {
			return fmt.Errorf("encode message: %w", err)
		}

		err = p.ch.PublishWithContext(cctx,
			"",      // default exchange
			p.queue, // routing key = queue
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				Body:         body,
				Timestamp:    time.Now(),
			},
		)
		if err != nil {
			return fmt.Errorf("publish message %d: %w", m.ProviderMessageID, err)
		}
	}
	return nil
}

// Close shuts the channel and connection down.
func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

func payload(m model.Message) messagePayload {
	return messagePayload{
		ProviderMessageID: m.ProviderMessageID,
		SourceID:          m.SourceID,
		SourceType:        string(m.SourceType),
		Text:              m.Text,
		Sender:            m.Sender,
		SentAt:            m.SentAt.UTC().Format(timeLayout),
		IngestedAt:        m.IngestedAt.UTC().Format(timeLayout),
		MatchedKeywords:   m.MatchedKeywords,
	}
}
