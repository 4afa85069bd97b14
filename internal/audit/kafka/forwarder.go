// Package kafka forwards audit events to a Kafka topic for downstream
// compliance consumers. The store remains the source of truth for the
// hash chain; the topic is a read-side feed.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	"heirloom/internal/audit"
	"heirloom/internal/platform/config"
)

// Forwarder produces audit events to the configured topic.
type Forwarder struct {
	client *kgo.Client
	topic  string
}

// payload is the JSON record value. Flat struct for stable field order.
type payload struct {
	Timestamp string `json:"ts"`
	UserID    string `json:"user_id,omitempty"`
	Subject   string `json:"subject"`
	Action    string `json:"action"`
	Result    string `json:"result"`
	Reason    string `json:"reason,omitempty"`
	Risk      string `json:"risk"`
	RequestID string `json:"request_id,omitempty"`
	ActorID   string `json:"actor_id,omitempty"`
}

// New connects to the brokers and ensures the audit topic exists.
// Returns nil if no brokers are configured.
func New(cfg config.KafkaConfig) (*Forwarder, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}

	admin := kadm.NewClient(client)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// Idempotent: topic-exists errors are fine.
	if _, err := admin.CreateTopic(ctx, 1, 1, nil, cfg.AuditTopic); err != nil {
		if !isAlreadyExists(err) {
			client.Close()
			return nil, fmt.Errorf("ensure audit topic: %w", err)
		}
	}

	return &Forwarder{client: client, topic: cfg.AuditTopic}, nil
}

// Forward produces one event synchronously. Callers treat failures as
// non-fatal; the worker logs and drops them.
func (f *Forwarder) Forward(ctx context.Context, event audit.Event) error {
	p := payload{
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339Nano),
		Subject:   event.Subject,
		Action:    event.Action,
		Result:    event.Result,
		Reason:    event.Reason,
		Risk:      string(event.Risk),
		RequestID: event.RequestID,
		ActorID:   event.ActorID,
	}
	if !event.UserID.IsNil() {
		p.UserID = event.UserID.String()
	}

	value, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	record := &kgo.Record{
		Topic: f.topic,
		Key:   []byte(p.UserID),
		Value: value,
	}
	if err := f.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

// Close flushes and closes the producer.
func (f *Forwarder) Close() {
	f.client.Close()
}

func isAlreadyExists(err error) bool {
	// kadm surfaces TOPIC_ALREADY_EXISTS in the error text; kerr matching
	// would pull in another package for one comparison.
	return err != nil && strings.Contains(err.Error(), "TOPIC_ALREADY_EXISTS")
}
