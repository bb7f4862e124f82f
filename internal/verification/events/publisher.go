// Package events publishes freshly computed verification outcomes to Kafka so
// downstream consumers (job boards, notification workers) can react to them.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"

	"trustos/internal/verification/models"
)

// EventType identifies the verification outcome event.
const EventType = "verification.completed"

// Event is the record value. The record key is the result's cache key, so
// every outcome for one company lands on the same partition in order.
type Event struct {
	ID          string        `json:"id"`
	Type        string        `json:"type"`
	CacheKey    string        `json:"cacheKey"`
	CompanyName string        `json:"companyName"`
	Status      models.Status `json:"status"`
	TrustScore  float64       `json:"trustScore"`
	Flags       []string      `json:"flags,omitempty"`
	FailureCode string        `json:"failureCode,omitempty"`
	ComputedAt  time.Time     `json:"computedAt"`
	PublishedAt time.Time     `json:"publishedAt"`
}

// Producer is the subset of *kgo.Client the publisher uses.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// KafkaPublisher writes one record per outcome.
type KafkaPublisher struct {
	producer Producer
	topic    string
	now      func() time.Time
}

type Option func(*KafkaPublisher)

// WithTopic overrides the client's default produce topic.
func WithTopic(topic string) Option {
	return func(p *KafkaPublisher) {
		p.topic = topic
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *KafkaPublisher) {
		p.now = now
	}
}

func NewKafkaPublisher(producer Producer, opts ...Option) (*KafkaPublisher, error) {
	if producer == nil {
		return nil, errors.New("kafka producer is required")
	}
	p := &KafkaPublisher{producer: producer, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Publish blocks until the broker acknowledges the record or ctx ends.
func (p *KafkaPublisher) Publish(ctx context.Context, subject models.Subject, res *models.VerificationResult) error {
	if res == nil {
		return errors.New("verification result is required")
	}
	evt := Event{
		ID:          uuid.NewString(),
		Type:        EventType,
		CacheKey:    res.CacheKey,
		CompanyName: subject.Name,
		Status:      res.Status,
		TrustScore:  res.TrustScore,
		Flags:       res.Flags,
		ComputedAt:  res.ComputedAt,
		PublishedAt: p.now().UTC(),
	}
	if res.Failure != nil {
		evt.FailureCode = res.Failure.Code
	}
	value, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal verification event: %w", err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(res.CacheKey),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "type", Value: []byte(EventType)},
		},
	}
	if err := p.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("publish verification event: %w", err)
	}
	return nil
}
