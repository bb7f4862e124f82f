package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"trustos/internal/verification/models"
)

type fakeProducer struct {
	records []*kgo.Record
	err     error
}

func (f *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	results := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		f.records = append(f.records, r)
		results = append(results, kgo.ProduceResult{Record: r, Err: f.err})
	}
	return results
}

func TestNewKafkaPublisher_RequiresProducer(t *testing.T) {
	_, err := NewKafkaPublisher(nil)
	require.Error(t, err)
}

func TestPublish(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	producer := &fakeProducer{}
	p, err := NewKafkaPublisher(producer, WithTopic("verifications"), WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	subject := models.Subject{Name: "Acme Corporation", RegistrationNumber: "12345678"}
	res := &models.VerificationResult{
		TrustScore: 0,
		Status:     models.StatusFailed,
		Flags:      []string{models.FlagLookupFailed},
		Failure:    &models.Failure{Code: models.FailureNotFound},
		ComputedAt: now.Add(-time.Second),
		CacheKey:   subject.CacheKey(),
	}
	require.NoError(t, p.Publish(context.Background(), subject, res))

	require.Len(t, producer.records, 1)
	rec := producer.records[0]
	assert.Equal(t, "verifications", rec.Topic)
	assert.Equal(t, "company:12345678:unknown", string(rec.Key))

	var evt Event
	require.NoError(t, json.Unmarshal(rec.Value, &evt))
	assert.Equal(t, EventType, evt.Type)
	assert.Equal(t, models.StatusFailed, evt.Status)
	assert.Equal(t, models.FailureNotFound, evt.FailureCode)
	assert.Equal(t, "Acme Corporation", evt.CompanyName)
	assert.True(t, evt.PublishedAt.Equal(now))
	assert.NotEmpty(t, evt.ID)
}

func TestPublish_BrokerError(t *testing.T) {
	p, err := NewKafkaPublisher(&fakeProducer{err: errors.New("NOT_LEADER_FOR_PARTITION")})
	require.NoError(t, err)

	err = p.Publish(context.Background(), models.Subject{Name: "Acme"}, &models.VerificationResult{CacheKey: "company:acme:unknown"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish verification event")

	require.Error(t, p.Publish(context.Background(), models.Subject{Name: "Acme"}, nil))
}
