package output

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/core/model"
	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/core/observability"
)

type KafkaConfig struct {
	Brokers []string
	Topic   string
	RunID   string
}

// RowEvent is the message value published for every result row.
type RowEvent struct {
	RunID        string `json:"run_id,omitempty"`
	FacilityID   string `json:"facility_id"`
	Frequency    int    `json:"frequency"`
	TotalPop     int64  `json:"sum_acstotpop"`
	MinorityPop  int64  `json:"sum_minorpop"`
	LowIncome    int64  `json:"sum_lowincome"`
	LingIsolated int64  `json:"sum_lingiso"`
	Under5       int64  `json:"sum_under5"`
	Over64       int64  `json:"sum_over64"`
}

func NewRowEvent(runID string, r model.AggregatedRow) RowEvent {
	return RowEvent{
		RunID:        runID,
		FacilityID:   r.FacilityID,
		Frequency:    r.Count,
		TotalPop:     r.TotalPop,
		MinorityPop:  r.MinorityPop,
		LowIncome:    r.LowIncome,
		LingIsolated: r.LingIsolated,
		Under5:       r.Under5,
		Over64:       r.Over64,
	}
}

// KafkaPublisher streams rows to a topic keyed by facility id.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	runID    string
	metrics  *observability.RunMetrics
}

var _ Publisher = (*KafkaPublisher)(nil)

// ProducerConfig returns the sarama settings used for the row stream. A
// SyncProducer requires Return.Successes.
func ProducerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.ClientID = "ejquery"
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Retry.Backoff = 250 * time.Millisecond
	return cfg
}

func NewKafkaPublisher(cfg KafkaConfig, m *observability.RunMetrics) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka: topic is required")
	}
	p, err := sarama.NewSyncProducer(cfg.Brokers, ProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return NewKafkaPublisherWithProducer(p, cfg.Topic, cfg.RunID, m), nil
}

func NewKafkaPublisherWithProducer(p sarama.SyncProducer, topic, runID string, m *observability.RunMetrics) *KafkaPublisher {
	return &KafkaPublisher{producer: p, topic: topic, runID: runID, metrics: m}
}

func (k *KafkaPublisher) Publish(ctx context.Context, row model.AggregatedRow) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(NewRowEvent(k.runID, row))
	if err != nil {
		return fmt.Errorf("kafka: encode row %s: %w", row.FacilityID, err)
	}
	msg := &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(row.FacilityID),
		Value: sarama.ByteEncoder(b),
	}
	_, _, err = k.producer.SendMessage(msg)
	k.metrics.IncPublished(err == nil)
	if err != nil {
		return fmt.Errorf("kafka: publish row %s: %w", row.FacilityID, err)
	}
	return nil
}

func (k *KafkaPublisher) Close() error {
	if err := k.producer.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}
