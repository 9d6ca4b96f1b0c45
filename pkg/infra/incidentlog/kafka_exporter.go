package incidentlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/NeuralTrust/TrustSentinel/pkg/domain/incident"
	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/mitchellh/mapstructure"
)

const ExporterKafka = "kafka"

type KafkaConfig struct {
	Host  string `mapstructure:"host"`
	Port  string `mapstructure:"port"`
	Topic string `mapstructure:"topic"`
}

func (c KafkaConfig) Validate() error {
	if c.Host == "" {
		return errors.New("kafka host is required")
	}
	if c.Port == "" {
		return errors.New("kafka port is required")
	}
	if c.Topic == "" {
		return errors.New("kafka topic is required")
	}
	return nil
}

// KafkaExporter publishes every flushed record keyed by source id, so one
// source's records land on one partition in order.
type KafkaExporter struct {
	cfg      KafkaConfig
	producer *kafka.Producer
}

func NewKafkaExporter(settings map[string]interface{}) (*KafkaExporter, error) {
	var cfg KafkaConfig
	if err := mapstructure.Decode(settings, &cfg); err != nil {
		return nil, fmt.Errorf("invalid kafka config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return &KafkaExporter{cfg: cfg, producer: producer}, nil
}

func (e *KafkaExporter) Export(ctx context.Context, record incident.Record) error {
	if e.producer == nil {
		return errors.New("kafka producer is not initialized")
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal incident record: %w", err)
	}
	deliveryChan := make(chan kafka.Event, 1)
	err = e.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &e.cfg.Topic, Partition: kafka.PartitionAny},
		Key:            []byte(record.SourceID),
		Value:          data,
		Headers:        []kafka.Header{{Key: "record_type", Value: []byte(record.Type)}},
	}, deliveryChan)
	if err != nil {
		return fmt.Errorf("failed to produce message: %w", err)
	}
	select {
	case ev := <-deliveryChan:
		m, ok := ev.(*kafka.Message)
		if !ok {
			return fmt.Errorf("unexpected delivery event %T", ev)
		}
		if m.TopicPartition.Error != nil {
			return fmt.Errorf("delivery failed: %w", m.TopicPartition.Error)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *KafkaExporter) Close() {
	if e.producer != nil {
		e.producer.Flush(5000)
		e.producer.Close()
	}
}
