// internal/events/kafka.go
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

var saramaLoggerOnce sync.Once

// KafkaSink публикует события в топик; ключ сообщения - mint пула.
type KafkaSink struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

// NewKafkaSink подключается к брокерам синхронным продьюсером.
func NewKafkaSink(brokers []string, topic string, logger *zap.Logger) (*KafkaSink, error) {
	logger = logger.Named("kafka-sink")
	saramaLoggerOnce.Do(func() {
		sarama.Logger = &saramaLogger{l: logger.Named("sarama")}
	})

	cfg := sarama.NewConfig()
	cfg.ClientID = "solana-launchpad"
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Return.Successes = true
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	cfg.Version = sarama.V2_8_0_0

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return NewKafkaSinkWithProducer(producer, topic, logger), nil
}

// NewKafkaSinkWithProducer для тестов (sarama/mocks) и кастомных конфигураций.
func NewKafkaSinkWithProducer(producer sarama.SyncProducer, topic string, logger *zap.Logger) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic, logger: logger}
}

// Handle реализует Handler: событие сериализуется в JSON.
func (s *KafkaSink) Handle(_ context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event.Type(), err)
	}

	msg := &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(event.Key()),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event-type"), Value: []byte(event.Type())},
		},
		Timestamp: event.Timestamp(),
	}
	partition, offset, err := s.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("send %s: %w", event.Type(), err)
	}

	s.logger.Debug("Event delivered",
		zap.String("event_type", string(event.Type())),
		zap.String("mint", event.Key()),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return nil
}

func (s *KafkaSink) Close() error {
	return s.producer.Close()
}

// saramaLogger направляет внутренние логи sarama в zap.
type saramaLogger struct {
	l *zap.Logger
}

var _ sarama.StdLogger = (*saramaLogger)(nil)

func (s *saramaLogger) Print(v ...interface{}) {
	s.l.Debug(strings.TrimSpace(fmt.Sprint(v...)))
}

func (s *saramaLogger) Printf(format string, v ...interface{}) {
	s.l.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (s *saramaLogger) Println(v ...interface{}) {
	s.l.Debug(strings.TrimSpace(fmt.Sprintln(v...)))
}
