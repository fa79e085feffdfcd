package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/newplayman/exchange-operations/internal/model"
	"github.com/segmentio/kafka-go"
)

// OperationEvent 操作提交完成后发布的审计事件
type OperationEvent struct {
	OperationID string       `json:"operationId"`
	Kind        string       `json:"kind"`
	BrokerID    string       `json:"brokerId"`
	Status      model.Status `json:"status"`
	Reason      string       `json:"reason,omitempty"`
	Fee         *model.Fee   `json:"fee,omitempty"`
	Request     any          `json:"request"`
	OccurredAt  time.Time    `json:"occurredAt"`
}

// Publisher 事件发布
type Publisher interface {
	Publish(ctx context.Context, ev OperationEvent) error
	Close() error
}

// NopPublisher 未配置 Kafka 时使用
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, OperationEvent) error { return nil }
func (NopPublisher) Close() error                                 { return nil }

// messageWriter kafka.Writer 的最小接口，测试中替换
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher 以经纪商为 key 写入同一 topic，保证同一经纪商内有序
type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev OperationEvent) error {
	msg, err := toMessage(ev)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func toMessage(ev OperationEvent) (kafka.Message, error) {
	value, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(ev.BrokerID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(ev.Kind)},
			{Key: "operation-id", Value: []byte(ev.OperationID)},
		},
		Time: ev.OccurredAt,
	}, nil
}
