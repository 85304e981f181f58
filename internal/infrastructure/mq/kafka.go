package mq

import (
	"fmt"
	"log"

	"loyaltysystem/internal/config"

	"github.com/IBM/sarama"
)

// Publisher 基于同步生产者的消息发布器
type Publisher struct {
	producer sarama.SyncProducer
}

// NewKafkaProducer 创建 Kafka 同步生产者
func NewKafkaProducer(cfg *config.KafkaConfig) (sarama.SyncProducer, error) {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.ClientID = "loyalty-ledger"
	kafkaConfig.Producer.Partitioner = sarama.NewHashPartitioner // 按 key 分区
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll // 等待所有副本确认
	kafkaConfig.Producer.Retry.Max = 3
	kafkaConfig.Producer.Return.Successes = true
	kafkaConfig.Producer.Idempotent = true
	kafkaConfig.Net.MaxOpenRequests = 1 // 幂等生产者要求

	producer, err := sarama.NewSyncProducer(cfg.Brokers, kafkaConfig)
	if err != nil {
		return nil, fmt.Errorf("创建 Kafka 生产者失败: %w", err)
	}

	log.Printf("[Kafka] 生产者创建成功: brokers=%v", cfg.Brokers)
	return producer, nil
}

func NewPublisher(producer sarama.SyncProducer) *Publisher {
	return &Publisher{producer: producer}
}

// Publish 发送一条账本事件，key 是实体ID，同一实体的事件落在同一分区
func (p *Publisher) Publish(topic, key, value string) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.StringEncoder(value),
	}

	if _, _, err := p.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("发送事件到 %s 失败: %w", topic, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.producer.Close()
}
