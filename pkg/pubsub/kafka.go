package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/google/uuid"

	"github.com/Paolafigueroah/system-eco-plataform-sub001/pkg/log"
)

// Fixed Kafka topics. The scoped ID of a channel becomes the message key,
// so all events of one conversation land on one partition in order.
var kafkaTopics = []string{
	"chat-conversation-messages",
	"chat-user-conversations",
}

// channelToTopicAndKey converts a chat channel to a Kafka topic and message key.
//
//	"chat:conversation:C1:messages"  → topic: "chat-conversation-messages", key: "C1"
//	"chat:user:U1:conversations"     → topic: "chat-user-conversations", key: "U1"
func channelToTopicAndKey(channel string) (topic, key string, err error) {
	scope, id, stream, err := ParseChannel(channel)
	if err != nil {
		return "", "", err
	}
	topic = "chat-" + scope + "-" + stream
	for _, known := range kafkaTopics {
		if topic == known {
			return topic, id, nil
		}
	}
	return "", "", fmt.Errorf("no kafka topic for channel: %s", channel)
}

// decodeRecord returns the event carried by msg when it belongs to key.
// Records of other keys yield (nil, nil).
func decodeRecord(msg *kafka.Message, key string) (*Event, error) {
	if string(msg.Key) != key {
		return nil, nil
	}
	var event Event
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return nil, fmt.Errorf("invalid event payload: %w", err)
	}
	return &event, nil
}

// KafkaPubSub implements PubSub interface using Apache Kafka.
type KafkaPubSub struct {
	producer *kafka.Producer
	config   KafkaConfig
	buffer   int
	doneCh   chan struct{}

	mu     sync.Mutex
	subs   map[*pumpedSubscription]struct{}
	closed bool
}

// NewKafkaPubSub creates a new Kafka-based PubSub instance.
func NewKafkaPubSub(cfg KafkaConfig, buffer int) (*KafkaPubSub, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.Brokers,
		"acks":              "1",
		"linger.ms":         5,
		"compression.type":  "snappy",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	kps := &KafkaPubSub{
		producer: p,
		config:   cfg,
		buffer:   buffer,
		doneCh:   make(chan struct{}),
		subs:     make(map[*pumpedSubscription]struct{}),
	}

	go kps.deliveryReportHandler()

	if err := kps.ensureTopics(); err != nil {
		l := log.L()
		l.Warn().Err(err).Msg("failed to ensure kafka topics (may already exist)")
	}

	return kps, nil
}

// ensureTopics creates the fixed topics if they don't exist.
func (k *KafkaPubSub) ensureTopics() error {
	admin, err := kafka.NewAdminClient(&kafka.ConfigMap{
		"bootstrap.servers": k.config.Brokers,
	})
	if err != nil {
		return fmt.Errorf("failed to create admin client: %w", err)
	}
	defer admin.Close()

	partitions := k.config.Partitions
	if partitions <= 0 {
		partitions = 4
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	specs := make([]kafka.TopicSpecification, 0, len(kafkaTopics))
	for _, t := range kafkaTopics {
		specs = append(specs, kafka.TopicSpecification{
			Topic:             t,
			NumPartitions:     partitions,
			ReplicationFactor: 1,
		})
	}

	results, err := admin.CreateTopics(ctx, specs)
	if err != nil {
		return fmt.Errorf("failed to create topics: %w", err)
	}

	l := log.L()
	for _, r := range results {
		if r.Error.Code() != kafka.ErrNoError && r.Error.Code() != kafka.ErrTopicAlreadyExists {
			l.Warn().Str(log.FieldTopic, r.Topic).Str("error", r.Error.String()).Msg("failed to create kafka topic")
		}
	}

	return nil
}

// deliveryReportHandler processes delivery reports from the producer.
func (k *KafkaPubSub) deliveryReportHandler() {
	l := log.L()
	for e := range k.producer.Events() {
		if ev, ok := e.(*kafka.Message); ok && ev.TopicPartition.Error != nil {
			l.Error().Err(ev.TopicPartition.Error).Msg("kafka pubsub delivery failed")
		}
	}
	close(k.doneCh)
}

// Publish publishes an event to the specified channel (converted to Kafka topic + key).
func (k *KafkaPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	topic, key, err := channelToTopicAndKey(channel)
	if err != nil {
		return fmt.Errorf("failed to parse channel: %w", err)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = k.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &topic,
			Partition: kafka.PartitionAny,
		},
		Key:   []byte(key),
		Value: data,
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to produce message: %w", err)
	}

	return nil
}

// Subscribe creates a dedicated consumer for the channel's topic and
// filters records by key. Every subscription gets its own consumer group
// so each one sees every event (fan-out, not work sharing).
func (k *KafkaPubSub) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	topic, key, err := channelToTopicAndKey(channel)
	if err != nil {
		return nil, fmt.Errorf("failed to parse channel: %w", err)
	}

	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return nil, ErrClosed
	}
	k.mu.Unlock()

	groupID := k.config.GroupID
	if groupID == "" {
		groupID = "chat-feed"
	}
	groupID = fmt.Sprintf("%s-%s-%s", groupID, sanitizeGroupID(key), uuid.NewString())

	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  k.config.Brokers,
		"group.id":           groupID,
		"auto.offset.reset":  "latest",
		"enable.auto.commit": false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}

	if err := c.Subscribe(topic, nil); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to subscribe to topic %s: %w", topic, err)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	var sub *pumpedSubscription
	sub = newPumpedSubscription(channel, k.buffer, cancel, func() error {
		k.mu.Lock()
		delete(k.subs, sub)
		k.mu.Unlock()
		return nil
	})

	k.mu.Lock()
	k.subs[sub] = struct{}{}
	k.mu.Unlock()

	go k.pump(subCtx, c, key, sub)

	return sub, nil
}

// pump polls Kafka and forwards matching events. The consumer is closed
// by the pump itself so Poll and Close never race.
func (k *KafkaPubSub) pump(ctx context.Context, c *kafka.Consumer, key string, sub *pumpedSubscription) {
	var cause error
	defer func() {
		c.Close()
		sub.finish(cause)
	}()

	l := log.L()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ev := c.Poll(500)
		if ev == nil {
			continue
		}

		switch e := ev.(type) {
		case *kafka.Message:
			event, err := decodeRecord(e, key)
			if err != nil {
				l.Warn().Err(err).Str(log.FieldTopic, sub.Channel()).Msg("kafka pubsub: dropping record")
				continue
			}
			if event == nil {
				continue
			}

			if !sub.deliver(ctx, event) {
				return
			}

		case kafka.Error:
			l.Warn().Str("error", e.Error()).Int("code", int(e.Code())).Bool("fatal", e.IsFatal()).Msg("kafka pubsub error")
			if e.IsFatal() || e.Code() == kafka.ErrAllBrokersDown {
				cause = fmt.Errorf("%w: %v", ErrDisconnected, e)
				return
			}
		}
	}
}

// Close closes all subscriptions and the producer.
func (k *KafkaPubSub) Close() error {
	k.mu.Lock()
	k.closed = true
	subs := make([]*pumpedSubscription, 0, len(k.subs))
	for s := range k.subs {
		subs = append(subs, s)
	}
	k.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}

	k.producer.Flush(5000)
	k.producer.Close()
	<-k.doneCh

	return nil
}

var groupIDRegexp = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// sanitizeGroupID replaces characters not suitable for Kafka group IDs.
func sanitizeGroupID(s string) string {
	return groupIDRegexp.ReplaceAllString(s, "-")
}
