// Package broker carries fixture events and predictions over Redis Streams.
//
// Inbound topics are split into partitions so that every event of a fixture lands
// on the same stream and is consumed in order by a single reader. Consumer groups
// provide at-least-once delivery: a message stays pending until it is acked, and a
// restarted reader picks its pending entries up again.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/matchcast/predictor/internal/models"
)

// PayloadField is the stream entry field holding the JSON body.
const PayloadField = "payload"

// Topic names. Inbound topics are partitioned; the predictions topic is not.
const (
	TopicLiveStats   = "match_stats_raw"
	TopicRefresh     = "fixtures_refresh"
	TopicPrematch    = "prematch_h2h"
	TopicPredictions = "match_predictions"
)

var ErrNoPayload = errors.New("stream entry has no payload field")

// StreamClient is the subset of *redis.Client the broker needs.
type StreamClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAutoClaim(ctx context.Context, a *redis.XAutoClaimArgs) *redis.XAutoClaimCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
}

// Partition maps a fixture to its partition.
func Partition(fixtureID int64, partitions int) int {
	if partitions <= 1 {
		return 0
	}
	p := fixtureID % int64(partitions)
	if p < 0 {
		p += int64(partitions)
	}
	return int(p)
}

// StreamName returns the stream key of a topic partition.
func StreamName(topic string, partition int) string {
	return fmt.Sprintf("%s.%d", topic, partition)
}

// Streams returns the stream keys of a topic for the given partitions.
func Streams(topic string, partitions []int) []string {
	out := make([]string, 0, len(partitions))
	for _, p := range partitions {
		out = append(out, StreamName(topic, p))
	}
	return out
}

// Producer appends JSON events to streams.
type Producer struct {
	client     StreamClient
	partitions int
	maxLen     int64
}

// NewProducer creates a producer. maxLen caps every stream approximately; zero
// leaves streams unbounded.
func NewProducer(client StreamClient, partitions int, maxLen int64) *Producer {
	if partitions <= 0 {
		partitions = 1
	}
	return &Producer{client: client, partitions: partitions, maxLen: maxLen}
}

// Send routes an event to the partition of fixtureID within topic.
func (p *Producer) Send(ctx context.Context, topic string, fixtureID int64, v any) (string, error) {
	return p.Publish(ctx, StreamName(topic, Partition(fixtureID, p.partitions)), v)
}

// Publish appends an event to a single named stream.
func (p *Producer) Publish(ctx context.Context, stream string, v any) (string, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode %s event: %w", stream, err)
	}

	args := &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{PayloadField: string(body)},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", stream, err)
	}
	return id, nil
}

// PublishPrediction emits a live prediction on the predictions topic.
func (p *Producer) PublishPrediction(ctx context.Context, pred models.OutboundPrediction) error {
	_, err := p.Publish(ctx, TopicPredictions, pred)
	return err
}

// Message is one stream entry delivered to a consumer.
type Message struct {
	Stream  string
	ID      string
	Payload []byte
}

// ConsumerConfig configures a group reader.
type ConsumerConfig struct {
	Group string
	Name  string
	// Block is how long a read waits for new entries.
	Block time.Duration
	Count int64
	// ClaimMinIdle is how long another reader's entry must sit unacked before it is
	// taken over. Zero disables claiming.
	ClaimMinIdle time.Duration
}

// Consumer reads streams as one member of a consumer group.
type Consumer struct {
	client StreamClient
	cfg    ConsumerConfig
}

func NewConsumer(client StreamClient, cfg ConsumerConfig) *Consumer {
	if cfg.Block <= 0 {
		cfg.Block = 2 * time.Second
	}
	if cfg.Count <= 0 {
		cfg.Count = 50
	}
	return &Consumer{client: client, cfg: cfg}
}

// Group returns the consumer group name.
func (c *Consumer) Group() string { return c.cfg.Group }

// EnsureGroup creates the group on stream, creating the stream if needed. An
// existing group is not an error.
func (c *Consumer) EnsureGroup(ctx context.Context, stream string) error {
	err := c.client.XGroupCreateMkStream(ctx, stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create group %s on %s: %w", c.cfg.Group, stream, err)
	}
	return nil
}

// Claim takes over entries of stream that another reader left unacked for longer
// than ClaimMinIdle.
func (c *Consumer) Claim(ctx context.Context, stream string) ([]Message, error) {
	if c.cfg.ClaimMinIdle <= 0 {
		return nil, nil
	}

	msgs, _, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   stream,
		Group:    c.cfg.Group,
		Consumer: c.cfg.Name,
		MinIdle:  c.cfg.ClaimMinIdle,
		Start:    "0-0",
		Count:    c.cfg.Count,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("xautoclaim %s: %w", stream, err)
	}
	return toMessages(stream, msgs), nil
}

// ReadPending returns entries already delivered to this consumer but never acked.
func (c *Consumer) ReadPending(ctx context.Context, stream string) ([]Message, error) {
	return c.read(ctx, stream, "0", -1)
}

// ReadNew waits up to Block for entries never delivered to the group.
func (c *Consumer) ReadNew(ctx context.Context, stream string) ([]Message, error) {
	return c.read(ctx, stream, ">", c.cfg.Block)
}

func (c *Consumer) read(ctx context.Context, stream, id string, block time.Duration) ([]Message, error) {
	res, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Name,
		Streams:  []string{stream, id},
		Count:    c.cfg.Count,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("xreadgroup %s: %w", stream, err)
	}

	var out []Message
	for _, s := range res {
		out = append(out, toMessages(s.Stream, s.Messages)...)
	}
	return out, nil
}

// Decode unmarshals the message payload into v.
func (m Message) Decode(v any) error {
	if m.Payload == nil {
		return ErrNoPayload
	}
	return json.Unmarshal(m.Payload, v)
}

// Ack marks a message handled.
func (c *Consumer) Ack(ctx context.Context, msg Message) error {
	if err := c.client.XAck(ctx, msg.Stream, c.cfg.Group, msg.ID).Err(); err != nil {
		return fmt.Errorf("xack %s %s: %w", msg.Stream, msg.ID, err)
	}
	return nil
}

func toMessages(stream string, entries []redis.XMessage) []Message {
	out := make([]Message, 0, len(entries))
	for _, e := range entries {
		m := Message{Stream: stream, ID: e.ID}
		switch v := e.Values[PayloadField].(type) {
		case string:
			m.Payload = []byte(v)
		case []byte:
			m.Payload = v
		}
		out = append(out, m)
	}
	return out
}
