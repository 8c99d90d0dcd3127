package infrastructure

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/draftea/travel-booking/shared/events"
	"github.com/draftea/travel-booking/shared/logger"
)

var (
	_ events.Publisher  = (*RedisStreamPublisher)(nil)
	_ events.Subscriber = (*RedisStreamSubscriber)(nil)
)

const (
	streamDataField      = "data"
	streamBookingIDField = "booking_id"
	streamEventTypeField = "event_type"
	deadLetterSuffix     = ":dlq"
)

// RedisStreamPublisher appends saga events to a single Redis stream
type RedisStreamPublisher struct {
	client redis.UniversalClient
	stream string
	maxLen int64
}

// NewRedisStreamPublisher creates a publisher. maxLen caps the stream
// approximately; zero keeps every entry.
func NewRedisStreamPublisher(client redis.UniversalClient, stream string, maxLen int64) *RedisStreamPublisher {
	return &RedisStreamPublisher{client: client, stream: stream, maxLen: maxLen}
}

// Publish appends the events in order within one pipeline
func (p *RedisStreamPublisher) Publish(ctx context.Context, evts ...*events.Event) error {
	if len(evts) == 0 {
		return nil
	}

	_, err := p.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, event := range evts {
			body, err := encodeEvent(event)
			if err != nil {
				return err
			}

			args := &redis.XAddArgs{
				Stream: p.stream,
				Values: map[string]interface{}{
					streamDataField:      string(body),
					streamBookingIDField: event.AggregateID.String(),
					streamEventTypeField: event.EventType,
				},
			}
			if p.maxLen > 0 {
				args.MaxLen = p.maxLen
				args.Approx = true
			}
			pipe.XAdd(ctx, args)
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "failed to append events to redis stream")
	}
	return nil
}

// RedisStreamOptions tunes the consumer group subscriber
type RedisStreamOptions struct {
	Workers         int
	BatchSize       int64
	BlockTime       time.Duration
	ClaimMinIdle    time.Duration
	ClaimInterval   time.Duration
	MaxDeliveries   int64
	ErrorBackoff    time.Duration
	StartFromOldest bool
}

// DefaultRedisStreamOptions mirrors the settings used in production
var DefaultRedisStreamOptions = RedisStreamOptions{
	Workers:         8,
	BatchSize:       20,
	BlockTime:       5 * time.Second,
	ClaimMinIdle:    30 * time.Second,
	ClaimInterval:   30 * time.Second,
	MaxDeliveries:   10,
	ErrorBackoff:    time.Second,
	StartFromOldest: true,
}

type streamMessage struct {
	id    string
	event *events.Event
	raw   redis.XMessage
}

// RedisStreamSubscriber consumes the saga stream through a consumer group.
// Messages are sharded to workers by booking id, so one booking is handled
// in order while different bookings run in parallel. Failed messages stay
// pending and are reclaimed after ClaimMinIdle; after MaxDeliveries they move
// to the "<stream>:dlq" stream.
type RedisStreamSubscriber struct {
	client   redis.UniversalClient
	stream   string
	group    string
	consumer string
	opts     RedisStreamOptions
	logger   logger.Logger

	handler events.EventHandler
	shards  []chan streamMessage
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool
}

// NewRedisStreamSubscriber creates a consumer group subscriber
func NewRedisStreamSubscriber(client redis.UniversalClient, stream, group, consumer string, opts RedisStreamOptions, log logger.Logger) *RedisStreamSubscriber {
	if opts.Workers <= 0 {
		opts.Workers = DefaultRedisStreamOptions.Workers
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultRedisStreamOptions.BatchSize
	}
	if opts.BlockTime <= 0 {
		opts.BlockTime = DefaultRedisStreamOptions.BlockTime
	}
	if opts.ClaimInterval <= 0 {
		opts.ClaimInterval = DefaultRedisStreamOptions.ClaimInterval
	}

	return &RedisStreamSubscriber{
		client:   client,
		stream:   stream,
		group:    group,
		consumer: consumer,
		opts:     opts,
		logger:   log.With("stream", stream, "group", group, "consumer", consumer),
	}
}

// Subscribe sets the handler every received event is dispatched to
func (s *RedisStreamSubscriber) Subscribe(_ context.Context, handler events.EventHandler) error {
	if s.running.Load() {
		return errors.New("subscriber is already running")
	}
	s.handler = handler
	return nil
}

// Start creates the consumer group if needed and launches the loops
func (s *RedisStreamSubscriber) Start(ctx context.Context) error {
	if s.running.Load() {
		return nil
	}
	if s.handler == nil {
		return errors.New("no handler configured")
	}

	start := "$"
	if s.opts.StartFromOldest {
		start = "0"
	}
	err := s.client.XGroupCreateMkStream(ctx, s.stream, s.group, start).Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return errors.Wrap(err, "failed to create consumer group")
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.shards = make([]chan streamMessage, s.opts.Workers)
	for i := range s.shards {
		shard := make(chan streamMessage, s.opts.BatchSize)
		s.shards[i] = shard
		s.spawn(func() { s.work(ctx, shard) })
	}
	s.spawn(func() { s.read(ctx) })
	s.spawn(func() { s.reclaim(ctx) })

	s.running.Store(true)
	s.logger.Info("redis stream subscriber started", "workers", s.opts.Workers)
	return nil
}

// Stop cancels the loops and waits for in-flight messages
func (s *RedisStreamSubscriber) Stop(ctx context.Context) error {
	if !s.running.Load() {
		return nil
	}
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	s.running.Store(false)

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "redis stream subscriber did not stop in time")
	}
}

func (s *RedisStreamSubscriber) spawn(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

func (s *RedisStreamSubscriber) read(ctx context.Context) {
	for ctx.Err() == nil {
		results, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    s.group,
			Consumer: s.consumer,
			Streams:  []string{s.stream, ">"},
			Count:    s.opts.BatchSize,
			Block:    s.opts.BlockTime,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			s.logger.Error("xreadgroup failed", "error", err)
			sleep(ctx, s.opts.ErrorBackoff)
			continue
		}

		for _, result := range results {
			for _, m := range result.Messages {
				s.dispatch(ctx, m)
			}
		}
	}
}

// reclaim takes over messages left pending by failed handlers or dead consumers
func (s *RedisStreamSubscriber) reclaim(ctx context.Context) {
	ticker := time.NewTicker(s.opts.ClaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.reclaimPending(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("failed to reclaim pending messages", "error", err)
			}
		}
	}
}

func (s *RedisStreamSubscriber) reclaimPending(ctx context.Context) error {
	pending, err := s.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: s.stream,
		Group:  s.group,
		Idle:   s.opts.ClaimMinIdle,
		Start:  "-",
		End:    "+",
		Count:  s.opts.BatchSize,
	}).Result()
	if err != nil {
		return errors.Wrap(err, "xpending")
	}
	if len(pending) == 0 {
		return nil
	}

	ids := make([]string, 0, len(pending))
	deliveries := make(map[string]int64, len(pending))
	for _, p := range pending {
		ids = append(ids, p.ID)
		deliveries[p.ID] = p.RetryCount
	}

	messages, err := s.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   s.stream,
		Group:    s.group,
		Consumer: s.consumer,
		MinIdle:  s.opts.ClaimMinIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		return errors.Wrap(err, "xclaim")
	}

	for _, m := range messages {
		if s.opts.MaxDeliveries > 0 && deliveries[m.ID] >= s.opts.MaxDeliveries {
			if err := s.deadLetter(ctx, m, "max deliveries exceeded"); err != nil {
				s.logger.Error("failed to dead letter message", "message_id", m.ID, "error", err)
			}
			continue
		}
		s.dispatch(ctx, m)
	}
	return nil
}

func (s *RedisStreamSubscriber) dispatch(ctx context.Context, m redis.XMessage) {
	data, _ := m.Values[streamDataField].(string)
	event, err := decodeEvent([]byte(data))
	if err != nil {
		if dlqErr := s.deadLetter(ctx, m, err.Error()); dlqErr != nil {
			s.logger.Error("failed to dead letter malformed message", "message_id", m.ID, "error", dlqErr)
		}
		return
	}

	select {
	case s.shards[s.shardFor(event.AggregateID.String())] <- streamMessage{id: m.ID, event: event, raw: m}:
	case <-ctx.Done():
	}
}

func (s *RedisStreamSubscriber) shardFor(key string) int {
	return int(xxhash.Sum64String(key) % uint64(len(s.shards)))
}

func (s *RedisStreamSubscriber) work(ctx context.Context, shard <-chan streamMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-shard:
			if err := s.handler.Handle(ctx, msg.event); err != nil {
				// left pending; reclaim redelivers it after ClaimMinIdle
				s.logger.Warn("handler failed, message left pending",
					"message_id", msg.id,
					"event_type", msg.event.EventType,
					"error", err,
				)
				continue
			}
			if err := s.client.XAck(ctx, s.stream, s.group, msg.id).Err(); err != nil {
				s.logger.Error("xack failed", "message_id", msg.id, "error", err)
			}
		}
	}
}

func (s *RedisStreamSubscriber) deadLetter(ctx context.Context, m redis.XMessage, reason string) error {
	_, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream + deadLetterSuffix,
		Values: map[string]interface{}{
			"stream":              s.stream,
			"message_id":          m.ID,
			"reason":              reason,
			streamDataField:       m.Values[streamDataField],
			"group":               s.group,
			"consumer":            s.consumer,
			"dead_lettered_at_ms": time.Now().UnixMilli(),
		},
	}).Result()
	if err != nil {
		return errors.Wrap(err, "xadd dlq")
	}
	return s.client.XAck(ctx, s.stream, s.group, m.ID).Err()
}
