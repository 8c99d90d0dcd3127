package infrastructure

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/draftea/travel-booking/shared/config"
	"github.com/draftea/travel-booking/shared/events"
	"github.com/draftea/travel-booking/shared/logger"
)

// Transport bundles the publisher and subscriber a service talks to the bus with
type Transport struct {
	Publisher  events.Publisher
	Subscriber events.Subscriber
	closers    []func() error
}

// NewTransport builds the configured transport. The memory kind needs a shared
// bus, so callers running several services in one process pass it in.
func NewTransport(ctx context.Context, cfg *config.Config, bus *MemoryBus, log logger.Logger) (*Transport, error) {
	switch cfg.Transport.Kind {
	case config.TransportSNSSQS:
		snsClient, err := NewSNSClient(ctx, cfg.AWS)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create SNS client")
		}
		sqsClient, err := NewSQSClient(ctx, cfg.AWS)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create SQS client")
		}
		return &Transport{
			Publisher: NewSNSEventPublisher(snsClient, cfg.AWS.SNSTopicArn, log),
			Subscriber: NewSQSEventSubscriber(sqsClient, cfg.AWS.SQSQueueURL, log,
				WithWorkers(cfg.AWS.Workers),
				WithVisibilityTimeout(cfg.AWS.VisibilityTimeout),
			),
		}, nil

	case config.TransportRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, errors.Wrap(err, "failed to ping redis")
		}

		opts := DefaultRedisStreamOptions
		opts.Workers = cfg.Redis.Workers
		opts.MaxDeliveries = cfg.Redis.MaxDeliveries
		if cfg.Redis.ClaimMinIdle > 0 {
			opts.ClaimMinIdle = cfg.Redis.ClaimMinIdle
		}

		return &Transport{
			Publisher:  NewRedisStreamPublisher(client, cfg.Redis.Stream, 0),
			Subscriber: NewRedisStreamSubscriber(client, cfg.Redis.Stream, cfg.Redis.Group, cfg.Redis.Consumer, opts, log),
			closers:    []func() error{client.Close},
		}, nil

	case config.TransportMemory:
		if bus == nil {
			bus = NewMemoryBus(log)
		}
		return &Transport{
			Publisher:  bus,
			Subscriber: bus.Subscriber(cfg.ServiceName),
		}, nil
	}

	return nil, fmt.Errorf("unknown transport kind %q", cfg.Transport.Kind)
}

// Close releases transport clients
func (t *Transport) Close() error {
	var errs []error
	for _, c := range t.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing transport: %v", errs)
	}
	return nil
}
