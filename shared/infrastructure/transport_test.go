package infrastructure

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/draftea/travel-booking/shared/config"
	"github.com/draftea/travel-booking/shared/events"
	"github.com/draftea/travel-booking/shared/logger"
	"github.com/draftea/travel-booking/shared/models"
)

type snsClientMock struct {
	mock.Mock
}

func (m *snsClientMock) PublishBatch(ctx context.Context, params *sns.PublishBatchInput, optFns ...func(*sns.Options)) (*sns.PublishBatchOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*sns.PublishBatchOutput)
	return out, args.Error(1)
}

type sqsClientMock struct {
	mock.Mock
}

func (m *sqsClientMock) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*sqs.ReceiveMessageOutput)
	return out, args.Error(1)
}

func (m *sqsClientMock) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*sqs.DeleteMessageOutput)
	return out, args.Error(1)
}

func (m *sqsClientMock) ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*sqs.ChangeMessageVisibilityOutput)
	return out, args.Error(1)
}

func sagaEvents(n int) []*events.Event {
	bookingID := models.GenerateUUID()
	evts := make([]*events.Event, n)
	for i := range evts {
		evts[i] = events.NewEvent(bookingID, events.FlightReservedEvent, nil)
	}
	return evts
}

func TestSNSEventPublisher_Publish(t *testing.T) {
	const fifoTopic = "arn:aws:sns:us-east-1:000000000000:booking-saga-events.fifo"

	t.Run("batches of ten with fifo grouping", func(t *testing.T) {
		client := &snsClientMock{}
		client.On("PublishBatch", mock.Anything, mock.MatchedBy(func(in *sns.PublishBatchInput) bool {
			for _, entry := range in.PublishBatchRequestEntries {
				if aws.ToString(entry.MessageGroupId) == "" || aws.ToString(entry.MessageDeduplicationId) != aws.ToString(entry.Id) {
					return false
				}
			}
			return aws.ToString(in.TopicArn) == fifoTopic
		})).Return(&sns.PublishBatchOutput{}, nil).Twice()

		err := NewSNSEventPublisher(client, fifoTopic, logger.NewNop()).Publish(context.Background(), sagaEvents(12)...)
		require.NoError(t, err)
		client.AssertExpectations(t)
	})

	t.Run("rejected entries fail the publish", func(t *testing.T) {
		client := &snsClientMock{}
		client.On("PublishBatch", mock.Anything, mock.Anything).Return(&sns.PublishBatchOutput{
			Failed: []snstypes.BatchResultErrorEntry{{Id: aws.String("1"), Code: aws.String("InternalError")}},
		}, nil)

		err := NewSNSEventPublisher(client, "arn:aws:sns:us-east-1:000000000000:booking-saga-events", logger.NewNop()).
			Publish(context.Background(), sagaEvents(2)...)
		assert.ErrorContains(t, err, "1 of 2 events were rejected")
	})

	t.Run("client error", func(t *testing.T) {
		client := &snsClientMock{}
		client.On("PublishBatch", mock.Anything, mock.Anything).Return(nil, errors.New("throttled"))

		err := NewSNSEventPublisher(client, fifoTopic, logger.NewNop()).Publish(context.Background(), sagaEvents(1)...)
		assert.ErrorContains(t, err, "throttled")
	})

	t.Run("nothing to publish", func(t *testing.T) {
		client := &snsClientMock{}
		assert.NoError(t, NewSNSEventPublisher(client, fifoTopic, logger.NewNop()).Publish(context.Background()))
		client.AssertNotCalled(t, "PublishBatch", mock.Anything, mock.Anything)
	})
}

func TestSQSEventSubscriber(t *testing.T) {
	event := sagaEvents(1)[0]
	body, err := encodeEvent(event)
	require.NoError(t, err)

	message := sqstypes.Message{
		MessageId:     aws.String("m-1"),
		ReceiptHandle: aws.String("r-1"),
		Body:          aws.String(string(body)),
		Attributes: map[string]string{
			string(sqstypes.MessageSystemAttributeNameApproximateReceiveCount): "4",
		},
	}

	tests := []struct {
		name       string
		handlerErr error
		settle     string
	}{
		{name: "handled message is deleted", settle: "DeleteMessage"},
		{name: "failed message is delayed", handlerErr: errors.New("busy"), settle: "ChangeMessageVisibility"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &sqsClientMock{}
			client.On("ReceiveMessage", mock.Anything, mock.Anything).
				Return(&sqs.ReceiveMessageOutput{Messages: []sqstypes.Message{message}}, nil).Once()
			client.On("ReceiveMessage", mock.Anything, mock.Anything).
				Return(&sqs.ReceiveMessageOutput{}, nil)

			settled := make(chan struct{})
			var once sync.Once
			closeSettled := func(mock.Arguments) { once.Do(func() { close(settled) }) }
			client.On("DeleteMessage", mock.Anything, mock.MatchedBy(func(in *sqs.DeleteMessageInput) bool {
				return aws.ToString(in.ReceiptHandle) == "r-1"
			})).Return(&sqs.DeleteMessageOutput{}, nil).Run(closeSettled).Maybe()
			client.On("ChangeMessageVisibility", mock.Anything, mock.MatchedBy(func(in *sqs.ChangeMessageVisibilityInput) bool {
				// 30s base plus one 30s step for the fourth receive
				return in.VisibilityTimeout == 60
			})).Return(&sqs.ChangeMessageVisibilityOutput{}, nil).Run(closeSettled).Maybe()

			var received *events.Event
			var mu sync.Mutex
			handler := events.EventHandlerFunc(func(_ context.Context, e *events.Event) error {
				mu.Lock()
				received = e
				mu.Unlock()
				return tt.handlerErr
			})

			subscriber := NewSQSEventSubscriber(client, "http://localhost:4566/000000000000/flight", logger.NewNop(),
				WithWorkers(1), WithEmptyReceiveBackoff(10*time.Millisecond))
			require.NoError(t, subscriber.Subscribe(context.Background(), handler))
			require.NoError(t, subscriber.Start(context.Background()))

			select {
			case <-settled:
			case <-time.After(2 * time.Second):
				t.Fatal("message was never settled")
			}

			stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			require.NoError(t, subscriber.Stop(stopCtx))

			mu.Lock()
			defer mu.Unlock()
			require.NotNil(t, received)
			assert.Equal(t, event.ID, received.ID)
			assert.Equal(t, "4", received.Metadata[events.MetadataReceiveCount])
			client.AssertCalled(t, tt.settle, mock.Anything, mock.Anything)
		})
	}
}

func TestRedisStream(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	const stream = "booking-saga-events"
	publisher := NewRedisStreamPublisher(client, stream, 0)

	received := make(chan *events.Event, 10)
	opts := RedisStreamOptions{
		Workers:         2,
		BatchSize:       10,
		BlockTime:       50 * time.Millisecond,
		ClaimMinIdle:    time.Minute,
		ClaimInterval:   time.Hour,
		MaxDeliveries:   3,
		StartFromOldest: true,
	}
	subscriber := NewRedisStreamSubscriber(client, stream, "booking-service", "booking-1", opts, logger.NewNop())
	require.NoError(t, subscriber.Subscribe(context.Background(), events.EventHandlerFunc(func(_ context.Context, e *events.Event) error {
		received <- e
		return nil
	})))

	bookingID := models.GenerateUUID()
	first := events.NewDeterministicEvent(bookingID, events.BookingCreatedEvent, events.BookingCreatedData{BookingID: bookingID})
	second := events.NewDeterministicEvent(bookingID, events.FlightReservedEvent, nil)
	require.NoError(t, publisher.Publish(context.Background(), first, second))

	length, err := client.XLen(context.Background(), stream).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(2), length)

	require.NoError(t, subscriber.Start(context.Background()))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		assert.NoError(t, subscriber.Stop(ctx))
	}()

	var got []*events.Event
	for len(got) < 2 {
		select {
		case e := <-received:
			got = append(got, e)
		case <-time.After(2 * time.Second):
			t.Fatalf("received %d of 2 events", len(got))
		}
	}

	assert.Equal(t, first.ID, got[0].ID)
	assert.Equal(t, second.ID, got[1].ID)

	var data events.BookingCreatedData
	require.NoError(t, got[0].UnmarshalPayload(&data))
	assert.Equal(t, bookingID, data.BookingID)

	t.Run("same booking lands on the same shard", func(t *testing.T) {
		key := bookingID.String()
		assert.Equal(t, subscriber.shardFor(key), subscriber.shardFor(key))
	})

	t.Run("second consumer of the group starts", func(t *testing.T) {
		other := NewRedisStreamSubscriber(client, stream, "booking-service", "booking-2", opts, logger.NewNop())
		require.NoError(t, other.Subscribe(context.Background(), events.EventHandlerFunc(func(context.Context, *events.Event) error { return nil })))
		require.NoError(t, other.Start(context.Background()))

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		assert.NoError(t, other.Stop(ctx))
	})
}

func TestNewTransport(t *testing.T) {
	t.Run("memory transport shares the bus", func(t *testing.T) {
		bus := NewMemoryBus(logger.NewNop())
		cfg := &config.Config{ServiceName: "hotel-service", Transport: config.Transport{Kind: config.TransportMemory}}

		transport, err := NewTransport(context.Background(), cfg, bus, logger.NewNop())
		require.NoError(t, err)
		assert.Same(t, bus, transport.Publisher)
		assert.IsType(t, &MemorySubscriber{}, transport.Subscriber)
		assert.NoError(t, transport.Close())
	})

	t.Run("redis transport", func(t *testing.T) {
		mr, err := miniredis.Run()
		require.NoError(t, err)
		defer mr.Close()

		cfg := &config.Config{
			ServiceName: "car-service",
			Transport:   config.Transport{Kind: config.TransportRedis},
			Redis:       config.Redis{Addr: mr.Addr(), Stream: "booking-saga-events", Group: "car-service", Consumer: "car-1", Workers: 2},
		}

		transport, err := NewTransport(context.Background(), cfg, nil, logger.NewNop())
		require.NoError(t, err)
		assert.IsType(t, &RedisStreamPublisher{}, transport.Publisher)
		assert.IsType(t, &RedisStreamSubscriber{}, transport.Subscriber)
		assert.NoError(t, transport.Close())
	})

	t.Run("unknown kind", func(t *testing.T) {
		cfg := &config.Config{Transport: config.Transport{Kind: "kafka"}}
		_, err := NewTransport(context.Background(), cfg, nil, logger.NewNop())
		assert.ErrorContains(t, err, "unknown transport kind")
	})
}
