package infrastructure

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/pkg/errors"

	"github.com/draftea/travel-booking/shared/events"
	"github.com/draftea/travel-booking/shared/logger"
)

var _ events.Subscriber = (*SQSEventSubscriber)(nil)

// SQSAPI is the subset of the SQS client the subscriber needs
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
}

type sqsMessage struct {
	Message types.Message
	Event   *events.Event
	Err     error
}

// SQSEventSubscriber consumes a service queue subscribed to the saga topic.
// Readers poll, workers run the handler and cleaners either delete the message
// or push its visibility out so SQS redelivers it later.
type SQSEventSubscriber struct {
	mux              sync.RWMutex
	wg               sync.WaitGroup
	inboundMessages  chan *sqsMessage
	outboundMessages chan *sqsMessage
	cancel           context.CancelFunc
	running          atomic.Bool
	options          *sqsSubscriberOptions

	client   SQSAPI
	queueURL string
	handler  events.EventHandler
	logger   logger.Logger
}

type sqsSubscriberOptions struct {
	workers                    int32
	readers                    int32
	cleaners                   int32
	maxNumberOfMessages        int32
	waitTimeSeconds            int32
	visibilityTimeout          int32
	sleepTimeAfterEmptyReceive time.Duration
	sleepTimeAfterError        time.Duration
	receiveCountRange          int32
	visibilityTimeoutOffset    int32
	maxVisibilityTimeout       int32
}

type SQSSubscriberOption func(*sqsSubscriberOptions)

func WithWorkers(workers int32) SQSSubscriberOption {
	return func(o *sqsSubscriberOptions) {
		if workers > 0 {
			o.workers = workers
		}
	}
}

func WithReaders(readers int32) SQSSubscriberOption {
	return func(o *sqsSubscriberOptions) {
		if readers > 0 {
			o.readers = readers
		}
	}
}

func WithVisibilityTimeout(timeout int32) SQSSubscriberOption {
	return func(o *sqsSubscriberOptions) {
		if timeout > 0 {
			o.visibilityTimeout = timeout
		}
	}
}

func WithEmptyReceiveBackoff(d time.Duration) SQSSubscriberOption {
	return func(o *sqsSubscriberOptions) {
		o.sleepTimeAfterEmptyReceive = d
	}
}

// NewSQSEventSubscriber creates a new SQS event subscriber
func NewSQSEventSubscriber(client SQSAPI, queueURL string, log logger.Logger, opts ...SQSSubscriberOption) *SQSEventSubscriber {
	options := &sqsSubscriberOptions{
		workers:                    30,
		readers:                    1,
		cleaners:                   2,
		maxNumberOfMessages:        5,
		waitTimeSeconds:            15,
		visibilityTimeout:          30,
		sleepTimeAfterEmptyReceive: time.Second,
		sleepTimeAfterError:        20 * time.Second,
		receiveCountRange:          3,
		visibilityTimeoutOffset:    30,
		maxVisibilityTimeout:       900, // 15 minutes
	}

	for _, opt := range opts {
		opt(options)
	}

	return &SQSEventSubscriber{
		client:   client,
		queueURL: queueURL,
		options:  options,
		logger:   log.With("queue_url", queueURL),
	}
}

// Subscribe sets the handler every received event is dispatched to
func (s *SQSEventSubscriber) Subscribe(_ context.Context, handler events.EventHandler) error {
	if s.running.Load() {
		return errors.New("subscriber is already running")
	}

	s.mux.Lock()
	s.handler = handler
	s.mux.Unlock()
	return nil
}

// Start starts readers, workers and cleaners
func (s *SQSEventSubscriber) Start(ctx context.Context) error {
	if s.running.Load() {
		return nil
	}

	s.mux.Lock()
	defer s.mux.Unlock()

	if s.handler == nil {
		return errors.New("no handler configured")
	}

	ctx, cancel := context.WithCancel(ctx)
	s.inboundMessages = make(chan *sqsMessage, 10)
	s.outboundMessages = make(chan *sqsMessage, 10)
	s.cancel = cancel

	for i := 0; i < int(s.options.workers); i++ {
		s.spawn(func() { s.startWorker(ctx) })
	}

	for i := 0; i < int(s.options.readers); i++ {
		s.spawn(func() { s.startReader(ctx) })
	}

	for i := 0; i < int(s.options.cleaners); i++ {
		s.spawn(func() { s.startCleaner(ctx) })
	}

	s.running.Store(true)
	s.logger.Info("sqs subscriber started", "workers", s.options.workers, "readers", s.options.readers)

	return nil
}

// Stop cancels the loops and waits for in-flight messages. Unacknowledged
// messages become visible again once their visibility timeout expires.
func (s *SQSEventSubscriber) Stop(ctx context.Context) error {
	if !s.running.Load() {
		return nil
	}

	s.mux.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = nil
	s.mux.Unlock()

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
		return errors.Wrap(ctx.Err(), "sqs subscriber did not stop in time")
	}
}

func (s *SQSEventSubscriber) spawn(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

func (s *SQSEventSubscriber) startWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case message := <-s.inboundMessages:
			s.handle(ctx, message)
		}
	}
}

func (s *SQSEventSubscriber) startReader(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			if err := s.read(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("failed to read from sqs", "error", err)
				sleep(ctx, s.options.sleepTimeAfterError)
			}
		}
	}
}

func (s *SQSEventSubscriber) startCleaner(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case message := <-s.outboundMessages:
			if err := s.clean(ctx, message); err != nil {
				s.logger.Error("failed to settle sqs message",
					"message_id", aws.ToString(message.Message.MessageId),
					"error", err,
				)
			}
		}
	}
}

func (s *SQSEventSubscriber) read(ctx context.Context) error {
	output, err := s.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(s.queueURL),
		MaxNumberOfMessages: s.options.maxNumberOfMessages,
		WaitTimeSeconds:     s.options.waitTimeSeconds,
		VisibilityTimeout:   s.options.visibilityTimeout,
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{
			types.MessageSystemAttributeNameApproximateReceiveCount,
		},
		MessageAttributeNames: []string{"All"},
	})
	if err != nil {
		return errors.Wrap(err, "failed to receive message from SQS")
	}

	if len(output.Messages) == 0 {
		sleep(ctx, s.options.sleepTimeAfterEmptyReceive)
		return nil
	}

	for _, message := range output.Messages {
		event, err := decodeEvent([]byte(aws.ToString(message.Body)))
		if err != nil {
			// poison messages are left for the queue's redrive policy
			s.logger.Error("skipping malformed sqs message",
				"message_id", aws.ToString(message.MessageId),
				"error", err,
			)
			continue
		}

		if count, ok := message.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)]; ok {
			event.Metadata[events.MetadataReceiveCount] = count
		}

		select {
		case s.inboundMessages <- &sqsMessage{Message: message, Event: event}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

func (s *SQSEventSubscriber) handle(ctx context.Context, message *sqsMessage) {
	s.mux.RLock()
	handler := s.handler
	s.mux.RUnlock()

	message.Err = handler.Handle(ctx, message.Event)

	select {
	case s.outboundMessages <- message:
	case <-ctx.Done():
	}
}

func (s *SQSEventSubscriber) clean(ctx context.Context, message *sqsMessage) error {
	if message.Err != nil {
		receiveCount, err := strconv.Atoi(message.Message.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)])
		if err != nil {
			receiveCount = 1
		}

		_, err = s.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
			QueueUrl:          aws.String(s.queueURL),
			ReceiptHandle:     message.Message.ReceiptHandle,
			VisibilityTimeout: s.backoff(receiveCount),
		})
		if err != nil {
			return errors.Wrap(err, "failed to extend visibility timeout")
		}
		return nil
	}

	_, err := s.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(s.queueURL),
		ReceiptHandle: message.Message.ReceiptHandle,
	})
	if err != nil {
		return errors.Wrap(err, "failed to delete message from SQS")
	}

	return nil
}

// backoff grows the visibility timeout every receiveCountRange deliveries
func (s *SQSEventSubscriber) backoff(receiveCount int) int32 {
	visibilityTimeout := s.options.visibilityTimeout
	visibilityTimeout += (int32(receiveCount) / s.options.receiveCountRange) * s.options.visibilityTimeoutOffset

	if visibilityTimeout > s.options.maxVisibilityTimeout {
		visibilityTimeout = s.options.maxVisibilityTimeout
	}
	return visibilityTimeout
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
