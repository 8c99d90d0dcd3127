package infrastructure

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/draftea/travel-booking/shared/events"
	"github.com/draftea/travel-booking/shared/logger"
)

var _ events.Publisher = (*SNSEventPublisher)(nil)

const maxBatchSize = 10

// SNSAPI is the subset of the SNS client the publisher needs
type SNSAPI interface {
	PublishBatch(ctx context.Context, params *sns.PublishBatchInput, optFns ...func(*sns.Options)) (*sns.PublishBatchOutput, error)
}

// SNSEventPublisher publishes saga events to an SNS topic. On FIFO topics the
// booking id is the message group, so one booking's events stay ordered.
type SNSEventPublisher struct {
	client   SNSAPI
	topicArn string
	fifo     bool
	logger   logger.Logger
}

// NewSNSEventPublisher creates a new SNSEventPublisher
func NewSNSEventPublisher(client SNSAPI, topicArn string, log logger.Logger) *SNSEventPublisher {
	return &SNSEventPublisher{
		client:   client,
		topicArn: topicArn,
		fifo:     strings.HasSuffix(topicArn, ".fifo"),
		logger:   log,
	}
}

// Publish publishes events to SNS in batches of ten. Events of the same batch
// keep their order; separate batches go out concurrently.
func (p *SNSEventPublisher) Publish(ctx context.Context, evts ...*events.Event) error {
	if len(evts) == 0 {
		return nil
	}

	gr, ctx := errgroup.WithContext(ctx)

	for _, eventBatch := range splitToChunks(evts, maxBatchSize) {
		eventBatch := eventBatch
		gr.Go(func() error {
			return p.batchPublish(ctx, eventBatch)
		})
	}

	return gr.Wait()
}

func (p *SNSEventPublisher) batchPublish(ctx context.Context, batch []*events.Event) error {
	requests := make([]types.PublishBatchRequestEntry, len(batch))

	for i, event := range batch {
		body, err := encodeEvent(event)
		if err != nil {
			return err
		}

		attrs := map[string]types.MessageAttributeValue{
			"event_type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(event.EventType),
			},
			"booking_id": {
				DataType:    aws.String("String"),
				StringValue: aws.String(event.AggregateID.String()),
			},
		}

		entry := types.PublishBatchRequestEntry{
			Id:                aws.String(event.ID.String()),
			Message:           aws.String(string(body)),
			MessageAttributes: attrs,
		}
		if p.fifo {
			entry.MessageGroupId = aws.String(event.AggregateID.String())
			entry.MessageDeduplicationId = aws.String(event.ID.String())
		}
		requests[i] = entry
	}

	res, err := p.client.PublishBatch(ctx, &sns.PublishBatchInput{
		TopicArn:                   aws.String(p.topicArn),
		PublishBatchRequestEntries: requests,
	})
	if err != nil {
		return errors.Wrap(err, "failed to publish batch to SNS")
	}

	if len(res.Failed) > 0 {
		for _, entry := range res.Failed {
			p.logger.Error("sns publish entry failed",
				"event_id", aws.ToString(entry.Id),
				"code", aws.ToString(entry.Code),
				"message", aws.ToString(entry.Message),
			)
		}
		return errors.Errorf("%d of %d events were rejected by SNS", len(res.Failed), len(batch))
	}

	return nil
}

// splitToChunks splits slice into chunks of specified size
func splitToChunks[T any](slice []T, chunkSize int) [][]T {
	var chunks [][]T
	for i := 0; i < len(slice); i += chunkSize {
		end := i + chunkSize
		if end > len(slice) {
			end = len(slice)
		}
		chunks = append(chunks, slice[i:end])
	}
	return chunks
}
